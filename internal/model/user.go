package model

import (
	"time"
)

type User struct {
	ID        string    `db:"id"`
	Subject   string    `db:"subject"` // identity provider subject
	Email     string    `db:"email"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	// Strava credential, encrypted at rest. All three are nil when not connected.
	StravaAccessToken  *string `db:"strava_access_token"`
	StravaRefreshToken *string `db:"strava_refresh_token"`
	StravaExpiresAt    *int64  `db:"strava_expires_at"` // epoch seconds
}

func (u *User) IsConnected() bool {
	return u.StravaAccessToken != nil && u.StravaRefreshToken != nil && u.StravaExpiresAt != nil
}

// Credential is a decrypted Strava token set.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
}

// Expired reports whether the access token can no longer be used at now.
func (c *Credential) Expired(now time.Time) bool {
	return c.ExpiresAt <= now.Unix()
}
