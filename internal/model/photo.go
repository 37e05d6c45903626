package model

import (
	"time"
)

const (
	PhotoSourceRemote  = "remote"  // id issued by Strava
	PhotoSourceDerived = "derived" // surrogate id built from unique_id
)

type Photo struct {
	ID             string    `db:"id" json:"id"`
	ActivityID     string    `db:"activity_id" json:"activityId"`
	StravaID       *int64    `db:"strava_id" json:"stravaId"`
	StravaIDSource *string   `db:"strava_id_source" json:"stravaIdSource"`
	URL            string    `db:"url" json:"url"`
	Caption        *string   `db:"caption" json:"caption"`
	IsPrimary      bool      `db:"is_primary" json:"isPrimary"`
	StoragePath    *string   `db:"storage_path" json:"-"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// HasRemoteID reports whether StravaID is authoritative and can be used in
// calls to Strava.
func (p *Photo) HasRemoteID() bool {
	return p.StravaID != nil && p.StravaIDSource != nil && *p.StravaIDSource == PhotoSourceRemote
}
