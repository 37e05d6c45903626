package model

import (
	"time"
)

// MockStravaIDBase is the first remote id handed out to generated activities.
const MockStravaIDBase int64 = 2_000_000_000

var ActivityTypes = []string{"Run", "Ride", "Swim", "Walk", "Hike", "WeightTraining", "Yoga"}

type Activity struct {
	ID                string    `db:"id" json:"id"`
	UserID            string    `db:"user_id" json:"userId"`
	StravaID          int64     `db:"strava_id" json:"stravaId"`
	Name              string    `db:"name" json:"name"`
	Type              string    `db:"type" json:"type"`
	Distance          float64   `db:"distance" json:"distance"`      // meters
	MovingTime        int       `db:"moving_time" json:"movingTime"` // seconds
	StartDate         time.Time `db:"start_date" json:"startDate"`
	Description       *string   `db:"description" json:"description"`
	PrivateNotes      *string   `db:"private_notes" json:"privateNotes"`
	PerceivedExertion *string   `db:"perceived_exertion" json:"perceivedExertion"`
	IsCommute         bool      `db:"is_commute" json:"isCommute"`
	IsIndoor          bool      `db:"is_indoor" json:"isIndoor"`
	Calories          int       `db:"calories" json:"calories"`
	IsMock            bool      `db:"is_mock" json:"isMock"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time `db:"updated_at" json:"updatedAt"`

	// Loaded on demand, not a column.
	Photos []*Photo `db:"-" json:"photos,omitempty"`
}

// ActivityEdit holds the locally editable fields. Nil pointers leave the
// stored value unchanged.
type ActivityEdit struct {
	Name              *string `json:"name"`
	Description       *string `json:"description"`
	PerceivedExertion *string `json:"perceivedExertion"`
	PrivateNotes      *string `json:"privateNotes"`
	IsCommute         *bool   `json:"isCommute"`
	IsIndoor          *bool   `json:"isIndoor"`
}

// Apply returns a copy of a with the edit applied.
func (e ActivityEdit) Apply(a Activity) Activity {
	if e.Name != nil {
		a.Name = *e.Name
	}
	if e.Description != nil {
		a.Description = nilIfEmpty(*e.Description)
	}
	if e.PerceivedExertion != nil {
		a.PerceivedExertion = nilIfEmpty(*e.PerceivedExertion)
	}
	if e.PrivateNotes != nil {
		a.PrivateNotes = nilIfEmpty(*e.PrivateNotes)
	}
	if e.IsCommute != nil {
		a.IsCommute = *e.IsCommute
	}
	if e.IsIndoor != nil {
		a.IsIndoor = *e.IsIndoor
	}
	return a
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
