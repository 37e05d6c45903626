package strava

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// FlexInt64 decodes ids that Strava sends as numbers, numeric strings or null.
// Anything else leaves Valid false instead of failing the whole payload.
type FlexInt64 struct {
	Value int64
	Valid bool
}

func (f *FlexInt64) UnmarshalJSON(data []byte) error {
	*f = FlexInt64{}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	s := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		s = strings.TrimSpace(s)
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		f.Value, f.Valid = n, true
		return nil
	}
	if fl, err := strconv.ParseFloat(s, 64); err == nil && fl == math.Trunc(fl) && math.Abs(fl) < math.MaxInt64 {
		f.Value, f.Valid = int64(fl), true
	}
	return nil
}

func (f FlexInt64) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(f.Value, 10)), nil
}

// Ptr returns nil when the id is missing.
func (f FlexInt64) Ptr() *int64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

type Athlete struct {
	ID        FlexInt64 `json:"id"`
	Username  string    `json:"username"`
	FirstName string    `json:"firstname"`
	LastName  string    `json:"lastname"`
}

type ActivitySummary struct {
	ID          FlexInt64 `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	SportType   string    `json:"sport_type"`
	Distance    float64   `json:"distance"`
	MovingTime  *int      `json:"moving_time"`
	ElapsedTime *int      `json:"elapsed_time"`
	StartDate   time.Time `json:"start_date"`
}

// ActivityType prefers the legacy type field and falls back to sport_type.
func (a ActivitySummary) ActivityType() string {
	if a.Type != "" {
		return a.Type
	}
	return a.SportType
}

// Duration returns the moving time in seconds, falling back to elapsed time.
func (a ActivitySummary) Duration() int {
	if a.MovingTime != nil {
		return *a.MovingTime
	}
	if a.ElapsedTime != nil {
		return *a.ElapsedTime
	}
	return 0
}

type ActivityDetail struct {
	ActivitySummary
	Description       *string  `json:"description"`
	PrivateNote       *string  `json:"private_note"`
	Commute           bool     `json:"commute"`
	Trainer           bool     `json:"trainer"`
	Calories          float64  `json:"calories"`
	PerceivedExertion *float64 `json:"perceived_exertion"`
	Photos            Photos   `json:"photos"`
}

// Photos is the photo block embedded in an activity detail.
type Photos struct {
	Primary    *Photo  `json:"primary"`
	Additional []Photo `json:"additional"`
	Count      int     `json:"count"`
}

type Photo struct {
	ID         FlexInt64         `json:"id"`
	UniqueID   string            `json:"unique_id"`
	ActivityID FlexInt64         `json:"activity_id"`
	URLs       map[string]string `json:"urls"`
	Caption    *string           `json:"caption"`
	Primary    bool              `json:"primary"`
}

// PreferredSize is the rendition requested from and preferred in Strava
// photo url maps.
const PreferredSize = "600"

// URL picks the 600px rendition, then the largest numeric size, then any
// non-empty entry. It returns "" when the map has no usable URL.
func (p Photo) URL() string {
	if u := p.URLs[PreferredSize]; u != "" {
		return u
	}

	keys := make([]string, 0, len(p.URLs))
	for k, v := range p.URLs {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		switch {
		case errA == nil && errB == nil:
			return a > b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})

	if len(keys) == 0 {
		return ""
	}
	return p.URLs[keys[0]]
}

// ActivityUpdate is the body of PUT /activities/{id}.
type ActivityUpdate struct {
	Name              string `json:"name"`
	Type              string `json:"type"`
	Description       string `json:"description"`
	Commute           bool   `json:"commute"`
	Trainer           bool   `json:"trainer"`
	PrivateNote       string `json:"private_note"`
	PerceivedExertion *int   `json:"perceived_exertion,omitempty"`
}

// Token is a Strava OAuth token set. ExpiresAt is in epoch seconds.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
}
