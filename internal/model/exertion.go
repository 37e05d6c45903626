package model

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	ExertionEasy      = "Easy"
	ExertionModerate  = "Moderate"
	ExertionMaxEffort = "Max Effort"
)

var exertionScores = map[string]int{
	ExertionEasy:      1,
	ExertionModerate:  3,
	ExertionMaxEffort: 5,
}

// ExertionLabel maps Strava's numeric perceived exertion to a label.
// Zero means unset.
func ExertionLabel(score float64) *string {
	var label string
	switch {
	case score <= 0:
		return nil
	case score <= 2:
		label = ExertionEasy
	case score <= 4:
		label = ExertionModerate
	default:
		label = ExertionMaxEffort
	}
	return &label
}

// ExertionScore maps a label back to the value sent to Strava.
func ExertionScore(label string) (int, bool) {
	v, ok := exertionScores[label]
	return v, ok
}

// ParseExertion canonicalises user input such as "max effort" to a known
// label. An empty string parses to the empty label.
func ParseExertion(s string) (string, bool) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "", true
	}
	label := cases.Title(language.English).String(strings.ToLower(s))
	if _, ok := exertionScores[label]; !ok {
		return "", false
	}
	return label, true
}
