package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExertionLabel(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{1, ExertionEasy},
		{2, ExertionEasy},
		{3, ExertionModerate},
		{4, ExertionModerate},
		{4.5, ExertionMaxEffort},
		{10, ExertionMaxEffort},
	}
	for _, c := range cases {
		got := ExertionLabel(c.score)
		require.NotNil(t, got, "score %v", c.score)
		assert.Equal(t, c.want, *got, "score %v", c.score)
	}

	assert.Nil(t, ExertionLabel(0))
}

func TestParseExertion(t *testing.T) {
	label, ok := ParseExertion("  max   EFFORT ")
	require.True(t, ok)
	assert.Equal(t, ExertionMaxEffort, label)

	label, ok = ParseExertion("")
	require.True(t, ok)
	assert.Empty(t, label)

	_, ok = ParseExertion("brutal")
	assert.False(t, ok)
}

func TestExertionScoreRoundTrip(t *testing.T) {
	for _, label := range []string{ExertionEasy, ExertionModerate, ExertionMaxEffort} {
		score, ok := ExertionScore(label)
		require.True(t, ok)
		assert.Equal(t, label, *ExertionLabel(float64(score)))
	}
}

func TestActivityEditApply(t *testing.T) {
	desc := "old"
	a := Activity{Name: "Morning Run", Description: &desc, IsCommute: true}

	name := "Evening Run"
	empty := ""
	commute := false
	got := ActivityEdit{Name: &name, Description: &empty, IsCommute: &commute}.Apply(a)

	assert.Equal(t, "Evening Run", got.Name)
	assert.Nil(t, got.Description)
	assert.False(t, got.IsCommute)
	assert.Equal(t, "old", *a.Description)
}
