package scoring

import (
	"math"
	"testing"

	"mealscore"

	"github.com/stretchr/testify/assert"
)

func TestClampScore(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{in: 7.5, want: 7.5},
		{in: 7.3, want: 7.5},
		{in: 7.2, want: 7},
		{in: 7.25, want: 7.5},
		{in: -3, want: 0},
		{in: 12.4, want: 10},
		{in: 9.9, want: 10},
		{in: math.NaN(), want: 0},
		{in: math.Inf(1), want: 10},
	}
	for _, tt := range tests {
		got := ClampScore(tt.in)
		assert.Equal(t, tt.want, got, "ClampScore(%v)", tt.in)
	}
}

func TestScoreManual(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		energy       string
		wantScore    float64
		wantTags     []string
		wantPositive bool
	}{
		{
			name:         "produce only",
			text:         "Grilled chicken with salad",
			wantScore:    7,
			wantTags:     []string{"balance_green"},
			wantPositive: true,
		},
		{
			name:      "processed with low energy",
			text:      "Fried wings with soda",
			energy:    "low",
			wantScore: 2.5,
			wantTags:  []string{"energy_fast"},
		},
		{
			name:      "neutral",
			text:      "Rice and beans",
			wantScore: 5,
			wantTags:  []string{},
		},
		{
			name:         "both terms, high energy",
			text:         "Veggie stir fry with SUGAR glaze",
			energy:       " High ",
			wantScore:    5.5,
			wantTags:     []string{"balance_green", "energy_fast"},
			wantPositive: false,
		},
		{
			name:         "greens with high energy",
			text:         "Bowl of greens",
			energy:       "high",
			wantScore:    7.5,
			wantTags:     []string{"balance_green"},
			wantPositive: true,
		},
		{
			name:      "unknown energy level ignored",
			text:      "Toast",
			energy:    "medium",
			wantScore: 5,
			wantTags:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreManual(tt.text, tt.energy)
			assert.Equal(t, tt.wantScore, got.MetabolicScore)
			assert.Equal(t, tt.wantTags, got.TagKeys)
			assert.Equal(t, ManualModelVersion, got.ModelVersion)
			if tt.wantPositive {
				assert.Equal(t, positiveExplanation, got.ExplanationShort)
			} else {
				assert.Equal(t, improvementExplanation, got.ExplanationShort)
			}
			assert.Equal(t, got.MetabolicScore, ClampScore(got.MetabolicScore), "score is on the 0.5 grid")
		})
	}
}

func TestScoreManual_Deterministic(t *testing.T) {
	first := ScoreManual("Garden salad with fried croutons", "high")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ScoreManual("Garden salad with fried croutons", "high"))
	}
}

func TestScoreManual_Ordering(t *testing.T) {
	healthy := ScoreManual("Grilled chicken with salad", "")
	indulgent := ScoreManual("Fried wings with soda", "low")
	assert.Greater(t, healthy.MetabolicScore, indulgent.MetabolicScore)
}

func TestScoreManual_Shape(t *testing.T) {
	a := ScoreManual("", "")
	assert.Equal(t, mealscore.Assessment{
		MetabolicScore:   5,
		TagKeys:          []string{},
		GetsRight:        []string{},
		ThingsToWatch:    []string{},
		ExplanationShort: improvementExplanation,
		ModelVersion:     ManualModelVersion,
	}, a)
}
