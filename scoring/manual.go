// Package scoring derives numbers from assessments: the offline heuristic
// scorer and the per-dimension comparison against history.
package scoring

import (
	"math"
	"strings"

	"mealscore"
)

const (
	ManualModelVersion = "manual-heuristic-v1"

	baseScore         = 5.0
	produceBonus      = 2.0
	processedPenalty  = 2.0
	energyAdjustment  = 0.5
	positiveThreshold = 6.0

	tagBalancePositive = "balance_green"
	tagEnergyNegative  = "energy_fast"

	positiveExplanation    = "Good balance with nutrient-dense items."
	improvementExplanation = "Consider adding vegetables and reducing processed items."
)

var (
	produceTerms   = []string{"salad", "vegetable", "veggie", "greens"}
	processedTerms = []string{"fried", "processed", "sugar", "soda"}
)

// ClampScore limits v to [0,10] and rounds it to the nearest 0.5.
// NaN becomes 0.
func ClampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Max(0, math.Min(10, v))
	return math.Round(v*2) / 2
}

// ScoreManual scores a meal description without calling a model. Identical
// input always yields an identical assessment.
func ScoreManual(mealText string, energyLevel string) mealscore.Assessment {
	text := strings.ToLower(mealText)
	score := baseScore
	tags := []string{}

	if containsAny(text, produceTerms) {
		score += produceBonus
		tags = append(tags, tagBalancePositive)
	}
	if containsAny(text, processedTerms) {
		score -= processedPenalty
		tags = append(tags, tagEnergyNegative)
	}

	switch strings.ToLower(strings.TrimSpace(energyLevel)) {
	case "high":
		score += energyAdjustment
	case "low":
		score -= energyAdjustment
	}

	score = ClampScore(score)

	explanation := improvementExplanation
	if score >= positiveThreshold {
		explanation = positiveExplanation
	}

	return mealscore.Assessment{
		MetabolicScore:   score,
		TagKeys:          tags,
		GetsRight:        []string{},
		ThingsToWatch:    []string{},
		ExplanationShort: explanation,
		ModelVersion:     ManualModelVersion,
	}
}

func containsAny(text string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}
