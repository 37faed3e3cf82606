package scoring

import (
	"math"

	"mealscore"
)

// CategoryLookup resolves a tag key to its category. Unknown keys report false.
type CategoryLookup interface {
	CategoryOf(key string) (mealscore.Category, bool)
}

// DimensionScorer blends an assessment into a single 0..100 value for one
// dimension.
type DimensionScorer func(a mealscore.Assessment, d mealscore.Dimension, lookup CategoryLookup) float64

// DimensionScore is the default blend: score*10 plus 5 per tag in the
// dimension, clamped to [0,100]. Tags that are unknown or general do not
// count toward any dimension.
func DimensionScore(a mealscore.Assessment, d mealscore.Dimension, lookup CategoryLookup) float64 {
	count := 0
	for _, t := range a.TagKeys {
		if lookup == nil {
			break
		}
		cat, ok := lookup.CategoryOf(t)
		if ok && string(cat) == string(d) {
			count++
		}
	}
	v := a.MetabolicScore*10 + float64(count)*5
	return math.Max(0, math.Min(100, v))
}

// PopulationStats returns the mean and population standard deviation of
// values. An empty population yields (0, 1).
func PopulationStats(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 1
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

// Classify places value within half a standard deviation of mean.
func Classify(value, mean, std float64) mealscore.Band {
	half := 0.5 * std
	switch {
	case value >= mean+half:
		return mealscore.BandHigher
	case value <= mean-half:
		return mealscore.BandLower
	default:
		return mealscore.BandAbout
	}
}

// Engine compares an assessment to two populations using a dimension scorer.
type Engine struct {
	score DimensionScorer
}

// NewEngine returns an engine using scorer, or DimensionScore when nil.
func NewEngine(scorer DimensionScorer) *Engine {
	if scorer == nil {
		scorer = DimensionScore
	}
	return &Engine{score: scorer}
}

// Compare computes the self and cohort band for each dimension.
func (e *Engine) Compare(current mealscore.Assessment, self, cohort []mealscore.Assessment, lookup CategoryLookup) mealscore.ComparisonResult {
	var result mealscore.ComparisonResult
	for _, d := range mealscore.Dimensions {
		value := e.score(current, d, lookup)
		result.Set(d, mealscore.DimensionComparison{
			VsSelf:   e.band(value, self, d, lookup),
			VsCohort: e.band(value, cohort, d, lookup),
		})
	}
	return result
}

// band classifies value against population. With no baseline there is
// nothing to stand out from, so the band is always about.
func (e *Engine) band(value float64, population []mealscore.Assessment, d mealscore.Dimension, lookup CategoryLookup) mealscore.Band {
	if len(population) == 0 {
		return mealscore.BandAbout
	}
	scores := make([]float64, len(population))
	for i, a := range population {
		scores[i] = e.score(a, d, lookup)
	}
	mean, std := PopulationStats(scores)
	return Classify(value, mean, std)
}

// Compare runs the default engine.
func Compare(current mealscore.Assessment, self, cohort []mealscore.Assessment, lookup CategoryLookup) mealscore.ComparisonResult {
	return NewEngine(nil).Compare(current, self, cohort, lookup)
}
