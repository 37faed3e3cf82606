package scoring

import (
	"testing"

	"mealscore"
	"mealscore/taxonomy"

	"github.com/stretchr/testify/assert"
)

func testSnapshot() *taxonomy.Snapshot {
	return taxonomy.NewSnapshot([]mealscore.TagDefinition{
		{TagKey: "balance_green", Category: mealscore.CategoryBalance, SortOrder: 1},
		{TagKey: "balance_protein", Category: mealscore.CategoryBalance, SortOrder: 2},
		{TagKey: "energy_fast", Category: mealscore.CategoryEnergy, SortOrder: 3},
		{TagKey: "digestion_light", Category: mealscore.CategoryDigestion, SortOrder: 4},
		{TagKey: "general_home", Category: mealscore.CategoryGeneral, SortOrder: 5},
	})
}

func assessment(score float64, tags ...string) mealscore.Assessment {
	return mealscore.Assessment{MetabolicScore: score, TagKeys: tags}
}

func TestDimensionScore(t *testing.T) {
	snap := testSnapshot()
	tests := []struct {
		name string
		a    mealscore.Assessment
		d    mealscore.Dimension
		want float64
	}{
		{"no tags", assessment(6), mealscore.DimensionBalance, 60},
		{"two balance tags", assessment(6, "balance_green", "balance_protein"), mealscore.DimensionBalance, 70},
		{"tag in other dimension", assessment(6, "energy_fast"), mealscore.DimensionBalance, 60},
		{"general tags never count", assessment(6, "general_home"), mealscore.DimensionDigestion, 60},
		{"retired tag ignored", assessment(6, "retired_tag"), mealscore.DimensionBalance, 60},
		{"clamped at 100", assessment(10, "balance_green"), mealscore.DimensionBalance, 100},
		{"zero score", assessment(0, "digestion_light"), mealscore.DimensionDigestion, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DimensionScore(tt.a, tt.d, snap))
		})
	}

	assert.Equal(t, 60.0, DimensionScore(assessment(6, "balance_green"), mealscore.DimensionBalance, nil), "nil lookup counts no tags")
}

func TestPopulationStats(t *testing.T) {
	mean, std := PopulationStats(nil)
	assert.Equal(t, 0.0, mean)
	assert.Equal(t, 1.0, std)

	mean, std = PopulationStats([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.Equal(t, 5.0, mean)
	assert.Equal(t, 2.0, std)

	mean, std = PopulationStats([]float64{50})
	assert.Equal(t, 50.0, mean)
	assert.Equal(t, 0.0, std)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  mealscore.Band
	}{
		{"exactly upper edge", 55, mealscore.BandHigher},
		{"above", 70, mealscore.BandHigher},
		{"just inside", 54.9, mealscore.BandAbout},
		{"mean", 50, mealscore.BandAbout},
		{"exactly lower edge", 45, mealscore.BandLower},
		{"below", 10, mealscore.BandLower},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.value, 50, 10))
		})
	}
}

func TestCompare_EmptyPopulations(t *testing.T) {
	got := Compare(assessment(9, "balance_green", "energy_fast"), nil, nil, testSnapshot())
	for _, d := range mealscore.Dimensions {
		c := got.Get(d)
		assert.Equal(t, "about usual", c.VsSelf.SelfLabel(), d)
		assert.Equal(t, "about average", c.VsCohort.CohortLabel(), d)
	}
}

func TestCompare_HigherThanBoth(t *testing.T) {
	snap := testSnapshot()
	self := []mealscore.Assessment{assessment(4), assessment(5), assessment(6)}
	cohort := []mealscore.Assessment{assessment(3), assessment(5, "balance_green"), assessment(7)}

	got := Compare(assessment(8, "balance_green", "balance_protein"), self, cohort, snap)

	assert.Equal(t, "higher than usual", got.Balance.VsSelf.SelfLabel())
	assert.Equal(t, "above most", got.Balance.VsCohort.CohortLabel())
	assert.Equal(t, mealscore.BandHigher, got.Energy.VsSelf)
}

func TestCompare_MixedBands(t *testing.T) {
	snap := testSnapshot()
	self := []mealscore.Assessment{
		assessment(5, "energy_fast"),
		assessment(5, "energy_fast"),
		assessment(5, "energy_fast", "digestion_light"),
	}
	cohort := []mealscore.Assessment{assessment(5), assessment(5, "digestion_light")}

	got := Compare(assessment(5, "digestion_light"), self, cohort, snap)

	// energy: 50 vs self mean 55 std 0 -> lower
	assert.Equal(t, mealscore.BandLower, got.Energy.VsSelf)
	// energy: 50 vs cohort mean 50 std 0 -> at the edge, higher
	assert.Equal(t, mealscore.BandHigher, got.Energy.VsCohort)
	// digestion: 55 vs cohort 50/55 mean 52.5 std 2.5 -> 55 >= 53.75
	assert.Equal(t, mealscore.BandHigher, got.Digestion.VsCohort)
}

func TestEngine_CustomScorer(t *testing.T) {
	flat := func(a mealscore.Assessment, d mealscore.Dimension, lookup CategoryLookup) float64 {
		return a.MetabolicScore
	}
	engine := NewEngine(flat)
	got := engine.Compare(assessment(1, "balance_green"), []mealscore.Assessment{assessment(9)}, nil, testSnapshot())
	assert.Equal(t, mealscore.BandLower, got.Balance.VsSelf)
	assert.Equal(t, mealscore.BandAbout, got.Balance.VsCohort)
}

func TestSummarizeCohort(t *testing.T) {
	history := []mealscore.Assessment{
		assessment(6, "balance_green", "energy_fast", "balance_green"),
		assessment(8, "balance_green", "retired_tag"),
		assessment(4, "digestion_light"),
	}

	got := SummarizeCohort(history, testSnapshot())

	assert.Equal(t, 3, got.Entities)
	assert.Equal(t, 6.0, got.MeanScore)
	assert.Equal(t, 1, got.Dropped)
	assert.Equal(t, []TagCount{{TagKey: "balance_green", Count: 2}}, got.TopTags[mealscore.CategoryBalance])
	assert.Equal(t, []TagCount{{TagKey: "energy_fast", Count: 1}}, got.TopTags[mealscore.CategoryEnergy])
	assert.NotContains(t, got.TopTags, mealscore.Category("retired"))

	empty := SummarizeCohort(nil, testSnapshot())
	assert.Zero(t, empty.Entities)
	assert.Empty(t, empty.TopTags)
}
