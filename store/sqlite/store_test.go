package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"mealscore"
	"mealscore/scoring"
	"mealscore/taxonomy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func fullAssessment() mealscore.Assessment {
	return mealscore.Assessment{
		Headline:         "Balanced meal",
		MetabolicScore:   7.5,
		TagKeys:          []string{"balance_green", "energy_fast"},
		GetsRight:        []string{"Includes veggies"},
		ThingsToWatch:    []string{"Portion size"},
		ExplanationShort: "Seems balanced with some greens.",
		Confidence:       0.8,
		ModelVersion:     "fake-1",
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	saved, err := s.SaveAssessment(ctx, mealscore.ScoredEntity{
		UserID:     "user-1",
		CohortID:   "cohort-a",
		Assessment: fullAssessment(),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, mealscore.EntityMeal, saved.Kind)
	assert.Equal(t, fixedNow, saved.CreatedAt)

	got, err := s.GetAssessment(ctx, "user-1", saved.ID, mealscore.EntityMeal)
	require.NoError(t, err)
	assert.Equal(t, saved, got)
	assert.Equal(t, fullAssessment(), got.Assessment, "payload round-trips field for field")

	_, err = s.GetAssessment(ctx, "user-2", saved.ID, mealscore.EntityMeal)
	assert.ErrorIs(t, err, mealscore.ErrEntityNotFound, "other users cannot see the entity")

	_, err = s.GetAssessment(ctx, "user-1", saved.ID, mealscore.EntityScan)
	assert.ErrorIs(t, err, mealscore.ErrEntityNotFound)

	_, err = s.SaveAssessment(ctx, mealscore.ScoredEntity{Assessment: fullAssessment()})
	assert.Error(t, err, "user is required")
}

func TestStore_FetchScoredEntities(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seed := []mealscore.ScoredEntity{
		{ID: "m1", UserID: "u1", CohortID: "c1", CreatedAt: fixedNow.Add(-1 * time.Hour), Assessment: mealscore.Assessment{MetabolicScore: 1}},
		{ID: "m2", UserID: "u1", CohortID: "c1", CreatedAt: fixedNow.Add(-48 * time.Hour), Assessment: mealscore.Assessment{MetabolicScore: 2}},
		{ID: "m3", UserID: "u1", CohortID: "c1", CreatedAt: fixedNow.Add(-40 * 24 * time.Hour), Assessment: mealscore.Assessment{MetabolicScore: 3}},
		{ID: "m4", UserID: "u2", CohortID: "c1", CreatedAt: fixedNow.Add(-2 * time.Hour), Assessment: mealscore.Assessment{MetabolicScore: 4}},
		{ID: "m5", UserID: "u3", CohortID: "c2", CreatedAt: fixedNow.Add(-2 * time.Hour), Assessment: mealscore.Assessment{MetabolicScore: 5}},
	}
	for _, e := range seed {
		_, err := s.SaveAssessment(ctx, e)
		require.NoError(t, err)
	}

	scores := func(as []mealscore.Assessment) []float64 {
		out := make([]float64, len(as))
		for i, a := range as {
			out[i] = a.MetabolicScore
		}
		return out
	}
	window := 30 * 24 * time.Hour

	tests := []struct {
		name  string
		scope mealscore.Scope
		want  []float64
	}{
		{"user within window", mealscore.Scope{UserID: "u1"}, []float64{1, 2}},
		{"user excluding current", mealscore.Scope{UserID: "u1", ExcludeID: "m1"}, []float64{2}},
		{"cohort newest first", mealscore.Scope{CohortID: "c1"}, []float64{1, 4, 2}},
		{"cohort excluding current", mealscore.Scope{CohortID: "c1", ExcludeID: "m4"}, []float64{1, 2}},
		{"empty cohort", mealscore.Scope{CohortID: "c9"}, []float64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.FetchScoredEntities(ctx, tt.scope, window)
			require.NoError(t, err)
			assert.Equal(t, tt.want, scores(got))
		})
	}

	_, err := s.FetchScoredEntities(ctx, mealscore.Scope{}, window)
	assert.Error(t, err)
}

func TestStore_TagCatalog(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertTag(ctx, mealscore.TagDefinition{TagKey: "energy_fast", Category: mealscore.CategoryEnergy, DisplayName: "Fast energy", SortOrder: 2}, true))
	require.NoError(t, s.UpsertTag(ctx, mealscore.TagDefinition{TagKey: "balance_green", Category: mealscore.CategoryBalance, DisplayName: "Greens", SortOrder: 1}, true))
	require.NoError(t, s.UpsertTag(ctx, mealscore.TagDefinition{TagKey: "old_tag", Category: mealscore.CategoryGeneral, SortOrder: 0}, false))
	assert.Error(t, s.UpsertTag(ctx, mealscore.TagDefinition{TagKey: "x", Category: "mood"}, true))

	snap, err := taxonomy.Load(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"balance_green", "energy_fast"}, snap.Keys())

	require.NoError(t, s.UpsertTag(ctx, mealscore.TagDefinition{TagKey: "energy_fast", Category: mealscore.CategoryEnergy, SortOrder: 2}, false))
	snap, err = taxonomy.Load(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"balance_green"}, snap.Keys())
}

func TestStore_CompareEndToEnd(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertTag(ctx, mealscore.TagDefinition{TagKey: "balance_green", Category: mealscore.CategoryBalance, SortOrder: 1}, true))

	for i, score := range []float64{4, 5, 4.5} {
		_, err := s.SaveAssessment(ctx, mealscore.ScoredEntity{
			UserID:     "u1",
			CohortID:   "c1",
			CreatedAt:  fixedNow.Add(-time.Duration(i+1) * time.Hour),
			Assessment: mealscore.Assessment{MetabolicScore: score},
		})
		require.NoError(t, err)
	}
	current, err := s.SaveAssessment(ctx, mealscore.ScoredEntity{
		UserID:     "u1",
		CohortID:   "c1",
		Assessment: mealscore.Assessment{MetabolicScore: 9, TagKeys: []string{"balance_green"}},
	})
	require.NoError(t, err)

	result, err := scoring.NewComparer(s, s, s).Compare(ctx, scoring.CompareRequest{UserID: "u1", EntityID: current.ID})
	require.NoError(t, err)
	assert.Equal(t, "higher than usual", result.Balance.VsSelf.SelfLabel())
	assert.Equal(t, "above most", result.Balance.VsCohort.CohortLabel())
}
