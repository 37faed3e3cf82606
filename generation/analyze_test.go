package generation

import (
	"context"
	"testing"

	"mealscore"
	"mealscore/llm/mock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualRequest(t *testing.T) {
	req := manualRequest(ManualMealInput{
		AllowedTags:     []string{"balance_green", "energy_fast"},
		MealName:        "Chicken salad",
		MealDescription: "grilled, olive oil",
		EnergyLevel:     "high",
	})

	assert.Equal(t, manualSystemPrompt, req.System)
	assert.Contains(t, req.User, `["balance_green","energy_fast"]`)
	assert.Contains(t, req.User, "- meal_name: Chicken salad\n")
	assert.Contains(t, req.User, "- meal_type: null\n")
	assert.Contains(t, req.User, "- energy_level: high\n")
	assert.Contains(t, req.User, "- locale: en-US\n")
	assert.Empty(t, req.Images)
}

func TestScanRequest(t *testing.T) {
	req := scanRequest(ScanInput{
		ImageURL:     "https://img.example.com/meal.jpg",
		MealType:     "lunch",
		EatenAtLocal: "2026-03-01T12:30:00",
		Locale:       "fr-FR",
	})

	assert.Equal(t, scanSystemPrompt, req.System)
	assert.Contains(t, req.User, "Allowed tags (use only tag_key values):\n[]\n")
	assert.Contains(t, req.User, "- meal_type: lunch\n")
	assert.Contains(t, req.User, "- locale: fr-FR\n")
	assert.Contains(t, req.User, "- eaten_at_local: 2026-03-01T12:30:00\n")
	assert.Equal(t, []mealscore.ImageRef{{URL: "https://img.example.com/meal.jpg"}}, req.Images)
}

func TestAnalyzer(t *testing.T) {
	llm := mock.NewLLMClient()
	analyzer := NewAnalyzer(llm, NewRepairer(llm))

	t.Run("manual meal", func(t *testing.T) {
		a, err := analyzer.AnalyzeManualMeal(context.Background(), ManualMealInput{
			AllowedTags: []string{"energy_fast", "balance_green"},
			MealName:    "Garden salad",
		})
		require.NoError(t, err)
		assert.Equal(t, 7.5, a.MetabolicScore)
		assert.Equal(t, []string{"balance_green"}, a.TagKeys)
		assert.Equal(t, mock.ModelVersion, a.ModelVersion)
	})

	t.Run("scan image", func(t *testing.T) {
		a, err := analyzer.AnalyzeScanImage(context.Background(), ScanInput{
			AllowedTags: []string{"digestion_light"},
			ImageURL:    "https://img.example.com/meal.jpg",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"digestion_light"}, a.TagKeys)
	})

	t.Run("missing input", func(t *testing.T) {
		_, err := analyzer.AnalyzeManualMeal(context.Background(), ManualMealInput{})
		assert.Error(t, err)
		_, err = analyzer.AnalyzeScanImage(context.Background(), ScanInput{})
		assert.Error(t, err)
	})
}

func TestAnalyzer_RepairUsesSameGenerator(t *testing.T) {
	llm := mock.NewScriptedClient(
		mock.Reply{Text: "Sure! The meal scores about 7."},
		mock.Reply{Text: validOutput(t, nil)},
	)
	analyzer := NewAnalyzer(llm, NewRepairer(llm))

	a, err := analyzer.AnalyzeManualMeal(context.Background(), ManualMealInput{
		AllowedTags: allowed,
		MealName:    "Soup",
	})
	require.NoError(t, err)
	assert.Equal(t, 7.5, a.MetabolicScore)

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, manualSystemPrompt, reqs[0].System)
	assert.Equal(t, repairSystemPrompt, reqs[1].System)
	assert.Contains(t, reqs[1].User, "Sure! The meal scores about 7.")
}
