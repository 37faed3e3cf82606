package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mealscore"
)

// Runner is satisfied by Repairer and InstrumentedRepairer.
type Runner interface {
	Run(ctx context.Context, attempt AttemptFunc, schema *Schema) (mealscore.Assessment, error)
}

// Analyzer runs the manual-meal and photo-scan workflows.
type Analyzer struct {
	llm    mealscore.TextGenerator
	runner Runner
}

func NewAnalyzer(llm mealscore.TextGenerator, runner Runner) *Analyzer {
	return &Analyzer{llm: llm, runner: runner}
}

// AnalyzeManualMeal assesses a typed-in meal.
func (a *Analyzer) AnalyzeManualMeal(ctx context.Context, in ManualMealInput) (mealscore.Assessment, error) {
	if strings.TrimSpace(in.MealName) == "" {
		return mealscore.Assessment{}, errors.New("meal name is required")
	}
	return a.analyze(ctx, in.AllowedTags, manualRequest(in))
}

// AnalyzeScanImage assesses a meal photo.
func (a *Analyzer) AnalyzeScanImage(ctx context.Context, in ScanInput) (mealscore.Assessment, error) {
	if strings.TrimSpace(in.ImageURL) == "" {
		return mealscore.Assessment{}, errors.New("image url is required")
	}
	return a.analyze(ctx, in.AllowedTags, scanRequest(in))
}

func (a *Analyzer) analyze(ctx context.Context, allowed []string, req mealscore.GenerationRequest) (mealscore.Assessment, error) {
	schema, err := NewSchema(allowed)
	if err != nil {
		return mealscore.Assessment{}, fmt.Errorf("%w: build schema: %w", mealscore.ErrGenerationFailure, err)
	}
	return a.runner.Run(ctx, func(ctx context.Context) (string, error) {
		return a.llm.Generate(ctx, req)
	}, schema)
}
