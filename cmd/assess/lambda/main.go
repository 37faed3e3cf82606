package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mealscore"
	"mealscore/generation"
	"mealscore/llm/bedrock"
	"mealscore/taxonomy"
	"mealscore/taxonomy/storage"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joeshaw/envdecode"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Params selects the workflow: a scan when image_url is set, otherwise a
// manual meal.
type Params struct {
	MealName        string `json:"meal_name"`
	MealDescription string `json:"meal_description"`
	ImageURL        string `json:"image_url"`
	MealType        string `json:"meal_type"`
	EnergyLevel     string `json:"energy_level"`
	EatenAtLocal    string `json:"eaten_at_local"`
	Locale          string `json:"locale"`
}

type Results struct {
	Assessment mealscore.Assessment `json:"assessment"`
}

func main() {
	fn := func(ctx context.Context, params Params) (Results, error) {
		var modelConfig mealscore.ModelConfig
		if err := envdecode.Decode(&modelConfig); err != nil {
			return Results{}, fmt.Errorf("failed to decode model config: %w", err)
		}

		var serviceConfig mealscore.ServiceConfig
		if err := envdecode.Decode(&serviceConfig); err != nil {
			return Results{}, fmt.Errorf("failed to decode service config: %w", err)
		}
		if serviceConfig.CatalogS3Bucket == "" {
			return Results{}, errors.New("missing S3 config: CATALOG_S3_BUCKET must be set")
		}

		awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRetryMaxAttempts(5))
		if err != nil {
			return Results{}, fmt.Errorf("failed to load AWS config: %w", err)
		}

		catalog := taxonomy.NewCatalog(storage.NewS3State(s3.NewFromConfig(awsCfg), serviceConfig.CatalogS3Bucket, serviceConfig.CatalogS3Key))
		snapshot, err := taxonomy.Load(ctx, catalog)
		if err != nil {
			slog.Error("SETUP: Failed to load tag catalog from S3", "error", err)
			return Results{}, err
		}
		slog.Info("SETUP: Tag catalog loaded from S3", "tags_count", snapshot.Len())

		llm := bedrock.NewLLMClient(bedrockruntime.NewFromConfig(awsCfg), nil, bedrock.LLMOptions{
			ModelID:     modelConfig.ModelID,
			MaxTokens:   modelConfig.MaxTokens,
			Temperature: modelConfig.Temperature,
			TopP:        modelConfig.TopP,
		})

		tracerProvider, _, otelShutdown, err := mealscore.InitOtel(ctx)
		if err != nil {
			slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
			return Results{}, err
		}
		defer func() {
			if err := otelShutdown(ctx); err != nil {
				slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
			}
		}()

		ctx, span := tracerProvider.Tracer(mealscore.TracerNameRepair).Start(ctx, "assess", trace.WithAttributes(
			attribute.String("model.id", modelConfig.ModelID),
			attribute.Bool("scan", params.ImageURL != ""),
		))
		defer span.End()

		repairer := generation.NewRepairer(llm,
			generation.WithCallTimeout(serviceConfig.GenerationTimeout),
			generation.WithAttemptLogger(mealscore.NewStdoutAttemptLogger()),
		)
		analyzer := generation.NewAnalyzer(llm, repairer)

		var assessment mealscore.Assessment
		if params.ImageURL != "" {
			assessment, err = analyzer.AnalyzeScanImage(ctx, generation.ScanInput{
				AllowedTags:  snapshot.Keys(),
				ImageURL:     params.ImageURL,
				MealType:     params.MealType,
				EnergyLevel:  params.EnergyLevel,
				EatenAtLocal: params.EatenAtLocal,
				Locale:       params.Locale,
			})
		} else {
			assessment, err = analyzer.AnalyzeManualMeal(ctx, generation.ManualMealInput{
				AllowedTags:     snapshot.Keys(),
				MealName:        params.MealName,
				MealDescription: params.MealDescription,
				MealType:        params.MealType,
				EnergyLevel:     params.EnergyLevel,
				Locale:          params.Locale,
			})
		}
		switch {
		case errors.Is(err, mealscore.ErrInvalidGenerationOutput):
			slog.Error("RESULT: Assessment rejected after repair", "error", err)
			return Results{}, mealscore.ErrInvalidGenerationOutput
		case err != nil:
			slog.Error("RESULT: Error handling assessment", "error", err)
			return Results{}, err
		}

		if assessment.ModelVersion == "" {
			assessment.ModelVersion = modelConfig.ModelID
		}
		return Results{Assessment: assessment}, nil
	}

	lambda.Start(fn)
}
