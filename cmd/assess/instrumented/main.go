package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mealscore"
	"mealscore/generation"
	"mealscore/llm/mock"
	"mealscore/llm/ollama"
	"mealscore/llm/openai"
	"mealscore/scoring"
	"mealscore/slack"
	"mealscore/store/sqlite"
	"mealscore/taxonomy"
	"mealscore/taxonomy/storage"
)

func main() {
	var (
		mealName    = flag.String("meal", "Grilled chicken salad", "meal name")
		description = flag.String("desc", "", "meal description")
		imageURL    = flag.String("image", "", "meal photo URL; switches to the scan workflow")
		mealType    = flag.String("type", "lunch", "meal type")
		energy      = flag.String("energy", "", "self-reported energy level")
		userID      = flag.String("user", "local-user", "user id the assessment is stored under")
		cohortID    = flag.String("cohort", "local-cohort", "cohort id the assessment is stored under")
		channel     = flag.String("channel", "#meals", "slack channel")
		webhook     = flag.String("slack-webhook", "", "slack webhook URL; a local echo server is used when empty")
		offline     = flag.Bool("offline", false, "score with the manual heuristic instead of a model (mock provider only)")
	)
	flag.Parse()

	ctx := context.Background()

	var serviceConfig mealscore.ServiceConfig
	if err := envdecode.Decode(&serviceConfig); err != nil {
		log.Fatalf("SETUP: Failed to decode: %s", err)
	}

	var modelConfig mealscore.ModelConfig
	if serviceConfig.Provider != "mock" {
		if err := envdecode.Decode(&modelConfig); err != nil {
			log.Fatalf("SETUP: Failed to decode: %s", err)
		}
	} else {
		modelConfig.ModelID = mock.ModelVersion
	}

	catalog := taxonomy.NewCatalog(storage.NewFileState(serviceConfig.CatalogPath))
	snapshot, err := taxonomy.Load(ctx, catalog)
	if err != nil {
		slog.Error("SETUP: Failed to load tag catalog", "error", err)
		return
	}
	slog.Info("SETUP: Tag catalog loaded", "path", serviceConfig.CatalogPath, "tags_count", snapshot.Len())

	store, err := sqlite.Open(serviceConfig.DBPath)
	if err != nil {
		slog.Error("SETUP: Failed to open store", "error", err)
		return
	}
	defer store.Close()

	tracerProvider, meterProvider, otelShutdown, err := mealscore.InitOtel(ctx)
	if err != nil {
		slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
		return
	}
	defer func() {
		if err := otelShutdown(ctx); err != nil {
			slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
		}
	}()

	tracer := tracerProvider.Tracer(mealscore.TracerNameRepair)
	meter := meterProvider.Meter(mealscore.TracerNameRepair)

	ctx, span := tracer.Start(ctx, "assess", trace.WithAttributes(
		attribute.String("provider", serviceConfig.Provider),
		attribute.String("model.id", modelConfig.ModelID),
		attribute.Int("model.max_tokens", int(modelConfig.MaxTokens)),
		attribute.Bool("offline", *offline),
	))
	defer span.End()

	var assessment mealscore.Assessment
	if *offline {
		if serviceConfig.Provider != "mock" {
			slog.Error("SETUP: -offline requires PROVIDER=mock", "provider", serviceConfig.Provider)
			return
		}
		assessment = scoring.ScoreManual(strings.TrimSpace(*mealName+" "+*description), *energy)
		slog.Info("RESULT: Scored with manual heuristic", "score", assessment.MetabolicScore)
	} else {
		llm, err := newGenerator(serviceConfig, modelConfig)
		if err != nil {
			slog.Error("SETUP: Failed to create LLM client", "error", err)
			return
		}

		logger, cleanup, err := newAttemptLogger(modelConfig.ModelID)
		if err != nil {
			slog.Error("SETUP: Failed to create attempt logger", "error", err)
			return
		}
		defer func() {
			if err := cleanup(); err != nil {
				slog.Error("SETUP: Failed to flush attempt log", "error", err)
			}
		}()

		repairer := generation.NewInstrumentedRepairer(llm, tracer, meter,
			generation.WithCallTimeout(serviceConfig.GenerationTimeout),
			generation.WithAttemptLogger(logger),
		)
		analyzer := generation.NewAnalyzer(llm, repairer)

		if *imageURL != "" {
			assessment, err = analyzer.AnalyzeScanImage(ctx, generation.ScanInput{
				AllowedTags: snapshot.Keys(),
				ImageURL:    *imageURL,
				MealType:    *mealType,
				EnergyLevel: *energy,
			})
		} else {
			assessment, err = analyzer.AnalyzeManualMeal(ctx, generation.ManualMealInput{
				AllowedTags:     snapshot.Keys(),
				MealName:        *mealName,
				MealDescription: *description,
				MealType:        *mealType,
				EnergyLevel:     *energy,
			})
		}
		if err != nil {
			slog.Error("FAILURE: Error handling assessment", "error", err)
			return
		}
		if assessment.ModelVersion == "" {
			assessment.ModelVersion = modelConfig.ModelID
		}
	}

	kind := mealscore.EntityMeal
	if *imageURL != "" && !*offline {
		kind = mealscore.EntityScan
	}
	saved, err := store.SaveAssessment(ctx, mealscore.ScoredEntity{
		Kind:       kind,
		UserID:     *userID,
		CohortID:   *cohortID,
		Assessment: assessment,
	})
	if err != nil {
		slog.Error("FAILURE: Failed to store assessment", "error", err)
		return
	}

	result, err := scoring.NewComparer(store, store, catalog).Compare(ctx, scoring.CompareRequest{
		UserID:             *userID,
		EntityID:           saved.ID,
		EntityKind:         saved.Kind,
		BaselineWindowDays: serviceConfig.BaselineWindowDays,
		Taxonomy:           snapshot,
	})
	if err != nil {
		slog.Error("FAILURE: Failed to compare assessment", "error", err)
		return
	}

	out, _ := json.MarshalIndent(map[string]any{
		"entity":     saved,
		"comparison": result.Labels(),
	}, "", "  ")
	fmt.Println(string(out))

	webhookURL := *webhook
	if webhookURL == "" {
		testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body := new(bytes.Buffer)
			body.ReadFrom(r.Body) // nolint: errcheck
			slog.Info("Received request",
				"method", r.Method,
				"path", r.URL.Path,
				"body", body.String(),
			)
			w.WriteHeader(http.StatusOK)
		}))
		defer testServer.Close()
		webhookURL = testServer.URL
	}

	slackClient := slack.NewClient(webhookURL, http.DefaultClient)
	if err := slackClient.PostAssessment(ctx, *channel, saved.Assessment, result.Labels()); err != nil {
		slog.Error("Failed to post result to Slack", "error", err)
	}
}

func newGenerator(svc mealscore.ServiceConfig, model mealscore.ModelConfig) (mealscore.TextGenerator, error) {
	switch svc.Provider {
	case "mock":
		return mock.NewLLMClient(), nil
	case "ollama":
		return ollama.NewClient(ollama.ClientOpts{
			BaseEndpoint: svc.OllamaEndpoint,
			ModelID:      model.ModelID,
			MaxTokens:    int(model.MaxTokens),
			HTTPClient:   http.DefaultClient,
		})
	case "openai":
		return openai.NewLLMClient(svc.OpenAIAPIKey, openai.LLMOptions{
			ModelID:     model.ModelID,
			MaxTokens:   int(model.MaxTokens),
			Temperature: model.Temperature,
			TopP:        model.TopP,
		})
	default:
		return nil, fmt.Errorf("unsupported provider %q (want ollama, openai or mock)", svc.Provider)
	}
}

func newAttemptLogger(modelID string) (mealscore.AttemptLogger, func() error, error) {
	logFilePath := mealscore.NewAttemptLogFilePath(modelID)
	if err := os.MkdirAll(filepath.Dir(logFilePath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	logger := mealscore.NewFileAttemptLogger(logFile)
	cleanup := func() error {
		return errors.Join(logger.Flush(), logFile.Close())
	}
	return logger, cleanup, nil
}
