package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"

	"github.com/joeshaw/envdecode"

	"mealscore"
	"mealscore/scoring"
	"mealscore/store/sqlite"
	"mealscore/taxonomy"
)

func main() {
	var (
		userID   = flag.String("user", "local-user", "owner of the entity")
		entityID = flag.String("entity", "", "id of the stored assessment to compare")
		kind     = flag.String("kind", string(mealscore.EntityMeal), "entity kind (meal or scan)")
		cohortID = flag.String("cohort", "", "cohort override; defaults to the cohort stored with the entity")
	)
	flag.Parse()

	if *entityID == "" {
		log.Fatal("SETUP: -entity is required")
	}

	var serviceConfig mealscore.ServiceConfig
	if err := envdecode.Decode(&serviceConfig); err != nil {
		log.Fatalf("SETUP: Failed to decode: %s", err)
	}

	ctx := context.Background()

	store, err := sqlite.Open(serviceConfig.DBPath)
	if err != nil {
		log.Fatalf("SETUP: Failed to open store: %s", err)
	}
	defer store.Close()

	snapshot, err := taxonomy.Load(ctx, store)
	if err != nil {
		slog.Error("SETUP: Failed to load tag catalog", "error", err)
		return
	}

	result, err := scoring.NewComparer(store, store, store).Compare(ctx, scoring.CompareRequest{
		UserID:             *userID,
		CohortID:           *cohortID,
		EntityID:           *entityID,
		EntityKind:         mealscore.EntityKind(*kind),
		BaselineWindowDays: serviceConfig.BaselineWindowDays,
		Taxonomy:           snapshot,
	})
	if errors.Is(err, mealscore.ErrEntityNotFound) {
		slog.Error("RESULT: No stored assessment", "entity", *entityID, "kind", *kind)
		return
	}
	if err != nil {
		slog.Error("RESULT: Comparison failed", "error", err)
		return
	}

	output := map[string]any{"comparison": result.Labels()}

	entity, err := store.GetAssessment(ctx, *userID, *entityID, mealscore.EntityKind(*kind))
	if err == nil {
		cohort := *cohortID
		if cohort == "" {
			cohort = entity.CohortID
		}
		if cohort != "" {
			history, err := store.FetchScoredEntities(ctx, mealscore.Scope{CohortID: cohort}, serviceConfig.BaselineWindow())
			if err != nil {
				slog.Error("RESULT: Failed to load cohort history", "error", err)
			} else {
				output["cohort_summary"] = scoring.SummarizeCohort(history, snapshot)
			}
		}
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		slog.Error("RESULT: Failed to encode output", "error", err)
		return
	}
	fmt.Println(string(data))
}
