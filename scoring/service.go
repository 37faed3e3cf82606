package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mealscore"
	"mealscore/taxonomy"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const defaultBaselineDays = 30

// CompareRequest identifies the entity to compare and its baseline window.
type CompareRequest struct {
	UserID string
	// CohortID overrides the cohort stored with the entity.
	CohortID           string
	EntityID           string
	EntityKind         mealscore.EntityKind
	BaselineWindowDays int
	// Taxonomy is used as-is when set; otherwise a snapshot is read from the
	// catalog for this call only.
	Taxonomy *taxonomy.Snapshot
}

func (r CompareRequest) window() time.Duration {
	days := r.BaselineWindowDays
	if days <= 0 {
		days = defaultBaselineDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// Comparer loads an entity and its populations and runs the engine.
type Comparer struct {
	entities mealscore.EntityReader
	history  mealscore.HistoryReader
	catalog  mealscore.TagCatalog
	engine   *Engine
}

func NewComparer(entities mealscore.EntityReader, history mealscore.HistoryReader, catalog mealscore.TagCatalog) *Comparer {
	return &Comparer{
		entities: entities,
		history:  history,
		catalog:  catalog,
		engine:   NewEngine(nil),
	}
}

// Compare returns the per-dimension standing of the requested entity.
// A missing entity yields mealscore.ErrEntityNotFound.
func (c *Comparer) Compare(ctx context.Context, req CompareRequest) (mealscore.ComparisonResult, error) {
	ctx, span := otel.Tracer(mealscore.TracerNameCompare).Start(ctx, "Comparer.Compare")
	defer span.End()

	kind := req.EntityKind
	if kind == "" {
		kind = mealscore.EntityMeal
	}

	entity, err := c.entities.GetAssessment(ctx, req.UserID, req.EntityID, kind)
	if err != nil {
		if errors.Is(err, mealscore.ErrEntityNotFound) {
			return mealscore.ComparisonResult{}, err
		}
		return mealscore.ComparisonResult{}, fmt.Errorf("load %s %s: %w", kind, req.EntityID, err)
	}

	snap := req.Taxonomy
	if snap == nil {
		if snap, err = taxonomy.Load(ctx, c.catalog); err != nil {
			return mealscore.ComparisonResult{}, fmt.Errorf("load taxonomy: %w", err)
		}
	}

	cohortID := req.CohortID
	if cohortID == "" {
		cohortID = entity.CohortID
	}
	window := req.window()

	var self, cohort []mealscore.Assessment
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		self, err = c.history.FetchScoredEntities(egCtx, mealscore.Scope{UserID: req.UserID, ExcludeID: entity.ID}, window)
		if err != nil {
			return fmt.Errorf("fetch self history: %w", err)
		}
		return nil
	})
	if cohortID != "" {
		eg.Go(func() error {
			var err error
			cohort, err = c.history.FetchScoredEntities(egCtx, mealscore.Scope{CohortID: cohortID, ExcludeID: entity.ID}, window)
			if err != nil {
				return fmt.Errorf("fetch cohort history: %w", err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return mealscore.ComparisonResult{}, err
	}

	span.SetAttributes(
		attribute.Int("compare.self_size", len(self)),
		attribute.Int("compare.cohort_size", len(cohort)),
	)
	slog.Info("COMPARE: Populations loaded",
		"entity_id", entity.ID,
		"kind", kind,
		"self_size", len(self),
		"cohort_size", len(cohort),
		"window_days", int(window.Hours()/24),
		"tags", snap.Len(),
	)

	return c.engine.Compare(entity.Assessment, self, cohort, snap), nil
}
