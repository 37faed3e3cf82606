// Package sqlite persists scored entities and the tag catalog in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"mealscore"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS tag_definitions (
    tag_key TEXT PRIMARY KEY,
    display_name TEXT NOT NULL,
    category TEXT NOT NULL,
    sort_order INTEGER NOT NULL DEFAULT 0,
    is_active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS assessments (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    user_id TEXT NOT NULL,
    cohort_id TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_user ON assessments(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_assessments_cohort ON assessments(cohort_id, created_at);
`

type Store struct {
	db  *sql.DB
	now func() time.Time
}

type Option func(*Store)

// WithClock replaces time.Now for window calculations and default timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (creating if needed) the database at dbPath.
func Open(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveAssessment stores e and returns it with its ID and timestamp filled in.
func (s *Store) SaveAssessment(ctx context.Context, e mealscore.ScoredEntity) (mealscore.ScoredEntity, error) {
	ctx, span := otel.Tracer(mealscore.TracerNameStore).Start(ctx, "Store.SaveAssessment")
	defer span.End()

	if strings.TrimSpace(e.UserID) == "" {
		return mealscore.ScoredEntity{}, errors.New("user id is required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Kind == "" {
		e.Kind = mealscore.EntityMeal
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	e.CreatedAt = e.CreatedAt.UTC().Truncate(time.Millisecond)

	payload, err := json.Marshal(e.Assessment)
	if err != nil {
		return mealscore.ScoredEntity{}, fmt.Errorf("failed to encode assessment: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO assessments (id, kind, user_id, cohort_id, created_at, payload)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            kind = excluded.kind,
            user_id = excluded.user_id,
            cohort_id = excluded.cohort_id,
            created_at = excluded.created_at,
            payload = excluded.payload
    `, e.ID, string(e.Kind), e.UserID, e.CohortID, e.CreatedAt.UnixMilli(), string(payload))
	if err != nil {
		return mealscore.ScoredEntity{}, fmt.Errorf("failed to insert assessment: %w", err)
	}

	span.SetAttributes(attribute.String("entity.id", e.ID), attribute.String("entity.kind", string(e.Kind)))
	return e, nil
}

// GetAssessment implements mealscore.EntityReader. An empty userID matches
// any owner.
func (s *Store) GetAssessment(ctx context.Context, userID, entityID string, kind mealscore.EntityKind) (mealscore.ScoredEntity, error) {
	ctx, span := otel.Tracer(mealscore.TracerNameStore).Start(ctx, "Store.GetAssessment")
	defer span.End()

	query := `SELECT id, kind, user_id, cohort_id, created_at, payload FROM assessments WHERE id = ? AND kind = ?`
	args := []any{entityID, string(kind)}
	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}

	e, err := scanEntity(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return mealscore.ScoredEntity{}, fmt.Errorf("%s %s: %w", kind, entityID, mealscore.ErrEntityNotFound)
	}
	if err != nil {
		return mealscore.ScoredEntity{}, fmt.Errorf("failed to load assessment: %w", err)
	}
	return e, nil
}

// FetchScoredEntities implements mealscore.HistoryReader. Results are
// newest first.
func (s *Store) FetchScoredEntities(ctx context.Context, scope mealscore.Scope, window time.Duration) ([]mealscore.Assessment, error) {
	entities, err := s.ListScoredEntities(ctx, scope, window)
	if err != nil {
		return nil, err
	}
	out := make([]mealscore.Assessment, len(entities))
	for i, e := range entities {
		out[i] = e.Assessment
	}
	return out, nil
}

// ListScoredEntities returns the stored entities in scope created within
// window of now, newest first.
func (s *Store) ListScoredEntities(ctx context.Context, scope mealscore.Scope, window time.Duration) ([]mealscore.ScoredEntity, error) {
	ctx, span := otel.Tracer(mealscore.TracerNameStore).Start(ctx, "Store.ListScoredEntities")
	defer span.End()

	if scope.UserID == "" && scope.CohortID == "" {
		return nil, errors.New("scope needs a user or a cohort")
	}

	query := `SELECT id, kind, user_id, cohort_id, created_at, payload FROM assessments WHERE 1=1`
	var args []any
	if scope.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, scope.UserID)
	}
	if scope.CohortID != "" {
		query += " AND cohort_id = ?"
		args = append(args, scope.CohortID)
	}
	if scope.ExcludeID != "" {
		query += " AND id != ?"
		args = append(args, scope.ExcludeID)
	}
	if window > 0 {
		query += " AND created_at >= ?"
		args = append(args, s.now().Add(-window).UnixMilli())
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assessments: %w", err)
	}
	defer rows.Close()

	var out []mealscore.ScoredEntity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assessment: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read assessments: %w", err)
	}

	span.SetAttributes(attribute.Int("population.size", len(out)))
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (mealscore.ScoredEntity, error) {
	var (
		e         mealscore.ScoredEntity
		kind      string
		createdAt int64
		payload   string
	)
	if err := row.Scan(&e.ID, &kind, &e.UserID, &e.CohortID, &createdAt, &payload); err != nil {
		return mealscore.ScoredEntity{}, err
	}
	e.Kind = mealscore.EntityKind(kind)
	e.CreatedAt = time.UnixMilli(createdAt).UTC()
	if err := json.Unmarshal([]byte(payload), &e.Assessment); err != nil {
		return mealscore.ScoredEntity{}, fmt.Errorf("decode payload of %s: %w", e.ID, err)
	}
	return e, nil
}

// UpsertTag adds or replaces a catalog entry.
func (s *Store) UpsertTag(ctx context.Context, def mealscore.TagDefinition, active bool) error {
	if !def.Category.Valid() {
		return fmt.Errorf("tag %q has unknown category %q", def.TagKey, def.Category)
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO tag_definitions (tag_key, display_name, category, sort_order, is_active)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(tag_key) DO UPDATE SET
            display_name = excluded.display_name,
            category = excluded.category,
            sort_order = excluded.sort_order,
            is_active = excluded.is_active
    `, def.TagKey, def.DisplayName, string(def.Category), def.SortOrder, active)
	if err != nil {
		return fmt.Errorf("failed to upsert tag: %w", err)
	}
	return nil
}

// ActiveTags implements mealscore.TagCatalog.
func (s *Store) ActiveTags(ctx context.Context) ([]mealscore.TagDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT tag_key, display_name, category, sort_order
        FROM tag_definitions
        WHERE is_active = 1
        ORDER BY sort_order, tag_key
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var defs []mealscore.TagDefinition
	for rows.Next() {
		var d mealscore.TagDefinition
		var category string
		if err := rows.Scan(&d.TagKey, &d.DisplayName, &category, &d.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		d.Category = mealscore.Category(category)
		defs = append(defs, d)
	}
	return defs, rows.Err()
}
