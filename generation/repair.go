// Package generation turns untrusted model output into validated
// assessments. A run makes one generation call and at most one repair call.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mealscore"
	"mealscore/scoring"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
)

type stage int

const (
	stageFirstAttempt stage = iota
	stageRepairAttempt
)

func (s stage) String() string {
	if s == stageRepairAttempt {
		return "repair_attempt"
	}
	return "first_attempt"
}

// AttemptFunc performs the first generation call and returns raw text.
type AttemptFunc func(ctx context.Context) (string, error)

type RepairerOptions struct {
	// CallTimeout bounds each model call. Zero means the caller's context
	// is the only bound.
	CallTimeout time.Duration
	Logger      mealscore.AttemptLogger
}

type Option func(*RepairerOptions)

func WithCallTimeout(d time.Duration) Option {
	return func(o *RepairerOptions) { o.CallTimeout = d }
}

func WithAttemptLogger(l mealscore.AttemptLogger) Option {
	return func(o *RepairerOptions) { o.Logger = l }
}

// Repairer validates generator output and issues the single repair call
// when the first output is unusable.
type Repairer struct {
	llm  mealscore.TextGenerator
	opts RepairerOptions
}

// NewRepairer creates a repairer that sends repair requests to llm.
func NewRepairer(llm mealscore.TextGenerator, opts ...Option) *Repairer {
	o := RepairerOptions{Logger: &mealscore.NoOpAttemptLogger{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = &mealscore.NoOpAttemptLogger{}
	}
	return &Repairer{llm: llm, opts: o}
}

// stageObserver sees every attempt record as it is produced.
type stageObserver interface {
	observe(ctx context.Context, rec mealscore.AttemptLog)
}

// Run executes attempt, validates the result against schema and, on a
// content failure, makes exactly one repair call.
//
// A failed first call returns mealscore.ErrGenerationFailure. A failed repair
// call or a rejected repair output returns mealscore.ErrInvalidGenerationOutput.
// Deadlines and cancellation at either stage return ErrGenerationFailure.
func (r *Repairer) Run(ctx context.Context, attempt AttemptFunc, schema *Schema) (mealscore.Assessment, error) {
	ctx, span := otel.Tracer(mealscore.TracerNameRepair).Start(ctx, "Repairer.Run")
	defer span.End()
	return r.run(ctx, attempt, schema, nil)
}

func (r *Repairer) run(ctx context.Context, attempt AttemptFunc, schema *Schema, obs stageObserver) (mealscore.Assessment, error) {
	runID := uuid.NewString()
	current := stageFirstAttempt
	var bad string

	for {
		call := attempt
		if current == stageRepairAttempt {
			req := RepairRequest(schema, bad)
			call = func(ctx context.Context) (string, error) {
				return r.llm.Generate(ctx, req)
			}
		}

		rec := mealscore.AttemptLog{RunID: runID, Stage: current.String(), Timestamp: time.Now()}
		raw, err := r.invoke(ctx, call)
		rec.Duration = time.Since(rec.Timestamp)
		rec.RawLength = len(raw)

		if err != nil {
			rec.Error = err.Error()
			r.record(ctx, rec, obs)
			slog.Warn("REPAIR: Generation call failed", "run_id", runID, "stage", current, "error", err)
			if current == stageFirstAttempt || isDeadline(ctx, err) {
				return mealscore.Assessment{}, fmt.Errorf("%w: %s: %w", mealscore.ErrGenerationFailure, current, err)
			}
			return mealscore.Assessment{}, fmt.Errorf("%w: repair call failed", mealscore.ErrInvalidGenerationOutput)
		}

		a, verr := schema.Validate(raw)
		if verr == nil {
			a.MetabolicScore = scoring.ClampScore(a.MetabolicScore)
			rec.Accepted = true
			r.record(ctx, rec, obs)
			slog.Info("REPAIR: Output accepted", "run_id", runID, "stage", current, "score", a.MetabolicScore, "tags", len(a.TagKeys))
			return a, nil
		}

		rec.Problems = problemsOf(verr)
		rec.Error = "content validation failed"
		r.record(ctx, rec, obs)
		slog.Info("REPAIR: Output rejected", "run_id", runID, "stage", current, "problems", rec.Problems)

		switch current {
		case stageFirstAttempt:
			bad = raw
			current = stageRepairAttempt
		case stageRepairAttempt:
			return mealscore.Assessment{}, fmt.Errorf("%w: repair output rejected", mealscore.ErrInvalidGenerationOutput)
		}
	}
}

func (r *Repairer) invoke(ctx context.Context, call AttemptFunc) (string, error) {
	if r.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.CallTimeout)
		defer cancel()
	}
	return call(ctx)
}

func (r *Repairer) record(ctx context.Context, rec mealscore.AttemptLog, obs stageObserver) {
	if err := r.opts.Logger.LogAttempt(rec); err != nil {
		slog.Error("Failed to log generation attempt", "error", err, "stage", rec.Stage)
	}
	if obs != nil {
		obs.observe(ctx, rec)
	}
}

func isDeadline(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func problemsOf(err error) []string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Problems
	}
	return []string{err.Error()}
}

// ValidateAndRepair builds a schema for allowedTags and runs generate through
// a repairer that sends its repair request to llm.
func ValidateAndRepair(ctx context.Context, llm mealscore.TextGenerator, generate AttemptFunc, allowedTags []string, opts ...Option) (mealscore.Assessment, error) {
	schema, err := NewSchema(allowedTags)
	if err != nil {
		return mealscore.Assessment{}, fmt.Errorf("%w: %w", mealscore.ErrGenerationFailure, err)
	}
	return NewRepairer(llm, opts...).Run(ctx, generate, schema)
}
