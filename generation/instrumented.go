package generation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"mealscore"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedRepairer is a Repairer that reports spans and metrics.
type InstrumentedRepairer struct {
	*Repairer
	tracer trace.Tracer

	attempts   metric.Int64Counter
	repairs    metric.Int64Counter
	accepted   metric.Int64Counter
	invalid    metric.Int64Counter
	failures   metric.Int64Counter
	rawLength  metric.Int64Gauge
	callTime   metric.Float64Histogram
	runTime    metric.Float64Histogram
	problemsHi metric.Int64Histogram
}

// NewInstrumentedRepairer wraps a repairer around llm with the given tracer and meter.
func NewInstrumentedRepairer(llm mealscore.TextGenerator, tracer trace.Tracer, meter metric.Meter, opts ...Option) *InstrumentedRepairer {
	r := &InstrumentedRepairer{Repairer: NewRepairer(llm, opts...), tracer: tracer}

	r.attempts, _ = meter.Int64Counter("assessment_attempts_total",
		metric.WithDescription("Total number of generation calls made, including repairs"))
	r.repairs, _ = meter.Int64Counter("assessment_repairs_total",
		metric.WithDescription("Total number of repair calls issued"))
	r.accepted, _ = meter.Int64Counter("assessment_accepted_total",
		metric.WithDescription("Total number of assessments accepted, by stage"))
	r.invalid, _ = meter.Int64Counter("assessment_invalid_total",
		metric.WithDescription("Total number of runs that ended with invalid output"))
	r.failures, _ = meter.Int64Counter("generation_failures_total",
		metric.WithDescription("Total number of runs that ended with a failed generation call"))
	r.rawLength, _ = meter.Int64Gauge("generation_raw_length",
		metric.WithDescription("Length of the latest raw generation output"))
	r.callTime, _ = meter.Float64Histogram("generation_call_duration_seconds",
		metric.WithDescription("Duration of individual generation calls in seconds"))
	r.runTime, _ = meter.Float64Histogram("assessment_run_duration_seconds",
		metric.WithDescription("Total duration of a validate-and-repair run in seconds"))
	r.problemsHi, _ = meter.Int64Histogram("assessment_problems_count",
		metric.WithDescription("Number of validation problems found in a rejected output"))

	return r
}

// Run behaves like Repairer.Run and records each stage.
func (r *InstrumentedRepairer) Run(ctx context.Context, attempt AttemptFunc, schema *Schema) (mealscore.Assessment, error) {
	ctx, span := r.tracer.Start(ctx, "InstrumentedRepairer.Run")
	defer span.End()

	slog.Info("REPAIR: Starting instrumented run", "allowed_tags", len(schema.AllowedTags()))
	start := time.Now()

	a, err := r.run(ctx, attempt, schema, r)

	r.runTime.Record(ctx, time.Since(start).Seconds())
	switch {
	case err == nil:
		span.SetAttributes(
			attribute.Float64("assessment.score", a.MetabolicScore),
			attribute.Int("assessment.tags", len(a.TagKeys)),
		)
		span.SetStatus(codes.Ok, "assessment accepted")
	case errors.Is(err, mealscore.ErrGenerationFailure):
		r.failures.Add(ctx, 1)
		span.SetStatus(codes.Error, "generation failure")
		span.RecordError(err)
	default:
		r.invalid.Add(ctx, 1)
		span.SetStatus(codes.Error, "invalid generation output")
		span.RecordError(err)
	}
	return a, err
}

func (r *InstrumentedRepairer) observe(ctx context.Context, rec mealscore.AttemptLog) {
	stageAttr := metric.WithAttributes(attribute.String("stage", rec.Stage))

	r.attempts.Add(ctx, 1, stageAttr)
	if rec.Stage == stageRepairAttempt.String() {
		r.repairs.Add(ctx, 1)
	}
	r.rawLength.Record(ctx, int64(rec.RawLength), stageAttr)
	r.callTime.Record(ctx, rec.Duration.Seconds(), stageAttr)

	if rec.Accepted {
		r.accepted.Add(ctx, 1, stageAttr)
	}
	if len(rec.Problems) > 0 {
		r.problemsHi.Record(ctx, int64(len(rec.Problems)), stageAttr)
	}

	trace.SpanFromContext(ctx).AddEvent("generation.attempt", trace.WithAttributes(
		attribute.String("stage", rec.Stage),
		attribute.Bool("accepted", rec.Accepted),
		attribute.Int("raw_length", rec.RawLength),
		attribute.Int("problems", len(rec.Problems)),
	))
}
