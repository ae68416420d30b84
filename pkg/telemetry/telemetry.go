package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "flagkit"

// Pipeline holds the instruments for propagation cycles.
type Pipeline struct {
	tracer trace.Tracer

	steps         metric.Int64Counter
	cycleDuration metric.Float64Histogram
	connections   metric.Int64Counter
}

// NewPipeline creates the pipeline instruments.
func NewPipeline() (*Pipeline, error) {
	meter := otel.Meter(scopeName)

	p := &Pipeline{tracer: otel.Tracer(scopeName)}

	var err error
	p.steps, err = meter.Int64Counter("flagkit.propagate.steps")
	if err != nil {
		return nil, err
	}

	p.cycleDuration, err = meter.Float64Histogram("flagkit.propagate.cycle.duration",
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	p.connections, err = meter.Int64Counter("flagkit.propagate.connections")
	if err != nil {
		return nil, err
	}

	return p, nil
}

// StartCycle opens a span for one propagation cycle. Safe on a nil
// Pipeline, which returns the context's (possibly no-op) span.
func (p *Pipeline) StartCycle(ctx context.Context, orgID string) (context.Context, trace.Span) {
	if p == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return p.tracer.Start(ctx, "propagate.cycle",
		trace.WithAttributes(attribute.String("org.id", orgID)))
}

// RecordStep counts one step outcome within a cycle.
func (p *Pipeline) RecordStep(ctx context.Context, name string, ok bool) {
	if p == nil {
		return
	}
	p.steps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step", name),
		attribute.Bool("ok", ok),
	))
}

// RecordCycle records the cycle duration and how many connections it touched.
func (p *Pipeline) RecordCycle(ctx context.Context, orgID string, elapsed time.Duration, connections int) {
	if p == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("org.id", orgID))
	p.cycleDuration.Record(ctx, elapsed.Seconds(), attrs)
	p.connections.Add(ctx, int64(connections), attrs)
}
