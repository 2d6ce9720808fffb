package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/furrowlabs/furrow/pkg/engine"
)

// Tracer emits one span per run with a child span per step. Step spans are
// reconstructed from recorded timestamps, so they line up with the audit
// trail exactly.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer

	runCtx  context.Context
	runSpan trace.Span
}

// NewTracer creates a tracer writing spans to w in stdouttrace format.
func NewTracer(w io.Writer, serviceVersion string) (*Tracer, error) {
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", "furrow"),
		attribute.String("service.version", serviceVersion),
	)

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSyncer(exporter),
	)

	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer("furrow"),
	}, nil
}

// StartRun opens the root span. The returned context carries it for step
// spans.
func (t *Tracer) StartRun(ctx context.Context, instance string) context.Context {
	t.runCtx, t.runSpan = t.tracer.Start(ctx, "provision.run",
		trace.WithAttributes(attribute.String("instance", instance)))
	return t.runCtx
}

// StepFinished implements engine.Observer.
func (t *Tracer) StepFinished(result engine.StepResult) {
	if t.runCtx == nil {
		return
	}
	_, span := t.tracer.Start(t.runCtx, "provision.step",
		trace.WithTimestamp(result.StartedAt),
		trace.WithAttributes(
			attribute.String("step", result.Step),
			attribute.String("outcome", string(result.Outcome)),
			attribute.Int("attempts", result.Attempts),
		))
	if result.Outcome == engine.OutcomeFailed {
		span.SetStatus(codes.Error, result.Detail)
	}
	span.End(trace.WithTimestamp(result.CompletedAt))
}

// RunFinished implements engine.Observer.
func (t *Tracer) RunFinished(report *engine.RunReport) {
	if t.runSpan == nil {
		return
	}
	t.runSpan.SetAttributes(
		attribute.String("run_id", report.ID),
		attribute.String("state", string(report.State)),
		attribute.Int("applied", report.Summary.Applied),
		attribute.Int("skipped", report.Summary.Skipped),
		attribute.Int("failed", report.Summary.Failed),
	)
	if !report.Succeeded() {
		t.runSpan.SetStatus(codes.Error, string(report.State))
	}
	t.runSpan.End()
}

// Shutdown flushes pending spans.
func (t *Tracer) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}
