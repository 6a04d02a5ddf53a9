package oteladapters

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/versioned-streams/eventstore-go/eventstore"
)

// TracingCollector creates OpenTelemetry spans for eventstore operations.
// The engines start one span per operation (eventstore.append, eventstore.read
// and so on) and finish it with a status string; this adapter translates both
// ends into the OTel tracing API.
type TracingCollector struct {
	tracer trace.Tracer
}

// NewTracingCollector creates a collector on the supplied tracer.
func NewTracingCollector(tracer trace.Tracer) *TracingCollector {
	return &TracingCollector{tracer: tracer}
}

// StartSpan implements eventstore.TracingCollector. The returned context
// carries the span so nested operations become child spans.
func (t *TracingCollector) StartSpan(
	ctx context.Context,
	name string,
	attrs map[string]string,
) (context.Context, eventstore.SpanContext) {
	spanCtx, span := t.tracer.Start(ctx, name, trace.WithAttributes(spanAttributes(attrs)...))

	return spanCtx, &otelSpan{span: span}
}

// FinishSpan implements eventstore.TracingCollector. Span handles not
// created by this collector are ignored.
func (t *TracingCollector) FinishSpan(spanCtx eventstore.SpanContext, status string, attrs map[string]string) {
	handle, ok := spanCtx.(*otelSpan)
	if !ok {
		return
	}

	handle.span.SetAttributes(spanAttributes(attrs)...)
	handle.applyStatus(status)
	handle.span.End()
}

var _ eventstore.TracingCollector = (*TracingCollector)(nil)

// otelSpan adapts a trace.Span to the eventstore.SpanContext interface.
type otelSpan struct {
	span trace.Span
}

// SetStatus implements eventstore.SpanContext.
func (s *otelSpan) SetStatus(status string) {
	s.applyStatus(status)
}

// AddAttribute implements eventstore.SpanContext.
func (s *otelSpan) AddAttribute(key, value string) {
	s.span.SetAttributes(attribute.String(key, value))
}

// applyStatus maps the status strings used by the engines onto span status
// codes. Strings outside the known set are kept as a plain attribute
// instead of being guessed into Ok or Error.
func (s *otelSpan) applyStatus(status string) {
	switch status {
	case "success", "ok", "completed":
		s.span.SetStatus(codes.Ok, "")
	case "error", "failed", "failure":
		s.span.SetStatus(codes.Error, "Operation failed")
	case "conflict":
		s.span.SetStatus(codes.Error, "Concurrency conflict")
	case "cancelled", "canceled":
		s.span.SetStatus(codes.Error, "Operation cancelled")
	case "timeout":
		s.span.SetStatus(codes.Error, "Operation timed out")
	default:
		s.span.SetAttributes(attribute.String("status", status))
	}
}

var _ eventstore.SpanContext = (*otelSpan)(nil)

// spanAttributes converts a string attribute map into OTel attributes.
func spanAttributes(attrs map[string]string) []attribute.KeyValue {
	converted := make([]attribute.KeyValue, 0, len(attrs))

	for key, value := range attrs {
		converted = append(converted, attribute.String(key, value))
	}

	return converted
}
