package eventstore

import (
	"context"
	"time"
)

// Logger receives the operational log lines of an engine: executed SQL,
// append and read outcomes, warnings, errors. slog satisfies it directly.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MetricsCollector receives engine timings and counts. The interfaces here
// are deliberately backend-free so the core packages stay import-light;
// the oteladapters package provides the OpenTelemetry implementations.
type MetricsCollector interface {
	RecordDuration(metric string, duration time.Duration, labels map[string]string)
	IncrementCounter(metric string, labels map[string]string)
	RecordValue(metric string, value float64, labels map[string]string)
}

// ContextualMetricsCollector adds context-carrying variants so samples can
// correlate with the active trace. Optional: engines prefer it when the
// configured collector implements it and fall back to MetricsCollector
// otherwise.
type ContextualMetricsCollector interface {
	MetricsCollector
	RecordDurationContext(ctx context.Context, metric string, duration time.Duration, labels map[string]string)
	IncrementCounterContext(ctx context.Context, metric string, labels map[string]string)
	RecordValueContext(ctx context.Context, metric string, value float64, labels map[string]string)
}

// SpanContext is the handle an engine holds on an open span until the
// operation finishes.
type SpanContext interface {
	SetStatus(status string)
	AddAttribute(key, value string)
}

// TracingCollector opens and closes one span per store operation. Engines
// pass status strings like "success", "error" and "conflict"; the
// implementation decides how to map them onto its backend.
type TracingCollector interface {
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, SpanContext)
	FinishSpan(spanCtx SpanContext, status string, attrs map[string]string)
}

// ContextualLogger is a Logger whose records carry the trace and span ids
// of the context they are logged under.
type ContextualLogger interface {
	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}
