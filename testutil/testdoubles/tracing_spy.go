package testdoubles

import (
	"context"
	"sync"

	"github.com/versioned-streams/eventstore-go/eventstore/postgresengine"
)

// SpanRecord represents one finished span with everything the engine reported.
type SpanRecord struct {
	Name       string
	StartAttrs map[string]string
	Status     string
	Attributes map[string]string
}

// SpanContextSpy is the span handed out by TracingSpy; it accumulates the
// status and attributes the engine sets during the operation.
type SpanContextSpy struct {
	mu         sync.Mutex
	name       string
	startAttrs map[string]string
	status     string
	attributes map[string]string
}

// SetStatus implements the SpanContext interface.
func (s *SpanContextSpy) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = status
}

// AddAttribute implements the SpanContext interface.
func (s *SpanContextSpy) AddAttribute(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attributes[key] = value
}

// TracingSpy is a TracingCollector implementation that captures spans for testing.
type TracingSpy struct {
	mu    sync.Mutex
	spans []SpanRecord
}

// NewTracingSpy creates a new TracingSpy.
func NewTracingSpy() *TracingSpy {
	return &TracingSpy{
		spans: make([]SpanRecord, 0),
	}
}

// StartSpan implements the TracingCollector interface.
func (t *TracingSpy) StartSpan(
	ctx context.Context,
	name string,
	attrs map[string]string,
) (context.Context, postgresengine.SpanContext) {

	return ctx, &SpanContextSpy{
		name:       name,
		startAttrs: copyLabels(attrs),
		attributes: make(map[string]string),
	}
}

// FinishSpan implements the TracingCollector interface.
func (t *TracingSpy) FinishSpan(spanCtx postgresengine.SpanContext, status string, attrs map[string]string) {
	spy, ok := spanCtx.(*SpanContextSpy)
	if !ok {
		return
	}

	spy.mu.Lock()
	finished := SpanRecord{
		Name:       spy.name,
		StartAttrs: copyLabels(spy.startAttrs),
		Status:     status,
		Attributes: copyLabels(spy.attributes),
	}
	for key, value := range attrs {
		finished.Attributes[key] = value
	}
	if finished.Status == "" {
		finished.Status = spy.status
	}
	spy.mu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.spans = append(t.spans, finished)
}

// Spans returns a copy of all finished spans.
func (t *TracingSpy) Spans() []SpanRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	spans := make([]SpanRecord, len(t.spans))
	copy(spans, t.spans)

	return spans
}

// SpanCount returns how many spans finished with the given name.
func (t *TracingSpy) SpanCount(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := 0
	for _, span := range t.spans {
		if span.Name == name {
			count++
		}
	}

	return count
}

// HasSpanWithStatus reports whether a span with the given name finished with the given status.
func (t *TracingSpy) HasSpanWithStatus(name, status string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, span := range t.spans {
		if span.Name == name && span.Status == status {
			return true
		}
	}

	return false
}

// Reset discards all captured spans.
func (t *TracingSpy) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.spans = t.spans[:0]
}
