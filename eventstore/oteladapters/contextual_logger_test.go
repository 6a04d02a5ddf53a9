package oteladapters_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/log/noop"

	"github.com/versioned-streams/eventstore-go/eventstore"
	"github.com/versioned-streams/eventstore-go/eventstore/oteladapters"
)

func Test_NewSlogBridgeLogger_SatisfiesContextualLogger(t *testing.T) {
	// act
	logger := oteladapters.NewSlogBridgeLogger("eventstore")

	// assert
	assert.NotNil(t, logger)
	assert.Implements(t, (*eventstore.ContextualLogger)(nil), logger)
}

func Test_SlogBridgeLogger_EmitsAllLevels(t *testing.T) {
	// setup
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := oteladapters.NewSlogBridgeLoggerWithHandler(handler)
	ctx := context.Background()

	// act
	logger.DebugContext(ctx, "sql executed: append")
	logger.InfoContext(ctx, "events appended")
	logger.WarnContext(ctx, "snapshot missing")
	logger.ErrorContext(ctx, "concurrency conflict")

	// assert
	output := buf.String()
	assert.Contains(t, output, "sql executed: append")
	assert.Contains(t, output, "events appended")
	assert.Contains(t, output, "snapshot missing")
	assert.Contains(t, output, "concurrency conflict")
	assert.Contains(t, output, "level=DEBUG")
	assert.Contains(t, output, "level=INFO")
	assert.Contains(t, output, "level=WARN")
	assert.Contains(t, output, "level=ERROR")
}

func Test_SlogBridgeLogger_CarriesKeyValueArguments(t *testing.T) {
	// setup
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, nil)
	logger := oteladapters.NewSlogBridgeLoggerWithHandler(handler)

	// act
	logger.InfoContext(context.Background(),
		"events appended",
		"stream_id", "workflow-0195e1a2",
		"event_count", 3,
		"new_version", 7,
	)

	// assert
	output := buf.String()
	assert.Contains(t, output, "stream_id=workflow-0195e1a2")
	assert.Contains(t, output, "event_count=3")
	assert.Contains(t, output, "new_version=7")
}

func Test_SlogBridgeLogger_WithGlobalProvider_DoesNotPanic(t *testing.T) {
	// setup: the default global LoggerProvider is a no-op
	logger := oteladapters.NewSlogBridgeLogger("eventstore")

	// act + assert
	assert.NotPanics(t, func() {
		logger.InfoContext(context.Background(), "snapshot saved",
			"stream_id", "workflow-0195e1a2",
			"version", 42,
		)
	})
}

func Test_NewOTelLogger_SatisfiesContextualLogger(t *testing.T) {
	// setup
	otelLogger := noop.NewLoggerProvider().Logger("eventstore")

	// act
	logger := oteladapters.NewOTelLogger(otelLogger)

	// assert
	assert.NotNil(t, logger)
	assert.Implements(t, (*eventstore.ContextualLogger)(nil), logger)
}

func Test_OTelLogger_EmitsAllLevelsWithoutPanic(t *testing.T) {
	// setup
	otelLogger := noop.NewLoggerProvider().Logger("eventstore")
	logger := oteladapters.NewOTelLogger(otelLogger)
	ctx := context.Background()

	// act + assert
	assert.NotPanics(t, func() {
		logger.DebugContext(ctx, "sql executed: read", "duration_ms", int64(12))
		logger.InfoContext(ctx, "events read", "stream_id", "workflow-0195e1a2")
		logger.WarnContext(ctx, "retrying after conflict")
		logger.ErrorContext(ctx, "database error", "error_type", "database")
	})
}

func Test_OTelLogger_ToleratesUnevenArguments(t *testing.T) {
	// setup
	otelLogger := noop.NewLoggerProvider().Logger("eventstore")
	logger := oteladapters.NewOTelLogger(otelLogger)
	ctx := context.Background()

	// act + assert: a dangling key, a non-string key and non-string
	// values must all be tolerated
	assert.NotPanics(t, func() {
		logger.InfoContext(ctx, "events appended", "stream_id")
		logger.InfoContext(ctx, "events appended", 42, "value")
		logger.InfoContext(ctx, "events appended", "event_count", 3, "expected_version", int64(6))
	})
}
