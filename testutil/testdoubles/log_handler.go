package testdoubles

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LogHandler is a slog.Handler implementation that captures log records for testing.
type LogHandler struct {
	mu          sync.Mutex
	records     []slog.Record
	logToStdout bool
}

// NewLogHandler creates a new LogHandler.
// Switchable to log to stdout, which can be useful for debugging tests by seeing the actual log output.
func NewLogHandler(logToStdout bool) *LogHandler {
	return &LogHandler{
		records:     make([]slog.Record, 0),
		logToStdout: logToStdout,
	}
}

// Handle implements the slog.Handler interface.
func (h *LogHandler) Handle(ctx context.Context, record slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, record)

	if h.logToStdout {
		jsonHandler := slog.NewJSONHandler(os.Stdout, nil)
		_ = jsonHandler.Handle(ctx, record)
	}

	return nil
}

// Enabled implements the slog.Handler interface; the handler captures every level.
func (h *LogHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

// WithAttrs implements the slog.Handler interface.
func (h *LogHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	return h
}

// WithGroup implements the slog.Handler interface.
func (h *LogHandler) WithGroup(_ string) slog.Handler {
	return h
}

// RecordCount returns the number of captured log records.
func (h *LogHandler) RecordCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.records)
}

// CountRecordsContaining returns how many captured messages contain the substring.
func (h *LogHandler) CountRecordsContaining(substring string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	count := 0
	for _, record := range h.records {
		if strings.Contains(record.Message, substring) {
			count++
		}
	}

	return count
}

// HasRecordContaining reports whether any captured message contains the substring.
func (h *LogHandler) HasRecordContaining(substring string) bool {
	return h.CountRecordsContaining(substring) > 0
}

// Reset discards all captured records.
func (h *LogHandler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = h.records[:0]
}
