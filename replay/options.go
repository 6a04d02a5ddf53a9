package replay

import (
	"time"

	"github.com/versioned-streams/eventstore-go/eventstore"
)

// Default tuning of a replay run.
const (
	DefaultBatchSize            = 100
	DefaultMaxConcurrentStreams = 10
	DefaultMaxAttempts          = 3
	DefaultRetryBaseDelay       = 100 * time.Millisecond
	DefaultRetryMaxDelay        = 5 * time.Second
)

// Option is a function that configures a Service instance.
type Option func(*Service) error

// WithBatchSize sets how many events one page of the global feed holds.
func WithBatchSize(batchSize int) Option {
	return func(s *Service) error {
		if batchSize <= 0 {
			return ErrInvalidBatchSize
		}

		s.batchSize = batchSize

		return nil
	}
}

// WithMaxConcurrentStreams bounds how many streams of one batch are
// dispatched concurrently.
func WithMaxConcurrentStreams(limit int) Option {
	return func(s *Service) error {
		if limit <= 0 {
			return ErrInvalidConcurrency
		}

		s.maxConcurrentStreams = limit

		return nil
	}
}

// WithRetryPolicy sets the bounded per-event retry of failing handlers:
// maxAttempts attempts in total, exponential backoff starting at baseDelay
// and capped at maxDelay.
func WithRetryPolicy(maxAttempts int, baseDelay, maxDelay time.Duration) Option {
	return func(s *Service) error {
		if maxAttempts <= 0 || baseDelay < 0 || maxDelay < baseDelay {
			return ErrInvalidRetryPolicy
		}

		s.maxAttempts = maxAttempts
		s.retryBaseDelay = baseDelay
		s.retryMaxDelay = maxDelay

		return nil
	}
}

// WithFailurePolicy decides between skipping events whose handlers exhausted
// their retries (PolicySkipAndLog, the default) and failing the whole run
// (PolicyFailRun).
func WithFailurePolicy(policy FailurePolicy) Option {
	return func(s *Service) error {
		if policy != PolicySkipAndLog && policy != PolicyFailRun {
			return ErrInvalidFailurePolicy
		}

		s.failurePolicy = policy

		return nil
	}
}

// WithLogger sets a logger for run lifecycle and skipped-event reporting.
func WithLogger(logger eventstore.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			return ErrNilLoggerSupplied
		}

		s.logger = logger

		return nil
	}
}

// WithMetricsCollector sets a collector for batch and run metrics.
func WithMetricsCollector(collector eventstore.MetricsCollector) Option {
	return func(s *Service) error {
		if collector == nil {
			return ErrNilMetricsCollectorSupplied
		}

		s.metrics = collector

		return nil
	}
}
