package shell

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/versioned-streams/eventstore-go/eventstore"
)

const (
	defaultMaxAttempts  = 6
	defaultBaseDelay    = 10 * time.Millisecond
	defaultJitterFactor = 0.3
)

// Metric names of the retry helper.
const (
	CommandRetriesMetric           = "commandhandler_retries"
	CommandRetryDelayMetric        = "commandhandler_retry_delay"
	CommandMaxRetriesReachedMetric = "commandhandler_max_retries_reached"
)

var (
	// ErrInvalidMaxAttempts is returned when max attempts are not positive.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrNegativeBaseDelay is returned when the base delay is negative.
	ErrNegativeBaseDelay = errors.New("base delay must not be negative")

	// ErrInvalidJitterFactor is returned when the jitter factor is not between 0.0 and 1.0.
	ErrInvalidJitterFactor = errors.New("jitter factor must be between 0.0 and 1.0")

	// ErrNilMetricsCollector is returned when a nil metrics collector is supplied.
	ErrNilMetricsCollector = errors.New("metrics collector must not be nil")

	// ErrEmptyCommandType is returned when an empty command type is supplied to WithRetryMetrics.
	ErrEmptyCommandType = errors.New("command type must not be empty")
)

// RetryableFunc represents a function that can be retried.
type RetryableFunc func(ctx context.Context) error

type retryConfig struct {
	maxAttempts      int
	baseDelay        time.Duration
	jitterFactor     float64
	metricsCollector eventstore.MetricsCollector
	commandType      string
}

// RetryOption configures the retry behavior.
type RetryOption func(*retryConfig) error

// RetryWithExponentialBackoff executes fn, retrying concurrency conflicts
// with exponential backoff and jitter up to maxAttempts times.
//
// Default schedule: 0 ms, 10 ms, 20 ms, 40 ms, 80 ms, 160 ms (plus up to 30%
// jitter). Only eventstore.ErrConcurrencyConflict is retried: a conflict
// means another writer won the race and the command should re-read and
// decide again. Command rejections, timeouts and storage errors fail fast.
func RetryWithExponentialBackoff(ctx context.Context, fn RetryableFunc, options ...RetryOption) error {
	config := retryConfig{
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		jitterFactor: defaultJitterFactor,
	}

	for _, option := range options {
		if err := option(&config); err != nil {
			return err
		}
	}

	var lastErr error

	for attempt := 0; attempt < config.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := config.baseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * config.jitterFactor //nolint:gosec // jitter does not need a CSPRNG
			backoffDelay := delay + time.Duration(jitter)

			config.recordRetryDelay(attempt, backoffDelay)

			select {
			case <-time.After(backoffDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if !errors.Is(lastErr, eventstore.ErrConcurrencyConflict) {
			return lastErr
		}

		config.recordRetryAttempt(attempt)
	}

	config.recordMaxRetriesReached()

	return lastErr
}

func (c retryConfig) recordRetryDelay(attempt int, delay time.Duration) {
	if c.metricsCollector == nil {
		return
	}

	c.metricsCollector.RecordDuration(CommandRetryDelayMetric, delay, map[string]string{
		"command_type":   c.commandType,
		"attempt_number": fmt.Sprintf("%d", attempt),
	})
}

func (c retryConfig) recordRetryAttempt(attempt int) {
	if c.metricsCollector == nil || attempt >= c.maxAttempts-1 {
		return
	}

	c.metricsCollector.IncrementCounter(CommandRetriesMetric, map[string]string{
		"command_type":   c.commandType,
		"attempt_number": fmt.Sprintf("%d", attempt+1),
	})
}

func (c retryConfig) recordMaxRetriesReached() {
	if c.metricsCollector == nil {
		return
	}

	c.metricsCollector.IncrementCounter(CommandMaxRetriesReachedMetric, map[string]string{
		"command_type": c.commandType,
	})
}

// WithMaxAttempts sets the maximum number of attempts.
func WithMaxAttempts(attempts int) RetryOption {
	return func(config *retryConfig) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}

		config.maxAttempts = attempts

		return nil
	}
}

// WithBaseDelay sets the base delay for the exponential backoff.
// Actual delays: baseDelay, baseDelay*2, baseDelay*4, and so on.
func WithBaseDelay(delay time.Duration) RetryOption {
	return func(config *retryConfig) error {
		if delay < 0 {
			return ErrNegativeBaseDelay
		}

		config.baseDelay = delay

		return nil
	}
}

// WithJitterFactor sets the jitter added on top of each backoff delay, as a
// fraction of the delay. Valid range: 0.0 (no jitter) to 1.0.
func WithJitterFactor(factor float64) RetryOption {
	return func(config *retryConfig) error {
		if factor < 0.0 || factor > 1.0 {
			return ErrInvalidJitterFactor
		}

		config.jitterFactor = factor

		return nil
	}
}

// WithRetryMetrics instruments the retry loop. The command type labels the
// emitted metrics.
func WithRetryMetrics(collector eventstore.MetricsCollector, commandType string) RetryOption {
	return func(config *retryConfig) error {
		if collector == nil {
			return ErrNilMetricsCollector
		}

		if commandType == "" {
			return ErrEmptyCommandType
		}

		config.metricsCollector = collector
		config.commandType = commandType

		return nil
	}
}
