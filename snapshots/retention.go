package snapshots

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/versioned-streams/eventstore-go/eventstore"
)

// Default retention tuning.
const (
	DefaultRetainedSnapshots uint = 10
	DefaultCleanupInterval        = time.Hour
)

// Retention prunes old snapshots so each stream keeps only its newest
// captures. It can run as a periodic background task over the streams it was
// told to track, or be invoked on demand with CleanupStream.
//
// The cutoff is derived from the snapshot Policy cadence: keeping K snapshots
// at a frequency of N events means deleting everything more than K*N versions
// behind the newest snapshot. The log itself is never touched.
type Retention struct {
	store    Store
	policy   Policy
	keep     uint
	interval time.Duration
	logger   eventstore.Logger

	mu      sync.Mutex
	tracked map[eventstore.StreamIDString]struct{}

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// RetentionOption configures a Retention.
type RetentionOption func(*Retention) error

// WithRetainedSnapshots sets how many snapshots to keep per stream.
func WithRetainedSnapshots(keep uint) RetentionOption {
	return func(r *Retention) error {
		if keep == 0 {
			return ErrZeroRetainedSupplied
		}

		r.keep = keep

		return nil
	}
}

// WithCleanupInterval sets how often the background task runs.
func WithCleanupInterval(interval time.Duration) RetentionOption {
	return func(r *Retention) error {
		if interval <= 0 {
			return ErrZeroIntervalSupplied
		}

		r.interval = interval

		return nil
	}
}

// WithRetentionLogger supplies a logger for cleanup warnings.
func WithRetentionLogger(logger eventstore.Logger) RetentionOption {
	return func(r *Retention) error {
		if logger == nil {
			return ErrNilLoggerSupplied
		}

		r.logger = logger

		return nil
	}
}

// NewRetention creates a Retention pruning through the given store, keyed to
// the cadence of the given policy.
func NewRetention(store Store, policy Policy, options ...RetentionOption) (*Retention, error) {
	if store == nil {
		return nil, ErrNilStoreSupplied
	}

	if policy.Frequency() == 0 {
		return nil, ErrZeroFrequencySupplied
	}

	retention := &Retention{
		store:    store,
		policy:   policy,
		keep:     DefaultRetainedSnapshots,
		interval: DefaultCleanupInterval,
		tracked:  make(map[eventstore.StreamIDString]struct{}),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	for _, option := range options {
		if err := option(retention); err != nil {
			return nil, err
		}
	}

	return retention, nil
}

// Track registers a stream for periodic cleanup.
func (r *Retention) Track(streamID eventstore.StreamIDString) {
	if streamID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracked[streamID] = struct{}{}
}

// Start launches the periodic cleanup task. It returns immediately; the task
// stops when ctx is canceled or Stop is called. Subsequent calls are no-ops.
func (r *Retention) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}

	go r.run(ctx)
}

// Stop terminates the background task and waits for it to finish.
// It is safe to call Stop more than once, and without a prior Start.
func (r *Retention) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})

	if r.started.Load() {
		<-r.doneCh
	}
}

// CleanupStream prunes the snapshots of one stream down to the configured
// retention count. Streams with fewer snapshots are left untouched.
func (r *Retention) CleanupStream(ctx context.Context, streamID eventstore.StreamIDString) error {
	stats, err := r.store.GetSnapshotStats(ctx, streamID)
	if err != nil {
		return err
	}

	if stats.Count <= uint64(r.keep) {
		return nil
	}

	retainedSpan := r.policy.Frequency() * (r.keep - 1)
	if stats.LatestVersion <= retainedSpan {
		return nil
	}

	cutoff := stats.LatestVersion - retainedSpan

	return r.store.DeleteSnapshotsBefore(ctx, streamID, cutoff)
}

func (r *Retention) run(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.cleanupTracked(ctx)
		}
	}
}

func (r *Retention) cleanupTracked(ctx context.Context) {
	for _, streamID := range r.trackedStreams() {
		if err := r.CleanupStream(ctx, streamID); err != nil {
			if r.logger != nil {
				r.logger.Warn("snapshot cleanup failed",
					"stream_id", streamID,
					"error", err.Error())
			}
		}
	}
}

func (r *Retention) trackedStreams() []eventstore.StreamIDString {
	r.mu.Lock()
	defer r.mu.Unlock()

	streams := make([]eventstore.StreamIDString, 0, len(r.tracked))
	for streamID := range r.tracked {
		streams = append(streams, streamID)
	}

	return streams
}
