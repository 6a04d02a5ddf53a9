package replay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/versioned-streams/eventstore-go/eventstore"
)

const (
	metricReplayBatchDuration  = "eventstore_replay_batch_duration"
	metricReplayBatchEvents    = "eventstore_replay_batch_events"
	metricReplayEventsSkipped  = "eventstore_replay_events_skipped"
	metricReplayRunsFinished   = "eventstore_replay_runs_finished"
	metricLabelReplayRunStatus = "status"
)

// backoffDelayGrowthPerRetry doubles the retry delay after each failed attempt.
const backoffDelayGrowthPerRetry = 2

// Store is the view of an event store engine a replay needs.
// All engines of this module satisfy it.
type Store interface {
	ReadAll(
		ctx context.Context,
		fromGlobalPosition eventstore.GlobalPositionUint64,
		limit int,
	) (eventstore.StoredEvents, error)

	SaveCheckpoints(ctx context.Context, checkpoints ...eventstore.ReplayCheckpoint) error
	LoadCheckpoints(ctx context.Context, runID string) (eventstore.ReplayCheckpoints, error)
	DeleteCheckpoints(ctx context.Context, runID string) error
}

// run is the in-process state of one replay run. The progress and the dirty
// map are guarded by mu; the request flags are read between batches.
type run struct {
	id string

	mu       sync.Mutex
	progress Progress
	dirty    map[eventstore.StreamIDString]eventstore.StreamVersionUint

	active          atomic.Bool
	pauseRequested  atomic.Bool
	cancelRequested atomic.Bool
}

func (r *run) snapshotProgress() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.progress.clone()
}

func (r *run) position() eventstore.GlobalPositionUint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.progress.GlobalPosition
}

func (r *run) alreadyProcessed(event eventstore.StoredEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	checkpoint, found := r.progress.StreamCheckpoints[event.StreamID]

	return found && event.StreamVersion <= checkpoint
}

// markProcessed advances the stream checkpoint past this event.
// Skipped events advance it as well, they are given up for good.
func (r *run) markProcessed(event eventstore.StoredEvent, skipped bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if skipped {
		r.progress.EventsSkipped++
	} else {
		r.progress.EventsProcessed++
	}

	r.progress.StreamCheckpoints[event.StreamID] = event.StreamVersion
	r.dirty[event.StreamID] = event.StreamVersion
}

func (r *run) advancePosition(position eventstore.GlobalPositionUint64, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.progress.GlobalPosition = position
	r.progress.UpdatedAt = now
}

// drainDirty hands out the streams touched since the last checkpoint flush
// together with the global position both belong to.
func (r *run) drainDirty() (map[eventstore.StreamIDString]eventstore.StreamVersionUint, eventstore.GlobalPositionUint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dirty := r.dirty
	r.dirty = make(map[eventstore.StreamIDString]eventstore.StreamVersionUint)

	return dirty, r.progress.GlobalPosition
}

func (r *run) finish(status Status, reason string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.progress.Status = status
	r.progress.FailureReason = reason
	r.progress.UpdatedAt = now
}

// Service replays the global event feed through registered handlers.
//
// A run pages through ReadAll, fans the events of each page out to one worker
// per stream (bounded by WithMaxConcurrentStreams) and flushes checkpoints
// after every page: one row per touched stream plus the reserved
// GlobalCheckpointStreamID row carrying the feed position and the run status.
// Pause and cancel requests are honored between batches, in-flight events of
// the current batch are finished first.
type Service struct {
	store   Store
	logger  eventstore.Logger
	metrics eventstore.MetricsCollector

	batchSize            int
	maxConcurrentStreams int
	maxAttempts          int
	retryBaseDelay       time.Duration
	retryMaxDelay        time.Duration
	failurePolicy        FailurePolicy

	handlersMu sync.RWMutex
	handlers   map[string]Handler
	byType     map[string][]Handler

	runsMu sync.RWMutex
	runs   map[string]*run
}

// NewService is the factory method for a replay Service on the given store.
func NewService(store Store, options ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrNilStoreSupplied
	}

	service := &Service{
		store:                store,
		batchSize:            DefaultBatchSize,
		maxConcurrentStreams: DefaultMaxConcurrentStreams,
		maxAttempts:          DefaultMaxAttempts,
		retryBaseDelay:       DefaultRetryBaseDelay,
		retryMaxDelay:        DefaultRetryMaxDelay,
		failurePolicy:        PolicySkipAndLog,
		handlers:             make(map[string]Handler),
		byType:               make(map[string][]Handler),
		runs:                 make(map[string]*run),
	}

	for _, option := range options {
		if err := option(service); err != nil {
			return nil, err
		}
	}

	return service, nil
}

// RegisterHandler subscribes a handler to the event types it reports.
// Handlers must be registered before a run is started.
func (s *Service) RegisterHandler(handler Handler) error {
	if handler == nil {
		return ErrNilHandlerSupplied
	}

	if handler.Name() == "" {
		return ErrEmptyHandlerNameSupplied
	}

	eventTypes := handler.EventTypes()
	if len(eventTypes) == 0 {
		return ErrNoEventTypesSupplied
	}

	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()

	if _, found := s.handlers[handler.Name()]; found {
		return ErrHandlerAlreadyRegistered
	}

	s.handlers[handler.Name()] = handler

	subscribed := make(map[string]bool, len(eventTypes))
	for _, eventType := range eventTypes {
		if subscribed[eventType] {
			continue
		}

		subscribed[eventType] = true
		s.byType[eventType] = append(s.byType[eventType], handler)
	}

	return nil
}

// StartFull starts a replay of the whole global feed from position zero and
// returns the ID of the new run. The run executes in the background; its fate
// is observable via Status. The initial checkpoint is persisted before this
// method returns, so the run survives a process crash right after start.
func (s *Service) StartFull(ctx context.Context) (string, error) {
	if s.handlerCount() == 0 {
		return "", ErrNoHandlersRegistered
	}

	runID := uuid.NewString()
	now := time.Now()

	newRun := &run{
		id: runID,
		progress: Progress{
			RunID:             runID,
			Status:            StatusRunning,
			StreamCheckpoints: make(map[eventstore.StreamIDString]eventstore.StreamVersionUint),
			StartedAt:         now,
			UpdatedAt:         now,
		},
		dirty: make(map[eventstore.StreamIDString]eventstore.StreamVersionUint),
	}

	if err := s.persistCheckpoints(ctx, newRun, StatusRunning); err != nil {
		return "", err
	}

	s.runsMu.Lock()
	s.runs[runID] = newRun
	s.runsMu.Unlock()

	newRun.active.Store(true)
	go s.executeRun(ctx, newRun)

	s.logInfo("replay run started", "run_id", runID)

	return runID, nil
}

// Resume continues a paused or failed run from its persisted checkpoints.
// Events at or below a stream's checkpoint are redelivered by the global feed
// but suppressed before they reach the handlers. Completed and cancelled runs
// are final and yield ErrRunNotResumable.
func (s *Service) Resume(ctx context.Context, runID string) error {
	if runID == "" {
		return eventstore.ErrEmptyRunIDSupplied
	}

	if s.handlerCount() == 0 {
		return ErrNoHandlersRegistered
	}

	if activeRun, found := s.lookupRun(runID); found && activeRun.active.Load() {
		return ErrRunAlreadyActive
	}

	checkpoints, err := s.store.LoadCheckpoints(ctx, runID)
	if err != nil {
		return err
	}

	if len(checkpoints) == 0 {
		return ErrUnknownRun
	}

	progress := progressFromCheckpoints(runID, checkpoints)
	if progress.Status == StatusCompleted || progress.Status == StatusCancelled {
		return ErrRunNotResumable
	}

	now := time.Now()
	progress.Status = StatusRunning
	progress.StartedAt = now
	progress.UpdatedAt = now
	progress.FailureReason = ""

	resumedRun := &run{
		id:       runID,
		progress: progress,
		dirty:    make(map[eventstore.StreamIDString]eventstore.StreamVersionUint),
	}

	s.runsMu.Lock()
	if existing, found := s.runs[runID]; found && existing.active.Load() {
		s.runsMu.Unlock()

		return ErrRunAlreadyActive
	}
	s.runs[runID] = resumedRun
	s.runsMu.Unlock()

	if err := s.persistCheckpoints(ctx, resumedRun, StatusRunning); err != nil {
		return err
	}

	resumedRun.active.Store(true)
	go s.executeRun(ctx, resumedRun)

	s.logInfo("replay run resumed", "run_id", runID, "from_position", progress.GlobalPosition)

	return nil
}

// Pause requests a pause; the run stops after the batch in flight and can be
// resumed later.
func (s *Service) Pause(runID string) error {
	activeRun, found := s.lookupRun(runID)
	if !found {
		return ErrUnknownRun
	}

	if !activeRun.active.Load() {
		return ErrRunNotActive
	}

	activeRun.pauseRequested.Store(true)

	return nil
}

// Cancel requests a cancellation; the run stops after the batch in flight
// and is final afterwards.
func (s *Service) Cancel(runID string) error {
	activeRun, found := s.lookupRun(runID)
	if !found {
		return ErrUnknownRun
	}

	if !activeRun.active.Load() {
		return ErrRunNotActive
	}

	activeRun.cancelRequested.Store(true)

	return nil
}

// Status reports the progress of a run. Runs of this process are served from
// memory including live counters; for runs of an earlier process the progress
// is rebuilt from the checkpoint store with counters at zero.
func (s *Service) Status(ctx context.Context, runID string) (Progress, error) {
	if runID == "" {
		return Progress{}, eventstore.ErrEmptyRunIDSupplied
	}

	if knownRun, found := s.lookupRun(runID); found {
		return knownRun.snapshotProgress(), nil
	}

	checkpoints, err := s.store.LoadCheckpoints(ctx, runID)
	if err != nil {
		return Progress{}, err
	}

	if len(checkpoints) == 0 {
		return Progress{}, ErrUnknownRun
	}

	return progressFromCheckpoints(runID, checkpoints), nil
}

// Forget drops a finished run from memory and deletes its checkpoints.
// Forgetting an unknown run is a no-op.
func (s *Service) Forget(ctx context.Context, runID string) error {
	if runID == "" {
		return eventstore.ErrEmptyRunIDSupplied
	}

	s.runsMu.Lock()
	if knownRun, found := s.runs[runID]; found {
		if knownRun.active.Load() {
			s.runsMu.Unlock()

			return ErrRunStillActive
		}

		delete(s.runs, runID)
	}
	s.runsMu.Unlock()

	return s.store.DeleteCheckpoints(ctx, runID)
}

/*** The run loop ***/

func (s *Service) executeRun(ctx context.Context, r *run) {
	defer r.active.Store(false)

	for {
		if r.cancelRequested.Load() {
			s.finishRun(ctx, r, StatusCancelled, "")

			return
		}

		if r.pauseRequested.Load() {
			s.finishRun(ctx, r, StatusPaused, "")

			return
		}

		if err := ctx.Err(); err != nil {
			s.finishRun(ctx, r, StatusCancelled, err.Error())

			return
		}

		page, err := s.store.ReadAll(ctx, r.position(), s.batchSize)
		if err != nil {
			s.finishRun(ctx, r, StatusFailed, err.Error())

			return
		}

		if len(page) == 0 {
			s.finishRun(ctx, r, StatusCompleted, "")

			return
		}

		batchStart := time.Now()

		if err := s.processBatch(ctx, r, page); err != nil {
			s.finishRun(ctx, r, StatusFailed, err.Error())

			return
		}

		r.advancePosition(page[len(page)-1].GlobalPosition, time.Now())

		if err := s.persistCheckpoints(ctx, r, StatusRunning); err != nil {
			s.finishRun(ctx, r, StatusFailed, err.Error())

			return
		}

		s.recordBatchMetrics(len(page), time.Since(batchStart))
	}
}

// processBatch dispatches one page of the global feed, one worker per stream,
// at most maxConcurrentStreams workers at a time. Within a stream events stay
// in version order.
func (s *Service) processBatch(ctx context.Context, r *run, page eventstore.StoredEvents) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.maxConcurrentStreams)

	for _, streamEvents := range groupByStream(page) {
		group.Go(func() error {
			return s.processStreamEvents(groupCtx, r, streamEvents)
		})
	}

	return group.Wait()
}

func (s *Service) processStreamEvents(ctx context.Context, r *run, events eventstore.StoredEvents) error {
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return err
		}

		if r.alreadyProcessed(event) {
			continue
		}

		skipped := false

		for _, handler := range s.handlersFor(event.EventType) {
			attempts, err := s.handleWithRetry(ctx, handler, event)
			if err == nil {
				continue
			}

			failure := BuildHandlerFailureError(handler.Name(), event, attempts, err)

			if s.failurePolicy == PolicyFailRun {
				return failure
			}

			skipped = true
			s.logError("replay handler gave up on event, skipping it", failure, "run_id", r.id)
			s.incrementCounter(metricReplayEventsSkipped, nil)
		}

		r.markProcessed(event, skipped)
	}

	return nil
}

// handleWithRetry dispatches one event to one handler with bounded retries
// and exponential backoff. It reports how many attempts were made.
func (s *Service) handleWithRetry(
	ctx context.Context,
	handler Handler,
	event eventstore.StoredEvent,
) (int, error) {

	delay := s.retryBaseDelay
	var lastErr error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if attempt > 1 {
			if sleepErr := sleepWithContext(ctx, delay); sleepErr != nil {
				return attempt - 1, lastErr
			}

			delay *= backoffDelayGrowthPerRetry
			if delay > s.retryMaxDelay {
				delay = s.retryMaxDelay
			}
		}

		lastErr = handler.Handle(ctx, event)
		if lastErr == nil {
			return attempt, nil
		}
	}

	return s.maxAttempts, lastErr
}

// persistCheckpoints flushes the streams touched since the last flush plus
// the reserved global row in one SaveCheckpoints call, so a crash between
// batches loses at most the batch in flight.
func (s *Service) persistCheckpoints(ctx context.Context, r *run, status Status) error {
	dirty, position := r.drainDirty()

	checkpoints := make(eventstore.ReplayCheckpoints, 0, len(dirty)+1)

	globalRow, err := eventstore.BuildReplayCheckpoint(
		r.id,
		eventstore.GlobalCheckpointStreamID,
		uint64(position),
		string(status),
	)
	if err != nil {
		return err
	}
	checkpoints = append(checkpoints, globalRow)

	for streamID, version := range dirty {
		streamRow, buildErr := eventstore.BuildReplayCheckpoint(r.id, streamID, uint64(version), string(status))
		if buildErr != nil {
			return buildErr
		}

		checkpoints = append(checkpoints, streamRow)
	}

	return s.store.SaveCheckpoints(ctx, checkpoints...)
}

// finishRun records the terminal (or paused) status and persists it even when
// the caller's context is already canceled.
func (s *Service) finishRun(ctx context.Context, r *run, status Status, reason string) {
	r.finish(status, reason, time.Now())

	if err := s.persistCheckpoints(context.WithoutCancel(ctx), r, status); err != nil {
		s.logError("persisting final replay checkpoints failed", err, "run_id", r.id, "status", string(status))
	}

	s.incrementCounter(metricReplayRunsFinished, map[string]string{metricLabelReplayRunStatus: string(status)})

	progress := r.snapshotProgress()
	s.logInfo("replay run finished",
		"run_id", r.id,
		"status", string(status),
		"global_position", progress.GlobalPosition,
		"events_processed", progress.EventsProcessed,
		"events_skipped", progress.EventsSkipped,
	)
}

/*** Helper methods ***/

func (s *Service) handlerCount() int {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()

	return len(s.handlers)
}

func (s *Service) handlersFor(eventType string) []Handler {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()

	return s.byType[eventType]
}

func (s *Service) lookupRun(runID string) (*run, bool) {
	s.runsMu.RLock()
	defer s.runsMu.RUnlock()

	knownRun, found := s.runs[runID]

	return knownRun, found
}

// groupByStream splits a page into per-stream groups, keeping the feed order
// of streams and the version order of events within each group.
func groupByStream(page eventstore.StoredEvents) []eventstore.StoredEvents {
	indexByStream := make(map[eventstore.StreamIDString]int)
	groups := make([]eventstore.StoredEvents, 0)

	for _, event := range page {
		index, found := indexByStream[event.StreamID]
		if !found {
			index = len(groups)
			indexByStream[event.StreamID] = index
			groups = append(groups, nil)
		}

		groups[index] = append(groups[index], event)
	}

	return groups
}

func sleepWithContext(ctx context.Context, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Service) recordBatchMetrics(eventCount int, duration time.Duration) {
	if s.metrics == nil {
		return
	}

	s.metrics.RecordDuration(metricReplayBatchDuration, duration, nil)
	s.metrics.RecordValue(metricReplayBatchEvents, float64(eventCount), nil)
}

func (s *Service) incrementCounter(metric string, labels map[string]string) {
	if s.metrics == nil {
		return
	}

	s.metrics.IncrementCounter(metric, labels)
}

func (s *Service) logInfo(msg string, args ...any) {
	if s.logger == nil {
		return
	}

	s.logger.Info(msg, args...)
}

func (s *Service) logError(msg string, err error, args ...any) {
	if s.logger == nil {
		return
	}

	s.logger.Error(msg, append(args, "error", err.Error())...)
}
