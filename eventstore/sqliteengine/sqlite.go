package sqliteengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3" // dialect import
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/versioned-streams/eventstore-go/eventstore"
)

const (
	defaultEventsTableName      = "events"
	defaultSnapshotsTableName   = "snapshots"
	defaultCheckpointsTableName = "replay_checkpoints"

	logMsgBuildQueryFailed       = "failed to build query"
	logMsgDBQueryFailed          = "database query execution failed"
	logMsgDBExecFailed           = "database execution failed"
	logMsgCloseRowsFailed        = "failed to close database rows"
	logMsgScanRowFailed          = "failed to scan database row"
	logMsgBuildStoredEventFailed = "failed to build stored event from database row"
	logMsgBeginTxFailed          = "failed to begin transaction"
	logMsgCommitTxFailed         = "failed to commit transaction"
	logMsgReadCompleted          = "events read"
	logMsgReadAllCompleted       = "global feed page read"
	logMsgEventsAppended         = "events appended"
	logMsgConcurrencyConflict    = "concurrency conflict detected"
	logMsgSQLExecuted            = "executed sql for: "

	logAttrError           = "error"
	logAttrQuery           = "query"
	logAttrStreamID        = "stream_id"
	logAttrEventCount      = "event_count"
	logAttrDurationMS      = "duration_ms"
	logAttrExpectedVersion = "expected_version"
	logAttrActualVersion   = "actual_version"
	logAttrNewVersion      = "new_version"
	logAttrFromPosition    = "from_global_position"

	logActionAppend = "append"
	logActionRead   = "read"

	colStreamID             = "stream_id"
	colStreamVersion        = "stream_version"
	colEventType            = "event_type"
	colSchemaVersion        = "schema_version"
	colPayload              = "payload"
	colOccurredAt           = "occurred_at"
	colCorrelationID        = "correlation_id"
	colCausationID          = "causation_id"
	colGlobalPosition       = "global_position"
	colState                = "state"
	colCreatedAt            = "created_at"
	colRunID                = "replay_run_id"
	colLastProcessedVersion = "last_processed_version"
	colStatus               = "status"
	colUpdatedAt            = "updated_at"

	dialectSQLite    = "sqlite3"
	aliasHeadVersion = "head_version"

	maxReadPageSize = 1000
)

// EventStore is the SQLite-backed engine for per-stream versioned event storage.
// It persists events, snapshots, and replay checkpoints in an embedded database
// and supports customizable table names and logging.
type EventStore struct {
	db                   *sql.DB
	eventsTableName      string
	snapshotsTableName   string
	checkpointsTableName string
	logger               Logger
}

// NewEventStore creates a new EventStore on the given database handle with
// optional configuration. The handle is expected to use the modernc.org/sqlite
// driver; Call InitSchema once to create the tables on a fresh database.
func NewEventStore(db *sql.DB, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	es := &EventStore{
		db:                   db,
		eventsTableName:      defaultEventsTableName,
		snapshotsTableName:   defaultSnapshotsTableName,
		checkpointsTableName: defaultCheckpointsTableName,
	}

	for _, option := range options {
		if err := option(es); err != nil {
			return nil, err
		}
	}

	return es, nil
}

// InitSchema creates the events, snapshots and checkpoints tables together with
// their indexes if they do not exist yet. It is idempotent.
func (es *EventStore) InitSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			global_position INTEGER PRIMARY KEY AUTOINCREMENT,
			stream_id TEXT NOT NULL,
			stream_version INTEGER NOT NULL,
			event_type TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			payload BLOB NOT NULL,
			occurred_at INTEGER NOT NULL,
			correlation_id TEXT NOT NULL,
			causation_id TEXT NOT NULL
		)`, es.eventsTableName),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_stream
			ON %s (stream_id, stream_version)`, es.eventsTableName, es.eventsTableName),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			stream_id TEXT NOT NULL,
			stream_version INTEGER NOT NULL,
			state BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (stream_id, stream_version)
		)`, es.snapshotsTableName),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			replay_run_id TEXT NOT NULL,
			stream_id TEXT NOT NULL,
			last_processed_version INTEGER NOT NULL,
			status TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (replay_run_id, stream_id)
		)`, es.checkpointsTableName),
	}

	for _, statement := range statements {
		if _, err := es.db.ExecContext(ctx, statement); err != nil {
			return errors.Join(eventstore.ErrAppendingEventsFailed, err)
		}
	}

	return nil
}

// Append atomically persists the given events onto the stream with contiguous versions
// starting at expectedVersion+1 and returns the new stream version.
//
// The compare-and-swap against the stream's current head version runs inside one
// transaction: SQLite serializes writers, so the head read and the insert cannot be
// interleaved by another in-process writer. Cross-process racers are caught by the
// unique (stream_id, stream_version) index. Either way the loser receives a
// ConcurrencyConflictError carrying the actual current version.
func (es *EventStore) Append(
	ctx context.Context,
	streamID eventstore.StreamIDString,
	expectedVersion eventstore.StreamVersionUint,
	events ...eventstore.StoredEvent,
) (eventstore.StreamVersionUint, error) {

	if validationErr := validateAppendInput(streamID, events); validationErr != nil {
		return 0, validationErr
	}

	start := time.Now()

	newVersion, appendErr := es.appendInTx(ctx, streamID, expectedVersion, events)
	duration := time.Since(start)

	var conflictErr *eventstore.ConcurrencyConflictError
	if errors.As(appendErr, &conflictErr) {
		es.logInfo(logMsgConcurrencyConflict,
			logAttrStreamID, streamID,
			logAttrExpectedVersion, conflictErr.ExpectedVersion,
			logAttrActualVersion, conflictErr.ActualVersion)

		return 0, appendErr
	}

	if appendErr != nil {
		return 0, appendErr
	}

	es.logInfo(logMsgEventsAppended,
		logAttrStreamID, streamID,
		logAttrEventCount, len(events),
		logAttrNewVersion, newVersion,
		logAttrDurationMS, toMilliseconds(duration))

	return newVersion, nil
}

func (es *EventStore) appendInTx(
	ctx context.Context,
	streamID eventstore.StreamIDString,
	expectedVersion eventstore.StreamVersionUint,
	events eventstore.StoredEvents,
) (eventstore.StreamVersionUint, error) {

	tx, beginErr := es.db.BeginTx(ctx, nil)
	if beginErr != nil {
		es.logError(logMsgBeginTxFailed, beginErr, logAttrStreamID, streamID)
		return 0, errors.Join(eventstore.ErrAppendingEventsFailed, beginErr)
	}
	defer es.rollback(tx)

	actualVersion, headErr := es.streamHeadVersionTx(ctx, tx, streamID)
	if headErr != nil {
		return 0, headErr
	}

	if actualVersion != expectedVersion {
		return 0, eventstore.BuildConcurrencyConflictError(streamID, expectedVersion, actualVersion)
	}

	insertSQL, buildErr := es.buildInsertQuery(expectedVersion, events)
	if buildErr != nil {
		return 0, buildErr
	}

	execStart := time.Now()
	_, execErr := tx.ExecContext(ctx, insertSQL)
	es.logQueryWithDuration(insertSQL, logActionAppend, time.Since(execStart))

	if execErr != nil {
		if isConstraintError(execErr) {
			// A concurrent process won the race between our head read and insert.
			return 0, es.conflictAfterConstraint(ctx, streamID, expectedVersion)
		}

		es.logError(logMsgDBExecFailed, execErr, logAttrQuery, insertSQL)

		return 0, errors.Join(eventstore.ErrAppendingEventsFailed, execErr)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		if isConstraintError(commitErr) {
			return 0, es.conflictAfterConstraint(ctx, streamID, expectedVersion)
		}

		es.logError(logMsgCommitTxFailed, commitErr, logAttrStreamID, streamID)

		return 0, errors.Join(eventstore.ErrAppendingEventsFailed, commitErr)
	}

	return expectedVersion + eventstore.StreamVersionUint(len(events)), nil
}

// Read retrieves the committed events of one stream in ascending version order.
// fromVersion and toVersion bound the range inclusively; a zero toVersion means
// "to the head". Reading a stream with zero events returns ErrStreamNotFound.
func (es *EventStore) Read(
	ctx context.Context,
	streamID eventstore.StreamIDString,
	fromVersion eventstore.StreamVersionUint,
	toVersion eventstore.StreamVersionUint,
) (eventstore.StoredEvents, error) {

	if streamID == "" {
		return nil, eventstore.ErrEmptyStreamIDSupplied
	}

	selectStmt := goqu.Dialect(dialectSQLite).
		From(es.eventsTableName).
		Select(
			colStreamID, colStreamVersion, colEventType, colSchemaVersion,
			colPayload, colOccurredAt, colCorrelationID, colCausationID, colGlobalPosition,
		).
		Where(goqu.Ex{colStreamID: streamID}).
		Order(goqu.I(colStreamVersion).Asc())

	if fromVersion > 0 {
		selectStmt = selectStmt.Where(goqu.C(colStreamVersion).Gte(fromVersion))
	}

	if toVersion > 0 {
		selectStmt = selectStmt.Where(goqu.C(colStreamVersion).Lte(toVersion))
	}

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		es.logError(logMsgBuildQueryFailed, toSQLErr, logAttrStreamID, streamID)
		return nil, errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	eventStream, duration, readErr := es.queryEvents(ctx, sqlQuery)
	if readErr != nil {
		return nil, readErr
	}

	if len(eventStream) == 0 {
		headVersion, headErr := es.streamHeadVersion(ctx, streamID)
		if headErr != nil {
			return nil, headErr
		}

		if headVersion == 0 {
			return nil, eventstore.ErrStreamNotFound
		}
	}

	es.logInfo(logMsgReadCompleted,
		logAttrStreamID, streamID,
		logAttrEventCount, len(eventStream),
		logAttrDurationMS, toMilliseconds(duration))

	return eventStream, nil
}

// ReadAll retrieves one page of committed events across all streams in global commit
// order, starting after fromGlobalPosition. The page holds at most limit events,
// capped at 1000; an empty page means the feed is exhausted at read time.
func (es *EventStore) ReadAll(
	ctx context.Context,
	fromGlobalPosition eventstore.GlobalPositionUint64,
	limit int,
) (eventstore.StoredEvents, error) {

	selectStmt := goqu.Dialect(dialectSQLite).
		From(es.eventsTableName).
		Select(
			colStreamID, colStreamVersion, colEventType, colSchemaVersion,
			colPayload, colOccurredAt, colCorrelationID, colCausationID, colGlobalPosition,
		).
		Where(goqu.C(colGlobalPosition).Gt(fromGlobalPosition)).
		Order(goqu.I(colGlobalPosition).Asc()).
		Limit(normalizePageSize(limit))

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		es.logError(logMsgBuildQueryFailed, toSQLErr)
		return nil, errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	eventStream, duration, readErr := es.queryEvents(ctx, sqlQuery)
	if readErr != nil {
		return nil, readErr
	}

	es.logInfo(logMsgReadAllCompleted,
		logAttrFromPosition, fromGlobalPosition,
		logAttrEventCount, len(eventStream),
		logAttrDurationMS, toMilliseconds(duration))

	return eventStream, nil
}

func validateAppendInput(streamID eventstore.StreamIDString, events eventstore.StoredEvents) error {
	if streamID == "" {
		return eventstore.ErrEmptyStreamIDSupplied
	}

	if len(events) == 0 {
		return eventstore.ErrNoEventsSupplied
	}

	for _, event := range events {
		if event.StreamID != streamID {
			return eventstore.ErrStreamIDMismatch
		}
	}

	return nil
}

func normalizePageSize(limit int) uint {
	if limit <= 0 || limit > maxReadPageSize {
		return maxReadPageSize
	}

	return uint(limit)
}

func (es *EventStore) buildInsertQuery(
	expectedVersion eventstore.StreamVersionUint,
	events eventstore.StoredEvents,
) (string, error) {

	valueRows := make([][]interface{}, 0, len(events))
	for i, event := range events {
		valueRows = append(valueRows, goqu.Vals{
			event.StreamID,
			expectedVersion + eventstore.StreamVersionUint(i) + 1,
			event.EventType,
			event.SchemaVersion,
			event.PayloadJSON,
			toMicros(event.OccurredAt),
			event.CorrelationID,
			event.CausationID,
		})
	}

	insertStmt := goqu.Dialect(dialectSQLite).
		Insert(es.eventsTableName).
		Cols(
			colStreamID, colStreamVersion, colEventType, colSchemaVersion,
			colPayload, colOccurredAt, colCorrelationID, colCausationID,
		).
		Vals(valueRows...)

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		es.logError(logMsgBuildQueryFailed, toSQLErr)
		return "", errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// conflictAfterConstraint reads the stream head outside the failed transaction so
// the caller learns the actual version to reload from.
func (es *EventStore) conflictAfterConstraint(
	ctx context.Context,
	streamID eventstore.StreamIDString,
	expectedVersion eventstore.StreamVersionUint,
) error {

	actualVersion, headErr := es.streamHeadVersion(ctx, streamID)
	if headErr != nil {
		return headErr
	}

	return eventstore.BuildConcurrencyConflictError(streamID, expectedVersion, actualVersion)
}

func (es *EventStore) streamHeadVersion(
	ctx context.Context,
	streamID eventstore.StreamIDString,
) (eventstore.StreamVersionUint, error) {

	sqlQuery, buildErr := es.buildHeadVersionQuery(streamID)
	if buildErr != nil {
		return 0, buildErr
	}

	row := es.db.QueryRowContext(ctx, sqlQuery)

	return es.scanHeadVersion(row)
}

func (es *EventStore) streamHeadVersionTx(
	ctx context.Context,
	tx *sql.Tx,
	streamID eventstore.StreamIDString,
) (eventstore.StreamVersionUint, error) {

	sqlQuery, buildErr := es.buildHeadVersionQuery(streamID)
	if buildErr != nil {
		return 0, buildErr
	}

	row := tx.QueryRowContext(ctx, sqlQuery)

	return es.scanHeadVersion(row)
}

func (es *EventStore) buildHeadVersionQuery(streamID eventstore.StreamIDString) (string, error) {
	selectStmt := goqu.Dialect(dialectSQLite).
		From(es.eventsTableName).
		Select(goqu.COALESCE(goqu.MAX(colStreamVersion), 0).As(aliasHeadVersion)).
		Where(goqu.Ex{colStreamID: streamID})

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		es.logError(logMsgBuildQueryFailed, toSQLErr, logAttrStreamID, streamID)
		return "", errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (es *EventStore) scanHeadVersion(row *sql.Row) (eventstore.StreamVersionUint, error) {
	var headVersion int64
	if scanErr := row.Scan(&headVersion); scanErr != nil {
		es.logError(logMsgScanRowFailed, scanErr)
		return 0, errors.Join(eventstore.ErrReadingEventsFailed, scanErr)
	}

	return eventstore.StreamVersionUint(headVersion), nil
}

// queryEvents runs an event select and hydrates the rows into StoredEvents.
func (es *EventStore) queryEvents(ctx context.Context, sqlQuery string) (
	eventstore.StoredEvents,
	time.Duration,
	error,
) {

	start := time.Now()
	rows, queryErr := es.db.QueryContext(ctx, sqlQuery)
	duration := time.Since(start)
	es.logQueryWithDuration(sqlQuery, logActionRead, duration)

	if queryErr != nil {
		es.logError(logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return nil, duration, errors.Join(eventstore.ErrReadingEventsFailed, queryErr)
	}
	defer es.closeRows(rows)

	eventStream := make(eventstore.StoredEvents, 0)

	for rows.Next() {
		var (
			rowStreamID       string
			rowStreamVersion  int64
			rowEventType      string
			rowSchemaVersion  int64
			rowPayload        []byte
			rowOccurredAt     int64
			rowCorrelationID  string
			rowCausationID    string
			rowGlobalPosition int64
		)

		rowScanErr := rows.Scan(
			&rowStreamID,
			&rowStreamVersion,
			&rowEventType,
			&rowSchemaVersion,
			&rowPayload,
			&rowOccurredAt,
			&rowCorrelationID,
			&rowCausationID,
			&rowGlobalPosition,
		)
		if rowScanErr != nil {
			es.logError(logMsgScanRowFailed, rowScanErr)
			return nil, duration, errors.Join(eventstore.ErrScanningDBRowFailed, rowScanErr)
		}

		event, buildErr := eventstore.BuildStoredEvent(
			rowStreamID,
			rowEventType,
			uint(rowSchemaVersion),
			rowPayload,
			fromMicros(rowOccurredAt),
			rowCorrelationID,
			rowCausationID,
		)
		if buildErr != nil {
			es.logError(logMsgBuildStoredEventFailed, buildErr, colEventType, rowEventType)
			return nil, duration, errors.Join(eventstore.ErrBuildingStoredEventFailed, buildErr)
		}

		event.StreamVersion = eventstore.StreamVersionUint(rowStreamVersion)
		event.GlobalPosition = eventstore.GlobalPositionUint64(rowGlobalPosition)

		eventStream = append(eventStream, event)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, duration, errors.Join(eventstore.ErrReadingEventsFailed, rowsErr)
	}

	return eventStream, duration, nil
}

func (es *EventStore) rollback(tx *sql.Tx) {
	if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
		es.logWarn(logMsgCommitTxFailed, logAttrError, rollbackErr.Error())
	}
}

func (es *EventStore) closeRows(rows *sql.Rows) {
	if closeErr := rows.Close(); closeErr != nil {
		es.logWarn(logMsgCloseRowsFailed, logAttrError, closeErr.Error())
	}
}

// isConstraintError reports whether the error is a SQLite constraint violation,
// as surfaced by the modernc.org/sqlite driver.
func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	code := sqliteErr.Code()

	return code == sqlite3.SQLITE_CONSTRAINT ||
		code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// toMicros converts a timestamp to the integer representation stored in SQLite.
// The envelope truncates business time to microseconds, so nothing is lost.
func toMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicros(micros int64) time.Time {
	return time.UnixMicro(micros).UTC()
}

func toMilliseconds(duration time.Duration) int64 {
	return duration.Milliseconds()
}

func (es *EventStore) logQueryWithDuration(sqlQuery, action string, duration time.Duration) {
	if es.logger == nil {
		return
	}

	es.logger.Debug(logMsgSQLExecuted+action,
		logAttrQuery, sqlQuery,
		logAttrDurationMS, toMilliseconds(duration))
}

func (es *EventStore) logInfo(msg string, args ...any) {
	if es.logger == nil {
		return
	}

	es.logger.Info(msg, args...)
}

func (es *EventStore) logWarn(msg string, args ...any) {
	if es.logger == nil {
		return
	}

	es.logger.Warn(msg, args...)
}

func (es *EventStore) logError(msg string, err error, args ...any) {
	if es.logger == nil {
		return
	}

	es.logger.Error(msg, append(args, logAttrError, err.Error())...)
}
