package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // driver import
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/versioned-streams/eventstore-go/eventstore"
	"github.com/versioned-streams/eventstore-go/eventstore/internal/adapters"
)

const (
	defaultEventsTableName      = "events"
	defaultSnapshotsTableName   = "snapshots"
	defaultCheckpointsTableName = "replay_checkpoints"

	logMsgBuildSelectQueryFailed  = "failed to build select query"
	logMsgBuildInsertQueryFailed  = "failed to build insert query"
	logMsgBuildDeleteQueryFailed  = "failed to build delete query"
	logMsgDBQueryFailed           = "database query execution failed"
	logMsgDBExecFailed            = "database execution failed"
	logMsgCloseRowsFailed         = "failed to close database rows"
	logMsgScanRowFailed           = "failed to scan database row"
	logMsgBuildStoredEventFailed  = "failed to build stored event from database row"
	logMsgRowsAffectedFailed      = "failed to get rows affected count"
	logMsgReadCompleted           = "events read"
	logMsgReadAllCompleted        = "global feed page read"
	logMsgEventsAppended          = "events appended"
	logMsgConcurrencyConflict     = "concurrency conflict detected"
	logMsgConflictVersionReadFail = "failed to read actual stream version after conflict"
	logMsgSQLExecuted             = "executed sql for: "
	logMsgOperation               = "eventstore operation: "

	logAttrError           = "error"
	logAttrQuery           = "query"
	logAttrStreamID        = "stream_id"
	logAttrEventType       = "event_type"
	logAttrEventCount      = "event_count"
	logAttrDurationMS      = "duration_ms"
	logAttrExpectedVersion = "expected_version"
	logAttrActualVersion   = "actual_version"
	logAttrNewVersion      = "new_version"
	logAttrRowsAffected    = "rows_affected"
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

	cteContext       = "context"
	cteVals          = "vals"
	dialectPostgres  = "postgres"
	aliasMaxVersion  = "max_version"
	aliasHeadVersion = "head_version"

	castText      = "?::text"
	castBigint    = "?::bigint"
	castInt       = "?::int"
	castJsonb     = "?::jsonb"
	castTimestamp = "?::timestamp with time zone"

	pgCodeUniqueViolation = "23505"

	maxReadPageSize = 1000
)

type (
	sqlQueryString    = string
	rowsAffectedInt64 = int64
	queryDuration     = time.Duration
)

// EventStore is the PostgreSQL-backed engine for per-stream versioned event storage.
// It persists events, snapshots, and replay checkpoints through a database adapter
// and supports customizable table names, logging, metrics, and tracing.
type EventStore struct {
	db                   adapters.DBAdapter
	eventsTableName      string
	snapshotsTableName   string
	checkpointsTableName string
	logger               Logger
	contextualLogger     ContextualLogger
	metricsCollector     MetricsCollector
	tracingCollector     TracingCollector
}

type queryResultRow struct {
	streamID       string
	streamVersion  int64
	eventType      string
	schemaVersion  int64
	payload        []byte
	occurredAt     time.Time
	correlationID  string
	causationID    string
	globalPosition int64
}

// NewEventStoreFromPGXPool creates a new EventStore using a pgx Pool with optional configuration.
func NewEventStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewPGXAdapter(db), options...)
}

// NewEventStoreFromPGXPoolWithReplica creates a new EventStore using a primary pgx Pool
// for writes and strongly consistent reads, and a replica pool for reads made with
// eventstore.WithEventualConsistency.
func NewEventStoreFromPGXPoolWithReplica(primary, replica *pgxpool.Pool, options ...Option) (*EventStore, error) {
	if primary == nil || replica == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewPGXAdapterWithReplica(primary, replica), options...)
}

// NewEventStoreFromSQLDB creates a new EventStore using a sql.DB with optional configuration.
func NewEventStoreFromSQLDB(db *sql.DB, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewSQLAdapter(db), options...)
}

// NewEventStoreFromSQLX creates a new EventStore using a sqlx.DB with optional configuration.
func NewEventStoreFromSQLX(db *sqlx.DB, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewSQLXAdapter(db), options...)
}

func newEventStore(db adapters.DBAdapter, options ...Option) (*EventStore, error) {
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

// Append atomically persists the given events onto the stream with contiguous versions
// starting at expectedVersion+1 and returns the new stream version.
//
// The compare-and-swap against the stream's current head version is part of the insert
// statement; racing writers that slip past it are caught by the (stream_id, stream_version)
// primary key. Either way the loser receives a ConcurrencyConflictError carrying the
// actual current version, so it can reload and retry.
func (es *EventStore) Append(
	ctx context.Context,
	streamID eventstore.StreamIDString,
	expectedVersion eventstore.StreamVersionUint,
	events ...eventstore.StoredEvent,
) (eventstore.StreamVersionUint, error) {

	tracing, ctx := es.startAppendTracing(ctx, streamID, len(events), expectedVersion)
	metrics := es.startAppendMetrics(ctx)

	if validationErr := validateAppendInput(streamID, events); validationErr != nil {
		tracing.finishError(errorTypeValidation, 0)
		metrics.recordError(errorTypeValidation, 0)

		return 0, validationErr
	}

	sqlQuery, buildQueryErr := es.buildAppendQuery(streamID, expectedVersion, events)
	if buildQueryErr != nil {
		tracing.finishError(errorTypeQueryBuild, 0)
		metrics.recordError(errorTypeQueryBuild, 0)

		return 0, buildQueryErr
	}

	rowsAffected, duration, execErr := es.executeAppendQuery(ctx, sqlQuery)
	if execErr != nil {
		if isUniqueViolation(execErr) {
			return es.handleConcurrencyConflict(ctx, streamID, expectedVersion, tracing, metrics, duration)
		}

		tracing.finishError(errorTypeDatabase, duration)
		metrics.recordError(errorTypeDatabase, duration)

		return 0, execErr
	}

	if rowsAffected < int64(len(events)) {
		return es.handleConcurrencyConflict(ctx, streamID, expectedVersion, tracing, metrics, duration)
	}

	newVersion := expectedVersion + eventstore.StreamVersionUint(len(events))

	es.logOperation(
		logMsgEventsAppended,
		logAttrStreamID, streamID,
		logAttrEventCount, len(events),
		logAttrNewVersion, newVersion,
		logAttrDurationMS, es.toMilliseconds(duration))
	es.logOperationContext(ctx,
		logMsgEventsAppended,
		logAttrStreamID, streamID,
		logAttrEventCount, len(events),
		logAttrNewVersion, newVersion,
		logAttrDurationMS, es.toMilliseconds(duration))

	metrics.recordSuccess(len(events), duration)
	tracing.finishSuccess(newVersion, rowsAffected, duration)

	return newVersion, nil
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

	tracing, ctx := es.startReadTracing(ctx, operationRead, streamID)
	metrics := es.startReadMetrics(ctx, operationRead)

	if streamID == "" {
		tracing.finishError(errorTypeValidation, 0)
		metrics.recordError(errorTypeValidation, 0)

		return nil, eventstore.ErrEmptyStreamIDSupplied
	}

	sqlQuery, buildQueryErr := es.buildReadQuery(streamID, fromVersion, toVersion)
	if buildQueryErr != nil {
		tracing.finishError(errorTypeQueryBuild, 0)
		metrics.recordError(errorTypeQueryBuild, 0)

		return nil, buildQueryErr
	}

	eventStream, duration, readErr := es.queryEvents(ctx, sqlQuery)
	if readErr != nil {
		tracing.finishError(errorTypeFor(readErr), duration)
		metrics.recordError(errorTypeFor(readErr), duration)

		return nil, readErr
	}

	if len(eventStream) == 0 {
		headVersion, headErr := es.readStreamHeadVersion(ctx, streamID)
		if headErr != nil {
			tracing.finishError(errorTypeDatabase, duration)
			metrics.recordError(errorTypeDatabase, duration)

			return nil, headErr
		}

		if headVersion == 0 {
			tracing.finishError(errorTypeNotFound, duration)
			metrics.recordError(errorTypeNotFound, duration)

			return nil, eventstore.ErrStreamNotFound
		}
	}

	es.logOperation(
		logMsgReadCompleted,
		logAttrStreamID, streamID,
		logAttrEventCount, len(eventStream),
		logAttrDurationMS, es.toMilliseconds(duration))
	es.logOperationContext(ctx,
		logMsgReadCompleted,
		logAttrStreamID, streamID,
		logAttrEventCount, len(eventStream),
		logAttrDurationMS, es.toMilliseconds(duration))

	metrics.recordSuccess(len(eventStream), duration)
	tracing.finishSuccess(len(eventStream), duration)

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

	tracing, ctx := es.startReadTracing(ctx, operationReadAll, "")
	metrics := es.startReadMetrics(ctx, operationReadAll)

	sqlQuery, buildQueryErr := es.buildReadAllQuery(fromGlobalPosition, normalizePageSize(limit))
	if buildQueryErr != nil {
		tracing.finishError(errorTypeQueryBuild, 0)
		metrics.recordError(errorTypeQueryBuild, 0)

		return nil, buildQueryErr
	}

	eventStream, duration, readErr := es.queryEvents(ctx, sqlQuery)
	if readErr != nil {
		tracing.finishError(errorTypeFor(readErr), duration)
		metrics.recordError(errorTypeFor(readErr), duration)

		return nil, readErr
	}

	es.logOperation(
		logMsgReadAllCompleted,
		logAttrFromPosition, fromGlobalPosition,
		logAttrEventCount, len(eventStream),
		logAttrDurationMS, es.toMilliseconds(duration))
	es.logOperationContext(ctx,
		logMsgReadAllCompleted,
		logAttrFromPosition, fromGlobalPosition,
		logAttrEventCount, len(eventStream),
		logAttrDurationMS, es.toMilliseconds(duration))

	metrics.recordSuccess(len(eventStream), duration)
	tracing.finishSuccess(len(eventStream), duration)

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

// handleConcurrencyConflict re-reads the stream's head version so the caller learns
// the actual version to reload from, then reports the conflict.
func (es *EventStore) handleConcurrencyConflict(
	ctx context.Context,
	streamID eventstore.StreamIDString,
	expectedVersion eventstore.StreamVersionUint,
	tracing *appendTracingObserver,
	metrics *appendMetricsObserver,
	duration queryDuration,
) (eventstore.StreamVersionUint, error) {

	actualVersion, readErr := es.readStreamHeadVersion(ctx, streamID)
	if readErr != nil {
		es.logError(logMsgConflictVersionReadFail, readErr, logAttrStreamID, streamID)
		tracing.finishError(errorTypeDatabase, duration)
		metrics.recordError(errorTypeDatabase, duration)

		return 0, readErr
	}

	es.logOperation(
		logMsgConcurrencyConflict,
		logAttrStreamID, streamID,
		logAttrExpectedVersion, expectedVersion,
		logAttrActualVersion, actualVersion)
	es.logOperationContext(ctx,
		logMsgConcurrencyConflict,
		logAttrStreamID, streamID,
		logAttrExpectedVersion, expectedVersion,
		logAttrActualVersion, actualVersion)

	metrics.recordConcurrencyConflict()
	tracing.finishErrorWithAttrs(errorTypeConcurrencyConflict, map[string]string{
		spanAttrExpectedVersion: fmt.Sprintf("%d", expectedVersion),
		spanAttrActualVersion:   fmt.Sprintf("%d", actualVersion),
	})

	return 0, eventstore.BuildConcurrencyConflictError(streamID, expectedVersion, actualVersion)
}

// readStreamHeadVersion returns the stream's current highest version, 0 for an absent stream.
func (es *EventStore) readStreamHeadVersion(
	ctx context.Context,
	streamID eventstore.StreamIDString,
) (eventstore.StreamVersionUint, error) {

	selectStmt := goqu.Dialect(dialectPostgres).
		From(es.eventsTableName).
		Select(goqu.COALESCE(goqu.MAX(colStreamVersion), 0).As(aliasHeadVersion)).
		Where(goqu.Ex{colStreamID: streamID})

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return 0, errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, _, queryErr := es.executeQuery(ctx, sqlQuery)
	if queryErr != nil {
		return 0, errors.Join(eventstore.ErrReadingEventsFailed, queryErr)
	}
	defer es.closeRows(rows)

	var headVersion int64
	if rows.Next() {
		if scanErr := rows.Scan(&headVersion); scanErr != nil {
			es.logError(logMsgScanRowFailed, scanErr)
			return 0, errors.Join(eventstore.ErrScanningDBRowFailed, scanErr)
		}
	}

	return eventstore.StreamVersionUint(headVersion), nil
}

// queryEvents runs an event select and hydrates the rows into StoredEvents.
func (es *EventStore) queryEvents(ctx context.Context, sqlQuery sqlQueryString) (
	eventstore.StoredEvents,
	queryDuration,
	error,
) {

	rows, duration, queryErr := es.executeQuery(ctx, sqlQuery)
	if queryErr != nil {
		return nil, duration, errors.Join(eventstore.ErrReadingEventsFailed, queryErr)
	}
	defer es.closeRows(rows)

	eventStream, scanErr := es.processEventRows(rows)
	if scanErr != nil {
		return nil, duration, scanErr
	}

	return eventStream, duration, nil
}

// executeQuery executes the SQL query and returns rows with timing information.
// Database errors come back unwrapped so callers can attach their own sentinel.
func (es *EventStore) executeQuery(ctx context.Context, sqlQuery sqlQueryString) (
	adapters.DBRows,
	queryDuration,
	error,
) {

	start := time.Now()
	rows, queryErr := es.db.Query(ctx, sqlQuery)
	duration := time.Since(start)
	es.logQueryWithDuration(ctx, sqlQuery, logActionRead, duration)

	if queryErr != nil {
		es.logError(logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return nil, duration, queryErr
	}

	return rows, duration, nil
}

// executeStatement executes a write statement and returns rows affected with timing
// information. Database errors come back unwrapped so callers can attach their own sentinel.
func (es *EventStore) executeStatement(ctx context.Context, sqlQuery sqlQueryString, action string) (
	rowsAffectedInt64,
	queryDuration,
	error,
) {

	start := time.Now()
	tag, execErr := es.db.Exec(ctx, sqlQuery)
	duration := time.Since(start)
	es.logQueryWithDuration(ctx, sqlQuery, action, duration)

	if execErr != nil {
		es.logError(logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		return 0, duration, execErr
	}

	rowsAffected, rowsAffectedErr := tag.RowsAffected()
	if rowsAffectedErr != nil {
		es.logError(logMsgRowsAffectedFailed, rowsAffectedErr)
		return 0, duration, errors.Join(eventstore.ErrGettingRowsAffectedFailed, rowsAffectedErr)
	}

	return rowsAffected, duration, nil
}

// closeRows safely closes database rows and logs any errors.
func (es *EventStore) closeRows(rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		if es.logger != nil {
			es.logger.Warn(logMsgCloseRowsFailed, logAttrError, closeErr.Error())
		}
	}
}

// processEventRows converts database rows into stored events.
func (es *EventStore) processEventRows(rows adapters.DBRows) (eventstore.StoredEvents, error) {
	result := queryResultRow{}
	eventStream := make(eventstore.StoredEvents, 0)

	for rows.Next() {
		rowScanErr := rows.Scan(
			&result.streamID,
			&result.streamVersion,
			&result.eventType,
			&result.schemaVersion,
			&result.payload,
			&result.occurredAt,
			&result.correlationID,
			&result.causationID,
			&result.globalPosition,
		)
		if rowScanErr != nil {
			es.logError(logMsgScanRowFailed, rowScanErr)
			return nil, errors.Join(eventstore.ErrScanningDBRowFailed, rowScanErr)
		}

		event, buildErr := eventstore.BuildStoredEvent(
			result.streamID,
			result.eventType,
			uint(result.schemaVersion),
			result.payload,
			result.occurredAt,
			result.correlationID,
			result.causationID,
		)
		if buildErr != nil {
			es.logError(logMsgBuildStoredEventFailed, buildErr, logAttrEventType, result.eventType)
			return nil, errors.Join(eventstore.ErrBuildingStoredEventFailed, buildErr)
		}

		event.StreamVersion = eventstore.StreamVersionUint(result.streamVersion)
		event.GlobalPosition = eventstore.GlobalPositionUint64(result.globalPosition)

		eventStream = append(eventStream, event)
	}

	return eventStream, nil
}

// executeAppendQuery executes the SQL append query and returns rows affected and duration.
func (es *EventStore) executeAppendQuery(ctx context.Context, sqlQuery sqlQueryString) (
	rowsAffectedInt64,
	queryDuration,
	error,
) {

	start := time.Now()
	tag, execErr := es.db.Exec(ctx, sqlQuery)
	duration := time.Since(start)
	es.logQueryWithDuration(ctx, sqlQuery, logActionAppend, duration)

	if execErr != nil {
		if !isUniqueViolation(execErr) {
			es.logError(logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		}

		return 0, duration, errors.Join(eventstore.ErrAppendingEventsFailed, execErr)
	}

	rowsAffected, rowsAffectedErr := tag.RowsAffected()
	if rowsAffectedErr != nil {
		es.logError(logMsgRowsAffectedFailed, rowsAffectedErr)
		return 0, duration, errors.Join(eventstore.ErrGettingRowsAffectedFailed, rowsAffectedErr)
	}

	return rowsAffected, duration, nil
}

func (es *EventStore) buildReadQuery(
	streamID eventstore.StreamIDString,
	fromVersion eventstore.StreamVersionUint,
	toVersion eventstore.StreamVersionUint,
) (sqlQueryString, error) {

	selectStmt := goqu.Dialect(dialectPostgres).
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
		es.logError(logMsgBuildSelectQueryFailed, toSQLErr, logAttrStreamID, streamID)
		return "", errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (es *EventStore) buildReadAllQuery(
	fromGlobalPosition eventstore.GlobalPositionUint64,
	pageSize uint,
) (sqlQueryString, error) {

	selectStmt := goqu.Dialect(dialectPostgres).
		From(es.eventsTableName).
		Select(
			colStreamID, colStreamVersion, colEventType, colSchemaVersion,
			colPayload, colOccurredAt, colCorrelationID, colCausationID, colGlobalPosition,
		).
		Where(goqu.C(colGlobalPosition).Gt(fromGlobalPosition)).
		Order(goqu.I(colGlobalPosition).Asc()).
		Limit(pageSize)

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		es.logError(logMsgBuildSelectQueryFailed, toSQLErr)
		return "", errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// buildAppendQuery builds the appropriate SQL statement for single or multiple events.
func (es *EventStore) buildAppendQuery(
	streamID eventstore.StreamIDString,
	expectedVersion eventstore.StreamVersionUint,
	events eventstore.StoredEvents,
) (sqlQueryString, error) {

	var sqlQuery sqlQueryString
	var buildQueryErr error

	switch len(events) {
	case 1:
		sqlQuery, buildQueryErr = es.buildInsertQueryForSingleEvent(streamID, expectedVersion, events[0])

	default:
		sqlQuery, buildQueryErr = es.buildInsertQueryForMultipleEvents(streamID, expectedVersion, events)
	}

	if buildQueryErr != nil {
		es.logError(logMsgBuildInsertQueryFailed, buildQueryErr,
			logAttrStreamID, streamID, logAttrEventCount, len(events))

		return "", buildQueryErr
	}

	return sqlQuery, nil
}

// buildInsertQueryForSingleEvent guards the insert with a compare-and-swap on the
// stream's current head version: the SELECT feeding the INSERT yields one row only
// when COALESCE(MAX(stream_version), 0) still equals the expected version.
func (es *EventStore) buildInsertQueryForSingleEvent(
	streamID eventstore.StreamIDString,
	expectedVersion eventstore.StreamVersionUint,
	event eventstore.StoredEvent,
) (sqlQueryString, error) {

	builder := goqu.Dialect(dialectPostgres)

	cteStmt := builder.
		From(es.eventsTableName).
		Select(goqu.MAX(colStreamVersion).As(aliasMaxVersion)).
		Where(goqu.Ex{colStreamID: streamID})

	selectStmt := builder.
		From(cteContext).
		Select(
			goqu.V(event.StreamID),
			goqu.V(expectedVersion+1),
			goqu.V(event.EventType),
			goqu.V(event.SchemaVersion),
			goqu.V(event.PayloadJSON),
			goqu.V(event.OccurredAt),
			goqu.V(event.CorrelationID),
			goqu.V(event.CausationID),
		).
		Where(goqu.COALESCE(goqu.C(aliasMaxVersion), 0).Eq(goqu.V(expectedVersion)))

	insertStmt := builder.
		Insert(es.eventsTableName).
		Cols(
			colStreamID, colStreamVersion, colEventType, colSchemaVersion,
			colPayload, colOccurredAt, colCorrelationID, colCausationID,
		).
		FromQuery(selectStmt).
		With(cteContext, cteStmt)

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// buildInsertQueryForMultipleEvents extends the single-event compare-and-swap to a
// batch: the candidate rows are assembled in a VALUES-like CTE and all of them are
// inserted, or none, depending on the head version check.
func (es *EventStore) buildInsertQueryForMultipleEvents(
	streamID eventstore.StreamIDString,
	expectedVersion eventstore.StreamVersionUint,
	events eventstore.StoredEvents,
) (sqlQueryString, error) {

	builder := goqu.Dialect(dialectPostgres)

	cteStmt := builder.
		From(es.eventsTableName).
		Select(goqu.MAX(colStreamVersion).As(aliasMaxVersion)).
		Where(goqu.Ex{colStreamID: streamID})

	unionStatements := make([]*goqu.SelectDataset, len(events))
	for i, event := range events {
		unionStatements[i] = builder.
			Select(
				goqu.L(castText, event.StreamID).As(colStreamID),
				goqu.L(castBigint, expectedVersion+eventstore.StreamVersionUint(i)+1).As(colStreamVersion),
				goqu.L(castText, event.EventType).As(colEventType),
				goqu.L(castInt, event.SchemaVersion).As(colSchemaVersion),
				goqu.L(castJsonb, event.PayloadJSON).As(colPayload),
				goqu.L(castTimestamp, event.OccurredAt).As(colOccurredAt),
				goqu.L(castText, event.CorrelationID).As(colCorrelationID),
				goqu.L(castText, event.CausationID).As(colCausationID),
			)
	}

	valuesStmt := unionStatements[0]
	for i := 1; i < len(unionStatements); i++ {
		valuesStmt = valuesStmt.UnionAll(unionStatements[i])
	}

	valsStreamID := fmt.Sprintf("%s.%s", cteVals, colStreamID)
	valsStreamVersion := fmt.Sprintf("%s.%s", cteVals, colStreamVersion)
	valsEventType := fmt.Sprintf("%s.%s", cteVals, colEventType)
	valsSchemaVersion := fmt.Sprintf("%s.%s", cteVals, colSchemaVersion)
	valsPayload := fmt.Sprintf("%s.%s", cteVals, colPayload)
	valsOccurredAt := fmt.Sprintf("%s.%s", cteVals, colOccurredAt)
	valsCorrelationID := fmt.Sprintf("%s.%s", cteVals, colCorrelationID)
	valsCausationID := fmt.Sprintf("%s.%s", cteVals, colCausationID)

	insertStmt := builder.
		Insert(es.eventsTableName).
		Cols(
			colStreamID, colStreamVersion, colEventType, colSchemaVersion,
			colPayload, colOccurredAt, colCorrelationID, colCausationID,
		).
		With(cteContext, cteStmt).
		With(cteVals, valuesStmt).
		FromQuery(
			builder.From(cteContext, cteVals).
				Select(
					valsStreamID, valsStreamVersion, valsEventType, valsSchemaVersion,
					valsPayload, valsOccurredAt, valsCorrelationID, valsCausationID,
				).
				Where(goqu.COALESCE(goqu.C(aliasMaxVersion), 0).Eq(goqu.V(expectedVersion))),
		)

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// isUniqueViolation reports whether the error is a Postgres unique constraint violation,
// as surfaced by either the pgx or the lib/pq driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgCodeUniqueViolation
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgCodeUniqueViolation
	}

	return false
}

// errorTypeFor maps an error to its observability label.
func errorTypeFor(err error) string {
	switch {
	case errors.Is(err, eventstore.ErrScanningDBRowFailed),
		errors.Is(err, eventstore.ErrBuildingStoredEventFailed):
		return errorTypeScan
	default:
		return errorTypeDatabase
	}
}
