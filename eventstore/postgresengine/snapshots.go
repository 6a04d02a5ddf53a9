package postgresengine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/versioned-streams/eventstore-go/eventstore"
)

const (
	logMsgSnapshotSaved     = "snapshot saved"
	logMsgSnapshotLoaded    = "snapshot loaded"
	logMsgSnapshotsDeleted  = "snapshots deleted"
	logAttrSnapshotVersion  = "snapshot_version"
	logAttrMaxVersion       = "max_version"
	logAttrDeletedCount     = "deleted_count"
	aliasSnapshotCount      = "snapshot_count"
	aliasLatestVersion      = "latest_version"
	snapshotConflictTarget  = "stream_id, stream_version"
	logActionSnapshot       = "snapshot"
	logActionSnapshotDelete = "snapshot delete"
)

// SaveSnapshot persists a snapshot, upserting on (stream_id, stream_version).
// Snapshots are derived state: overwriting one with a newer capture of the same
// version is always safe because replay up to a version is deterministic.
func (es *EventStore) SaveSnapshot(ctx context.Context, snapshot eventstore.Snapshot) error {
	observer, ctx := es.startManagementObserver(ctx, operationSaveSnapshot, map[string]string{
		spanAttrStreamID: snapshot.StreamID,
	})

	if validationErr := snapshot.Validate(); validationErr != nil {
		observer.finishError(errorTypeValidation, 0)
		return validationErr
	}

	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(es.snapshotsTableName).
		Cols(colStreamID, colStreamVersion, colState, colCreatedAt).
		Vals(goqu.Vals{snapshot.StreamID, snapshot.Version, []byte(snapshot.State), snapshot.CreatedAt}).
		OnConflict(goqu.DoUpdate(snapshotConflictTarget, goqu.Record{
			colState:     []byte(snapshot.State),
			colCreatedAt: snapshot.CreatedAt,
		}))

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		es.logError(logMsgBuildInsertQueryFailed, toSQLErr, logAttrStreamID, snapshot.StreamID)
		observer.finishError(errorTypeQueryBuild, 0)

		return errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	_, duration, execErr := es.executeStatement(ctx, sqlQuery, logActionSnapshot)
	if execErr != nil {
		observer.finishError(errorTypeDatabase, duration)
		return errors.Join(eventstore.ErrSavingSnapshotFailed, execErr)
	}

	es.logOperation(
		logMsgSnapshotSaved,
		logAttrStreamID, snapshot.StreamID,
		logAttrSnapshotVersion, snapshot.Version,
		logAttrDurationMS, es.toMilliseconds(duration))
	es.logOperationContext(ctx,
		logMsgSnapshotSaved,
		logAttrStreamID, snapshot.StreamID,
		logAttrSnapshotVersion, snapshot.Version,
		logAttrDurationMS, es.toMilliseconds(duration))

	observer.finishSuccess(duration)

	return nil
}

// LoadLatestSnapshot returns the newest snapshot of the stream with version <= maxVersion,
// or nil when none exists. A zero maxVersion means "no upper bound". The persisted state
// is returned as-is: decode failures are for the caller to detect, which then falls back
// to a full replay from version 0.
func (es *EventStore) LoadLatestSnapshot(
	ctx context.Context,
	streamID eventstore.StreamIDString,
	maxVersion eventstore.StreamVersionUint,
) (*eventstore.Snapshot, error) {

	observer, ctx := es.startManagementObserver(ctx, operationLoadSnapshot, map[string]string{
		spanAttrStreamID: streamID,
	})

	if streamID == "" {
		observer.finishError(errorTypeValidation, 0)
		return nil, eventstore.ErrEmptyStreamIDSupplied
	}

	selectStmt := goqu.Dialect(dialectPostgres).
		From(es.snapshotsTableName).
		Select(colStreamID, colStreamVersion, colState, colCreatedAt).
		Where(goqu.Ex{colStreamID: streamID}).
		Order(goqu.I(colStreamVersion).Desc()).
		Limit(1)

	if maxVersion > 0 {
		selectStmt = selectStmt.Where(goqu.C(colStreamVersion).Lte(maxVersion))
	}

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		es.logError(logMsgBuildSelectQueryFailed, toSQLErr, logAttrStreamID, streamID)
		observer.finishError(errorTypeQueryBuild, 0)

		return nil, errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, duration, queryErr := es.executeQuery(ctx, sqlQuery)
	if queryErr != nil {
		observer.finishError(errorTypeDatabase, duration)
		return nil, errors.Join(eventstore.ErrLoadingSnapshotFailed, queryErr)
	}
	defer es.closeRows(rows)

	if !rows.Next() {
		observer.finishSuccess(duration)
		return nil, nil
	}

	var (
		loadedStreamID string
		loadedVersion  int64
		loadedState    []byte
		loadedAt       time.Time
	)

	if scanErr := rows.Scan(&loadedStreamID, &loadedVersion, &loadedState, &loadedAt); scanErr != nil {
		es.logError(logMsgScanRowFailed, scanErr, logAttrStreamID, streamID)
		observer.finishError(errorTypeScan, duration)

		return nil, errors.Join(eventstore.ErrLoadingSnapshotFailed, eventstore.ErrScanningDBRowFailed, scanErr)
	}

	snapshot := &eventstore.Snapshot{
		StreamID:  loadedStreamID,
		Version:   eventstore.StreamVersionUint(loadedVersion),
		State:     json.RawMessage(loadedState),
		CreatedAt: loadedAt,
	}

	es.logOperation(
		logMsgSnapshotLoaded,
		logAttrStreamID, streamID,
		logAttrSnapshotVersion, snapshot.Version,
		logAttrDurationMS, es.toMilliseconds(duration))

	observer.finishSuccess(duration)

	return snapshot, nil
}

// DeleteSnapshotsBefore deletes every snapshot of the stream with a version strictly
// below the given version. The operation is idempotent; deleting from a stream without
// snapshots is not an error.
func (es *EventStore) DeleteSnapshotsBefore(
	ctx context.Context,
	streamID eventstore.StreamIDString,
	version eventstore.StreamVersionUint,
) error {

	observer, ctx := es.startManagementObserver(ctx, operationDeleteSnapshots, map[string]string{
		spanAttrStreamID: streamID,
	})

	if streamID == "" {
		observer.finishError(errorTypeValidation, 0)
		return eventstore.ErrEmptyStreamIDSupplied
	}

	deleteStmt := goqu.Dialect(dialectPostgres).
		Delete(es.snapshotsTableName).
		Where(
			goqu.Ex{colStreamID: streamID},
			goqu.C(colStreamVersion).Lt(version),
		)

	sqlQuery, _, toSQLErr := deleteStmt.ToSQL()
	if toSQLErr != nil {
		es.logError(logMsgBuildDeleteQueryFailed, toSQLErr, logAttrStreamID, streamID)
		observer.finishError(errorTypeQueryBuild, 0)

		return errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	rowsAffected, duration, execErr := es.executeStatement(ctx, sqlQuery, logActionSnapshotDelete)
	if execErr != nil {
		observer.finishError(errorTypeDatabase, duration)
		return errors.Join(eventstore.ErrDeletingSnapshotsFailed, execErr)
	}

	es.logOperation(
		logMsgSnapshotsDeleted,
		logAttrStreamID, streamID,
		logAttrMaxVersion, version,
		logAttrDeletedCount, rowsAffected,
		logAttrDurationMS, es.toMilliseconds(duration))

	observer.finishSuccess(duration)

	return nil
}

// GetSnapshotStats returns the snapshot count and the newest snapshot version for a stream.
func (es *EventStore) GetSnapshotStats(
	ctx context.Context,
	streamID eventstore.StreamIDString,
) (eventstore.SnapshotStats, error) {

	observer, ctx := es.startManagementObserver(ctx, operationSnapshotStats, map[string]string{
		spanAttrStreamID: streamID,
	})

	if streamID == "" {
		observer.finishError(errorTypeValidation, 0)
		return eventstore.SnapshotStats{}, eventstore.ErrEmptyStreamIDSupplied
	}

	selectStmt := goqu.Dialect(dialectPostgres).
		From(es.snapshotsTableName).
		Select(
			goqu.COUNT(goqu.Star()).As(aliasSnapshotCount),
			goqu.COALESCE(goqu.MAX(colStreamVersion), 0).As(aliasLatestVersion),
		).
		Where(goqu.Ex{colStreamID: streamID})

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		es.logError(logMsgBuildSelectQueryFailed, toSQLErr, logAttrStreamID, streamID)
		observer.finishError(errorTypeQueryBuild, 0)

		return eventstore.SnapshotStats{}, errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, duration, queryErr := es.executeQuery(ctx, sqlQuery)
	if queryErr != nil {
		observer.finishError(errorTypeDatabase, duration)
		return eventstore.SnapshotStats{}, errors.Join(eventstore.ErrLoadingSnapshotFailed, queryErr)
	}
	defer es.closeRows(rows)

	var (
		count         int64
		latestVersion int64
	)

	if rows.Next() {
		if scanErr := rows.Scan(&count, &latestVersion); scanErr != nil {
			es.logError(logMsgScanRowFailed, scanErr, logAttrStreamID, streamID)
			observer.finishError(errorTypeScan, duration)

			return eventstore.SnapshotStats{}, errors.Join(eventstore.ErrLoadingSnapshotFailed, eventstore.ErrScanningDBRowFailed, scanErr)
		}
	}

	observer.finishSuccess(duration)

	return eventstore.SnapshotStats{
		Count:         uint64(count),
		LatestVersion: eventstore.StreamVersionUint(latestVersion),
	}, nil
}
