package sqliteengine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/versioned-streams/eventstore-go/eventstore"
)

const (
	logMsgSnapshotSaved    = "snapshot saved"
	logMsgSnapshotLoaded   = "snapshot loaded"
	logMsgSnapshotsDeleted = "snapshots deleted"
	logAttrSnapshotVersion = "snapshot_version"
	logAttrMaxVersion      = "max_version"
	logAttrDeletedCount    = "deleted_count"
	aliasSnapshotCount     = "snapshot_count"
	aliasLatestVersion     = "latest_version"
	snapshotConflictTarget = "stream_id, stream_version"
	logActionSnapshot      = "snapshot"
)

// SaveSnapshot persists a snapshot, upserting on (stream_id, stream_version).
// Snapshots are derived state: overwriting one with a newer capture of the same
// version is always safe because replay up to a version is deterministic.
func (es *EventStore) SaveSnapshot(ctx context.Context, snapshot eventstore.Snapshot) error {
	if validationErr := snapshot.Validate(); validationErr != nil {
		return validationErr
	}

	insertStmt := goqu.Dialect(dialectSQLite).
		Insert(es.snapshotsTableName).
		Cols(colStreamID, colStreamVersion, colState, colCreatedAt).
		Vals(goqu.Vals{snapshot.StreamID, snapshot.Version, []byte(snapshot.State), toMicros(snapshot.CreatedAt)}).
		OnConflict(goqu.DoUpdate(snapshotConflictTarget, goqu.Record{
			colState:     []byte(snapshot.State),
			colCreatedAt: toMicros(snapshot.CreatedAt),
		}))

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		es.logError(logMsgBuildQueryFailed, toSQLErr, logAttrStreamID, snapshot.StreamID)
		return errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	start := time.Now()
	_, execErr := es.db.ExecContext(ctx, sqlQuery)
	duration := time.Since(start)
	es.logQueryWithDuration(sqlQuery, logActionSnapshot, duration)

	if execErr != nil {
		es.logError(logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		return errors.Join(eventstore.ErrSavingSnapshotFailed, execErr)
	}

	es.logInfo(logMsgSnapshotSaved,
		logAttrStreamID, snapshot.StreamID,
		logAttrSnapshotVersion, snapshot.Version,
		logAttrDurationMS, toMilliseconds(duration))

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

	if streamID == "" {
		return nil, eventstore.ErrEmptyStreamIDSupplied
	}

	selectStmt := goqu.Dialect(dialectSQLite).
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
		es.logError(logMsgBuildQueryFailed, toSQLErr, logAttrStreamID, streamID)
		return nil, errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	var (
		loadedStreamID string
		loadedVersion  int64
		loadedState    []byte
		loadedAt       int64
	)

	scanErr := es.db.QueryRowContext(ctx, sqlQuery).
		Scan(&loadedStreamID, &loadedVersion, &loadedState, &loadedAt)

	if errors.Is(scanErr, sql.ErrNoRows) {
		return nil, nil
	}

	if scanErr != nil {
		es.logError(logMsgScanRowFailed, scanErr, logAttrStreamID, streamID)
		return nil, errors.Join(eventstore.ErrLoadingSnapshotFailed, scanErr)
	}

	snapshot := &eventstore.Snapshot{
		StreamID:  loadedStreamID,
		Version:   eventstore.StreamVersionUint(loadedVersion),
		State:     json.RawMessage(loadedState),
		CreatedAt: fromMicros(loadedAt),
	}

	es.logInfo(logMsgSnapshotLoaded,
		logAttrStreamID, streamID,
		logAttrSnapshotVersion, snapshot.Version)

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

	if streamID == "" {
		return eventstore.ErrEmptyStreamIDSupplied
	}

	deleteStmt := goqu.Dialect(dialectSQLite).
		Delete(es.snapshotsTableName).
		Where(
			goqu.Ex{colStreamID: streamID},
			goqu.C(colStreamVersion).Lt(version),
		)

	sqlQuery, _, toSQLErr := deleteStmt.ToSQL()
	if toSQLErr != nil {
		es.logError(logMsgBuildQueryFailed, toSQLErr, logAttrStreamID, streamID)
		return errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	result, execErr := es.db.ExecContext(ctx, sqlQuery)
	if execErr != nil {
		es.logError(logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		return errors.Join(eventstore.ErrDeletingSnapshotsFailed, execErr)
	}

	deletedCount, _ := result.RowsAffected()

	es.logInfo(logMsgSnapshotsDeleted,
		logAttrStreamID, streamID,
		logAttrMaxVersion, version,
		logAttrDeletedCount, deletedCount)

	return nil
}

// GetSnapshotStats returns the snapshot count and the newest snapshot version for a stream.
func (es *EventStore) GetSnapshotStats(
	ctx context.Context,
	streamID eventstore.StreamIDString,
) (eventstore.SnapshotStats, error) {

	if streamID == "" {
		return eventstore.SnapshotStats{}, eventstore.ErrEmptyStreamIDSupplied
	}

	selectStmt := goqu.Dialect(dialectSQLite).
		From(es.snapshotsTableName).
		Select(
			goqu.COUNT(goqu.Star()).As(aliasSnapshotCount),
			goqu.COALESCE(goqu.MAX(colStreamVersion), 0).As(aliasLatestVersion),
		).
		Where(goqu.Ex{colStreamID: streamID})

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		es.logError(logMsgBuildQueryFailed, toSQLErr, logAttrStreamID, streamID)
		return eventstore.SnapshotStats{}, errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	var (
		count         int64
		latestVersion int64
	)

	if scanErr := es.db.QueryRowContext(ctx, sqlQuery).Scan(&count, &latestVersion); scanErr != nil {
		es.logError(logMsgScanRowFailed, scanErr, logAttrStreamID, streamID)
		return eventstore.SnapshotStats{}, errors.Join(eventstore.ErrLoadingSnapshotFailed, scanErr)
	}

	return eventstore.SnapshotStats{
		Count:         uint64(count),
		LatestVersion: eventstore.StreamVersionUint(latestVersion),
	}, nil
}
