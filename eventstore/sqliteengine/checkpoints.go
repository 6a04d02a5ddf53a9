package sqliteengine

import (
	"context"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/versioned-streams/eventstore-go/eventstore"
)

const (
	logMsgCheckpointsSaved   = "replay checkpoints saved"
	logMsgCheckpointsDeleted = "replay checkpoints deleted"
	logAttrRunID             = "replay_run_id"
	logAttrCheckpointCount   = "checkpoint_count"
	checkpointConflictTarget = "replay_run_id, stream_id"
	logActionCheckpoint      = "checkpoint"
	excludedPrefix           = "EXCLUDED."
)

// SaveCheckpoints upserts the given replay checkpoints keyed by (replay_run_id, stream_id).
// A replay run flushes one batch's worth of checkpoints in a single statement so that a
// crash between batches loses at most one checkpoint interval of progress.
func (es *EventStore) SaveCheckpoints(ctx context.Context, checkpoints ...eventstore.ReplayCheckpoint) error {
	if len(checkpoints) == 0 {
		return eventstore.ErrNoCheckpointsSupplied
	}

	valueRows := make([][]interface{}, 0, len(checkpoints))
	for _, checkpoint := range checkpoints {
		if validationErr := checkpoint.Validate(); validationErr != nil {
			return validationErr
		}

		valueRows = append(valueRows, goqu.Vals{
			checkpoint.RunID,
			checkpoint.StreamID,
			checkpoint.LastProcessedVersion,
			checkpoint.Status,
			toMicros(checkpoint.UpdatedAt),
		})
	}

	insertStmt := goqu.Dialect(dialectSQLite).
		Insert(es.checkpointsTableName).
		Cols(colRunID, colStreamID, colLastProcessedVersion, colStatus, colUpdatedAt).
		Vals(valueRows...).
		OnConflict(goqu.DoUpdate(checkpointConflictTarget, goqu.Record{
			colLastProcessedVersion: goqu.L(excludedPrefix + colLastProcessedVersion),
			colStatus:               goqu.L(excludedPrefix + colStatus),
			colUpdatedAt:            goqu.L(excludedPrefix + colUpdatedAt),
		}))

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		es.logError(logMsgBuildQueryFailed, toSQLErr, logAttrRunID, checkpoints[0].RunID)
		return errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	start := time.Now()
	_, execErr := es.db.ExecContext(ctx, sqlQuery)
	duration := time.Since(start)
	es.logQueryWithDuration(sqlQuery, logActionCheckpoint, duration)

	if execErr != nil {
		es.logError(logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		return errors.Join(eventstore.ErrSavingCheckpointFailed, execErr)
	}

	es.logInfo(logMsgCheckpointsSaved,
		logAttrRunID, checkpoints[0].RunID,
		logAttrCheckpointCount, len(checkpoints),
		logAttrDurationMS, toMilliseconds(duration))

	return nil
}

// LoadCheckpoints returns all persisted checkpoints of the given replay run,
// ordered by stream ID. An unknown run yields an empty slice.
func (es *EventStore) LoadCheckpoints(ctx context.Context, runID string) (eventstore.ReplayCheckpoints, error) {
	if runID == "" {
		return nil, eventstore.ErrEmptyRunIDSupplied
	}

	selectStmt := goqu.Dialect(dialectSQLite).
		From(es.checkpointsTableName).
		Select(colRunID, colStreamID, colLastProcessedVersion, colStatus, colUpdatedAt).
		Where(goqu.Ex{colRunID: runID}).
		Order(goqu.I(colStreamID).Asc())

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		es.logError(logMsgBuildQueryFailed, toSQLErr, logAttrRunID, runID)
		return nil, errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, queryErr := es.db.QueryContext(ctx, sqlQuery)
	if queryErr != nil {
		es.logError(logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return nil, errors.Join(eventstore.ErrLoadingCheckpointFailed, queryErr)
	}
	defer es.closeRows(rows)

	checkpoints := make(eventstore.ReplayCheckpoints, 0)

	for rows.Next() {
		var (
			loadedRunID    string
			loadedStreamID string
			loadedVersion  int64
			loadedStatus   string
			loadedAt       int64
		)

		if scanErr := rows.Scan(&loadedRunID, &loadedStreamID, &loadedVersion, &loadedStatus, &loadedAt); scanErr != nil {
			es.logError(logMsgScanRowFailed, scanErr, logAttrRunID, runID)
			return nil, errors.Join(eventstore.ErrLoadingCheckpointFailed, eventstore.ErrScanningDBRowFailed, scanErr)
		}

		checkpoints = append(checkpoints, eventstore.ReplayCheckpoint{
			RunID:                loadedRunID,
			StreamID:             loadedStreamID,
			LastProcessedVersion: uint64(loadedVersion),
			Status:               loadedStatus,
			UpdatedAt:            fromMicros(loadedAt),
		})
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, errors.Join(eventstore.ErrLoadingCheckpointFailed, rowsErr)
	}

	return checkpoints, nil
}

// DeleteCheckpoints removes every checkpoint of the given replay run.
// The operation is idempotent; deleting an unknown run is not an error.
func (es *EventStore) DeleteCheckpoints(ctx context.Context, runID string) error {
	if runID == "" {
		return eventstore.ErrEmptyRunIDSupplied
	}

	deleteStmt := goqu.Dialect(dialectSQLite).
		Delete(es.checkpointsTableName).
		Where(goqu.Ex{colRunID: runID})

	sqlQuery, _, toSQLErr := deleteStmt.ToSQL()
	if toSQLErr != nil {
		es.logError(logMsgBuildQueryFailed, toSQLErr, logAttrRunID, runID)
		return errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	result, execErr := es.db.ExecContext(ctx, sqlQuery)
	if execErr != nil {
		es.logError(logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		return errors.Join(eventstore.ErrDeletingCheckpointsFailed, execErr)
	}

	deletedCount, _ := result.RowsAffected()

	es.logInfo(logMsgCheckpointsDeleted,
		logAttrRunID, runID,
		logAttrDeletedCount, deletedCount)

	return nil
}
