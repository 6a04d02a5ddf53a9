package postgresengine

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
	observer, ctx := es.startManagementObserver(ctx, operationSaveCheckpoints, nil)

	if len(checkpoints) == 0 {
		observer.finishError(errorTypeValidation, 0)
		return eventstore.ErrNoCheckpointsSupplied
	}

	valueRows := make([][]interface{}, 0, len(checkpoints))
	for _, checkpoint := range checkpoints {
		if validationErr := checkpoint.Validate(); validationErr != nil {
			observer.finishError(errorTypeValidation, 0)
			return validationErr
		}

		valueRows = append(valueRows, goqu.Vals{
			checkpoint.RunID,
			checkpoint.StreamID,
			checkpoint.LastProcessedVersion,
			checkpoint.Status,
			checkpoint.UpdatedAt,
		})
	}

	insertStmt := goqu.Dialect(dialectPostgres).
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
		es.logError(logMsgBuildInsertQueryFailed, toSQLErr, logAttrRunID, checkpoints[0].RunID)
		observer.finishError(errorTypeQueryBuild, 0)

		return errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	_, duration, execErr := es.executeStatement(ctx, sqlQuery, logActionCheckpoint)
	if execErr != nil {
		observer.finishError(errorTypeDatabase, duration)
		return errors.Join(eventstore.ErrSavingCheckpointFailed, execErr)
	}

	es.logOperation(
		logMsgCheckpointsSaved,
		logAttrRunID, checkpoints[0].RunID,
		logAttrCheckpointCount, len(checkpoints),
		logAttrDurationMS, es.toMilliseconds(duration))
	es.logOperationContext(ctx,
		logMsgCheckpointsSaved,
		logAttrRunID, checkpoints[0].RunID,
		logAttrCheckpointCount, len(checkpoints),
		logAttrDurationMS, es.toMilliseconds(duration))

	observer.finishSuccess(duration)

	return nil
}

// LoadCheckpoints returns all persisted checkpoints of the given replay run,
// ordered by stream ID. An unknown run yields an empty slice.
func (es *EventStore) LoadCheckpoints(ctx context.Context, runID string) (eventstore.ReplayCheckpoints, error) {
	observer, ctx := es.startManagementObserver(ctx, operationLoadCheckpoints, nil)

	if runID == "" {
		observer.finishError(errorTypeValidation, 0)
		return nil, eventstore.ErrEmptyRunIDSupplied
	}

	selectStmt := goqu.Dialect(dialectPostgres).
		From(es.checkpointsTableName).
		Select(colRunID, colStreamID, colLastProcessedVersion, colStatus, colUpdatedAt).
		Where(goqu.Ex{colRunID: runID}).
		Order(goqu.I(colStreamID).Asc())

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		es.logError(logMsgBuildSelectQueryFailed, toSQLErr, logAttrRunID, runID)
		observer.finishError(errorTypeQueryBuild, 0)

		return nil, errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, duration, queryErr := es.executeQuery(ctx, sqlQuery)
	if queryErr != nil {
		observer.finishError(errorTypeDatabase, duration)
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
			loadedAt       time.Time
		)

		if scanErr := rows.Scan(&loadedRunID, &loadedStreamID, &loadedVersion, &loadedStatus, &loadedAt); scanErr != nil {
			es.logError(logMsgScanRowFailed, scanErr, logAttrRunID, runID)
			observer.finishError(errorTypeScan, duration)

			return nil, errors.Join(eventstore.ErrLoadingCheckpointFailed, eventstore.ErrScanningDBRowFailed, scanErr)
		}

		checkpoints = append(checkpoints, eventstore.ReplayCheckpoint{
			RunID:                loadedRunID,
			StreamID:             loadedStreamID,
			LastProcessedVersion: uint64(loadedVersion),
			Status:               loadedStatus,
			UpdatedAt:            loadedAt,
		})
	}

	observer.finishSuccess(duration)

	return checkpoints, nil
}

// DeleteCheckpoints removes every checkpoint of the given replay run.
// The operation is idempotent; deleting an unknown run is not an error.
func (es *EventStore) DeleteCheckpoints(ctx context.Context, runID string) error {
	observer, ctx := es.startManagementObserver(ctx, operationDeleteCheckpoints, nil)

	if runID == "" {
		observer.finishError(errorTypeValidation, 0)
		return eventstore.ErrEmptyRunIDSupplied
	}

	deleteStmt := goqu.Dialect(dialectPostgres).
		Delete(es.checkpointsTableName).
		Where(goqu.Ex{colRunID: runID})

	sqlQuery, _, toSQLErr := deleteStmt.ToSQL()
	if toSQLErr != nil {
		es.logError(logMsgBuildDeleteQueryFailed, toSQLErr, logAttrRunID, runID)
		observer.finishError(errorTypeQueryBuild, 0)

		return errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	rowsAffected, duration, execErr := es.executeStatement(ctx, sqlQuery, logActionCheckpoint)
	if execErr != nil {
		observer.finishError(errorTypeDatabase, duration)
		return errors.Join(eventstore.ErrDeletingCheckpointsFailed, execErr)
	}

	es.logOperation(
		logMsgCheckpointsDeleted,
		logAttrRunID, runID,
		logAttrDeletedCount, rowsAffected,
		logAttrDurationMS, es.toMilliseconds(duration))

	observer.finishSuccess(duration)

	return nil
}
