package postgresengine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/versioned-streams/eventstore-go/eventstore"
)

const (
	operationAppend            = "append"
	operationRead              = "read"
	operationReadAll           = "read_all"
	operationSaveSnapshot      = "save_snapshot"
	operationLoadSnapshot      = "load_snapshot"
	operationDeleteSnapshots   = "delete_snapshots"
	operationSnapshotStats     = "snapshot_stats"
	operationSaveCheckpoints   = "save_checkpoints"
	operationLoadCheckpoints   = "load_checkpoints"
	operationDeleteCheckpoints = "delete_checkpoints"

	spanNameAppend     = "eventstore.append"
	spanNamePrefix     = "eventstore."
	statusSuccess      = "success"
	statusError        = "error"
	labelStatus        = "status"
	labelConflictType  = "conflict_type"
	conflictTypeStatus = "concurrency"

	spanAttrOperation       = "operation"
	spanAttrErrorType       = "error_type"
	spanAttrStreamID        = "stream_id"
	spanAttrEventCount      = "event_count"
	spanAttrExpectedVersion = "expected_version"
	spanAttrActualVersion   = "actual_version"
	spanAttrNewVersion      = "new_version"
	spanAttrRowsAffected    = "rows_affected"
	spanAttrDurationMS      = "duration_ms"

	metricAppendDuration       = "eventstore_append_duration"
	metricReadDuration         = "eventstore_read_duration"
	metricManagementDuration   = "eventstore_management_duration"
	metricEventsAppended       = "eventstore_events_appended"
	metricEventsRead           = "eventstore_events_read"
	metricDatabaseErrors       = "eventstore_database_errors"
	metricConcurrencyConflicts = "eventstore_concurrency_conflicts"

	errorTypeValidation          = "validation"
	errorTypeQueryBuild          = "query_build"
	errorTypeDatabase            = "database"
	errorTypeScan                = "scan"
	errorTypeNotFound            = "stream_not_found"
	errorTypeConcurrencyConflict = "concurrency_conflict"
)

// logQueryWithDuration logs SQL queries with execution time at debug level if a logger is configured.
func (es *EventStore) logQueryWithDuration(
	ctx context.Context,
	sqlQuery string,
	action string,
	duration time.Duration,
) {
	if es.logger != nil {
		es.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, es.toMilliseconds(duration), logAttrQuery, sqlQuery)
	}

	if es.contextualLogger != nil {
		es.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+action, logAttrDurationMS, es.toMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// logOperation logs operational information at info level if the logger is configured.
func (es *EventStore) logOperation(action string, args ...any) {
	if es.logger != nil {
		es.logger.Info(logMsgOperation+action, args...)
	}
}

// logOperationContext logs operational information with context correlation.
func (es *EventStore) logOperationContext(ctx context.Context, action string, args ...any) {
	if es.contextualLogger != nil {
		es.contextualLogger.InfoContext(ctx, logMsgOperation+action, args...)
	}
}

// logError logs error information at the error level if the logger is configured.
func (es *EventStore) logError(
	message string,
	err error,
	args ...any,
) {
	if es.logger != nil {
		allArgs := []any{logAttrError, err.Error()}
		allArgs = append(allArgs, args...)
		es.logger.Error(message, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func (es *EventStore) toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// recordErrorMetricsContext records error counters with context if the collector supports it.
func (es *EventStore) recordErrorMetricsContext(ctx context.Context, operation, errorType string) {
	if es.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operation,
		labelStatus:       statusError,
		spanAttrErrorType: errorType,
	}

	if contextualCollector, ok := es.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metricDatabaseErrors, labels)
	} else {
		es.metricsCollector.IncrementCounter(metricDatabaseErrors, labels)
	}
}

// recordDurationMetricsContext records duration metrics with context if the collector supports it.
func (es *EventStore) recordDurationMetricsContext(
	ctx context.Context,
	metricName string,
	duration time.Duration,
	operation, status string,
) {
	if es.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operation,
		labelStatus:       status,
	}

	if contextualCollector, ok := es.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metricName, duration, labels)
	} else {
		es.metricsCollector.RecordDuration(metricName, duration, labels)
	}
}

// recordValueMetricsContext records value metrics with context if the collector supports it.
func (es *EventStore) recordValueMetricsContext(
	ctx context.Context,
	metricName string,
	value float64,
	operation, status string,
) {
	if es.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operation,
		labelStatus:       status,
	}

	if contextualCollector, ok := es.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextualCollector.RecordValueContext(ctx, metricName, value, labels)
	} else {
		es.metricsCollector.RecordValue(metricName, value, labels)
	}
}

// recordConcurrencyConflictMetrics records conflict counters if the metrics collector is configured.
func (es *EventStore) recordConcurrencyConflictMetrics(operation string) {
	if es.metricsCollector != nil {
		labels := map[string]string{
			spanAttrOperation: operation,
			labelConflictType: conflictTypeStatus,
		}
		es.metricsCollector.IncrementCounter(metricConcurrencyConflicts, labels)
	}
}

// startTraceSpan starts a tracing span if the tracing collector is configured.
func (es *EventStore) startTraceSpan(
	ctx context.Context,
	name string,
	attrs map[string]string,
) (context.Context, SpanContext) {
	if es.tracingCollector != nil {
		return es.tracingCollector.StartSpan(ctx, name, attrs)
	}

	return ctx, nil
}

// finishTraceSpan finishes a tracing span if the tracing collector is configured.
func (es *EventStore) finishTraceSpan(
	spanCtx SpanContext,
	status string,
	attrs map[string]string,
) {
	if es.tracingCollector != nil && spanCtx != nil {
		es.tracingCollector.FinishSpan(spanCtx, status, attrs)
	}
}

// === Tracing Observer Pattern ===
// These observers simplify tracing span management by encapsulating lifecycle complexity.

// appendTracingObserver encapsulates tracing span lifecycle management for append operations.
type appendTracingObserver struct {
	es   *EventStore
	span SpanContext
}

// readTracingObserver encapsulates tracing span lifecycle management for read operations.
type readTracingObserver struct {
	es        *EventStore
	span      SpanContext
	operation string
}

// startAppendTracing creates a new tracing observer for append operations.
func (es *EventStore) startAppendTracing(
	ctx context.Context,
	streamID eventstore.StreamIDString,
	eventCount int,
	expectedVersion eventstore.StreamVersionUint,
) (*appendTracingObserver, context.Context) {

	newCtx, span := es.startTraceSpan(ctx, spanNameAppend, map[string]string{
		spanAttrOperation:       operationAppend,
		spanAttrStreamID:        streamID,
		spanAttrEventCount:      fmt.Sprintf("%d", eventCount),
		spanAttrExpectedVersion: fmt.Sprintf("%d", expectedVersion),
	})

	return &appendTracingObserver{es: es, span: span}, newCtx
}

// startReadTracing creates a new tracing observer for read and read_all operations.
func (es *EventStore) startReadTracing(
	ctx context.Context,
	operation string,
	streamID eventstore.StreamIDString,
) (*readTracingObserver, context.Context) {

	attrs := map[string]string{
		spanAttrOperation: operation,
	}
	if streamID != "" {
		attrs[spanAttrStreamID] = streamID
	}

	newCtx, span := es.startTraceSpan(ctx, spanNamePrefix+operation, attrs)

	return &readTracingObserver{es: es, span: span, operation: operation}, newCtx
}

// finishSuccess completes the append tracing span for successful operations.
func (ato *appendTracingObserver) finishSuccess(
	newVersion eventstore.StreamVersionUint,
	rowsAffected int64,
	duration time.Duration,
) {
	if ato.span == nil {
		return
	}

	ato.span.SetStatus(statusSuccess)
	ato.span.AddAttribute(spanAttrNewVersion, fmt.Sprintf("%d", newVersion))
	ato.span.AddAttribute(spanAttrRowsAffected, fmt.Sprintf("%d", rowsAffected))
	ato.span.AddAttribute(spanAttrDurationMS, fmt.Sprintf("%.2f", ato.es.toMilliseconds(duration)))

	ato.es.finishTraceSpan(ato.span, statusSuccess, map[string]string{
		spanAttrNewVersion: fmt.Sprintf("%d", newVersion),
	})
}

// finishError completes the append tracing span with error details.
func (ato *appendTracingObserver) finishError(errorType string, duration time.Duration) {
	if ato.span == nil {
		return
	}

	var attrs map[string]string
	if duration > 0 {
		attrs = map[string]string{
			spanAttrDurationMS: fmt.Sprintf("%.2f", ato.es.toMilliseconds(duration)),
		}
	}

	ato.finishErrorWithAttrs(errorType, attrs)
}

// finishErrorWithAttrs completes the append tracing span with error details and additional attributes.
func (ato *appendTracingObserver) finishErrorWithAttrs(errorType string, attrs map[string]string) {
	if ato.span == nil {
		return
	}

	ato.span.SetStatus(statusError)
	ato.span.AddAttribute(spanAttrErrorType, errorType)
	for key, value := range attrs {
		ato.span.AddAttribute(key, value)
	}

	allAttrs := map[string]string{spanAttrErrorType: errorType}
	for key, value := range attrs {
		allAttrs[key] = value
	}

	ato.es.finishTraceSpan(ato.span, statusError, allAttrs)
}

// finishSuccess completes the read tracing span for successful operations.
func (rto *readTracingObserver) finishSuccess(eventCount int, duration time.Duration) {
	if rto.span == nil {
		return
	}

	rto.span.SetStatus(statusSuccess)
	rto.span.AddAttribute(spanAttrEventCount, fmt.Sprintf("%d", eventCount))
	rto.span.AddAttribute(spanAttrDurationMS, fmt.Sprintf("%.2f", rto.es.toMilliseconds(duration)))

	rto.es.finishTraceSpan(rto.span, statusSuccess, map[string]string{
		spanAttrEventCount: fmt.Sprintf("%d", eventCount),
	})
}

// finishError completes the read tracing span with error details.
func (rto *readTracingObserver) finishError(errorType string, duration time.Duration) {
	if rto.span == nil {
		return
	}

	rto.span.SetStatus(statusError)
	rto.span.AddAttribute(spanAttrErrorType, errorType)

	if duration > 0 {
		rto.span.AddAttribute(spanAttrDurationMS, fmt.Sprintf("%.2f", rto.es.toMilliseconds(duration)))
	}

	rto.es.finishTraceSpan(rto.span, statusError, map[string]string{spanAttrErrorType: errorType})
}

// === Metrics Observer Pattern ===
// These observers simplify the metrics collection by encapsulating recording complexity.

// appendMetricsObserver encapsulates the metrics collection for append operations.
type appendMetricsObserver struct {
	es  *EventStore
	ctx context.Context
}

// readMetricsObserver encapsulates the metrics collection for read and read_all operations.
type readMetricsObserver struct {
	es        *EventStore
	ctx       context.Context
	operation string
}

// startAppendMetrics creates a new metrics observer for append operations.
func (es *EventStore) startAppendMetrics(ctx context.Context) *appendMetricsObserver {
	return &appendMetricsObserver{es: es, ctx: ctx}
}

// startReadMetrics creates a new metrics observer for read and read_all operations.
func (es *EventStore) startReadMetrics(ctx context.Context, operation string) *readMetricsObserver {
	return &readMetricsObserver{es: es, ctx: ctx, operation: operation}
}

// recordSuccess records all metrics for a successful append operation.
func (amo *appendMetricsObserver) recordSuccess(eventCount int, duration time.Duration) {
	amo.es.recordDurationMetricsContext(amo.ctx, metricAppendDuration, duration, operationAppend, statusSuccess)
	amo.es.recordValueMetricsContext(amo.ctx, metricEventsAppended, float64(eventCount), operationAppend, statusSuccess)
}

// recordError records all metrics for a failed append operation.
func (amo *appendMetricsObserver) recordError(errorType string, duration time.Duration) {
	amo.es.recordDurationMetricsContext(amo.ctx, metricAppendDuration, duration, operationAppend, statusError)
	amo.es.recordErrorMetricsContext(amo.ctx, operationAppend, errorType)
}

// recordConcurrencyConflict records metrics for concurrency conflicts during append operations.
func (amo *appendMetricsObserver) recordConcurrencyConflict() {
	amo.es.recordConcurrencyConflictMetrics(operationAppend)
}

// recordSuccess records all metrics for a successful read operation.
func (rmo *readMetricsObserver) recordSuccess(eventCount int, duration time.Duration) {
	rmo.es.recordDurationMetricsContext(rmo.ctx, metricReadDuration, duration, rmo.operation, statusSuccess)
	rmo.es.recordValueMetricsContext(rmo.ctx, metricEventsRead, float64(eventCount), rmo.operation, statusSuccess)
}

// recordError records all metrics for a failed read operation.
func (rmo *readMetricsObserver) recordError(errorType string, duration time.Duration) {
	rmo.es.recordDurationMetricsContext(rmo.ctx, metricReadDuration, duration, rmo.operation, statusError)
	rmo.es.recordErrorMetricsContext(rmo.ctx, rmo.operation, errorType)
}

// === Management Operation Observer ===
// Snapshot and checkpoint operations share one lighter observer covering span and metrics lifecycle.

type managementObserver struct {
	es        *EventStore
	ctx       context.Context
	span      SpanContext
	operation string
}

// startManagementObserver creates an observer for snapshot and checkpoint operations.
func (es *EventStore) startManagementObserver(
	ctx context.Context,
	operation string,
	attrs map[string]string,
) (*managementObserver, context.Context) {

	spanAttrs := map[string]string{spanAttrOperation: operation}
	for key, value := range attrs {
		spanAttrs[key] = value
	}

	newCtx, span := es.startTraceSpan(ctx, spanNamePrefix+operation, spanAttrs)

	return &managementObserver{es: es, ctx: newCtx, span: span, operation: operation}, newCtx
}

// finishSuccess completes the observer for a successful operation.
func (mo *managementObserver) finishSuccess(duration time.Duration) {
	mo.es.recordDurationMetricsContext(mo.ctx, metricManagementDuration, duration, mo.operation, statusSuccess)

	if mo.span != nil {
		mo.span.SetStatus(statusSuccess)
		mo.span.AddAttribute(spanAttrDurationMS, fmt.Sprintf("%.2f", mo.es.toMilliseconds(duration)))
		mo.es.finishTraceSpan(mo.span, statusSuccess, nil)
	}
}

// finishError completes the observer for a failed operation.
func (mo *managementObserver) finishError(errorType string, duration time.Duration) {
	mo.es.recordDurationMetricsContext(mo.ctx, metricManagementDuration, duration, mo.operation, statusError)
	mo.es.recordErrorMetricsContext(mo.ctx, mo.operation, errorType)

	if mo.span != nil {
		mo.span.SetStatus(statusError)
		mo.span.AddAttribute(spanAttrErrorType, errorType)
		mo.es.finishTraceSpan(mo.span, statusError, map[string]string{spanAttrErrorType: errorType})
	}
}
