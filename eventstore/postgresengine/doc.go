// Package postgresengine provides the PostgreSQL implementation of the event store.
//
// This package persists per-stream versioned event logs using PostgreSQL as the
// storage backend, supporting multiple database adapters (pgx, sql.DB, sqlx) with
// atomic batch appends and optimistic concurrency control.
//
// Key features:
//   - Multiple database adapter support (PGX, SQL, SQLX), optional read replica routing
//   - Atomic event appending with compare-and-swap on the stream head version,
//     backed by the (stream_id, stream_version) primary key for racing writers
//   - Ranged per-stream reads and paged global-position reads for replay
//   - Snapshot and replay checkpoint persistence in the same database
//   - Configurable table names, logging, metrics, and tracing
//
// Usage examples:
//
//	// Basic usage
//	db, _ := pgxpool.New(context.Background(), dsn)
//	store, _ := postgresengine.NewEventStoreFromPGXPool(db)
//
//	// With operational logging and custom table names
//	store, _ := postgresengine.NewEventStoreFromPGXPool(
//		db,
//		postgresengine.WithEventsTableName("my_events"),
//		postgresengine.WithLogger(logger),
//	)
//
//	newVersion, err := store.Append(ctx, streamID, expectedVersion, event)
//	events, err := store.Read(ctx, streamID, 1, 0)
package postgresengine
