// Package sqlitewrapper opens in-memory SQLite databases for the engine tests.
package sqlitewrapper

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite" // sqlite driver for database/sql

	"github.com/versioned-streams/eventstore-go/eventstore/sqliteengine"
)

// CreateEventStore opens a fresh in-memory database, initializes the schema
// and returns the event store. The database is closed when the test finishes.
//
// An in-memory SQLite database exists per connection, so the pool is pinned
// to a single connection.
func CreateEventStore(t testing.TB, options ...sqliteengine.Option) *sqliteengine.EventStore {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err, "error opening in-memory sqlite db in test setup")
	db.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = db.Close() // ignore error
	})

	es, err := sqliteengine.NewEventStore(db, options...)
	require.NoError(t, err, "error creating event store")

	err = es.InitSchema(context.Background())
	require.NoError(t, err, "error initializing sqlite schema in test setup")

	return es
}
