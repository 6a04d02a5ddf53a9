// Package postgreswrapper abstracts over the supported database adapters so
// the engine tests run unchanged against pgx.pool, sql.db and sqlx.db. The
// adapter is selected through EVENTSTORE_ADAPTER_TYPE.
package postgreswrapper

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/versioned-streams/eventstore-go/eventstore/postgresengine"
	"github.com/versioned-streams/eventstore-go/testutil/config"
)

// Adapter type constants, matching the values of EVENTSTORE_ADAPTER_TYPE.
const (
	typePGXPool = "pgx.pool"
	typeSQLDB   = "sql.db"
	typeSQLXDB  = "sqlx.db"
)

// Wrapper abstracts over the supported adapter types.
type Wrapper interface {
	GetEventStore() *postgresengine.EventStore
	Exec(t testing.TB, query string)
	QueryScalar(t testing.TB, query string, dest any)
	Close()
}

// PGXPoolWrapper backs the event store with a pgxpool.Pool.
type PGXPoolWrapper struct {
	pool *pgxpool.Pool
	es   *postgresengine.EventStore
}

func (w *PGXPoolWrapper) GetEventStore() *postgresengine.EventStore {
	return w.es
}

func (w *PGXPoolWrapper) Exec(t testing.TB, query string) {
	_, err := w.pool.Exec(context.Background(), query)
	require.NoError(t, err, "error executing query in test setup")
}

func (w *PGXPoolWrapper) QueryScalar(t testing.TB, query string, dest any) {
	err := w.pool.QueryRow(context.Background(), query).Scan(dest)
	require.NoError(t, err, "error scanning query result in test setup")
}

func (w *PGXPoolWrapper) Close() {
	w.pool.Close()
}

// SQLDBWrapper backs the event store with a database/sql DB.
type SQLDBWrapper struct {
	db *sql.DB
	es *postgresengine.EventStore
}

func (w *SQLDBWrapper) GetEventStore() *postgresengine.EventStore {
	return w.es
}

func (w *SQLDBWrapper) Exec(t testing.TB, query string) {
	_, err := w.db.Exec(query)
	require.NoError(t, err, "error executing query in test setup")
}

func (w *SQLDBWrapper) QueryScalar(t testing.TB, query string, dest any) {
	err := w.db.QueryRow(query).Scan(dest)
	require.NoError(t, err, "error scanning query result in test setup")
}

func (w *SQLDBWrapper) Close() {
	_ = w.db.Close() // ignore error
}

// SQLXWrapper backs the event store with a sqlx.DB.
type SQLXWrapper struct {
	db *sqlx.DB
	es *postgresengine.EventStore
}

func (w *SQLXWrapper) GetEventStore() *postgresengine.EventStore {
	return w.es
}

func (w *SQLXWrapper) Exec(t testing.TB, query string) {
	_, err := w.db.Exec(query)
	require.NoError(t, err, "error executing query in test setup")
}

func (w *SQLXWrapper) QueryScalar(t testing.TB, query string, dest any) {
	err := w.db.QueryRow(query).Scan(dest)
	require.NoError(t, err, "error scanning query result in test setup")
}

func (w *SQLXWrapper) Close() {
	_ = w.db.Close() // ignore error
}

// CreateWrapperWithTestConfig creates the wrapper for the adapter type
// configured in the environment and passes the given options through to the
// event store constructor.
func CreateWrapperWithTestConfig(t testing.TB, options ...postgresengine.Option) Wrapper {
	t.Helper()

	cfg := postgresConfigFromEnv(t)

	switch strings.ToLower(cfg.AdapterType) {
	case typePGXPool, "":
		poolConfig, err := cfg.PGXPoolConfig()
		require.NoError(t, err, "error building pool config in test setup")

		connPool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
		require.NoError(t, err, "error connecting to DB pool in test setup")

		es, err := postgresengine.NewEventStoreFromPGXPool(connPool, options...)
		require.NoError(t, err, "error creating event store")

		return &PGXPoolWrapper{pool: connPool, es: es}

	case typeSQLDB:
		db, err := cfg.SQLDB()
		require.NoError(t, err, "error opening sql.DB in test setup")

		es, err := postgresengine.NewEventStoreFromSQLDB(db, options...)
		require.NoError(t, err, "error creating event store")

		return &SQLDBWrapper{db: db, es: es}

	case typeSQLXDB:
		db, err := cfg.SQLXDB()
		require.NoError(t, err, "error opening sqlx.DB in test setup")

		es, err := postgresengine.NewEventStoreFromSQLX(db, options...)
		require.NoError(t, err, "error creating event store")

		return &SQLXWrapper{db: db, es: es}

	default:
		panic(fmt.Sprintf("unsupported adapter type from env: %s", cfg.AdapterType))
	}
}

// TryCreateEventStoreWithOptions creates an event store with the given options
// and returns only the constructor error, for testing invalid option cases.
func TryCreateEventStoreWithOptions(t testing.TB, options ...postgresengine.Option) error {
	t.Helper()

	cfg := postgresConfigFromEnv(t)

	switch strings.ToLower(cfg.AdapterType) {
	case typePGXPool, "":
		poolConfig, err := cfg.PGXPoolConfig()
		require.NoError(t, err, "error building pool config in test setup")

		connPool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
		require.NoError(t, err, "error connecting to DB pool in test setup")
		defer connPool.Close()

		_, err = postgresengine.NewEventStoreFromPGXPool(connPool, options...)
		return err

	case typeSQLDB:
		db, err := cfg.SQLDB()
		require.NoError(t, err, "error opening sql.DB in test setup")
		defer func() {
			_ = db.Close() // makes no sense to handle this
		}()

		_, err = postgresengine.NewEventStoreFromSQLDB(db, options...)
		return err

	case typeSQLXDB:
		db, err := cfg.SQLXDB()
		require.NoError(t, err, "error opening sqlx.DB in test setup")
		defer func() {
			_ = db.Close() // makes no sense to handle this
		}()

		_, err = postgresengine.NewEventStoreFromSQLX(db, options...)
		return err

	default:
		panic(fmt.Sprintf("unsupported adapter type from env: %s", cfg.AdapterType))
	}
}

// CleanUp truncates all event store tables so each test starts from an empty
// database.
func CleanUp(t testing.TB, wrapper Wrapper) {
	t.Helper()

	wrapper.Exec(t, "TRUNCATE TABLE events RESTART IDENTITY")
	wrapper.Exec(t, "TRUNCATE TABLE snapshots")
	wrapper.Exec(t, "TRUNCATE TABLE replay_checkpoints")
}

// CountEventsInStore returns the total number of rows in the events table.
func CountEventsInStore(t testing.TB, wrapper Wrapper) int {
	t.Helper()

	var cnt int
	wrapper.QueryScalar(t, "SELECT count(*) FROM events", &cnt)

	return cnt
}

// CountSnapshotsInStore returns the total number of rows in the snapshots table.
func CountSnapshotsInStore(t testing.TB, wrapper Wrapper) int {
	t.Helper()

	var cnt int
	wrapper.QueryScalar(t, "SELECT count(*) FROM snapshots", &cnt)

	return cnt
}

func postgresConfigFromEnv(t testing.TB) config.PostgresConfig {
	t.Helper()

	cfg, err := config.PostgresFromEnv()
	require.NoError(t, err, "error parsing postgres config from env in test setup")

	return cfg
}
