package config

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver for database/sql and sqlx
)

const (
	defaultMaxConnLifetime   = time.Hour
	defaultMaxConnIdleTime   = 5 * time.Minute
	defaultHealthCheckPeriod = time.Minute
	defaultConnectTimeout    = 5 * time.Second

	sqlDriverPostgres = "postgres"
)

// PGXPoolConfig builds a pgxpool.Config from the Postgres test configuration.
func (c PostgresConfig) PGXPoolConfig() (*pgxpool.Config, error) {
	return c.pgxPoolConfigFor(c.DSN)
}

// PGXPoolReplicaConfig builds a pgxpool.Config for the replica node.
// It fails when no replica DSN is configured.
func (c PostgresConfig) PGXPoolReplicaConfig() (*pgxpool.Config, error) {
	if c.ReplicaDSN == "" {
		return nil, fmt.Errorf("no replica DSN configured, set EVENTSTORE_POSTGRES_REPLICA_DSN")
	}

	return c.pgxPoolConfigFor(c.ReplicaDSN)
}

func (c PostgresConfig) pgxPoolConfigFor(dsn string) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres DSN: %w", err)
	}

	poolConfig.MaxConns = c.MaxConns
	poolConfig.MinConns = c.MinConns
	poolConfig.MaxConnLifetime = defaultMaxConnLifetime
	poolConfig.MaxConnIdleTime = defaultMaxConnIdleTime
	poolConfig.HealthCheckPeriod = defaultHealthCheckPeriod
	poolConfig.ConnConfig.ConnectTimeout = defaultConnectTimeout

	return poolConfig, nil
}

// SQLDB opens a database/sql handle on the configured test database.
func (c PostgresConfig) SQLDB() (*sql.DB, error) {
	db, err := sql.Open(sqlDriverPostgres, c.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sql.DB: %w", err)
	}

	db.SetMaxOpenConns(int(c.MaxConns))
	db.SetMaxIdleConns(int(c.MinConns))
	db.SetConnMaxLifetime(defaultMaxConnLifetime)

	return db, nil
}

// SQLXDB opens a sqlx handle on the configured test database.
func (c PostgresConfig) SQLXDB() (*sqlx.DB, error) {
	db, err := sqlx.Open(sqlDriverPostgres, c.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sqlx.DB: %w", err)
	}

	db.SetMaxOpenConns(int(c.MaxConns))
	db.SetMaxIdleConns(int(c.MinConns))
	db.SetConnMaxLifetime(defaultMaxConnLifetime)

	return db, nil
}
