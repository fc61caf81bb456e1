// Package postgres implements store.Log on a PostgreSQL table.
//
// Each list is the set of rows sharing a log_key. Rows are ordered by their
// BIGSERIAL id, highest first, so a push is a plain INSERT and index 0 is
// always the most recently inserted row.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/hotstore/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresLog implements store.Log backed by a PostgreSQL database.
type PostgresLog struct {
	db *sql.DB
}

// Compile-time check that PostgresLog implements store.Log.
var _ store.Log = (*PostgresLog)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresLog, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, store.Unavailable("ping database", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresLog{db: db}, nil
}

// NewWithDB wraps an already-migrated database handle.
func NewWithDB(db *sql.DB) *PostgresLog {
	return &PostgresLog{db: db}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresLog) Close() error {
	return s.db.Close()
}

// PushHead inserts all values in one transaction so a multi-value push is
// never observed half-applied.
func (s *PostgresLog) PushHead(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Unavailable("begin transaction", err)
	}
	if err := queryPush(ctx, tx, key, values); err != nil {
		_ = tx.Rollback()
		return store.Unavailable("push", err)
	}
	if err := tx.Commit(); err != nil {
		return store.Unavailable("commit transaction", err)
	}
	return nil
}

func (s *PostgresLog) Trim(ctx context.Context, key string, start, stop int64) error {
	if err := queryTrim(ctx, s.db, key, start, stop); err != nil {
		return store.Unavailable("trim", err)
	}
	return nil
}

func (s *PostgresLog) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := queryRange(ctx, s.db, key, start, stop)
	if err != nil {
		return nil, store.Unavailable("range", err)
	}
	return vals, nil
}

func (s *PostgresLog) RemoveFirst(ctx context.Context, key, value string) (bool, error) {
	removed, err := queryRemoveFirst(ctx, s.db, key, value)
	if err != nil {
		return false, store.Unavailable("remove", err)
	}
	return removed, nil
}

func (s *PostgresLog) SetAt(ctx context.Context, key string, index int64, value string) error {
	updated, err := querySetAt(ctx, s.db, key, index, value)
	if err != nil {
		return store.Unavailable("set", err)
	}
	if !updated {
		return fmt.Errorf("set %s[%d]: index out of range", key, index)
	}
	return nil
}

func (s *PostgresLog) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return store.Unavailable("ping", err)
	}
	return nil
}
