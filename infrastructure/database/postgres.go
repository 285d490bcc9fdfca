// Package database wraps the PostgreSQL connection shared by the audit
// ledger and the credential store, and applies the embedded schema.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"compliance/config"
	"compliance/observability"
	"compliance/observability/types"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const pingTimeout = 5 * time.Second

// DB is an instrumented sqlx connection.
type DB struct {
	conn    *sqlx.DB
	logger  types.Logger
	metrics types.Metrics
}

// Open connects to PostgreSQL, configures the pool and pings the server.
func Open(ctx context.Context, cfg config.DatabaseConfig, provider observability.Provider) (*DB, error) {
	logger := provider.Logger("database.postgres")

	logger.Info(ctx, "Connecting to PostgreSQL database", types.Fields{
		"host":     cfg.Host,
		"port":     cfg.Port,
		"database": cfg.Database,
	})

	conn, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		logger.Error(ctx, "Failed to open database connection", err, nil)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := conn.PingContext(pingCtx); err != nil {
		logger.Error(ctx, "Failed to ping database", err, nil)
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info(ctx, "Connected to PostgreSQL database", nil)

	return New(conn, provider), nil
}

// New wraps an existing connection.
func New(conn *sqlx.DB, provider observability.Provider) *DB {
	return &DB{
		conn:    conn,
		logger:  provider.Logger("database.postgres"),
		metrics: provider.Metrics("database.postgres"),
	}
}

// Migrate applies pending embedded migrations.
func (d *DB) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	start := time.Now()
	if err := goose.UpContext(ctx, d.conn.DB, "migrations"); err != nil {
		d.metrics.RecordError("migrate", "migration_failed")
		d.logger.Error(ctx, "Failed to apply migrations", err, nil)
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	d.metrics.RecordDuration("migrate", time.Since(start).Seconds())
	d.logger.Info(ctx, "Database migrations applied", nil)
	return nil
}

// Exec runs a statement that returns no rows.
func (d *DB) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	start := time.Now()
	result, err := d.conn.ExecContext(ctx, query, args...)
	d.record(ctx, "exec", start, err)
	return result, err
}

// Get scans a single row into dest. sql.ErrNoRows is returned unchanged.
func (d *DB) Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	start := time.Now()
	err := d.conn.GetContext(ctx, dest, query, args...)
	d.record(ctx, "get", start, err)
	return err
}

// Select scans all rows into dest.
func (d *DB) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	start := time.Now()
	err := d.conn.SelectContext(ctx, dest, query, args...)
	d.record(ctx, "select", start, err)
	return err
}

// Ping verifies the connection.
func (d *DB) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

// Close closes the connection pool.
func (d *DB) Close() error {
	d.logger.Info(context.Background(), "Closing database connection", nil)
	return d.conn.Close()
}

func (d *DB) record(ctx context.Context, operation string, start time.Time, err error) {
	d.metrics.RecordDuration(operation, time.Since(start).Seconds())

	switch {
	case err == nil:
		d.metrics.RecordSuccess(operation)
	case errors.Is(err, sql.ErrNoRows):
		// absence is an answer, not a failure
		d.metrics.RecordSuccess(operation)
	default:
		d.metrics.RecordError(operation, "query_failed")
		d.logger.Error(ctx, "Database operation failed", err, types.Fields{"operation": operation})
	}
}
