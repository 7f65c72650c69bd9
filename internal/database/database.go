// Package database opens the sqlx connection shared by the reference
// provider and the results repository, and creates their tables.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	infraconfig "github.com/north-cloud/huv-matcher/infrastructure/config"
)

// DefaultPingTimeout bounds the connection check in Open.
const DefaultPingTimeout = 5 * time.Second

// Open connects with cfg's driver and pool settings and pings the server.
func Open(ctx context.Context, cfg infraconfig.DatabaseConfig) (*sqlx.DB, error) {
	cfg.SetDefaults()

	db, err := sqlx.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()

	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS huv_sources (
		id          TEXT PRIMARY KEY,
		code        TEXT NOT NULL DEFAULT '',
		name        TEXT NOT NULL DEFAULT '',
		hierarchy   TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS huv_candidates (
		id         TEXT PRIMARY KEY,
		code       TEXT NOT NULL DEFAULT '',
		name       TEXT NOT NULL DEFAULT '',
		hierarchy  TEXT NOT NULL DEFAULT '',
		tags       TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS match_results (
		source_id  TEXT PRIMARY KEY,
		batch_id   TEXT NOT NULL DEFAULT '',
		target_id  TEXT NOT NULL DEFAULT '',
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		strategy   TEXT NOT NULL DEFAULT '',
		method     TEXT NOT NULL DEFAULT '',
		reason     TEXT NOT NULL DEFAULT '',
		error      TEXT NOT NULL DEFAULT '',
		runner_ups TEXT NOT NULL DEFAULT '[]',
		warnings   TEXT NOT NULL DEFAULT '[]',
		matched_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_match_results_target ON match_results (target_id)`,
}

// Migrate creates the tables if they do not exist. The statements are
// valid for both PostgreSQL and SQLite.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
