package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"movie-tracker/internal/config"
)

// migrations are applied in order, all in one transaction, on every start.
// Each statement must be idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS user_libraries (
		user_id BIGINT PRIMARY KEY,
		next_id INTEGER NOT NULL DEFAULT 1 CHECK (next_id >= 1),
		films JSONB NOT NULL DEFAULT '[]'::jsonb,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_libraries_updated_at ON user_libraries (updated_at)`,
}

// NewPostgres opens the film library database and applies migrations.
func NewPostgres(ctx context.Context, cfg config.DBConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Library writes are serialized by the repository.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database %s@%s:%d: %w", cfg.DBName, cfg.Host, cfg.Port, err)
	}
	slog.Info("connected to PostgreSQL", "host", cfg.Host, "db", cfg.DBName)

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate applies the schema migrations to db.
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range migrations {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}

	slog.Info("database migrations completed", "count", len(migrations))
	return nil
}
