package repository

import (
	"context"
	"database/sql"
	"fmt"

	json "github.com/goccy/go-json"

	"movie-tracker/internal/models"
)

// PostgresBackend keeps one row per user in user_libraries, with the film
// list as JSONB. Save rewrites the table inside a single transaction.
type PostgresBackend struct {
	db *sql.DB
}

// NewPostgresBackend creates a PostgresBackend.
func NewPostgresBackend(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

// Load reads every user library.
func (b *PostgresBackend) Load(ctx context.Context) ([]models.UserLibrary, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT user_id, next_id, films
		FROM user_libraries
		ORDER BY user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query libraries: %w", err)
	}
	defer rows.Close()

	var libs []models.UserLibrary
	for rows.Next() {
		var (
			lib   models.UserLibrary
			films []byte
		)
		if err := rows.Scan(&lib.UserID, &lib.NextID, &films); err != nil {
			return nil, fmt.Errorf("scan library: %w", err)
		}
		if err := json.Unmarshal(films, &lib.Films); err != nil {
			return nil, fmt.Errorf("%w: user %d: %v", models.ErrCorruptStore, lib.UserID, err)
		}
		libs = append(libs, lib)
	}
	return libs, rows.Err()
}

// Save replaces the table content with libs.
func (b *PostgresBackend) Save(ctx context.Context, libs []models.UserLibrary) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_libraries`); err != nil {
		return fmt.Errorf("clear libraries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO user_libraries (user_id, next_id, films, updated_at)
		VALUES ($1, $2, $3, NOW())
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, lib := range libs {
		films := lib.Films
		if films == nil {
			films = []models.WatchedFilm{}
		}
		data, err := json.Marshal(films)
		if err != nil {
			return fmt.Errorf("encode films for user %d: %w", lib.UserID, err)
		}
		if _, err := stmt.ExecContext(ctx, lib.UserID, lib.NextID, data); err != nil {
			return fmt.Errorf("insert library for user %d: %w", lib.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
