package commands

import (
	"context"
	"fmt"
	"log/slog"

	"movie-tracker/internal/config"
	"movie-tracker/internal/database"
	"movie-tracker/internal/repository"
)

// openLibrary builds the configured backend and loads the film library.
// The returned close func releases the backend.
func openLibrary(ctx context.Context, cfg *config.Config) (*repository.LibraryRepository, func(), error) {
	var (
		backend repository.Backend
		closeFn = func() {}
	)

	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		db, err := database.NewPostgres(ctx, cfg.DB)
		if err != nil {
			return nil, nil, err
		}
		backend = repository.NewPostgresBackend(db)
		closeFn = func() { _ = db.Close() }
	case config.StorageBolt:
		b, err := repository.OpenBoltBackend(cfg.Storage.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		backend = b
		closeFn = func() { _ = b.Close() }
	default:
		backend = repository.NewFileBackend(cfg.Storage.FilePath)
	}

	repo := repository.NewLibraryRepository(backend)
	if err := repo.Load(ctx); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("loading film library: %w", err)
	}
	slog.Info("film library loaded", "driver", cfg.Storage.Driver)
	return repo, closeFn, nil
}
