package service

import (
	"context"

	"movie-tracker/internal/models"
	"movie-tracker/internal/repository"
)

// FilmStore is the film record store used by the services.
type FilmStore interface {
	AddFilm(ctx context.Context, userID int64, in repository.NewFilm) (models.WatchedFilm, error)
	ListFilms(ctx context.Context, userID int64) ([]models.WatchedFilm, error)
	GetFilm(ctx context.Context, userID int64, filmID int) (models.WatchedFilm, error)
	DeleteFilm(ctx context.Context, userID int64, filmID int) (bool, error)
}

// MetadataLookup is the metadata provider boundary. Failures are reported
// as models.ErrLookupUnavailable. Result pages start at 1.
type MetadataLookup interface {
	SearchByTitle(ctx context.Context, title string, page int) ([]models.RemoteFilmSummary, error)
	SearchByGenre(ctx context.Context, genreID, page int) ([]models.RemoteFilmSummary, error)
	SimilarTo(ctx context.Context, tmdbID, page int) ([]models.RemoteFilmSummary, error)
	Genres(ctx context.Context) ([]models.Genre, error)
}
