package models

import "errors"

var (
	// ErrValidation marks bad user input, such as an empty title.
	ErrValidation = errors.New("validation failed")
	// ErrPersistence marks a failed write of the film library. The
	// in-memory state is unchanged when it is returned.
	ErrPersistence = errors.New("failed to persist film library")
	// ErrCorruptStore marks backing data that cannot be parsed.
	ErrCorruptStore = errors.New("film library store is corrupt")
	// ErrLookupUnavailable marks a metadata provider failure.
	ErrLookupUnavailable = errors.New("metadata lookup unavailable")
	// ErrRecommendationUnavailable marks a recommendation that could not be
	// produced because the provider failed.
	ErrRecommendationUnavailable = errors.New("recommendations unavailable")
	// ErrFilmNotFound marks a film id that is not in the user's library.
	ErrFilmNotFound = errors.New("film not found")
)
