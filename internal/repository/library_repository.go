package repository

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"movie-tracker/internal/models"
)

// NewFilm holds the fields supplied when adding a film.
type NewFilm struct {
	Title  string
	Year   *int
	Genres []string
	TMDBId int
}

// LibraryRepository is the film record store. All libraries live in memory;
// every mutation rewrites the whole store through the Backend and becomes
// visible only once that write succeeds.
type LibraryRepository struct {
	backend Backend
	now     func() time.Time

	mu        sync.RWMutex
	libraries map[int64]*models.UserLibrary

	// persistMu serializes mutate+save so a snapshot taken for one user's
	// change never overwrites a newer save made for another user.
	persistMu sync.Mutex
}

// NewLibraryRepository creates an empty LibraryRepository. Call Load to
// read existing data.
func NewLibraryRepository(backend Backend) *LibraryRepository {
	return &LibraryRepository{
		backend:   backend,
		now:       time.Now,
		libraries: make(map[int64]*models.UserLibrary),
	}
}

// Load replaces the in-memory state with the backend content. A missing or
// empty store initializes an empty mapping.
func (r *LibraryRepository) Load(ctx context.Context) error {
	libs, err := r.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("load film library: %w", err)
	}

	loaded := make(map[int64]*models.UserLibrary, len(libs))
	for i := range libs {
		lib := libs[i]
		if lib.Films == nil {
			lib.Films = []models.WatchedFilm{}
		}
		// Repair a next_id that lags behind stored ids so ids stay unique.
		for _, f := range lib.Films {
			if f.ID >= lib.NextID {
				lib.NextID = f.ID + 1
			}
		}
		if lib.NextID < 1 {
			lib.NextID = 1
		}
		loaded[lib.UserID] = &lib
	}

	r.mu.Lock()
	r.libraries = loaded
	r.mu.Unlock()

	slog.Info("film library loaded", "users", len(loaded))
	return nil
}

// Persist writes the current in-memory state to the backend.
func (r *LibraryRepository) Persist(ctx context.Context) error {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	if err := r.backend.Save(ctx, r.snapshot()); err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	return nil
}

// AddFilm appends a film to the user's library and persists it.
func (r *LibraryRepository) AddFilm(ctx context.Context, userID int64, in NewFilm) (models.WatchedFilm, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return models.WatchedFilm{}, fmt.Errorf("%w: title is empty", models.ErrValidation)
	}

	var film models.WatchedFilm
	err := r.mutate(ctx, userID, func(lib *models.UserLibrary) bool {
		film = models.WatchedFilm{
			ID:      lib.NextID,
			Title:   title,
			Year:    in.Year,
			Genres:  normalizeGenres(in.Genres),
			TMDBId:  in.TMDBId,
			AddedAt: r.now().UTC(),
		}
		lib.NextID++
		lib.Films = append(lib.Films, film)
		return true
	})
	if err != nil {
		return models.WatchedFilm{}, err
	}

	slog.Info("film added", "user_id", userID, "film_id", film.ID, "title", film.Title)
	return film.Clone(), nil
}

// DeleteFilm removes a film from the user's library and persists the
// change. It reports false, without error, when the id is not present.
func (r *LibraryRepository) DeleteFilm(ctx context.Context, userID int64, filmID int) (bool, error) {
	deleted := false
	err := r.mutate(ctx, userID, func(lib *models.UserLibrary) bool {
		idx := slices.IndexFunc(lib.Films, func(f models.WatchedFilm) bool { return f.ID == filmID })
		if idx < 0 {
			return false
		}
		lib.Films = slices.Delete(lib.Films, idx, idx+1)
		deleted = true
		return true
	})
	if err != nil {
		return false, err
	}
	if deleted {
		slog.Info("film deleted", "user_id", userID, "film_id", filmID)
	}
	return deleted, nil
}

// ListFilms returns the user's films in insertion order. Unknown users get
// an empty slice.
func (r *LibraryRepository) ListFilms(_ context.Context, userID int64) ([]models.WatchedFilm, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lib, ok := r.libraries[userID]
	if !ok {
		return []models.WatchedFilm{}, nil
	}
	return lib.Clone().Films, nil
}

// GetFilm returns a single film from the user's library.
func (r *LibraryRepository) GetFilm(_ context.Context, userID int64, filmID int) (models.WatchedFilm, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if lib, ok := r.libraries[userID]; ok {
		for _, f := range lib.Films {
			if f.ID == filmID {
				return f.Clone(), nil
			}
		}
	}
	return models.WatchedFilm{}, fmt.Errorf("%w: user %d film %d", models.ErrFilmNotFound, userID, filmID)
}

// mutate applies fn to a copy of the user's library, persists the whole
// store with the copy in place and only then swaps it in, so readers never
// see a change that fails to save. fn returns false to signal a no-op, in
// which case nothing is written.
func (r *LibraryRepository) mutate(ctx context.Context, userID int64, fn func(lib *models.UserLibrary) bool) error {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	r.mu.RLock()
	prev, existed := r.libraries[userID]
	var next *models.UserLibrary
	if existed {
		next = prev.Clone()
	} else {
		next = &models.UserLibrary{UserID: userID, NextID: 1, Films: []models.WatchedFilm{}}
	}
	r.mu.RUnlock()

	if !fn(next) {
		return nil
	}

	if err := r.backend.Save(ctx, r.snapshotWith(next)); err != nil {
		slog.Error("film library write failed, change discarded", "user_id", userID, "error", err)
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	r.mu.Lock()
	r.libraries[userID] = next
	r.mu.Unlock()
	return nil
}

// snapshot returns a deep copy of every library ordered by user id.
func (r *LibraryRepository) snapshot() []models.UserLibrary {
	return r.snapshotWith(nil)
}

// snapshotWith is snapshot with override standing in for its user's
// current library.
func (r *LibraryRepository) snapshotWith(override *models.UserLibrary) []models.UserLibrary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.UserLibrary, 0, len(r.libraries)+1)
	for id, lib := range r.libraries {
		if override != nil && id == override.UserID {
			continue
		}
		out = append(out, *lib.Clone())
	}
	if override != nil {
		out = append(out, *override.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func normalizeGenres(genres []string) []string {
	out := make([]string, 0, len(genres))
	seen := make(map[string]bool, len(genres))
	for _, g := range genres {
		g = strings.TrimSpace(g)
		key := strings.ToLower(g)
		if g == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, g)
	}
	return out
}
