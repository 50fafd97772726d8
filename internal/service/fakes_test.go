package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"movie-tracker/internal/models"
	"movie-tracker/internal/repository"
	"movie-tracker/internal/session"
)

// fakeLookup serves canned provider results. The byTitle, byGenre and
// similar maps hold page 1; later pages are keyed by call in later, e.g.
// "similar:27205@2".
type fakeLookup struct {
	mu      sync.Mutex
	byTitle map[string][]models.RemoteFilmSummary
	byGenre map[int][]models.RemoteFilmSummary
	similar map[int][]models.RemoteFilmSummary
	later   map[string][]models.RemoteFilmSummary
	genres  []models.Genre
	err     error
	calls   []string
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{
		byTitle: map[string][]models.RemoteFilmSummary{},
		byGenre: map[int][]models.RemoteFilmSummary{},
		similar: map[int][]models.RemoteFilmSummary{},
		later:   map[string][]models.RemoteFilmSummary{},
		genres: []models.Genre{
			{ID: 28, Name: "Action"},
			{ID: 35, Name: "Comedy"},
			{ID: 878, Name: "Science Fiction"},
		},
	}
}

func (f *fakeLookup) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.err != nil {
		return fmt.Errorf("%w: %v", models.ErrLookupUnavailable, f.err)
	}
	return nil
}

func (f *fakeLookup) page(call string, page int, first []models.RemoteFilmSummary) ([]models.RemoteFilmSummary, error) {
	if page > 1 {
		call = fmt.Sprintf("%s@%d", call, page)
	}
	if err := f.record(call); err != nil {
		return nil, err
	}
	if page > 1 {
		return f.later[call], nil
	}
	return first, nil
}

func (f *fakeLookup) SearchByTitle(_ context.Context, title string, page int) ([]models.RemoteFilmSummary, error) {
	return f.page("title:"+title, page, f.byTitle[title])
}

func (f *fakeLookup) SearchByGenre(_ context.Context, genreID, page int) ([]models.RemoteFilmSummary, error) {
	return f.page(fmt.Sprintf("genre:%d", genreID), page, f.byGenre[genreID])
}

func (f *fakeLookup) SimilarTo(_ context.Context, tmdbID, page int) ([]models.RemoteFilmSummary, error) {
	return f.page(fmt.Sprintf("similar:%d", tmdbID), page, f.similar[tmdbID])
}

func (f *fakeLookup) Genres(context.Context) ([]models.Genre, error) {
	if err := f.record("genres"); err != nil {
		return nil, err
	}
	return f.genres, nil
}

func (f *fakeLookup) lastCall() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1]
}

// memBackend is an in-memory repository.Backend that can be made to fail.
type memBackend struct {
	mu      sync.Mutex
	libs    []models.UserLibrary
	failErr error
}

func (b *memBackend) Load(context.Context) ([]models.UserLibrary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.libs, nil
}

func (b *memBackend) Save(_ context.Context, libs []models.UserLibrary) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failErr != nil {
		return b.failErr
	}
	b.libs = libs
	return nil
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	films    *repository.LibraryRepository
	backend  *memBackend
	lookup   *fakeLookup
	sessions *session.Manager
	clock    *testClock
	svc      *ConversationService
}

func newHarness(t *testing.T, policy models.DuplicatePolicy) *harness {
	t.Helper()

	backend := &memBackend{}
	films := repository.NewLibraryRepository(backend)
	lookup := newFakeLookup()
	clock := &testClock{t: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
	sessions := session.NewManager(10 * time.Minute).WithClock(clock.Now)
	recommender := NewRecommendationService(films, lookup, 5)

	if policy == "" {
		policy = models.DuplicateConfirm
	}
	return &harness{
		films:    films,
		backend:  backend,
		lookup:   lookup,
		sessions: sessions,
		clock:    clock,
		svc:      NewConversationService(films, lookup, recommender, sessions, policy),
	}
}

func (h *harness) addFilm(t *testing.T, userID int64, title string, year int, tmdbID int) models.WatchedFilm {
	t.Helper()
	var y *int
	if year > 0 {
		y = models.IntPtr(year)
	}
	f, err := h.films.AddFilm(context.Background(), userID, repository.NewFilm{Title: title, Year: y, TMDBId: tmdbID})
	if err != nil {
		t.Fatalf("AddFilm(%q) failed: %v", title, err)
	}
	return f
}

func summary(id int, title string, year int, score float64) models.RemoteFilmSummary {
	s := models.RemoteFilmSummary{TMDBId: id, Title: title, Score: score}
	if year > 0 {
		s.Year = models.IntPtr(year)
	}
	return s
}
