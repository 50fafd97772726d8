package tmdb

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"movie-tracker/internal/models"
)

// Lookup adapts the TMDB client to the metadata lookups the recommender
// needs. Every failure is reported as models.ErrLookupUnavailable.
type Lookup struct {
	client   *Client
	redis    *redis.Client
	genreTTL time.Duration
	now      func() time.Time

	mu        sync.Mutex
	genres    []models.Genre
	genresExp time.Time
}

// NewLookup creates a Lookup. rdb may be nil, in which case the genre list
// is cached in process only.
func NewLookup(client *Client, rdb *redis.Client, genreTTL time.Duration) *Lookup {
	return &Lookup{
		client:   client,
		redis:    rdb,
		genreTTL: genreTTL,
		now:      time.Now,
	}
}

// SearchByTitle returns one page of provider films matching title. Pages
// start at 1.
func (l *Lookup) SearchByTitle(ctx context.Context, title string, page int) ([]models.RemoteFilmSummary, error) {
	resp, err := l.client.SearchMovies(ctx, title, page)
	if err != nil {
		return nil, unavailable(err)
	}
	return l.toSummaries(ctx, resp.Results), nil
}

// SearchByGenre returns one page of popular provider films of a genre.
func (l *Lookup) SearchByGenre(ctx context.Context, genreID, page int) ([]models.RemoteFilmSummary, error) {
	resp, err := l.client.DiscoverByGenre(ctx, genreID, page)
	if err != nil {
		return nil, unavailable(err)
	}
	return l.toSummaries(ctx, resp.Results), nil
}

// SimilarTo returns one page of the provider's recommendations for a
// provider film id.
func (l *Lookup) SimilarTo(ctx context.Context, tmdbID, page int) ([]models.RemoteFilmSummary, error) {
	resp, err := l.client.MovieRecommendations(ctx, tmdbID, page)
	if err != nil {
		return nil, unavailable(err)
	}
	return l.toSummaries(ctx, resp.Results), nil
}

// Genres returns the provider's genre list.
func (l *Lookup) Genres(ctx context.Context) ([]models.Genre, error) {
	l.mu.Lock()
	if l.genres != nil && l.now().Before(l.genresExp) {
		out := append([]models.Genre(nil), l.genres...)
		l.mu.Unlock()
		return out, nil
	}
	l.mu.Unlock()

	cacheKey := "tmdb:genres:" + l.client.language
	if cached, err := l.getFromCache(ctx, cacheKey); err == nil {
		var genres []models.Genre
		if json.Unmarshal([]byte(cached), &genres) == nil && len(genres) > 0 {
			slog.Debug("cache hit", "key", cacheKey)
			l.remember(genres)
			return genres, nil
		}
	}

	raw, err := l.client.GetGenres(ctx)
	if err != nil {
		return nil, unavailable(err)
	}
	genres := make([]models.Genre, 0, len(raw))
	for _, g := range raw {
		genres = append(genres, models.Genre{ID: g.ID, Name: g.Name})
	}

	if data, err := json.Marshal(genres); err == nil {
		l.setCache(ctx, cacheKey, string(data))
	}
	l.remember(genres)
	return genres, nil
}

func (l *Lookup) remember(genres []models.Genre) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.genres = append([]models.Genre(nil), genres...)
	l.genresExp = l.now().Add(l.genreTTL)
}

func (l *Lookup) toSummaries(ctx context.Context, movies []TMDBMovie) []models.RemoteFilmSummary {
	names := map[int]string{}
	if genres, err := l.Genres(ctx); err != nil {
		slog.Warn("genre names unavailable", "error", err)
	} else {
		for _, g := range genres {
			names[g.ID] = g.Name
		}
	}

	out := make([]models.RemoteFilmSummary, 0, len(movies))
	for _, m := range movies {
		s := models.RemoteFilmSummary{
			TMDBId:     m.ID,
			Title:      m.Title,
			Year:       releaseYear(m.ReleaseDate),
			GenreIDs:   m.GenreIDs,
			Genres:     []string{},
			Score:      m.VoteAverage,
			Popularity: m.Popularity,
		}
		for _, id := range m.GenreIDs {
			if name, ok := names[id]; ok {
				s.Genres = append(s.Genres, name)
			}
		}
		out = append(out, s)
	}
	return out
}

// releaseYear parses the year of a "YYYY-MM-DD" date; nil when absent.
func releaseYear(date string) *int {
	if len(date) < 4 {
		return nil
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil || y <= 0 {
		return nil
	}
	return &y
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", models.ErrLookupUnavailable, err)
}

// ---- Redis Helpers ----

func (l *Lookup) getFromCache(ctx context.Context, key string) (string, error) {
	if l.redis == nil {
		return "", fmt.Errorf("redis not available")
	}
	return l.redis.Get(ctx, key).Result()
}

func (l *Lookup) setCache(ctx context.Context, key, value string) {
	if l.redis == nil {
		return
	}
	if err := l.redis.Set(ctx, key, value, l.genreTTL).Err(); err != nil {
		slog.Error("failed to set cache", "key", key, "error", err)
	}
}
