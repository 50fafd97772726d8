package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"movie-tracker/internal/models"
)

// DefaultRecommendLimit is used when no positive limit is configured.
const DefaultRecommendLimit = 5

// Page selects one page of recommendations. Shown holds the films returned
// on earlier pages, which are not repeated. The zero Page is the first page.
type Page struct {
	Number int
	Shown  []models.FilmKey
}

func (p Page) number() int {
	return max(p.Number, 1)
}

// RecommendationService resolves a seed into a ranked list of films the
// user has not watched yet.
type RecommendationService struct {
	films  FilmStore
	lookup MetadataLookup
	limit  int
}

// NewRecommendationService creates a new RecommendationService.
func NewRecommendationService(films FilmStore, lookup MetadataLookup, limit int) *RecommendationService {
	if limit <= 0 {
		limit = DefaultRecommendLimit
	}
	return &RecommendationService{
		films:  films,
		lookup: lookup,
		limit:  limit,
	}
}

// Limit returns the maximum number of candidates returned.
func (s *RecommendationService) Limit() int {
	return s.limit
}

// RecommendFromFilm recommends films related to one of the user's watched
// films. The provider's recommendations for the film are used when its
// provider id is known, otherwise a title search stands in.
func (s *RecommendationService) RecommendFromFilm(ctx context.Context, userID int64, seedFilmID int, page Page) ([]models.RecommendationCandidate, error) {
	seed, err := s.films.GetFilm(ctx, userID, seedFilmID)
	if err != nil {
		return nil, err
	}

	var found []models.RemoteFilmSummary
	if seed.TMDBId > 0 {
		found, err = s.lookup.SimilarTo(ctx, seed.TMDBId, page.number())
	} else {
		found, err = s.lookup.SearchByTitle(ctx, seed.Title, page.number())
	}
	if err != nil {
		slog.Warn("film recommendation lookup failed", "user_id", userID, "film_id", seedFilmID, "page", page.number(), "error", err)
		return nil, fmt.Errorf("%w: %w", models.ErrRecommendationUnavailable, err)
	}

	seedID := seed.ID
	return s.rank(ctx, userID, found, page.Shown, &seedID)
}

// RecommendFromGenre recommends popular films of a provider genre.
func (s *RecommendationService) RecommendFromGenre(ctx context.Context, userID int64, genreID int, page Page) ([]models.RecommendationCandidate, error) {
	if genreID <= 0 {
		return nil, fmt.Errorf("%w: invalid genre id %d", models.ErrValidation, genreID)
	}

	found, err := s.lookup.SearchByGenre(ctx, genreID, page.number())
	if err != nil {
		slog.Warn("genre recommendation lookup failed", "user_id", userID, "genre_id", genreID, "page", page.number(), "error", err)
		return nil, fmt.Errorf("%w: %w", models.ErrRecommendationUnavailable, err)
	}
	return s.rank(ctx, userID, found, page.Shown, nil)
}

// rank drops watched, already shown and duplicate films, orders by
// provider score (provider order breaks ties) and truncates to the limit.
func (s *RecommendationService) rank(ctx context.Context, userID int64, found []models.RemoteFilmSummary, shown []models.FilmKey, seedID *int) ([]models.RecommendationCandidate, error) {
	watched, err := s.films.ListFilms(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list watched films: %w", err)
	}

	seen := make(map[models.FilmKey]bool, len(found)+len(shown))
	for _, k := range shown {
		seen[k] = true
	}
	candidates := make([]models.RecommendationCandidate, 0, len(found))
	for _, f := range found {
		key := f.Key()
		if key.Title == "" || seen[key] || isWatched(f, watched) {
			continue
		}
		seen[key] = true

		c := models.RecommendationCandidate{
			TMDBId:        f.TMDBId,
			Title:         f.Title,
			Year:          f.Year,
			Genres:        append([]string{}, f.Genres...),
			ProviderScore: f.Score,
			URL:           f.URL(),
		}
		if seedID != nil {
			id := *seedID
			c.SourceSeedID = &id
		}
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ProviderScore > candidates[j].ProviderScore
	})

	if len(candidates) > s.limit {
		candidates = candidates[:s.limit]
	}

	slog.Debug("recommendations ranked", "user_id", userID, "provider_results", len(found), "returned", len(candidates))
	return candidates, nil
}

func isWatched(f models.RemoteFilmSummary, watched []models.WatchedFilm) bool {
	key := f.Key()
	for _, w := range watched {
		if f.TMDBId > 0 && w.TMDBId == f.TMDBId {
			return true
		}
		if w.Key().Matches(key) {
			return true
		}
	}
	return false
}
