package models

import "fmt"

// TMDBMovieURL is the public page of a provider film.
const TMDBMovieURL = "https://www.themoviedb.org/movie/%d"

// RemoteFilmSummary is a film as reported by the metadata provider.
type RemoteFilmSummary struct {
	TMDBId     int      `json:"tmdb_id"`
	Title      string   `json:"title"`
	Year       *int     `json:"year,omitempty"`
	GenreIDs   []int    `json:"genre_ids,omitempty"`
	Genres     []string `json:"genres,omitempty"`
	Score      float64  `json:"score"`
	Popularity float64  `json:"popularity"`
}

// Key returns the (title, year) identity of the summary.
func (s RemoteFilmSummary) Key() FilmKey {
	return NewFilmKey(s.Title, s.Year)
}

// Label renders the summary as "Title (Year)".
func (s RemoteFilmSummary) Label() string {
	return FormatTitle(s.Title, s.Year)
}

// URL returns the provider page for the film, or "" without a provider id.
func (s RemoteFilmSummary) URL() string {
	if s.TMDBId == 0 {
		return ""
	}
	return fmt.Sprintf(TMDBMovieURL, s.TMDBId)
}

// Genre is a provider genre.
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// RecommendationCandidate is a ranked suggestion. It is never persisted.
type RecommendationCandidate struct {
	TMDBId        int      `json:"tmdb_id,omitempty"`
	Title         string   `json:"title"`
	Year          *int     `json:"year,omitempty"`
	Genres        []string `json:"genres"`
	ProviderScore float64  `json:"provider_score"`
	SourceSeedID  *int     `json:"source_seed_id,omitempty"`
	URL           string   `json:"url,omitempty"`
}

// Label renders the candidate as "Title (Year)".
func (c RecommendationCandidate) Label() string {
	return FormatTitle(c.Title, c.Year)
}

// Key returns the (title, year) identity of the candidate.
func (c RecommendationCandidate) Key() FilmKey {
	return NewFilmKey(c.Title, c.Year)
}
