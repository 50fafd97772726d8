package tmdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// Options configures a Client.
type Options struct {
	APIKey            string
	BaseURL           string
	Language          string
	Timeout           time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	RequestsPerSecond float64
}

// Client is the TMDB API client. Requests are paced by a token bucket,
// retried with backoff on transient failures and guarded by a circuit
// breaker so a dead provider fails fast.
type Client struct {
	apiKey     string
	baseURL    string
	language   string
	http       *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
	maxRetries int
	retryDelay time.Duration
}

// NewClient creates a new TMDB API client.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		apiKey:     opts.APIKey,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		language:   opts.Language,
		http:       &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		breaker:    newBreaker("tmdb-api"),
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker[[]byte] {
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A 4xx answer means the provider is up; only transport errors and
		// 5xx/429 count against the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || !isRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})
}

// ---- TMDB Response Types ----

// PagedResponse is the shape shared by search, discover and recommendation endpoints.
type PagedResponse struct {
	Page         int         `json:"page"`
	Results      []TMDBMovie `json:"results"`
	TotalPages   int         `json:"total_pages"`
	TotalResults int         `json:"total_results"`
}

// TMDBMovie is a movie from TMDB list results.
type TMDBMovie struct {
	ID               int     `json:"id"`
	Title            string  `json:"title"`
	Overview         string  `json:"overview"`
	ReleaseDate      string  `json:"release_date"`
	Popularity       float64 `json:"popularity"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
	PosterPath       string  `json:"poster_path"`
	GenreIDs         []int   `json:"genre_ids"`
	OriginalLanguage string  `json:"original_language"`
}

// TMDBGenre is a genre from TMDB.
type TMDBGenre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// GenreListResponse is the TMDB genre/movie/list response.
type GenreListResponse struct {
	Genres []TMDBGenre `json:"genres"`
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("TMDB API returned status %d: %s", e.StatusCode, e.Body)
}

// ---- Client Methods ----

// SearchMovies searches movies by title.
func (c *Client) SearchMovies(ctx context.Context, query string, page int) (*PagedResponse, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("page", strconv.Itoa(max(page, 1)))

	var result PagedResponse
	if err := c.getJSON(ctx, "/search/movie", params, &result); err != nil {
		return nil, fmt.Errorf("search movies: %w", err)
	}
	return &result, nil
}

// MovieRecommendations fetches TMDB's recommendations for a movie.
func (c *Client) MovieRecommendations(ctx context.Context, tmdbID, page int) (*PagedResponse, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(max(page, 1)))

	var result PagedResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/movie/%d/recommendations", tmdbID), params, &result); err != nil {
		return nil, fmt.Errorf("movie recommendations: %w", err)
	}
	return &result, nil
}

// DiscoverByGenre fetches popular movies of one genre.
func (c *Client) DiscoverByGenre(ctx context.Context, genreID, page int) (*PagedResponse, error) {
	params := url.Values{}
	params.Set("with_genres", strconv.Itoa(genreID))
	params.Set("sort_by", "popularity.desc")
	params.Set("page", strconv.Itoa(max(page, 1)))

	var result PagedResponse
	if err := c.getJSON(ctx, "/discover/movie", params, &result); err != nil {
		return nil, fmt.Errorf("discover movies: %w", err)
	}
	return &result, nil
}

// GetGenres fetches all movie genres from TMDB.
func (c *Client) GetGenres(ctx context.Context) ([]TMDBGenre, error) {
	var result GenreListResponse
	if err := c.getJSON(ctx, "/genre/movie/list", url.Values{}, &result); err != nil {
		return nil, fmt.Errorf("genres: %w", err)
	}
	return result.Genres, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("api_key", c.apiKey)
	if c.language != "" {
		params.Set("language", c.language)
	}
	endpoint := c.baseURL + path + "?" + params.Encode()

	slog.Debug("fetching TMDB", "path", path)
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.fetchWithRetry(ctx, endpoint)
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// fetchWithRetry performs the GET, retrying transient failures up to
// maxRetries times.
func (c *Client) fetchWithRetry(ctx context.Context, endpoint string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := CalculateBackoff(c.retryDelay, attempt)
			slog.Debug("retrying TMDB request", "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		body, err := c.doGet(ctx, endpoint)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !isRetryable(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) doGet(ctx context.Context, endpoint string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// isRetryable reports whether err is worth another attempt: transport
// failures, throttling and server errors.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return true
}
