package models

import (
	"fmt"
	"strings"
	"time"
)

// WatchedFilm is a film a user has marked as seen. Records are never
// edited after creation, only deleted.
type WatchedFilm struct {
	ID      int       `json:"id"`
	Title   string    `json:"title"`
	Year    *int      `json:"year,omitempty"`
	Genres  []string  `json:"genres"`
	TMDBId  int       `json:"tmdb_id,omitempty"`
	AddedAt time.Time `json:"added_at"`
}

// Key returns the (title, year) identity used for duplicate and
// already-watched checks.
func (f WatchedFilm) Key() FilmKey {
	return NewFilmKey(f.Title, f.Year)
}

// Label renders the film as "Title (Year)".
func (f WatchedFilm) Label() string {
	return FormatTitle(f.Title, f.Year)
}

// UserLibrary is the durable record of one user's watched films.
// NextID is the id the next added film receives; it only grows, so ids
// are never reused after a delete.
type UserLibrary struct {
	UserID int64         `json:"user_id"`
	NextID int           `json:"next_id"`
	Films  []WatchedFilm `json:"films"`
}

// Clone returns a deep copy of the library.
func (l *UserLibrary) Clone() *UserLibrary {
	out := &UserLibrary{
		UserID: l.UserID,
		NextID: l.NextID,
		Films:  make([]WatchedFilm, len(l.Films)),
	}
	for i, f := range l.Films {
		out.Films[i] = f.Clone()
	}
	return out
}

// Clone returns a deep copy of the film.
func (f WatchedFilm) Clone() WatchedFilm {
	c := f
	if f.Year != nil {
		y := *f.Year
		c.Year = &y
	}
	c.Genres = append([]string{}, f.Genres...)
	return c
}

// FilmKey identifies a film by normalized title and release year.
// Year is zero when unknown.
type FilmKey struct {
	Title string
	Year  int
}

// NewFilmKey normalizes a title/year pair.
func NewFilmKey(title string, year *int) FilmKey {
	k := FilmKey{Title: strings.ToLower(strings.Join(strings.Fields(title), " "))}
	if year != nil {
		k.Year = *year
	}
	return k
}

// Matches reports whether two keys name the same film. An unknown year on
// either side matches any year.
func (k FilmKey) Matches(other FilmKey) bool {
	if k.Title != other.Title {
		return false
	}
	return k.Year == 0 || other.Year == 0 || k.Year == other.Year
}

// FormatTitle renders "Title (Year)" or just "Title" when the year is unknown.
func FormatTitle(title string, year *int) string {
	if year == nil {
		return title
	}
	return fmt.Sprintf("%s (%d)", title, *year)
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
