package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"movie-tracker/internal/keylock"
	"movie-tracker/internal/models"
	"movie-tracker/internal/repository"
	"movie-tracker/internal/session"
)

const maxAddChoices = 5

const helpText = "I keep track of the films you have watched.\n\n" +
	"/add <title> [(year)] - add a film\n" +
	"/list - show your films\n" +
	"/recommend - recommendations by film or genre\n" +
	"/cancel - cancel the current step\n" +
	"/help - show this message"

// Replies for recoverable failures.
const (
	msgUnavailable   = "The movie database is unavailable right now. Please try again later."
	msgPersistFailed = "I couldn't save that change. Please try again."
	msgNotInList     = "That film is not in your list."
	msgUnknownInput  = "I didn't understand that. Send /help to see what I can do."
)

var titleYearPattern = regexp.MustCompile(`^(.*\S)\s*\((\d{4})\)$`)

// ConversationService runs the chat operations and the multi-step flows
// between them. Each call holds the user's exclusive section for its whole
// duration, provider lookups included.
type ConversationService struct {
	films       FilmStore
	lookup      MetadataLookup
	recommender *RecommendationService
	sessions    *session.Manager
	locks       *keylock.KeyedMutex
	dupPolicy   models.DuplicatePolicy
}

// NewConversationService creates a new ConversationService.
func NewConversationService(
	films FilmStore,
	lookup MetadataLookup,
	recommender *RecommendationService,
	sessions *session.Manager,
	duplicatePolicy models.DuplicatePolicy,
) *ConversationService {
	if !duplicatePolicy.Valid() {
		duplicatePolicy = models.DuplicateConfirm
	}
	return &ConversationService{
		films:       films,
		lookup:      lookup,
		recommender: recommender,
		sessions:    sessions,
		locks:       keylock.New(),
		dupPolicy:   duplicatePolicy,
	}
}

// Help returns the static help reply.
func (s *ConversationService) Help() models.Reply {
	return models.Reply{Text: helpText}
}

// Cancel drops any pending step.
func (s *ConversationService) Cancel(_ context.Context, userID int64) models.Reply {
	unlock := s.locks.Lock(userID)
	defer unlock()
	return s.cancel(userID)
}

func (s *ConversationService) cancel(userID int64) models.Reply {
	pending := s.sessions.Get(userID)
	s.sessions.Reset(userID)
	if pending.Idle() {
		return models.Reply{Text: "Nothing to cancel."}
	}
	return models.Reply{Text: "Cancelled."}
}

// Add handles the add command. Without arguments it asks for a title.
func (s *ConversationService) Add(ctx context.Context, userID int64, rawArgs string) (models.Reply, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	s.sessions.Reset(userID)
	return s.add(ctx, userID, rawArgs)
}

// List shows the user's films with a delete option per film.
func (s *ConversationService) List(ctx context.Context, userID int64) (models.Reply, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	s.sessions.Reset(userID)
	films, err := s.films.ListFilms(ctx, userID)
	if err != nil {
		return s.replyForError(userID, err)
	}
	if len(films) == 0 {
		return models.Reply{Text: "Your list is empty. Use /add to add a film."}, nil
	}

	var b strings.Builder
	b.WriteString("Your films:\n")
	items := make([]models.ReplyItem, 0, len(films))
	for i, f := range films {
		fmt.Fprintf(&b, "%d. %s%s\n", i+1, f.Label(), genreSuffix(f.Genres))
		items = append(items, models.ReplyItem{
			Label: "Delete " + f.Label(),
			Value: fmt.Sprintf("delete:%d", f.ID),
		})
	}
	return models.Reply{Text: strings.TrimRight(b.String(), "\n"), Items: items}, nil
}

// Recommend handles the recommend command:
//
//	recommend                    ask whether to seed by film or genre
//	recommend film [filmId]      seed by a watched film
//	recommend genre [id|name]    seed by a provider genre
func (s *ConversationService) Recommend(ctx context.Context, userID int64, rawArgs string) (models.Reply, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	s.sessions.Reset(userID)
	fields := strings.Fields(rawArgs)
	if len(fields) == 0 {
		s.sessions.Set(session.Session{UserID: userID, Action: session.ActionAwaitingRecommendMode})
		return models.Reply{
			Text: "How should I pick recommendations?",
			Items: []models.ReplyItem{
				{Label: "By a film you watched", Value: "film"},
				{Label: "By genre", Value: "genre"},
			},
		}, nil
	}

	rest := strings.Join(fields[1:], " ")
	switch strings.ToLower(fields[0]) {
	case "film":
		if rest == "" {
			return s.promptSeed(ctx, userID)
		}
		filmID, err := strconv.Atoi(rest)
		if err != nil {
			return s.promptSeed(ctx, userID)
		}
		return s.recommendFromFilm(ctx, userID, filmID)
	case "genre":
		if rest == "" {
			return s.promptGenre(ctx, userID, "")
		}
		genres, err := s.lookup.Genres(ctx)
		if err != nil {
			return s.replyForError(userID, err)
		}
		if g, ok := matchGenre(genres, rest); ok {
			return s.recommendFromGenre(ctx, userID, g)
		}
		return s.promptGenre(ctx, userID, fmt.Sprintf("I don't know the genre %q.", rest))
	default:
		return models.Reply{Text: "Usage: /recommend [film <id> | genre <id or name>]"}, nil
	}
}

// HandleInput processes free text or a selected item value, continuing
// whatever step the user is in.
func (s *ConversationService) HandleInput(ctx context.Context, userID int64, text string) (models.Reply, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)

	if lower == "cancel" || lower == "/cancel" {
		return s.cancel(userID), nil
	}
	if idStr, ok := strings.CutPrefix(lower, "delete:"); ok {
		s.sessions.Reset(userID)
		filmID, err := strconv.Atoi(strings.TrimSpace(idStr))
		if err != nil {
			return models.Reply{Text: msgNotInList}, nil
		}
		return s.requestDelete(ctx, userID, filmID)
	}

	sess := s.sessions.Get(userID)
	switch sess.Action {
	case session.ActionAwaitingTitle:
		return s.add(ctx, userID, text)

	case session.ActionAwaitingAddChoice:
		n, isNum := parseNumber(text)
		if !isNum {
			return s.cancelWith(userID, "Adding cancelled.")
		}
		if n < 1 || n > len(sess.Choices) {
			s.sessions.Set(sess)
			return models.Reply{
				Text:  fmt.Sprintf("Please choose a number between 1 and %d.", len(sess.Choices)),
				Items: choiceItems(sess.Choices),
			}, nil
		}
		return s.addResolved(ctx, userID, sess.Choices[n-1], "", false)

	case session.ActionAwaitingDuplicateConfirm:
		if isYes(lower) && sess.Pending != nil {
			return s.addResolved(ctx, userID, *sess.Pending, "", true)
		}
		return s.cancelWith(userID, "OK, not added.")

	case session.ActionAwaitingDeleteConfirm:
		if isYes(lower) {
			return s.confirmDelete(ctx, userID, sess.FilmID)
		}
		return s.cancelWith(userID, "Nothing was deleted.")

	case session.ActionAwaitingRecommendMode:
		switch lower {
		case "film":
			return s.promptSeed(ctx, userID)
		case "genre":
			return s.promptGenre(ctx, userID, "")
		}
		return s.cancelWith(userID, "Recommendations cancelled.")

	case session.ActionAwaitingRecommendSeed:
		filmID, isNum := parseNumber(text)
		if !isNum {
			return s.cancelWith(userID, "Recommendations cancelled.")
		}
		if _, err := s.films.GetFilm(ctx, userID, filmID); err != nil {
			if errors.Is(err, models.ErrFilmNotFound) {
				reply, perr := s.promptSeed(ctx, userID)
				reply.Text = msgNotInList + " " + reply.Text
				return reply, perr
			}
			return s.replyForError(userID, err)
		}
		return s.recommendFromFilm(ctx, userID, filmID)

	case session.ActionAwaitingGenre:
		if g, ok := matchGenre(sess.Genres, text); ok {
			return s.recommendFromGenre(ctx, userID, g)
		}
		if _, isNum := parseNumber(text); isNum {
			s.sessions.Set(sess)
			return models.Reply{Text: "Please pick one of the listed genres.", Items: genreItems(sess.Genres)}, nil
		}
		return s.cancelWith(userID, "Recommendations cancelled.")

	case session.ActionAwaitingRecommendMore:
		switch lower {
		case "more", "next":
			return s.recommendPage(ctx, userID, sess, sess.Page+1)
		case "back", "previous":
			if sess.Page > 1 {
				return s.recommendPage(ctx, userID, sess, sess.Page-1)
			}
			s.sessions.Set(sess)
			return models.Reply{Text: "This is the first page.", Items: pageItems(sess.Page, true)}, nil
		}
		return s.cancelWith(userID, "Recommendations closed.")
	}

	return models.Reply{Text: msgUnknownInput}, nil
}

// ---- add flow ----

func (s *ConversationService) add(ctx context.Context, userID int64, rawArgs string) (models.Reply, error) {
	title, year := parseTitleYear(rawArgs)
	if title == "" {
		s.sessions.Set(session.Session{UserID: userID, Action: session.ActionAwaitingTitle})
		return models.Reply{Text: "Send me the film title, e.g. Inception (2010)."}, nil
	}

	manual := models.RemoteFilmSummary{Title: title, Year: year}
	matches, err := s.lookup.SearchByTitle(ctx, title, 1)
	if err != nil {
		slog.Warn("title lookup failed, saving as typed", "user_id", userID, "title", title, "error", err)
		return s.addResolved(ctx, userID, manual, "The movie database is unavailable, so I saved it as typed.", false)
	}
	if year != nil {
		matches = filterByYear(matches, *year)
	}

	switch len(matches) {
	case 0:
		return s.addResolved(ctx, userID, manual, "I couldn't find it in the movie database, so I saved it as typed.", false)
	case 1:
		return s.addResolved(ctx, userID, matches[0], "", false)
	}

	choices := matches[:min(len(matches), maxAddChoices)]
	s.sessions.Set(session.Session{
		UserID:  userID,
		Action:  session.ActionAwaitingAddChoice,
		Choices: choices,
	})
	return models.Reply{Text: "Which one did you mean? Send the number.", Items: choiceItems(choices)}, nil
}

// addResolved stores film, applying the duplicate policy unless the user
// already confirmed.
func (s *ConversationService) addResolved(ctx context.Context, userID int64, film models.RemoteFilmSummary, note string, confirmed bool) (models.Reply, error) {
	flagged := false
	if !confirmed {
		dup, err := s.hasDuplicate(ctx, userID, film)
		if err != nil {
			return s.replyForError(userID, err)
		}
		if dup {
			switch s.dupPolicy {
			case models.DuplicateReject:
				s.sessions.Reset(userID)
				return models.Reply{Text: fmt.Sprintf("%q is already in your list.", film.Label())}, nil
			case models.DuplicateConfirm:
				pending := film
				s.sessions.Set(session.Session{
					UserID:  userID,
					Action:  session.ActionAwaitingDuplicateConfirm,
					Pending: &pending,
				})
				return models.Reply{
					Text: fmt.Sprintf("%q is already in your list. Add it again?", film.Label()),
					Items: []models.ReplyItem{
						{Label: "Yes", Value: "yes"},
						{Label: "No", Value: "no"},
					},
				}, nil
			default:
				flagged = true
			}
		}
	}

	s.sessions.Reset(userID)
	added, err := s.films.AddFilm(ctx, userID, repository.NewFilm{
		Title:  film.Title,
		Year:   film.Year,
		Genres: film.Genres,
		TMDBId: film.TMDBId,
	})
	if err != nil {
		return s.replyForError(userID, err)
	}

	text := fmt.Sprintf("Added %q%s!", added.Label(), genreSuffix(added.Genres))
	if flagged {
		text += " Note: it was already in your list."
	}
	if note != "" {
		text += "\n" + note
	}
	return models.Reply{Text: text}, nil
}

func (s *ConversationService) hasDuplicate(ctx context.Context, userID int64, film models.RemoteFilmSummary) (bool, error) {
	watched, err := s.films.ListFilms(ctx, userID)
	if err != nil {
		return false, err
	}
	key := film.Key()
	for _, w := range watched {
		if film.TMDBId > 0 && w.TMDBId == film.TMDBId {
			return true, nil
		}
		if w.Key() == key {
			return true, nil
		}
	}
	return false, nil
}

// ---- delete flow ----

func (s *ConversationService) requestDelete(ctx context.Context, userID int64, filmID int) (models.Reply, error) {
	film, err := s.films.GetFilm(ctx, userID, filmID)
	if err != nil {
		return s.replyForError(userID, err)
	}
	s.sessions.Set(session.Session{
		UserID: userID,
		Action: session.ActionAwaitingDeleteConfirm,
		FilmID: filmID,
	})
	return models.Reply{
		Text: fmt.Sprintf("Delete %q from your list?", film.Label()),
		Items: []models.ReplyItem{
			{Label: "Yes, delete", Value: "yes"},
			{Label: "No", Value: "no"},
		},
	}, nil
}

func (s *ConversationService) confirmDelete(ctx context.Context, userID int64, filmID int) (models.Reply, error) {
	s.sessions.Reset(userID)

	film, err := s.films.GetFilm(ctx, userID, filmID)
	if err != nil {
		return s.replyForError(userID, err)
	}
	deleted, err := s.films.DeleteFilm(ctx, userID, filmID)
	if err != nil {
		return s.replyForError(userID, err)
	}
	if !deleted {
		return models.Reply{Text: msgNotInList}, nil
	}
	return models.Reply{Text: fmt.Sprintf("Deleted %q.", film.Label())}, nil
}

// ---- recommend flow ----

func (s *ConversationService) promptSeed(ctx context.Context, userID int64) (models.Reply, error) {
	films, err := s.films.ListFilms(ctx, userID)
	if err != nil {
		return s.replyForError(userID, err)
	}
	if len(films) == 0 {
		s.sessions.Reset(userID)
		return models.Reply{Text: "You have no films yet. Use /add first."}, nil
	}

	items := make([]models.ReplyItem, 0, len(films))
	for _, f := range films {
		items = append(items, models.ReplyItem{Label: f.Label(), Value: strconv.Itoa(f.ID)})
	}
	s.sessions.Set(session.Session{UserID: userID, Action: session.ActionAwaitingRecommendSeed})
	return models.Reply{Text: "Pick a film:", Items: items}, nil
}

func (s *ConversationService) promptGenre(ctx context.Context, userID int64, prefix string) (models.Reply, error) {
	genres, err := s.lookup.Genres(ctx)
	if err != nil {
		return s.replyForError(userID, err)
	}
	s.sessions.Set(session.Session{
		UserID: userID,
		Action: session.ActionAwaitingGenre,
		Genres: genres,
	})

	text := "Pick a genre:"
	if prefix != "" {
		text = prefix + " " + text
	}
	return models.Reply{Text: text, Items: genreItems(genres)}, nil
}

func (s *ConversationService) recommendFromFilm(ctx context.Context, userID int64, filmID int) (models.Reply, error) {
	return s.recommendPage(ctx, userID, session.Session{UserID: userID, FilmID: filmID}, 1)
}

func (s *ConversationService) recommendFromGenre(ctx context.Context, userID int64, genre models.Genre) (models.Reply, error) {
	return s.recommendPage(ctx, userID, session.Session{UserID: userID, Genre: &genre}, 1)
}

// recommendPage shows page of the recommendations seeded by browse and
// keeps the seed so the user can ask for more or go back. Films shown on
// earlier pages are not repeated.
func (s *ConversationService) recommendPage(ctx context.Context, userID int64, browse session.Session, page int) (models.Reply, error) {
	s.sessions.Reset(userID)

	earlier := browse.Shown[:min(len(browse.Shown), page-1)]
	var skip []models.FilmKey
	for _, keys := range earlier {
		skip = append(skip, keys...)
	}
	req := Page{Number: page, Shown: skip}

	var (
		candidates []models.RecommendationCandidate
		header     string
		err        error
	)
	if browse.Genre != nil {
		candidates, err = s.recommender.RecommendFromGenre(ctx, userID, browse.Genre.ID, req)
		header = fmt.Sprintf("Popular %s films", browse.Genre.Name)
	} else {
		candidates, err = s.recommender.RecommendFromFilm(ctx, userID, browse.FilmID, req)
		header = "Recommendations"
		if seed, serr := s.films.GetFilm(ctx, userID, browse.FilmID); serr == nil {
			header = fmt.Sprintf("Because you watched %q", seed.Label())
		}
	}
	if err != nil {
		return s.replyForError(userID, err)
	}

	if len(candidates) == 0 {
		if page == 1 {
			return models.Reply{Text: "I couldn't find anything new to recommend."}, nil
		}
		// Stay on the last page that had results.
		browse.Action = session.ActionAwaitingRecommendMore
		browse.Page = page - 1
		browse.Shown = earlier
		s.sessions.Set(browse)
		return models.Reply{Text: "That's all I could find.", Items: pageItems(page-1, false)}, nil
	}

	shown := make([][]models.FilmKey, 0, page)
	shown = append(shown, earlier...)
	keys := make([]models.FilmKey, 0, len(candidates))
	for _, c := range candidates {
		keys = append(keys, c.Key())
	}
	browse.Action = session.ActionAwaitingRecommendMore
	browse.Page = page
	browse.Shown = append(shown, keys)
	s.sessions.Set(browse)

	if page > 1 {
		header += fmt.Sprintf(", page %d", page)
	}
	reply := renderRecommendations(header+":", candidates)
	reply.Items = append(reply.Items, pageItems(page, true)...)
	return reply, nil
}

// pageItems returns the navigation items for a page of recommendations.
func pageItems(page int, more bool) []models.ReplyItem {
	var items []models.ReplyItem
	if page > 1 {
		items = append(items, models.ReplyItem{Label: "Back", Value: "back"})
	}
	if more {
		items = append(items, models.ReplyItem{Label: "More", Value: "more"})
	}
	return items
}

func renderRecommendations(header string, candidates []models.RecommendationCandidate) models.Reply {
	var b strings.Builder
	b.WriteString(header)
	items := make([]models.ReplyItem, 0, len(candidates))
	for i, c := range candidates {
		fmt.Fprintf(&b, "\n%d. %s [%.1f]%s", i+1, c.Label(), c.ProviderScore, genreSuffix(c.Genres))
		items = append(items, models.ReplyItem{Label: c.Label(), URL: c.URL})
	}
	return models.Reply{Text: b.String(), Items: items}
}

// ---- helpers ----

func (s *ConversationService) cancelWith(userID int64, text string) (models.Reply, error) {
	s.sessions.Reset(userID)
	return models.Reply{Text: text}, nil
}

// replyForError turns known failures into user-facing replies and resets
// the session. Unknown errors are returned as-is.
func (s *ConversationService) replyForError(userID int64, err error) (models.Reply, error) {
	s.sessions.Reset(userID)

	switch {
	case errors.Is(err, models.ErrValidation):
		return models.Reply{Text: "That doesn't look right: " + validationDetail(err)}, nil
	case errors.Is(err, models.ErrFilmNotFound):
		return models.Reply{Text: msgNotInList}, nil
	case errors.Is(err, models.ErrPersistence):
		slog.Error("film library write failed", "user_id", userID, "error", err)
		return models.Reply{Text: msgPersistFailed}, nil
	case errors.Is(err, models.ErrRecommendationUnavailable), errors.Is(err, models.ErrLookupUnavailable):
		return models.Reply{Text: msgUnavailable}, nil
	}
	return models.Reply{}, err
}

func validationDetail(err error) string {
	msg := err.Error()
	if _, detail, ok := strings.Cut(msg, models.ErrValidation.Error()+": "); ok {
		return detail
	}
	return msg
}

// parseTitleYear splits "Title (2010)" into its parts.
func parseTitleYear(raw string) (string, *int) {
	raw = strings.Join(strings.Fields(raw), " ")
	if m := titleYearPattern.FindStringSubmatch(raw); m != nil {
		if y, err := strconv.Atoi(m[2]); err == nil {
			return m[1], &y
		}
	}
	return raw, nil
}

func filterByYear(matches []models.RemoteFilmSummary, year int) []models.RemoteFilmSummary {
	var out []models.RemoteFilmSummary
	for _, m := range matches {
		if m.Year != nil && *m.Year == year {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return matches
	}
	return out
}

func matchGenre(genres []models.Genre, input string) (models.Genre, bool) {
	input = strings.TrimSpace(input)
	if id, err := strconv.Atoi(input); err == nil {
		for _, g := range genres {
			if g.ID == id {
				return g, true
			}
		}
		return models.Genre{}, false
	}
	for _, g := range genres {
		if strings.EqualFold(g.Name, input) {
			return g, true
		}
	}
	return models.Genre{}, false
}

func parseNumber(text string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	return n, err == nil
}

func isYes(lower string) bool {
	switch lower {
	case "yes", "y", "confirm":
		return true
	}
	return false
}

func choiceItems(choices []models.RemoteFilmSummary) []models.ReplyItem {
	items := make([]models.ReplyItem, 0, len(choices))
	for i, c := range choices {
		items = append(items, models.ReplyItem{
			Label: fmt.Sprintf("%d. %s", i+1, c.Label()),
			Value: strconv.Itoa(i + 1),
		})
	}
	return items
}

func genreItems(genres []models.Genre) []models.ReplyItem {
	items := make([]models.ReplyItem, 0, len(genres))
	for _, g := range genres {
		items = append(items, models.ReplyItem{Label: g.Name, Value: strconv.Itoa(g.ID)})
	}
	return items
}

func genreSuffix(genres []string) string {
	if len(genres) == 0 {
		return ""
	}
	return " (" + strings.Join(genres, ", ") + ")"
}
