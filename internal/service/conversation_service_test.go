package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"movie-tracker/internal/models"
	"movie-tracker/internal/session"
)

const user int64 = 42

// mustReply returns a checker for a (Reply, error) pair that fails the
// test on error: mustReply(t)(h.svc.List(ctx, user)).
func mustReply(t *testing.T) func(models.Reply, error) models.Reply {
	t.Helper()
	return func(reply models.Reply, err error) models.Reply {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return reply
	}
}

func (h *harness) count(t *testing.T) int {
	t.Helper()
	films, err := h.films.ListFilms(context.Background(), user)
	if err != nil {
		t.Fatal(err)
	}
	return len(films)
}

func (h *harness) action() session.Action {
	return h.sessions.Get(user).Action
}

func TestDeleteConfirm_UnrelatedInputLeavesFilm(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	h.addFilm(t, user, "Heat", 1995, 0)
	h.addFilm(t, user, "Alien", 1979, 0)
	target := h.addFilm(t, user, "Arrival", 2016, 0)
	if target.ID != 3 {
		t.Fatalf("expected film id 3, got %d", target.ID)
	}

	reply := mustReply(t)(h.svc.HandleInput(ctx, user, "delete:3"))
	if !strings.Contains(reply.Text, "Arrival (2016)") {
		t.Errorf("expected confirmation prompt naming the film, got %q", reply.Text)
	}
	if h.action() != session.ActionAwaitingDeleteConfirm {
		t.Fatalf("expected delete confirmation step, got %q", h.action())
	}

	reply = mustReply(t)(h.svc.HandleInput(ctx, user, "what about Dune?"))
	if reply.Text != "Nothing was deleted." {
		t.Errorf("unexpected reply %q", reply.Text)
	}
	if !h.sessions.Get(user).Idle() {
		t.Errorf("expected idle session, got %q", h.action())
	}
	if h.count(t) != 3 {
		t.Errorf("expected 3 films to remain, got %d", h.count(t))
	}
}

func TestDeleteConfirm_YesDeletes(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	f := h.addFilm(t, user, "Heat", 1995, 0)

	mustReply(t)(h.svc.HandleInput(ctx, user, "delete:1"))
	reply := mustReply(t)(h.svc.HandleInput(ctx, user, "Yes"))
	if reply.Text != `Deleted "Heat (1995)".` {
		t.Errorf("unexpected reply %q", reply.Text)
	}
	if _, err := h.films.GetFilm(ctx, user, f.ID); !errors.Is(err, models.ErrFilmNotFound) {
		t.Errorf("expected film to be gone, got %v", err)
	}
}

func TestDeleteRequest_UnknownFilm(t *testing.T) {
	h := newHarness(t, "")
	reply := mustReply(t)(h.svc.HandleInput(context.Background(), user, "delete:99"))
	if reply.Text != msgNotInList {
		t.Errorf("unexpected reply %q", reply.Text)
	}
	if !h.sessions.Get(user).Idle() {
		t.Error("expected idle session")
	}
}

func TestDeleteConfirm_ExpiresAfterIdleTimeout(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	h.addFilm(t, user, "Heat", 1995, 0)

	mustReply(t)(h.svc.HandleInput(ctx, user, "delete:1"))
	h.clock.Advance(11 * time.Minute)

	reply := mustReply(t)(h.svc.HandleInput(ctx, user, "yes"))
	if reply.Text != msgUnknownInput {
		t.Errorf("expected expired step to be ignored, got %q", reply.Text)
	}
	if h.count(t) != 1 {
		t.Error("expected film to survive an expired confirmation")
	}
}

func TestAdd_SingleMatchUsesProviderData(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	inception := summary(27205, "Inception", 2010, 8.4)
	inception.Genres = []string{"Action", "Science Fiction"}
	h.lookup.byTitle["Inception"] = []models.RemoteFilmSummary{inception}

	reply := mustReply(t)(h.svc.Add(ctx, user, "Inception"))
	if reply.Text != `Added "Inception (2010)" (Action, Science Fiction)!` {
		t.Errorf("unexpected reply %q", reply.Text)
	}
	film, err := h.films.GetFilm(ctx, user, 1)
	if err != nil {
		t.Fatal(err)
	}
	if film.TMDBId != 27205 {
		t.Errorf("expected provider id to be stored, got %d", film.TMDBId)
	}
}

func TestAdd_YearNarrowsMatches(t *testing.T) {
	h := newHarness(t, "")
	h.lookup.byTitle["Dune"] = []models.RemoteFilmSummary{
		summary(438631, "Dune", 2021, 7.8),
		summary(841, "Dune", 1984, 6.3),
	}

	reply := mustReply(t)(h.svc.Add(context.Background(), user, "Dune (1984)"))
	if reply.Text != `Added "Dune (1984)"!` {
		t.Errorf("unexpected reply %q", reply.Text)
	}
}

func TestAdd_MultipleMatchesOffersChoices(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	h.lookup.byTitle["Dune"] = []models.RemoteFilmSummary{
		summary(438631, "Dune", 2021, 7.8),
		summary(841, "Dune", 1984, 6.3),
		summary(693134, "Dune: Part Two", 2024, 8.2),
	}

	reply := mustReply(t)(h.svc.Add(ctx, user, "Dune"))
	if len(reply.Items) != 3 || reply.Items[1].Value != "2" {
		t.Fatalf("expected 3 numbered choices, got %+v", reply.Items)
	}
	if h.action() != session.ActionAwaitingAddChoice {
		t.Fatalf("expected choice step, got %q", h.action())
	}

	reply = mustReply(t)(h.svc.HandleInput(ctx, user, "7"))
	if !strings.Contains(reply.Text, "between 1 and 3") {
		t.Errorf("expected re-prompt, got %q", reply.Text)
	}
	if h.action() != session.ActionAwaitingAddChoice {
		t.Fatalf("expected to stay on the choice step, got %q", h.action())
	}

	reply = mustReply(t)(h.svc.HandleInput(ctx, user, "2"))
	if reply.Text != `Added "Dune (1984)"!` {
		t.Errorf("unexpected reply %q", reply.Text)
	}
	if !h.sessions.Get(user).Idle() {
		t.Error("expected idle session after adding")
	}
}

func TestAdd_ChoicesAreCapped(t *testing.T) {
	h := newHarness(t, "")
	for i := 0; i < 8; i++ {
		h.lookup.byTitle["Batman"] = append(h.lookup.byTitle["Batman"], summary(i+1, "Batman", 1990+i, 7))
	}
	reply := mustReply(t)(h.svc.Add(context.Background(), user, "Batman"))
	if len(reply.Items) != maxAddChoices {
		t.Errorf("expected %d choices, got %d", maxAddChoices, len(reply.Items))
	}
}

func TestAdd_NonNumericChoiceCancels(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	h.lookup.byTitle["Dune"] = []models.RemoteFilmSummary{
		summary(438631, "Dune", 2021, 7.8),
		summary(841, "Dune", 1984, 6.3),
	}

	mustReply(t)(h.svc.Add(ctx, user, "Dune"))
	reply := mustReply(t)(h.svc.HandleInput(ctx, user, "never mind"))
	if reply.Text != "Adding cancelled." {
		t.Errorf("unexpected reply %q", reply.Text)
	}
	if h.count(t) != 0 {
		t.Error("expected nothing to be added")
	}
}

func TestAdd_PromptsForTitle(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	reply := mustReply(t)(h.svc.Add(ctx, user, "   "))
	if !strings.Contains(reply.Text, "title") {
		t.Errorf("expected title prompt, got %q", reply.Text)
	}
	if h.action() != session.ActionAwaitingTitle {
		t.Fatalf("expected title step, got %q", h.action())
	}

	reply = mustReply(t)(h.svc.HandleInput(ctx, user, "Primer (2004)"))
	if !strings.HasPrefix(reply.Text, `Added "Primer (2004)"!`) {
		t.Errorf("unexpected reply %q", reply.Text)
	}
}

func TestAdd_LookupUnavailableSavesAsTyped(t *testing.T) {
	h := newHarness(t, "")
	h.lookup.err = errors.New("timeout")

	reply := mustReply(t)(h.svc.Add(context.Background(), user, "Heat (1995)"))
	if !strings.Contains(reply.Text, "saved it as typed") {
		t.Errorf("unexpected reply %q", reply.Text)
	}
	film, err := h.films.GetFilm(context.Background(), user, 1)
	if err != nil {
		t.Fatal(err)
	}
	if film.Title != "Heat" || film.Year == nil || *film.Year != 1995 {
		t.Errorf("unexpected stored film %+v", film)
	}
}

func TestAdd_DuplicatePolicies(t *testing.T) {
	tests := []struct {
		name      string
		policy    models.DuplicatePolicy
		followUp  string
		wantCount int
	}{
		{name: "confirm yes", policy: models.DuplicateConfirm, followUp: "yes", wantCount: 2},
		{name: "confirm no", policy: models.DuplicateConfirm, followUp: "no", wantCount: 1},
		{name: "reject", policy: models.DuplicateReject, wantCount: 1},
		{name: "allow", policy: models.DuplicateAllow, wantCount: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.policy)
			ctx := context.Background()
			h.addFilm(t, user, "Heat", 1995, 0)

			reply := mustReply(t)(h.svc.Add(ctx, user, "heat (1995)"))
			if !strings.Contains(reply.Text, "already in your list") {
				t.Errorf("expected duplicate notice, got %q", reply.Text)
			}
			if tt.followUp != "" {
				if h.action() != session.ActionAwaitingDuplicateConfirm {
					t.Fatalf("expected duplicate confirmation step, got %q", h.action())
				}
				mustReply(t)(h.svc.HandleInput(ctx, user, tt.followUp))
			}
			if got := h.count(t); got != tt.wantCount {
				t.Errorf("expected %d films, got %d", tt.wantCount, got)
			}
			if !h.sessions.Get(user).Idle() {
				t.Errorf("expected idle session, got %q", h.action())
			}
		})
	}
}

func TestAdd_PersistenceFailure(t *testing.T) {
	h := newHarness(t, "")
	h.backend.failErr = errors.New("disk full")

	reply := mustReply(t)(h.svc.Add(context.Background(), user, "Heat (1995)"))
	if reply.Text != msgPersistFailed {
		t.Errorf("unexpected reply %q", reply.Text)
	}
	if h.count(t) != 0 {
		t.Error("expected failed write to leave the list empty")
	}
}

func TestList(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	reply := mustReply(t)(h.svc.List(ctx, user))
	if !strings.Contains(reply.Text, "empty") {
		t.Errorf("unexpected reply for empty list %q", reply.Text)
	}

	h.addFilm(t, user, "Heat", 1995, 0)
	h.addFilm(t, user, "Primer", 0, 0)
	reply = mustReply(t)(h.svc.List(ctx, user))
	if reply.Text != "Your films:\n1. Heat (1995)\n2. Primer" {
		t.Errorf("unexpected list %q", reply.Text)
	}
	if len(reply.Items) != 2 || reply.Items[1].Value != "delete:2" {
		t.Errorf("unexpected items %+v", reply.Items)
	}
}

func TestRecommend_FilmFlow(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	h.addFilm(t, user, "Inception", 2010, 0)
	h.lookup.byTitle["Inception"] = []models.RemoteFilmSummary{
		summary(27205, "Inception", 2010, 8.4),
		summary(157336, "Interstellar", 2014, 8.1),
		summary(577922, "Tenet", 2020, 7.8),
	}

	reply := mustReply(t)(h.svc.Recommend(ctx, user, ""))
	if h.action() != session.ActionAwaitingRecommendMode || len(reply.Items) != 2 {
		t.Fatalf("expected mode prompt, got %q %+v", h.action(), reply.Items)
	}

	reply = mustReply(t)(h.svc.HandleInput(ctx, user, "film"))
	if h.action() != session.ActionAwaitingRecommendSeed || len(reply.Items) != 1 || reply.Items[0].Value != "1" {
		t.Fatalf("expected seed prompt, got %q %+v", h.action(), reply.Items)
	}

	reply = mustReply(t)(h.svc.HandleInput(ctx, user, "1"))
	want := "Because you watched \"Inception (2010)\":\n1. Interstellar (2014) [8.1]\n2. Tenet (2020) [7.8]"
	if reply.Text != want {
		t.Errorf("expected %q, got %q", want, reply.Text)
	}
	if len(reply.Items) != 3 || reply.Items[0].URL != "https://www.themoviedb.org/movie/157336" {
		t.Fatalf("expected link items and a more item, got %+v", reply.Items)
	}
	if last := reply.Items[2]; last.Value != "more" || last.URL != "" {
		t.Errorf("expected trailing more item, got %+v", last)
	}
	if h.action() != session.ActionAwaitingRecommendMore {
		t.Errorf("expected to wait for more, got %q", h.action())
	}
}

func TestRecommend_Paging(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	h.addFilm(t, user, "Inception", 2010, 27205)
	h.addFilm(t, user, "Memento", 2000, 0)
	h.lookup.similar[27205] = []models.RemoteFilmSummary{
		summary(157336, "Interstellar", 2014, 8.1),
		summary(577922, "Tenet", 2020, 7.8),
	}
	h.lookup.later["similar:27205@2"] = []models.RemoteFilmSummary{
		summary(157336, "Interstellar", 2014, 8.1),
		summary(77, "Memento", 2000, 8.2),
		summary(272, "Batman Begins", 2005, 7.7),
	}

	first := mustReply(t)(h.svc.Recommend(ctx, user, "film 1"))
	if !strings.Contains(first.Text, "Interstellar") || !strings.Contains(first.Text, "Tenet") {
		t.Fatalf("unexpected first page %q", first.Text)
	}

	second := mustReply(t)(h.svc.HandleInput(ctx, user, "more"))
	want := "Because you watched \"Inception (2010)\", page 2:\n1. Batman Begins (2005) [7.7]"
	if second.Text != want {
		t.Errorf("expected %q, got %q", want, second.Text)
	}
	if call := h.lookup.lastCall(); call != "similar:27205@2" {
		t.Errorf("expected provider page 2, got %q", call)
	}
	if len(second.Items) != 3 || second.Items[1].Value != "back" || second.Items[2].Value != "more" {
		t.Errorf("expected back and more items, got %+v", second.Items)
	}
	if sess := h.sessions.Get(user); sess.Page != 2 || sess.FilmID != 1 {
		t.Errorf("expected page 2 of film 1, got %+v", sess)
	}

	back := mustReply(t)(h.svc.HandleInput(ctx, user, "back"))
	if back.Text != first.Text {
		t.Errorf("expected back to repeat the first page, got %q", back.Text)
	}

	reply := mustReply(t)(h.svc.HandleInput(ctx, user, "back"))
	if reply.Text != "This is the first page." || h.action() != session.ActionAwaitingRecommendMore {
		t.Errorf("unexpected reply %q in %q", reply.Text, h.action())
	}
}

func TestRecommend_PagingRunsOut(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	h.lookup.byGenre[35] = []models.RemoteFilmSummary{summary(1, "Airplane!", 1980, 7.2)}

	mustReply(t)(h.svc.Recommend(ctx, user, "genre 35"))
	reply := mustReply(t)(h.svc.HandleInput(ctx, user, "more"))
	if reply.Text != "That's all I could find." {
		t.Errorf("unexpected reply %q", reply.Text)
	}
	if sess := h.sessions.Get(user); sess.Action != session.ActionAwaitingRecommendMore || sess.Page != 1 {
		t.Errorf("expected to stay on page 1, got %+v", sess)
	}

	reply = mustReply(t)(h.svc.HandleInput(ctx, user, "thanks"))
	if reply.Text != "Recommendations closed." || !h.sessions.Get(user).Idle() {
		t.Errorf("expected recommendations to close, got %q", reply.Text)
	}
}

func TestRecommend_SeedNotInList(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	h.addFilm(t, user, "Heat", 1995, 0)

	mustReply(t)(h.svc.Recommend(ctx, user, "film"))
	reply := mustReply(t)(h.svc.HandleInput(ctx, user, "5"))
	if !strings.HasPrefix(reply.Text, msgNotInList) {
		t.Errorf("unexpected reply %q", reply.Text)
	}
	if h.action() != session.ActionAwaitingRecommendSeed {
		t.Errorf("expected to stay on the seed step, got %q", h.action())
	}
}

func TestRecommend_GenreFlow(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	h.addFilm(t, user, "Arrival", 2016, 0)
	h.lookup.byGenre[878] = []models.RemoteFilmSummary{
		summary(329865, "Arrival", 2016, 7.6),
		summary(438631, "Dune", 2021, 7.8),
	}

	reply := mustReply(t)(h.svc.Recommend(ctx, user, "genre"))
	if h.action() != session.ActionAwaitingGenre || len(reply.Items) != 3 {
		t.Fatalf("expected genre prompt, got %q %+v", h.action(), reply.Items)
	}

	reply = mustReply(t)(h.svc.HandleInput(ctx, user, "12"))
	if !strings.Contains(reply.Text, "listed genres") || h.action() != session.ActionAwaitingGenre {
		t.Fatalf("expected re-prompt, got %q", reply.Text)
	}

	reply = mustReply(t)(h.svc.HandleInput(ctx, user, "878"))
	if reply.Text != "Popular Science Fiction films:\n1. Dune (2021) [7.8]" {
		t.Errorf("unexpected reply %q", reply.Text)
	}
}

func TestRecommend_GenreByName(t *testing.T) {
	h := newHarness(t, "")
	h.lookup.byGenre[35] = []models.RemoteFilmSummary{summary(1, "Airplane!", 1980, 7.2)}

	reply := mustReply(t)(h.svc.Recommend(context.Background(), user, "genre comedy"))
	if !strings.Contains(reply.Text, "Airplane! (1980)") {
		t.Errorf("unexpected reply %q", reply.Text)
	}
}

func TestRecommend_Unavailable(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	h.addFilm(t, user, "Heat", 1995, 949)
	h.lookup.err = errors.New("503")

	reply := mustReply(t)(h.svc.Recommend(ctx, user, "film 1"))
	if reply.Text != msgUnavailable {
		t.Errorf("unexpected reply %q", reply.Text)
	}
	if len(reply.Items) != 0 {
		t.Errorf("expected no partial results, got %+v", reply.Items)
	}
	if !h.sessions.Get(user).Idle() {
		t.Error("expected idle session")
	}
}

func TestRecommend_NothingNew(t *testing.T) {
	h := newHarness(t, "")
	h.addFilm(t, user, "Heat", 1995, 949)
	h.lookup.similar[949] = []models.RemoteFilmSummary{summary(949, "Heat", 1995, 8)}

	reply := mustReply(t)(h.svc.Recommend(context.Background(), user, "film 1"))
	if !strings.Contains(reply.Text, "couldn't find anything new") {
		t.Errorf("unexpected reply %q", reply.Text)
	}
}

func TestCancel(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	if reply := h.svc.Cancel(ctx, user); reply.Text != "Nothing to cancel." {
		t.Errorf("unexpected reply %q", reply.Text)
	}

	mustReply(t)(h.svc.Add(ctx, user, ""))
	reply := mustReply(t)(h.svc.HandleInput(ctx, user, "/cancel"))
	if reply.Text != "Cancelled." {
		t.Errorf("unexpected reply %q", reply.Text)
	}
	if !h.sessions.Get(user).Idle() {
		t.Error("expected idle session")
	}
}

func TestCommandResetsPendingStep(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	h.addFilm(t, user, "Heat", 1995, 0)

	mustReply(t)(h.svc.HandleInput(ctx, user, "delete:1"))
	mustReply(t)(h.svc.List(ctx, user))
	mustReply(t)(h.svc.HandleInput(ctx, user, "yes"))
	if h.count(t) != 1 {
		t.Error("expected a new command to drop the pending delete")
	}
}

func TestHelp(t *testing.T) {
	h := newHarness(t, "")
	reply := h.svc.Help()
	for _, cmd := range []string{"/add", "/list", "/recommend", "/cancel", "/help"} {
		if !strings.Contains(reply.Text, cmd) {
			t.Errorf("help text is missing %s", cmd)
		}
	}
}

func TestSessionsAreIsolatedPerUser(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	h.addFilm(t, user, "Heat", 1995, 0)

	mustReply(t)(h.svc.HandleInput(ctx, user, "delete:1"))
	reply := mustReply(t)(h.svc.HandleInput(ctx, user+1, "yes"))
	if reply.Text != msgUnknownInput {
		t.Errorf("unexpected reply for other user %q", reply.Text)
	}
	if h.action() != session.ActionAwaitingDeleteConfirm {
		t.Errorf("expected first user's step to survive, got %q", h.action())
	}
}

func TestParseTitleYear(t *testing.T) {
	tests := []struct {
		in        string
		wantTitle string
		wantYear  int
	}{
		{"Inception (2010)", "Inception", 2010},
		{"  Blade   Runner  (1982) ", "Blade Runner", 1982},
		{"Heat", "Heat", 0},
		{"2001: A Space Odyssey", "2001: A Space Odyssey", 0},
		{"(1999)", "(1999)", 0},
	}
	for _, tt := range tests {
		title, year := parseTitleYear(tt.in)
		got := 0
		if year != nil {
			got = *year
		}
		if title != tt.wantTitle || got != tt.wantYear {
			t.Errorf("parseTitleYear(%q) = %q, %d; want %q, %d", tt.in, title, got, tt.wantTitle, tt.wantYear)
		}
	}
}
