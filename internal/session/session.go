package session

import (
	"log/slog"
	"sync"
	"time"

	"movie-tracker/internal/models"
)

// Action is the step a user's conversation is waiting on.
type Action string

const (
	ActionNone                     Action = "none"
	ActionAwaitingTitle            Action = "awaiting_title"
	ActionAwaitingAddChoice        Action = "awaiting_add_choice"
	ActionAwaitingDuplicateConfirm Action = "awaiting_duplicate_confirm"
	ActionAwaitingDeleteConfirm    Action = "awaiting_delete_confirm"
	ActionAwaitingRecommendMode    Action = "awaiting_recommend_mode"
	ActionAwaitingRecommendSeed    Action = "awaiting_recommend_seed"
	ActionAwaitingGenre            Action = "awaiting_genre"
	ActionAwaitingRecommendMore    Action = "awaiting_recommend_more"
)

// Session is the transient state of one user's multi-step interaction.
// Only the fields relevant to Action are set.
type Session struct {
	UserID int64
	Action Action

	// FilmID is the film awaiting delete confirmation, or the seed film of
	// recommendations being paged through.
	FilmID int
	// Choices are the provider matches offered while adding a film.
	Choices []models.RemoteFilmSummary
	// Pending is the film waiting on a duplicate confirmation.
	Pending *models.RemoteFilmSummary
	// Genres are the genres offered for a genre recommendation.
	Genres []models.Genre

	// Genre is the seed of genre recommendations being paged through. When
	// nil, FilmID is the seed film.
	Genre *models.Genre
	// Page is the recommendation page last shown, starting at 1.
	Page int
	// Shown holds the films listed on each page shown so far, page 1 first.
	Shown [][]models.FilmKey

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Idle reports whether no action is pending.
func (s Session) Idle() bool {
	return s.Action == "" || s.Action == ActionNone
}

// Manager keeps sessions in memory, keyed by user. A session untouched for
// longer than the idle timeout is dropped the next time it is read.
type Manager struct {
	mu          sync.Mutex
	sessions    map[int64]*Session
	idleTimeout time.Duration
	now         func() time.Time
}

// NewManager creates a Manager.
func NewManager(idleTimeout time.Duration) *Manager {
	return &Manager{
		sessions:    make(map[int64]*Session),
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// WithClock replaces the time source.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Get returns the user's current session, or an idle one when none is
// pending or the pending one has expired.
func (m *Manager) Get(userID int64) Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		return Session{UserID: userID, Action: ActionNone}
	}
	if m.idleTimeout > 0 && m.now().Sub(s.UpdatedAt) > m.idleTimeout {
		delete(m.sessions, userID)
		slog.Info("session expired", "user_id", userID, "action", s.Action)
		return Session{UserID: userID, Action: ActionNone}
	}
	return *s
}

// Set stores s as the user's pending interaction. CreatedAt is kept when
// the action is unchanged so re-prompts do not restart the flow.
func (m *Manager) Set(s Session) {
	if s.Idle() {
		m.Reset(s.UserID)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if prev, ok := m.sessions[s.UserID]; ok && prev.Action == s.Action && !prev.CreatedAt.IsZero() {
		s.CreatedAt = prev.CreatedAt
	} else {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	m.sessions[s.UserID] = &s
}

// Reset returns the user to idle.
func (m *Manager) Reset(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

// Len reports how many sessions are stored, expired ones included.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
