// Package session holds generation jobs for the current run. The store is an
// explicit repository object injected into the orchestrator: an id→session
// map plus an "active" pointer, never package-level state.
package session

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/joss/chapterd/internal/domain"
)

// Common store errors.
var (
	// ErrNotFound indicates the requested session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrTerminal indicates the session already reached done or error.
	ErrTerminal = errors.New("session already terminal")

	// ErrInvalidID indicates an empty or malformed session ID.
	ErrInvalidID = errors.New("invalid session ID")
)

// NotFoundError wraps ErrNotFound with the session ID.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session not found: %s", e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// IsNotFound checks if an error is a session not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Store is the in-memory session repository. Sessions never persist beyond
// the current run.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*domain.GenerationSession
	activeID string

	now func() time.Time
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*domain.GenerationSession),
		now:      time.Now,
	}
}

// NewID derives a session ID from the current time (millisecond timestamp as
// a decimal string). On collision the timestamp is incremented until free, so
// two sessions created in the same millisecond still get distinct IDs.
// Callers must hold no lock; NewID takes its own.
func (s *Store) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newIDLocked()
}

func (s *Store) newIDLocked() string {
	ms := s.now().UnixMilli()
	for {
		id := strconv.FormatInt(ms, 10)
		if _, taken := s.sessions[id]; !taken {
			return id
		}
		ms++
	}
}

// Put creates or replaces the session input payload under the given ID and
// resets it to pending. This is how a captured transcript becomes a session:
// the capture surface chooses the ID, the store owns the record from then on.
func (s *Store) Put(sess *domain.GenerationSession) (*domain.GenerationSession, error) {
	if sess == nil || sess.ID == "" {
		return nil, ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *sess
	stored.Status = domain.StatusPending
	stored.Result = ""
	stored.ErrorMessage = ""
	stored.ErrorCategory = ""
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	s.sessions[stored.ID] = &stored

	snap := stored
	return &snap, nil
}

// Create derives a fresh ID, stores the payload under it, and returns a
// snapshot. Used when regenerating with a different model or instructions:
// the prior session keeps its results untouched.
func (s *Store) Create(sess *domain.GenerationSession) (*domain.GenerationSession, error) {
	if sess == nil {
		return nil, ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *sess
	stored.ID = s.newIDLocked()
	stored.Status = domain.StatusPending
	stored.Result = ""
	stored.ErrorMessage = ""
	stored.ErrorCategory = ""
	stored.CreatedAt = s.now()
	s.sessions[stored.ID] = &stored

	snap := stored
	return &snap, nil
}

// Get returns a read-only snapshot of the session. Safe for any number of
// concurrent pollers.
func (s *Store) Get(id string) (*domain.GenerationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	snap := *sess
	return &snap, nil
}

// Status returns the session status, or ErrNotFound.
func (s *Store) Status(id string) (domain.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return "", &NotFoundError{ID: id}
	}
	return sess.Status, nil
}

// SetActive marks the session as the one "active" job.
func (s *Store) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return &NotFoundError{ID: id}
	}
	s.activeID = id
	return nil
}

// Active returns a snapshot of the active session, if any.
func (s *Store) Active() (*domain.GenerationSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[s.activeID]
	if !ok {
		return nil, false
	}
	snap := *sess
	return &snap, true
}

// CompleteOK transitions pending→done and stores the result text. The write
// is atomic: a reader sees either the whole pending session or the whole done
// session, never a partial result.
func (s *Store) CompleteOK(id, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return &NotFoundError{ID: id}
	}
	if sess.Status.Terminal() {
		return fmt.Errorf("complete %s: %w", id, ErrTerminal)
	}
	sess.Status = domain.StatusDone
	sess.Result = result
	return nil
}

// CompleteError transitions pending→error with the captured message and its
// category.
func (s *Store) CompleteError(id, message string, category domain.ErrorCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return &NotFoundError{ID: id}
	}
	if sess.Status.Terminal() {
		return fmt.Errorf("fail %s: %w", id, ErrTerminal)
	}
	sess.Status = domain.StatusError
	sess.ErrorMessage = message
	sess.ErrorCategory = category
	return nil
}

// SetResult overwrites the result text of an existing session. Used when the
// results surface saves user edits; the status is left alone, so the
// pending→terminal transition stays one-way.
func (s *Store) SetResult(id, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return &NotFoundError{ID: id}
	}
	sess.Result = result
	return nil
}

// Remove deletes a session. Called when the owning tab closes.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	if s.activeID == id {
		s.activeID = ""
	}
}

// Clear drops every session and the active pointer.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = make(map[string]*domain.GenerationSession)
	s.activeID = ""
}

// Len returns the number of stored sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
