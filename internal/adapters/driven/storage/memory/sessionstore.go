// Package memory provides in-memory implementations of the persistence
// ports, used in development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oratorio-dev/rudybot/internal/core/domain"
	"github.com/oratorio-dev/rudybot/internal/core/ports/driven"
)

// Ensure SessionStore implements the interface.
var _ driven.SessionStore = (*SessionStore)(nil)

// DefaultMaxTurns bounds the per-user history.
const DefaultMaxTurns = 10

// SessionStore is an in-memory implementation of driven.SessionStore.
// Each user gets an exclusion scope of their own: appends for one user
// serialize on that user's lock, different users never contend.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	locks    map[string]*userLock
	maxTurns int
}

// userLock is a per-user mutex with a holder count so its map entry can
// be reaped once the last holder releases it.
type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewSessionStore creates an in-memory session store.
func NewSessionStore(maxTurns int) *SessionStore {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &SessionStore{
		sessions: make(map[string]*domain.Session),
		locks:    make(map[string]*userLock),
		maxTurns: maxTurns,
	}
}

// Get returns the session for a user, empty when none exists.
func (s *SessionStore) Get(_ context.Context, userID string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return domain.Session{UserID: userID}, nil
	}
	// Copy the turn slice so callers never alias store state.
	out := *sess
	out.Turns = append([]domain.Turn(nil), sess.Turns...)
	return out, nil
}

// Append adds a turn, evicting the oldest when the bound is reached.
func (s *SessionStore) Append(_ context.Context, userID string, turn domain.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		sess = &domain.Session{UserID: userID}
		s.sessions[userID] = sess
	}
	sess.Turns = append(sess.Turns, turn)
	if len(sess.Turns) > s.maxTurns {
		sess.Turns = sess.Turns[len(sess.Turns)-s.maxTurns:]
	}
	sess.UpdatedAt = time.Now().UTC()
	return nil
}

// Reset discards a user's session.
func (s *SessionStore) Reset(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}

// Lock acquires the per-user exclusion scope. The lock entry is removed
// once no goroutine holds or waits for it, so the table stays bounded
// by the number of concurrently active users.
func (s *SessionStore) Lock(userID string) func() {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &userLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, userID)
		}
		s.mu.Unlock()
	}
}
