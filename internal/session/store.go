// Package session keeps the question/answer history and the recent
// question list of a workspace.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/copyvara/internal/knowledge"
)

// Store holds answered sessions, most recent first. It has no size cap.
type Store struct {
	mu       sync.RWMutex
	sessions []knowledge.QASession
	now      func() time.Time
	newID    func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for session timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides session ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions: []knowledge.QASession{},
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append creates a session with a fresh ID and timestamp and prepends it.
func (s *Store) Append(question, answer string, evidence []knowledge.Evidence) knowledge.QASession {
	if evidence == nil {
		evidence = []knowledge.Evidence{}
	}
	session := knowledge.QASession{
		ID:        s.newID(),
		Question:  question,
		Answer:    answer,
		Evidence:  append([]knowledge.Evidence{}, evidence...),
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append([]knowledge.QASession{session}, s.sessions...)
	return session
}

// List returns a copy of the sessions, most recent first.
func (s *Store) List() []knowledge.QASession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]knowledge.QASession{}, s.sessions...)
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Replace swaps in sessions loaded from persistence.
func (s *Store) Replace(sessions []knowledge.QASession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append([]knowledge.QASession{}, sessions...)
}

// Reset drops all sessions.
func (s *Store) Reset() {
	s.Replace(nil)
}
