package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultIdleTimeout ends sessions unused for this long.
const DefaultIdleTimeout = 30 * time.Minute

// Store is an in-memory session table. Idle sessions are removed when
// next looked up, and Create sweeps the whole table at most once per idle
// timeout so abandoned sessions do not accumulate. There is no background
// goroutine.
type Store struct {
	idle time.Duration
	now  func() time.Time

	mu        sync.Mutex
	sessions  map[string]*Session
	lastSweep time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithIdleTimeout sets how long an unused session survives.
func WithIdleTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.idle = d
		}
	}
}

// WithStoreClock replaces time.Now.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		idle:     DefaultIdleTimeout,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastSweep = s.now()
	return s
}

// Create starts a new session with a random ID.
func (s *Store) Create() *Session {
	now := s.now()
	sess := newSession(uuid.NewString(), now)

	s.mu.Lock()
	var expired []*Session
	if now.Sub(s.lastSweep) >= s.idle {
		expired = s.sweepLocked(now)
	}
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	endAll(expired)
	return sess
}

func (s *Store) sweepLocked(now time.Time) []*Session {
	s.lastSweep = now
	var expired []*Session
	for id, sess := range s.sessions {
		if sess.idleSince(now) >= s.idle {
			delete(s.sessions, id)
			expired = append(expired, sess)
		}
	}
	return expired
}

func endAll(sessions []*Session) {
	for _, sess := range sessions {
		if l := sess.Logout(); l != nil {
			l.Discard()
		}
	}
}

// Get returns the live session with id and marks it used. A session idle
// past the timeout is ended: its ledger is discarded and it is removed.
func (s *Store) Get(id string) (*Session, bool) {
	now := s.now()

	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok && sess.idleSince(now) >= s.idle {
		delete(s.sessions, id)
		ok = false
	} else if !ok {
		sess = nil
	}
	s.mu.Unlock()

	if !ok {
		if sess != nil {
			endAll([]*Session{sess})
		}
		return nil, false
	}
	sess.touch(now)
	return sess, true
}

// Delete ends a session, discarding its ledger.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		endAll([]*Session{sess})
	}
}

// Len returns the number of sessions held, including idle ones not yet
// looked up.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
