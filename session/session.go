package session

import (
	"sync"
	"time"
)

// Well-known session values.
const (
	KeyState    = "login_state"
	KeyVerifier = "pkce_verifier"
	KeyReferer  = "referer"
)

// Session is one browser session.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu            sync.RWMutex
	authRequested bool
	identity      *Identity
	ledger        *Ledger
	values        map[string]string
	lastSeen      time.Time
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		CreatedAt: now,
		lastSeen:  now,
		values:    make(map[string]string),
	}
}

// AuthRequested reports whether this session started a login handshake
// that has not been ended by logout.
func (s *Session) AuthRequested() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authRequested
}

// SetAuthRequested records the start or end of a login handshake.
func (s *Session) SetAuthRequested(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authRequested = v
}

// Identity returns the authenticated identity, or nil.
func (s *Session) Identity() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Ledger returns the token ledger, or nil when not logged in.
func (s *Session) Ledger() *Ledger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger
}

// Authenticate attaches a successful login to the session.
func (s *Session) Authenticate(id *Identity, l *Ledger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = id
	s.ledger = l
	s.authRequested = true
}

// Logout discards the ledger and identity and ends the handshake. It
// returns the ledger as it was so callers can revoke its refresh token;
// the returned ledger is discarded by the caller when done.
func (s *Session) Logout() *Ledger {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.ledger
	s.identity = nil
	s.ledger = nil
	s.authRequested = false
	return l
}

// Value returns a stored session value.
func (s *Session) Value(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// SetValue stores a session value.
func (s *Session) SetValue(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// TakeValue returns and removes a session value.
func (s *Session) TakeValue(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	delete(s.values, key)
	return v, ok
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return now.Sub(s.lastSeen)
}
