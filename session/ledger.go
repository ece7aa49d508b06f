package session

import (
	"maps"
	"sync"
	"time"

	"github.com/kbukum/realmauth/auth/oidc"
)

// Ledger records the tokens of the most recent token response for one
// session. Until a response is installed both tokens count as expired.
type Ledger struct {
	now func() time.Time

	mu           sync.RWMutex
	installed    bool
	accessToken  string
	refreshToken string
	idToken      string
	claims       map[string]any
	lastRefresh  time.Time
	accessTTL    time.Duration
	refreshTTL   time.Duration
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithLedgerClock replaces time.Now.
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// NewLedger returns an empty ledger.
func NewLedger(opts ...LedgerOption) *Ledger {
	l := &Ledger{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Install records a token response and restarts both expiry clocks.
// A response without a refresh token keeps the previous one, and nil
// claims keep the previous claims snapshot.
func (l *Ledger) Install(tr *oidc.TokenResult, claims map[string]any) {
	if tr == nil {
		return
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.installed = true
	l.accessToken = tr.AccessToken
	if tr.RefreshToken != "" {
		l.refreshToken = tr.RefreshToken
	}
	if tr.IDToken != "" {
		l.idToken = tr.IDToken
	}
	if claims != nil {
		l.claims = maps.Clone(claims)
	}
	l.accessTTL = tr.ExpiresIn
	l.refreshTTL = tr.RefreshExpiresIn
	l.lastRefresh = now
}

// AccessExpired reports whether the access token lifetime has elapsed
// since the last refresh.
func (l *Ledger) AccessExpired() bool {
	now := l.now()
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.expiredAt(now, l.accessTTL)
}

// RefreshExpired reports whether the refresh token lifetime has elapsed
// since the last refresh.
func (l *Ledger) RefreshExpired() bool {
	now := l.now()
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.expiredAt(now, l.refreshTTL)
}

// expiredAt must be called with l.mu held.
func (l *Ledger) expiredAt(now time.Time, ttl time.Duration) bool {
	return !l.installed || now.Sub(l.lastRefresh) >= ttl
}

// SinceRefresh is the time elapsed since the last installed response, or
// false when none was installed.
func (l *Ledger) SinceRefresh() (time.Duration, bool) {
	now := l.now()
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.installed {
		return 0, false
	}
	return now.Sub(l.lastRefresh), true
}

// AccessToken returns the current access token.
func (l *Ledger) AccessToken() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.accessToken
}

// RefreshToken returns the current refresh token.
func (l *Ledger) RefreshToken() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.refreshToken
}

// Claims returns a copy of the recorded ID claims.
func (l *Ledger) Claims() map[string]any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return maps.Clone(l.claims)
}

// Snapshot is a point-in-time view of a ledger's clocks, without tokens.
type Snapshot struct {
	Installed      bool          `json:"installed"`
	HasIDToken     bool          `json:"has_id_token"`
	LastRefresh    time.Time     `json:"last_refresh"`
	AccessTTL      time.Duration `json:"access_ttl"`
	RefreshTTL     time.Duration `json:"refresh_ttl"`
	AccessExpired  bool          `json:"access_expired"`
	RefreshExpired bool          `json:"refresh_expired"`
}

// Snapshot returns the ledger's clocks.
func (l *Ledger) Snapshot() Snapshot {
	now := l.now()
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Snapshot{
		Installed:      l.installed,
		HasIDToken:     l.idToken != "",
		LastRefresh:    l.lastRefresh,
		AccessTTL:      l.accessTTL,
		RefreshTTL:     l.refreshTTL,
		AccessExpired:  l.expiredAt(now, l.accessTTL),
		RefreshExpired: l.expiredAt(now, l.refreshTTL),
	}
}

// Discard forgets every token. The ledger reads as expired afterwards.
func (l *Ledger) Discard() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.installed = false
	l.accessToken = ""
	l.refreshToken = ""
	l.idToken = ""
	l.claims = nil
	l.lastRefresh = time.Time{}
	l.accessTTL = 0
	l.refreshTTL = 0
}
