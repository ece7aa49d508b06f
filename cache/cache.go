// Package cache holds the process-wide validity cache used to avoid
// repeating expensive identity-provider lookups: per-user role sets, the
// realm role catalog, confirmed-unknown usernames, and the service token.
//
// Every store honours the same settings. Changing them affects entries
// inserted afterwards; existing entries keep the expiry they were given.
// While the cache is disabled reads miss and writes are dropped, but what
// is already stored survives and is visible again once re-enabled.
package cache

import (
	"slices"
	"sync/atomic"
	"time"
)

const (
	// DefaultTTL is the lifetime given to entries when none is configured.
	DefaultTTL = 300 * time.Second
	// DefaultCapacity bounds each keyed store when none is configured.
	DefaultCapacity = 1000
	// ServiceTokenBuffer is shaved off the provider-declared token lifetime
	// so a cached service token is never presented right as it expires.
	ServiceTokenBuffer = 500 * time.Millisecond
)

// Store names one of the four stores, for hooks and stats.
type Store string

const (
	StoreUserRoles    Store = "user_roles"
	StoreGlobalRoles  Store = "global_roles"
	StoreInvalidUsers Store = "invalid_users"
	StoreServiceToken Store = "service_token"
)

// Settings are the effective cache settings.
type Settings struct {
	Enabled  bool          `json:"enabled"`
	TTL      time.Duration `json:"ttl"`
	Capacity int           `json:"capacity"`
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLookupHook registers a callback invoked on every read with its outcome.
func WithLookupHook(fn func(store Store, hit bool)) Option {
	return func(c *Cache) { c.onLookup = fn }
}

// Cache is safe for concurrent use. Each keyed store has its own lock and
// each single-value slot is guarded independently.
type Cache struct {
	settings    atomic.Pointer[Settings]
	initialized atomic.Bool
	now         func() time.Time
	onLookup    func(Store, bool)

	userRoles    *boundedMap[[]string]
	invalidUsers *boundedMap[bool]
	globalRoles  slot[[]string]
	serviceToken slot[string]
}

// New creates an enabled cache with DefaultTTL and DefaultCapacity.
func New(opts ...Option) *Cache {
	c := &Cache{
		now:          time.Now,
		userRoles:    newBoundedMap[[]string](),
		invalidUsers: newBoundedMap[bool](),
	}
	c.settings.Store(&Settings{Enabled: true, TTL: DefaultTTL, Capacity: DefaultCapacity})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configure replaces the settings of all four stores. It is idempotent and
// may be called at any time. A capacity below one is raised to one and a
// negative ttl is treated as zero.
func (c *Cache) Configure(enabled bool, ttl time.Duration, capacity int) {
	c.settings.Store(&Settings{
		Enabled:  enabled,
		TTL:      max(ttl, 0),
		Capacity: max(capacity, 1),
	})
	c.initialized.Store(true)
}

// Settings returns the current settings.
func (c *Cache) Settings() Settings {
	return *c.settings.Load()
}

// Initialized reports whether Configure has been called at least once.
func (c *Cache) Initialized() bool {
	return c.initialized.Load()
}

// RolesForUser returns the cached role set for user, if present and valid.
func (c *Cache) RolesForUser(user string) ([]string, bool) {
	s := c.settings.Load()
	if !s.Enabled {
		return c.miss(StoreUserRoles)
	}
	e, ok := c.userRoles.get(user)
	if !ok || !e.ValidAt(c.now()) {
		return c.miss(StoreUserRoles)
	}
	c.lookup(StoreUserRoles, true)
	return slices.Clone(e.Value), true
}

// SetRolesForUser caches roles for user.
func (c *Cache) SetRolesForUser(user string, roles []string) {
	s := c.settings.Load()
	if !s.Enabled {
		return
	}
	now := c.now()
	c.userRoles.put(user, NewEntry(slices.Clone(roles), s.TTL, now), s.Capacity, now)
}

// GlobalRoles returns the cached realm role catalog, if present and valid.
func (c *Cache) GlobalRoles() ([]string, bool) {
	if !c.settings.Load().Enabled {
		return c.miss(StoreGlobalRoles)
	}
	e, ok := c.globalRoles.get()
	if !ok || !e.ValidAt(c.now()) {
		return c.miss(StoreGlobalRoles)
	}
	c.lookup(StoreGlobalRoles, true)
	return slices.Clone(e.Value), true
}

// SetGlobalRoles caches the realm role catalog.
func (c *Cache) SetGlobalRoles(roles []string) {
	s := c.settings.Load()
	if !s.Enabled {
		return
	}
	c.globalRoles.set(NewEntry(slices.Clone(roles), s.TTL, c.now()))
}

// IsKnownInvalid reports whether user was recently confirmed not to exist.
func (c *Cache) IsKnownInvalid(user string) bool {
	if !c.settings.Load().Enabled {
		c.lookup(StoreInvalidUsers, false)
		return false
	}
	e, ok := c.invalidUsers.get(user)
	hit := ok && e.Value && e.ValidAt(c.now())
	c.lookup(StoreInvalidUsers, hit)
	return hit
}

// MarkInvalid records that user does not exist in the directory.
func (c *Cache) MarkInvalid(user string) {
	s := c.settings.Load()
	if !s.Enabled {
		return
	}
	now := c.now()
	c.invalidUsers.put(user, NewEntry(true, s.TTL, now), s.Capacity, now)
}

// ServiceToken returns the cached service-account access token, if valid.
func (c *Cache) ServiceToken() (string, bool) {
	if !c.settings.Load().Enabled {
		return c.missToken()
	}
	e, ok := c.serviceToken.get()
	if !ok || !e.ValidAt(c.now()) {
		return c.missToken()
	}
	c.lookup(StoreServiceToken, true)
	return e.Value, true
}

// SetServiceToken caches token for providerTTL less ServiceTokenBuffer.
// The cache TTL setting does not apply to the service token.
func (c *Cache) SetServiceToken(token string, providerTTL time.Duration) {
	if !c.settings.Load().Enabled {
		return
	}
	c.serviceToken.set(NewEntry(token, providerTTL-ServiceTokenBuffer, c.now()))
}

// CachedUsers lists the usernames with a stored role set, oldest first.
// Expired entries that have not been evicted yet are included.
func (c *Cache) CachedUsers() []string {
	return c.userRoles.keys()
}

// Stats is a point-in-time snapshot of the cache.
type Stats struct {
	Settings
	Initialized      bool   `json:"initialized"`
	UserRoles        int    `json:"user_roles"`
	InvalidUsers     int    `json:"invalid_users"`
	Evictions        uint64 `json:"evictions"`
	GlobalRoles      bool   `json:"global_roles_cached"`
	ServiceTokenHeld bool   `json:"service_token_cached"`
}

// Stats returns a snapshot of sizes and settings.
func (c *Cache) Stats() Stats {
	now := c.now()
	userRoles, userEvicted := c.userRoles.stats()
	invalid, invalidEvicted := c.invalidUsers.stats()
	global, hasGlobal := c.globalRoles.get()
	token, hasToken := c.serviceToken.get()

	return Stats{
		Settings:         c.Settings(),
		Initialized:      c.Initialized(),
		UserRoles:        userRoles,
		InvalidUsers:     invalid,
		Evictions:        userEvicted + invalidEvicted,
		GlobalRoles:      hasGlobal && global.ValidAt(now),
		ServiceTokenHeld: hasToken && token.ValidAt(now),
	}
}

func (c *Cache) miss(store Store) ([]string, bool) {
	c.lookup(store, false)
	return nil, false
}

func (c *Cache) missToken() (string, bool) {
	c.lookup(StoreServiceToken, false)
	return "", false
}

func (c *Cache) lookup(store Store, hit bool) {
	if c.onLookup != nil {
		c.onLookup(store, hit)
	}
}
