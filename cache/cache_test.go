package cache

import (
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestEntry_ValidUntilExpiry(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ttl := 10 * time.Second
	e := NewEntry("v", ttl, t1)

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"at creation", t1, true},
		{"midway", t1.Add(5 * time.Second), true},
		{"just before expiry", t1.Add(ttl - time.Nanosecond), true},
		{"at expiry", t1.Add(ttl), false},
		{"after expiry", t1.Add(ttl + time.Second), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.ValidAt(tt.at); got != tt.want {
				t.Errorf("ValidAt = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCache_Defaults(t *testing.T) {
	c := New()
	s := c.Settings()
	if !s.Enabled {
		t.Error("expected cache enabled by default")
	}
	if s.TTL != DefaultTTL {
		t.Errorf("expected ttl %v, got %v", DefaultTTL, s.TTL)
	}
	if s.Capacity != DefaultCapacity {
		t.Errorf("expected capacity %d, got %d", DefaultCapacity, s.Capacity)
	}
	if c.Initialized() {
		t.Error("expected cache not initialized before Configure")
	}
}

func TestCache_RolesRoundTripAndExpiry(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	c.Configure(true, time.Minute, 10)

	c.SetRolesForUser("alice", []string{"admin", "dev"})
	roles, ok := c.RolesForUser("alice")
	if !ok {
		t.Fatal("expected hit")
	}
	if !slices.Equal(roles, []string{"admin", "dev"}) {
		t.Errorf("unexpected roles %v", roles)
	}

	clock.Advance(time.Minute)
	if _, ok := c.RolesForUser("alice"); ok {
		t.Error("expected miss once ttl has elapsed")
	}
}

func TestCache_EmptyRoleSetIsAHit(t *testing.T) {
	c := New()
	c.SetRolesForUser("nobody-special", []string{})
	roles, ok := c.RolesForUser("nobody-special")
	if !ok {
		t.Fatal("expected a valid empty entry to count as a hit")
	}
	if len(roles) != 0 {
		t.Errorf("expected no roles, got %v", roles)
	}
}

func TestCache_ReturnedSlicesAreCopies(t *testing.T) {
	c := New()
	in := []string{"a"}
	c.SetRolesForUser("u", in)
	in[0] = "mutated"

	out, _ := c.RolesForUser("u")
	out[0] = "also-mutated"

	again, _ := c.RolesForUser("u")
	if again[0] != "a" {
		t.Errorf("cache entry was mutated through a shared slice: %v", again)
	}
}

func TestCache_InsertionOrderEviction(t *testing.T) {
	c := New()
	c.Configure(true, 300*time.Second, 2)

	c.SetRolesForUser("alice", []string{"r"})
	c.SetRolesForUser("bob", []string{"r"})
	c.SetRolesForUser("carol", []string{"r"})

	if got := c.CachedUsers(); !slices.Equal(got, []string{"bob", "carol"}) {
		t.Errorf("expected [bob carol], got %v", got)
	}
	if _, ok := c.RolesForUser("alice"); ok {
		t.Error("expected alice to be evicted")
	}
}

func TestCache_ReadsDoNotAffectEvictionOrder(t *testing.T) {
	c := New()
	c.Configure(true, time.Hour, 2)

	c.SetRolesForUser("alice", nil)
	c.SetRolesForUser("bob", nil)
	c.RolesForUser("alice")
	c.SetRolesForUser("carol", nil)

	if got := c.CachedUsers(); !slices.Equal(got, []string{"bob", "carol"}) {
		t.Errorf("expected reads not to refresh alice, got %v", got)
	}
}

func TestCache_ReinsertRefreshesPosition(t *testing.T) {
	c := New()
	c.Configure(true, time.Hour, 2)

	c.SetRolesForUser("alice", nil)
	c.SetRolesForUser("bob", nil)
	c.SetRolesForUser("alice", []string{"new"})
	c.SetRolesForUser("carol", nil)

	if got := c.CachedUsers(); !slices.Equal(got, []string{"alice", "carol"}) {
		t.Errorf("expected [alice carol], got %v", got)
	}
}

func TestCache_CapacityPlusOneEvictsEarliest(t *testing.T) {
	const capacity = 5
	c := New()
	c.Configure(true, time.Hour, capacity)

	for i := 0; i <= capacity; i++ {
		c.SetRolesForUser(fmt.Sprintf("user-%d", i), nil)
	}

	users := c.CachedUsers()
	if len(users) != capacity {
		t.Fatalf("expected %d entries, got %d", capacity, len(users))
	}
	if users[0] != "user-1" {
		t.Errorf("expected user-0 to be evicted first, oldest remaining is %s", users[0])
	}
	if c.Stats().Evictions != 1 {
		t.Errorf("expected 1 eviction, got %d", c.Stats().Evictions)
	}
}

func TestCache_ShrinkingCapacityTrimsOnNextInsert(t *testing.T) {
	c := New()
	c.Configure(true, time.Hour, 4)
	for _, u := range []string{"a", "b", "c", "d"} {
		c.SetRolesForUser(u, nil)
	}

	c.Configure(true, time.Hour, 2)
	if n := len(c.CachedUsers()); n != 4 {
		t.Fatalf("expected shrinking alone to keep entries, got %d", n)
	}

	c.SetRolesForUser("e", nil)
	if got := c.CachedUsers(); !slices.Equal(got, []string{"d", "e"}) {
		t.Errorf("expected [d e], got %v", got)
	}
}

func TestCache_ExpiredHeadDroppedOnInsert(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	c.Configure(true, 10*time.Second, 100)

	c.SetRolesForUser("old", nil)
	clock.Advance(11 * time.Second)
	c.SetRolesForUser("new", nil)

	if got := c.CachedUsers(); !slices.Equal(got, []string{"new"}) {
		t.Errorf("expected expired head to be dropped, got %v", got)
	}
}

func TestCache_TTLChangeAffectsLaterInsertsOnly(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	c.Configure(true, 10*time.Second, 10)
	c.SetRolesForUser("early", nil)

	c.Configure(true, time.Hour, 10)
	c.SetRolesForUser("late", nil)

	clock.Advance(30 * time.Second)
	if _, ok := c.RolesForUser("early"); ok {
		t.Error("expected early entry to keep its original 10s ttl")
	}
	if _, ok := c.RolesForUser("late"); !ok {
		t.Error("expected late entry to use the new ttl")
	}
}

func TestCache_DisableAndReenable(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	c.Configure(true, time.Minute, 10)

	c.SetRolesForUser("alice", []string{"dev"})
	c.SetGlobalRoles([]string{"dev", "ops"})
	c.MarkInvalid("ghost")
	c.SetServiceToken("svc", time.Hour)

	c.Configure(false, time.Minute, 10)
	if _, ok := c.RolesForUser("alice"); ok {
		t.Error("expected miss while disabled")
	}
	if _, ok := c.GlobalRoles(); ok {
		t.Error("expected global miss while disabled")
	}
	if c.IsKnownInvalid("ghost") {
		t.Error("expected negative cache miss while disabled")
	}
	if _, ok := c.ServiceToken(); ok {
		t.Error("expected token miss while disabled")
	}

	c.SetRolesForUser("bob", []string{"dev"})

	c.Configure(true, time.Minute, 10)
	if _, ok := c.RolesForUser("alice"); !ok {
		t.Error("expected alice to be visible again after re-enable")
	}
	if _, ok := c.RolesForUser("bob"); ok {
		t.Error("expected write made while disabled to have been dropped")
	}
	if !c.IsKnownInvalid("ghost") {
		t.Error("expected ghost to be visible again after re-enable")
	}

	clock.Advance(time.Minute)
	if _, ok := c.RolesForUser("alice"); ok {
		t.Error("expected re-enabled entry to still honour its own ttl")
	}
}

func TestCache_GlobalRolesSlot(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	c.Configure(true, time.Minute, 1)

	if _, ok := c.GlobalRoles(); ok {
		t.Error("expected empty slot to miss")
	}
	c.SetGlobalRoles([]string{"a"})
	c.SetGlobalRoles([]string{"b", "c"})
	roles, ok := c.GlobalRoles()
	if !ok || !slices.Equal(roles, []string{"b", "c"}) {
		t.Errorf("expected latest catalog [b c], got %v (%v)", roles, ok)
	}

	clock.Advance(time.Minute)
	if _, ok := c.GlobalRoles(); ok {
		t.Error("expected catalog to expire")
	}
}

func TestCache_NegativeCache(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	c.Configure(true, time.Minute, 10)

	if c.IsKnownInvalid("ghost") {
		t.Error("expected unknown user not to be marked")
	}
	c.MarkInvalid("ghost")
	if !c.IsKnownInvalid("ghost") {
		t.Error("expected ghost to be known invalid")
	}
	clock.Advance(time.Minute)
	if c.IsKnownInvalid("ghost") {
		t.Error("expected negative entry to expire")
	}
}

func TestCache_ServiceTokenBuffer(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))

	c.SetServiceToken("svc-token", 60000*time.Millisecond)

	clock.Advance(59400 * time.Millisecond)
	if tok, ok := c.ServiceToken(); !ok || tok != "svc-token" {
		t.Errorf("expected token before buffer, got %q (%v)", tok, ok)
	}

	clock.Advance(200 * time.Millisecond) // t+59600ms
	if _, ok := c.ServiceToken(); ok {
		t.Error("expected token to be gone once the safety buffer is consumed")
	}
}

func TestCache_ServiceTokenIgnoresCacheTTL(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	c.Configure(true, time.Second, 10)

	c.SetServiceToken("svc", 5*time.Minute)
	clock.Advance(time.Minute)
	if _, ok := c.ServiceToken(); !ok {
		t.Error("expected the provider lifetime, not the cache ttl, to govern the token")
	}
}

func TestCache_ConfigureClamps(t *testing.T) {
	c := New()
	c.Configure(true, -time.Second, 0)
	s := c.Settings()
	if s.TTL != 0 || s.Capacity != 1 {
		t.Errorf("expected ttl 0 and capacity 1, got %v and %d", s.TTL, s.Capacity)
	}
	if !c.Initialized() {
		t.Error("expected Configure to mark the cache initialized")
	}
}

func TestCache_LookupHook(t *testing.T) {
	type call struct {
		store Store
		hit   bool
	}
	var calls []call
	c := New(WithLookupHook(func(s Store, hit bool) { calls = append(calls, call{s, hit}) }))

	c.RolesForUser("x")
	c.SetRolesForUser("x", nil)
	c.RolesForUser("x")
	c.ServiceToken()

	want := []call{
		{StoreUserRoles, false},
		{StoreUserRoles, true},
		{StoreServiceToken, false},
	}
	if !slices.Equal(calls, want) {
		t.Errorf("expected %v, got %v", want, calls)
	}
}

func TestCache_Stats(t *testing.T) {
	c := New()
	c.Configure(true, time.Minute, 10)
	c.SetRolesForUser("a", nil)
	c.MarkInvalid("b")
	c.SetGlobalRoles([]string{"x"})

	s := c.Stats()
	if s.UserRoles != 1 || s.InvalidUsers != 1 {
		t.Errorf("unexpected sizes: %+v", s)
	}
	if !s.GlobalRoles || s.ServiceTokenHeld {
		t.Errorf("unexpected slot flags: %+v", s)
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New()
	c.Configure(true, time.Minute, 50)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				user := fmt.Sprintf("u-%d-%d", i, j)
				c.SetRolesForUser(user, []string{"r"})
				c.RolesForUser(user)
				c.MarkInvalid(user)
				c.IsKnownInvalid(user)
				if j%10 == 0 {
					c.Configure(true, time.Minute, 50)
				}
			}
		}(i)
	}
	wg.Wait()

	if n := len(c.CachedUsers()); n > 50 {
		t.Errorf("expected at most 50 entries, got %d", n)
	}
}
