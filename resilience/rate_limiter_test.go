package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Name: "test", Rate: 10.0, Burst: 5})

	for i := 0; i < 5; i++ {
		if !rl.Allow() {
			t.Errorf("request %d should be allowed", i)
		}
	}
}

func TestRateLimiter_RejectsOverBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Name: "test", Rate: 1.0, Burst: 3})

	for i := 0; i < 3; i++ {
		rl.Allow()
	}
	if rl.Allow() {
		t.Error("request should be rejected over burst limit")
	}
}

func TestRateLimiter_WaitRespectsContext(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Name: "test", Rate: 0.1, Burst: 1})
	rl.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := rl.Wait(ctx); err == nil {
		t.Error("expected Wait to fail when the next token is beyond the deadline")
	}
}

func TestRateLimiter_Execute(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Name: "test", Rate: 1.0, Burst: 1})

	calls := 0
	if err := rl.Execute(func() error { calls++; return nil }); err != nil {
		t.Fatalf("expected first call to pass, got %v", err)
	}
	err := rl.Execute(func() error { calls++; return nil })
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRateLimiter_OnLimitCallback(t *testing.T) {
	var limited string
	rl := NewRateLimiter(RateLimiterConfig{
		Name:    "login",
		Rate:    1.0,
		Burst:   1,
		OnLimit: func(name string) { limited = name },
	})

	rl.Allow()
	rl.Allow()
	if limited != "login" {
		t.Errorf("expected OnLimit for 'login', got %q", limited)
	}
}

func TestRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Name: "test"})
	if rl.Rate() != 10.0 {
		t.Errorf("expected default rate 10, got %v", rl.Rate())
	}
	if rl.Burst() != 10 {
		t.Errorf("expected default burst 10, got %d", rl.Burst())
	}

	small := NewRateLimiter(RateLimiterConfig{Rate: 0.5})
	if small.Burst() != 1 {
		t.Errorf("expected burst floor of 1, got %d", small.Burst())
	}
}
