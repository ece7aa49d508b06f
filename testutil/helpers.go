package testutil

import (
	"context"
	"testing"

	"github.com/kbukum/realmauth/component"
)

// Fixture is a component whose recorded state can be cleared between
// subtests without restarting it.
type Fixture interface {
	component.Component
	Reset(ctx context.Context) error
}

// THelper provides testing.T integration for test components.
type THelper struct {
	t   testing.TB
	ctx context.Context
}

// T wraps a testing.TB so components are stopped when the test ends.
//
//	realm := testutil.NewRealm("acme")
//	testutil.T(t).Setup(realm)
func T(t testing.TB) *THelper {
	return &THelper{t: t, ctx: context.Background()}
}

// WithContext sets a custom context for the helper.
func (h *THelper) WithContext(ctx context.Context) *THelper {
	h.ctx = ctx
	return h
}

// Setup starts a component and registers cleanup with testing.T.
func (h *THelper) Setup(c Fixture) {
	h.t.Helper()
	if err := c.Start(h.ctx); err != nil {
		h.t.Fatalf("failed to start component %s: %v", c.Name(), err)
	}

	h.t.Cleanup(func() {
		if err := c.Stop(h.ctx); err != nil {
			h.t.Errorf("failed to stop component %s: %v", c.Name(), err)
		}
	})
}

// Reset resets a component to its initial state.
func (h *THelper) Reset(c Fixture) {
	h.t.Helper()
	if err := c.Reset(h.ctx); err != nil {
		h.t.Fatalf("failed to reset component %s: %v", c.Name(), err)
	}
}
