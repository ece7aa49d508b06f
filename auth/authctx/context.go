// Package authctx carries authentication state through a request context.
//
// Values are keyed by their type, so a session and the identity resolved
// from it can travel side by side:
//
//	ctx = authctx.Set(ctx, sess)
//	sess, ok := authctx.Get[*session.Session](ctx)
package authctx

import (
	"context"
	"errors"
)

// key is unique per stored type.
type key[T any] struct{}

// Set stores v in ctx under its type.
func Set[T any](ctx context.Context, v T) context.Context {
	return context.WithValue(ctx, key[T]{}, v)
}

// Get retrieves the value of type T from ctx.
func Get[T any](ctx context.Context) (T, bool) {
	v, ok := ctx.Value(key[T]{}).(T)
	return v, ok
}

// MustGet retrieves the value of type T from ctx and panics when it is
// missing. Use behind middleware that guarantees the value is set.
func MustGet[T any](ctx context.Context) T {
	v, ok := Get[T](ctx)
	if !ok {
		panic("authctx: value not found in context")
	}
	return v
}

// ErrMissing is returned when no value of the requested type is present.
var ErrMissing = errors.New("authctx: no value in context")

// GetOrError retrieves the value of type T, or ErrMissing.
func GetOrError[T any](ctx context.Context) (T, error) {
	v, ok := Get[T](ctx)
	if !ok {
		var zero T
		return zero, ErrMissing
	}
	return v, nil
}
