package cache

import "time"

// Entry is a cached value with an absolute expiry.
type Entry[T any] struct {
	Value   T
	Expires time.Time
}

// NewEntry creates an entry that stays valid for ttl from now.
func NewEntry[T any](value T, ttl time.Duration, now time.Time) Entry[T] {
	return Entry[T]{Value: value, Expires: now.Add(ttl)}
}

// ValidAt reports whether the entry is still valid at t. An entry is
// invalid from its expiry instant onwards.
func (e Entry[T]) ValidAt(t time.Time) bool {
	return t.Before(e.Expires)
}
