package cache

import (
	"container/list"
	"sync"
	"time"
)

type boundedItem[T any] struct {
	key   string
	entry Entry[T]
}

// boundedMap keeps at most capacity entries and evicts in insertion order.
// Reads never reorder; re-inserting a key moves it to the newest position.
type boundedMap[T any] struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List // front = oldest insertion
	evicted uint64
}

func newBoundedMap[T any]() *boundedMap[T] {
	return &boundedMap[T]{
		items: make(map[string]*list.Element),
		order: list.New(),
	}
}

func (m *boundedMap[T]) get(key string) (Entry[T], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return Entry[T]{}, false
	}
	return el.Value.(*boundedItem[T]).entry, true
}

func (m *boundedMap[T]) put(key string, entry Entry[T], capacity int, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[key]; ok {
		m.order.Remove(el)
	}
	m.items[key] = m.order.PushBack(&boundedItem[T]{key: key, entry: entry})

	for m.order.Len() > capacity {
		m.removeFront()
	}
	// Expired entries at the head will never be read again.
	for front := m.order.Front(); front != nil; front = m.order.Front() {
		if front.Value.(*boundedItem[T]).entry.ValidAt(now) {
			break
		}
		m.removeFront()
	}
}

func (m *boundedMap[T]) removeFront() {
	front := m.order.Front()
	if front == nil {
		return
	}
	m.order.Remove(front)
	delete(m.items, front.Value.(*boundedItem[T]).key)
	m.evicted++
}

func (m *boundedMap[T]) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, m.order.Len())
	for el := m.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*boundedItem[T]).key)
	}
	return keys
}

func (m *boundedMap[T]) stats() (size int, evicted uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len(), m.evicted
}

// slot is a single unkeyed entry with its own lock.
type slot[T any] struct {
	mu    sync.Mutex
	entry *Entry[T]
}

func (s *slot[T]) get() (Entry[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry == nil {
		return Entry[T]{}, false
	}
	return *s.entry, true
}

func (s *slot[T]) set(e Entry[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry = &e
}
