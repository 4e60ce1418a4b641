// Package history keeps the most recent probe outcomes in memory.
package history

import (
	"sync"

	"github.com/hazz-dev/sitewatch/internal/probe"
)

// DefaultCapacity is the ring size used when none is configured.
const DefaultCapacity = 30

// Hook observes every appended outcome. Hooks run after the store lock is
// released, on the appending goroutine.
type Hook func(probe.Outcome)

// Snapshot is a consistent copy of the store.
type Snapshot struct {
	Current  *probe.Outcome  // nil until the first append
	Outcomes []probe.Outcome // oldest first
	Capacity int
}

// Store holds a bounded ring of outcomes plus the current one. Append has a
// single writer; readers may call Snapshot and Recent concurrently.
type Store struct {
	mu      sync.RWMutex
	ring    *ring
	current *probe.Outcome
	hooks   []Hook
}

// New creates a Store. A capacity below 1 falls back to DefaultCapacity.
func New(capacity int) *Store {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Store{ring: newRing(capacity)}
}

// OnAppend registers a hook. Register hooks before the first Append.
func (s *Store) OnAppend(h Hook) {
	s.mu.Lock()
	s.hooks = append(s.hooks, h)
	s.mu.Unlock()
}

// Append records o as the newest entry and the current status in one step.
func (s *Store) Append(o probe.Outcome) {
	s.mu.Lock()
	s.ring.push(o)
	cur := o
	s.current = &cur
	hooks := s.hooks
	s.mu.Unlock()

	for _, h := range hooks {
		h(o)
	}
}

// Snapshot returns the current outcome and a copy of the ring.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Outcomes: s.ring.oldestFirst(),
		Capacity: len(s.ring.buf),
	}
	if s.current != nil {
		cur := *s.current
		snap.Current = &cur
	}
	return snap
}

// Current returns the most recent outcome, if any.
func (s *Store) Current() (probe.Outcome, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return probe.Outcome{}, false
	}
	return *s.current, true
}

// Recent returns up to limit outcomes, newest first.
func (s *Store) Recent(limit int) []probe.Outcome {
	if limit < 0 {
		limit = 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ring.newestFirst(limit)
}

// Len reports how many outcomes are retained.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ring.n
}

// Capacity reports the ring size.
func (s *Store) Capacity() int {
	return len(s.ring.buf)
}
