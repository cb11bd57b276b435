package cache

import "sync/atomic"

// Snapshot is a lock-free, read-optimized container
// holding any immutable value.
type Snapshot[T any] struct{ v atomic.Pointer[T] }

// Load returns the stored value. ok is false when nothing was stored yet.
func (s *Snapshot[T]) Load() (v T, ok bool) {
	p := s.v.Load()
	if p == nil {
		return v, false
	}
	return *p, true
}

// Store atomically swaps in the new value.
func (s *Snapshot[T]) Store(v T) {
	s.v.Store(&v)
}
