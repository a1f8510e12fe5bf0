package sharedref

import "sync"

// Locked is the concurrency-safe backing. Shared borrows take the read lock,
// exclusive borrows take the write lock.
type Locked[T any] struct {
	mu    sync.RWMutex
	value T
}

// NewLocked creates a Locked holding v.
func NewLocked[T any](v T) *Locked[T] {
	return &Locked[T]{value: v}
}

// Borrow blocks until no exclusive borrow is held.
func (l *Locked[T]) Borrow() *Guard[T] {
	l.mu.RLock()
	return &Guard[T]{value: &l.value, release: l.mu.RUnlock}
}

// BorrowMut blocks until no other borrow is held.
func (l *Locked[T]) BorrowMut() *GuardMut[T] {
	l.mu.Lock()
	return &GuardMut[T]{value: &l.value, release: l.mu.Unlock}
}

// TryBorrow returns false instead of blocking.
func (l *Locked[T]) TryBorrow() (*Guard[T], bool) {
	if !l.mu.TryRLock() {
		return nil, false
	}
	return &Guard[T]{value: &l.value, release: l.mu.RUnlock}, true
}

// TryBorrowMut returns false instead of blocking.
func (l *Locked[T]) TryBorrowMut() (*GuardMut[T], bool) {
	if !l.mu.TryLock() {
		return nil, false
	}
	return &GuardMut[T]{value: &l.value, release: l.mu.Unlock}, true
}
