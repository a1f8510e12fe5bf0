// Package sharedref provides a shared mutable container with a uniform
// borrow API.
//
// The backing strategy is chosen at build time. Native builds back a Ref with
// Locked, a reader/writer mutex, so handles may be used from any goroutine.
// Single-threaded targets (js, wasip1) back it with Cell, a borrow counter
// that panics on conflicting borrows instead of locking.
//
// A borrow is held through a guard. The value is only reachable through the
// guard until Release is called:
//
//	g := ref.BorrowMut()
//	defer g.Release()
//	g.Value().count++
package sharedref

import (
	"errors"
	"fmt"
)

// ErrBorrowConflict is the panic value (wrapped) raised by Cell when a borrow
// would violate exclusivity.
var ErrBorrowConflict = errors.New("sharedref: borrow conflict")

const releasedGuard = "sharedref: use of released guard"

// Guard is a shared, read-only borrow.
type Guard[T any] struct {
	value   *T
	release func()
}

// Value returns a copy of the borrowed value.
func (g *Guard[T]) Value() T {
	if g.release == nil {
		panic(releasedGuard)
	}
	return *g.value
}

// Release ends the borrow. Calling it more than once is a no-op.
func (g *Guard[T]) Release() {
	if g.release == nil {
		return
	}
	release := g.release
	g.release = nil
	g.value = nil
	release()
}

// GuardMut is an exclusive borrow.
type GuardMut[T any] struct {
	value   *T
	release func()
}

// Value returns a pointer to the borrowed value. The pointer must not be
// retained after Release.
func (g *GuardMut[T]) Value() *T {
	if g.release == nil {
		panic(releasedGuard)
	}
	return g.value
}

// Set replaces the borrowed value.
func (g *GuardMut[T]) Set(v T) {
	*g.Value() = v
}

// Release ends the borrow. Calling it more than once is a no-op.
func (g *GuardMut[T]) Release() {
	if g.release == nil {
		return
	}
	release := g.release
	g.release = nil
	g.value = nil
	release()
}

func conflict(reason string) error {
	return fmt.Errorf("%w: %s", ErrBorrowConflict, reason)
}
