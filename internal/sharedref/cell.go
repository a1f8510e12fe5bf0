package sharedref

// Cell is the single-threaded backing. It tracks borrows with a plain
// counter and panics on a conflicting borrow. It must not be shared between
// goroutines that run in parallel.
type Cell[T any] struct {
	// borrows is -1 while mutably borrowed, otherwise the number of
	// live shared borrows.
	borrows int
	value   T
}

// NewCell creates a Cell holding v.
func NewCell[T any](v T) *Cell[T] {
	return &Cell[T]{value: v}
}

// Borrow panics if the cell is mutably borrowed.
func (c *Cell[T]) Borrow() *Guard[T] {
	g, ok := c.TryBorrow()
	if !ok {
		panic(conflict("already mutably borrowed"))
	}
	return g
}

// BorrowMut panics if the cell is borrowed at all.
func (c *Cell[T]) BorrowMut() *GuardMut[T] {
	g, ok := c.TryBorrowMut()
	if !ok {
		panic(conflict("already borrowed"))
	}
	return g
}

// TryBorrow returns false if the cell is mutably borrowed.
func (c *Cell[T]) TryBorrow() (*Guard[T], bool) {
	if c.borrows < 0 {
		return nil, false
	}
	c.borrows++
	return &Guard[T]{value: &c.value, release: func() { c.borrows-- }}, true
}

// TryBorrowMut returns false if the cell is borrowed at all.
func (c *Cell[T]) TryBorrowMut() (*GuardMut[T], bool) {
	if c.borrows != 0 {
		return nil, false
	}
	c.borrows = -1
	return &GuardMut[T]{value: &c.value, release: func() { c.borrows = 0 }}, true
}
