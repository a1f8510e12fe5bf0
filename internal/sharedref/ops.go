package sharedref

// Clone returns another handle to the same value.
func (r Ref[T]) Clone() Ref[T] {
	return Ref[T]{inner: r.inner}
}

// Same reports whether r and other share a value.
func (r Ref[T]) Same(other Ref[T]) bool {
	return r.inner == other.inner
}

// Borrow acquires a shared borrow.
func (r Ref[T]) Borrow() *Guard[T] {
	return r.inner.Borrow()
}

// BorrowMut acquires an exclusive borrow.
func (r Ref[T]) BorrowMut() *GuardMut[T] {
	return r.inner.BorrowMut()
}

// TryBorrowMut acquires an exclusive borrow if one is available right now.
func (r Ref[T]) TryBorrowMut() (*GuardMut[T], bool) {
	return r.inner.TryBorrowMut()
}

// Read runs fn with a shared borrow held and returns its error.
func (r Ref[T]) Read(fn func(v T) error) error {
	g := r.Borrow()
	defer g.Release()
	return fn(g.Value())
}

// Update runs fn with an exclusive borrow held and returns its error.
func (r Ref[T]) Update(fn func(v *T) error) error {
	g := r.BorrowMut()
	defer g.Release()
	return fn(g.Value())
}
