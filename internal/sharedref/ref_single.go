//go:build js || wasip1

package sharedref

// Strategy names the backing selected for this build.
const Strategy = "cell"

// Ref is a shared handle to a value. Copies of a Ref (or Clone) refer to the
// same value.
type Ref[T any] struct {
	inner *Cell[T]
}

// New wraps v in a new Ref.
func New[T any](v T) Ref[T] {
	return Ref[T]{inner: NewCell(v)}
}
