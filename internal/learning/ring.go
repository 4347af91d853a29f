package learning

// Ring is a fixed-capacity FIFO buffer. Pushing past capacity evicts the
// oldest element. The zero value is not usable; create one with NewRing.
type Ring[T any] struct {
	buf      []T
	start    int
	capacity int
}

// NewRing creates a ring holding at most capacity elements (minimum 1)
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		buf:      make([]T, 0, min(capacity, 1024)),
		capacity: capacity,
	}
}

// Push appends v, evicting the oldest element when full
func (r *Ring[T]) Push(v T) {
	if len(r.buf) < r.capacity {
		r.buf = append(r.buf, v)
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % r.capacity
}

// Len returns the number of stored elements
func (r *Ring[T]) Len() int {
	return len(r.buf)
}

// Cap returns the capacity
func (r *Ring[T]) Cap() int {
	return r.capacity
}

// Snapshot returns a copy of all elements, oldest first
func (r *Ring[T]) Snapshot() []T {
	out := make([]T, 0, len(r.buf))
	out = append(out, r.buf[r.start:]...)
	return append(out, r.buf[:r.start]...)
}

// Last returns a copy of the newest n elements, oldest first
func (r *Ring[T]) Last(n int) []T {
	if n > len(r.buf) {
		n = len(r.buf)
	}
	if n <= 0 {
		return []T{}
	}

	out := make([]T, n)
	first := r.start + len(r.buf) - n
	for i := range out {
		out[i] = r.buf[(first+i)%len(r.buf)]
	}
	return out
}

// Clone returns an independent copy of the ring
func (r *Ring[T]) Clone() *Ring[T] {
	buf := make([]T, len(r.buf), max(cap(r.buf), len(r.buf)))
	copy(buf, r.buf)
	return &Ring[T]{buf: buf, start: r.start, capacity: r.capacity}
}

// Reset removes all elements
func (r *Ring[T]) Reset() {
	r.buf = r.buf[:0]
	r.start = 0
}
