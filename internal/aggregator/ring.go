package aggregator

// ring is a fixed-capacity FIFO that overwrites its oldest element when full.
type ring[T any] struct {
	buf   []T
	start int
	n     int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	if len(r.buf) == 0 {
		return
	}
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = v
		r.n++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring[T]) len() int { return r.n }

// tail copies the newest k elements, oldest first.
func (r *ring[T]) tail(k int) []T {
	if k > r.n {
		k = r.n
	}
	if k < 0 {
		k = 0
	}
	out := make([]T, k)
	first := r.n - k
	for i := 0; i < k; i++ {
		out[i] = r.buf[(r.start+first+i)%len(r.buf)]
	}
	return out
}
