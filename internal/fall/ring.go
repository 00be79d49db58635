package fall

// Ring is a fixed-capacity ring buffer of magnitude samples. It backs the
// detector's stillness variance window: once full, each push overwrites the
// oldest sample.
type Ring struct {
	data []float64
	pos  int
	full bool
	cap  int
}

// NewRing creates a Ring with the given capacity.
func NewRing(capacity int) *Ring {
	return &Ring{
		data: make([]float64, capacity),
		cap:  capacity,
	}
}

// Push adds a value, overwriting the oldest once the buffer is full.
func (r *Ring) Push(v float64) {
	r.data[r.pos] = v
	r.pos++
	if r.pos >= r.cap {
		r.pos = 0
		r.full = true
	}
}

// Len returns the number of elements currently held.
func (r *Ring) Len() int {
	if r.full {
		return r.cap
	}
	return r.pos
}

// Reset empties the buffer.
func (r *Ring) Reset() {
	r.pos = 0
	r.full = false
}

// Variance returns the unbiased sample variance of the buffered values.
// Fewer than two samples yield 0.
func (r *Ring) Variance() float64 {
	n := r.Len()
	if n < 2 {
		return 0
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += r.data[i]
	}
	mean := sum / float64(n)

	var sq float64
	for i := 0; i < n; i++ {
		d := r.data[i] - mean
		sq += d * d
	}
	return sq / float64(n-1)
}

// Slice returns the buffer contents in insertion order.
func (r *Ring) Slice() []float64 {
	n := r.Len()
	out := make([]float64, n)
	if r.full {
		copy(out, r.data[r.pos:])
		copy(out[r.cap-r.pos:], r.data[:r.pos])
	} else {
		copy(out, r.data[:r.pos])
	}
	return out
}
