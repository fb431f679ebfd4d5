package canbus

// traceRing is a fixed-capacity FIFO of frames. Appending to a full ring
// evicts the oldest entry in O(1); Snapshot returns entries in arrival
// order.
type traceRing struct {
	buf  []Frame
	head int
	size int
}

func newTraceRing(capacity int) *traceRing {
	return &traceRing{buf: make([]Frame, capacity)}
}

func (r *traceRing) Append(f Frame) {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = f
		r.size++
		return
	}
	// Full: overwrite the oldest slot and advance.
	r.buf[r.head] = f
	r.head = (r.head + 1) % len(r.buf)
}

func (r *traceRing) Len() int { return r.size }

func (r *traceRing) Clear() {
	// Release payload references so cleared frames can be collected.
	for i := range r.buf {
		r.buf[i] = Frame{}
	}
	r.head = 0
	r.size = 0
}

// Snapshot copies the ring contents, oldest first.
func (r *traceRing) Snapshot() []Frame {
	out := make([]Frame, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}
