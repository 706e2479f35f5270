package forecast

// Window is a fixed-length FIFO of normalized values backed by a ring buffer.
type Window struct {
	buf  []float64
	head int // index of the oldest value
}

// NewWindow keeps the trailing size values. It fails when fewer are given.
func NewWindow(values []float64, size int) (*Window, error) {
	if size <= 0 {
		return nil, &InsufficientHistoryError{Have: len(values), Need: size}
	}
	if len(values) < size {
		return nil, &InsufficientHistoryError{Have: len(values), Need: size}
	}
	buf := make([]float64, size)
	copy(buf, values[len(values)-size:])
	return &Window{buf: buf}, nil
}

// Push evicts the oldest value and appends v as the newest.
func (w *Window) Push(v float64) {
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
}

// Snapshot returns a copy laid out oldest to newest.
func (w *Window) Snapshot() []float64 {
	out := make([]float64, len(w.buf))
	n := copy(out, w.buf[w.head:])
	copy(out[n:], w.buf[:w.head])
	return out
}

// Newest returns the most recently pushed value.
func (w *Window) Newest() float64 {
	return w.buf[(w.head+len(w.buf)-1)%len(w.buf)]
}

// Len is always the configured size.
func (w *Window) Len() int { return len(w.buf) }
