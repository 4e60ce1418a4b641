package history

import "github.com/hazz-dev/sitewatch/internal/probe"

// ring is a fixed-capacity FIFO of outcomes. It is not safe for concurrent
// use; Store guards it.
type ring struct {
	buf  []probe.Outcome
	head int // index of the oldest entry
	n    int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]probe.Outcome, capacity)}
}

// push appends at the tail, evicting the oldest entry when full.
func (r *ring) push(o probe.Outcome) {
	tail := (r.head + r.n) % len(r.buf)
	r.buf[tail] = o
	if r.n < len(r.buf) {
		r.n++
		return
	}
	r.head = (r.head + 1) % len(r.buf)
}

// at returns the i-th entry counted from the oldest.
func (r *ring) at(i int) probe.Outcome {
	return r.buf[(r.head+i)%len(r.buf)]
}

func (r *ring) oldestFirst() []probe.Outcome {
	out := make([]probe.Outcome, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.at(i)
	}
	return out
}

func (r *ring) newestFirst(limit int) []probe.Outcome {
	if limit > r.n {
		limit = r.n
	}
	out := make([]probe.Outcome, limit)
	for i := 0; i < limit; i++ {
		out[i] = r.at(r.n - 1 - i)
	}
	return out
}
