package matrix

import "sync/atomic"

// Handoff is a single-producer/single-consumer ring of frames. The producer
// (typically interrupt-driven sensor code) calls Publish and the scan loop
// samples the newest published frame. No locks are taken on either side.
type Handoff struct {
	slots []*Frame
	head  atomic.Uint64 // next slot the producer writes
	tail  atomic.Uint64 // first slot the consumer has not consumed
}

// NewHandoff returns a ring with capacity frames for the grid. Capacity must
// be at least 2.
func NewHandoff(g Grid, capacity int) *Handoff {
	if capacity < 2 {
		capacity = 2
	}
	h := &Handoff{slots: make([]*Frame, capacity)}
	for i := range h.slots {
		h.slots[i] = NewFrame(g)
	}
	return h
}

// Publish copies src into the ring. It returns false and drops the frame when
// the consumer has fallen a full ring behind.
func (h *Handoff) Publish(src *Frame) bool {
	head := h.head.Load()
	tail := h.tail.Load()
	if head-tail == uint64(len(h.slots)) {
		return false
	}
	h.slots[head%uint64(len(h.slots))].CopyFrom(src)
	h.head.Store(head + 1)
	return true
}

// Sample implements Sampler. It consumes every pending frame and copies the
// newest into f, or returns ErrNoData when nothing was published since the
// previous call.
func (h *Handoff) Sample(f *Frame) error {
	head := h.head.Load()
	tail := h.tail.Load()
	if head == tail {
		return ErrNoData
	}
	f.CopyFrom(h.slots[(head-1)%uint64(len(h.slots))])
	h.tail.Store(head)
	return nil
}

// Pending returns the number of published frames not yet consumed.
func (h *Handoff) Pending() int {
	return int(h.head.Load() - h.tail.Load())
}
