package core

import "sync/atomic"

const handoffFresh = 0x4

// MatrixHandoff passes completed matrices from the byte handler to the main
// loop through a triple buffer. The producer fills its back slot and swaps it
// with the shared middle slot; the consumer swaps the middle slot with its
// front slot. Neither side ever sees a slot the other is writing.
type MatrixHandoff struct {
	slots   [3]Matrix
	middle  atomic.Uint32 // slot index | handoffFresh when unread
	back    uint32        // producer only
	front   uint32        // consumer only
	dropped atomic.Uint32
}

// NewMatrixHandoff returns an empty handoff
func NewMatrixHandoff() *MatrixHandoff {
	h := &MatrixHandoff{back: 0, front: 2}
	h.middle.Store(1)
	return h
}

// Publish copies m into the handoff. If the previous matrix was never taken
// it is replaced and counted as dropped.
func (h *MatrixHandoff) Publish(m *Matrix) {
	h.slots[h.back] = *m
	old := h.middle.Swap(h.back | handoffFresh)
	h.back = old &^ handoffFresh
	if old&handoffFresh != 0 {
		h.dropped.Add(1)
	}
}

// Take returns the newest unread matrix. The returned pointer stays valid
// until the next call to Take.
func (h *MatrixHandoff) Take() (*Matrix, bool) {
	if h.middle.Load()&handoffFresh == 0 {
		return nil, false
	}
	old := h.middle.Swap(h.front)
	h.front = old &^ handoffFresh
	return &h.slots[h.front], true
}

// Pending reports whether an unread matrix is waiting
func (h *MatrixHandoff) Pending() bool {
	return h.middle.Load()&handoffFresh != 0
}

// Dropped returns how many matrices were overwritten before being taken
func (h *MatrixHandoff) Dropped() uint32 {
	return h.dropped.Load()
}
