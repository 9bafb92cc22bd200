package safety

import (
	"sync"
	"time"
)

// HaltState is the process-wide kill flag. Once set it stays set until an
// operator clears it; the engine never resumes on its own.
type HaltState struct {
	mu       sync.Mutex
	halted   bool
	reason   string
	haltedAt time.Time
}

func NewHaltState() *HaltState {
	return &HaltState{}
}

// Halt latches the flag. The first reason wins; later triggers are no-ops
// so the journaled cause stays the one that actually fired.
func (h *HaltState) Halt(reason string, at time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.halted {
		return false
	}
	h.halted = true
	h.reason = reason
	h.haltedAt = at
	return true
}

func (h *HaltState) Halted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.halted
}

func (h *HaltState) Reason() (string, time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reason, h.haltedAt
}

// Clear is the operator action; nothing inside the engine calls it.
func (h *HaltState) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.halted = false
	h.reason = ""
	h.haltedAt = time.Time{}
}
