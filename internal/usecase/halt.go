package usecase

import (
	"fmt"
	"sync"
	"time"

	"MicroTrader/internal/domain/models"
)

// HaltSnapshot is a point-in-time view of the halt flag.
type HaltSnapshot struct {
	Halted bool
	Code   models.SkipReason
	Reason string
	Until  time.Time
}

// Status converts the snapshot for the ops API.
func (s HaltSnapshot) Status() models.HaltStatus {
	st := models.HaltStatus{Halted: s.Halted}
	if s.Halted {
		st.Code = string(s.Code)
		st.Reason = s.Reason
		st.HaltedUntil = s.Until.UTC().Format(time.RFC3339)
	}
	return st
}

// HaltState blocks new entries after a broker failure until a cooldown
// elapses. One instance is shared by every component that submits orders.
type HaltState struct {
	mu       sync.Mutex
	cooldown time.Duration
	now      func() time.Time

	halted bool
	code   models.SkipReason
	reason string
	until  time.Time
}

// NewHaltState creates an idle halt state. A nil clock uses time.Now.
func NewHaltState(cooldown time.Duration, now func() time.Time) *HaltState {
	if now == nil {
		now = time.Now
	}
	return &HaltState{cooldown: cooldown, now: now}
}

// Trip halts entries for the cooldown and returns the reason string
// "<code>: <err>". A later trip extends the halt and replaces the reason.
func (h *HaltState) Trip(code models.SkipReason, err error) string {
	reason := string(code)
	if err != nil {
		reason = fmt.Sprintf("%s: %v", code, err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.halted = true
	h.code = code
	h.reason = reason
	h.until = h.now().Add(h.cooldown)
	return reason
}

// Check returns the current state, clearing it first when the cooldown has
// passed. cleared is true only on the call that performed the clear.
func (h *HaltState) Check() (snap HaltSnapshot, cleared bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.halted && !h.now().Before(h.until) {
		h.reset()
		cleared = true
	}
	return h.snapshot(), cleared
}

// Snapshot is Check without the transition flag.
func (h *HaltState) Snapshot() HaltSnapshot {
	s, _ := h.Check()
	return s
}

// Clear lifts the halt immediately. It reports whether a halt was active.
func (h *HaltState) Clear() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	was := h.halted
	h.reset()
	return was
}

func (h *HaltState) reset() {
	h.halted = false
	h.code = models.SkipNone
	h.reason = ""
	h.until = time.Time{}
}

func (h *HaltState) snapshot() HaltSnapshot {
	return HaltSnapshot{Halted: h.halted, Code: h.code, Reason: h.reason, Until: h.until}
}
