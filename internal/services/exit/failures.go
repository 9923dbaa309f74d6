package exit

import (
	"sync"
	"time"
)

type failureEntry struct {
	count int
	first time.Time
}

// FailureTracker counts consecutive market-data failures per symbol inside a
// rolling window. A count older than the window starts over.
type FailureTracker struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]failureEntry
}

// NewFailureTracker creates a tracker with the given window.
func NewFailureTracker(window time.Duration) *FailureTracker {
	return &FailureTracker{window: window, entries: make(map[string]failureEntry)}
}

// Record adds a failure for symbol at now and returns the current count.
func (t *FailureTracker) Record(symbol string, now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[symbol]
	if !ok || (t.window > 0 && now.Sub(e.first) > t.window) {
		e = failureEntry{first: now}
	}
	e.count++
	t.entries[symbol] = e
	return e.count
}

// Reset clears the counter for symbol.
func (t *FailureTracker) Reset(symbol string) {
	t.mu.Lock()
	delete(t.entries, symbol)
	t.mu.Unlock()
}

// Count returns the live count for symbol.
func (t *FailureTracker) Count(symbol string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[symbol].count
}
