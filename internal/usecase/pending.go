package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"MicroTrader/internal/domain/models"
	"MicroTrader/internal/domain/repository"
)

// PendingBook holds unfilled entry orders keyed by order id and mirrors
// them to a PendingStore so they survive restarts.
type PendingBook struct {
	mu      sync.Mutex
	entries map[string]models.PendingEntry
	store   repository.PendingStore
}

// NewPendingBook creates a book. store may be nil for a memory-only book.
func NewPendingBook(store repository.PendingStore) *PendingBook {
	return &PendingBook{entries: make(map[string]models.PendingEntry), store: store}
}

// Load replaces the in-memory view with the persisted entries.
func (b *PendingBook) Load(ctx context.Context) error {
	if b.store == nil {
		return nil
	}
	list, err := b.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("load pending entries: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[string]models.PendingEntry, len(list))
	for _, p := range list {
		b.entries[p.OrderID] = p
	}
	return nil
}

// Add registers p, replacing any entry with the same order id.
func (b *PendingBook) Add(ctx context.Context, p models.PendingEntry) error {
	if p.OrderID == "" {
		return fmt.Errorf("pending entry for %s has no order id", p.Symbol)
	}
	b.mu.Lock()
	b.entries[p.OrderID] = p
	b.mu.Unlock()
	if b.store != nil {
		if err := b.store.SavePending(ctx, p); err != nil {
			return fmt.Errorf("save pending %s: %w", p.OrderID, err)
		}
	}
	return nil
}

// Remove drops the entry for orderID.
func (b *PendingBook) Remove(ctx context.Context, orderID string) error {
	b.mu.Lock()
	delete(b.entries, orderID)
	b.mu.Unlock()
	if b.store != nil {
		if err := b.store.DeletePending(ctx, orderID); err != nil {
			return fmt.Errorf("delete pending %s: %w", orderID, err)
		}
	}
	return nil
}

// Get returns the entry for orderID.
func (b *PendingBook) Get(orderID string) (models.PendingEntry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.entries[orderID]
	return p, ok
}

// HasSymbol reports whether any pending entry targets symbol.
func (b *PendingBook) HasSymbol(symbol string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.entries {
		if p.Symbol == symbol {
			return true
		}
	}
	return false
}

// Symbols returns the distinct symbols with a pending entry.
func (b *PendingBook) Symbols() map[string]struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]struct{}, len(b.entries))
	for _, p := range b.entries {
		out[models.NormalizeSymbol(p.Symbol)] = struct{}{}
	}
	return out
}

// List returns entries oldest first.
func (b *PendingBook) List() []models.PendingEntry {
	b.mu.Lock()
	out := make([]models.PendingEntry, 0, len(b.entries))
	for _, p := range b.entries {
		out = append(out, p)
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].OrderID < out[j].OrderID
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out
}

// Len returns the number of pending entries.
func (b *PendingBook) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// occupiedSlots counts the position slots in use: every held symbol plus
// every pending entry for a symbol not held yet. Unfilled entries take a
// slot because they become positions once the broker fills them.
func occupiedSlots(positions []models.Position, pending *PendingBook) int {
	held := make(map[string]struct{}, len(positions))
	for _, p := range positions {
		held[models.NormalizeSymbol(p.Symbol)] = struct{}{}
	}
	n := len(held)
	if pending == nil {
		return n
	}
	for sym := range pending.Symbols() {
		if _, ok := held[sym]; !ok {
			n++
		}
	}
	return n
}
