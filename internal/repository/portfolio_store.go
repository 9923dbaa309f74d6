package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"MicroTrader/internal/domain/models"
	domrepo "MicroTrader/internal/domain/repository"
	"MicroTrader/pkg/cache"
)

const (
	prefixEntryTS   = "entry_ts"
	prefixEntryMeta = "entry_meta"
	prefixPending   = "pending"
	prefixEquityDay = "equity:day"

	// Day-start equity is only read for the current session.
	equityTTL = 96 * time.Hour
)

// PortfolioStore keeps per-symbol entry state, pending entries and the
// day-start equity in a cache.Service (Redis in production).
type PortfolioStore struct {
	cache cache.Service
}

func NewPortfolioStore(c cache.Service) *PortfolioStore {
	return &PortfolioStore{cache: c}
}

func (s *PortfolioStore) GetEntryTimestamp(ctx context.Context, symbol string) (*time.Time, error) {
	var raw string
	if err := s.cache.Get(ctx, cache.GenerateKey(prefixEntryTS, symbol), &raw); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("get entry timestamp %s: %w", symbol, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("parse entry timestamp %s: %w", symbol, err)
	}
	return &ts, nil
}

func (s *PortfolioStore) SetEntryTimestamp(ctx context.Context, symbol string, ts time.Time) error {
	return s.cache.Set(ctx, cache.GenerateKey(prefixEntryTS, symbol), ts.UTC().Format(time.RFC3339Nano), 0)
}

func (s *PortfolioStore) ClearEntryTimestamp(ctx context.Context, symbol string) error {
	return s.cache.Delete(ctx, cache.GenerateKey(prefixEntryTS, symbol))
}

func (s *PortfolioStore) GetEntryMetadata(ctx context.Context, symbol string) (*models.EntryMetadata, error) {
	var meta models.EntryMetadata
	if err := s.cache.Get(ctx, cache.GenerateKey(prefixEntryMeta, symbol), &meta); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("get entry metadata %s: %w", symbol, err)
	}
	return &meta, nil
}

func (s *PortfolioStore) SetEntryMetadata(ctx context.Context, symbol string, meta models.EntryMetadata) error {
	return s.cache.Set(ctx, cache.GenerateKey(prefixEntryMeta, symbol), meta, 0)
}

func (s *PortfolioStore) ClearEntryMetadata(ctx context.Context, symbol string) error {
	return s.cache.Delete(ctx, cache.GenerateKey(prefixEntryMeta, symbol))
}

// TrackedSymbols returns every symbol with a stored timestamp or metadata.
func (s *PortfolioStore) TrackedSymbols(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	for _, prefix := range []string{prefixEntryTS, prefixEntryMeta} {
		keys, err := s.cache.Keys(ctx, cache.BuildPattern(prefix))
		if err != nil {
			return nil, fmt.Errorf("list %s keys: %w", prefix, err)
		}
		for _, k := range keys {
			seen[cache.TrimKey(prefix, k)] = true
		}
	}
	out := make([]string, 0, len(seen))
	for sym := range seen {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out, nil
}

func (s *PortfolioStore) SavePending(ctx context.Context, p models.PendingEntry) error {
	if p.OrderID == "" {
		return fmt.Errorf("save pending %s: empty order id", p.Symbol)
	}
	return s.cache.Set(ctx, cache.GenerateKey(prefixPending, p.OrderID), p, 0)
}

func (s *PortfolioStore) DeletePending(ctx context.Context, orderID string) error {
	return s.cache.Delete(ctx, cache.GenerateKey(prefixPending, orderID))
}

// ListPending returns stored pending entries, oldest first. Keys that
// vanish between listing and reading are skipped.
func (s *PortfolioStore) ListPending(ctx context.Context) ([]models.PendingEntry, error) {
	keys, err := s.cache.Keys(ctx, cache.BuildPattern(prefixPending))
	if err != nil {
		return nil, fmt.Errorf("list pending keys: %w", err)
	}
	out := make([]models.PendingEntry, 0, len(keys))
	for _, k := range keys {
		var p models.PendingEntry
		if err := s.cache.Get(ctx, k, &p); err != nil {
			if errors.Is(err, cache.ErrCacheMiss) {
				continue
			}
			return nil, fmt.Errorf("get pending %s: %w", k, err)
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (s *PortfolioStore) GetDayStartEquity(ctx context.Context, day string) (float64, bool, error) {
	var v float64
	if err := s.cache.Get(ctx, cache.GenerateKey(prefixEquityDay, day), &v); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("get day start equity %s: %w", day, err)
	}
	return v, true, nil
}

func (s *PortfolioStore) SetDayStartEquity(ctx context.Context, day string, equity float64) error {
	return s.cache.Set(ctx, cache.GenerateKey(prefixEquityDay, day), equity, equityTTL)
}

var (
	_ domrepo.PortfolioStore = (*PortfolioStore)(nil)
	_ domrepo.PendingStore   = (*PortfolioStore)(nil)
	_ domrepo.EquityStore    = (*PortfolioStore)(nil)
)
