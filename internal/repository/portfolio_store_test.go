package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MicroTrader/internal/domain/models"
	"MicroTrader/pkg/cache"
)

func newStore(t *testing.T) *PortfolioStore {
	t.Helper()
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	return NewPortfolioStore(mc)
}

func TestPortfolioStore_EntryState(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	ts, err := s.GetEntryTimestamp(ctx, "AAPL")
	require.NoError(t, err)
	assert.Nil(t, ts)

	entered := time.Date(2024, 3, 4, 14, 30, 0, 123, time.UTC)
	require.NoError(t, s.SetEntryTimestamp(ctx, "AAPL", entered))
	ts, err = s.GetEntryTimestamp(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.True(t, entered.Equal(*ts))

	sl := 0.01
	hold := 30
	meta := models.EntryMetadata{SignalType: models.SignalType("momentum"), StopLossPct: &sl, MaxHoldMinutes: &hold, OrderID: "o-1"}
	require.NoError(t, s.SetEntryMetadata(ctx, "MSFT", meta))
	got, err := s.GetEntryMetadata(ctx, "MSFT")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, meta, *got)

	syms, err := s.TrackedSymbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, syms)

	require.NoError(t, s.ClearEntryTimestamp(ctx, "AAPL"))
	require.NoError(t, s.ClearEntryMetadata(ctx, "MSFT"))
	syms, err = s.TrackedSymbols(ctx)
	require.NoError(t, err)
	assert.Empty(t, syms)

	missing, err := s.GetEntryMetadata(ctx, "MSFT")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPortfolioStore_Pending(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	base := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)

	require.Error(t, s.SavePending(ctx, models.PendingEntry{Symbol: "AAPL"}))

	require.NoError(t, s.SavePending(ctx, models.PendingEntry{OrderID: "b", Symbol: "MSFT", SubmittedAt: base.Add(time.Minute)}))
	require.NoError(t, s.SavePending(ctx, models.PendingEntry{OrderID: "a", Symbol: "AAPL", SubmittedAt: base, ExpectedPrice: 101.5}))

	list, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "AAPL", list[0].Symbol)
	assert.Equal(t, 101.5, list[0].ExpectedPrice)
	assert.Equal(t, "MSFT", list[1].Symbol)

	require.NoError(t, s.DeletePending(ctx, "a"))
	list, err = s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].OrderID)
}

func TestPortfolioStore_DayStartEquity(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, ok, err := s.GetDayStartEquity(ctx, "2024-03-04")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetDayStartEquity(ctx, "2024-03-04", 100000.5))
	v, ok, err := s.GetDayStartEquity(ctx, "2024-03-04")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 100000.5, v)

	_, ok, err = s.GetDayStartEquity(ctx, "2024-03-05")
	require.NoError(t, err)
	assert.False(t, ok)
}
