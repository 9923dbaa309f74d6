package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MicroTrader/internal/domain/models"
)

func submitPending(t *testing.T, h *harness, symbol string) string {
	t.Helper()
	res := h.exec.Execute(context.Background(), buy(symbol, 5), false)
	require.True(t, res.Submitted, res.Reason)
	return res.OrderID
}

func TestReconcileFill(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, richAccount)
	id := submitPending(t, h, "AAA")

	filledAt := t0.Add(30 * time.Second)
	h.broker.SetOrder(models.Order{ID: id, Symbol: "AAA", Status: models.OrderFilled, FilledQty: 5, FilledAvgPrice: 50.5, FilledAt: &filledAt})
	h.clock.Advance(time.Minute)

	rep := h.exec.Reconcile(ctx)
	assert.Equal(t, ReconcileReport{Filled: 1}, rep)
	assert.Zero(t, h.exec.Pending().Len())

	ts, _ := h.store.GetEntryTimestamp(ctx, "AAA")
	require.NotNil(t, ts)
	assert.True(t, ts.Equal(filledAt))
	meta, _ := h.store.GetEntryMetadata(ctx, "AAA")
	require.NotNil(t, meta)
	assert.Equal(t, 50.0, meta.ExpectedPrice)
	assert.Equal(t, id, meta.OrderID)

	fills := h.trades.ByStatus(models.StatusFilled)
	require.Len(t, fills, 1)
	assert.InDelta(t, 0.01, fills[0].Extra["slippage_pct"].(float64), 1e-9)

	stored, _ := h.store.ListPending(ctx)
	assert.Empty(t, stored)
}

func TestReconcileTerminalAndWaiting(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, richAccount)
	canceled := submitPending(t, h, "AAA")
	waiting := submitPending(t, h, "BBB")

	h.broker.SetOrder(models.Order{ID: canceled, Symbol: "AAA", Status: models.OrderCanceled})

	rep := h.exec.Reconcile(ctx)
	assert.Equal(t, 1, rep.Dropped)
	assert.Equal(t, 1, rep.Waiting)
	_, ok := h.exec.Pending().Get(waiting)
	assert.True(t, ok)
	_, ok = h.exec.Pending().Get(canceled)
	assert.False(t, ok)
	assert.Len(t, h.trades.ByStatus(models.StatusDropped), 1)
}

func TestReconcileLookupErrorKeepsEntry(t *testing.T) {
	h := newHarness(t, richAccount)
	id := submitPending(t, h, "AAA")
	h.broker.OrderErr = errors.New("timeout")

	rep := h.exec.Reconcile(context.Background())
	assert.Equal(t, ReconcileReport{Waiting: 1}, rep)
	_, ok := h.exec.Pending().Get(id)
	assert.True(t, ok)
	assert.False(t, h.halt.Snapshot().Halted)
}

func TestReconcileExpiresAfterTTL(t *testing.T) {
	h := newHarness(t, richAccount)
	submitPending(t, h, "AAA")
	h.clock.Advance(61 * time.Minute)

	rep := h.exec.Reconcile(context.Background())
	assert.Equal(t, ReconcileReport{Expired: 1}, rep)
	assert.Zero(t, h.exec.Pending().Len())
	assert.Len(t, h.trades.ByStatus(models.StatusExpired), 1)
}

func TestPendingBookReload(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, richAccount)
	id := submitPending(t, h, "AAA")

	restored := NewPendingBook(h.store)
	require.NoError(t, restored.Load(ctx))
	p, ok := restored.Get(id)
	require.True(t, ok)
	assert.Equal(t, "AAA", p.Symbol)
	assert.Equal(t, 50.0, p.ExpectedPrice)

	assert.Error(t, restored.Add(ctx, models.PendingEntry{Symbol: "BBB"}))
}
