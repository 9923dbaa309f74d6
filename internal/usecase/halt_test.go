package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MicroTrader/internal/domain/models"
	"MicroTrader/internal/testutil"
)

func TestHaltStateLifecycle(t *testing.T) {
	clk := testutil.NewClock(t0)
	h := NewHaltState(5*time.Minute, clk.Now)

	snap, cleared := h.Check()
	assert.False(t, snap.Halted)
	assert.False(t, cleared)

	reason := h.Trip(models.HaltSubmitFailed, errors.New("boom"))
	assert.Equal(t, "alpaca_submit_failed: boom", reason)

	snap = h.Snapshot()
	assert.True(t, snap.Halted)
	assert.Equal(t, models.HaltSubmitFailed, snap.Code)
	assert.True(t, snap.Until.Equal(t0.Add(5*time.Minute)))

	st := snap.Status()
	assert.True(t, st.Halted)
	assert.Equal(t, "2026-03-02T15:05:00Z", st.HaltedUntil)

	clk.Advance(4 * time.Minute)
	snap, cleared = h.Check()
	assert.True(t, snap.Halted)
	assert.False(t, cleared)

	clk.Advance(time.Minute)
	snap, cleared = h.Check()
	assert.False(t, snap.Halted)
	assert.True(t, cleared)
	assert.Empty(t, snap.Reason)

	_, cleared = h.Check()
	assert.False(t, cleared, "clear is reported once")
}

func TestHaltStateManualClear(t *testing.T) {
	h := NewHaltState(time.Hour, testutil.NewClock(t0).Now)
	assert.False(t, h.Clear())
	h.Trip(models.HaltCloseFailed, nil)
	assert.Equal(t, "alpaca_close_failed", h.Snapshot().Reason)
	assert.True(t, h.Clear())
	assert.False(t, h.Snapshot().Halted)
	assert.Equal(t, models.HaltStatus{}, h.Snapshot().Status())
}

func TestHaltStatesAreIndependent(t *testing.T) {
	clk := testutil.NewClock(t0)
	a := NewHaltState(time.Minute, clk.Now)
	b := NewHaltState(time.Minute, clk.Now)
	a.Trip(models.HaltSubmitFailed, errors.New("x"))
	assert.True(t, a.Snapshot().Halted)
	assert.False(t, b.Snapshot().Halted)
}

func TestExecutorClearHaltAudits(t *testing.T) {
	h := newHarness(t, richAccount)
	assert.False(t, h.exec.ClearHalt(context.Background(), "ops"))
	assert.Empty(t, h.trades.ByStatus(models.StatusHaltCleared))

	h.halt.Trip(models.HaltSubmitFailed, errors.New("boom"))
	assert.True(t, h.exec.ClearHalt(context.Background(), "ops"))
	assert.False(t, h.halt.Snapshot().Halted)

	evs := h.trades.ByStatus(models.StatusHaltCleared)
	require.Len(t, evs, 1)
	assert.Equal(t, "ops", evs[0].Reason)
}
