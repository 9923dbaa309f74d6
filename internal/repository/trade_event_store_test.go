package repository

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MicroTrader/internal/domain/models"
)

func TestBuildTradeEventInsert(t *testing.T) {
	pnl := 12.5
	ts := time.Date(2024, 3, 4, 15, 0, 0, 0, time.FixedZone("ET", -5*3600))
	events := []models.TradeEvent{
		{Timestamp: ts, Symbol: "AAPL", Action: "CLOSE", Status: models.StatusClosed, PnL: &pnl, Extra: map[string]any{"exit": "take_profit"}},
		{},
		{Timestamp: ts, Symbol: "MSFT", Action: "BUY", Status: models.StatusSkipped, Reason: "dry_run"},
	}

	q, args, err := buildTradeEventInsert("microtrader.trade_events", events)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(q, "INSERT INTO microtrader.trade_events (ts, symbol,"))
	assert.Equal(t, 2, strings.Count(q, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"))
	require.Len(t, args, 28)

	assert.Equal(t, ts.UTC(), args[0])
	assert.Equal(t, "AAPL", args[1])
	assert.Equal(t, 12.5, args[11])
	assert.Nil(t, args[12])
	assert.Equal(t, `{"exit":"take_profit"}`, args[13])

	assert.Equal(t, "MSFT", args[15])
	assert.Nil(t, args[25])
	assert.Equal(t, "", args[27])
}

func TestBuildTradeEventInsert_Empty(t *testing.T) {
	q, args, err := buildTradeEventInsert("t", []models.TradeEvent{{}})
	require.NoError(t, err)
	assert.Empty(t, q)
	assert.Nil(t, args)
}

func TestDecodeExtra(t *testing.T) {
	assert.Nil(t, decodeExtra(""))
	assert.Equal(t, map[string]any{"a": 1.0}, decodeExtra(`{"a":1}`))
	assert.Equal(t, map[string]any{"raw": "nope"}, decodeExtra("nope"))
}

func TestTradeEventSchema(t *testing.T) {
	stmts := TradeEventSchema("microtrader", "trade_events")
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE DATABASE IF NOT EXISTS microtrader")
	assert.Contains(t, stmts[1], "microtrader.trade_events")
	assert.Contains(t, stmts[1], "pnl         Nullable(Float64)")
}
