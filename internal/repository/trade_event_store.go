package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"MicroTrader/internal/domain/models"
	domrepo "MicroTrader/internal/domain/repository"
	pkgch "MicroTrader/pkg/clickhouse"
	applogger "MicroTrader/pkg/logger"
)

const insertChunk = 2000

const tradeEventColumns = "ts, symbol, action, status, reason, qty, price, entry_price, stop_loss, take_profit, order_id, pnl, pnl_pct, extra"

// TradeEventSchema returns the idempotent DDL for the trade event table.
func TradeEventSchema(database, table string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s.%s (
            ts          DateTime64(3, 'UTC'),
            symbol      LowCardinality(String),
            action      LowCardinality(String),
            status      LowCardinality(String),
            reason      String,
            qty         Float64,
            price       Float64,
            entry_price Float64,
            stop_loss   Float64,
            take_profit Float64,
            order_id    String,
            pnl         Nullable(Float64),
            pnl_pct     Nullable(Float64),
            extra       String
        ) ENGINE = MergeTree
        PARTITION BY toYYYYMM(ts)
        ORDER BY (symbol, ts)`, database, table),
	}
}

// CHTradeEventStore implements TradeEventStore backed by ClickHouse.
type CHTradeEventStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHTradeEventStore(ch *pkgch.Client, table string, l *applogger.Logger) *CHTradeEventStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHTradeEventStore{db: ch.DB(), table: table, l: l}
}

// Insert writes events with multi-row VALUES statements.
func (s *CHTradeEventStore) Insert(ctx context.Context, events []models.TradeEvent) error {
	for start := 0; start < len(events); start += insertChunk {
		end := start + insertChunk
		if end > len(events) {
			end = len(events)
		}
		q, args, err := buildTradeEventInsert(s.table, events[start:end])
		if err != nil {
			return err
		}
		if q == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse trade_events insert error",
				applogger.String("table", s.table),
				applogger.Int("rows", end-start),
				applogger.Error(err))
			return fmt.Errorf("insert trade events: %w", err)
		}
	}
	return nil
}

// Recent returns the newest events, optionally for one symbol.
func (s *CHTradeEventStore) Recent(ctx context.Context, symbol string, limit int) ([]models.TradeEvent, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT %s
        FROM %s
        WHERE (? = '' OR symbol = ?)
        ORDER BY ts DESC
        LIMIT ?`, tradeEventColumns, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("recent trade events: %w", err)
	}
	defer rows.Close()

	out := make([]models.TradeEvent, 0, limit)
	for rows.Next() {
		var (
			ev    models.TradeEvent
			pnl   sql.NullFloat64
			pct   sql.NullFloat64
			extra string
		)
		if err := rows.Scan(&ev.Timestamp, &ev.Symbol, &ev.Action, &ev.Status, &ev.Reason,
			&ev.Qty, &ev.Price, &ev.EntryPrice, &ev.StopLoss, &ev.TakeProfit, &ev.OrderID,
			&pnl, &pct, &extra); err != nil {
			return nil, fmt.Errorf("scan trade event: %w", err)
		}
		if pnl.Valid {
			ev.PnL = &pnl.Float64
		}
		if pct.Valid {
			ev.PnLPct = &pct.Float64
		}
		ev.Extra = decodeExtra(extra)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse recent trade events ok",
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)))
	return out, nil
}

func (s *CHTradeEventStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// buildTradeEventInsert renders one INSERT for events, skipping rows without
// a symbol or status. It returns an empty query when nothing is left.
func buildTradeEventInsert(table string, events []models.TradeEvent) (string, []interface{}, error) {
	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*14)
	for _, ev := range events {
		if ev.Status == "" && ev.Symbol == "" {
			continue
		}
		extra := ""
		if len(ev.Extra) > 0 {
			b, err := json.Marshal(ev.Extra)
			if err != nil {
				return "", nil, fmt.Errorf("encode extra for %s: %w", ev.Symbol, err)
			}
			extra = string(b)
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			ev.Timestamp.UTC(),
			ev.Symbol,
			ev.Action,
			ev.Status,
			ev.Reason,
			ev.Qty,
			ev.Price,
			ev.EntryPrice,
			ev.StopLoss,
			ev.TakeProfit,
			ev.OrderID,
			nullable(ev.PnL),
			nullable(ev.PnLPct),
			extra,
		)
	}
	if len(values) == 0 {
		return "", nil, nil
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, tradeEventColumns, strings.Join(values, ","))
	return q, args, nil
}

func nullable(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func decodeExtra(s string) map[string]any {
	if s == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return map[string]any{"raw": s}
	}
	return m
}

var _ domrepo.TradeEventStore = (*CHTradeEventStore)(nil)
