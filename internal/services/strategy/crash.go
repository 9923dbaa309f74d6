package strategy

import (
	"context"

	"MicroTrader/internal/domain/repository"
	"MicroTrader/pkg/logger"
)

// crashDropPct is the 5-minute index drop that flips the engine into crash mode.
const crashDropPct = -0.01

// CrashState is the outcome of one crash probe.
type CrashState struct {
	Crash bool
	Drop  float64
}

// CrashDetector watches the index's 5-minute bars.
type CrashDetector struct {
	md     repository.MarketData
	symbol string
	log    *logger.Logger
}

// NewCrashDetector creates a detector over symbol.
func NewCrashDetector(md repository.MarketData, symbol string, log *logger.Logger) *CrashDetector {
	if log == nil {
		log = logger.Nop()
	}
	return &CrashDetector{md: md, symbol: symbol, log: log}
}

// Detect reports crash mode when the last 5-minute bar closed at least 1%
// below the one before it. Data errors never trigger crash mode.
func (d *CrashDetector) Detect(ctx context.Context) CrashState {
	bars, err := d.md.GetBars(ctx, d.symbol, repository.TF5Min, 3)
	if err != nil {
		d.log.Warn("crash detector unavailable", logger.String("symbol", d.symbol), logger.Error(err))
		return CrashState{}
	}
	if len(bars) < 2 {
		return CrashState{}
	}
	prev := bars[len(bars)-2].Close
	last := bars[len(bars)-1].Close
	if prev == 0 {
		return CrashState{}
	}
	drop := (last - prev) / prev
	state := CrashState{Crash: drop <= crashDropPct, Drop: drop}
	if state.Crash {
		d.log.Warn("crash mode active", logger.String("symbol", d.symbol), logger.Float("drop", drop))
	}
	return state
}
