// Package strategy turns a symbol universe into ranked entry signals.
package strategy

import "time"

// Config holds the signal thresholds. The zero value is not usable; start
// from DefaultConfig.
type Config struct {
	TrendThreshold        float64
	ReversalThreshold     float64
	RegimeGateMinScore    float64
	ATRMultiplier         float64
	ProbeSymbol           string
	RegimeSymbol          string
	MomentumTopK          int
	SwingMaxSignals       int
	CrashMaxSignals       int
	IntradayWindowMinutes int
	DailyLookback         int
	SymbolDelay           time.Duration
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		TrendThreshold:        0.60,
		ReversalThreshold:     0.55,
		RegimeGateMinScore:    -0.2,
		ATRMultiplier:         2.5,
		ProbeSymbol:           "SPY",
		RegimeSymbol:          "SPY",
		MomentumTopK:          10,
		SwingMaxSignals:       5,
		CrashMaxSignals:       3,
		IntradayWindowMinutes: 60,
		DailyLookback:         60,
	}
}
