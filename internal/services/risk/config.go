package risk

// Config is the risk surface consumed by the gate, the sizer call sites and
// the exit tables. Values come from configuration; nothing here reads env.
type Config struct {
	MaxDailyLossPct       float64
	MaxPositionPct        float64
	MaxRiskPct            float64
	CrashRiskScale        float64
	DailyBudget           float64
	MaxPositions          int
	CrashMaxPositions     int
	StopLossPct           float64
	TakeProfitPct         float64
	CrashStopLossPct      float64
	CrashTakeProfitPct    float64
	DefaultMaxHoldMinutes int
	CrashMaxHoldMinutes   int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxDailyLossPct:       0.03,
		MaxPositionPct:        0.10,
		MaxRiskPct:            0.01,
		CrashRiskScale:        0.5,
		DailyBudget:           10000,
		MaxPositions:          5,
		CrashMaxPositions:     3,
		StopLossPct:           0.006,
		TakeProfitPct:         0.018,
		CrashStopLossPct:      0.005,
		CrashTakeProfitPct:    0.015,
		DefaultMaxHoldMinutes: 90,
		CrashMaxHoldMinutes:   60,
	}
}

// Bracket is one row of the default exit table.
type Bracket struct {
	StopLossPct    float64
	TakeProfitPct  float64
	MaxHoldMinutes int
}
