package repository

import "time"

// Timeframe represents bar resolution buckets.
type Timeframe string

const (
	TF1Min Timeframe = "1Min"
	TF5Min Timeframe = "5Min"
	TF1Day Timeframe = "1Day"
)

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF1Min, TF5Min, TF1Day:
		return true
	default:
		return false
	}
}

// Duration returns the length of one bar.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF5Min:
		return 5 * time.Minute
	case TF1Day:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// NormalizeTimeframe converts raw string to a valid timeframe (or 1Min).
func NormalizeTimeframe(s string) Timeframe {
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return TF1Min
}
