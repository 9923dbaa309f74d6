package util

import (
    "strconv"
    "time"
    _ "time/tzdata"
)

// Eastern is the US equity exchange time zone.
var Eastern = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
    loc, err := time.LoadLocation(name)
    if err != nil {
        panic(err)
    }
    return loc
}

// SessionDay returns the exchange-local date of t as YYYY-MM-DD.
func SessionDay(t time.Time) string {
    return t.In(Eastern).Format("2006-01-02")
}

// SameSessionDay reports whether a and b fall on the same exchange-local date.
func SameSessionDay(a, b time.Time) bool {
    return SessionDay(a) == SessionDay(b)
}

// MinuteOfDay returns minutes since exchange-local midnight.
func MinuteOfDay(t time.Time) int {
    et := t.In(Eastern)
    return et.Hour()*60 + et.Minute()
}

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
    if s == "" {
        return time.Time{}, false
    }
    if t, err := time.Parse(time.RFC3339, s); err == nil {
        return t, true
    }
    if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
        return t, true
    }
    if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
        return time.Unix(ts, 0), true
    }
    return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
    if t, ok := ParseTime(s); ok {
        return t
    }
    return def
}

// AlignFromTo rounds a bar request window to the timeframe boundary.
func AlignFromTo(from, to time.Time, tf string) (time.Time, time.Time) {
    switch tf {
    case "5Min":
        d := 5 * time.Minute
        from = from.Truncate(d)
        to = to.Truncate(d)
    case "1Day":
        y, m, d := from.In(Eastern).Date()
        from = time.Date(y, m, d, 0, 0, 0, 0, Eastern)
        to = to.Truncate(time.Minute)
    default:
        from = from.Truncate(time.Minute)
        to = to.Truncate(time.Minute)
    }
    return from, to
}
