package timeutils

import "time"

// Checkpoint timestamps travel as millisecond epochs because that is the
// resolution both bridges store.

// UnixMs converts t to a millisecond epoch. The zero time maps to 0.
func UnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMs converts a millisecond epoch back to UTC time. 0 maps to the
// zero time so fresh checkpoints stay recognizable.
func FromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// SinceMs returns the elapsed wall time since start in milliseconds,
// never negative.
func SinceMs(start time.Time) int64 {
	elapsed := time.Since(start).Milliseconds()
	if elapsed < 0 {
		return 0
	}
	return elapsed
}
