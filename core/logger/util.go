package logger

import (
	"strconv"
	"strings"
	"time"
)

// RoundMS rounds d to whole milliseconds. Negative durations become zero.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

// SinceMS returns the milliseconds elapsed since start, rounded.
func SinceMS(start time.Time) int64 {
	return RoundMS(time.Since(start)).Milliseconds()
}

// Preview joins at most limit values and counts the rest, e.g. "a, b (+3 more)".
func Preview(values []string, limit int) string {
	if len(values) == 0 {
		return ""
	}
	if limit <= 0 || limit >= len(values) {
		limit = len(values)
	}
	out := strings.Join(values[:limit], ", ")
	if rest := len(values) - limit; rest > 0 {
		out += " (+" + strconv.Itoa(rest) + " more)"
	}
	return out
}
