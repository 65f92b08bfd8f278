package validator

import (
	"fmt"
	"time"
)

var timestampLayouts = []string{
	"02/01/2006 15:04:05", // DD/MM/YYYY HH:mm:ss
	"02 15:04:05/01/2006", // DD HH:mm:ss/MM/YYYY, as sent by some PM firmware
	time.RFC3339Nano,
}

// ParseReadingTimestamp parses a meter timestamp in any of the layouts meters emit
func ParseReadingTimestamp(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", s, lastErr)
}

// IsWithinTolerance reports whether two instants are at most tolerance apart
func IsWithinTolerance(a, b time.Time, tolerance time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}
