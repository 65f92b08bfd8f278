package validator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/septivank/meter-dashboard/internal/meter"
)

// Reading is a raw meter reading as announced by the metering worker
type Reading struct {
	MeterID   string
	Value     string
	Timestamp string
}

// Result holds the parsed reading and, when rejected, the reason
type Result struct {
	MeterID   string
	Value     float64
	Timestamp time.Time
	Reason    string
}

// Valid reports whether the reading may be applied
func (r Result) Valid() bool {
	return r.Reason == ""
}

// Validator checks readings before they are applied to meter records
type Validator struct {
	tolerance time.Duration
}

// NewValidator creates a validator accepting readings stamped within
// toleranceMinutes of their receipt. Zero disables the window check.
func NewValidator(toleranceMinutes int) *Validator {
	return &Validator{tolerance: time.Duration(toleranceMinutes) * time.Minute}
}

// Validate parses and checks a single reading received at receivedAt
func (v *Validator) Validate(r Reading, receivedAt time.Time) Result {
	res := Result{MeterID: meter.Normalize(r.MeterID)}
	if res.MeterID == "" {
		res.Reason = "empty meter id"
		return res
	}

	// the worker wraps single values in brackets
	raw := strings.TrimSpace(strings.Trim(r.Value, "[] "))
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		res.Reason = fmt.Sprintf("invalid reading value: %v", err)
		return res
	}
	res.Value = value

	if math.IsNaN(value) || math.IsInf(value, 0) {
		res.Reason = "non-finite value"
		return res
	}
	if value < 0 {
		res.Reason = "negative value detected"
		return res
	}

	if r.Timestamp == "" {
		res.Timestamp = receivedAt
		return res
	}

	ts, err := ParseReadingTimestamp(r.Timestamp)
	if err != nil {
		res.Reason = fmt.Sprintf("invalid timestamp format: %v", err)
		return res
	}
	res.Timestamp = ts

	if v.tolerance > 0 && !IsWithinTolerance(ts, receivedAt, v.tolerance) {
		res.Reason = fmt.Sprintf("timestamp outside tolerance window (±%s)", v.tolerance)
	}
	return res
}
