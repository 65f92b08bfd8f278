package validator_test

import (
	"strings"
	"testing"
	"time"

	"github.com/septivank/meter-dashboard/internal/validator"
)

const testToleranceMinutes = 5

var receivedAt = time.Date(2025, 12, 29, 10, 32, 0, 0, time.UTC)

func TestValidate_ValidReading(t *testing.T) {
	v := validator.NewValidator(testToleranceMinutes)

	res := v.Validate(validator.Reading{
		MeterID:   " mtr-001",
		Value:     "[245.5]",
		Timestamp: "29/12/2025 10:30:00",
	}, receivedAt)

	if !res.Valid() {
		t.Fatalf("Expected valid result, got invalid: %s", res.Reason)
	}
	if res.MeterID != "MTR-001" {
		t.Errorf("Expected canonical meter id MTR-001, got %s", res.MeterID)
	}
	if res.Value != 245.5 {
		t.Errorf("Expected value 245.5, got %f", res.Value)
	}
	expected := time.Date(2025, 12, 29, 10, 30, 0, 0, time.UTC)
	if !res.Timestamp.Equal(expected) {
		t.Errorf("Expected timestamp %v, got %v", expected, res.Timestamp)
	}
}

func TestValidate_Rejections(t *testing.T) {
	v := validator.NewValidator(testToleranceMinutes)

	tests := []struct {
		name    string
		reading validator.Reading
		reason  string
	}{
		{"empty meter id", validator.Reading{MeterID: "  ", Value: "1"}, "empty meter id"},
		{"not a number", validator.Reading{MeterID: "m", Value: "not-a-number"}, "invalid reading value"},
		{"nan", validator.Reading{MeterID: "m", Value: "NaN"}, "non-finite value"},
		{"negative", validator.Reading{MeterID: "m", Value: "-10.5"}, "negative value detected"},
		{"bad timestamp", validator.Reading{MeterID: "m", Value: "1", Timestamp: "yesterday"}, "invalid timestamp format"},
		{"stale", validator.Reading{MeterID: "m", Value: "1", Timestamp: "29/12/2025 10:00:00"}, "timestamp outside tolerance window"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(tt.reading, receivedAt)
			if res.Valid() {
				t.Fatal("Expected invalid result")
			}
			if !strings.HasPrefix(res.Reason, tt.reason) {
				t.Errorf("Expected reason starting with '%s', got '%s'", tt.reason, res.Reason)
			}
		})
	}
}

func TestValidate_MissingTimestampUsesReceipt(t *testing.T) {
	v := validator.NewValidator(testToleranceMinutes)

	res := v.Validate(validator.Reading{MeterID: "m", Value: "3"}, receivedAt)

	if !res.Valid() || !res.Timestamp.Equal(receivedAt) {
		t.Errorf("Expected valid reading stamped at receipt, got %+v", res)
	}
}

func TestValidate_ZeroToleranceAcceptsAnyTimestamp(t *testing.T) {
	v := validator.NewValidator(0)

	res := v.Validate(validator.Reading{MeterID: "m", Value: "3", Timestamp: "2020-01-01T00:00:00Z"}, receivedAt)

	if !res.Valid() {
		t.Errorf("Expected valid result, got %s", res.Reason)
	}
}

func TestParseReadingTimestamp_Layouts(t *testing.T) {
	expected := time.Date(2025, 12, 29, 10, 30, 45, 0, time.UTC)

	for _, s := range []string{"29/12/2025 10:30:45", "29 10:30:45/12/2025", "2025-12-29T10:30:45Z", "2025-12-29T17:30:45+07:00"} {
		got, err := validator.ParseReadingTimestamp(s)
		if err != nil {
			t.Errorf("Failed to parse %q: %v", s, err)
			continue
		}
		if !got.Equal(expected) {
			t.Errorf("Expected %v for %q, got %v", expected, s, got)
		}
	}

	if _, err := validator.ParseReadingTimestamp("invalid-date-string"); err == nil {
		t.Error("Expected error for invalid timestamp")
	}
}

func TestIsWithinTolerance(t *testing.T) {
	reading := time.Date(2025, 12, 29, 10, 30, 0, 0, time.UTC)
	window := 5 * time.Minute

	if !validator.IsWithinTolerance(reading, reading.Add(3*time.Minute), window) {
		t.Error("Expected 3 minutes to be within tolerance")
	}
	if validator.IsWithinTolerance(reading, reading.Add(6*time.Minute), window) {
		t.Error("Expected 6 minutes to be outside tolerance")
	}
	if !validator.IsWithinTolerance(reading.Add(3*time.Minute), reading, window) {
		t.Error("Expected negative difference to be within tolerance")
	}
	if !validator.IsWithinTolerance(reading, reading.Add(window), window) {
		t.Error("Expected exact boundary to be within tolerance")
	}
}
