package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/septivank/meter-dashboard/internal/meter"
	"github.com/septivank/meter-dashboard/internal/validator"
	"go.uber.org/zap"
)

type update struct {
	meterID string
	value   float64
}

type fakeUpdater struct {
	known   map[string]bool
	err     error
	applied []update
}

func (f *fakeUpdater) UpdateValueByMeterID(_ context.Context, meterID string, value float64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if !f.known[meterID] {
		return false, nil
	}
	f.applied = append(f.applied, update{meterID, value})
	return true, nil
}

func newTestProcessor(u *fakeUpdater) *Processor {
	p := NewProcessor(u, validator.NewValidator(5), zap.NewNop())
	p.now = func() time.Time { return time.Date(2025, 12, 29, 10, 32, 0, 0, time.UTC) }
	return p
}

func TestProcessMessage_AppliesReading(t *testing.T) {
	u := &fakeUpdater{known: map[string]bool{"MTR-001": true}}
	p := newTestProcessor(u)

	body := []byte(`{"request_id":"r1","meter_id":"mtr-001","metric_value":245.5,"reading_timestamp":"2025-12-29T10:30:00Z","validation_status":"valid"}`)

	if err := p.ProcessMessage(context.Background(), body); err != nil {
		t.Fatalf("Failed to process message: %v", err)
	}
	if len(u.applied) != 1 || u.applied[0] != (update{"MTR-001", 245.5}) {
		t.Errorf("Expected one update of MTR-001 to 245.5, got %+v", u.applied)
	}
}

func TestProcessMessage_AcceptsQuotedAndBracketedValues(t *testing.T) {
	u := &fakeUpdater{known: map[string]bool{"MTR-001": true}}
	p := newTestProcessor(u)

	for _, body := range []string{
		`{"meter_id":"MTR-001","metric_value":"12.5"}`,
		`{"meter_id":"MTR-001","metric_value":"[13.5]"}`,
		`{"meter_id":"MTR-001","metric_value":[14.5]}`,
	} {
		if err := p.ProcessMessage(context.Background(), []byte(body)); err != nil {
			t.Errorf("Failed to process %s: %v", body, err)
		}
	}
	if len(u.applied) != 3 || u.applied[2].value != 14.5 {
		t.Errorf("Expected three updates, got %+v", u.applied)
	}
}

func TestProcessMessage_SkipsAndRejections(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"rejected upstream", `{"meter_id":"MTR-001","metric_value":1,"validation_status":"invalid"}`},
		{"negative", `{"meter_id":"MTR-001","metric_value":-1}`},
		{"stale", `{"meter_id":"MTR-001","metric_value":1,"reading_timestamp":"2025-12-29T09:00:00Z"}`},
		{"unknown meter", `{"meter_id":"MTR-404","metric_value":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &fakeUpdater{known: map[string]bool{"MTR-001": true}}
			p := newTestProcessor(u)

			if err := p.ProcessMessage(context.Background(), []byte(tt.body)); err != nil {
				t.Errorf("Expected message to be acknowledged, got %v", err)
			}
			if len(u.applied) != 0 {
				t.Errorf("Expected no updates, got %+v", u.applied)
			}
		})
	}
}

func TestProcessMessage_MalformedJSON(t *testing.T) {
	p := newTestProcessor(&fakeUpdater{})

	if err := p.ProcessMessage(context.Background(), []byte(`{not json`)); err == nil {
		t.Error("Expected error for malformed message")
	}
}

func TestProcessMessage_StoreFailureDeadLetters(t *testing.T) {
	storeErr := &meter.StoreUnavailableError{Op: "update value", Err: errors.New("connection refused")}
	p := newTestProcessor(&fakeUpdater{err: storeErr})

	err := p.ProcessMessage(context.Background(), []byte(`{"meter_id":"MTR-001","metric_value":1}`))

	var unavailable *meter.StoreUnavailableError
	if !errors.As(err, &unavailable) {
		t.Errorf("Expected wrapped StoreUnavailableError, got %v", err)
	}
}
