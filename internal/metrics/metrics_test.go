package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_Operation(t *testing.T) {
	r := NewRecorder()

	r.Operation("create", ResultOK)
	r.Operation("create", ResultOK)
	r.Operation("create", ResultConflict)

	if got := testutil.ToFloat64(r.OperationCounter("create", ResultOK)); got != 2 {
		t.Errorf("Expected 2 successful creates, got %v", got)
	}
	if got := testutil.ToFloat64(r.OperationCounter("create", ResultConflict)); got != 1 {
		t.Errorf("Expected 1 conflict, got %v", got)
	}
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	r.Operation("create", ResultOK)
	r.CleanupFailed("delete")
	r.Render(ResultOK)
	r.ObserveHTTP("/", 200, time.Millisecond)
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.Render(ResultOK)
	r.ObserveHTTP("GET /api/meters", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"meter_dashboard_report_renders_total", "meter_dashboard_http_request_duration_seconds"} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected exposition to contain %s", want)
		}
	}
}
