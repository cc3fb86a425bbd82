package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func TestRecordVerification_SeparatesOperationalFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordVerification("incorrect_secret", false)
	c.RecordVerification("incorrect_secret", false)
	c.RecordVerification("unavailable", true)

	mf := gather(t, reg, "vaultgate_verifications_total")
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected 2 series, got %d", len(mf.GetMetric()))
	}

	for _, m := range mf.GetMetric() {
		switch labelValue(m, "outcome") {
		case "incorrect_secret":
			if labelValue(m, "kind") != "caller" || m.GetCounter().GetValue() != 2 {
				t.Errorf("incorrect_secret series = %v", m)
			}
		case "unavailable":
			if labelValue(m, "kind") != "operational" || m.GetCounter().GetValue() != 1 {
				t.Errorf("unavailable series = %v", m)
			}
		default:
			t.Errorf("unexpected series %v", m)
		}
	}
}

func TestCounters_Increment(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLockout()
	c.RecordLedgerWriteFailure()
	c.RecordLedgerWriteFailure()
	c.RecordRetentionPruned(42)

	tests := []struct {
		name string
		want float64
	}{
		{"vaultgate_lockouts_total", 1},
		{"vaultgate_ledger_write_failures_total", 2},
		{"vaultgate_retention_pruned_rows_total", 42},
	}

	for _, tt := range tests {
		got := gather(t, reg, tt.name).GetMetric()[0].GetCounter().GetValue()
		if got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRecordVerifyLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordVerifyLatency(300 * time.Millisecond)

	h := gather(t, reg, "vaultgate_verify_duration_seconds").GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 1 {
		t.Errorf("sample count = %d, want 1", h.GetSampleCount())
	}
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordItemAccess("items_listed")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `vaultgate_item_access_total{action="items_listed"} 1`) {
		t.Errorf("metrics output missing item access counter:\n%s", body)
	}
}

func TestNop_SatisfiesRecorder(t *testing.T) {
	var r GateRecorder = Nop{}
	r.RecordVerification("ok", false)
	r.RecordLockout()
}
