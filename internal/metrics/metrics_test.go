package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	m := New()
	m.Scans.WithLabelValues("button", "success").Inc()
	m.Analyses.WithLabelValues("xray", "local").Inc()
	m.Fallbacks.Inc()

	if got := testutil.ToFloat64(m.Scans.WithLabelValues("button", "success")); got != 1 {
		t.Errorf("scans_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Fallbacks); got != 1 {
		t.Errorf("api_fallbacks_total = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `medscan_analyses_total{document_type="xray",source="local"} 1`) {
		t.Errorf("metrics output missing analyses counter:\n%s", body)
	}
}
