package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/hejijunhao/logwhisper/internal/engine"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var pb dto.Metric
	if err := c.Write(&pb); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return pb.GetCounter().GetValue()
}

func TestCounters(t *testing.T) {
	m := New()
	m.Anomaly("spike", "critical")
	m.Anomaly("spike", "critical")
	m.Anomaly("new_pattern", "low")
	m.Suppressed(3)
	m.ReportWritten(nil)
	m.ReportWritten(errors.New("boom"))
	m.ObserveDetection(5*time.Millisecond, 2)
	m.Explained(time.Second, nil)

	if got := counterValue(t, m.anomalies.WithLabelValues("spike", "critical")); got != 2 {
		t.Errorf("spike/critical = %v, want 2", got)
	}
	if got := counterValue(t, m.suppressed); got != 3 {
		t.Errorf("suppressed = %v, want 3", got)
	}
	if got := counterValue(t, m.reports.WithLabelValues("error")); got != 1 {
		t.Errorf("reports error = %v, want 1", got)
	}
	if got := counterValue(t, m.nearMisses); got != 2 {
		t.Errorf("near misses = %v, want 2", got)
	}
	if got := counterValue(t, m.explainTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("explain ok = %v, want 1", got)
	}
}

func TestWatchEngineAndPatterns(t *testing.T) {
	m := New()
	m.WatchEngine(func() engine.IngestMetrics {
		return engine.IngestMetrics{
			Parsed:           7,
			Failed:           2,
			FailuresByReason: map[string]int{"unrecognized_format": 2},
		}
	})
	m.WatchPatterns(func() int { return 4 })

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	s := string(body)

	for _, want := range []string{
		`logwhisper_lines_total{result="parsed"} 7`,
		`logwhisper_lines_total{result="failed"} 2`,
		`logwhisper_line_failures_total{reason="unrecognized_format"} 2`,
		`logwhisper_patterns_known 4`,
		`go_goroutines`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.Anomaly("spike", "high")
	if got := counterValue(t, b.anomalies.WithLabelValues("spike", "high")); got != 0 {
		t.Errorf("second instance saw %v anomalies", got)
	}
}
