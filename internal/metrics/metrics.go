// Package metrics exposes pipeline counters in Prometheus format. Every
// Metrics owns its registry, so several pipelines can live in one process.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hejijunhao/logwhisper/internal/engine"
)

const namespace = "logwhisper"

// Metrics holds the registry and the instruments updated by the pipeline.
type Metrics struct {
	reg *prometheus.Registry

	anomalies      *prometheus.CounterVec
	nearMisses     prometheus.Counter
	suppressed     prometheus.Counter
	reports        *prometheus.CounterVec
	detectDuration prometheus.Histogram
	explainTotal   *prometheus.CounterVec
	explainLatency prometheus.Histogram
}

// New creates a Metrics with a fresh registry, including the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		anomalies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_total",
			Help:      "Anomalies flagged by detection, by reason and severity band.",
		}, []string{"reason", "band"}),
		nearMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "near_misses_total",
			Help:      "Patterns that came within reach of their spike threshold.",
		}),
		suppressed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_suppressed_total",
			Help:      "Reports dropped as repeats of a recent report.",
		}),
		reports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_written_total",
			Help:      "Reports handed to outputs, by result.",
		}, []string{"result"}),
		detectDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detection_duration_seconds",
			Help:      "Time spent in one detection pass.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		}),
		explainTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "explain_requests_total",
			Help:      "Explanation requests, by status.",
		}, []string{"status"}),
		explainLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "explain_duration_seconds",
			Help:      "Explanation request latency.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// WatchEngine exports the engine's cumulative ingest counters.
func (m *Metrics) WatchEngine(fn func() engine.IngestMetrics) {
	m.reg.MustRegister(newIngestCollector(fn))
}

// WatchPatterns exports the number of known pattern keys.
func (m *Metrics) WatchPatterns(fn func() int) {
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "patterns_known",
		Help:      "Distinct pattern keys seen since start.",
	}, func() float64 { return float64(fn()) })
}

// ObserveDetection records one detection pass.
func (m *Metrics) ObserveDetection(d time.Duration, nearMisses int) {
	m.detectDuration.Observe(d.Seconds())
	m.nearMisses.Add(float64(nearMisses))
}

// Anomaly counts one flagged anomaly.
func (m *Metrics) Anomaly(reason, band string) {
	m.anomalies.WithLabelValues(reason, band).Inc()
}

// Suppressed counts reports dropped by deduplication.
func (m *Metrics) Suppressed(n int) {
	m.suppressed.Add(float64(n))
}

// ReportWritten counts a report delivery attempt.
func (m *Metrics) ReportWritten(err error) {
	if err != nil {
		m.reports.WithLabelValues("error").Inc()
		return
	}
	m.reports.WithLabelValues("ok").Inc()
}

// Explained records one explanation request.
func (m *Metrics) Explained(d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.explainTotal.WithLabelValues(status).Inc()
	m.explainLatency.Observe(d.Seconds())
}

type ingestCollector struct {
	fn       func() engine.IngestMetrics
	lines    *prometheus.Desc
	failures *prometheus.Desc
}

func newIngestCollector(fn func() engine.IngestMetrics) *ingestCollector {
	return &ingestCollector{
		fn: fn,
		lines: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "lines_total"),
			"Lines offered to the engine, by result.",
			[]string{"result"}, nil,
		),
		failures: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "line_failures_total"),
			"Dropped lines by reason. A parser failure counts under its coarse and its detailed reason.",
			[]string{"reason"}, nil,
		),
	}
}

func (c *ingestCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.lines
	ch <- c.failures
}

func (c *ingestCollector) Collect(ch chan<- prometheus.Metric) {
	m := c.fn()
	ch <- prometheus.MustNewConstMetric(c.lines, prometheus.CounterValue, float64(m.Parsed), "parsed")
	ch <- prometheus.MustNewConstMetric(c.lines, prometheus.CounterValue, float64(m.Failed), "failed")
	for reason, n := range m.FailuresByReason {
		ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(n), reason)
	}
}
