// Package metrics exposes Prometheus instruments for scan verdicts and
// token handling.  A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	scans         *prometheus.CounterVec
	scanDuration  prometheus.Histogram
	tokensIssued  prometheus.Counter
	tokenFailures *prometheus.CounterVec
	gatherer      prometheus.Gatherer
}

// New registers the instruments on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_scans_total",
			Help: "Scan attempts by verdict and internal reason.",
		}, []string{"verdict", "reason"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gate_scan_duration_seconds",
			Help:    "Time spent deciding one scan attempt.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gate_tokens_issued_total",
			Help: "Rotating ticket tokens issued.",
		}),
		tokenFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_token_failures_total",
			Help: "Token issuance and verification failures by reason.",
		}, []string{"reason"}),
		gatherer: reg,
	}
	reg.MustRegister(m.scans, m.scanDuration, m.tokensIssued, m.tokenFailures,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

// ObserveScan counts one decided scan attempt.
func (m *Metrics) ObserveScan(verdict, reason string, took time.Duration) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "none"
	}
	m.scans.WithLabelValues(verdict, reason).Inc()
	m.scanDuration.Observe(took.Seconds())
}

func (m *Metrics) TokenIssued() {
	if m == nil {
		return
	}
	m.tokensIssued.Inc()
}

func (m *Metrics) TokenFailed(reason string) {
	if m == nil {
		return
	}
	m.tokenFailures.WithLabelValues(reason).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
