// Package metrics defines the Prometheus collectors exported by Kestrel.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	BatchesTotal     *prometheus.CounterVec
	BatchDuration    prometheus.Histogram
	TransactionsTier *prometheus.CounterVec
	QuarantinedTotal prometheus.Counter
	RuleHits         *prometheus.CounterVec
	FinalScores      prometheus.Histogram
	LookupFailures   *prometheus.CounterVec
	AdvisoryFailures prometheus.Counter

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BatchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kestrel",
				Subsystem: "engine",
				Name:      "batches_total",
				Help:      "Total number of analyzed batches by outcome",
			},
			[]string{"outcome"},
		),
		BatchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "kestrel",
				Subsystem: "engine",
				Name:      "batch_duration_seconds",
				Help:      "Time taken to analyze a batch",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		TransactionsTier: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kestrel",
				Subsystem: "engine",
				Name:      "transactions_total",
				Help:      "Total number of scored transactions by compliance tier",
			},
			[]string{"tier"},
		),
		QuarantinedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "kestrel",
				Subsystem: "engine",
				Name:      "quarantined_total",
				Help:      "Total number of records rejected by validation",
			},
		),
		RuleHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kestrel",
				Subsystem: "rules",
				Name:      "hits_total",
				Help:      "Total number of triggered rules",
			},
			[]string{"rule_id"},
		),
		FinalScores: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "kestrel",
				Subsystem: "engine",
				Name:      "final_score",
				Help:      "Distribution of final risk scores",
				Buckets:   prometheus.LinearBuckets(10, 10, 10),
			},
		),
		LookupFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kestrel",
				Subsystem: "engine",
				Name:      "lookup_failures_total",
				Help:      "Total number of degraded history or profile lookups",
			},
			[]string{"op"},
		),
		AdvisoryFailures: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "kestrel",
				Subsystem: "advisory",
				Name:      "failures_total",
				Help:      "Total number of advisory scores that degraded to zero",
			},
		),
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kestrel",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "kestrel",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// ObserveBatch records the outcome and duration of one batch.
func (m *Metrics) ObserveBatch(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.BatchesTotal.WithLabelValues(outcome).Inc()
	m.BatchDuration.Observe(seconds)
}

// ObserveScorecard records the tier, score and rule hits of one scorecard.
func (m *Metrics) ObserveScorecard(tier string, finalScore int, ruleIDs []string) {
	if m == nil {
		return
	}
	m.TransactionsTier.WithLabelValues(tier).Inc()
	m.FinalScores.Observe(float64(finalScore))
	for _, id := range ruleIDs {
		m.RuleHits.WithLabelValues(id).Inc()
	}
}

// ObserveQuarantined records rejected records.
func (m *Metrics) ObserveQuarantined(n int) {
	if m == nil || n == 0 {
		return
	}
	m.QuarantinedTotal.Add(float64(n))
}

// ObserveLookupFailure records a degraded lookup.
func (m *Metrics) ObserveLookupFailure(op string) {
	if m == nil {
		return
	}
	m.LookupFailures.WithLabelValues(op).Inc()
}

// ObserveAdvisoryFailure records an advisory score that fell back to zero.
func (m *Metrics) ObserveAdvisoryFailure() {
	if m == nil {
		return
	}
	m.AdvisoryFailures.Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(seconds)
}
