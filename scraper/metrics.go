package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the expansion engine.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	ExpansionsTotal *prometheus.CounterVec
	SamplesTotal    prometheus.Counter
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
	CooldownsTotal  prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fare_window_requests_total",
			Help: "Calendar window requests by outcome.",
		},
		[]string{"outcome"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fare_window_request_duration_seconds",
			Help:    "Calendar request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	expansions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fare_expansions_total",
			Help: "Candidate expansions by final status.",
		},
		[]string{"status"},
	)
	samples := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fare_price_samples_total",
			Help: "Price samples decoded from calendar responses.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fare_retries_total",
			Help: "Window requests retried after a transient failure.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fare_errors_total",
			Help: "Window request errors by type.",
		},
		[]string{"error_type"},
	)
	cooldowns := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fare_gate_cooldowns_total",
			Help: "Pool-wide pauses triggered by consecutive blocked answers.",
		},
	)

	registry.MustRegister(requests, requestDuration, expansions, samples, retries, errorsTotal, cooldowns)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		ExpansionsTotal: expansions,
		SamplesTotal:    samples,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
		CooldownsTotal:  cooldowns,
	}
}

// IncRequest increments the window requests counter.
func (m *Metrics) IncRequest(outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDuration records a calendar request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncExpansion counts a finished expansion.
func (m *Metrics) IncExpansion(status string) {
	if m == nil {
		return
	}
	m.ExpansionsTotal.WithLabelValues(status).Inc()
}

// AddSamples adds decoded samples.
func (m *Metrics) AddSamples(n int) {
	if m == nil {
		return
	}
	m.SamplesTotal.Add(float64(n))
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncCooldown counts a gate cooldown.
func (m *Metrics) IncCooldown() {
	if m == nil {
		return
	}
	m.CooldownsTotal.Inc()
}
