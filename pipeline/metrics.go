package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aluiziolira/price-sentinel/models"
)

// Metrics bundles Prometheus collectors for the scan pipeline.
type Metrics struct {
	Registry              *prometheus.Registry
	ScansTotal            *prometheus.CounterVec
	FetchDuration         *prometheus.HistogramVec
	FetchErrorsTotal      *prometheus.CounterVec
	DealsDetectedTotal    *prometheus.CounterVec
	AlertsSentTotal       *prometheus.CounterVec
	AlertsSuppressedTotal *prometheus.CounterVec
	NormalizeErrorsTotal  *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	scans := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_scans_total",
			Help: "Completed scans per source and outcome.",
		},
		[]string{"source", "outcome"},
	)
	fetchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "monitor_fetch_duration_seconds",
			Help:    "Wall time of the fetch phase per source.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)
	fetchErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_fetch_errors_total",
			Help: "Fetch failures per source and error kind.",
		},
		[]string{"source", "kind"},
	)
	dealsDetected := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_deals_detected_total",
			Help: "Qualifying price drops detected per source, before dedup.",
		},
		[]string{"source"},
	)
	alertsSent := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_alerts_sent_total",
			Help: "Alerts delivered per source.",
		},
		[]string{"source"},
	)
	alertsSuppressed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_alerts_suppressed_total",
			Help: "Alerts suppressed by the cool-down window per source.",
		},
		[]string{"source"},
	)
	normalizeErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_normalize_errors_total",
			Help: "Raw records rejected during normalization per source.",
		},
		[]string{"source"},
	)

	registry.MustRegister(scans, fetchDuration, fetchErrors, dealsDetected,
		alertsSent, alertsSuppressed, normalizeErrors)

	return &Metrics{
		Registry:              registry,
		ScansTotal:            scans,
		FetchDuration:         fetchDuration,
		FetchErrorsTotal:      fetchErrors,
		DealsDetectedTotal:    dealsDetected,
		AlertsSentTotal:       alertsSent,
		AlertsSuppressedTotal: alertsSuppressed,
		NormalizeErrorsTotal:  normalizeErrors,
	}
}

// IncScan records a completed scan with its outcome label.
func (m *Metrics) IncScan(source models.Source, outcome string) {
	if m == nil {
		return
	}
	m.ScansTotal.WithLabelValues(string(source), outcome).Inc()
}

// ObserveFetch records the duration of one fetch phase.
func (m *Metrics) ObserveFetch(source models.Source, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(string(source)).Observe(d.Seconds())
}

// IncFetchError records a classified fetch failure.
func (m *Metrics) IncFetchError(source models.Source, kind string) {
	if m == nil {
		return
	}
	m.FetchErrorsTotal.WithLabelValues(string(source), kind).Inc()
}

// AddDeals records qualifying drops detected in one scan.
func (m *Metrics) AddDeals(source models.Source, n int) {
	if m == nil || n == 0 {
		return
	}
	m.DealsDetectedTotal.WithLabelValues(string(source)).Add(float64(n))
}

// IncAlertSent records one delivered alert.
func (m *Metrics) IncAlertSent(source models.Source) {
	if m == nil {
		return
	}
	m.AlertsSentTotal.WithLabelValues(string(source)).Inc()
}

// IncAlertSuppressed records one alert swallowed by the cool-down.
func (m *Metrics) IncAlertSuppressed(source models.Source) {
	if m == nil {
		return
	}
	m.AlertsSuppressedTotal.WithLabelValues(string(source)).Inc()
}

// IncNormalizeError records one rejected raw record.
func (m *Metrics) IncNormalizeError(source models.Source) {
	if m == nil {
		return
	}
	m.NormalizeErrorsTotal.WithLabelValues(string(source)).Inc()
}
