package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	registry *prometheus.Registry

	// Scan metrics
	ScansTotal          *prometheus.CounterVec
	ScanDurationSeconds prometheus.Histogram
	ScanAnomaliesTotal  prometheus.Counter

	// Conversion metrics
	ConversionsTotal          *prometheus.CounterVec
	ConversionDurationSeconds prometheus.Histogram
	QueueLength               *prometheus.GaugeVec

	// Live channel metrics
	ConnectedObservers prometheus.Gauge
}

// New creates a Metrics instance registered on its own registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	register := func(c prometheus.Collector) {
		reg.MustRegister(c)
	}

	m := &Metrics{
		registry: reg,
		ScansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cadence_scans_total",
				Help: "Total number of library scans",
			},
			[]string{"result"},
		),
		ScanDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cadence_scan_duration_seconds",
				Help:    "Duration of directory scans in seconds",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		ScanAnomaliesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cadence_scan_anomalies_total",
				Help: "Total number of unexpected items recorded by scans",
			},
		),
		ConversionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cadence_conversions_total",
				Help: "Total number of finished conversions",
			},
			[]string{"status"},
		),
		ConversionDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cadence_conversion_duration_seconds",
				Help:    "Duration of conversions in seconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		QueueLength: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cadence_queue_jobs",
				Help: "Number of conversion jobs in the queue by status",
			},
			[]string{"status"},
		),
		ConnectedObservers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cadence_live_observers",
				Help: "Number of connected live channel observers",
			},
		),
	}

	register(m.ScansTotal)
	register(m.ScanDurationSeconds)
	register(m.ScanAnomaliesTotal)
	register(m.ConversionsTotal)
	register(m.ConversionDurationSeconds)
	register(m.QueueLength)
	register(m.ConnectedObservers)
	register(collectors.NewGoCollector())
	register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
