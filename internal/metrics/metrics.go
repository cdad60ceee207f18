package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder records scan and backtest metrics on its own registry
type Recorder struct {
	registry *prometheus.Registry

	stocksScanned *prometheus.CounterVec
	patternsFound *prometheus.CounterVec
	fetchErrors   *prometheus.CounterVec
	lastHits      prometheus.Gauge
	latency       *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		stocksScanned: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pitscout_stocks_scanned_total",
				Help: "Total number of stocks scanned",
			},
			[]string{"outcome"},
		),
		patternsFound: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pitscout_patterns_found_total",
				Help: "Total number of formations found",
			},
			[]string{"pattern_type"},
		),
		fetchErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pitscout_fetch_errors_total",
				Help: "Total number of bar fetch failures",
			},
			[]string{"provider"},
		),
		lastHits: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pitscout_last_scan_hits",
				Help: "Hits in the most recent scan",
			},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pitscout_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordScanned records one scanned stock with outcome hit, miss or error
func (r *Recorder) RecordScanned(outcome string) {
	r.stocksScanned.WithLabelValues(outcome).Inc()
}

// RecordPattern records a detected formation
func (r *Recorder) RecordPattern(kind string) {
	r.patternsFound.WithLabelValues(kind).Inc()
}

// RecordFetchError records a failed bar fetch
func (r *Recorder) RecordFetchError(provider string) {
	r.fetchErrors.WithLabelValues(provider).Inc()
}

// RecordScanHits sets the hit count of the latest scan
func (r *Recorder) RecordScanHits(n int) {
	r.lastHits.Set(float64(n))
}

// RecordLatency records operation latency in seconds
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
