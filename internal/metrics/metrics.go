package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Screener metrics
	scansTotal            *prometheus.CounterVec
	scanDuration          prometheus.Histogram
	evaluationsTotal      *prometheus.CounterVec
	sourceRequestsTotal   *prometheus.CounterVec
	sourceRequestDuration *prometheus.HistogramVec
	cacheRequestsTotal    *prometheus.CounterVec
	constituents          *prometheus.GaugeVec
	scansActive           prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	r.scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "valscreen_scans_total",
			Help: "Total number of index scans",
		},
		[]string{"index", "status"},
	)
	r.scanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "valscreen_scan_duration_seconds",
			Help:    "Index scan duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
	r.evaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "valscreen_evaluations_total",
			Help: "Valuation outcomes by result code",
		},
		[]string{"outcome"},
	)
	r.sourceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "valscreen_source_requests_total",
			Help: "Requests made to the market-data source",
		},
		[]string{"endpoint", "status"},
	)
	r.sourceRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "valscreen_source_request_duration_seconds",
			Help:    "Market-data request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint"},
	)
	r.cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "valscreen_cache_requests_total",
			Help: "Cache lookups by kind and result",
		},
		[]string{"kind", "result"},
	)
	r.constituents = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "valscreen_constituents",
			Help: "Number of constituents resolved for an index",
		},
		[]string{"index"},
	)
	r.scansActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "valscreen_scans_active",
			Help: "Number of scans currently running",
		},
	)

	reg.MustRegister(r.scansTotal)
	reg.MustRegister(r.scanDuration)
	reg.MustRegister(r.evaluationsTotal)
	reg.MustRegister(r.sourceRequestsTotal)
	reg.MustRegister(r.sourceRequestDuration)
	reg.MustRegister(r.cacheRequestsTotal)
	reg.MustRegister(r.constituents)
	reg.MustRegister(r.scansActive)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordScan records a finished scan. Status is "complete" or "cancelled".
func (r *Registry) RecordScan(index, status string, duration float64) {
	r.scansTotal.WithLabelValues(index, status).Inc()
	r.scanDuration.Observe(duration)
}

// RecordEvaluation counts a valuation outcome ("ok" or a skip code).
func (r *Registry) RecordEvaluation(outcome string) {
	r.evaluationsTotal.WithLabelValues(outcome).Inc()
}

// RecordSourceRequest records a market-data request.
func (r *Registry) RecordSourceRequest(endpoint string, status int, duration float64) {
	r.sourceRequestsTotal.WithLabelValues(endpoint, statusToString(status)).Inc()
	r.sourceRequestDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordCache counts a cache lookup.
func (r *Registry) RecordCache(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheRequestsTotal.WithLabelValues(kind, result).Inc()
}

// SetConstituents sets the resolved constituent count for an index.
func (r *Registry) SetConstituents(index string, count int) {
	r.constituents.WithLabelValues(index).Set(float64(count))
}

// ScanStarted increments the active scan gauge.
func (r *Registry) ScanStarted() {
	r.scansActive.Inc()
}

// ScanFinished decrements the active scan gauge.
func (r *Registry) ScanFinished() {
	r.scansActive.Dec()
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	case status == 0:
		return "error"
	default:
		return "1xx"
	}
}
