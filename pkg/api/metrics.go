package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/ssargent/bitctf/pkg/ctf"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds all Prometheus metrics for the API
type Metrics struct {
	registry *prometheus.Registry

	// HTTP request metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec

	// Registry operation metrics
	schemaOperationsTotal *prometheus.CounterVec

	// Decode metrics
	decodeOperationsTotal *prometheus.CounterVec
	decodeDuration        prometheus.Histogram
	bitsDecodedTotal      prometheus.Counter
	eventHeadersTotal     *prometheus.CounterVec

	// API key authentication metrics
	authRequestsTotal *prometheus.CounterVec

	// Health check metrics
	healthChecksTotal *prometheus.CounterVec
}

// NewMetrics creates all Prometheus metrics on a fresh registry, so several
// servers can live in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	f := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bitctf_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bitctf_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		httpRequestsInFlight: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bitctf_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"method", "endpoint"},
		),

		schemaOperationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bitctf_schema_operations_total",
				Help: "Total number of schema registry operations",
			},
			[]string{"operation", "status"},
		),

		decodeOperationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bitctf_decode_operations_total",
				Help: "Total number of records decoded or encoded",
			},
			[]string{"operation", "status"},
		),

		decodeDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bitctf_decode_duration_seconds",
				Help:    "Time spent decoding one record",
				Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
			},
		),

		bitsDecodedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "bitctf_bits_decoded_total",
				Help: "Total number of payload bits consumed by decoding",
			},
		),

		eventHeadersTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bitctf_event_headers_total",
				Help: "Event headers decoded, by kind and layout",
			},
			[]string{"kind", "layout"},
		),

		authRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bitctf_auth_requests_total",
				Help: "Total number of authentication requests",
			},
			[]string{"status"},
		),

		healthChecksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bitctf_health_checks_total",
				Help: "Total number of health checks",
			},
			[]string{"status"},
		),
	}

	return m
}

// Registry returns the registry the metrics are collected in
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func status(success bool) string {
	if success {
		return statusSuccess
	}
	return statusError
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	statusCodeStr := strconv.Itoa(statusCode)

	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCodeStr).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordSchemaOperation records a registry operation
func (m *Metrics) RecordSchemaOperation(operation string, success bool) {
	m.schemaOperationsTotal.WithLabelValues(operation, status(success)).Inc()
}

// RecordDecode records one decode call and what it produced
func (m *Metrics) RecordDecode(def ctf.Definition, bits int, duration time.Duration, err error) {
	m.decodeOperationsTotal.WithLabelValues("decode", status(err == nil)).Inc()
	if err != nil {
		return
	}
	m.decodeDuration.Observe(duration.Seconds())
	m.bitsDecodedTotal.Add(float64(bits))
	walkEventHeaders(def, func(h *ctf.EventHeaderDefinition) {
		layout := "short"
		if h.Extended() {
			layout = "extended"
		}
		kind := h.Declaration().(*ctf.EventHeaderDeclaration).HeaderKind()
		m.eventHeadersTotal.WithLabelValues(kind.String(), layout).Inc()
	})
}

// RecordEncode records one encode call
func (m *Metrics) RecordEncode(success bool) {
	m.decodeOperationsTotal.WithLabelValues("encode", status(success)).Inc()
}

// RecordAuthRequest records an authentication request
func (m *Metrics) RecordAuthRequest(success bool) {
	m.authRequestsTotal.WithLabelValues(status(success)).Inc()
}

// RecordHealthCheck records a health check
func (m *Metrics) RecordHealthCheck(success bool) {
	m.healthChecksTotal.WithLabelValues(status(success)).Inc()
}

// walkEventHeaders calls fn for every event header in a decoded tree
func walkEventHeaders(def ctf.Definition, fn func(*ctf.EventHeaderDefinition)) {
	switch d := def.(type) {
	case *ctf.EventHeaderDefinition:
		fn(d)
	case *ctf.StructDefinition:
		for _, f := range d.Fields() {
			walkEventHeaders(f, fn)
		}
	case *ctf.VariantDefinition:
		walkEventHeaders(d.Current(), fn)
	case *ctf.ArrayDefinition:
		for _, e := range d.Elements() {
			walkEventHeaders(e, fn)
		}
	}
}

// InstrumentHandler instruments an HTTP handler with metrics
func (m *Metrics) InstrumentHandler(method, endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		gauge := m.httpRequestsInFlight.WithLabelValues(method, endpoint)
		gauge.Inc()
		defer gauge.Dec()

		rw := wrapResponseWriter(w)
		handler(rw, r)

		m.RecordHTTPRequest(method, endpoint, rw.statusCode, time.Since(start))
	}
}

// InstrumentAuthMiddleware instruments the authentication middleware
func (m *Metrics) InstrumentAuthMiddleware(next func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hasAPIKey := r.Header.Get("X-API-Key") != ""

			rw := wrapResponseWriter(w)
			next(h).ServeHTTP(rw, r)

			if hasAPIKey {
				m.RecordAuthRequest(rw.statusCode != http.StatusUnauthorized)
			}
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
