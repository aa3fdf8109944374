package gateway

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports request counters and latencies in the Prometheus format.
type Metrics struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inFlight    prometheus.Gauge
	rateLimited prometheus.Counter
	handler     http.Handler
}

// NewMetrics registers the gateway collectors on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "odata_gateway_requests_total",
				Help: "Total number of OData requests by resource kind, method and status code",
			},
			[]string{"resource", "method", "code"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "odata_gateway_request_duration_seconds",
				Help:    "Latency of OData requests by resource kind",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"resource"},
		),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "odata_gateway_requests_in_flight",
			Help: "Number of OData requests being served",
		}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "odata_gateway_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		}),
		handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	}
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return m.handler
}

// IncRateLimited counts one rejected request.
func (m *Metrics) IncRateLimited(string) {
	m.rateLimited.Inc()
}

// Middleware records every request passing through next.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		resource := resourceKind(r.URL.Path)
		m.requests.WithLabelValues(resource, r.Method, strconv.Itoa(rec.status)).Inc()
		m.duration.WithLabelValues(resource).Observe(time.Since(start).Seconds())
	})
}

// resourceKind classifies a path without using entity-set names as label values.
func resourceKind(path string) string {
	path = strings.Trim(path, "/")
	switch {
	case path == "":
		return "service"
	case path == "$metadata":
		return "metadata"
	case strings.HasSuffix(path, "/$count"):
		return "count"
	case strings.Contains(path, "/"):
		return "other"
	case strings.HasSuffix(path, ")"):
		return "entity"
	}
	return "collection"
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
