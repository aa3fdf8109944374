// Package gateway wraps the OData handler with the process-level HTTP concerns of the
// binary: per-client rate limiting, Prometheus metrics and a health endpoint.
package gateway

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Options configures New.
type Options struct {
	// RequestsPerSecond per client; 0 disables rate limiting.
	RequestsPerSecond float64
	Burst             int
	// MetricsPath serves the Prometheus endpoint; empty disables metrics.
	MetricsPath string
	// Registry receives the collectors. A fresh registry with Go and process collectors
	// is used when nil.
	Registry *prometheus.Registry
}

// New returns the gateway handler in front of service.
func New(service http.Handler, opts Options) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain;charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	var middleware []func(http.Handler) http.Handler
	var metrics *Metrics
	if opts.MetricsPath != "" {
		reg := opts.Registry
		if reg == nil {
			reg = prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		}
		metrics = NewMetrics(reg)
		mux.Handle("GET "+opts.MetricsPath, metrics.Handler())
		middleware = append(middleware, metrics.Middleware)
	}
	if opts.RequestsPerSecond > 0 {
		limiter := NewRateLimiter(opts.RequestsPerSecond, opts.Burst, 15*time.Minute)
		if metrics != nil {
			limiter.OnReject = metrics.IncRateLimited
		}
		middleware = append(middleware, limiter.Middleware)
	}

	mux.Handle("/", Chain(service, middleware...))
	return mux
}

// Chain applies middleware so that the first one is the outermost.
func Chain(h http.Handler, middleware ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}
