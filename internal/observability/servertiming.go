package observability

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	servertiming "github.com/mitchellh/go-server-timing"
)

// ServerTimingMetric wraps the server-timing library's Metric type.
type ServerTimingMetric struct {
	metric *servertiming.Metric
}

// Stop stops the timing metric.
func (m *ServerTimingMetric) Stop() {
	if m != nil && m.metric != nil {
		m.metric.Stop()
	}
}

// StartServerTimingWithDesc starts a server-timing metric with a description.
// Without timing info in the context it returns a no-op metric.
func StartServerTimingWithDesc(ctx context.Context, name, description string) *ServerTimingMetric {
	timing := servertiming.FromContext(ctx)
	if timing == nil {
		return &ServerTimingMetric{}
	}
	return &ServerTimingMetric{
		metric: timing.NewMetric(name).WithDesc(description).Start(),
	}
}

// DBTimeAccumulator sums the time spent in database statements of one request.
// Page and count queries run concurrently, so Add is safe for concurrent use.
type DBTimeAccumulator struct {
	nanos atomic.Int64
}

// Add adds d to the total.
func (a *DBTimeAccumulator) Add(d time.Duration) {
	if a != nil {
		a.nanos.Add(int64(d))
	}
}

// Duration returns the accumulated time.
func (a *DBTimeAccumulator) Duration() time.Duration {
	if a == nil {
		return 0
	}
	return time.Duration(a.nanos.Load())
}

type dbTimeKey struct{}

// WithDBTimeAccumulator returns a context carrying a fresh accumulator.
func WithDBTimeAccumulator(ctx context.Context) context.Context {
	return context.WithValue(ctx, dbTimeKey{}, &DBTimeAccumulator{})
}

// DBTimeAccumulatorFromContext returns the accumulator of ctx, or nil.
func DBTimeAccumulatorFromContext(ctx context.Context) *DBTimeAccumulator {
	acc, _ := ctx.Value(dbTimeKey{}).(*DBTimeAccumulator)
	return acc
}

// AddDBTime adds d to the accumulator of ctx, if any.
func AddDBTime(ctx context.Context, d time.Duration) {
	DBTimeAccumulatorFromContext(ctx).Add(d)
}

// ServerTimingMiddleware adds a Server-Timing header to every response, including a
// "db" metric with the accumulated database time.
func ServerTimingMiddleware(next http.Handler) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithDBTimeAccumulator(r.Context())
		acc := DBTimeAccumulatorFromContext(ctx)
		timing := servertiming.FromContext(ctx)
		next.ServeHTTP(&dbTimingWriter{ResponseWriter: w, timing: timing, acc: acc}, r.WithContext(ctx))
	})
	return servertiming.Middleware(inner, nil)
}

// dbTimingWriter records the "db" metric just before the headers are written.
type dbTimingWriter struct {
	http.ResponseWriter
	timing  *servertiming.Header
	acc     *DBTimeAccumulator
	written bool
}

func (w *dbTimingWriter) record() {
	if w.written {
		return
	}
	w.written = true
	if w.timing != nil && w.acc.Duration() > 0 {
		w.timing.Add(&servertiming.Metric{
			Name:     "db",
			Duration: w.acc.Duration(),
			Desc:     "database",
		})
	}
}

func (w *dbTimingWriter) WriteHeader(code int) {
	w.record()
	w.ResponseWriter.WriteHeader(code)
}

func (w *dbTimingWriter) Write(p []byte) (int, error) {
	w.record()
	return w.ResponseWriter.Write(p)
}
