package gateway

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/Missing" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_, _ = w.Write([]byte("ok"))
})

func serve(h http.Handler, target, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if remote != "" {
		req.RemoteAddr = remote
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(1, 2, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"), "burst exhausted")
	assert.True(t, rl.Allow("10.0.0.2"), "other clients have their own bucket")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("10.0.0.1"), "one token refilled")
	assert.False(t, rl.Allow("10.0.0.1"))
}

func TestRateLimiterDropsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1, 1, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	rl.Allow("b")
	require.Equal(t, 2, rl.Clients())

	now = now.Add(2 * time.Minute)
	rl.Allow("c")
	assert.Equal(t, 1, rl.Clients())
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(0.001, 1, time.Minute)
	var rejected []string
	rl.OnReject = func(client string) { rejected = append(rejected, client) }
	h := rl.Middleware(okHandler)

	assert.Equal(t, http.StatusOK, serve(h, "/People", "192.0.2.1:1234").Code)

	rec := serve(h, "/People", "192.0.2.1:5678")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), `"code":"TooManyRequests"`)
	assert.Equal(t, []string{"192.0.2.1"}, rejected)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", ClientIP(req))
}

func TestResourceKind(t *testing.T) {
	tests := map[string]string{
		"/":                 "service",
		"/$metadata":        "metadata",
		"/People":           "collection",
		"/People(1)":        "entity",
		"/People/$count":    "count",
		"/People(1)/Orders": "other",
	}
	for path, want := range tests {
		assert.Equal(t, want, resourceKind(path), path)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	h := m.Middleware(okHandler)

	serve(h, "/People", "")
	serve(h, "/People", "")
	serve(h, "/Missing", "")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("collection", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("collection", "GET", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlight))
}

func TestGateway(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := New(okHandler, Options{RequestsPerSecond: 0.001, Burst: 1, MetricsPath: "/metrics", Registry: reg})

	assert.Equal(t, "ok", serve(h, "/healthz", "").Body.String())
	assert.Equal(t, http.StatusOK, serve(h, "/People", "192.0.2.9:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, "/People", "192.0.2.9:2").Code)

	rec := serve(h, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, `odata_gateway_requests_total{code="429",method="GET",resource="collection"} 1`), text)
	assert.Contains(t, text, "odata_gateway_rate_limited_total 1")
}

func TestGatewayWithoutMiddleware(t *testing.T) {
	h := New(okHandler, Options{})
	assert.Equal(t, http.StatusOK, serve(h, "/People", "").Code)
	assert.Equal(t, "ok", serve(h, "/metrics", "").Body.String(), "metrics disabled, path reaches the service")
}
