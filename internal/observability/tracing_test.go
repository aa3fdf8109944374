package observability

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestNewTracer(t *testing.T) {
	tp := tracenoop.NewTracerProvider()
	tracer := NewTracer(tp, "test-service")

	if tracer == nil {
		t.Fatal("NewTracer() should return non-nil tracer")
	}
	if tracer.serviceName != "test-service" {
		t.Errorf("serviceName = %q, want %q", tracer.serviceName, "test-service")
	}
}

func TestTracer_StartEntityRead(t *testing.T) {
	tracer := NewTracer(tracenoop.NewTracerProvider(), "test")

	for _, key := range []string{"", "123", "Region='eu',Number=7"} {
		ctx, span := tracer.StartEntityRead(context.Background(), "Products", "products", key)
		if ctx == nil {
			t.Errorf("StartEntityRead(%q) returned nil context", key)
		}
		span.End()
	}
}

func TestTracer_StartEngineCall(t *testing.T) {
	tracer := NewTracer(tracenoop.NewTracerProvider(), "test")

	ctx, span := tracer.StartEngineCall(context.Background(), "execute", "products")
	defer span.End()
	if ctx == nil {
		t.Error("StartEngineCall() should return non-nil context")
	}
}

func TestTracer_StartDBQuery(t *testing.T) {
	tracer := NewTracer(tracenoop.NewTracerProvider(), "test")

	ctx, span := tracer.StartDBQuery(context.Background(), "SELECT")
	defer span.End()
	if ctx == nil {
		t.Error("StartDBQuery() should return non-nil context")
	}
}

func TestTracer_SetHTTPStatus(t *testing.T) {
	tracer := NewTracer(tracenoop.NewTracerProvider(), "test")

	for _, status := range []int{http.StatusOK, http.StatusBadRequest, http.StatusInternalServerError} {
		ctx, span := tracer.StartSpan(context.Background(), "test")
		tracer.SetHTTPStatus(ctx, status)
		span.End()
	}
}

func TestTracer_AddQueryOptions_None(t *testing.T) {
	tracer := NewTracer(tracenoop.NewTracerProvider(), "test")

	_, span := tracer.StartSpan(context.Background(), "test")
	defer span.End()

	tracer.AddQueryOptions(span, QueryOptionText{})
}

func TestLoggerWithTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	if got := LoggerWithTrace(context.Background(), logger); got != logger {
		t.Error("LoggerWithTrace() without a span should return the logger unchanged")
	}

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	LoggerWithTrace(ctx, logger).Info("served")
	out := buf.String()
	if !strings.Contains(out, "trace_id=0102030405060708090a0b0c0d0e0f10") {
		t.Errorf("log line %q is missing trace_id", out)
	}
	if !strings.Contains(out, "span_id=0102030405060708") {
		t.Errorf("log line %q is missing span_id", out)
	}
}

func TestNewMetrics(t *testing.T) {
	metrics := NewMetrics(noopmetric.NewMeterProvider())
	if metrics == nil {
		t.Fatal("NewMetrics() should return non-nil metrics")
	}

	ctx := context.Background()
	metrics.RecordRequest(ctx, "Products", OpReadCollection, http.StatusOK, time.Second)
	metrics.RecordResultCount(ctx, "Products", 100)
	metrics.RecordEngineCall(ctx, "execute", "products", 3*time.Millisecond)
	metrics.RecordDBQuery(ctx, "SELECT", 50*time.Millisecond)
	metrics.RecordError(ctx, "Products", OpReadEntity, "EntityNotFound")
}

func TestConfigInitializeValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{"defaults", NewConfig(), false},
		{"versioned tracer", NewConfig(WithTracerProvider(tracenoop.NewTracerProvider()), WithServiceVersion("1.0.0")), false},
		{"empty service name", &Config{}, true},
		{"db tracing without tracer", NewConfig(WithDetailedDBTracing()), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Initialize()
			if (err != nil) != tt.wantErr {
				t.Errorf("Initialize() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil", nil},
		{"not initialized", NewConfig()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.cfg.Tracer() == nil {
				t.Error("Tracer() should return a noop tracer")
			}
			if tt.cfg.Metrics() == nil {
				t.Error("Metrics() should return noop metrics")
			}
		})
	}
}

func TestRegisterGORMCallbacks(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}

	// Disabled configurations register nothing.
	if err := RegisterGORMCallbacks(db, nil); err != nil {
		t.Fatalf("RegisterGORMCallbacks(nil) error = %v", err)
	}
	if db.Callback().Query().Get("odata:before_query") != nil {
		t.Error("nil config registered a query callback")
	}

	cfg := NewConfig(
		WithTracerProvider(tracenoop.NewTracerProvider()),
		WithMeterProvider(noopmetric.NewMeterProvider()),
		WithDetailedDBTracing(),
	)
	if err := cfg.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := RegisterGORMCallbacks(db, cfg); err != nil {
		t.Fatalf("RegisterGORMCallbacks() error = %v", err)
	}
	for _, name := range []string{"odata:before_query", "odata:after_query"} {
		if db.Callback().Query().Get(name) == nil {
			t.Errorf("query callback %q not registered", name)
		}
	}
	for _, name := range []string{"odata:before_row", "odata:after_row"} {
		if db.Callback().Row().Get(name) == nil {
			t.Errorf("row callback %q not registered", name)
		}
	}
	for _, name := range []string{"odata:before_raw", "odata:after_raw"} {
		if db.Callback().Raw().Get(name) == nil {
			t.Errorf("raw callback %q not registered", name)
		}
	}

	var n int64
	if err := db.Raw("SELECT 1").Scan(&n).Error; err != nil {
		t.Fatalf("query error = %v", err)
	}
	if n != 1 {
		t.Errorf("SELECT 1 = %d", n)
	}

	if err := db.Raw("SELECT * FROM missing_table").Scan(&n).Error; err == nil {
		t.Error("expected an error for a missing table")
	}
}
