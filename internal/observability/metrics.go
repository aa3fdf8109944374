package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the OData-specific metric instruments.
type Metrics struct {
	requestDuration metric.Float64Histogram
	requestCount    metric.Int64Counter
	resultCount     metric.Int64Histogram
	engineDuration  metric.Float64Histogram
	dbQueryDuration metric.Float64Histogram
	errorCount      metric.Int64Counter
}

type instrumentFactory interface {
	Float64Histogram(name string, options ...metric.Float64HistogramOption) (metric.Float64Histogram, error)
	Int64Histogram(name string, options ...metric.Int64HistogramOption) (metric.Int64Histogram, error)
	Int64Counter(name string, options ...metric.Int64CounterOption) (metric.Int64Counter, error)
}

// NewMetrics creates a new Metrics instance with the given MeterProvider.
func NewMetrics(mp metric.MeterProvider) *Metrics {
	return newMetrics(mp.Meter(MeterName))
}

// newMetrics creates the instruments. An instrument whose options are rejected falls
// back to the bare name.
func newMetrics(meter instrumentFactory) *Metrics {
	m := &Metrics{}
	var err error

	m.requestDuration, err = meter.Float64Histogram(
		"odata.request.duration",
		metric.WithDescription("Duration of OData requests in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		m.requestDuration, _ = meter.Float64Histogram("odata.request.duration")
	}

	m.requestCount, err = meter.Int64Counter(
		"odata.request.count",
		metric.WithDescription("Total number of OData requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.requestCount, _ = meter.Int64Counter("odata.request.count")
	}

	m.resultCount, err = meter.Int64Histogram(
		"odata.result.count",
		metric.WithDescription("Number of entities returned per page"),
		metric.WithUnit("{entity}"),
	)
	if err != nil {
		m.resultCount, _ = meter.Int64Histogram("odata.result.count")
	}

	m.engineDuration, err = meter.Float64Histogram(
		"odata.engine.duration",
		metric.WithDescription("Duration of query engine calls in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		m.engineDuration, _ = meter.Float64Histogram("odata.engine.duration")
	}

	m.dbQueryDuration, err = meter.Float64Histogram(
		"odata.db.query.duration",
		metric.WithDescription("Duration of database queries in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		m.dbQueryDuration, _ = meter.Float64Histogram("odata.db.query.duration")
	}

	m.errorCount, err = meter.Int64Counter(
		"odata.error.count",
		metric.WithDescription("Total number of OData errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.errorCount, _ = meter.Int64Counter("odata.error.count")
	}

	return m
}

// RecordRequest records metrics for a completed request.
func (m *Metrics) RecordRequest(ctx context.Context, entitySet, operation string, statusCode int, duration time.Duration) {
	attrs := metric.WithAttributes(
		EntitySetAttr(entitySet),
		OperationAttr(operation),
		attribute.Int("http.status_code", statusCode),
	)
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.requestCount.Add(ctx, 1, attrs)
}

// RecordResultCount records the number of entities returned in one page.
func (m *Metrics) RecordResultCount(ctx context.Context, entitySet string, count int64) {
	m.resultCount.Record(ctx, count, metric.WithAttributes(EntitySetAttr(entitySet)))
}

// RecordEngineCall records the duration of an engine call.
func (m *Metrics) RecordEngineCall(ctx context.Context, operation, table string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("engine.operation", operation),
		TableAttr(table),
	)
	m.engineDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordDBQuery records metrics for a database query.
func (m *Metrics) RecordDBQuery(ctx context.Context, operation string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("db.operation", operation))
	m.dbQueryDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError(ctx context.Context, entitySet, operation, errorCode string) {
	attrs := metric.WithAttributes(
		EntitySetAttr(entitySet),
		OperationAttr(operation),
		ErrorCodeAttr(errorCode),
	)
	m.errorCount.Add(ctx, 1, attrs)
}
