package observability

import (
	"context"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry tracer with OData-specific span creation methods.
type Tracer struct {
	tracer      trace.Tracer
	serviceName string
}

// NewTracer creates a Tracer from tp. opts are passed to tp.Tracer.
func NewTracer(tp trace.TracerProvider, serviceName string, opts ...trace.TracerOption) *Tracer {
	return &Tracer{
		tracer:      tp.Tracer(TracerName, opts...),
		serviceName: serviceName,
	}
}

// StartSpan starts a new span with the given name and attributes.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartRequest starts the server span of an HTTP request.
func (t *Tracer) StartRequest(ctx context.Context, r *http.Request) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "odata.request",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.url", r.URL.String()),
			attribute.String("http.route", r.URL.Path),
		))
}

// StartEntityRead starts a span for reading a collection, or an entity when key is set.
func (t *Tracer) StartEntityRead(ctx context.Context, entitySet, table, key string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		EntitySetAttr(entitySet),
		TableAttr(table),
	}
	if key != "" {
		attrs = append(attrs, EntityKeyAttr(key), OperationAttr(OpReadEntity))
	} else {
		attrs = append(attrs, OperationAttr(OpReadCollection))
	}
	return t.tracer.Start(ctx, "odata.read", trace.WithAttributes(attrs...))
}

// StartEngineCall starts a span around one call into the query engine.
func (t *Tracer) StartEngineCall(ctx context.Context, operation, table string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "engine."+operation, trace.WithAttributes(
		attribute.String("engine.operation", operation),
		TableAttr(table),
	))
}

// StartDBQuery starts a span for a database query.
func (t *Tracer) StartDBQuery(ctx context.Context, operation string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "db.query", trace.WithAttributes(
		attribute.String("db.operation", operation),
	))
}

// SetHTTPStatus sets the HTTP status code on the current span.
func (t *Tracer) SetHTTPStatus(ctx context.Context, statusCode int) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Int("http.status_code", statusCode))
	if statusCode >= 500 {
		span.SetStatus(codes.Error, http.StatusText(statusCode))
	}
}

// RecordError records an error on the span.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// QueryOptionText is the raw text of the query options attached to request spans.
type QueryOptionText struct {
	Filter  string
	Select  string
	OrderBy string
	Top     *int64
	Skip    *int64
	Count   bool
	Format  string
}

// AddQueryOptions adds query option attributes to a span.
func (t *Tracer) AddQueryOptions(span trace.Span, q QueryOptionText) {
	var attrs []attribute.KeyValue
	if q.Filter != "" {
		attrs = append(attrs, QueryFilterAttr(q.Filter))
	}
	if q.Select != "" {
		attrs = append(attrs, QuerySelectAttr(q.Select))
	}
	if q.OrderBy != "" {
		attrs = append(attrs, QueryOrderByAttr(q.OrderBy))
	}
	if q.Top != nil {
		attrs = append(attrs, QueryTopAttr(*q.Top))
	}
	if q.Skip != nil {
		attrs = append(attrs, QuerySkipAttr(*q.Skip))
	}
	if q.Count {
		attrs = append(attrs, QueryCountAttr(true))
	}
	if q.Format != "" {
		attrs = append(attrs, QueryFormatAttr(q.Format))
	}
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
}

// LoggerWithTrace returns a logger enriched with trace context.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return logger
	}
	return logger.With(
		slog.String(LogFieldTraceID, span.SpanContext().TraceID().String()),
		slog.String(LogFieldSpanID, span.SpanContext().SpanID().String()),
	)
}
