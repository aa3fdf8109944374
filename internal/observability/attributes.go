// Package observability provides OpenTelemetry-based instrumentation for the OData service.
//
// It supports distributed tracing, metrics collection, and enhanced structured logging.
//
// All observability features are opt-in. When not configured, no-op implementations
// are used with zero performance overhead.
package observability

import "go.opentelemetry.io/otel/attribute"

// Instrumentation identity constants
const (
	// TracerName is the instrumentation name for tracing.
	TracerName = "github.com/nlstn/go-odata-sql"
	// MeterName is the instrumentation name for metrics.
	MeterName = "github.com/nlstn/go-odata-sql"
)

// OData semantic attribute keys following OpenTelemetry conventions.
const (
	// Entity attributes
	AttrEntitySet  = "odata.entity_set"
	AttrEntityKey  = "odata.entity_key"
	AttrEntityType = "odata.entity_type"
	AttrOperation  = "odata.operation"
	AttrTable      = "odata.table"

	// Query option attributes
	AttrQueryFilter  = "odata.query.filter"
	AttrQuerySelect  = "odata.query.select"
	AttrQueryOrderBy = "odata.query.orderby"
	AttrQueryTop     = "odata.query.top"
	AttrQuerySkip    = "odata.query.skip"
	AttrQueryCount   = "odata.query.count"
	AttrQueryFormat  = "odata.query.format"

	// Result attributes
	AttrResultCount = "odata.result.count"
	AttrHasNextLink = "odata.has_next_link"

	// Error attributes
	AttrErrorCode    = "odata.error.code"
	AttrErrorMessage = "odata.error.message"
)

// Operation types for the odata.operation attribute.
const (
	OpReadCollection = "read_collection"
	OpReadEntity     = "read_entity"
	OpCount          = "count"
	OpMetadata       = "metadata"
	OpServiceDoc     = "service_document"
)

// Log field keys for structured logging with trace context.
const (
	LogFieldEntitySet   = "odata.entity_set"
	LogFieldEntityKey   = "odata.entity_key"
	LogFieldOperation   = "odata.operation"
	LogFieldTraceID     = "trace_id"
	LogFieldSpanID      = "span_id"
	LogFieldDuration    = "duration_ms"
	LogFieldResultCount = "result_count"
	LogFieldError       = "error"
)

// EntitySetAttr creates an attribute for the entity set name.
func EntitySetAttr(name string) attribute.KeyValue {
	return attribute.String(AttrEntitySet, name)
}

// EntityKeyAttr creates an attribute for the entity key.
func EntityKeyAttr(key string) attribute.KeyValue {
	return attribute.String(AttrEntityKey, key)
}

// OperationAttr creates an attribute for the operation type.
func OperationAttr(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

// TableAttr creates an attribute for the engine table backing an entity set.
func TableAttr(table string) attribute.KeyValue {
	return attribute.String(AttrTable, table)
}

// ResultCountAttr creates an attribute for the result count.
func ResultCountAttr(count int64) attribute.KeyValue {
	return attribute.Int64(AttrResultCount, count)
}

// HasNextLinkAttr creates an attribute recording whether a next-link was emitted.
func HasNextLinkAttr(hasNext bool) attribute.KeyValue {
	return attribute.Bool(AttrHasNextLink, hasNext)
}

// QueryFilterAttr creates an attribute for the $filter expression.
func QueryFilterAttr(filter string) attribute.KeyValue {
	return attribute.String(AttrQueryFilter, filter)
}

// QuerySelectAttr creates an attribute for the $select expression.
func QuerySelectAttr(selectExpr string) attribute.KeyValue {
	return attribute.String(AttrQuerySelect, selectExpr)
}

// QueryOrderByAttr creates an attribute for the $orderby expression.
func QueryOrderByAttr(orderby string) attribute.KeyValue {
	return attribute.String(AttrQueryOrderBy, orderby)
}

// QueryTopAttr creates an attribute for the $top value.
func QueryTopAttr(top int64) attribute.KeyValue {
	return attribute.Int64(AttrQueryTop, top)
}

// QuerySkipAttr creates an attribute for the $skip value.
func QuerySkipAttr(skip int64) attribute.KeyValue {
	return attribute.Int64(AttrQuerySkip, skip)
}

// QueryCountAttr creates an attribute for $count.
func QueryCountAttr(count bool) attribute.KeyValue {
	return attribute.Bool(AttrQueryCount, count)
}

// QueryFormatAttr creates an attribute for the negotiated format.
func QueryFormatAttr(format string) attribute.KeyValue {
	return attribute.String(AttrQueryFormat, format)
}

// ErrorCodeAttr creates an attribute for the error code.
func ErrorCodeAttr(code string) attribute.KeyValue {
	return attribute.String(AttrErrorCode, code)
}
