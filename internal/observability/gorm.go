package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	gormSpanKey             = "odata:gorm:span"
	gormStartTimeKey        = "odata:gorm:start"
	gormTimingStartKey      = "odata:gorm:timing_start"
	gormTimingCallbacksName = "odata_server_timing"
)

// readChain is one of the GORM callback chains a read-only engine goes through.
type readChain struct {
	name      string
	operation string
	before    func(name string, fn func(*gorm.DB)) error
	after     func(name string, fn func(*gorm.DB)) error
}

func readChains(db *gorm.DB) []readChain {
	cb := db.Callback()
	return []readChain{
		{"query", "SELECT", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"row", "ROW", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", "RAW", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}
}

// RegisterGORMCallbacks registers GORM callbacks that trace the statements issued by
// the SQL engine. It does nothing unless detailed DB tracing is enabled.
func RegisterGORMCallbacks(db *gorm.DB, cfg *Config) error {
	if cfg == nil || cfg.TracerProvider == nil || !cfg.EnableDetailedDBTracing {
		return nil
	}
	tracer := cfg.Tracer()

	for _, c := range readChains(db) {
		if err := c.before("odata:before_"+c.name, beforeStatement(tracer, c.operation)); err != nil {
			return err
		}
		if err := c.after("odata:after_"+c.name, afterStatement(tracer, cfg, c.operation)); err != nil {
			return err
		}
	}
	return nil
}

// RegisterServerTimingCallbacks registers GORM callbacks that add statement durations
// to the request's DBTimeAccumulator, reported as the "db" Server-Timing metric.
// It works without OpenTelemetry.
func RegisterServerTimingCallbacks(db *gorm.DB) error {
	for _, c := range readChains(db) {
		if err := c.before(gormTimingCallbacksName+":before_"+c.name, beforeTiming); err != nil {
			return err
		}
		if err := c.after(gormTimingCallbacksName+":after_"+c.name, afterTiming); err != nil {
			return err
		}
	}
	return nil
}

func beforeTiming(db *gorm.DB) {
	db.InstanceSet(gormTimingStartKey, time.Now())
}

func afterTiming(db *gorm.DB) {
	startTimeVal, ok := db.InstanceGet(gormTimingStartKey)
	if !ok {
		return
	}
	startTime, ok := startTimeVal.(time.Time)
	if !ok {
		return
	}
	if db.Statement != nil && db.Statement.Context != nil {
		AddDBTime(db.Statement.Context, time.Since(startTime))
	}
}

func beforeStatement(tracer *Tracer, operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, span := tracer.StartDBQuery(ctx, operation)
		span.SetAttributes(attribute.String("db.system", db.Dialector.Name()))
		db.Statement.Context = ctx
		db.InstanceSet(gormSpanKey, span)
		db.InstanceSet(gormStartTimeKey, time.Now())
	}
}

func afterStatement(tracer *Tracer, cfg *Config, operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		spanVal, ok := db.InstanceGet(gormSpanKey)
		if !ok {
			return
		}
		span, ok := spanVal.(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		if db.Statement != nil {
			if db.Statement.Table != "" {
				span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
			}
			span.SetAttributes(attribute.Int64("db.rows_affected", db.RowsAffected))
		}
		tracer.RecordError(span, db.Error)

		if startTimeVal, ok := db.InstanceGet(gormStartTimeKey); ok {
			if startTime, ok := startTimeVal.(time.Time); ok {
				cfg.Metrics().RecordDBQuery(db.Statement.Context, operation, time.Since(startTime))
			}
		}
	}
}
