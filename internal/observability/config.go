package observability

import (
	"errors"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultServiceName identifies the gateway in traces when no name is configured.
const DefaultServiceName = "odata-gateway"

// Config selects the telemetry of a service. A zero Config records nothing.
type Config struct {
	// TracerProvider receives the request, engine and statement spans. Nil disables tracing.
	TracerProvider trace.TracerProvider

	// MeterProvider receives the request and engine instruments. Nil disables metrics.
	MeterProvider metric.MeterProvider

	ServiceName string

	// ServiceVersion is reported as the instrumentation version of the tracer.
	ServiceVersion string

	// EnableDetailedDBTracing adds one span per SQL statement issued by the SQL engine.
	EnableDetailedDBTracing bool

	// EnableQueryOptionTracing copies the system query options
	// onto the request span. Filter text may contain user data.
	EnableQueryOptionTracing bool

	// EnableServerTiming adds a Server-Timing header with engine and database durations.
	EnableServerTiming bool

	tracer  *Tracer
	metrics *Metrics
}

// Option configures a Config built by NewConfig.
type Option func(*Config)

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Config) { c.TracerProvider = tp }
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Config) { c.MeterProvider = mp }
}

func WithServiceName(name string) Option {
	return func(c *Config) { c.ServiceName = name }
}

func WithServiceVersion(version string) Option {
	return func(c *Config) { c.ServiceVersion = version }
}

func WithDetailedDBTracing() Option {
	return func(c *Config) { c.EnableDetailedDBTracing = true }
}

func WithQueryOptionTracing() Option {
	return func(c *Config) { c.EnableQueryOptionTracing = true }
}

func WithServerTiming() Option {
	return func(c *Config) { c.EnableServerTiming = true }
}

// NewConfig returns a Config named DefaultServiceName with opts applied.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{ServiceName: DefaultServiceName}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Initialize builds the tracer and instruments. Missing providers fall back to no-ops.
func (c *Config) Initialize() error {
	if c.ServiceName == "" {
		return errors.New("service name is required")
	}
	if c.EnableDetailedDBTracing && c.TracerProvider == nil {
		return errors.New("detailed DB tracing requires a tracer provider")
	}

	c.tracer = NewNoopTracer()
	if c.TracerProvider != nil {
		var opts []trace.TracerOption
		if c.ServiceVersion != "" {
			opts = append(opts, trace.WithInstrumentationVersion(c.ServiceVersion))
		}
		c.tracer = NewTracer(c.TracerProvider, c.ServiceName, opts...)
	}

	c.metrics = NewNoopMetrics()
	if c.MeterProvider != nil {
		c.metrics = NewMetrics(c.MeterProvider)
	}
	return nil
}

// Tracer returns the initialized tracer, or a no-op tracer.
func (c *Config) Tracer() *Tracer {
	if c == nil || c.tracer == nil {
		return NewNoopTracer()
	}
	return c.tracer
}

// Metrics returns the initialized instruments, or no-op instruments.
func (c *Config) Metrics() *Metrics {
	if c == nil || c.metrics == nil {
		return NewNoopMetrics()
	}
	return c.metrics
}

// IsEnabled reports whether spans or metrics are exported.
func (c *Config) IsEnabled() bool {
	return c != nil && (c.TracerProvider != nil || c.MeterProvider != nil)
}

func (c *Config) ServerTimingEnabled() bool {
	return c != nil && c.EnableServerTiming
}
