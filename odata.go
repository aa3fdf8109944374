// Package odata exposes tables of a SQL or columnar query engine as a read-only OData v4
// service. Tables are bound to entity sets; entity types are derived from the engine
// schema on first use and served as EDMX metadata, JSON and Atom feeds.
package odata

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/nlstn/go-odata-sql/internal/catalog"
	"github.com/nlstn/go-odata-sql/internal/edm"
	"github.com/nlstn/go-odata-sql/internal/engine"
	"github.com/nlstn/go-odata-sql/internal/engine/sqlengine"
	"github.com/nlstn/go-odata-sql/internal/metadata"
	"github.com/nlstn/go-odata-sql/internal/observability"
	"github.com/nlstn/go-odata-sql/internal/schema"
)

// DefaultNamespace is used when no explicit namespace is configured for the service.
const DefaultNamespace = "default"

// Binding exposes one engine table as an entity set.
type Binding = catalog.Binding

// Config holds the read-only settings of a service.
type Config struct {
	// Namespace of the entity types in the metadata document.
	Namespace string
	// DefaultPageSize bounds collection pages when the client sends no $top.
	// Zero means unbounded.
	DefaultPageSize int64
	// MaxPageSize caps every page, including explicit $top values. Zero means no cap.
	MaxPageSize int64
	// ServiceRoot is the absolute service URL used in context and next links. When
	// empty it is derived from each request's scheme and host.
	ServiceRoot string
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Clock stamps the Atom updated elements. Defaults to time.Now.
	Clock func() time.Time
}

// columnTypeOverrider is implemented by engines that accept native type overrides for
// columns whose declared type is not precise enough.
type columnTypeOverrider interface {
	OverrideColumnType(table, column string, dt schema.DataType)
}

// Service represents a read-only OData service over one engine.
type Service struct {
	// engine runs the translated queries
	engine engine.Engine
	// registry maps entity-set names to tables
	registry *catalog.Registry
	// types derives and caches entity types per entity set
	types *catalog.TypeCache
	// metadata caches the rendered metadata documents
	metadata *metadata.Cache

	namespace       string
	defaultPageSize int64
	maxPageSize     int64
	serviceRoot     string
	clock           func() time.Time

	// logger is used for structured logging throughout the service
	logger *slog.Logger

	observability *observability.Config
	tracer        *observability.Tracer
	metrics       *observability.Metrics
	// handler is the HTTP entry point, wrapped by Server-Timing when enabled
	handler http.Handler
}

// NewService creates a service over a GORM connection (SQLite or PostgreSQL).
func NewService(db *gorm.DB, cfg Config, bindings ...Binding) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("odata: database handle is required")
	}
	eng, err := sqlengine.New(db, sqlengine.WithLogger(cfg.Logger))
	if err != nil {
		return nil, fmt.Errorf("odata: %w", err)
	}
	return NewServiceWithEngine(eng, cfg, bindings...)
}

// NewServiceWithEngine creates a service over any engine implementation.
func NewServiceWithEngine(eng engine.Engine, cfg Config, bindings ...Binding) (*Service, error) {
	if eng == nil {
		return nil, fmt.Errorf("odata: engine is required")
	}
	if cfg.DefaultPageSize < 0 || cfg.MaxPageSize < 0 {
		return nil, fmt.Errorf("odata: page sizes must not be negative")
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	registry, err := catalog.NewRegistry()
	if err != nil {
		return nil, err
	}
	s := &Service{
		engine:          eng,
		registry:        registry,
		namespace:       namespace,
		defaultPageSize: cfg.DefaultPageSize,
		maxPageSize:     cfg.MaxPageSize,
		serviceRoot:     normalizeRoot(cfg.ServiceRoot),
		clock:           clock,
		logger:          logger,
		tracer:          observability.NewNoopTracer(),
		metrics:         observability.NewNoopMetrics(),
	}
	s.types = catalog.NewTypeCache(eng, registry, catalog.CacheOptions{Namespace: namespace, Logger: logger})
	s.metadata = metadata.NewCache(namespace, s.entityTypes)
	s.types.OnInvalidate(func(string) { s.metadata.Invalidate() })
	s.handler = http.HandlerFunc(s.serveHTTP)

	for _, b := range bindings {
		if err := s.Bind(b); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func normalizeRoot(root string) string {
	if root != "" && root[len(root)-1] != '/' {
		return root + "/"
	}
	return root
}

// SetLogger sets a custom logger for the service.
// If not called, the logger from Config or slog.Default() is used.
func (s *Service) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s.logger = logger
}

// Bind exposes a table as an entity set, replacing any binding of the same name. The
// cached entity type and metadata document are rebuilt on next use.
func (s *Service) Bind(b Binding) error {
	if o, ok := s.engine.(columnTypeOverrider); ok {
		for column, dt := range b.Overrides {
			o.OverrideColumnType(b.Table, column, dt)
		}
	}
	if err := s.registry.Bind(b); err != nil {
		return fmt.Errorf("odata: %w", err)
	}
	s.logger.Debug("Bound entity set", "entity_set", b.EntitySet, "table", b.Table)
	return nil
}

// Unbind removes an entity set. It reports whether the set was bound.
func (s *Service) Unbind(entitySet string) bool {
	return s.registry.Unbind(entitySet)
}

// BindAllTables binds every engine table that is not bound yet under its own name.
func (s *Service) BindAllTables(ctx context.Context, onUnsupported edm.OnUnsupported) error {
	tables, err := s.engine.Tables(ctx)
	if err != nil {
		return engineError("tables", err)
	}
	bound := make(map[string]bool)
	for _, b := range s.registry.List() {
		bound[b.Table] = true
		bound[b.EntitySet] = true
	}
	for _, table := range tables {
		if bound[table] {
			continue
		}
		if err := s.Bind(Binding{EntitySet: table, Table: table, OnUnsupported: onUnsupported}); err != nil {
			return err
		}
	}
	return nil
}

// EntitySets returns the bound entity-set names in sorted order.
func (s *Service) EntitySets() []string {
	bindings := s.registry.List()
	names := make([]string, len(bindings))
	for i, b := range bindings {
		names[i] = b.EntitySet
	}
	return names
}

// Namespace returns the namespace of the service's entity types.
func (s *Service) Namespace() string {
	return s.namespace
}

// entityTypes feeds the metadata cache.
func (s *Service) entityTypes(ctx context.Context) ([]*edm.EntityType, error) {
	entries, err := s.types.All(ctx)
	if err != nil {
		return nil, err
	}
	types := make([]*edm.EntityType, len(entries))
	for i, e := range entries {
		types[i] = e.Type
	}
	return types, nil
}

// ObservabilityConfig configures tracing, metrics and Server-Timing.
type ObservabilityConfig = observability.Config

// SetObservability enables observability for the service. For GORM-backed services it
// also registers the statement callbacks that feed DB spans and the "db" Server-Timing
// metric.
func (s *Service) SetObservability(cfg ObservabilityConfig) error {
	c := cfg
	if c.ServiceName == "" {
		c.ServiceName = observability.DefaultServiceName
	}
	if err := c.Initialize(); err != nil {
		return fmt.Errorf("odata: observability: %w", err)
	}

	if sql, ok := s.engine.(*sqlengine.Engine); ok {
		if c.IsEnabled() {
			if err := observability.RegisterGORMCallbacks(sql.DB(), &c); err != nil {
				return fmt.Errorf("odata: gorm tracing callbacks: %w", err)
			}
		}
		if c.EnableServerTiming {
			if err := observability.RegisterServerTimingCallbacks(sql.DB()); err != nil {
				return fmt.Errorf("odata: server timing callbacks: %w", err)
			}
		}
	}

	s.observability = &c
	s.tracer = c.Tracer()
	s.metrics = c.Metrics()
	s.handler = http.HandlerFunc(s.serveHTTP)
	if c.ServerTimingEnabled() {
		s.handler = observability.ServerTimingMiddleware(s.handler)
	}
	return nil
}

// Observability returns the observability configuration, or nil when not configured.
func (s *Service) Observability() *ObservabilityConfig {
	return s.observability
}
