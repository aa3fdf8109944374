package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/nlstn/go-odata-sql/internal/edm"
	"github.com/nlstn/go-odata-sql/internal/schema"
)

// SchemaSource reports table schemas. engine.Engine satisfies it.
type SchemaSource interface {
	Schema(ctx context.Context, table string) (schema.Schema, error)
}

// Entry is the cached view of one entity set.
type Entry struct {
	Binding Binding
	// Schema is the engine schema with the binding's overrides applied.
	Schema schema.Schema
	Type   *edm.EntityType
}

// CacheOptions configures a TypeCache.
type CacheOptions struct {
	Namespace string
	Logger    *slog.Logger
}

// TypeCache derives entity types lazily and keeps them until their binding changes.
// Concurrent first lookups of one entity set share a single derivation.
type TypeCache struct {
	source    SchemaSource
	registry  *Registry
	namespace string
	logger    *slog.Logger

	entries sync.Map // entity set -> *Entry
	group   singleflight.Group
	gen     atomic.Uint64

	mu        sync.RWMutex
	listeners []func(entitySet string)
}

// NewTypeCache returns a cache over the registry's bindings. It subscribes to the registry
// so that rebinding or unbinding an entity set invalidates its entry.
func NewTypeCache(source SchemaSource, registry *Registry, opts CacheOptions) *TypeCache {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &TypeCache{
		source:    source,
		registry:  registry,
		namespace: opts.Namespace,
		logger:    logger,
	}
	registry.Subscribe(func(ev Event) {
		c.Invalidate(ev.EntitySet)
	})
	return c
}

// Get returns the entry of an entity set, deriving it on first use.
func (c *TypeCache) Get(ctx context.Context, entitySet string) (*Entry, error) {
	if e, ok := c.entries.Load(entitySet); ok {
		return e.(*Entry), nil
	}

	ch := c.group.DoChan(entitySet, func() (any, error) {
		start := c.gen.Load()
		entry, err := c.derive(context.WithoutCancel(ctx), entitySet)
		if err != nil {
			return nil, err
		}
		if c.gen.Load() == start {
			c.entries.Store(entitySet, entry)
		}
		return entry, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Entry), nil
	}
}

func (c *TypeCache) derive(ctx context.Context, entitySet string) (*Entry, error) {
	b, err := c.registry.Lookup(entitySet)
	if err != nil {
		return nil, err
	}
	sch, err := c.source.Schema(ctx, b.Table)
	if err != nil {
		return nil, fmt.Errorf("catalog: schema of %s: %w", b.Table, err)
	}
	sch = applyOverrides(sch, b.Overrides)

	et, err := edm.DeriveEntityType(entitySet, sch, edm.DeriveOptions{
		Namespace:     c.namespace,
		Keys:          b.Keys,
		OnUnsupported: b.OnUnsupported,
		Logger:        c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	c.logger.Debug("Derived entity type", "entity_set", entitySet, "table", b.Table, "properties", len(et.Properties))
	return &Entry{Binding: b, Schema: sch, Type: et}, nil
}

func applyOverrides(sch schema.Schema, overrides map[string]schema.DataType) schema.Schema {
	if len(overrides) == 0 {
		return sch
	}
	fields := make([]schema.Field, len(sch.Fields))
	copy(fields, sch.Fields)
	for i := range fields {
		if dt, ok := overrides[fields[i].Name]; ok {
			fields[i].Type = dt
		}
	}
	sch.Fields = fields
	return sch
}

// All returns the entries of every bound entity set in entity-set order.
func (c *TypeCache) All(ctx context.Context) ([]*Entry, error) {
	bindings := c.registry.List()
	out := make([]*Entry, 0, len(bindings))
	for _, b := range bindings {
		e, err := c.Get(ctx, b.EntitySet)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Invalidate drops the entry of an entity set and notifies listeners.
func (c *TypeCache) Invalidate(entitySet string) {
	c.gen.Add(1)
	c.group.Forget(entitySet)
	c.entries.Delete(entitySet)

	c.mu.RLock()
	listeners := c.listeners
	c.mu.RUnlock()
	for _, fn := range listeners {
		fn(entitySet)
	}
}

// OnInvalidate registers fn to run after every invalidation.
func (c *TypeCache) OnInvalidate(fn func(entitySet string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners[:len(c.listeners):len(c.listeners)], fn)
}
