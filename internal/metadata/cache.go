package metadata

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/nlstn/go-odata-sql/internal/edm"
)

// TypeSource returns the entity types of a service in entity-set order.
type TypeSource func(ctx context.Context) ([]*edm.EntityType, error)

// Cache holds the rendered document until Invalidate is called.
type Cache struct {
	namespace string
	source    TypeSource

	doc   atomic.Pointer[Document]
	gen   atomic.Uint64
	group singleflight.Group
}

// NewCache returns a cache rendering the types reported by source.
func NewCache(namespace string, source TypeSource) *Cache {
	return &Cache{namespace: namespace, source: source}
}

// Get returns the current document, rendering it if needed.
func (c *Cache) Get(ctx context.Context) (*Document, error) {
	if doc := c.doc.Load(); doc != nil {
		return doc, nil
	}

	ch := c.group.DoChan("document", func() (any, error) {
		start := c.gen.Load()
		types, err := c.source(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		doc, err := Build(c.namespace, types)
		if err != nil {
			return nil, err
		}
		if c.gen.Load() == start {
			c.doc.Store(doc)
		}
		return doc, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Document), nil
	}
}

// Invalidate discards the rendered document.
func (c *Cache) Invalidate() {
	c.gen.Add(1)
	c.group.Forget("document")
	c.doc.Store(nil)
}
