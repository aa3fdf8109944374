// Package catalog holds the entity-set bindings of a service and the entity types derived
// from them.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nlstn/go-odata-sql/internal/edm"
	"github.com/nlstn/go-odata-sql/internal/schema"
)

// Registry errors.
var (
	ErrUnknownEntitySet = errors.New("catalog: unknown entity set")
	ErrInvalidBinding   = errors.New("catalog: invalid binding")
)

// Binding exposes one engine table as an entity set.
type Binding struct {
	EntitySet string
	Table     string
	// Keys overrides the table's primary key when non-empty.
	Keys          []string
	OnUnsupported edm.OnUnsupported
	// Overrides pins native column types the engine cannot report.
	Overrides map[string]schema.DataType
}

// EventKind says how a binding changed.
type EventKind int

const (
	EventBound EventKind = iota
	EventUnbound
)

func (k EventKind) String() string {
	if k == EventUnbound {
		return "unbound"
	}
	return "bound"
}

// Event is delivered to subscribers after a binding changes.
type Event struct {
	Kind      EventKind
	EntitySet string
}

// Registry maps entity-set names to bindings. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	bindings    map[string]Binding
	subscribers []func(Event)
}

// NewRegistry returns a registry holding the given bindings.
func NewRegistry(bindings ...Binding) (*Registry, error) {
	r := &Registry{bindings: make(map[string]Binding, len(bindings))}
	for _, b := range bindings {
		if err := r.Bind(b); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func validate(b Binding) error {
	if b.EntitySet == "" {
		return fmt.Errorf("%w: entity set name is required", ErrInvalidBinding)
	}
	if b.Table == "" {
		return fmt.Errorf("%w: %s: table is required", ErrInvalidBinding, b.EntitySet)
	}
	if _, err := edm.ParseOnUnsupported(string(b.OnUnsupported)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidBinding, b.EntitySet, err)
	}
	return nil
}

// Bind adds or replaces a binding and notifies subscribers.
func (r *Registry) Bind(b Binding) error {
	if err := validate(b); err != nil {
		return err
	}
	b.Keys = append([]string(nil), b.Keys...)
	if b.Overrides != nil {
		overrides := make(map[string]schema.DataType, len(b.Overrides))
		for k, v := range b.Overrides {
			overrides[k] = v
		}
		b.Overrides = overrides
	}

	r.mu.Lock()
	r.bindings[b.EntitySet] = b
	subs := r.subscribers
	r.mu.Unlock()

	notify(subs, Event{Kind: EventBound, EntitySet: b.EntitySet})
	return nil
}

// Unbind removes a binding. It reports whether the entity set was bound.
func (r *Registry) Unbind(entitySet string) bool {
	r.mu.Lock()
	_, ok := r.bindings[entitySet]
	delete(r.bindings, entitySet)
	subs := r.subscribers
	r.mu.Unlock()

	if ok {
		notify(subs, Event{Kind: EventUnbound, EntitySet: entitySet})
	}
	return ok
}

// Lookup returns the binding of an entity set.
func (r *Registry) Lookup(entitySet string) (Binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[entitySet]
	if !ok {
		return Binding{}, fmt.Errorf("%w: %s", ErrUnknownEntitySet, entitySet)
	}
	return b, nil
}

// List returns all bindings sorted by entity-set name.
func (r *Registry) List() []Binding {
	r.mu.RLock()
	out := make([]Binding, 0, len(r.bindings))
	for _, b := range r.bindings {
		out = append(out, b)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].EntitySet < out[j].EntitySet })
	return out
}

// Subscribe registers fn to be called after every binding change. Callbacks run on the
// goroutine that changed the registry.
func (r *Registry) Subscribe(fn func(Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers[:len(r.subscribers):len(r.subscribers)], fn)
}

func notify(subs []func(Event), ev Event) {
	for _, fn := range subs {
		fn(ev)
	}
}
