package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlstn/go-odata-sql/internal/edm"
	"github.com/nlstn/go-odata-sql/internal/schema"
)

type countingSource struct {
	calls   atomic.Int32
	delay   time.Duration
	schemas map[string]schema.Schema
}

func (s *countingSource) Schema(ctx context.Context, table string) (schema.Schema, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return schema.Schema{}, ctx.Err()
		}
	}
	sch, ok := s.schemas[table]
	if !ok {
		return schema.Schema{}, errors.New("no such table")
	}
	return sch, nil
}

func peopleSource() *countingSource {
	return &countingSource{schemas: map[string]schema.Schema{
		"people": {
			Fields: []schema.Field{
				{Name: "ID", Type: schema.DataType{Kind: schema.Int64}},
				{Name: "Name", Type: schema.DataType{Kind: schema.Utf8}, Nullable: true},
				{Name: "Born", Type: schema.DataType{Kind: schema.Utf8}, Nullable: true},
			},
			PrimaryKey: []string{"ID"},
		},
	}}
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(Binding{EntitySet: "People", Table: "people"}, Binding{EntitySet: "Accounts", Table: "accounts"})
	require.NoError(t, err)

	var events []Event
	r.Subscribe(func(ev Event) { events = append(events, ev) })

	b, err := r.Lookup("People")
	require.NoError(t, err)
	assert.Equal(t, "people", b.Table)

	_, err = r.Lookup("Nope")
	assert.ErrorIs(t, err, ErrUnknownEntitySet)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "Accounts", list[0].EntitySet)

	assert.True(t, r.Unbind("Accounts"))
	assert.False(t, r.Unbind("Accounts"))
	require.NoError(t, r.Bind(Binding{EntitySet: "People", Table: "people_v2"}))

	assert.Equal(t, []Event{{Kind: EventUnbound, EntitySet: "Accounts"}, {Kind: EventBound, EntitySet: "People"}}, events)

	assert.ErrorIs(t, r.Bind(Binding{EntitySet: "X"}), ErrInvalidBinding)
	assert.ErrorIs(t, r.Bind(Binding{Table: "x"}), ErrInvalidBinding)
	assert.ErrorIs(t, r.Bind(Binding{EntitySet: "X", Table: "x", OnUnsupported: "explode"}), ErrInvalidBinding)
}

func TestTypeCache(t *testing.T) {
	t.Run("derives once and applies overrides", func(t *testing.T) {
		src := peopleSource()
		r, err := NewRegistry(Binding{
			EntitySet: "People",
			Table:     "people",
			Overrides: map[string]schema.DataType{"Born": {Kind: schema.Date}},
		})
		require.NoError(t, err)
		c := NewTypeCache(src, r, CacheOptions{Namespace: "default"})

		e, err := c.Get(context.Background(), "People")
		require.NoError(t, err)
		born, ok := e.Type.Property("Born")
		require.True(t, ok)
		assert.Equal(t, edm.TypeDate, born.Type)
		assert.Equal(t, "default.People", e.Type.QualifiedName())

		_, err = c.Get(context.Background(), "People")
		require.NoError(t, err)
		assert.Equal(t, int32(1), src.calls.Load())
	})

	t.Run("concurrent first access derives once", func(t *testing.T) {
		src := peopleSource()
		src.delay = 20 * time.Millisecond
		r, err := NewRegistry(Binding{EntitySet: "People", Table: "people"})
		require.NoError(t, err)
		c := NewTypeCache(src, r, CacheOptions{})

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := c.Get(context.Background(), "People")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), src.calls.Load())
	})

	t.Run("rebinding invalidates", func(t *testing.T) {
		src := peopleSource()
		r, err := NewRegistry(Binding{EntitySet: "People", Table: "people"})
		require.NoError(t, err)
		c := NewTypeCache(src, r, CacheOptions{})

		var invalidated []string
		c.OnInvalidate(func(set string) { invalidated = append(invalidated, set) })

		_, err = c.Get(context.Background(), "People")
		require.NoError(t, err)
		require.NoError(t, r.Bind(Binding{EntitySet: "People", Table: "people", Keys: []string{"ID"}}))
		_, err = c.Get(context.Background(), "People")
		require.NoError(t, err)

		assert.Equal(t, int32(2), src.calls.Load())
		assert.Equal(t, []string{"People"}, invalidated)

		r.Unbind("People")
		_, err = c.Get(context.Background(), "People")
		assert.ErrorIs(t, err, ErrUnknownEntitySet)
	})

	t.Run("derivation errors are not cached", func(t *testing.T) {
		src := peopleSource()
		r, err := NewRegistry(Binding{EntitySet: "Ghosts", Table: "ghosts"})
		require.NoError(t, err)
		c := NewTypeCache(src, r, CacheOptions{})

		_, err = c.Get(context.Background(), "Ghosts")
		require.Error(t, err)
		_, err = c.Get(context.Background(), "Ghosts")
		require.Error(t, err)
		assert.Equal(t, int32(2), src.calls.Load())
	})

	t.Run("caller cancellation", func(t *testing.T) {
		src := peopleSource()
		src.delay = time.Second
		r, err := NewRegistry(Binding{EntitySet: "People", Table: "people"})
		require.NoError(t, err)
		c := NewTypeCache(src, r, CacheOptions{})

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err = c.Get(ctx, "People")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("all in entity-set order", func(t *testing.T) {
		src := peopleSource()
		r, err := NewRegistry(Binding{EntitySet: "Zeta", Table: "people"}, Binding{EntitySet: "Alpha", Table: "people"})
		require.NoError(t, err)
		c := NewTypeCache(src, r, CacheOptions{})

		all, err := c.All(context.Background())
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "Alpha", all[0].Type.Name)
		assert.Equal(t, "Zeta", all[1].Type.Name)
	})
}
