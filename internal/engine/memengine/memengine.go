// Package memengine is an in-memory engine.Engine used by tests and the demo dataset.
// It evaluates the engine filter tree with SQL semantics: comparisons involving null
// are unknown, and null sorts before every other value.
package memengine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nlstn/go-odata-sql/internal/engine"
	"github.com/nlstn/go-odata-sql/internal/schema"
)

// DefaultBatchSize is the number of rows per result batch.
const DefaultBatchSize = 1024

// checkEvery is how many rows are scanned between context checks.
const checkEvery = 256

type table struct {
	schema schema.Schema
	rows   []engine.Row
}

// Engine holds tables in memory. It is safe for concurrent use.
type Engine struct {
	mu     sync.RWMutex
	tables map[string]*table

	// BatchSize caps the rows per result batch; zero means DefaultBatchSize.
	BatchSize int
}

// New creates an empty engine.
func New() *Engine {
	return &Engine{tables: make(map[string]*table)}
}

// CreateTable creates or replaces a table. Each row must have one value per field.
func (e *Engine) CreateTable(name string, sch schema.Schema, rows ...engine.Row) error {
	for i, r := range rows {
		if len(r) != len(sch.Fields) {
			return fmt.Errorf("memengine: row %d of %s has %d values, want %d", i, name, len(r), len(sch.Fields))
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tables[name] = &table{schema: sch, rows: append([]engine.Row(nil), rows...)}
	return nil
}

// Insert appends rows to an existing table.
func (e *Engine) Insert(name string, rows ...engine.Row) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tables[name]
	if !ok {
		return fmt.Errorf("%w: %s", engine.ErrTableNotFound, name)
	}
	for i, r := range rows {
		if len(r) != len(t.schema.Fields) {
			return fmt.Errorf("memengine: row %d of %s has %d values, want %d", i, name, len(r), len(t.schema.Fields))
		}
	}
	t.rows = append(t.rows, rows...)
	return nil
}

// DropTable removes a table if it exists.
func (e *Engine) DropTable(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.tables, name)
}

func (e *Engine) table(name string) (*table, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrTableNotFound, name)
	}
	return t, nil
}

// Schema implements engine.Engine.
func (e *Engine) Schema(ctx context.Context, name string) (schema.Schema, error) {
	if err := ctx.Err(); err != nil {
		return schema.Schema{}, err
	}
	t, err := e.table(name)
	if err != nil {
		return schema.Schema{}, err
	}
	return t.schema, nil
}

// Tables implements engine.Engine.
func (e *Engine) Tables(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.tables))
	for name := range e.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// snapshot returns the table rows visible to one query.
func (e *Engine) snapshot(name string) (schema.Schema, []engine.Row, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tables[name]
	if !ok {
		return schema.Schema{}, nil, fmt.Errorf("%w: %s", engine.ErrTableNotFound, name)
	}
	return t.schema, t.rows[:len(t.rows):len(t.rows)], nil
}

// filterRows returns a new slice of the rows for which filter evaluates to true.
func filterRows(ctx context.Context, sch schema.Schema, rows []engine.Row, filter engine.Expr) ([]engine.Row, error) {
	if filter == nil {
		return append([]engine.Row(nil), rows...), nil
	}
	ev := newEvaluator(sch)
	out := make([]engine.Row, 0, len(rows))
	for i, r := range rows {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		ok, err := ev.test(filter, r)
		if err != nil {
			return nil, err
		}
		if ok == yes {
			out = append(out, r)
		}
	}
	return out, nil
}

// Execute implements engine.Engine.
func (e *Engine) Execute(ctx context.Context, q engine.Query) (*engine.Result, error) {
	sch, rows, err := e.snapshot(q.Table)
	if err != nil {
		return nil, err
	}
	projected, err := sch.Project(q.Projection)
	if err != nil {
		return nil, fmt.Errorf("memengine: %w", err)
	}

	rows, err = filterRows(ctx, sch, rows, q.Filter)
	if err != nil {
		return nil, err
	}
	if len(q.Sort) > 0 {
		if err := sortRows(sch, rows, q.Sort); err != nil {
			return nil, err
		}
	}

	start := min(max(q.Offset, 0), int64(len(rows)))
	end := int64(len(rows))
	if q.Limit >= 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	rows = rows[start:end]

	idx := make([]int, len(q.Projection))
	for i, name := range q.Projection {
		idx[i] = sch.Index(name)
	}

	batchSize := e.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	result := &engine.Result{Schema: projected}
	for len(rows) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := min(batchSize, len(rows))
		batch := make([]engine.Row, n)
		for i, r := range rows[:n] {
			out := make(engine.Row, len(idx))
			for j, k := range idx {
				out[j] = r[k]
			}
			batch[i] = out
		}
		result.Batches = append(result.Batches, batch)
		rows = rows[n:]
	}
	return result, nil
}

// Count implements engine.Engine.
func (e *Engine) Count(ctx context.Context, q engine.CountQuery) (int64, error) {
	sch, rows, err := e.snapshot(q.Table)
	if err != nil {
		return 0, err
	}
	rows, err = filterRows(ctx, sch, rows, q.Filter)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// sortRows sorts rows in place. Nulls sort first ascending, last descending.
func sortRows(sch schema.Schema, rows []engine.Row, keys []engine.SortKey) error {
	idx := make([]int, len(keys))
	for i, k := range keys {
		idx[i] = sch.Index(k.Column)
		if idx[i] < 0 {
			return fmt.Errorf("memengine: unknown column %q", k.Column)
		}
	}
	var sortErr error
	sort.SliceStable(rows, func(a, b int) bool {
		for i, k := range keys {
			c, err := compareNullable(rows[a][idx[i]], rows[b][idx[i]])
			if err != nil && sortErr == nil {
				sortErr = err
			}
			if c == 0 {
				continue
			}
			if k.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return sortErr
}

func compareNullable(a, b any) (int, error) {
	switch {
	case a == nil && b == nil:
		return 0, nil
	case a == nil:
		return -1, nil
	case b == nil:
		return 1, nil
	}
	return compareValues(a, b)
}
