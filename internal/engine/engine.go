// Package engine defines the contract between the OData layer and the query engine that
// owns the data, together with the logical filter tree handed to it.
package engine

import (
	"context"
	"errors"

	"github.com/nlstn/go-odata-sql/internal/schema"
)

// ErrTableNotFound is returned when a table does not exist in the engine.
var ErrTableNotFound = errors.New("engine: table not found")

// Engine executes logical queries. All methods honor ctx cancellation.
type Engine interface {
	// Schema returns the native schema of a table.
	Schema(ctx context.Context, table string) (schema.Schema, error)
	// Execute runs a query and returns its rows in batches.
	Execute(ctx context.Context, q Query) (*Result, error)
	// Count returns the number of rows matching the filter.
	Count(ctx context.Context, q CountQuery) (int64, error)
	// Tables lists the table names known to the engine.
	Tables(ctx context.Context) ([]string, error)
}

// SortKey orders by one column.
type SortKey struct {
	Column     string
	Descending bool
}

// Query is a projection over one table. A nil Filter matches every row; Limit < 0
// means no limit.
type Query struct {
	Table      string
	Projection []string
	Filter     Expr
	Sort       []SortKey
	Limit      int64
	Offset     int64
}

// CountQuery counts the rows of a table matching Filter.
type CountQuery struct {
	Table  string
	Filter Expr
}

// Row holds one value per projected column, in projection order.
type Row []any

// Result is the output of Execute. Schema describes the projected columns.
type Result struct {
	Schema  schema.Schema
	Batches [][]Row
}

// Rows flattens the batches.
func (r *Result) Rows() []Row {
	if r == nil {
		return nil
	}
	var n int
	for _, b := range r.Batches {
		n += len(b)
	}
	rows := make([]Row, 0, n)
	for _, b := range r.Batches {
		rows = append(rows, b...)
	}
	return rows
}

// NumRows returns the total row count over all batches.
func (r *Result) NumRows() int {
	if r == nil {
		return 0
	}
	var n int
	for _, b := range r.Batches {
		n += len(b)
	}
	return n
}
