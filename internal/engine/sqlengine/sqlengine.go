// Package sqlengine implements engine.Engine over a relational database through GORM.
// Filters are compiled to parameterized SQL; schemas come from the database catalog.
package sqlengine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nlstn/go-odata-sql/internal/engine"
	"github.com/nlstn/go-odata-sql/internal/schema"
)

// DefaultBatchSize is the number of rows per result batch.
const DefaultBatchSize = 1024

// Engine runs queries against a GORM connection. It is safe for concurrent use.
type Engine struct {
	db        *gorm.DB
	dialect   Dialect
	batchSize int
	logger    *slog.Logger

	mu        sync.RWMutex
	overrides map[string]map[string]schema.DataType
}

// Option configures an Engine.
type Option func(*Engine)

// WithBatchSize caps the rows per result batch.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithLogger sets the logger used for schema warnings.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New wraps an open GORM connection. The dialect is taken from the GORM dialector.
func New(db *gorm.DB, opts ...Option) (*Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlengine: nil database")
	}
	var dialect Dialect
	switch name := db.Name(); name {
	case "sqlite":
		dialect = DialectSQLite
	case "postgres":
		dialect = DialectPostgres
	default:
		return nil, fmt.Errorf("sqlengine: unsupported dialect %q", name)
	}
	e := &Engine{
		db:        db,
		dialect:   dialect,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
		overrides: make(map[string]map[string]schema.DataType),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Open connects to a database. driver is "sqlite" or "postgres".
func Open(driver, dsn string, opts ...Option) (*Engine, error) {
	var dialector gorm.Dialector
	switch Dialect(strings.ToLower(driver)) {
	case DialectSQLite:
		if dsn == "" {
			dsn = "file::memory:"
		}
		dialector = sqlite.Open(sqliteDSN(dsn))
	case DialectPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("sqlengine: postgres requires a DSN")
		}
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("sqlengine: unsupported driver %q, expected 'sqlite' or 'postgres'", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("sqlengine: open %s: %w", driver, err)
	}
	if strings.Contains(dsn, ":memory:") {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// Every connection to an in-memory database sees its own empty database.
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db, opts...)
}

// sqliteDSN makes LIKE case-sensitive, matching the OData string functions.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_cslike") || strings.Contains(dsn, "_case_sensitive_like") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_cslike=1"
}

// DB returns the underlying connection.
func (e *Engine) DB() *gorm.DB { return e.db }

// Dialect returns the SQL flavor in use.
func (e *Engine) Dialect() Dialect { return e.dialect }

// OverrideColumnType pins the native type of a column, for databases whose catalog
// cannot express it (e.g. decimal precision in SQLite).
func (e *Engine) OverrideColumnType(table, column string, dt schema.DataType) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cols, ok := e.overrides[table]
	if !ok {
		cols = make(map[string]schema.DataType)
		e.overrides[table] = cols
	}
	cols[column] = dt
}

func (e *Engine) override(table, column string) (schema.DataType, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	dt, ok := e.overrides[table][column]
	return dt, ok
}

// Tables implements engine.Engine.
func (e *Engine) Tables(ctx context.Context) ([]string, error) {
	names, err := e.db.WithContext(ctx).Migrator().GetTables()
	if err != nil {
		return nil, fmt.Errorf("sqlengine: list tables: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Schema implements engine.Engine.
func (e *Engine) Schema(ctx context.Context, table string) (schema.Schema, error) {
	m := e.db.WithContext(ctx).Migrator()
	if !m.HasTable(table) {
		if err := ctx.Err(); err != nil {
			return schema.Schema{}, err
		}
		return schema.Schema{}, fmt.Errorf("%w: %s", engine.ErrTableNotFound, table)
	}
	columns, err := m.ColumnTypes(table)
	if err != nil {
		return schema.Schema{}, fmt.Errorf("sqlengine: columns of %s: %w", table, err)
	}

	var sch schema.Schema
	for _, c := range columns {
		name := c.Name()
		dt, ok := e.override(table, name)
		if !ok {
			dt = e.columnType(c)
			if dt.Kind == schema.Unsupported {
				e.logger.Debug("Unmapped column type", "table", table, "column", name, "type", c.DatabaseTypeName())
			}
		}
		nullable, known := c.Nullable()
		isKey, _ := c.PrimaryKey()
		if isKey {
			sch.PrimaryKey = append(sch.PrimaryKey, name)
		}
		sch.Fields = append(sch.Fields, schema.Field{
			Name:     name,
			Type:     dt,
			Nullable: !isKey && (nullable || !known),
		})
	}
	return sch, nil
}

// columnType maps a catalog column. The declared type (NUMERIC(10,2)) is preferred over
// the bare type name, which drops the parameters on SQLite.
func (e *Engine) columnType(c gorm.ColumnType) schema.DataType {
	precision, scale, sized := c.DecimalSize()
	if declared, ok := c.ColumnType(); ok && strings.TrimSpace(declared) != "" {
		if dt := nativeType(e.dialect, declared, precision, scale, sized); dt.Kind != schema.Unsupported {
			return dt
		}
	}
	return nativeType(e.dialect, c.DatabaseTypeName(), precision, scale, sized)
}

// Execute implements engine.Engine.
func (e *Engine) Execute(ctx context.Context, q engine.Query) (*engine.Result, error) {
	if len(q.Projection) == 0 {
		return nil, fmt.Errorf("sqlengine: empty projection")
	}
	full, err := e.Schema(ctx, q.Table)
	if err != nil {
		return nil, err
	}
	projected, err := full.Project(q.Projection)
	if err != nil {
		return nil, fmt.Errorf("sqlengine: %w", err)
	}

	stmt, args, err := selectSQL(e.dialect, full, q)
	if err != nil {
		return nil, err
	}
	rows, err := e.db.WithContext(ctx).Raw(stmt, args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("sqlengine: query %s: %w", q.Table, err)
	}
	defer func() { _ = rows.Close() }()

	result := &engine.Result{Schema: projected}
	batch := make([]engine.Row, 0, e.batchSize)
	dest := make([]any, len(q.Projection))
	ptrs := make([]any, len(q.Projection))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("sqlengine: scan %s: %w", q.Table, err)
		}
		row := make(engine.Row, len(dest))
		for i, v := range dest {
			row[i] = convert(v, projected.Fields[i].Type)
		}
		batch = append(batch, row)
		if len(batch) == e.batchSize {
			result.Batches = append(result.Batches, batch)
			batch = make([]engine.Row, 0, e.batchSize)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlengine: read %s: %w", q.Table, err)
	}
	if len(batch) > 0 {
		result.Batches = append(result.Batches, batch)
	}
	return result, nil
}

// Count implements engine.Engine.
func (e *Engine) Count(ctx context.Context, q engine.CountQuery) (int64, error) {
	sch, err := e.Schema(ctx, q.Table)
	if err != nil {
		return 0, err
	}
	stmt, args, err := countSQL(e.dialect, sch, q)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := e.db.WithContext(ctx).Raw(stmt, args...).Scan(&n).Error; err != nil {
		return 0, fmt.Errorf("sqlengine: count %s: %w", q.Table, err)
	}
	return n, nil
}
