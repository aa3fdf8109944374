package sqlengine

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nlstn/go-odata-sql/internal/engine"
	"github.com/nlstn/go-odata-sql/internal/schema"
)

// Dialect selects the SQL flavor emitted for a database.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// sqliteTimeLayout matches how the sqlite driver stores time.Time values.
const sqliteTimeLayout = "2006-01-02 15:04:05.999999999-07:00"

// sqliteInstantFormat is the STRFTIME format both sides of a SQLite timestamp comparison
// are normalized to. SQLite date functions resolve milliseconds.
const sqliteInstantFormat = "%Y-%m-%d %H:%M:%f"

// bytesArg keeps a []byte bind value from being expanded into a list by the statement
// builder.
type bytesArg []byte

func (b bytesArg) Value() (driver.Value, error) { return []byte(b), nil }

// compiler renders an engine.Expr as a parameterized SQL fragment.
type compiler struct {
	dialect Dialect
	schema  schema.Schema
	sb      strings.Builder
	args    []any
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (c *compiler) bind(v any) {
	c.sb.WriteByte('?')
	c.args = append(c.args, c.bindValue(v))
}

func (c *compiler) bindValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return bytesArg(x)
	case schema.CivilDate:
		if c.dialect == DialectPostgres {
			return x.Time()
		}
		return x.String()
	case schema.TimeOfDay:
		return x.String()
	case time.Time:
		if c.dialect == DialectSQLite {
			return x.UTC().Format(sqliteTimeLayout)
		}
		return x
	}
	return v
}

func (c *compiler) expr(e engine.Expr) error {
	switch x := e.(type) {
	case *engine.Column:
		c.sb.WriteString(quoteIdent(x.Name))

	case *engine.Literal:
		if x.Value == nil {
			c.sb.WriteString("NULL")
			return nil
		}
		c.bind(x.Value)

	case *engine.Compare:
		return c.binary(c.temporalKind(x.Left, x.Right), x.Left, string(x.Op), x.Right)

	case *engine.And:
		return c.join(x.Terms, " AND ")

	case *engine.Or:
		return c.join(x.Terms, " OR ")

	case *engine.Not:
		c.sb.WriteString("NOT (")
		if err := c.expr(x.Expr); err != nil {
			return err
		}
		c.sb.WriteByte(')')

	case *engine.IsNull:
		c.sb.WriteByte('(')
		if err := c.expr(x.Expr); err != nil {
			return err
		}
		c.sb.WriteString(" IS NULL)")

	case *engine.Like:
		c.sb.WriteByte('(')
		if err := c.expr(x.Expr); err != nil {
			return err
		}
		c.sb.WriteString(" LIKE ")
		c.bind(x.Pattern)
		if x.Escape != 0 {
			c.sb.WriteString(" ESCAPE '")
			c.sb.WriteString(strings.ReplaceAll(string(x.Escape), "'", "''"))
			c.sb.WriteByte('\'')
		}
		c.sb.WriteByte(')')

	case *engine.InList:
		kind := c.temporalKind(x.Expr)
		c.sb.WriteByte('(')
		if err := c.operand(kind, x.Expr); err != nil {
			return err
		}
		c.sb.WriteString(" IN (")
		for i, v := range x.Values {
			if i > 0 {
				c.sb.WriteString(", ")
			}
			if err := c.operand(kind, &engine.Literal{Value: v}); err != nil {
				return err
			}
		}
		c.sb.WriteString("))")

	case *engine.Call:
		return c.call(x)

	default:
		return fmt.Errorf("sqlengine: unsupported expression %T", e)
	}
	return nil
}

func (c *compiler) binary(kind schema.Kind, left engine.Expr, op string, right engine.Expr) error {
	c.sb.WriteByte('(')
	if err := c.operand(kind, left); err != nil {
		return err
	}
	c.sb.WriteByte(' ')
	c.sb.WriteString(op)
	c.sb.WriteByte(' ')
	if err := c.operand(kind, right); err != nil {
		return err
	}
	c.sb.WriteByte(')')
	return nil
}

// temporalKind returns schema.Date or schema.Timestamp when the operands are SQLite
// values of that kind. SQLite stores them as text in several layouts, so they are
// compared through its date functions. Other cases return schema.Unsupported.
func (c *compiler) temporalKind(operands ...engine.Expr) schema.Kind {
	if c.dialect != DialectSQLite {
		return schema.Unsupported
	}
	for _, e := range operands {
		switch x := e.(type) {
		case *engine.Column:
			if f, ok := c.schema.Field(x.Name); ok && (f.Type.Kind == schema.Date || f.Type.Kind == schema.Timestamp) {
				return f.Type.Kind
			}
		case *engine.Literal:
			switch x.Value.(type) {
			case schema.CivilDate:
				return schema.Date
			case time.Time:
				return schema.Timestamp
			}
		}
	}
	return schema.Unsupported
}

// operand writes e, normalized for kind.
func (c *compiler) operand(kind schema.Kind, e engine.Expr) error {
	switch kind {
	case schema.Date:
		c.sb.WriteString("DATE(")
	case schema.Timestamp:
		c.sb.WriteString("STRFTIME('" + sqliteInstantFormat + "', ")
	default:
		return c.expr(e)
	}
	if err := c.expr(e); err != nil {
		return err
	}
	c.sb.WriteByte(')')
	return nil
}

func (c *compiler) join(terms []engine.Expr, sep string) error {
	c.sb.WriteByte('(')
	for i, t := range terms {
		if i > 0 {
			c.sb.WriteString(sep)
		}
		if err := c.expr(t); err != nil {
			return err
		}
	}
	c.sb.WriteByte(')')
	return nil
}

var sqliteDateParts = map[string]string{
	"year": "%Y", "month": "%m", "day": "%d",
	"hour": "%H", "minute": "%M", "second": "%S",
}

func (c *compiler) call(x *engine.Call) error {
	arity := map[string]int{"concat": 2, "indexof": 2}
	want, ok := arity[x.Func]
	if !ok {
		want = 1
	}
	if len(x.Args) != want {
		return fmt.Errorf("sqlengine: %s expects %d argument(s), got %d", x.Func, want, len(x.Args))
	}

	switch x.Func {
	case "lower", "upper", "trim", "length":
		c.sb.WriteString(strings.ToUpper(x.Func))
		c.sb.WriteByte('(')
		if err := c.expr(x.Args[0]); err != nil {
			return err
		}
		c.sb.WriteByte(')')

	case "concat":
		return c.binary(schema.Unsupported, x.Args[0], "||", x.Args[1])

	case "indexof":
		if c.dialect == DialectPostgres {
			c.sb.WriteString("(STRPOS(")
		} else {
			c.sb.WriteString("(INSTR(")
		}
		if err := c.expr(x.Args[0]); err != nil {
			return err
		}
		c.sb.WriteString(", ")
		if err := c.expr(x.Args[1]); err != nil {
			return err
		}
		c.sb.WriteString(") - 1)")

	case "year", "month", "day", "hour", "minute", "second":
		if c.dialect == DialectPostgres {
			c.sb.WriteString("CAST(FLOOR(EXTRACT(")
			c.sb.WriteString(strings.ToUpper(x.Func))
			c.sb.WriteString(" FROM ")
			if err := c.expr(x.Args[0]); err != nil {
				return err
			}
			c.sb.WriteString(")) AS INTEGER)")
			return nil
		}
		c.sb.WriteString("CAST(STRFTIME('")
		c.sb.WriteString(sqliteDateParts[x.Func])
		c.sb.WriteString("', ")
		if err := c.expr(x.Args[0]); err != nil {
			return err
		}
		c.sb.WriteString(") AS INTEGER)")

	default:
		return fmt.Errorf("sqlengine: unknown function %q", x.Func)
	}
	return nil
}

// selectSQL renders the statement for q against a table with schema sch.
func selectSQL(dialect Dialect, sch schema.Schema, q engine.Query) (string, []any, error) {
	c := &compiler{dialect: dialect, schema: sch}
	c.sb.WriteString("SELECT ")
	for i, name := range q.Projection {
		if i > 0 {
			c.sb.WriteString(", ")
		}
		c.sb.WriteString(quoteIdent(name))
	}
	c.sb.WriteString(" FROM ")
	c.sb.WriteString(quoteIdent(q.Table))
	if q.Filter != nil {
		c.sb.WriteString(" WHERE ")
		if err := c.expr(q.Filter); err != nil {
			return "", nil, err
		}
	}
	if len(q.Sort) > 0 {
		c.sb.WriteString(" ORDER BY ")
		for i, k := range q.Sort {
			if i > 0 {
				c.sb.WriteString(", ")
			}
			sortCol := &engine.Column{Name: k.Column}
			if err := c.operand(c.temporalKind(sortCol), sortCol); err != nil {
				return "", nil, err
			}
			if k.Descending {
				c.sb.WriteString(" DESC NULLS LAST")
			} else {
				c.sb.WriteString(" ASC NULLS FIRST")
			}
		}
	}
	switch {
	case q.Limit >= 0:
		c.sb.WriteString(" LIMIT ")
		c.sb.WriteString(strconv.FormatInt(q.Limit, 10))
	case q.Offset > 0 && dialect == DialectSQLite:
		c.sb.WriteString(" LIMIT -1")
	}
	if q.Offset > 0 {
		c.sb.WriteString(" OFFSET ")
		c.sb.WriteString(strconv.FormatInt(q.Offset, 10))
	}
	return c.sb.String(), c.args, nil
}

// countSQL renders the COUNT(*) statement for q against a table with schema sch.
func countSQL(dialect Dialect, sch schema.Schema, q engine.CountQuery) (string, []any, error) {
	c := &compiler{dialect: dialect, schema: sch}
	c.sb.WriteString("SELECT COUNT(*) FROM ")
	c.sb.WriteString(quoteIdent(q.Table))
	if q.Filter != nil {
		c.sb.WriteString(" WHERE ")
		if err := c.expr(q.Filter); err != nil {
			return "", nil, err
		}
	}
	return c.sb.String(), c.args, nil
}
