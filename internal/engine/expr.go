package engine

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Expr is a node of the engine's logical filter tree. Literal values are canonical Go
// scalars: int64, float64, decimal.Decimal, bool, string, []byte, uuid.UUID,
// schema.CivilDate, schema.TimeOfDay or time.Time.
type Expr interface {
	fmt.Stringer
	expr()
}

// CompareOp is a binary comparison.
type CompareOp string

const (
	Eq CompareOp = "="
	Ne CompareOp = "<>"
	Gt CompareOp = ">"
	Ge CompareOp = ">="
	Lt CompareOp = "<"
	Le CompareOp = "<="
)

// Column references a table column.
type Column struct {
	Name string
}

// Literal is a constant.
type Literal struct {
	Value any
}

// Compare compares two scalar expressions. A null operand yields false.
type Compare struct {
	Op    CompareOp
	Left  Expr
	Right Expr
}

// And is the conjunction of its terms.
type And struct {
	Terms []Expr
}

// Or is the disjunction of its terms.
type Or struct {
	Terms []Expr
}

// Not negates a boolean expression.
type Not struct {
	Expr Expr
}

// IsNull tests for null.
type IsNull struct {
	Expr Expr
}

// Like matches a string against a SQL LIKE pattern where '%' and '_' are wildcards and
// Escape quotes them. Matching is case-sensitive.
type Like struct {
	Expr    Expr
	Pattern string
	Escape  rune
}

// Call applies one of the canonical scalar functions: lower, upper, trim, length,
// concat, indexof (0-based, -1 when absent), year, month, day, hour, minute, second.
type Call struct {
	Func string
	Args []Expr
}

// InList tests membership in a list of non-null literal values.
type InList struct {
	Expr   Expr
	Values []any
}

func (*Column) expr()  {}
func (*Literal) expr() {}
func (*Compare) expr() {}
func (*And) expr()     {}
func (*Or) expr()      {}
func (*Not) expr()     {}
func (*IsNull) expr()  {}
func (*Like) expr()    {}
func (*Call) expr()    {}
func (*InList) expr()  {}

func (c *Column) String() string  { return fmt.Sprintf("%q", c.Name) }
func (l *Literal) String() string { return formatValue(l.Value) }
func (c *Compare) String() string { return fmt.Sprintf("%s %s %s", c.Left, c.Op, c.Right) }
func (a *And) String() string     { return joinTerms(a.Terms, " AND ") }
func (o *Or) String() string      { return joinTerms(o.Terms, " OR ") }
func (n *Not) String() string     { return fmt.Sprintf("NOT (%s)", n.Expr) }
func (n *IsNull) String() string  { return fmt.Sprintf("%s IS NULL", n.Expr) }

func (l *Like) String() string {
	return fmt.Sprintf("%s LIKE %s ESCAPE '%c'", l.Expr, formatValue(l.Pattern), l.Escape)
}

func (c *Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return c.Func + "(" + strings.Join(args, ", ") + ")"
}

func (in *InList) String() string {
	values := make([]string, len(in.Values))
	for i, v := range in.Values {
		values[i] = formatValue(v)
	}
	return fmt.Sprintf("%s IN (%s)", in.Expr, strings.Join(values, ", "))
}

func joinTerms(terms []Expr, sep string) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = "(" + t.String() + ")"
	}
	return strings.Join(parts, sep)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case []byte:
		return fmt.Sprintf("X'%X'", x)
	case decimal.Decimal:
		return x.String()
	case fmt.Stringer:
		return "'" + x.String() + "'"
	}
	return fmt.Sprintf("%v", v)
}
