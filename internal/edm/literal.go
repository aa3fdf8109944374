package edm

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nlstn/go-odata-sql/internal/schema"
)

// Literal is a typed constant from a URL expression.
//
// Value holds int64 for Int32/Int64, decimal.Decimal, float64 for Single/Double, bool,
// string, []byte, uuid.UUID, schema.CivilDate, schema.TimeOfDay, time.Time, or nil for null.
type Literal struct {
	Type  string
	Value any
	// Digits is the number of fractional second digits written in a temporal literal.
	Digits int
	// Naive marks a datetime literal written without an offset; it is read as UTC.
	Naive bool
	// Raw is the literal as it appeared in the URL.
	Raw string
}

// NullLiteral returns the null literal.
func NullLiteral() Literal {
	return Literal{Type: TypeNull, Raw: "null"}
}

// IsNull reports whether the literal is null.
func (l Literal) IsNull() bool {
	return l.Type == TypeNull
}

// Equal compares two literals by type and value.
func (l Literal) Equal(o Literal) bool {
	if l.Type != o.Type || l.Naive != o.Naive {
		return false
	}
	return ValuesEqual(l.Value, o.Value)
}

func (l Literal) String() string {
	if l.Raw != "" {
		return l.Raw
	}
	if l.IsNull() {
		return "null"
	}
	return fmt.Sprintf("%v", l.Value)
}

// ValuesEqual compares two native scalars. Temporal values must agree on instant and offset.
func ValuesEqual(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case decimal.Decimal:
		bv, ok := b.(decimal.Decimal)
		return ok && av.Equal(bv)
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok || !av.Equal(bv) {
			return false
		}
		_, ao := av.Zone()
		_, bo := bv.Zone()
		return ao == bo
	case []byte:
		bv, ok := b.([]byte)
		return ok && string(av) == string(bv)
	case uuid.UUID:
		bv, ok := b.(uuid.UUID)
		return ok && av == bv
	case schema.CivilDate:
		bv, ok := b.(schema.CivilDate)
		return ok && av == bv
	case schema.TimeOfDay:
		bv, ok := b.(schema.TimeOfDay)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return false
		}
		if av != av && bv != bv {
			return true
		}
		return av == bv
	}
	return a == b
}
