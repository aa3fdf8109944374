package edm

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nlstn/go-odata-sql/internal/schema"
)

// ErrTypeMismatch is returned when a literal cannot be compared with a property.
var ErrTypeMismatch = errors.New("type mismatch")

func mismatch(lit Literal, p *Property, reason string) error {
	if reason == "" {
		return fmt.Errorf("%w: %s literal %s is not compatible with %s property '%s'",
			ErrTypeMismatch, lit.Type, lit.String(), p.Type, p.Name)
	}
	return fmt.Errorf("%w: %s literal %s is not compatible with %s property '%s': %s",
		ErrTypeMismatch, lit.Type, lit.String(), p.Type, p.Name, reason)
}

// CoerceLiteral converts a literal to the native scalar of p's column type.
// The null literal coerces to nil against any property.
func CoerceLiteral(lit Literal, p *Property) (any, error) {
	if lit.IsNull() {
		return nil, nil
	}

	switch p.Native.Kind {
	case schema.Boolean:
		if v, ok := lit.Value.(bool); ok && lit.Type == TypeBoolean {
			return v, nil
		}

	case schema.Int8, schema.Int16, schema.Int32, schema.Int64,
		schema.UInt8, schema.UInt16, schema.UInt32, schema.UInt64:
		if lit.Type != TypeInt32 && lit.Type != TypeInt64 {
			break
		}
		v, ok := lit.Value.(int64)
		if !ok {
			break
		}
		lo, hi, _ := intRange(p.Native.Kind)
		if v < lo || v > hi {
			return nil, mismatch(lit, p, fmt.Sprintf("value out of range for %s", p.Native.Kind))
		}
		return v, nil

	case schema.Float32, schema.Float64:
		f, ok := literalFloat(lit)
		if !ok {
			break
		}
		if p.Native.Kind == schema.Float32 {
			if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
				return nil, mismatch(lit, p, "value out of range for Edm.Single")
			}
			f = float64(float32(f))
		}
		return f, nil

	case schema.Decimal:
		var d decimal.Decimal
		switch v := lit.Value.(type) {
		case int64:
			d = decimal.NewFromInt(v)
		case decimal.Decimal:
			d = v
		default:
			return nil, mismatch(lit, p, "")
		}
		if err := ValidateDecimalFacets(d, p.Facets); err != nil {
			return nil, mismatch(lit, p, err.Error())
		}
		return d, nil

	case schema.Utf8:
		if v, ok := lit.Value.(string); ok && lit.Type == TypeString {
			return v, nil
		}

	case schema.Binary:
		if v, ok := lit.Value.([]byte); ok && lit.Type == TypeBinary {
			return v, nil
		}

	case schema.UUID:
		if lit.Type == TypeGuid {
			return lit.Value, nil
		}

	case schema.Date:
		if v, ok := lit.Value.(schema.CivilDate); ok && lit.Type == TypeDate {
			return v, nil
		}

	case schema.Time:
		v, ok := lit.Value.(schema.TimeOfDay)
		if !ok || lit.Type != TypeTimeOfDay {
			break
		}
		if v.Truncate(p.Native.Unit) != v {
			return nil, mismatch(lit, p, fmt.Sprintf("more than %d fractional second digits", p.Native.Unit.Digits()))
		}
		return v, nil

	case schema.Timestamp:
		if lit.Type == TypeDate {
			return nil, mismatch(lit, p, "a date-only literal has no time or offset")
		}
		v, ok := lit.Value.(time.Time)
		if !ok || lit.Type != TypeDateTimeOffset {
			break
		}
		if schema.TruncateNanos(v.Nanosecond(), p.Native.Unit) != v.Nanosecond() {
			return nil, mismatch(lit, p, fmt.Sprintf("more than %d fractional second digits", p.Native.Unit.Digits()))
		}
		if !p.Native.HasZone() || lit.Naive {
			return v.UTC(), nil
		}
		return v, nil
	}

	return nil, mismatch(lit, p, "")
}

func literalFloat(lit Literal) (float64, bool) {
	switch v := lit.Value.(type) {
	case int64:
		if lit.Type == TypeInt32 || lit.Type == TypeInt64 {
			return float64(v), true
		}
	case float64:
		if lit.Type == TypeDouble || lit.Type == TypeSingle {
			return v, true
		}
	case decimal.Decimal:
		if lit.Type == TypeDecimal {
			f, _ := v.Float64()
			return f, true
		}
	}
	return 0, false
}
