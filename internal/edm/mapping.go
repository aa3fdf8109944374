package edm

import (
	"errors"
	"fmt"

	"github.com/nlstn/go-odata-sql/internal/schema"
)

// ErrUnsupportedType is returned for native column types with no EDM counterpart.
var ErrUnsupportedType = errors.New("unsupported native type")

// FromNative maps a native column type to its EDM type name and facets.
func FromNative(dt schema.DataType) (string, Facets, error) {
	switch dt.Kind {
	case schema.Boolean:
		return TypeBoolean, Facets{}, nil
	case schema.Int8, schema.Int16, schema.Int32, schema.UInt8, schema.UInt16:
		return TypeInt32, Facets{}, nil
	case schema.Int64, schema.UInt32, schema.UInt64:
		return TypeInt64, Facets{}, nil
	case schema.Float32:
		return TypeSingle, Facets{}, nil
	case schema.Float64:
		return TypeDouble, Facets{}, nil
	case schema.Decimal:
		if dt.Precision <= 0 || dt.Scale < 0 || dt.Scale > dt.Precision {
			return "", Facets{}, fmt.Errorf("%w: %s", ErrUnsupportedType, dt)
		}
		return TypeDecimal, Facets{Precision: intPtr(dt.Precision), Scale: intPtr(dt.Scale)}, nil
	case schema.Utf8:
		return TypeString, Facets{}, nil
	case schema.Binary:
		return TypeBinary, Facets{}, nil
	case schema.UUID:
		return TypeGuid, Facets{}, nil
	case schema.Date:
		return TypeDate, Facets{}, nil
	case schema.Time:
		return TypeTimeOfDay, Facets{Precision: intPtr(dt.Unit.Digits())}, nil
	case schema.Timestamp:
		return TypeDateTimeOffset, Facets{Precision: intPtr(dt.Unit.Digits())}, nil
	}
	return "", Facets{}, fmt.Errorf("%w: %s", ErrUnsupportedType, dt)
}

// intRange returns the inclusive range of an integer kind.
func intRange(k schema.Kind) (lo, hi int64, ok bool) {
	switch k {
	case schema.Int8:
		return -1 << 7, 1<<7 - 1, true
	case schema.Int16:
		return -1 << 15, 1<<15 - 1, true
	case schema.Int32:
		return -1 << 31, 1<<31 - 1, true
	case schema.Int64:
		return -1 << 63, 1<<63 - 1, true
	case schema.UInt8:
		return 0, 1<<8 - 1, true
	case schema.UInt16:
		return 0, 1<<16 - 1, true
	case schema.UInt32:
		return 0, 1<<32 - 1, true
	case schema.UInt64:
		// Values beyond MaxInt64 cannot be carried by Edm.Int64.
		return 0, 1<<63 - 1, true
	}
	return 0, 0, false
}

// ResultProperty describes the value of an expression of the given EDM type that is not
// backed by a column, e.g. the result of length(Name). name is used in error messages.
func ResultProperty(name, typeName string) *Property {
	var dt schema.DataType
	switch typeName {
	case TypeBoolean:
		dt.Kind = schema.Boolean
	case TypeInt32:
		dt.Kind = schema.Int32
	case TypeInt64:
		dt.Kind = schema.Int64
	case TypeSingle:
		dt.Kind = schema.Float32
	case TypeDouble:
		dt.Kind = schema.Float64
	case TypeDecimal:
		dt.Kind = schema.Decimal
	case TypeString:
		dt.Kind = schema.Utf8
	case TypeBinary:
		dt.Kind = schema.Binary
	case TypeGuid:
		dt.Kind = schema.UUID
	case TypeDate:
		dt.Kind = schema.Date
	case TypeTimeOfDay:
		dt.Kind, dt.Unit = schema.Time, schema.Nanosecond
	case TypeDateTimeOffset:
		dt.Kind, dt.Unit, dt.TimeZone = schema.Timestamp, schema.Nanosecond, "UTC"
	default:
		dt.Kind = schema.Unsupported
	}
	return &Property{Name: name, Type: typeName, Nullable: true, Native: dt}
}
