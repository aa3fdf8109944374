package edm

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nlstn/go-odata-sql/internal/schema"
)

func prop(name string, dt schema.DataType) *Property {
	typeName, facets, err := FromNative(dt)
	if err != nil {
		panic(err)
	}
	return &Property{Name: name, Type: typeName, Facets: facets, Native: dt, Nullable: true}
}

func TestCoerceLiteral(t *testing.T) {
	kyiv := time.FixedZone("", 3*3600)
	ts := time.Date(2024, 3, 10, 12, 30, 15, 123000000, kyiv)

	tests := []struct {
		name     string
		lit      Literal
		dt       schema.DataType
		expected any
	}{
		{"int to int32", Literal{Type: TypeInt32, Value: int64(10)}, schema.DataType{Kind: schema.Int32}, int64(10)},
		{"int to int64", Literal{Type: TypeInt32, Value: int64(-7)}, schema.DataType{Kind: schema.Int64}, int64(-7)},
		{"int to double", Literal{Type: TypeInt32, Value: int64(3)}, schema.DataType{Kind: schema.Float64}, float64(3)},
		{"decimal to double", Literal{Type: TypeDecimal, Value: decimal.RequireFromString("1.5")}, schema.DataType{Kind: schema.Float64}, 1.5},
		{"int to decimal", Literal{Type: TypeInt64, Value: int64(42)}, schema.DataType{Kind: schema.Decimal, Precision: 10, Scale: 2}, decimal.NewFromInt(42)},
		{"decimal at max scale", Literal{Type: TypeDecimal, Value: decimal.RequireFromString("12.3456")}, schema.DataType{Kind: schema.Decimal, Precision: 18, Scale: 4}, decimal.RequireFromString("12.3456")},
		{"string", Literal{Type: TypeString, Value: "a'b"}, schema.DataType{Kind: schema.Utf8}, "a'b"},
		{"bool", Literal{Type: TypeBoolean, Value: true}, schema.DataType{Kind: schema.Boolean}, true},
		{"date", Literal{Type: TypeDate, Value: schema.CivilDate{Year: 2024, Month: 2, Day: 29}}, schema.DataType{Kind: schema.Date}, schema.CivilDate{Year: 2024, Month: 2, Day: 29}},
		{"timestamp keeps offset", Literal{Type: TypeDateTimeOffset, Value: ts, Digits: 3}, schema.DataType{Kind: schema.Timestamp, Unit: schema.Millisecond, TimeZone: "UTC"}, ts},
		{"naive column reads UTC", Literal{Type: TypeDateTimeOffset, Value: ts, Digits: 3}, schema.DataType{Kind: schema.Timestamp, Unit: schema.Microsecond}, ts.UTC()},
		{"time of day", Literal{Type: TypeTimeOfDay, Value: schema.TimeOfDay{Hour: 13, Minute: 45}}, schema.DataType{Kind: schema.Time, Unit: schema.Second}, schema.TimeOfDay{Hour: 13, Minute: 45}},
		{"null", NullLiteral(), schema.DataType{Kind: schema.Int32}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CoerceLiteral(tt.lit, prop("F", tt.dt))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !ValuesEqual(got, tt.expected) {
				t.Errorf("expected %v (%T), got %v (%T)", tt.expected, tt.expected, got, got)
			}
		})
	}

	t.Run("guid", func(t *testing.T) {
		id := uuid.MustParse("01234567-89ab-cdef-0123-456789abcdef")
		got, err := CoerceLiteral(Literal{Type: TypeGuid, Value: id}, prop("F", schema.DataType{Kind: schema.UUID}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != id {
			t.Errorf("expected %v, got %v", id, got)
		}
	})
}

func TestCoerceLiteralMismatch(t *testing.T) {
	tests := []struct {
		name string
		lit  Literal
		dt   schema.DataType
	}{
		{"string against int", Literal{Type: TypeString, Value: "10"}, schema.DataType{Kind: schema.Int32}},
		{"int against string", Literal{Type: TypeInt32, Value: int64(10)}, schema.DataType{Kind: schema.Utf8}},
		{"int32 overflow", Literal{Type: TypeInt64, Value: int64(1 << 40)}, schema.DataType{Kind: schema.Int32}},
		{"negative unsigned", Literal{Type: TypeInt32, Value: int64(-1)}, schema.DataType{Kind: schema.UInt16}},
		{"decimal against int", Literal{Type: TypeDecimal, Value: decimal.RequireFromString("1.5")}, schema.DataType{Kind: schema.Int64}},
		{"decimal scale exceeded", Literal{Type: TypeDecimal, Value: decimal.RequireFromString("1.234")}, schema.DataType{Kind: schema.Decimal, Precision: 10, Scale: 2}},
		{"decimal precision exceeded", Literal{Type: TypeDecimal, Value: decimal.RequireFromString("123456.1")}, schema.DataType{Kind: schema.Decimal, Precision: 6, Scale: 2}},
		{"double against decimal", Literal{Type: TypeDouble, Value: 1.5}, schema.DataType{Kind: schema.Decimal, Precision: 10, Scale: 2}},
		{"date against timestamp", Literal{Type: TypeDate, Value: schema.CivilDate{Year: 2024, Month: 1, Day: 1}}, schema.DataType{Kind: schema.Timestamp, Unit: schema.Second, TimeZone: "UTC"}},
		{"sub-second beyond unit", Literal{Type: TypeDateTimeOffset, Value: time.Date(2024, 1, 1, 0, 0, 0, 1000, time.UTC)}, schema.DataType{Kind: schema.Timestamp, Unit: schema.Millisecond, TimeZone: "UTC"}},
		{"time beyond unit", Literal{Type: TypeTimeOfDay, Value: schema.TimeOfDay{Hour: 1, Nanosecond: 500}}, schema.DataType{Kind: schema.Time, Unit: schema.Second}},
		{"string against guid", Literal{Type: TypeString, Value: "01234567-89ab-cdef-0123-456789abcdef"}, schema.DataType{Kind: schema.UUID}},
		{"bool against int", Literal{Type: TypeBoolean, Value: true}, schema.DataType{Kind: schema.Int32}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CoerceLiteral(tt.lit, prop("F", tt.dt))
			if !errors.Is(err, ErrTypeMismatch) {
				t.Errorf("expected ErrTypeMismatch, got %v", err)
			}
		})
	}
}

func TestValidateDecimalFacets(t *testing.T) {
	p, s := 5, 2
	facets := Facets{Precision: &p, Scale: &s}
	valid := []string{"123.45", "-999.99", "0.01", "1.500", "0"}
	for _, v := range valid {
		if err := ValidateDecimalFacets(decimal.RequireFromString(v), facets); err != nil {
			t.Errorf("expected %s to be valid: %v", v, err)
		}
	}
	invalid := []string{"1234.5", "1.234", "100000"}
	for _, v := range invalid {
		if err := ValidateDecimalFacets(decimal.RequireFromString(v), facets); err == nil {
			t.Errorf("expected %s to be rejected", v)
		}
	}
}
