package query

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nlstn/go-odata-sql/internal/edm"
	"github.com/nlstn/go-odata-sql/internal/schema"
)

func nativeProp(dt schema.DataType) *edm.Property {
	typeName, facets, err := edm.FromNative(dt)
	if err != nil {
		panic(err)
	}
	return &edm.Property{Name: "F", Type: typeName, Facets: facets, Native: dt, Nullable: true}
}

func TestParseLiteral(t *testing.T) {
	tests := []struct {
		input        string
		expectedType string
		expected     any
	}{
		{"'it''s'", edm.TypeString, "it's"},
		{"''", edm.TypeString, ""},
		{"42", edm.TypeInt32, int64(42)},
		{"-42", edm.TypeInt32, int64(-42)},
		{"2147483648", edm.TypeInt64, int64(2147483648)},
		{"42L", edm.TypeInt64, int64(42)},
		{"99999999999999999999", edm.TypeDecimal, decimal.RequireFromString("99999999999999999999")},
		{"1.50", edm.TypeDecimal, decimal.RequireFromString("1.5")},
		{"1.5M", edm.TypeDecimal, decimal.RequireFromString("1.5")},
		{"1e3", edm.TypeDouble, 1000.0},
		{"2.5E-2", edm.TypeDouble, 0.025},
		{"2.5d", edm.TypeDouble, 2.5},
		{"2.5f", edm.TypeSingle, 2.5},
		{"INF", edm.TypeDouble, math.Inf(1)},
		{"-INF", edm.TypeDouble, math.Inf(-1)},
		{"NaN", edm.TypeDouble, math.NaN()},
		{"true", edm.TypeBoolean, true},
		{"false", edm.TypeBoolean, false},
		{"null", edm.TypeNull, nil},
		{"01234567-89ab-cdef-0123-456789abcdef", edm.TypeGuid, uuid.MustParse("01234567-89ab-cdef-0123-456789abcdef")},
		{"guid'01234567-89AB-cdef-0123-456789abcdef'", edm.TypeGuid, uuid.MustParse("01234567-89ab-cdef-0123-456789abcdef")},
		{"X'4869'", edm.TypeBinary, []byte("Hi")},
		{"binary'SGk='", edm.TypeBinary, []byte("Hi")},
		{"binary'-_8'", edm.TypeBinary, []byte{0xfb, 0xff}},
		{"2024-02-29", edm.TypeDate, schema.CivilDate{Year: 2024, Month: 2, Day: 29}},
		{"13:45:00", edm.TypeTimeOfDay, schema.TimeOfDay{Hour: 13, Minute: 45}},
		{"13:45:00.25", edm.TypeTimeOfDay, schema.TimeOfDay{Hour: 13, Minute: 45, Nanosecond: 250000000}},
		{"2024-01-02T03:04:05Z", edm.TypeDateTimeOffset, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"2024-01-02T03:04:05.123+02:00", edm.TypeDateTimeOffset, time.Date(2024, 1, 2, 3, 4, 5, 123000000, time.FixedZone("", 7200))},
		{"2024-01-02T03:04:05 02:00", edm.TypeDateTimeOffset, time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("", 7200))},
		{"datetimeoffset'2024-01-02T03:04:05-05:30'", edm.TypeDateTimeOffset, time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("", -19800))},
		{"datetime'2024-01-02T03:04:05'", edm.TypeDateTimeOffset, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			lit, err := ParseLiteral(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if lit.Type != tt.expectedType {
				t.Errorf("expected type %s, got %s", tt.expectedType, lit.Type)
			}
			if !edm.ValuesEqual(lit.Value, tt.expected) {
				t.Errorf("expected %v (%T), got %v (%T)", tt.expected, tt.expected, lit.Value, lit.Value)
			}
		})
	}
}

func TestParseLiteralDigitsAndNaive(t *testing.T) {
	lit, err := ParseLiteral("2024-01-02T03:04:05.123456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lit.Digits != 6 {
		t.Errorf("expected 6 digits, got %d", lit.Digits)
	}
	if !lit.Naive {
		t.Error("expected a literal without offset to be naive")
	}

	lit, err = ParseLiteral("2024-01-02T03:04:05.100000000000Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lit.Naive {
		t.Error("expected a literal with Z to carry an offset")
	}
	if lit.Digits != 9 {
		t.Errorf("expected digits capped at 9, got %d", lit.Digits)
	}
}

func TestParseLiteralErrors(t *testing.T) {
	tests := []struct {
		input string
		kind  ErrorKind
	}{
		{"'open", KindParse},
		{"2024-02-30", KindParse},
		{"2024-01-02T25:00:00Z", KindParse},
		{"25:00:00", KindParse},
		{"2024-01-02T03:04:05.0000000001Z", KindParse},
		{"1.5L", KindParse},
		{"X'zz'", KindParse},
		{"datetimeoffset'2024-01-02T03:04:05'", KindParse},
		{"duration'P1D'", KindUnsupportedOperation},
		{"1 2", KindParse},
		{"Name", KindParse},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := ParseLiteral(tt.input)
			if err == nil {
				t.Fatal("expected an error")
			}
			if KindOf(err) != tt.kind {
				t.Errorf("expected %s, got %s (%v)", tt.kind, KindOf(err), err)
			}
		})
	}
}

// Formatting a value as a URL literal and parsing it back must yield the same value
// for every supported column type.
func TestLiteralRoundTrip(t *testing.T) {
	plus2 := time.FixedZone("", 2*3600)
	minus930 := time.FixedZone("", -(9*3600 + 30*60))

	tests := []struct {
		name  string
		dt    schema.DataType
		value any
	}{
		{"boolean", schema.DataType{Kind: schema.Boolean}, true},
		{"int8", schema.DataType{Kind: schema.Int8}, int8(-128)},
		{"int32 max", schema.DataType{Kind: schema.Int32}, int32(math.MaxInt32)},
		{"int32 min", schema.DataType{Kind: schema.Int32}, int32(math.MinInt32)},
		{"int64 max", schema.DataType{Kind: schema.Int64}, int64(math.MaxInt64)},
		{"int64 min", schema.DataType{Kind: schema.Int64}, int64(math.MinInt64)},
		{"uint32", schema.DataType{Kind: schema.UInt32}, uint32(math.MaxUint32)},
		{"single", schema.DataType{Kind: schema.Float32}, float32(0.1)},
		{"double", schema.DataType{Kind: schema.Float64}, 1234.5678},
		{"double whole", schema.DataType{Kind: schema.Float64}, 3.0},
		{"double tiny", schema.DataType{Kind: schema.Float64}, 1.5e-9},
		{"double huge", schema.DataType{Kind: schema.Float64}, 6.02e23},
		{"double nan", schema.DataType{Kind: schema.Float64}, math.NaN()},
		{"double -inf", schema.DataType{Kind: schema.Float64}, math.Inf(-1)},
		{"decimal", schema.DataType{Kind: schema.Decimal, Precision: 10, Scale: 2}, decimal.RequireFromString("-12345678.90")},
		{"decimal scale zero", schema.DataType{Kind: schema.Decimal, Precision: 5, Scale: 0}, decimal.NewFromInt(99999)},
		{"decimal max precision", schema.DataType{Kind: schema.Decimal, Precision: 38, Scale: 10}, decimal.RequireFromString("1234567890123456789012345678.1234567890")},
		{"decimal max scale", schema.DataType{Kind: schema.Decimal, Precision: 38, Scale: 38}, decimal.RequireFromString("0.12345678901234567890123456789012345678")},
		{"string", schema.DataType{Kind: schema.Utf8}, "O'Brien & 'Sons' 100%"},
		{"string unicode", schema.DataType{Kind: schema.Utf8}, "Київ"},
		{"string empty", schema.DataType{Kind: schema.Utf8}, ""},
		{"binary", schema.DataType{Kind: schema.Binary}, []byte{0x00, 0xfb, 0xff, 0x10}},
		{"guid", schema.DataType{Kind: schema.UUID}, uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")},
		{"date", schema.DataType{Kind: schema.Date}, schema.CivilDate{Year: 1999, Month: 12, Day: 31}},
		{"time seconds", schema.DataType{Kind: schema.Time, Unit: schema.Second}, schema.TimeOfDay{Hour: 23, Minute: 59, Second: 59}},
		{"time micros", schema.DataType{Kind: schema.Time, Unit: schema.Microsecond}, schema.TimeOfDay{Hour: 1, Minute: 2, Second: 3, Nanosecond: 4000}},
		{"timestamp seconds naive", schema.DataType{Kind: schema.Timestamp, Unit: schema.Second}, time.Date(2020, 2, 29, 23, 59, 59, 0, time.UTC)},
		{"timestamp millis utc", schema.DataType{Kind: schema.Timestamp, Unit: schema.Millisecond, TimeZone: "UTC"}, time.Date(2020, 1, 1, 0, 0, 0, 7000000, time.UTC)},
		{"timestamp micros offset", schema.DataType{Kind: schema.Timestamp, Unit: schema.Microsecond, TimeZone: "+02:00"}, time.Date(2024, 3, 10, 0, 36, 45, 123456000, plus2)},
		{"timestamp nanos negative offset", schema.DataType{Kind: schema.Timestamp, Unit: schema.Nanosecond, TimeZone: "-09:30"}, time.Date(2024, 3, 10, 0, 36, 45, 123456789, minus930)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := nativeProp(tt.dt)
			want, err := edm.NormalizeValue(tt.value, p)
			if err != nil {
				t.Fatalf("normalize: %v", err)
			}

			text, err := edm.FormatLiteral(tt.value, p)
			if err != nil {
				t.Fatalf("format: %v", err)
			}
			lit, err := ParseLiteral(text)
			if err != nil {
				t.Fatalf("parse %s: %v", text, err)
			}
			got, err := edm.CoerceLiteral(lit, p)
			if err != nil {
				t.Fatalf("coerce %s: %v", text, err)
			}
			if !edm.ValuesEqual(got, want) {
				t.Errorf("%s: expected %v (%T), got %v (%T)", text, want, want, got, got)
			}
		})
	}
}
