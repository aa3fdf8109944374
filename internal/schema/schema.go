// Package schema describes table schemas in the engine's native type system.
package schema

import (
	"fmt"
	"strings"
)

// Kind identifies a native column type family.
type Kind int

const (
	Unsupported Kind = iota
	Boolean
	Int8
	Int16
	Int32
	Int64
	UInt8
	UInt16
	UInt32
	UInt64
	Float32
	Float64
	Decimal
	Utf8
	Binary
	UUID
	Date
	Time
	Timestamp
)

var kindNames = [...]string{
	Unsupported: "unsupported",
	Boolean:     "boolean",
	Int8:        "int8",
	Int16:       "int16",
	Int32:       "int32",
	Int64:       "int64",
	UInt8:       "uint8",
	UInt16:      "uint16",
	UInt32:      "uint32",
	UInt64:      "uint64",
	Float32:     "float32",
	Float64:     "float64",
	Decimal:     "decimal",
	Utf8:        "utf8",
	Binary:      "binary",
	UUID:        "uuid",
	Date:        "date",
	Time:        "time",
	Timestamp:   "timestamp",
}

func (k Kind) String() string {
	if int(k) < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// TimeUnit is the sub-second resolution of Time and Timestamp columns.
type TimeUnit int

const (
	Second TimeUnit = iota
	Millisecond
	Microsecond
	Nanosecond
)

// Digits returns the number of fractional second digits the unit carries.
func (u TimeUnit) Digits() int {
	switch u {
	case Millisecond:
		return 3
	case Microsecond:
		return 6
	case Nanosecond:
		return 9
	default:
		return 0
	}
}

// UnitForDigits returns the coarsest unit able to hold the given number of fractional digits.
func UnitForDigits(digits int) TimeUnit {
	switch {
	case digits <= 0:
		return Second
	case digits <= 3:
		return Millisecond
	case digits <= 6:
		return Microsecond
	default:
		return Nanosecond
	}
}

// DataType is a native column type with its parameters.
type DataType struct {
	Kind      Kind
	Precision int      // Decimal total digits
	Scale     int      // Decimal fractional digits
	Unit      TimeUnit // Time and Timestamp resolution
	TimeZone  string   // Timestamp zone; empty means a naive timestamp
	Raw       string   // Engine type name as reported, for diagnostics
}

// HasZone reports whether a timestamp type carries a time zone.
func (t DataType) HasZone() bool {
	return t.Kind == Timestamp && t.TimeZone != ""
}

func (t DataType) String() string {
	switch t.Kind {
	case Decimal:
		return fmt.Sprintf("decimal(%d,%d)", t.Precision, t.Scale)
	case Timestamp:
		if t.TimeZone != "" {
			return fmt.Sprintf("timestamp(%d, %s)", t.Unit.Digits(), t.TimeZone)
		}
		return fmt.Sprintf("timestamp(%d)", t.Unit.Digits())
	case Unsupported:
		if t.Raw != "" {
			return "unsupported(" + t.Raw + ")"
		}
	}
	return t.Kind.String()
}

// Field is a named column.
type Field struct {
	Name     string
	Type     DataType
	Nullable bool
}

// Schema is the ordered column list of a table.
type Schema struct {
	Fields     []Field
	PrimaryKey []string
}

// Index returns the position of the named field or -1.
func (s Schema) Index(name string) int {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return i
		}
	}
	return -1
}

// Field returns the named field.
func (s Schema) Field(name string) (Field, bool) {
	if i := s.Index(name); i >= 0 {
		return s.Fields[i], true
	}
	return Field{}, false
}

// Names returns the field names in schema order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Project returns a schema restricted to the given fields, in the given order.
func (s Schema) Project(names []string) (Schema, error) {
	out := Schema{Fields: make([]Field, 0, len(names))}
	for _, n := range names {
		f, ok := s.Field(n)
		if !ok {
			return Schema{}, fmt.Errorf("schema: unknown field %q", n)
		}
		out.Fields = append(out.Fields, f)
	}
	return out, nil
}

// ParseKind maps a loose type name ("int64", "decimal", "timestamptz") to a Kind.
func ParseKind(name string) Kind {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bool", "boolean":
		return Boolean
	case "int8", "tinyint":
		return Int8
	case "int16", "smallint":
		return Int16
	case "int32", "int", "integer":
		return Int32
	case "int64", "bigint":
		return Int64
	case "uint8":
		return UInt8
	case "uint16":
		return UInt16
	case "uint32":
		return UInt32
	case "uint64":
		return UInt64
	case "float32", "real", "float4":
		return Float32
	case "float64", "double", "float8":
		return Float64
	case "decimal", "numeric":
		return Decimal
	case "utf8", "string", "text", "varchar":
		return Utf8
	case "binary", "bytes", "blob", "bytea":
		return Binary
	case "uuid", "guid":
		return UUID
	case "date":
		return Date
	case "time":
		return Time
	case "timestamp", "timestamptz", "datetime":
		return Timestamp
	}
	return Unsupported
}
