package sqlengine

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nlstn/go-odata-sql/internal/schema"
)

var typeParams = regexp.MustCompile(`\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\)`)

// nativeType maps a database column type name to a native type. precision and scale are
// used when the name itself carries no parameters.
func nativeType(dialect Dialect, dbType string, precision, scale int64, sized bool) schema.DataType {
	raw := dbType
	name := strings.ToLower(strings.TrimSpace(dbType))
	if m := typeParams.FindStringSubmatch(name); m != nil {
		precision, _ = strconv.ParseInt(m[1], 10, 64)
		scale = 0
		if m[2] != "" {
			scale, _ = strconv.ParseInt(m[2], 10, 64)
		}
		sized = true
		name = strings.Join(strings.Fields(typeParams.ReplaceAllString(name, "")), " ")
	}

	dt := schema.DataType{Raw: raw}
	switch name {
	case "bool", "boolean":
		dt.Kind = schema.Boolean
	case "int2", "smallint":
		dt.Kind = schema.Int16
	case "int4", "int", "integer", "mediumint":
		dt.Kind = schema.Int32
		if dialect == DialectSQLite {
			dt.Kind = schema.Int64
		}
	case "int8", "bigint":
		dt.Kind = schema.Int64
	case "tinyint":
		dt.Kind = schema.Int8
	case "float4", "real":
		dt.Kind = schema.Float32
		if dialect == DialectSQLite {
			dt.Kind = schema.Float64
		}
	case "float8", "double", "double precision", "float":
		dt.Kind = schema.Float64
	case "numeric", "decimal":
		dt.Kind = schema.Decimal
		dt.Precision, dt.Scale = 38, 9
		if sized && precision > 0 {
			dt.Precision, dt.Scale = int(precision), int(scale)
		}
	case "text", "varchar", "character varying", "char", "character", "bpchar", "clob", "string", "name":
		dt.Kind = schema.Utf8
	case "blob", "bytea", "binary", "varbinary":
		dt.Kind = schema.Binary
	case "uuid":
		dt.Kind = schema.UUID
	case "date":
		dt.Kind = schema.Date
	case "time", "time without time zone":
		dt.Kind = schema.Time
		dt.Unit = timeUnit(dialect, precision, sized)
	case "timestamp", "timestamp without time zone":
		dt.Kind = schema.Timestamp
		dt.Unit = timeUnit(dialect, precision, sized)
		if dialect == DialectSQLite {
			dt.TimeZone = "UTC"
		}
	case "timestamptz", "timestamp with time zone", "datetime":
		dt.Kind = schema.Timestamp
		dt.Unit = timeUnit(dialect, precision, sized)
		dt.TimeZone = "UTC"
	default:
		dt.Kind = schema.Unsupported
	}
	return dt
}

func timeUnit(dialect Dialect, precision int64, sized bool) schema.TimeUnit {
	if sized && precision >= 0 && precision <= 9 && dialect == DialectPostgres {
		return schema.UnitForDigits(int(precision))
	}
	return schema.Microsecond
}

// convert turns a driver value into the native scalar for dt. Values the driver already
// returns in native form pass through; the serializer validates the rest.
func convert(v any, dt schema.DataType) any {
	if v == nil {
		return nil
	}
	switch dt.Kind {
	case schema.Boolean:
		if i, ok := v.(int64); ok {
			return i != 0
		}
	case schema.Int8, schema.Int16, schema.Int32:
		if i, ok := v.(int64); ok {
			return int32(i)
		}
	case schema.Float32:
		if f, ok := v.(float64); ok {
			return float32(f)
		}
	case schema.Decimal:
		switch x := v.(type) {
		case string:
			if d, err := decimal.NewFromString(x); err == nil {
				return d
			}
		case []byte:
			if d, err := decimal.NewFromString(string(x)); err == nil {
				return d
			}
		case float64:
			return decimal.NewFromFloat(x)
		case int64:
			return decimal.NewFromInt(x)
		}
	case schema.Utf8:
		if b, ok := v.([]byte); ok {
			return string(b)
		}
	case schema.UUID:
		switch x := v.(type) {
		case string:
			if u, err := uuid.Parse(x); err == nil {
				return u
			}
		case []byte:
			if u, err := uuid.ParseBytes(x); err == nil {
				return u
			}
			if u, err := uuid.FromBytes(x); err == nil {
				return u
			}
		case [16]byte:
			return uuid.UUID(x)
		}
	case schema.Date:
		switch x := v.(type) {
		case time.Time:
			return schema.DateOf(x)
		case string:
			if len(x) >= 10 {
				if d, err := schema.ParseDate(x[:10]); err == nil {
					return d
				}
			}
		}
	case schema.Time:
		switch x := v.(type) {
		case time.Time:
			return schema.TimeOfDayOf(x)
		case string:
			for _, layout := range []string{"15:04:05.999999999", "15:04"} {
				if t, err := time.Parse(layout, x); err == nil {
					return schema.TimeOfDayOf(t)
				}
			}
		}
	case schema.Timestamp:
		if s, ok := v.(string); ok {
			for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999", "2006-01-02T15:04:05.999999999"} {
				if t, err := time.Parse(layout, s); err == nil {
					return t
				}
			}
		}
	}
	return v
}
