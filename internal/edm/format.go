package edm

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nlstn/go-odata-sql/internal/schema"
)

// ErrSerialization marks a native value that does not fit its declared column type.
var ErrSerialization = errors.New("serialization error")

func serializationError(p *Property, v any) error {
	return fmt.Errorf("%w: cannot encode %T as %s for property '%s'", ErrSerialization, v, p.Type, p.Name)
}

// NormalizeValue converts an engine value to the canonical native scalar for p:
// int64, float64, decimal.Decimal, bool, string, []byte, uuid.UUID, schema.CivilDate,
// schema.TimeOfDay or time.Time. nil stays nil.
func NormalizeValue(v any, p *Property) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch p.Native.Kind {
	case schema.Boolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case int64:
			return b != 0, nil
		case int:
			return b != 0, nil
		}

	case schema.Int8, schema.Int16, schema.Int32, schema.Int64,
		schema.UInt8, schema.UInt16, schema.UInt32, schema.UInt64:
		if i, ok := toInt64(v); ok {
			return i, nil
		}

	case schema.Float32, schema.Float64:
		switch f := v.(type) {
		case float64:
			return f, nil
		case float32:
			return float64(f), nil
		}
		if i, ok := toInt64(v); ok {
			return float64(i), nil
		}

	case schema.Decimal:
		var d decimal.Decimal
		switch x := v.(type) {
		case decimal.Decimal:
			d = x
		case string:
			parsed, err := decimal.NewFromString(x)
			if err != nil {
				return nil, serializationError(p, v)
			}
			d = parsed
		case []byte:
			parsed, err := decimal.NewFromString(string(x))
			if err != nil {
				return nil, serializationError(p, v)
			}
			d = parsed
		case float64:
			d = decimal.NewFromFloat(x)
		default:
			i, ok := toInt64(v)
			if !ok {
				return nil, serializationError(p, v)
			}
			d = decimal.NewFromInt(i)
		}
		if p.Facets.Scale != nil {
			d = d.Round(int32(*p.Facets.Scale))
		}
		return d, nil

	case schema.Utf8:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		}

	case schema.Binary:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		}

	case schema.UUID:
		switch u := v.(type) {
		case uuid.UUID:
			return u, nil
		case string:
			parsed, err := uuid.Parse(u)
			if err == nil {
				return parsed, nil
			}
		case []byte:
			if len(u) == 16 {
				parsed, err := uuid.FromBytes(u)
				if err == nil {
					return parsed, nil
				}
			}
			parsed, err := uuid.ParseBytes(u)
			if err == nil {
				return parsed, nil
			}
		}

	case schema.Date:
		switch d := v.(type) {
		case schema.CivilDate:
			return d, nil
		case time.Time:
			return schema.DateOf(d), nil
		case string:
			if len(d) >= 10 {
				parsed, err := schema.ParseDate(d[:10])
				if err == nil {
					return parsed, nil
				}
			}
		}

	case schema.Time:
		switch t := v.(type) {
		case schema.TimeOfDay:
			return t.Truncate(p.Native.Unit), nil
		case time.Time:
			return schema.TimeOfDayOf(t).Truncate(p.Native.Unit), nil
		case string:
			parsed, err := ParseTimeOfDay(t)
			if err == nil {
				return parsed.Truncate(p.Native.Unit), nil
			}
		}

	case schema.Timestamp:
		var t time.Time
		switch x := v.(type) {
		case time.Time:
			t = x
		case string:
			parsed, err := parseEngineTimestamp(x)
			if err != nil {
				return nil, serializationError(p, v)
			}
			t = parsed
		default:
			return nil, serializationError(p, v)
		}
		t = t.Truncate(0)
		ns := schema.TruncateNanos(t.Nanosecond(), p.Native.Unit)
		t = t.Add(time.Duration(ns - t.Nanosecond()))
		if !p.Native.HasZone() {
			return t.UTC(), nil
		}
		if loc := zoneLocation(p.Native.TimeZone); loc != nil {
			return t.In(loc), nil
		}
		return t, nil
	}
	return nil, serializationError(p, v)
}

func toInt64(v any) (int64, bool) {
	switch i := v.(type) {
	case int64:
		return i, true
	case int:
		return int64(i), true
	case int32:
		return int64(i), true
	case int16:
		return int64(i), true
	case int8:
		return int64(i), true
	case uint8:
		return int64(i), true
	case uint16:
		return int64(i), true
	case uint32:
		return int64(i), true
	case uint64:
		if i > math.MaxInt64 {
			return 0, false
		}
		return int64(i), true
	case uint:
		if uint64(i) > math.MaxInt64 {
			return 0, false
		}
		return int64(i), true
	case bool:
		if i {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

var zoneCache sync.Map

// zoneLocation resolves an engine time zone name ("UTC", "Europe/Kyiv", "+02:00").
func zoneLocation(tz string) *time.Location {
	if tz == "" {
		return nil
	}
	if loc, ok := zoneCache.Load(tz); ok {
		return loc.(*time.Location)
	}
	var loc *time.Location
	if l, err := time.LoadLocation(tz); err == nil {
		loc = l
	} else if t, err := time.Parse("-07:00", tz); err == nil {
		_, off := t.Zone()
		loc = time.FixedZone(tz, off)
	}
	if loc == nil {
		return nil
	}
	zoneCache.Store(tz, loc)
	return loc
}

var engineTimestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func parseEngineTimestamp(s string) (time.Time, error) {
	for _, layout := range engineTimestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// ParseTimeOfDay parses HH:MM[:SS[.fffffffff]].
func ParseTimeOfDay(s string) (schema.TimeOfDay, error) {
	layouts := []string{"15:04:05.999999999", "15:04:05", "15:04"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return schema.TimeOfDayOf(t), nil
		}
	}
	return schema.TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
}

func precisionDigits(p *Property) int {
	if p.Facets.Precision != nil {
		return *p.Facets.Precision
	}
	return 0
}

// FormatDateTimeOffset renders t as ISO-8601 with exactly digits fractional digits and an
// explicit offset ("Z" for UTC).
func FormatDateTimeOffset(t time.Time, digits int) string {
	var b strings.Builder
	b.WriteString(t.Format("2006-01-02T15:04:05"))
	if digits > 0 {
		b.WriteByte('.')
		b.WriteString(schema.FormatFraction(t.Nanosecond(), digits))
	}
	if _, off := t.Zone(); off == 0 {
		b.WriteByte('Z')
	} else {
		b.WriteString(t.Format("-07:00"))
	}
	return b.String()
}

func formatFloat(f float64, p *Property) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "INF"
	case math.IsInf(f, -1):
		return "-INF"
	}
	bits := 64
	if p.Native.Kind == schema.Float32 {
		bits = 32
	}
	if abs := math.Abs(f); abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		return strconv.FormatFloat(f, 'E', -1, bits)
	}
	return strconv.FormatFloat(f, 'f', -1, bits)
}

// formatDecimal renders d without exponent at the property's declared scale.
func formatDecimal(d decimal.Decimal, p *Property) string {
	if p.Facets.Scale != nil {
		return d.StringFixed(int32(*p.Facets.Scale))
	}
	return d.String()
}

// canonicalText is the type-driven text form shared by the Atom writer and literals.
func canonicalText(v any, p *Property) (string, error) {
	n, err := NormalizeValue(v, p)
	if err != nil {
		return "", err
	}
	switch x := n.(type) {
	case bool:
		return strconv.FormatBool(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return formatFloat(x, p), nil
	case decimal.Decimal:
		return formatDecimal(x, p), nil
	case string:
		return x, nil
	case []byte:
		return base64.StdEncoding.EncodeToString(x), nil
	case uuid.UUID:
		return x.String(), nil
	case schema.CivilDate:
		return x.String(), nil
	case schema.TimeOfDay:
		return x.Format(precisionDigits(p)), nil
	case time.Time:
		return FormatDateTimeOffset(x, precisionDigits(p)), nil
	}
	return "", serializationError(p, v)
}

// XMLText renders a non-null value as Atom element text.
func XMLText(v any, p *Property) (string, error) {
	return canonicalText(v, p)
}

// JSONValue returns the value to place in a JSON payload. Decimals become json.Number so
// they are emitted without exponent and with their declared scale.
func JSONValue(v any, p *Property) (any, error) {
	n, err := NormalizeValue(v, p)
	if err != nil || n == nil {
		return nil, err
	}
	switch x := n.(type) {
	case bool, string:
		return x, nil
	case int64:
		return x, nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return formatFloat(x, p), nil
		}
		if p.Native.Kind == schema.Float32 {
			return json.Number(formatFloat(x, p)), nil
		}
		return x, nil
	case decimal.Decimal:
		return json.Number(formatDecimal(x, p)), nil
	case []byte:
		return base64.URLEncoding.EncodeToString(x), nil
	}
	return canonicalText(n, p)
}

// FormatLiteral renders a value in URL literal syntax, so that parsing the result yields
// a literal that coerces back to the same value.
func FormatLiteral(v any, p *Property) (string, error) {
	n, err := NormalizeValue(v, p)
	if err != nil {
		return "", err
	}
	switch x := n.(type) {
	case nil:
		return "null", nil
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'", nil
	case []byte:
		return "binary'" + base64.URLEncoding.EncodeToString(x) + "'", nil
	case decimal.Decimal:
		s := formatDecimal(x, p)
		if !strings.Contains(s, ".") {
			s += "M"
		}
		return s, nil
	case float64:
		s := formatFloat(x, p)
		if !strings.ContainsAny(s, ".EN") {
			s += ".0"
		}
		return s, nil
	}
	return canonicalText(n, p)
}
