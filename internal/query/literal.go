package query

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nlstn/go-odata-sql/internal/edm"
	"github.com/nlstn/go-odata-sql/internal/schema"
)

var (
	dateTimeParts = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})T(\d{2}):(\d{2})(?::(\d{2})(?:\.(\d+))?)?([Zz]|[+\- ]\d{2}:\d{2})?$`)
	timeParts     = regexp.MustCompile(`^(\d{2}):(\d{2})(?::(\d{2})(?:\.(\d+))?)?$`)
)

// ParseLiteral parses a single literal in URL syntax, e.g. "'abc'", "12.5M" or
// "2024-01-02T03:04:05Z". Key predicates and round-trip tests use it.
func ParseLiteral(text string) (edm.Literal, error) {
	tokens, err := NewTokenizer(text).TokenizeAll()
	if err != nil {
		return edm.Literal{}, parseError("", "%v", err)
	}
	if len(tokens) != 2 {
		return edm.Literal{}, parseError("", "'%s' is not a single literal", text)
	}
	lit, ok, err := literalFromToken(tokens[0])
	if err != nil {
		return edm.Literal{}, err
	}
	if !ok {
		return edm.Literal{}, parseError("", "'%s' is not a literal", text)
	}
	return lit, nil
}

// literalFromToken converts a literal token. ok is false for non-literal tokens.
func literalFromToken(tok *Token) (edm.Literal, bool, error) {
	switch tok.Type {
	case TokenString:
		return edm.Literal{
			Type:  edm.TypeString,
			Value: tok.Value,
			Raw:   "'" + strings.ReplaceAll(tok.Value, "'", "''") + "'",
		}, true, nil
	case TokenNumber:
		lit, err := parseNumberLiteral(tok.Value)
		return lit, true, err
	case TokenBoolean:
		return edm.Literal{Type: edm.TypeBoolean, Value: tok.Value == "true", Raw: tok.Value}, true, nil
	case TokenNull:
		return edm.NullLiteral(), true, nil
	case TokenGuid:
		lit, err := parseGuidLiteral(tok.Value)
		return lit, true, err
	case TokenDateTime:
		lit, err := parseDateTimeLiteral(tok.Value)
		return lit, true, err
	case TokenDate:
		lit, err := parseDateLiteral(tok.Value)
		return lit, true, err
	case TokenTimeOfDay:
		lit, err := parseTimeOfDayLiteral(tok.Value)
		return lit, true, err
	case TokenTyped:
		lit, err := parseTypedLiteral(tok.Prefix, tok.Value)
		return lit, true, err
	}
	return edm.Literal{}, false, nil
}

// parseNumberLiteral applies the numeric literal grammar: INF/NaN, L/M/D/F suffixes,
// integers (Int32 when they fit, else Int64, else Decimal), fractions (Decimal) and
// exponents (Double).
func parseNumberLiteral(text string) (edm.Literal, error) {
	switch text {
	case "INF":
		return edm.Literal{Type: edm.TypeDouble, Value: math.Inf(1), Raw: text}, nil
	case "-INF":
		return edm.Literal{Type: edm.TypeDouble, Value: math.Inf(-1), Raw: text}, nil
	case "NaN":
		return edm.Literal{Type: edm.TypeDouble, Value: math.NaN(), Raw: text}, nil
	}

	body, suffix := text, byte(0)
	if last := text[len(text)-1]; strings.IndexByte("LlMmDdFf", last) >= 0 {
		body, suffix = text[:len(text)-1], last|0x20
	}
	isFloat := strings.ContainsAny(body, ".eE")
	hasExp := strings.ContainsAny(body, "eE")

	switch suffix {
	case 'l':
		if isFloat {
			return edm.Literal{}, parseError("", "invalid Int64 literal '%s'", text)
		}
		v, err := strconv.ParseInt(body, 10, 64)
		if err != nil {
			return edm.Literal{}, parseError("", "invalid Int64 literal '%s'", text)
		}
		return edm.Literal{Type: edm.TypeInt64, Value: v, Raw: text}, nil
	case 'm':
		if hasExp {
			return edm.Literal{}, parseError("", "invalid Decimal literal '%s'", text)
		}
		d, err := decimal.NewFromString(body)
		if err != nil {
			return edm.Literal{}, parseError("", "invalid Decimal literal '%s'", text)
		}
		return edm.Literal{Type: edm.TypeDecimal, Value: d, Raw: text}, nil
	case 'd', 'f':
		v, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return edm.Literal{}, parseError("", "invalid floating point literal '%s'", text)
		}
		if suffix == 'f' {
			return edm.Literal{Type: edm.TypeSingle, Value: float64(float32(v)), Raw: text}, nil
		}
		return edm.Literal{Type: edm.TypeDouble, Value: v, Raw: text}, nil
	}

	if hasExp {
		v, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return edm.Literal{}, parseError("", "invalid Double literal '%s'", text)
		}
		return edm.Literal{Type: edm.TypeDouble, Value: v, Raw: text}, nil
	}
	if isFloat {
		d, err := decimal.NewFromString(body)
		if err != nil {
			return edm.Literal{}, parseError("", "invalid Decimal literal '%s'", text)
		}
		return edm.Literal{Type: edm.TypeDecimal, Value: d, Raw: text}, nil
	}
	v, err := strconv.ParseInt(body, 10, 64)
	if err != nil {
		if _, ok := new(big.Int).SetString(body, 10); !ok {
			return edm.Literal{}, parseError("", "invalid number '%s'", text)
		}
		d, derr := decimal.NewFromString(body)
		if derr != nil {
			return edm.Literal{}, parseError("", "invalid number '%s'", text)
		}
		return edm.Literal{Type: edm.TypeDecimal, Value: d, Raw: text}, nil
	}
	if v >= math.MinInt32 && v <= math.MaxInt32 {
		return edm.Literal{Type: edm.TypeInt32, Value: v, Raw: text}, nil
	}
	return edm.Literal{Type: edm.TypeInt64, Value: v, Raw: text}, nil
}

func parseGuidLiteral(text string) (edm.Literal, error) {
	id, err := uuid.Parse(text)
	if err != nil || len(text) != 36 {
		return edm.Literal{}, parseError("", "invalid Guid literal '%s'", text)
	}
	return edm.Literal{Type: edm.TypeGuid, Value: id, Raw: text}, nil
}

// parseFraction converts up to 12 fractional digits to nanoseconds. Digits beyond the
// ninth must be zero.
func parseFraction(frac string) (int, error) {
	if len(frac) > 12 {
		return 0, fmt.Errorf("more than 12 fractional second digits")
	}
	if len(frac) > 9 {
		if strings.Trim(frac[9:], "0") != "" {
			return 0, fmt.Errorf("sub-nanosecond precision is not supported")
		}
		frac = frac[:9]
	}
	padded := frac + strings.Repeat("0", 9-len(frac))
	ns, err := strconv.Atoi(padded)
	if err != nil {
		return 0, err
	}
	return ns, nil
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	v, _ := strconv.Atoi(s)
	return v
}

// parseDateTimeLiteral parses an ISO-8601 datetime. Without an offset the literal is
// naive and read as UTC.
func parseDateTimeLiteral(text string) (edm.Literal, error) {
	m := dateTimeParts.FindStringSubmatch(text)
	if m == nil {
		return edm.Literal{}, parseError("", "invalid DateTimeOffset literal '%s'", text)
	}
	ns, err := parseFraction(m[7])
	if err != nil {
		return edm.Literal{}, parseError("", "invalid DateTimeOffset literal '%s': %v", text, err)
	}

	loc := time.UTC
	naive := true
	raw := text
	if zone := m[8]; zone != "" && zone != "Z" && zone != "z" {
		sign := 1
		if zone[0] == '-' {
			sign = -1
		}
		hours, minutes := atoi(zone[1:3]), atoi(zone[4:6])
		if hours > 14 || minutes > 59 {
			return edm.Literal{}, parseError("", "invalid offset in DateTimeOffset literal '%s'", text)
		}
		loc = time.FixedZone("", sign*(hours*3600+minutes*60))
		naive = false
		if zone[0] == ' ' {
			raw = text[:len(text)-len(zone)] + "+" + zone[1:]
		}
	} else if zone != "" {
		naive = false
	}

	year, month, day := atoi(m[1]), atoi(m[2]), atoi(m[3])
	hour, minute, second := atoi(m[4]), atoi(m[5]), atoi(m[6])
	t := time.Date(year, time.Month(month), day, hour, minute, second, ns, loc)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day ||
		t.Hour() != hour || t.Minute() != minute || t.Second() != second {
		return edm.Literal{}, parseError("", "invalid DateTimeOffset literal '%s'", text)
	}

	return edm.Literal{
		Type:   edm.TypeDateTimeOffset,
		Value:  t,
		Digits: min(len(m[7]), 9),
		Naive:  naive,
		Raw:    raw,
	}, nil
}

func parseDateLiteral(text string) (edm.Literal, error) {
	d, err := schema.ParseDate(text)
	if err != nil {
		return edm.Literal{}, parseError("", "invalid Date literal '%s'", text)
	}
	return edm.Literal{Type: edm.TypeDate, Value: d, Raw: text}, nil
}

func parseTimeOfDayLiteral(text string) (edm.Literal, error) {
	m := timeParts.FindStringSubmatch(text)
	if m == nil {
		return edm.Literal{}, parseError("", "invalid TimeOfDay literal '%s'", text)
	}
	ns, err := parseFraction(m[4])
	if err != nil {
		return edm.Literal{}, parseError("", "invalid TimeOfDay literal '%s': %v", text, err)
	}
	tod := schema.TimeOfDay{Hour: atoi(m[1]), Minute: atoi(m[2]), Second: atoi(m[3]), Nanosecond: ns}
	if tod.Hour > 23 || tod.Minute > 59 || tod.Second > 59 {
		return edm.Literal{}, parseError("", "invalid TimeOfDay literal '%s'", text)
	}
	return edm.Literal{Type: edm.TypeTimeOfDay, Value: tod, Digits: len(m[4]), Raw: text}, nil
}

func parseTypedLiteral(prefix, body string) (edm.Literal, error) {
	raw := prefix + "'" + strings.ReplaceAll(body, "'", "''") + "'"
	var (
		lit edm.Literal
		err error
	)
	switch prefix {
	case "guid":
		lit, err = parseGuidLiteral(body)
	case "x":
		b, herr := hex.DecodeString(body)
		if herr != nil {
			return edm.Literal{}, parseError("", "invalid binary literal %s", raw)
		}
		lit = edm.Literal{Type: edm.TypeBinary, Value: b}
	case "binary":
		b, berr := decodeBase64(body)
		if berr != nil {
			return edm.Literal{}, parseError("", "invalid binary literal %s", raw)
		}
		lit = edm.Literal{Type: edm.TypeBinary, Value: b}
	case "datetime":
		lit, err = parseDateTimeLiteral(body)
	case "datetimeoffset":
		lit, err = parseDateTimeLiteral(body)
		if err == nil && lit.Naive {
			return edm.Literal{}, parseError("", "DateTimeOffset literal %s has no offset", raw)
		}
	case "date":
		lit, err = parseDateLiteral(body)
	case "time", "timeofday":
		lit, err = parseTimeOfDayLiteral(body)
	default:
		return edm.Literal{}, unsupported("", "%s literals are not supported", prefix)
	}
	if err != nil {
		return edm.Literal{}, err
	}
	lit.Raw = raw
	return lit, nil
}

// decodeBase64 accepts base64url (OData v4) and standard base64, padded or not.
func decodeBase64(s string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.URLEncoding, base64.RawURLEncoding, base64.StdEncoding, base64.RawStdEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
