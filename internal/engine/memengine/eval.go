package memengine

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nlstn/go-odata-sql/internal/engine"
	"github.com/nlstn/go-odata-sql/internal/schema"
)

// truth is a three-valued logic value.
type truth int8

const (
	no truth = iota
	yes
	unknown
)

func truthOf(b bool) truth {
	if b {
		return yes
	}
	return no
}

type evaluator struct {
	schema schema.Schema
}

func newEvaluator(sch schema.Schema) *evaluator {
	return &evaluator{schema: sch}
}

// test evaluates a boolean expression against a row.
func (ev *evaluator) test(e engine.Expr, row engine.Row) (truth, error) {
	switch x := e.(type) {
	case *engine.And:
		result := yes
		for _, term := range x.Terms {
			t, err := ev.test(term, row)
			if err != nil {
				return no, err
			}
			if t == no {
				return no, nil
			}
			if t == unknown {
				result = unknown
			}
		}
		return result, nil

	case *engine.Or:
		result := no
		for _, term := range x.Terms {
			t, err := ev.test(term, row)
			if err != nil {
				return no, err
			}
			if t == yes {
				return yes, nil
			}
			if t == unknown {
				result = unknown
			}
		}
		return result, nil

	case *engine.Not:
		t, err := ev.test(x.Expr, row)
		if err != nil {
			return no, err
		}
		switch t {
		case yes:
			return no, nil
		case no:
			return yes, nil
		}
		return unknown, nil

	case *engine.IsNull:
		v, err := ev.value(x.Expr, row)
		if err != nil {
			return no, err
		}
		return truthOf(v == nil), nil

	case *engine.Compare:
		l, err := ev.value(x.Left, row)
		if err != nil {
			return no, err
		}
		r, err := ev.value(x.Right, row)
		if err != nil {
			return no, err
		}
		if l == nil || r == nil {
			return unknown, nil
		}
		c, err := compareValues(l, r)
		if err != nil {
			return no, err
		}
		return truthOf(applyOp(x.Op, c)), nil

	case *engine.Like:
		v, err := ev.value(x.Expr, row)
		if err != nil {
			return no, err
		}
		if v == nil {
			return unknown, nil
		}
		s, ok := v.(string)
		if !ok {
			return no, fmt.Errorf("memengine: LIKE on %T", v)
		}
		re, err := likeRegexp(x.Pattern, x.Escape)
		if err != nil {
			return no, err
		}
		return truthOf(re.MatchString(s)), nil

	case *engine.InList:
		v, err := ev.value(x.Expr, row)
		if err != nil {
			return no, err
		}
		if v == nil {
			return unknown, nil
		}
		for _, candidate := range x.Values {
			c, err := compareValues(v, candidate)
			if err != nil {
				return no, err
			}
			if c == 0 {
				return yes, nil
			}
		}
		return no, nil

	case *engine.Column, *engine.Literal, *engine.Call:
		v, err := ev.value(e, row)
		if err != nil {
			return no, err
		}
		if v == nil {
			return unknown, nil
		}
		b, ok := v.(bool)
		if !ok {
			return no, fmt.Errorf("memengine: %s is not boolean", e)
		}
		return truthOf(b), nil
	}
	return no, fmt.Errorf("memengine: unsupported expression %T", e)
}

func applyOp(op engine.CompareOp, c int) bool {
	switch op {
	case engine.Eq:
		return c == 0
	case engine.Ne:
		return c != 0
	case engine.Gt:
		return c > 0
	case engine.Ge:
		return c >= 0
	case engine.Lt:
		return c < 0
	case engine.Le:
		return c <= 0
	}
	return false
}

// value evaluates a scalar expression.
func (ev *evaluator) value(e engine.Expr, row engine.Row) (any, error) {
	switch x := e.(type) {
	case *engine.Column:
		i := ev.schema.Index(x.Name)
		if i < 0 {
			return nil, fmt.Errorf("memengine: unknown column %q", x.Name)
		}
		return row[i], nil
	case *engine.Literal:
		return x.Value, nil
	case *engine.Call:
		args := make([]any, len(x.Args))
		for i, a := range x.Args {
			v, err := ev.value(a, row)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return callFunction(x.Func, args)
	}
	t, err := ev.test(e, row)
	if err != nil {
		return nil, err
	}
	if t == unknown {
		return nil, nil
	}
	return t == yes, nil
}

// callFunction applies a canonical scalar function. Any null argument yields null.
func callFunction(name string, args []any) (any, error) {
	for _, a := range args {
		if a == nil {
			return nil, nil
		}
	}
	switch name {
	case "lower", "upper", "trim", "length":
		s, err := stringArg(name, args, 0)
		if err != nil {
			return nil, err
		}
		switch name {
		case "lower":
			return strings.ToLower(s), nil
		case "upper":
			return strings.ToUpper(s), nil
		case "trim":
			return strings.TrimSpace(s), nil
		}
		return int64(utf8.RuneCountInString(s)), nil

	case "concat", "indexof":
		a, err := stringArg(name, args, 0)
		if err != nil {
			return nil, err
		}
		b, err := stringArg(name, args, 1)
		if err != nil {
			return nil, err
		}
		if name == "concat" {
			return a + b, nil
		}
		i := strings.Index(a, b)
		if i < 0 {
			return int64(-1), nil
		}
		return int64(utf8.RuneCountInString(a[:i])), nil

	case "year", "month", "day":
		if len(args) != 1 {
			return nil, fmt.Errorf("memengine: %s expects 1 argument", name)
		}
		var d schema.CivilDate
		switch v := args[0].(type) {
		case schema.CivilDate:
			d = v
		case time.Time:
			d = schema.DateOf(v)
		default:
			return nil, fmt.Errorf("memengine: %s of %T", name, args[0])
		}
		switch name {
		case "year":
			return int64(d.Year), nil
		case "month":
			return int64(d.Month), nil
		}
		return int64(d.Day), nil

	case "hour", "minute", "second":
		if len(args) != 1 {
			return nil, fmt.Errorf("memengine: %s expects 1 argument", name)
		}
		var tod schema.TimeOfDay
		switch v := args[0].(type) {
		case schema.TimeOfDay:
			tod = v
		case time.Time:
			tod = schema.TimeOfDayOf(v)
		default:
			return nil, fmt.Errorf("memengine: %s of %T", name, args[0])
		}
		switch name {
		case "hour":
			return int64(tod.Hour), nil
		case "minute":
			return int64(tod.Minute), nil
		}
		return int64(tod.Second), nil
	}
	return nil, fmt.Errorf("memengine: unknown function %q", name)
}

func stringArg(name string, args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("memengine: %s expects %d argument(s)", name, i+1)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("memengine: %s argument %d is %T, not a string", name, i+1, args[i])
	}
	return s, nil
}

// compareValues orders two non-null scalars. Numbers of different Go types compare by
// value.
func compareValues(a, b any) (int, error) {
	a, b = canonical(a), canonical(b)

	switch av := a.(type) {
	case int64:
		switch bv := b.(type) {
		case int64:
			return cmpOrdered(av, bv), nil
		case float64:
			return cmpFloat(float64(av), bv), nil
		case decimal.Decimal:
			return decimal.NewFromInt(av).Cmp(bv), nil
		}
	case float64:
		switch bv := b.(type) {
		case int64:
			return cmpFloat(av, float64(bv)), nil
		case float64:
			return cmpFloat(av, bv), nil
		case decimal.Decimal:
			f, _ := bv.Float64()
			return cmpFloat(av, f), nil
		}
	case decimal.Decimal:
		switch bv := b.(type) {
		case int64:
			return av.Cmp(decimal.NewFromInt(bv)), nil
		case float64:
			f, _ := av.Float64()
			return cmpFloat(f, bv), nil
		case decimal.Decimal:
			return av.Cmp(bv), nil
		}
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), nil
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0, nil
			case !av:
				return -1, nil
			}
			return 1, nil
		}
	case []byte:
		if bv, ok := b.([]byte); ok {
			return bytes.Compare(av, bv), nil
		}
	case uuid.UUID:
		if bv, ok := b.(uuid.UUID); ok {
			return bytes.Compare(av[:], bv[:]), nil
		}
	case schema.CivilDate:
		if bv, ok := b.(schema.CivilDate); ok {
			return av.Compare(bv), nil
		}
	case schema.TimeOfDay:
		if bv, ok := b.(schema.TimeOfDay); ok {
			return av.Compare(bv), nil
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv), nil
		}
	}
	return 0, fmt.Errorf("memengine: cannot compare %T with %T", a, b)
}

// canonical widens Go numeric types to int64 or float64.
func canonical(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return decimal.NewFromUint64(x)
		}
		return int64(x)
	case float32:
		return float64(x)
	}
	return v
}

type ordered interface {
	~int64 | ~float64
}

func cmpOrdered[T ordered](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// cmpFloat orders NaN above every number, as PostgreSQL does.
func cmpFloat(a, b float64) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	}
	return cmpOrdered(a, b)
}

var likeCache sync.Map

// likeRegexp compiles a LIKE pattern into an anchored regular expression.
func likeRegexp(pattern string, escape rune) (*regexp.Regexp, error) {
	key := string(escape) + pattern
	if re, ok := likeCache.Load(key); ok {
		return re.(*regexp.Regexp), nil
	}

	var b strings.Builder
	b.WriteString(`(?s)^`)
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			b.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
		case escape != 0 && r == escape:
			escaped = true
		case r == '%':
			b.WriteString(".*")
		case r == '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	if escaped {
		return nil, fmt.Errorf("memengine: LIKE pattern %q ends with the escape character", pattern)
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, err
	}
	likeCache.Store(key, re)
	return re, nil
}
