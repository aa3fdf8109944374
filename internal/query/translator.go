package query

import (
	"errors"
	"strings"

	"github.com/nlstn/go-odata-sql/internal/edm"
	"github.com/nlstn/go-odata-sql/internal/engine"
)

// LikeEscape is the escape character of generated LIKE patterns.
const LikeEscape = '\\'

var likeEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"%", "\\%",
	"_", "\\_",
)

func escapeLikePattern(value string) string {
	return likeEscaper.Replace(value)
}

// Plan is the engine-facing form of a collection request.
type Plan struct {
	// Query has no Limit or Offset; pagination sets them.
	Query engine.Query
	Count engine.CountQuery
	// Output lists the properties to serialize, in response order. Query.Projection may
	// additionally carry key properties.
	Output []string
}

// Translate validates opts against et and lowers them to engine queries over table.
// It is a pure function of its inputs.
func Translate(et *edm.EntityType, table string, opts *QueryOptions) (*Plan, error) {
	filter, err := TranslateFilter(et, opts.Filter)
	if err != nil {
		return nil, err
	}
	output, projection, err := ResolveSelect(et, opts.Select)
	if err != nil {
		return nil, err
	}
	sort, err := ResolveOrderBy(et, opts.OrderBy)
	if err != nil {
		return nil, err
	}
	return &Plan{
		Query: engine.Query{
			Table:      table,
			Projection: projection,
			Filter:     filter,
			Sort:       sort,
			Limit:      -1,
		},
		Count:  engine.CountQuery{Table: table, Filter: filter},
		Output: output,
	}, nil
}

// ResolveSelect returns the output properties in client order (every property in
// declaration order when sel is nil) and the fetch projection, which appends any key
// property missing from the output.
func ResolveSelect(et *edm.EntityType, sel []string) (output, projection []string, err error) {
	if sel == nil {
		output = et.PropertyNames()
	} else {
		for _, name := range sel {
			if _, ok := et.Property(name); !ok {
				return nil, nil, &Error{
					Kind:    KindInvalidProperty,
					Option:  "$select",
					Message: "property '" + name + "' does not exist on " + et.Name,
					Target:  name,
				}
			}
		}
		output = sel
	}

	projection = append(make([]string, 0, len(output)+len(et.Key)), output...)
	for _, key := range et.Key {
		if !contains(output, key) {
			projection = append(projection, key)
		}
	}
	return output, projection, nil
}

// ResolveOrderBy validates the client ordering and appends the key properties not
// already ordered by, so that the sort is a total order.
func ResolveOrderBy(et *edm.EntityType, items []OrderByItem) ([]engine.SortKey, error) {
	keys := make([]engine.SortKey, 0, len(items)+len(et.Key))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if _, ok := et.Property(item.Property); !ok {
			return nil, &Error{
				Kind:    KindInvalidProperty,
				Option:  "$orderby",
				Message: "property '" + item.Property + "' does not exist on " + et.Name,
				Target:  item.Property,
			}
		}
		if seen[item.Property] {
			continue
		}
		seen[item.Property] = true
		keys = append(keys, engine.SortKey{Column: item.Property, Descending: item.Descending})
	}
	for _, key := range et.Key {
		if !seen[key] {
			keys = append(keys, engine.SortKey{Column: key})
		}
	}
	return keys, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// TranslateFilter lowers a predicate into the engine filter tree, resolving fields
// against et and coercing literals to the column types. A nil predicate yields nil.
func TranslateFilter(et *edm.EntityType, pred Predicate) (engine.Expr, error) {
	if pred == nil {
		return nil, nil
	}
	expr, err := (&translator{et: et}).predicate(pred)
	if err != nil {
		return nil, withOption(err, "$filter")
	}
	return expr, nil
}

type translator struct {
	et *edm.EntityType
}

// typed is a translated operand with its EDM description.
type typed struct {
	expr engine.Expr
	prop *edm.Property
	// lit is set for literal operands.
	lit *edm.Literal
}

func (t *translator) predicate(p Predicate) (engine.Expr, error) {
	switch p := p.(type) {
	case *Logical:
		terms := make([]engine.Expr, len(p.Children))
		for i, c := range p.Children {
			term, err := t.predicate(c)
			if err != nil {
				return nil, err
			}
			terms[i] = term
		}
		switch p.Op {
		case And:
			return &engine.And{Terms: terms}, nil
		case Or:
			return &engine.Or{Terms: terms}, nil
		default:
			return &engine.Not{Expr: terms[0]}, nil
		}
	case *Comparison:
		return t.comparison(p)
	case *FunctionCall:
		return t.pattern(p)
	case *In:
		return t.in(p)
	}
	return nil, parseError("", "unknown predicate %T", p)
}

var compareOps = map[CompareOp]engine.CompareOp{
	OpEq: engine.Eq,
	OpNe: engine.Ne,
	OpGt: engine.Gt,
	OpGe: engine.Ge,
	OpLt: engine.Lt,
	OpLe: engine.Le,
}

func (t *translator) comparison(c *Comparison) (engine.Expr, error) {
	op, ok := compareOps[c.Op]
	if !ok {
		return nil, parseError("", "unknown operator '%s'", c.Op)
	}
	left, err := t.operand(c.Left)
	if err != nil {
		return nil, err
	}

	if rl, isLit := c.Right.(*LiteralOperand); isLit {
		if rl.Literal.IsNull() {
			if c.Op.Ordering() {
				return nil, typeMismatch(left.prop.Name, "operator '%s' cannot compare with null", c.Op)
			}
			if left.lit != nil && left.lit.IsNull() {
				return nil, typeMismatch("", "cannot compare null with null")
			}
			isNull := &engine.IsNull{Expr: left.expr}
			if c.Op == OpEq {
				return isNull, nil
			}
			return &engine.Not{Expr: isNull}, nil
		}
		if left.lit != nil && left.lit.IsNull() {
			return nil, typeMismatch("", "cannot compare null with %s", rl.Literal)
		}
		value, err := t.coerce(rl.Literal, left.prop)
		if err != nil {
			return nil, err
		}
		return &engine.Compare{Op: op, Left: left.expr, Right: &engine.Literal{Value: value}}, nil
	}

	right, err := t.operand(c.Right)
	if err != nil {
		return nil, err
	}
	if !comparableTypes(left.prop.Type, right.prop.Type) {
		return nil, typeMismatch(left.prop.Name, "cannot compare %s with %s", left.prop.Type, right.prop.Type)
	}
	return &engine.Compare{Op: op, Left: left.expr, Right: right.expr}, nil
}

// comparableTypes reports whether two non-literal operands can be compared.
func comparableTypes(a, b string) bool {
	return a == b || (edm.IsNumeric(a) && edm.IsNumeric(b))
}

func (t *translator) coerce(lit edm.Literal, p *edm.Property) (any, error) {
	value, err := edm.CoerceLiteral(lit, p)
	if err != nil {
		if errors.Is(err, edm.ErrTypeMismatch) {
			return nil, &Error{Kind: KindTypeMismatch, Message: err.Error(), Target: p.Name, Err: err}
		}
		return nil, err
	}
	return value, nil
}

func typeMismatch(target, format string, args ...any) *Error {
	e := newError(KindTypeMismatch, "", format, args...)
	e.Target = target
	return e
}

func (t *translator) operand(o Operand) (*typed, error) {
	switch o := o.(type) {
	case *FieldRef:
		p, ok := t.et.Property(o.Name)
		if !ok {
			return nil, &Error{
				Kind:    KindUnknownField,
				Message: "property '" + o.Name + "' does not exist on " + t.et.Name,
				Target:  o.Name,
			}
		}
		return &typed{expr: &engine.Column{Name: p.Name}, prop: p}, nil

	case *LiteralOperand:
		lit := o.Literal
		return &typed{
			expr: &engine.Literal{Value: lit.Value},
			prop: edm.ResultProperty(lit.String(), lit.Type),
			lit:  &lit,
		}, nil

	case *Call:
		def, err := lookupFunction(o.Name)
		if err != nil {
			return nil, err
		}
		args, err := t.functionArgs(def, o.Args)
		if err != nil {
			return nil, err
		}
		exprs := make([]engine.Expr, len(args))
		for i, a := range args {
			exprs[i] = a.expr
		}
		return &typed{
			expr: &engine.Call{Func: def.Engine, Args: exprs},
			prop: edm.ResultProperty(o.String(), def.Result),
		}, nil
	}
	return nil, parseError("", "unknown operand %T", o)
}

// functionArgs translates and type-checks the arguments of a function.
func (t *translator) functionArgs(def *functionDef, operands []Operand) ([]*typed, error) {
	args := make([]*typed, len(operands))
	for i, o := range operands {
		arg, err := t.operand(o)
		if err != nil {
			return nil, err
		}
		if arg.lit != nil && arg.lit.IsNull() {
			return nil, typeMismatch("", "argument %d of %s cannot be null", i+1, def.Name)
		}
		if !def.Args[i].accepts(arg.prop.Type) {
			target := ""
			if _, isField := o.(*FieldRef); isField {
				target = arg.prop.Name
			}
			return nil, typeMismatch(target, "argument %d of %s must be %s, got %s", i+1, def.Name, def.Args[i], arg.prop.Type)
		}
		args[i] = arg
	}
	return args, nil
}

// pattern lowers contains, startswith, endswith and substringof to LIKE.
func (t *translator) pattern(f *FunctionCall) (engine.Expr, error) {
	def, err := lookupFunction(f.Name)
	if err != nil {
		return nil, err
	}
	args, err := t.functionArgs(def, f.Args)
	if err != nil {
		return nil, err
	}

	subject, needle := args[0], args[1]
	if def.Name == "substringof" {
		subject, needle = args[1], args[0]
	}
	if needle.lit == nil {
		return nil, unsupported("", "the search argument of %s must be a string literal", def.Name)
	}

	text, _ := needle.lit.Value.(string)
	pattern := escapeLikePattern(text)
	switch def.Name {
	case "contains", "substringof":
		pattern = "%" + pattern + "%"
	case "startswith":
		pattern += "%"
	case "endswith":
		pattern = "%" + pattern
	}
	return &engine.Like{Expr: subject.expr, Pattern: pattern, Escape: LikeEscape}, nil
}

// in lowers a membership test. Null list entries become an IS NULL alternative.
func (t *translator) in(in *In) (engine.Expr, error) {
	left, err := t.operand(in.Left)
	if err != nil {
		return nil, err
	}
	if left.lit != nil {
		return nil, unsupported("", "the left operand of 'in' must be a property or function")
	}

	values := make([]any, 0, len(in.Values))
	hasNull := false
	for _, lit := range in.Values {
		if lit.IsNull() {
			hasNull = true
			continue
		}
		v, err := t.coerce(lit, left.prop)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}

	isNull := &engine.IsNull{Expr: left.expr}
	switch {
	case len(values) == 0:
		return isNull, nil
	case hasNull:
		return &engine.Or{Terms: []engine.Expr{&engine.InList{Expr: left.expr, Values: values}, isNull}}, nil
	}
	return &engine.InList{Expr: left.expr, Values: values}, nil
}
