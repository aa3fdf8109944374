package query

import (
	"fmt"
	"strings"

	"github.com/nlstn/go-odata-sql/internal/edm"
)

// CompareOp is a comparison operator.
type CompareOp string

const (
	OpEq CompareOp = "eq"
	OpNe CompareOp = "ne"
	OpGt CompareOp = "gt"
	OpGe CompareOp = "ge"
	OpLt CompareOp = "lt"
	OpLe CompareOp = "le"
)

// Mirror returns the operator that gives the same result with swapped operands.
func (op CompareOp) Mirror() CompareOp {
	switch op {
	case OpGt:
		return OpLt
	case OpGe:
		return OpLe
	case OpLt:
		return OpGt
	case OpLe:
		return OpGe
	}
	return op
}

// Ordering reports whether the operator compares by order rather than equality.
func (op CompareOp) Ordering() bool {
	return op != OpEq && op != OpNe
}

// LogicalOp combines predicates.
type LogicalOp string

const (
	And LogicalOp = "and"
	Or  LogicalOp = "or"
	Not LogicalOp = "not"
)

// Predicate is a parsed boolean filter expression. The set of implementations is closed.
type Predicate interface {
	fmt.Stringer
	predicate()
}

// Comparison compares two operands. A literal operand is always on the right unless both
// sides are literals.
type Comparison struct {
	Op    CompareOp
	Left  Operand
	Right Operand
}

// Logical is and/or over two or more children, or not over exactly one.
type Logical struct {
	Op       LogicalOp
	Children []Predicate
}

// FunctionCall is a boolean-valued function such as contains(Name,'x').
type FunctionCall struct {
	Name string
	Args []Operand
}

// In tests an operand against a literal list.
type In struct {
	Left   Operand
	Values []edm.Literal
}

func (*Comparison) predicate()   {}
func (*Logical) predicate()      {}
func (*FunctionCall) predicate() {}
func (*In) predicate()           {}

func (c *Comparison) String() string {
	return fmt.Sprintf("%s %s %s", c.Left, c.Op, c.Right)
}

func (l *Logical) String() string {
	if l.Op == Not {
		return fmt.Sprintf("not (%s)", l.Children[0])
	}
	parts := make([]string, len(l.Children))
	for i, c := range l.Children {
		parts[i] = "(" + c.String() + ")"
	}
	return strings.Join(parts, " "+string(l.Op)+" ")
}

func (f *FunctionCall) String() string {
	return callString(f.Name, f.Args)
}

func (in *In) String() string {
	values := make([]string, len(in.Values))
	for i, v := range in.Values {
		values[i] = v.String()
	}
	return fmt.Sprintf("%s in (%s)", in.Left, strings.Join(values, ","))
}

// Operand is a value-producing expression: a field, a function call or a literal.
type Operand interface {
	fmt.Stringer
	operand()
}

// FieldRef names a property of the entity type.
type FieldRef struct {
	Name string
}

// Call is a non-boolean function such as tolower(Name).
type Call struct {
	Name string
	Args []Operand
}

// LiteralOperand wraps a literal.
type LiteralOperand struct {
	Literal edm.Literal
}

func (*FieldRef) operand()       {}
func (*Call) operand()           {}
func (*LiteralOperand) operand() {}

func (f *FieldRef) String() string       { return f.Name }
func (c *Call) String() string           { return callString(c.Name, c.Args) }
func (l *LiteralOperand) String() string { return l.Literal.String() }

func callString(name string, args []Operand) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return name + "(" + strings.Join(parts, ",") + ")"
}

var trueLiteral = edm.Literal{Type: edm.TypeBoolean, Value: true, Raw: "true"}

// ParseFilter parses a $filter expression into a Predicate. Field names are not
// resolved here; see Translator.
func ParseFilter(filter string) (Predicate, error) {
	ast, err := parseFilterAST(filter)
	if err != nil {
		return nil, withOption(err, "$filter")
	}
	pred, err := toPredicate(ast)
	if err != nil {
		return nil, withOption(err, "$filter")
	}
	return pred, nil
}

func toPredicate(n ASTNode) (Predicate, error) {
	switch node := unwrapGroup(n).(type) {
	case *BinaryExpr:
		op := LogicalOp(node.Operator)
		if op != And && op != Or {
			return nil, unsupported("", "arithmetic operator '%s' is not supported", node.Operator)
		}
		left, err := toPredicate(node.Left)
		if err != nil {
			return nil, err
		}
		right, err := toPredicate(node.Right)
		if err != nil {
			return nil, err
		}
		return &Logical{Op: op, Children: append(flatten(op, left), flatten(op, right)...)}, nil

	case *UnaryExpr:
		operand, err := toPredicate(node.Operand)
		if err != nil {
			return nil, err
		}
		return &Logical{Op: Not, Children: []Predicate{operand}}, nil

	case *ComparisonExpr:
		return comparisonToPredicate(node)

	case *FunctionCallExpr:
		def, err := lookupFunction(node.Function)
		if err != nil {
			return nil, err
		}
		if !def.IsPredicate() {
			return nil, newError(KindTypeMismatch, "", "%s returns %s, a filter must be boolean", def.Name, def.Result)
		}
		args, err := functionArgs(def, node.Args)
		if err != nil {
			return nil, err
		}
		return &FunctionCall{Name: def.Name, Args: args}, nil

	case *IdentifierExpr:
		if node.Path {
			return nil, unsupported("", "property path '%s' is not supported", node.Name)
		}
		// a bare property is shorthand for Property eq true
		return &Comparison{Op: OpEq, Left: &FieldRef{Name: node.Name}, Right: &LiteralOperand{Literal: trueLiteral}}, nil

	case *LiteralExpr:
		return nil, parseError("", "literal %s is not a boolean expression", node.Literal)
	}
	return nil, parseError("", "invalid filter expression")
}

// flatten merges nested and/or chains of the same operator into one child list.
func flatten(op LogicalOp, p Predicate) []Predicate {
	if l, ok := p.(*Logical); ok && l.Op == op {
		return l.Children
	}
	return []Predicate{p}
}

func comparisonToPredicate(node *ComparisonExpr) (Predicate, error) {
	switch node.Operator {
	case "has":
		return nil, unsupported("", "operator 'has' is not supported")
	case "in":
		return inToPredicate(node)
	}
	op := CompareOp(node.Operator)

	// boolean expression compared with true/false
	leftPred, rightPred := isPredicateNode(node.Left), isPredicateNode(node.Right)
	if leftPred || rightPred {
		pred, lit := node.Left, node.Right
		if rightPred && !leftPred {
			pred, lit = node.Right, node.Left
		}
		b, ok := boolLiteral(lit)
		if !ok || op.Ordering() {
			return nil, unsupported("", "comparison of boolean expressions with '%s' is not supported", op)
		}
		inner, err := toPredicate(pred)
		if err != nil {
			return nil, err
		}
		if b == (op == OpEq) {
			return inner, nil
		}
		return &Logical{Op: Not, Children: []Predicate{inner}}, nil
	}

	left, err := toOperand(node.Left)
	if err != nil {
		return nil, err
	}
	right, err := toOperand(node.Right)
	if err != nil {
		return nil, err
	}
	_, leftLit := left.(*LiteralOperand)
	_, rightLit := right.(*LiteralOperand)
	if leftLit && !rightLit {
		left, right, op = right, left, op.Mirror()
	}
	return &Comparison{Op: op, Left: left, Right: right}, nil
}

func inToPredicate(node *ComparisonExpr) (Predicate, error) {
	left, err := toOperand(node.Left)
	if err != nil {
		return nil, err
	}
	coll, ok := node.Right.(*CollectionExpr)
	if !ok {
		return nil, parseError("", "'in' expects a parenthesized list of literals")
	}
	values := make([]edm.Literal, 0, len(coll.Values))
	for _, v := range coll.Values {
		lit, ok := unwrapGroup(v).(*LiteralExpr)
		if !ok {
			return nil, parseError("", "'in' list values must be literals")
		}
		values = append(values, lit.Literal)
	}
	return &In{Left: left, Values: values}, nil
}

func isPredicateNode(n ASTNode) bool {
	switch node := unwrapGroup(n).(type) {
	case *ComparisonExpr, *UnaryExpr:
		return true
	case *BinaryExpr:
		return node.Operator == string(And) || node.Operator == string(Or)
	case *FunctionCallExpr:
		def, ok := functions[node.Function]
		return ok && def.IsPredicate()
	}
	return false
}

func boolLiteral(n ASTNode) (bool, bool) {
	lit, ok := unwrapGroup(n).(*LiteralExpr)
	if !ok || lit.Literal.Type != edm.TypeBoolean {
		return false, false
	}
	b, ok := lit.Literal.Value.(bool)
	return b, ok
}

func toOperand(n ASTNode) (Operand, error) {
	switch node := unwrapGroup(n).(type) {
	case *IdentifierExpr:
		if node.Path {
			return nil, unsupported("", "property path '%s' is not supported", node.Name)
		}
		return &FieldRef{Name: node.Name}, nil

	case *LiteralExpr:
		return &LiteralOperand{Literal: node.Literal}, nil

	case *FunctionCallExpr:
		def, err := lookupFunction(node.Function)
		if err != nil {
			return nil, err
		}
		if def.IsPredicate() {
			return nil, unsupported("", "boolean function '%s' cannot be used as a value", def.Name)
		}
		args, err := functionArgs(def, node.Args)
		if err != nil {
			return nil, err
		}
		return &Call{Name: def.Name, Args: args}, nil

	case *BinaryExpr:
		if node.Operator != string(And) && node.Operator != string(Or) {
			return nil, unsupported("", "arithmetic operator '%s' is not supported", node.Operator)
		}
		return nil, unsupported("", "boolean expression cannot be used as a value")

	case *ComparisonExpr, *UnaryExpr:
		return nil, unsupported("", "boolean expression cannot be used as a value")
	}
	return nil, parseError("", "invalid operand")
}

func functionArgs(def *functionDef, nodes []ASTNode) ([]Operand, error) {
	if len(nodes) != len(def.Args) {
		return nil, parseError("", "function '%s' expects %d argument(s), got %d", def.Name, len(def.Args), len(nodes))
	}
	args := make([]Operand, len(nodes))
	for i, n := range nodes {
		arg, err := toOperand(n)
		if err != nil {
			return nil, err
		}
		args[i] = arg
	}
	return args, nil
}
