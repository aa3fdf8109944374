package query

import "github.com/nlstn/go-odata-sql/internal/edm"

// ASTNode represents a node in the abstract syntax tree
type ASTNode interface {
	astNode()
}

// BinaryExpr represents a binary expression (e.g., A and B, X add Y)
type BinaryExpr struct {
	Left     ASTNode
	Operator string
	Right    ASTNode
}

func (e *BinaryExpr) astNode() {}

// UnaryExpr represents a unary expression (e.g., not X)
type UnaryExpr struct {
	Operator string
	Operand  ASTNode
}

func (e *UnaryExpr) astNode() {}

// ComparisonExpr represents a comparison (e.g., Price gt 100)
type ComparisonExpr struct {
	Left     ASTNode
	Operator string
	Right    ASTNode
}

func (e *ComparisonExpr) astNode() {}

// FunctionCallExpr represents a function call (e.g., contains(Name, 'text'))
type FunctionCallExpr struct {
	Function string
	Args     []ASTNode
}

func (e *FunctionCallExpr) astNode() {}

// IdentifierExpr represents an identifier (property name). Path is set for
// slash-separated member paths, which are not resolvable against a flat entity type.
type IdentifierExpr struct {
	Name string
	Path bool
}

func (e *IdentifierExpr) astNode() {}

// LiteralExpr represents a literal value
type LiteralExpr struct {
	Literal edm.Literal
}

func (e *LiteralExpr) astNode() {}

// CollectionExpr is the parenthesized value list on the right of 'in'.
type CollectionExpr struct {
	Values []ASTNode
}

func (e *CollectionExpr) astNode() {}

// GroupExpr represents a grouped expression (parentheses)
type GroupExpr struct {
	Expr ASTNode
}

func (e *GroupExpr) astNode() {}

// unwrapGroup strips any number of enclosing parentheses.
func unwrapGroup(n ASTNode) ASTNode {
	for {
		g, ok := n.(*GroupExpr)
		if !ok {
			return n
		}
		n = g.Expr
	}
}
