package query

import (
	"strings"
)

// ASTParser parses filter expressions into an AST
type ASTParser struct {
	tokens  []*Token
	current int
}

// NewASTParser creates a new AST parser
func NewASTParser(tokens []*Token) *ASTParser {
	return &ASTParser{
		tokens:  tokens,
		current: 0,
	}
}

// parseFilterAST tokenizes and parses a $filter expression.
func parseFilterAST(filter string) (ASTNode, error) {
	if strings.TrimSpace(filter) == "" {
		return nil, parseError("", "%v", errEmptyExpression)
	}
	tokens, err := NewTokenizer(filter).TokenizeAll()
	if err != nil {
		return nil, parseError("", "%v", err)
	}
	return NewASTParser(tokens).Parse()
}

// currentToken returns the current token
func (p *ASTParser) currentToken() *Token {
	if p.current >= len(p.tokens) {
		return &Token{Type: TokenEOF}
	}
	return p.tokens[p.current]
}

func (p *ASTParser) peekToken() *Token {
	if p.current+1 >= len(p.tokens) {
		return &Token{Type: TokenEOF}
	}
	return p.tokens[p.current+1]
}

// advance moves to the next token
func (p *ASTParser) advance() *Token {
	token := p.currentToken()
	if p.current < len(p.tokens)-1 {
		p.current++
	}
	return token
}

// expect checks if the current token matches the expected type and advances
func (p *ASTParser) expect(tokenType TokenType) error {
	token := p.currentToken()
	if token.Type != tokenType {
		if token.Type == TokenEOF {
			return parseError("", "expected %v, got %v", tokenType, errUnexpectedEOF)
		}
		return parseError("", "expected %v, got %v at position %d", tokenType, token.Type, token.Pos)
	}
	p.advance()
	return nil
}

// Parse parses the tokens into an AST
func (p *ASTParser) Parse() (ASTNode, error) {
	if p.currentToken().Type == TokenEOF {
		return nil, parseError("", "%v", errEmptyExpression)
	}

	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	// Verify all tokens were consumed (except EOF)
	if tok := p.currentToken(); tok.Type != TokenEOF {
		return nil, parseError("", "unexpected %v '%s' at position %d", tok.Type, tok.Value, tok.Pos)
	}

	return node, nil
}

// parseOr handles OR expressions (lowest precedence)
func (p *ASTParser) parseOr() (ASTNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.currentToken().Type == TokenLogical && p.currentToken().Value == "or" {
		op := p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{
			Left:     left,
			Operator: op.Value,
			Right:    right,
		}
	}

	return left, nil
}

// parseAnd handles AND expressions
func (p *ASTParser) parseAnd() (ASTNode, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}

	for p.currentToken().Type == TokenLogical && p.currentToken().Value == "and" {
		op := p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{
			Left:     left,
			Operator: op.Value,
			Right:    right,
		}
	}

	return left, nil
}

// parseComparison handles comparison expressions. Comparisons do not chain.
func (p *ASTParser) parseComparison() (ASTNode, error) {
	left, err := p.parseArithmetic()
	if err != nil {
		return nil, err
	}

	if p.currentToken().Type != TokenOperator {
		return left, nil
	}
	op := p.advance()

	if op.Value == "in" {
		right, err := p.parseCollection()
		if err != nil {
			return nil, err
		}
		return &ComparisonExpr{Left: left, Operator: op.Value, Right: right}, nil
	}

	right, err := p.parseArithmetic()
	if err != nil {
		return nil, err
	}
	return &ComparisonExpr{Left: left, Operator: op.Value, Right: right}, nil
}

// parseArithmetic handles additive expressions. They are parsed so that they can be
// reported as unsupported rather than as syntax errors.
func (p *ASTParser) parseArithmetic() (ASTNode, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	for p.currentToken().Type == TokenArithmetic && isAdditive(p.currentToken().Value) {
		op := p.advance()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Left: left, Operator: op.Value, Right: right}
	}

	return left, nil
}

func isAdditive(op string) bool {
	return op == "+" || op == "-" || op == "add" || op == "sub"
}

// parseTerm handles multiplication, division, and modulo
func (p *ASTParser) parseTerm() (ASTNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for p.currentToken().Type == TokenArithmetic && !isAdditive(p.currentToken().Value) {
		op := p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Left: left, Operator: op.Value, Right: right}
	}

	return left, nil
}

// parseUnary handles 'not', which binds tighter than any binary operator.
func (p *ASTParser) parseUnary() (ASTNode, error) {
	if p.currentToken().Type == TokenNot {
		op := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Operator: op.Value, Operand: operand}, nil
	}
	return p.parsePrimary()
}

// parsePrimary handles primary expressions (literals, identifiers, function calls, grouped expressions)
func (p *ASTParser) parsePrimary() (ASTNode, error) {
	token := p.currentToken()

	switch token.Type {
	case TokenLParen:
		return p.parseGroupedExpression()
	case TokenIdentifier:
		return p.parseIdentifierOrFunctionCall(token)
	case TokenEOF:
		return nil, parseError("", "%v", errUnexpectedEOF)
	}

	lit, ok, err := literalFromToken(token)
	if err != nil {
		return nil, err
	}
	if ok {
		p.advance()
		return &LiteralExpr{Literal: lit}, nil
	}

	return nil, parseError("", "unexpected %v '%s' at position %d", token.Type, token.Value, token.Pos)
}

// parseGroupedExpression parses a grouped expression like (expr)
func (p *ASTParser) parseGroupedExpression() (ASTNode, error) {
	p.advance() // consume '('
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return &GroupExpr{Expr: expr}, nil
}

// parseCollection parses the value list of an 'in' expression: ('a', 'b')
func (p *ASTParser) parseCollection() (ASTNode, error) {
	if err := p.expect(TokenLParen); err != nil {
		return nil, err
	}

	var values []ASTNode
	for {
		value, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		values = append(values, value)

		if p.currentToken().Type != TokenComma {
			break
		}
		p.advance()
	}

	if err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return &CollectionExpr{Values: values}, nil
}

// parseIdentifierOrFunctionCall parses an identifier or function call
func (p *ASTParser) parseIdentifierOrFunctionCall(token *Token) (ASTNode, error) {
	p.advance()

	if p.currentToken().Type == TokenArithmetic && p.currentToken().Value == "/" &&
		p.peekToken().Type == TokenIdentifier {
		return p.parsePropertyPath(token.Value)
	}

	if p.currentToken().Type == TokenLParen {
		return p.parseFunctionCall(token.Value)
	}

	return &IdentifierExpr{Name: token.Value}, nil
}

// parsePropertyPath consumes a member path such as Address/City. Lambda operators
// on a path are rejected here since their body syntax is not tokenized.
func (p *ASTParser) parsePropertyPath(initialProp string) (ASTNode, error) {
	path := initialProp

	for p.currentToken().Type == TokenArithmetic && p.currentToken().Value == "/" &&
		p.peekToken().Type == TokenIdentifier {
		p.advance() // consume '/'
		next := p.advance().Value

		lower := strings.ToLower(next)
		if (lower == "any" || lower == "all") && p.currentToken().Type == TokenLParen {
			return nil, unsupported("", "lambda operator '%s' is not supported", lower)
		}
		path += "/" + next
	}

	return &IdentifierExpr{Name: path, Path: true}, nil
}

// parseFunctionCall parses a function call like func(arg1, arg2)
func (p *ASTParser) parseFunctionCall(functionName string) (ASTNode, error) {
	p.advance() // consume '('

	var args []ASTNode

	if p.currentToken().Type != TokenRParen {
		for {
			arg, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)

			if p.currentToken().Type == TokenComma {
				p.advance()
			} else {
				break
			}
		}
	}

	if err := p.expect(TokenRParen); err != nil {
		return nil, err
	}

	return &FunctionCallExpr{
		Function: functionName,
		Args:     args,
	}, nil
}
