package query

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// TokenType represents the type of a token
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIdentifier
	TokenString
	TokenNumber
	TokenBoolean
	TokenNull
	TokenOperator
	TokenLogical
	TokenNot
	TokenLParen
	TokenRParen
	TokenComma
	TokenArithmetic
	// TokenColon separates a lambda variable from its body.
	TokenColon
	TokenGuid
	TokenDateTime
	TokenDate
	TokenTimeOfDay
	// TokenTyped is a prefixed literal such as guid'...', X'...' or datetimeoffset'...'.
	TokenTyped
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "end of expression",
	TokenIdentifier: "identifier",
	TokenString:     "string",
	TokenNumber:     "number",
	TokenBoolean:    "boolean",
	TokenNull:       "null",
	TokenOperator:   "operator",
	TokenLogical:    "logical operator",
	TokenNot:        "not",
	TokenLParen:     "'('",
	TokenRParen:     "')'",
	TokenComma:      "','",
	TokenArithmetic: "arithmetic operator",
	TokenColon:      "':'",
	TokenGuid:       "guid",
	TokenDateTime:   "datetime",
	TokenDate:       "date",
	TokenTimeOfDay:  "time of day",
	TokenTyped:      "typed literal",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Token represents a single token in the filter expression
type Token struct {
	Type  TokenType
	Value string
	// Prefix is the type prefix of a TokenTyped literal, lower-cased.
	Prefix string
	Pos    int
}

var (
	guidPattern     = regexp.MustCompile(`^[0-9A-Fa-f]{8}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{12}`)
	dateTimePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}(:\d{2}(\.\d+)?)?([Zz]|[+\- ]\d{2}:\d{2})?`)
	datePattern     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	timePattern     = regexp.MustCompile(`^\d{2}:\d{2}(:\d{2}(\.\d+)?)?`)
)

// typedPrefixes are the identifiers that introduce a quoted typed literal.
var typedPrefixes = map[string]bool{
	"guid":           true,
	"binary":         true,
	"x":              true,
	"datetime":       true,
	"datetimeoffset": true,
	"date":           true,
	"time":           true,
	"timeofday":      true,
	"duration":       true,
}

// Tokenizer tokenizes OData filter expressions
type Tokenizer struct {
	input string
	pos   int
	ch    rune
}

// NewTokenizer creates a new tokenizer
func NewTokenizer(input string) *Tokenizer {
	t := &Tokenizer{
		input: input,
		pos:   0,
	}
	if len(input) > 0 {
		t.ch = rune(input[0])
	}
	return t
}

// advance moves to the next character
func (t *Tokenizer) advance() {
	t.pos++
	if t.pos >= len(t.input) {
		t.ch = 0 // EOF
	} else {
		t.ch = rune(t.input[t.pos])
	}
}

// advanceN moves n characters forward
func (t *Tokenizer) advanceN(n int) {
	for i := 0; i < n; i++ {
		t.advance()
	}
}

// peek looks ahead without advancing
func (t *Tokenizer) peek() rune {
	if t.pos+1 >= len(t.input) {
		return 0
	}
	return rune(t.input[t.pos+1])
}

func (t *Tokenizer) rest() string {
	if t.pos >= len(t.input) {
		return ""
	}
	return t.input[t.pos:]
}

// skipWhitespace skips whitespace characters
func (t *Tokenizer) skipWhitespace() {
	for t.ch == ' ' || t.ch == '\t' || t.ch == '\n' || t.ch == '\r' {
		t.advance()
	}
}

// readString reads a single-quoted string; a doubled quote stands for one quote.
func (t *Tokenizer) readString() (string, error) {
	start := t.pos
	t.advance() // skip opening quote

	var result strings.Builder
	for {
		if t.ch == 0 {
			return "", fmt.Errorf("%w at position %d", errUnterminatedString, start)
		}
		if t.ch == '\'' {
			if t.peek() == '\'' {
				result.WriteByte('\'')
				t.advance()
				t.advance()
				continue
			}
			t.advance() // skip closing quote
			return result.String(), nil
		}
		result.WriteByte(byte(t.ch))
		t.advance()
	}
}

// readNumber reads a number with an optional type suffix
func (t *Tokenizer) readNumber() string {
	var result strings.Builder

	// Handle negative numbers
	if t.ch == '-' {
		result.WriteRune(t.ch)
		t.advance()
	}

	// Read integer part
	for unicode.IsDigit(t.ch) {
		result.WriteRune(t.ch)
		t.advance()
	}

	// Read decimal part
	if t.ch == '.' {
		result.WriteRune(t.ch)
		t.advance()
		for unicode.IsDigit(t.ch) {
			result.WriteRune(t.ch)
			t.advance()
		}
	}

	// Read exponent part
	if (t.ch == 'e' || t.ch == 'E') && (unicode.IsDigit(t.peek()) || t.peek() == '+' || t.peek() == '-') {
		result.WriteRune(t.ch)
		t.advance()
		if t.ch == '+' || t.ch == '-' {
			result.WriteRune(t.ch)
			t.advance()
		}
		for unicode.IsDigit(t.ch) {
			result.WriteRune(t.ch)
			t.advance()
		}
	}

	// Type suffix
	switch t.ch {
	case 'L', 'l', 'M', 'm', 'D', 'd', 'F', 'f':
		if !isIdentChar(t.peek()) {
			result.WriteRune(t.ch)
			t.advance()
		}
	}

	return result.String()
}

// readIdentifier reads an identifier or keyword
func (t *Tokenizer) readIdentifier() string {
	var result strings.Builder

	for t.ch != 0 && isIdentChar(t.ch) {
		result.WriteRune(t.ch)
		t.advance()
	}

	return result.String()
}

func isIdentChar(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

// NextToken returns the next token
func (t *Tokenizer) NextToken() (*Token, error) {
	t.skipWhitespace()

	if t.ch == 0 {
		return &Token{Type: TokenEOF, Pos: t.pos}, nil
	}

	pos := t.pos

	if t.ch == '\'' {
		value, err := t.readString()
		if err != nil {
			return nil, err
		}
		return &Token{Type: TokenString, Value: value, Pos: pos}, nil
	}

	if token := t.tokenizeBareLiteral(pos); token != nil {
		return token, nil
	}

	if token := t.tokenizeNumber(pos); token != nil {
		return token, nil
	}

	if token := t.tokenizeSpecialChar(pos); token != nil {
		return token, nil
	}

	token, err := t.tokenizeIdentifierOrKeyword(pos)
	if err != nil || token != nil {
		return token, err
	}

	return nil, fmt.Errorf("unexpected character '%c' at position %d", t.ch, t.pos)
}

// tokenizeBareLiteral recognizes unquoted GUID, datetime, date and time-of-day literals.
func (t *Tokenizer) tokenizeBareLiteral(pos int) *Token {
	if !unicode.IsDigit(t.ch) && !isHexLetter(t.ch) {
		return nil
	}
	rest := t.rest()
	candidates := []struct {
		pattern *regexp.Regexp
		typ     TokenType
	}{
		{guidPattern, TokenGuid},
		{dateTimePattern, TokenDateTime},
		{datePattern, TokenDate},
		{timePattern, TokenTimeOfDay},
	}
	for _, c := range candidates {
		m := c.pattern.FindString(rest)
		if m == "" || !literalBoundary(rest, len(m)) {
			continue
		}
		t.advanceN(len(m))
		return &Token{Type: c.typ, Value: m, Pos: pos}
	}
	return nil
}

func isHexLetter(ch rune) bool {
	return (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

// literalBoundary reports whether a literal of length n ends at a token boundary.
func literalBoundary(s string, n int) bool {
	if n >= len(s) {
		return true
	}
	next := rune(s[n])
	return !isIdentChar(next) && next != '.' && next != ':' && next != '-'
}

// tokenizeNumber tokenizes numeric literals
func (t *Tokenizer) tokenizeNumber(pos int) *Token {
	if strings.HasPrefix(t.rest(), "-INF") && !isIdentCharAt(t.rest(), 4) {
		t.advanceN(4)
		return &Token{Type: TokenNumber, Value: "-INF", Pos: pos}
	}
	if unicode.IsDigit(t.ch) || (t.ch == '-' && unicode.IsDigit(t.peek())) {
		value := t.readNumber()
		return &Token{Type: TokenNumber, Value: value, Pos: pos}
	}
	return nil
}

func isIdentCharAt(s string, i int) bool {
	return i < len(s) && isIdentChar(rune(s[i]))
}

// tokenizeSpecialChar tokenizes special characters (parentheses, comma, operators)
func (t *Tokenizer) tokenizeSpecialChar(pos int) *Token {
	switch t.ch {
	case '(':
		t.advance()
		return &Token{Type: TokenLParen, Value: "(", Pos: pos}
	case ')':
		t.advance()
		return &Token{Type: TokenRParen, Value: ")", Pos: pos}
	case ',':
		t.advance()
		return &Token{Type: TokenComma, Value: ",", Pos: pos}
	case ':':
		t.advance()
		return &Token{Type: TokenColon, Value: ":", Pos: pos}
	case '+', '-', '*', '/':
		op := string(t.ch)
		t.advance()
		return &Token{Type: TokenArithmetic, Value: op, Pos: pos}
	}
	return nil
}

// tokenizeIdentifierOrKeyword tokenizes identifiers, keywords and prefixed literals
func (t *Tokenizer) tokenizeIdentifierOrKeyword(pos int) (*Token, error) {
	if !unicode.IsLetter(t.ch) && t.ch != '_' {
		return nil, nil
	}

	value := t.readIdentifier()
	lower := strings.ToLower(value)

	if t.ch == '\'' && typedPrefixes[lower] {
		body, err := t.readString()
		if err != nil {
			return nil, err
		}
		return &Token{Type: TokenTyped, Value: body, Prefix: lower, Pos: pos}, nil
	}

	if value == "INF" || value == "NaN" {
		return &Token{Type: TokenNumber, Value: value, Pos: pos}, nil
	}

	// add, sub, mul, div, mod and has are also function names; '(' decides
	switch lower {
	case "add", "sub", "mul", "div", "divby", "mod", "has":
		if t.ch == '(' {
			return &Token{Type: TokenIdentifier, Value: value, Pos: pos}, nil
		}
	}

	if token := t.classifyKeyword(lower, pos); token != nil {
		return token, nil
	}

	return &Token{Type: TokenIdentifier, Value: value, Pos: pos}, nil
}

// classifyKeyword classifies a keyword and returns the appropriate token
func (t *Tokenizer) classifyKeyword(lower string, pos int) *Token {
	switch lower {
	case "and":
		return &Token{Type: TokenLogical, Value: "and", Pos: pos}
	case "or":
		return &Token{Type: TokenLogical, Value: "or", Pos: pos}
	case "not":
		return &Token{Type: TokenNot, Value: "not", Pos: pos}
	case "true", "false":
		return &Token{Type: TokenBoolean, Value: lower, Pos: pos}
	case "null":
		return &Token{Type: TokenNull, Value: "null", Pos: pos}
	case "eq", "ne", "gt", "ge", "lt", "le", "in", "has":
		return &Token{Type: TokenOperator, Value: lower, Pos: pos}
	case "add", "sub", "mul", "div", "divby", "mod":
		return &Token{Type: TokenArithmetic, Value: lower, Pos: pos}
	}
	return nil
}

// TokenizeAll returns all tokens from the input
func (t *Tokenizer) TokenizeAll() ([]*Token, error) {
	var tokens []*Token

	for {
		token, err := t.NextToken()
		if err != nil {
			return nil, err
		}

		tokens = append(tokens, token)

		if token.Type == TokenEOF {
			break
		}
	}

	return tokens, nil
}
