package query

import (
	"errors"
	"fmt"
)

// ErrorKind classifies client errors detected before any engine call.
type ErrorKind string

const (
	KindParse                ErrorKind = "ParseError"
	KindUnsupportedOperation ErrorKind = "UnsupportedOperation"
	KindUnknownField         ErrorKind = "UnknownField"
	KindInvalidProperty      ErrorKind = "InvalidProperty"
	KindTypeMismatch         ErrorKind = "TypeMismatch"
	KindInvalidQueryOption   ErrorKind = "InvalidQueryOption"
)

// Error is a query parse or translation failure.
type Error struct {
	Kind ErrorKind
	// Option is the system query option the error belongs to, e.g. "$filter".
	Option  string
	Message string
	// Target names the offending property, if any.
	Target string
	Err    error
}

func (e *Error) Error() string {
	if e.Option != "" {
		return fmt.Sprintf("invalid %s: %s", e.Option, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a query error, or "" if err is not one.
func KindOf(err error) ErrorKind {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind
	}
	return ""
}

func newError(kind ErrorKind, option, format string, args ...any) *Error {
	return &Error{Kind: kind, Option: option, Message: fmt.Sprintf(format, args...)}
}

func parseError(option, format string, args ...any) *Error {
	return newError(KindParse, option, format, args...)
}

func unsupported(option, format string, args ...any) *Error {
	return newError(KindUnsupportedOperation, option, format, args...)
}

// withOption stamps the option name on errors raised by option-agnostic helpers.
func withOption(err error, option string) error {
	var qe *Error
	if errors.As(err, &qe) {
		if qe.Option == "" {
			qe.Option = option
		}
		return qe
	}
	return &Error{Kind: KindParse, Option: option, Message: err.Error(), Err: err}
}

var (
	errUnexpectedEOF      = errors.New("unexpected end of expression")
	errUnterminatedString = errors.New("unterminated string literal")
	errEmptyExpression    = errors.New("empty expression")
)
