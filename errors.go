package odata

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/nlstn/go-odata-sql/internal/catalog"
	"github.com/nlstn/go-odata-sql/internal/edm"
	"github.com/nlstn/go-odata-sql/internal/query"
)

// Sentinel errors for common OData error conditions.
// These can be used with errors.Is() for error handling.
var (
	// ErrEntityNotFound indicates the requested entity does not exist.
	// Maps to HTTP 404 Not Found.
	ErrEntityNotFound = errors.New("odata: entity not found")

	// ErrEntitySetNotFound indicates the URL names an entity set that is not bound.
	// Maps to HTTP 404 Not Found.
	ErrEntitySetNotFound = errors.New("odata: entity set not found")

	// ErrInvalidKey indicates a malformed key predicate.
	// Maps to HTTP 400 Bad Request.
	ErrInvalidKey = errors.New("odata: invalid key")

	// ErrMethodNotAllowed indicates a method other than GET or HEAD.
	// Maps to HTTP 405 Method Not Allowed.
	ErrMethodNotAllowed = errors.New("odata: method not allowed")

	// ErrEngineExecution indicates the query engine failed to run a query.
	// Maps to HTTP 500 Internal Server Error; the cause is logged, never returned.
	ErrEngineExecution = errors.New("odata: engine execution failed")
)

// ErrorCode represents the error codes written to the "code" member of an error document.
type ErrorCode string

const (
	// Client errors raised while parsing or translating query options.
	ErrorCodeParseError           ErrorCode = ErrorCode(query.KindParse)
	ErrorCodeUnsupportedOperation ErrorCode = ErrorCode(query.KindUnsupportedOperation)
	ErrorCodeUnknownField         ErrorCode = ErrorCode(query.KindUnknownField)
	ErrorCodeInvalidProperty      ErrorCode = ErrorCode(query.KindInvalidProperty)
	ErrorCodeTypeMismatch         ErrorCode = ErrorCode(query.KindTypeMismatch)
	ErrorCodeInvalidQueryOption   ErrorCode = ErrorCode(query.KindInvalidQueryOption)

	ErrorCodeInvalidKey       ErrorCode = "InvalidKey"
	ErrorCodeEntityNotFound   ErrorCode = "EntityNotFound"
	ErrorCodeNotFound         ErrorCode = "NotFound"
	ErrorCodeMethodNotAllowed ErrorCode = "MethodNotAllowed"

	// Server errors. Their messages are generic.
	ErrorCodeEngineExecutionError ErrorCode = "EngineExecutionError"
	ErrorCodeSerializationError   ErrorCode = "SerializationError"
)

// ODataError provides a structured error that includes an HTTP status code,
// OData error code, and descriptive message.
type ODataError struct {
	// StatusCode is the HTTP status code to return (e.g., 400, 404, 500).
	StatusCode int

	// Code is the OData-specific error code.
	Code ErrorCode

	// Message is a human-readable error description safe to show to clients.
	Message string

	// Target optionally identifies the part of the request that caused the error,
	// e.g. the property named in a $filter.
	Target string

	// Err is the underlying error, if any. It is logged but not serialized.
	Err error
}

// Error implements the error interface.
func (e *ODataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap implements error unwrapping for errors.Is() and errors.As().
func (e *ODataError) Unwrap() error {
	return e.Err
}

// asODataError classifies err into the error returned to the client.
func asODataError(err error) *ODataError {
	var odataErr *ODataError
	if errors.As(err, &odataErr) {
		return odataErr
	}

	var qe *query.Error
	if errors.As(err, &qe) {
		return &ODataError{
			StatusCode: http.StatusBadRequest,
			Code:       ErrorCode(qe.Kind),
			Message:    qe.Error(),
			Target:     qe.Target,
			Err:        err,
		}
	}

	switch {
	case errors.Is(err, ErrEngineExecution):
		return &ODataError{StatusCode: http.StatusInternalServerError, Code: ErrorCodeEngineExecutionError, Message: "The query could not be executed", Err: err}
	case errors.Is(err, ErrInvalidKey):
		return &ODataError{StatusCode: http.StatusBadRequest, Code: ErrorCodeInvalidKey, Message: err.Error(), Err: err}
	case errors.Is(err, edm.ErrTypeMismatch):
		return &ODataError{StatusCode: http.StatusBadRequest, Code: ErrorCodeTypeMismatch, Message: err.Error(), Err: err}
	case errors.Is(err, ErrEntityNotFound):
		return &ODataError{StatusCode: http.StatusNotFound, Code: ErrorCodeEntityNotFound, Message: "The requested entity was not found", Err: err}
	case errors.Is(err, ErrEntitySetNotFound), errors.Is(err, catalog.ErrUnknownEntitySet):
		return &ODataError{StatusCode: http.StatusNotFound, Code: ErrorCodeNotFound, Message: "The requested resource was not found", Err: err}
	case errors.Is(err, ErrMethodNotAllowed):
		return &ODataError{StatusCode: http.StatusMethodNotAllowed, Code: ErrorCodeMethodNotAllowed, Message: "Only GET and HEAD are supported", Err: err}
	case errors.Is(err, edm.ErrSerialization):
		return &ODataError{StatusCode: http.StatusInternalServerError, Code: ErrorCodeSerializationError, Message: "The result could not be serialized", Err: err}
	}
	return &ODataError{StatusCode: http.StatusInternalServerError, Code: ErrorCodeEngineExecutionError, Message: "The query could not be executed", Err: err}
}

// engineError wraps a failure of the query engine. A missing table (engine.ErrTableNotFound)
// means the binding points at nothing and is reported as a server fault too.
func engineError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrEngineExecution, op, err)
}

// MapErrorToHTTPStatus returns the HTTP status code Handle uses for err.
func MapErrorToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return asODataError(err).StatusCode
}

// IsNotFoundError returns true if the error indicates an entity was not found.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrEntityNotFound)
}
