package odata

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/nlstn/go-odata-sql/internal/catalog"
	"github.com/nlstn/go-odata-sql/internal/edm"
	"github.com/nlstn/go-odata-sql/internal/query"
)

func TestODataError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ODataError
		expected string
	}{
		{
			name: "simple error",
			err: &ODataError{
				StatusCode: http.StatusNotFound,
				Code:       ErrorCodeEntityNotFound,
				Message:    "Entity not found",
			},
			expected: "Entity not found",
		},
		{
			name: "error with wrapped error",
			err: &ODataError{
				StatusCode: http.StatusInternalServerError,
				Code:       ErrorCodeEngineExecutionError,
				Message:    "Failed to process request",
				Err:        errors.New("database connection failed"),
			},
			expected: "Failed to process request: database connection failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.expected {
				t.Errorf("ODataError.Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestODataError_Unwrap(t *testing.T) {
	underlyingErr := errors.New("underlying error")
	odataErr := &ODataError{
		StatusCode: http.StatusInternalServerError,
		Code:       ErrorCodeEngineExecutionError,
		Message:    "Something went wrong",
		Err:        underlyingErr,
	}

	if !errors.Is(odataErr, underlyingErr) {
		t.Errorf("errors.Is(odataErr, underlyingErr) = false, want true")
	}
	if unwrapped := odataErr.Unwrap(); unwrapped != underlyingErr {
		t.Errorf("odataErr.Unwrap() = %v, want %v", unwrapped, underlyingErr)
	}
}

func TestAsODataError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   ErrorCode
		wantTarget string
	}{
		{
			name:       "query error keeps its kind",
			err:        &query.Error{Kind: query.KindUnknownField, Option: "$filter", Message: "no field Bogus", Target: "Bogus"},
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrorCodeUnknownField,
			wantTarget: "Bogus",
		},
		{
			name:       "unsupported expand",
			err:        &query.Error{Kind: query.KindUnsupportedOperation, Option: "$expand", Message: "$expand is not supported"},
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrorCodeUnsupportedOperation,
		},
		{
			name:       "invalid key",
			err:        fmt.Errorf("%w: empty key predicate", ErrInvalidKey),
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrorCodeInvalidKey,
		},
		{
			name:       "key type mismatch",
			err:        fmt.Errorf("%w: 'x' is not an Edm.Int64", edm.ErrTypeMismatch),
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrorCodeTypeMismatch,
		},
		{
			name:       "entity not found",
			err:        fmt.Errorf("%w: People(9)", ErrEntityNotFound),
			wantStatus: http.StatusNotFound,
			wantCode:   ErrorCodeEntityNotFound,
		},
		{
			name:       "unknown entity set",
			err:        fmt.Errorf("%w: Nope", catalog.ErrUnknownEntitySet),
			wantStatus: http.StatusNotFound,
			wantCode:   ErrorCodeNotFound,
		},
		{
			name:       "method not allowed",
			err:        ErrMethodNotAllowed,
			wantStatus: http.StatusMethodNotAllowed,
			wantCode:   ErrorCodeMethodNotAllowed,
		},
		{
			name:       "serialization",
			err:        fmt.Errorf("%w: bad row", edm.ErrSerialization),
			wantStatus: http.StatusInternalServerError,
			wantCode:   ErrorCodeSerializationError,
		},
		{
			name:       "engine failure",
			err:        engineError("execute", errors.New(`no such column: "secret_col"`)),
			wantStatus: http.StatusInternalServerError,
			wantCode:   ErrorCodeEngineExecutionError,
		},
		{
			name:       "unknown error",
			err:        errors.New("some random error"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   ErrorCodeEngineExecutionError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := asODataError(tt.err)
			if got.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", got.StatusCode, tt.wantStatus)
			}
			if got.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Target != tt.wantTarget {
				t.Errorf("Target = %q, want %q", got.Target, tt.wantTarget)
			}
			if got := MapErrorToHTTPStatus(tt.err); got != tt.wantStatus {
				t.Errorf("MapErrorToHTTPStatus() = %d, want %d", got, tt.wantStatus)
			}
		})
	}
}

func TestServerErrorsAreRedacted(t *testing.T) {
	err := engineError("execute", errors.New(`SELECT "salary" FROM "payroll": permission denied`))
	got := asODataError(err)
	if got.Message != "The query could not be executed" {
		t.Errorf("Message = %q, want the generic message", got.Message)
	}
}

func TestMapErrorToHTTPStatus_Nil(t *testing.T) {
	if got := MapErrorToHTTPStatus(nil); got != http.StatusOK {
		t.Errorf("MapErrorToHTTPStatus(nil) = %d, want %d", got, http.StatusOK)
	}
}

func TestIsNotFoundError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"not found error", ErrEntityNotFound, true},
		{"wrapped not found error", &ODataError{Err: ErrEntityNotFound}, true},
		{"invalid key", ErrInvalidKey, false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsNotFoundError(tt.err)
			if got != tt.expected {
				t.Errorf("IsNotFoundError(%v) = %t, want %t", tt.err, got, tt.expected)
			}
		})
	}
}
