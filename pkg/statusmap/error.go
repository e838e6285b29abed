package statusmap

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error is a transport status error normalized into the HTTP-like
// taxonomy. It keeps the original error and status, so errors.Is,
// errors.As and status.FromError all still see them.
type Error struct {
	Code     codes.Code
	HTTPCode int
	Reason   string
	Message  string

	st    *status.Status
	cause error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%d %s", e.HTTPCode, e.Reason)
	}
	return fmt.Sprintf("%d %s: %s", e.HTTPCode, e.Reason, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// GRPCStatus exposes the original status, keeping details and code intact
// for callers that inspect the error with the status package.
func (e *Error) GRPCStatus() *status.Status {
	return e.st
}

// Translate normalizes a transport error into the HTTP-like taxonomy.
// The second return is false when err is nil, carries no transport
// status, or carries a code outside the canonical table; such errors
// pass through raw.
func Translate(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	st, ok := status.FromError(err)
	if !ok || st == nil {
		return nil, false
	}
	entry, ok := Lookup(st.Code())
	if !ok {
		return nil, false
	}
	return &Error{
		Code:     st.Code(),
		HTTPCode: entry.HTTPCode,
		Reason:   entry.Reason,
		Message:  st.Message(),
		st:       st,
		cause:    err,
	}, true
}

// Retryable reports whether err normalizes to a retryable HTTP-like
// code. Unmapped errors are never retryable.
func Retryable(err error) bool {
	e, ok := Translate(err)
	return ok && IsRetryable(e.HTTPCode)
}
