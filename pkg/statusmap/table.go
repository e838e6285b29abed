package statusmap

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Entry is the HTTP-like rendition of a transport status code.
type Entry struct {
	HTTPCode int
	Reason   string
}

// table covers the sixteen canonical transport codes plus OK. Codes
// outside it have no HTTP-like form and stay raw.
var table = [...]Entry{
	codes.OK:                 {http.StatusOK, "OK"},
	codes.Canceled:           {499, "Client Closed Request"},
	codes.Unknown:            {http.StatusInternalServerError, "Internal Server Error"},
	codes.InvalidArgument:    {http.StatusBadRequest, "Bad Request"},
	codes.DeadlineExceeded:   {http.StatusGatewayTimeout, "Gateway Timeout"},
	codes.NotFound:           {http.StatusNotFound, "Not Found"},
	codes.AlreadyExists:      {http.StatusConflict, "Conflict"},
	codes.PermissionDenied:   {http.StatusForbidden, "Forbidden"},
	codes.ResourceExhausted:  {http.StatusTooManyRequests, "Too Many Requests"},
	codes.FailedPrecondition: {http.StatusPreconditionFailed, "Precondition Failed"},
	codes.Aborted:            {http.StatusConflict, "Conflict"},
	codes.OutOfRange:         {http.StatusBadRequest, "Bad Request"},
	codes.Unimplemented:      {http.StatusNotImplemented, "Not Implemented"},
	codes.Internal:           {http.StatusInternalServerError, "Internal Server Error"},
	codes.Unavailable:        {http.StatusServiceUnavailable, "Service Unavailable"},
	codes.DataLoss:           {http.StatusInternalServerError, "Internal Server Error"},
	codes.Unauthenticated:    {http.StatusUnauthorized, "Unauthorized"},
}

// Lookup returns the HTTP-like entry for a transport code. The second
// return is false for codes outside the canonical range.
func Lookup(c codes.Code) (Entry, bool) {
	if int(c) >= len(table) {
		return Entry{}, false
	}
	return table[c], true
}

// IsRetryable reports whether an HTTP-like code is worth re-invoking the
// call for. Gateway timeout (504) is not in the set.
func IsRetryable(httpCode int) bool {
	switch httpCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable:
		return true
	}
	return false
}
