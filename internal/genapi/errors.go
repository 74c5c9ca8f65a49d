package genapi

import (
	"fmt"
	"unicode/utf8"
)

// DefaultErrorMessage is surfaced when the service fails without saying why.
const DefaultErrorMessage = "An error occurred"

// ServiceError means the service answered with an explicit error message or
// a non-success status.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return DefaultErrorMessage
	}
	return e.Message
}

// TransportError means the request never produced a usable response
// (connection refused, reset, timeout, broken stream).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError means a response body or stream frame was not valid JSON of
// the expected shape.
type DecodeError struct {
	What string
	Raw  string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v (body: %s)", e.What, e.Err, truncate(e.Raw, 200))
}

func (e *DecodeError) Unwrap() error { return e.Err }

// truncate returns at most the first n bytes of s, cut on a rune boundary,
// appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
