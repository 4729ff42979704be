// Package apperr defines the domain error taxonomy shared by the plan and
// scoring engines and its mapping to HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a domain error.
type Kind int

const (
	KindUnknown Kind = iota
	KindGateClosed
	KindForbidden
	KindNotFound
	KindInvalidState
	KindValidation
	KindWriteConflict
)

var kindNames = map[Kind]string{
	KindUnknown:       "Unknown",
	KindGateClosed:    "GateClosed",
	KindForbidden:     "Forbidden",
	KindNotFound:      "NotFound",
	KindInvalidState:  "InvalidState",
	KindValidation:    "ValidationError",
	KindWriteConflict: "WriteConflict",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a classified domain error. Incomplete carries node ids when a
// completeness check fails.
type Error struct {
	Kind       Kind
	Message    string
	Incomplete []string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// GateClosed reports that the named activity window is not open.
func GateClosed(activity string) *Error {
	return &Error{Kind: KindGateClosed, Message: fmt.Sprintf("%s activity is not open", activity)}
}

// Forbidden reports a role or visibility violation.
func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing entity.
func NotFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found: %s", entity, id)}
}

// InvalidState reports an operation that is not legal from the current state.
func InvalidState(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

// Validation reports rejected input.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Incomplete reports a completeness failure naming the offending node ids.
func Incomplete(nodeIDs []string, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...), Incomplete: nodeIDs}
}

// WriteConflict reports a storage serialization failure that survived all retries.
func WriteConflict(err error) *Error {
	return &Error{Kind: KindWriteConflict, Message: "concurrent write conflict, retries exhausted", Err: err}
}

// KindOf returns the Kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err is a domain error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus returns the appropriate HTTP status code for an error.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindGateClosed, KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidState, KindValidation:
		return http.StatusBadRequest
	case KindWriteConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
