// Package apperr defines the error kinds surfaced to callers of the pvsite
// service. Every error returned by the service can be classified with KindOf.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for callers.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindAuthorization
	KindStorageFailure
	KindMalformedInput
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAuthorization:
		return "authorization"
	case KindStorageFailure:
		return "storage_failure"
	case KindMalformedInput:
		return "malformed_input"
	default:
		return "unknown"
	}
}

// Error is a classified error with the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Msg)
	if e.Err != nil {
		if e.Msg != "" {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound reports a site or identity that does not resolve.
func NotFound(op, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Malformed reports input that cannot be parsed, before any query runs.
func Malformed(op string, err error, format string, args ...any) *Error {
	return &Error{Kind: KindMalformedInput, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Storage wraps a failure of the underlying store.
func Storage(op string, err error) *Error {
	return &Error{Kind: KindStorageFailure, Op: op, Msg: "storage failure", Err: err}
}

// AccessError is returned when a caller's entitled sites do not match the
// requested sites.
type AccessError struct {
	Email    string
	Denied   []string
	Entitled []string
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("Forbidden. User (%s) does not have access to this site %s. User has access to %v",
		e.Email, strings.Join(e.Denied, ", "), e.Entitled)
}

// KindOf returns the Kind of err, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var accessErr *AccessError
	if errors.As(err, &accessErr) {
		return KindAuthorization
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
