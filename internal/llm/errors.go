// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import "errors"

// ErrorKind categorizes model failures.
type ErrorKind int

const (
	// KindUnavailable: the model cannot run at all. Not retried.
	KindUnavailable ErrorKind = iota
	// KindSessionFailure: a request failed after it started.
	KindSessionFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindSessionFailure:
		return "session_failure"
	default:
		return "unknown"
	}
}

// Error is a model failure.
type Error struct {
	Kind    ErrorKind
	Message string
	// Status is set for KindUnavailable.
	Status AvailabilityStatus
	Cause  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrUnavailable)
// works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is.
var (
	ErrUnavailable    = &Error{Kind: KindUnavailable, Message: "model unavailable"}
	ErrSessionFailure = &Error{Kind: KindSessionFailure, Message: "session failed"}
)

// NewUnavailableError wraps an availability status as an error.
func NewUnavailableError(status AvailabilityStatus) *Error {
	return &Error{Kind: KindUnavailable, Message: status.Summary(), Status: status}
}

// NewSessionError reports a failure during a request.
func NewSessionError(message string, cause error) *Error {
	return &Error{Kind: KindSessionFailure, Message: message, Cause: cause}
}

// IsUnavailable reports whether err is an unavailability error.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsSessionFailure reports whether err is a session failure.
func IsSessionFailure(err error) bool {
	return errors.Is(err, ErrSessionFailure)
}
