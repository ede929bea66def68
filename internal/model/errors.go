// internal/model/errors.go
package model

import (
	"errors"
	"fmt"

	"tasks-api/internal/storage"
)

// Kind classifies a failure for callers that do not care about its cause.
type Kind string

const (
	KindInvalid      Kind = "INVALID"
	KindUnavailable  Kind = "UNAVAILABLE"
	KindStore        Kind = "STORE"
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindUnknown      Kind = "UNKNOWN"
)

// Error is returned by every model operation. Err keeps the original cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Message is the cause's text, or the kind when there is no cause.
func (e *Error) Message() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// wrap classifies a storage error. An *Error passes through unchanged.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var me *Error
	if errors.As(err, &me) {
		return me
	}
	switch {
	case errors.Is(err, storage.ErrUnavailable):
		return NewError(KindUnavailable, op, err)
	case errors.Is(err, storage.ErrStore):
		return NewError(KindStore, op, err)
	default:
		return NewError(KindUnknown, op, err)
	}
}

// KindOf returns the kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindUnknown
}
