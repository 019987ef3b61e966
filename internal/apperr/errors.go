// Package apperr defines the error taxonomy shared by the store, export and
// dispatch layers. Callers branch on the kind with errors.Is.
package apperr

import (
	"errors"
	"strings"
)

// Kind classifies a failure for the invoking layer.
type Kind string

const (
	KindValidation Kind = "VALIDATION_ERROR"
	KindNotFound   Kind = "NOT_FOUND"
	KindRender     Kind = "RENDER_ERROR"
	KindStorage    Kind = "STORAGE_ERROR"
	KindDispatch   Kind = "DISPATCH_ERROR"
)

// Sentinels for errors.Is matching against a kind.
var (
	Validation = &Error{Kind: KindValidation}
	NotFound   = &Error{Kind: KindNotFound}
	Render     = &Error{Kind: KindRender}
	Storage    = &Error{Kind: KindStorage}
	Dispatch   = &Error{Kind: KindDispatch}
)

// FieldError names one offending input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error carries a kind, the failing operation and an optional cause.
type Error struct {
	Kind    Kind         `json:"code"`
	Op      string       `json:"-"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"errors,omitempty"`
	Err     error        `json:"-"`
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(strings.ToLower(strings.ReplaceAll(string(e.Kind), "_", " ")))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, apperr.Storage) works
// regardless of the operation or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func NewValidation(op, message string, fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message, Fields: fields}
}

func NewNotFound(op, message string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: message}
}

func NewRender(op string, err error) *Error {
	return &Error{Kind: KindRender, Op: op, Err: err}
}

func NewStorage(op string, err error) *Error {
	return &Error{Kind: KindStorage, Op: op, Err: err}
}

func NewDispatch(op string, err error) *Error {
	return &Error{Kind: KindDispatch, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in the chain, or "" when the
// error is not part of the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Retryable reports whether the user may simply re-invoke the action.
// Validation and lookup misses need different input first.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindNotFound:
		return false
	default:
		return true
	}
}
