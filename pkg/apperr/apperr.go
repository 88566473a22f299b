// Package apperr is the error taxonomy shared by services and the HTTP error handler.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the request boundary.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindReferenceNotFound
	KindStateConflict
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindReferenceNotFound:
		return "reference_not_found"
	case KindStateConflict:
		return "state_conflict"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Error carries a caller-safe message plus an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) *Error { return &Error{Kind: KindValidation, Message: msg} }

func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Message: msg} }

func StateConflict(msg string) *Error { return &Error{Kind: KindStateConflict, Message: msg} }

// ReferenceNotFound reports a dangling foreign key, e.g. ReferenceNotFound("Policy").
func ReferenceNotFound(kind string) *Error {
	return &Error{Kind: KindReferenceNotFound, Message: kind + " not found"}
}

// Persistence wraps a store failure. The message never reaches the client.
func Persistence(op string, err error) *Error {
	return &Error{Kind: KindPersistence, Message: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return 0
}

// Is reports whether err carries the given kind.
func Is(err error, k Kind) bool { return KindOf(err) == k }
