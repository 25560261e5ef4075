// Package apperr defines the error taxonomy shared by every domain package.
//
// Domain packages declare sentinels with New and return them (optionally
// wrapped). errors.Is matches a sentinel by kind and code, and a bare kind
// sentinel such as ErrConflict by kind alone.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation   Kind = "validation_error"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindAlreadyUsed  Kind = "already_used"
	KindExpired      Kind = "expired"
	KindRateLimited  Kind = "rate_limited"
	KindRemote       Kind = "remote_error"
)

var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrAlreadyUsed  = &Error{Kind: KindAlreadyUsed}
	ErrExpired      = &Error{Kind: KindExpired}
	ErrRateLimited  = &Error{Kind: KindRateLimited}
	ErrRemote       = &Error{Kind: KindRemote}
)

// Error is a classified failure with a stable snake_case code.
type Error struct {
	Kind Kind
	Code string
	// Op names the failing operation for remote errors.
	Op  string
	Err error
}

func New(kind Kind, code string) *Error {
	return &Error{Kind: kind, Code: code}
}

// Remote wraps an unclassified infrastructure failure.
func Remote(op string, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	return &Error{Kind: KindRemote, Code: "remote_error", Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Code != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	case e.Code != "":
		return e.Code
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// Wrap attaches a cause to a sentinel without losing its identity.
func (e *Error) Wrap(err error) error {
	return &Error{Kind: e.Kind, Code: e.Code, Op: e.Op, Err: err}
}

// KindOf returns the kind of the outermost classified error, or KindRemote.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindRemote
}

// CodeOf returns the code of the outermost classified error.
func CodeOf(err error) string {
	var classified *Error
	if errors.As(err, &classified) {
		if classified.Code != "" {
			return classified.Code
		}
		return string(classified.Kind)
	}
	return "remote_error"
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
