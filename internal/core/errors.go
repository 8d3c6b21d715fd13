package core

import (
	"errors"
	"fmt"
)

// Kind classifies a ledger failure so callers can react without matching strings.
type Kind string

const (
	KindInsufficientFunds Kind = "InsufficientFunds"
	KindInvalidAmount     Kind = "InvalidAmount"
	KindInvalidState      Kind = "InvalidState"
	KindHasDependents     Kind = "HasDependents"
	KindNotFound          Kind = "NotFound"
	KindInvalidOperation  Kind = "InvalidOperation"
	KindAccessDenied      Kind = "AccessDenied"
	KindInvalid           Kind = "Invalid"
	KindInternal          Kind = "Internal"
)

// Error is the structured failure returned by every ledger operation.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Sentinels for errors.Is; any *Error of the same kind matches.
var (
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds}
	ErrInvalidAmount     = &Error{Kind: KindInvalidAmount}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrHasDependents     = &Error{Kind: KindHasDependents}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidOperation  = &Error{Kind: KindInvalidOperation}
	ErrAccessDenied      = &Error{Kind: KindAccessDenied}
	ErrInvalid           = &Error{Kind: KindInvalid}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// Errorf builds an *Error of the given kind.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
