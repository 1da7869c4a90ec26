package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthenticated
	KindNotFound
	KindForbidden
	KindInvalidInput
	KindConflict
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindInvalidInput:
		return "invalid_input"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream_failure"
	default:
		return "internal"
	}
}

// Error is a request-level failure surfaced to the caller.
type Error struct {
	Kind    Kind
	Code    string
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

// Is matches another *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Wrap returns a copy of e with cause attached.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrUnauthenticated    = newError(KindUnauthenticated, "UNAUTHENTICATED", "Unauthenticated")
	ErrInvalidCredentials = newError(KindUnauthenticated, "INVALID_CREDENTIALS", "invalid credentials")
	ErrUserNotFound       = newError(KindNotFound, "USER_NOT_FOUND", "User not found")
	ErrMessageNotFound    = newError(KindNotFound, "MESSAGE_NOT_FOUND", "message not found")
	ErrForbidden          = newError(KindForbidden, "FORBIDDEN", "Unauthorized")
	ErrSelfMessage        = newError(KindInvalidInput, "SELF_MESSAGE", "You cant message yourself")
	ErrEmptyContent       = newError(KindInvalidInput, "EMPTY_CONTENT", "Message is empty")
	ErrMessageTooLong     = newError(KindInvalidInput, "MESSAGE_TOO_LONG", "Message is too long")
	ErrInvalidReaction    = newError(KindInvalidInput, "INVALID_REACTION", "Invalid reaction")
	ErrInvalidInput       = newError(KindInvalidInput, "INVALID_INPUT", "invalid input")
	ErrUsernameTaken      = newError(KindConflict, "USERNAME_TAKEN", "username already exists")
	ErrUpstream           = newError(KindUpstream, "UPSTREAM_FAILURE", "translation failed")
	ErrInternal           = newError(KindInternal, "INTERNAL", "internal error")
)

// Invalid builds an InvalidInput error with a custom message.
func Invalid(msg string) *Error {
	return &Error{Kind: KindInvalidInput, Code: ErrInvalidInput.Code, Message: msg}
}

// KindOf reports the kind of err, KindInternal when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf reports the code of err, "INTERNAL" when err carries none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrInternal.Code
}

// MessageOf returns the public message of err. Non-apperr errors are hidden.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ErrInternal.Message
}
