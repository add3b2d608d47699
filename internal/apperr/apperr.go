// Package apperr defines the error taxonomy surfaced to clients: credential,
// validation, not-found and transport failures, each carrying a stable code.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindTransport Kind = iota
	KindCredential
	KindValidation
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindCredential:
		return "credential"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	default:
		return "transport"
	}
}

const (
	CodeEmailInUse        = "auth/email-already-in-use"
	CodeWeakPassword      = "auth/weak-password"
	CodePasswordTooLong   = "auth/password-too-long"
	CodeInvalidEmail      = "auth/invalid-email"
	CodeInvalidCredential = "auth/invalid-credential"
	CodeUserNotFound      = "auth/user-not-found"
	CodeInvalidResetToken = "auth/invalid-action-code"

	CodeInvalidInput  = "validation/invalid-input"
	CodeEmptyContent  = "validation/empty-content"
	CodeInvalidMood   = "validation/invalid-mood"
	CodeInvalidColor  = "validation/invalid-background-color"
	CodeInvalidPage   = "validation/invalid-page"
	CodeSelfReference = "friends/self-reference"

	CodeFriendNotFound = "friends/not-found"
	CodeVibeNotFound   = "vibes/not-found"

	CodeUnavailable = "transport/unavailable"
)

// Error is the single error type produced by the service layer.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// Fields holds per-field messages for validation failures, keyed by
	// the lower-cased field name.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on kind and code so sentinel errors can be compared with
// errors.Is regardless of the wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return e.Kind == t.Kind && e.Code == t.Code
}

func Credential(code, message string) *Error {
	return &Error{Kind: KindCredential, Code: code, Message: message}
}

func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

// Transport wraps a failed remote call. A nil err yields nil.
func Transport(err error) error {
	if err == nil {
		return nil
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}

	return &Error{
		Kind:    KindTransport,
		Code:    CodeUnavailable,
		Message: "remote call failed",
		Err:     err,
	}
}

var (
	ErrSelfReference = Validation(CodeSelfReference, "you cannot add yourself as a friend")
	ErrEmptyContent  = Validation(CodeEmptyContent, "content cannot be empty")
)

// KindOf classifies err. Errors outside the taxonomy are transport failures.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}

	return KindTransport
}

// CodeOf returns the code of err, or CodeUnavailable for foreign errors.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}

	return CodeUnavailable
}
