// Package apperror defines the error kinds shared by the fulfillment domain packages.
// Domain code returns these kinds; the transport layer maps them to status codes.
package apperror

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindValidation
	KindConflict
	KindForbidden
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Error is a classified error with a stable machine-readable code.
type Error struct {
	kind    Kind
	Code    string
	Message string
	Err     error
}

// New creates a classified error. Package-level sentinels are built with it.
func New(kind Kind, code, message string) *Error {
	return &Error{kind: kind, Code: code, Message: message}
}

// Wrap classifies err under kind, keeping it reachable through errors.Unwrap.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{kind: kind, Code: kind.String(), Message: message, Err: err}
}

func (e *Error) Kind() Kind {
	return e.kind
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Internal wraps a lower-level failure (persistence, encoding) so it never leaks unclassified.
func Internal(err error, message string) error {
	return Wrap(KindInternal, err, message)
}

// Upstream wraps a failed or timed out call to an external provider.
func Upstream(err error, message string) error {
	return Wrap(KindUpstream, err, message)
}

func Validation(message string) error {
	return New(KindValidation, "validation", message)
}

func Validationf(format string, args ...any) error {
	return New(KindValidation, "validation", fmt.Sprintf(format, args...))
}

func Forbidden(message string) error {
	return New(KindForbidden, "forbidden", message)
}

type kinded interface {
	Kind() Kind
}

// KindOf returns the kind of the outermost classified error in err's chain.
// Unclassified errors are Internal.
func KindOf(err error) Kind {
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindInternal
}

// Classify returns err unchanged when it already carries a kind, otherwise wraps it as Internal.
func Classify(err error, message string) error {
	if err == nil {
		return nil
	}
	var k kinded
	if errors.As(err, &k) {
		return err
	}
	return Internal(err, message)
}

// CodeOf returns the stable code of the outermost *Error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return KindOf(err).String()
}
