// Package apierr defines the closed error taxonomy shared by every core
// component (store, repo, branch, fork, share) and mapped to HTTP status
// codes in one place by the api package.
package apierr

import "fmt"

// Kind is one of the seven error kinds a core operation can fail with.
type Kind string

const (
	KindInvalidInput    Kind = "invalid_input"
	KindNotFound        Kind = "not_found"
	KindDepthExceeded   Kind = "depth_exceeded"
	KindBranchDivergent Kind = "branch_divergent"
	KindConflict        Kind = "conflict"
	KindInternal        Kind = "internal"
	KindCancelled       Kind = "cancelled"
)

// Error wraps an underlying cause with a Kind so callers can distinguish
// client-shape problems from store failures without inspecting driver
// error strings.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// GetKind returns e.Kind. The HTTP layer's status mapping does not call
// it; it reads the kind through KindOf.
func (e *Error) GetKind() Kind {
	return e.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func InvalidInput(format string, args ...any) *Error {
	return New(KindInvalidInput, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

func DepthExceeded(format string, args ...any) *Error {
	return New(KindDepthExceeded, fmt.Sprintf(format, args...))
}

func BranchDivergent(format string, args ...any) *Error {
	return New(KindBranchDivergent, fmt.Sprintf(format, args...))
}

func Conflict(format string, args ...any) *Error {
	return New(KindConflict, fmt.Sprintf(format, args...))
}

func Internal(cause error, format string, args ...any) *Error {
	return Wrap(KindInternal, fmt.Sprintf(format, args...), cause)
}

func Cancelled(cause error) *Error {
	return Wrap(KindCancelled, "operation cancelled", cause)
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error,
// defaulting to KindInternal for anything else.
func KindOf(err error) Kind {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return KindInternal
	}
	return e.Kind
}
