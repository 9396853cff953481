package document

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotFound       = errors.New("not found")
	ErrDenied         = errors.New("denied")
	ErrConflict       = errors.New("conflict")
	ErrRetentionLock  = errors.New("retention lock")
	ErrInfrastructure = errors.New("infrastructure failure")
)

// Machine-readable reasons carried by Error and recorded in the audit ledger.
const (
	ReasonInsufficientPermissions = "insufficient-permissions"
	ReasonNotFound                = "not-found"
	ReasonRetentionLock           = "retention-lock"
	ReasonZeroOwners              = "zero-owners"
	ReasonVersionConflict         = "version-conflict"
	ReasonNotDeleted              = "not-deleted"
	ReasonInvalidTransition       = "invalid-status-transition"
	ReasonCorruptVersion          = "corrupt-version"
	ReasonCanceled                = "canceled"
)

// Error is a lifecycle failure with a kind, the operation that produced it
// and a reason suitable for audit records and API responses.
type Error struct {
	Kind   error
	Op     string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the error kind so errors.Is(err, ErrDenied) works.
func (e *Error) Is(target error) bool { return e.Kind == target }

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an Error of the given kind.
func NewError(kind error, op, reason string) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason}
}

// WrapError wraps cause as a failure of the given kind.
func WrapError(kind error, op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Reason: cause.Error(), Err: cause}
}

// Invalidf builds an InvalidInput error with a formatted reason.
func Invalidf(op, format string, args ...any) *Error {
	return &Error{Kind: ErrInvalidInput, Op: op, Reason: fmt.Sprintf(format, args...)}
}

func IsKind(err, kind error) bool { return errors.Is(err, kind) }

// ReasonOf extracts the machine-readable reason from err, falling back to the
// error text.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	return err.Error()
}
