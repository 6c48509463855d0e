// Package errs defines the overlay's error taxonomy, shared by every
// component so that logs, metrics, and propagation policy all key off the
// same small set of kinds.
package errs

import "fmt"

// Kind is one of the seven error categories the overlay distinguishes for
// logging, metrics, and propagation policy.
type Kind string

const (
	Config    Kind = "ConfigError"
	Transport Kind = "TransportError"
	Decode    Kind = "DecodeError"
	Auth      Kind = "AuthError"
	Policy    Kind = "PolicyError"
	Handler   Kind = "HandlerError"
	Storage   Kind = "StorageError"
)

// Error pairs a Kind with a short human-readable reason and an optional
// wrapped cause.
type Error struct {
	Kind   Kind
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no wrapped cause.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap builds an *Error wrapping cause.
func Wrap(kind Kind, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, Cause: cause}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
