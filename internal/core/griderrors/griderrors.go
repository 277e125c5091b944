// Package griderrors defines the error-kind taxonomy that the scheduler
// branches on. Kind is carried as a typed value rather than encoded into
// message text so callers never need to string-match an error.
package griderrors

import "fmt"

// Kind classifies an error by how the grid protocol should react to it.
type Kind string

const (
	ConfigInvalid  Kind = "CONFIG_INVALID"
	VersionRefused Kind = "VERSION_REFUSED"
	TransientIO    Kind = "TRANSIENT_IO"
	TransientDB    Kind = "TRANSIENT_DB"
	PermanentIO    Kind = "PERMANENT_IO"
	PermanentDB    Kind = "PERMANENT_DB"
	AdapterFailed  Kind = "ADAPTER_FAILED"
	ClaimLost      Kind = "CLAIM_LOST"
)

// GridError wraps an underlying error with its protocol-relevant kind.
type GridError struct {
	Kind Kind
	Err  error
}

func New(kind Kind, err error) *GridError {
	return &GridError{Kind: kind, Err: err}
}

func (e *GridError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *GridError) Unwrap() error {
	return e.Err
}

// KindOf extracts the Kind of err if it is (or wraps) a *GridError.
// Returns ("", false) for plain errors.
func KindOf(err error) (Kind, bool) {
	var ge *GridError
	for err != nil {
		if g, ok := err.(*GridError); ok {
			ge = g
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if ge == nil {
		return "", false
	}
	return ge.Kind, true
}

// Retryable reports whether kind is a transient error that the grid loops
// absorb rather than surface to a case record. The loops retry on their next
// tick at their fixed interval; the delay does not grow between retries.
func Retryable(kind Kind) bool {
	return kind == TransientIO || kind == TransientDB
}
