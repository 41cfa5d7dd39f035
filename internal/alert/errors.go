package alert

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures around an evaluation. Zero income is not an
// error; it is a NoAlert decision.
type ErrorKind string

const (
	ErrStoreRead  ErrorKind = "store_read"
	ErrStoreWrite ErrorKind = "store_write"
	ErrDispatch   ErrorKind = "dispatch"
	ErrLock       ErrorKind = "lock"
)

// Error is a per-request failure. All kinds are retryable.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap builds an *Error of the given kind around err.
func Wrap(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
