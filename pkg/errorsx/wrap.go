package errorsx

import (
	"errors"
	"fmt"
)

// ReasonedError carries a reason code alongside the error chain. Only the
// innermost reason counts; wrapping an already reasoned error keeps it.
type ReasonedError struct {
	Err    error
	Reason ReasonCode
}

func (e ReasonedError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return e.Err.Error()
}

func (e ReasonedError) Unwrap() error { return e.Err }

// Wrap attaches reason to err. It returns nil for a nil err and err itself
// when the chain already carries a reason.
func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	if Reason(err) != ReasonUnknown {
		return err
	}
	return ReasonedError{Err: err, Reason: reason}
}

// Wrapf prefixes err with a formatted context and attaches reason.
func Wrapf(err error, reason ReasonCode, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err), reason)
}

// Reason returns the reason carried by err, or ReasonUnknown.
func Reason(err error) ReasonCode {
	var re ReasonedError
	if err != nil && errors.As(err, &re) {
		return re.Reason
	}
	return ReasonUnknown
}

func HasReason(err error, reason ReasonCode) bool {
	return Reason(err) == reason
}

func New(reason ReasonCode, msg string) error {
	return ReasonedError{Err: errors.New(msg), Reason: reason}
}

func Newf(reason ReasonCode, format string, args ...any) error {
	return ReasonedError{Err: fmt.Errorf(format, args...), Reason: reason}
}
