package central

import (
	"errors"
	"fmt"

	"github.com/blekit/gattc/internal/transport"
)

// ErrorKind classifies a central-core failure.
type ErrorKind string

const (
	KindNotFound         ErrorKind = "not_found"
	KindInvalidState     ErrorKind = "invalid_state"
	KindTransportFailure ErrorKind = "transport_failure"
	KindUnsupported      ErrorKind = "unsupported"
)

// Error is the error type surfaced by every core operation.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error // underlying transport error, if any
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch {
	case e.Msg == "" && e.Err == nil:
		return string(e.Kind)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Msg == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
}

// Unwrap exposes the underlying transport error to errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is allows errors.Is to compare Error values by Kind.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors for errors.Is checks.
var (
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrInvalidState     = &Error{Kind: KindInvalidState}
	ErrTransportFailure = &Error{Kind: KindTransportFailure}
	ErrUnsupported      = &Error{Kind: KindUnsupported}
)

func notFoundf(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func invalidStatef(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidState, Msg: fmt.Sprintf(format, args...)}
}

func unsupportedf(format string, args ...interface{}) error {
	return &Error{Kind: KindUnsupported, Msg: fmt.Sprintf(format, args...)}
}

func transportErr(msg string, err error) error {
	return &Error{Kind: KindTransportFailure, Msg: msg, Err: err}
}

// statusError normalizes a transport status/error pair into a core error.
// A non-success status is always a hard failure of the current operation,
// carrying the device identifier in its message.
func statusError(deviceID, op string, status transport.Status, err error) error {
	if err != nil {
		return transportErr(fmt.Sprintf("%s failed for device %s", op, deviceID), err)
	}
	if status != transport.StatusSuccess {
		return transportErr(fmt.Sprintf("%s failed for device %s: status %s", op, deviceID, status), nil)
	}
	return nil
}

// IsKind reports whether err is a core Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind == kind
	}
	return false
}
