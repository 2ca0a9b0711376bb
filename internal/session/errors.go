package session

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/sandia-minimega/epc/internal/registry"
)

// ErrSessionClosed is returned to any pending or new call once the session
// has shut down.
var ErrSessionClosed = errors.New("session: closed")

// ErrTimeout is returned by Call/QueryMethods when the caller's context
// deadline elapses before a response arrives. It never crosses the wire.
var ErrTimeout = errors.New("session: call timed out")

// ProtocolError reports a well-formed S-expression that does not match any
// recognized frame shape: unknown head symbol, wrong arity, or a
// non-integer UID. It corresponds to an inbound or outbound epc-error
// frame.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("epc protocol error: %s", e.Message)
}

// MethodNotFoundError reports that the peer's registry had no handler
// for Name. Produced locally when a return-error frame's class is
// "no-such-method".
type MethodNotFoundError struct {
	Name string
}

func (e *MethodNotFoundError) Error() string {
	return fmt.Sprintf("epc: no such method %q", e.Name)
}

// appError constructs the error value for class/message/backtrace triples
// decoded off the wire, mapping the well-known "no-such-method" class to
// MethodNotFoundError and everything else to *registry.ApplicationError.
func appError(class, message string, backtrace []string) error {
	if class == "no-such-method" {
		return &MethodNotFoundError{Name: message}
	}
	return &registry.ApplicationError{Class: class, Message: message, Backtrace: backtrace}
}
