package rpc

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned when a call's caller-supplied window elapses
// without a matching reply.
var ErrTimeout = errors.New("rpc: timeout")

// RemoteError wraps the string carried in a reply's "error" key. It is
// distinct from a transport-level Go error: the handler on the other
// end ran, and chose to fail.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

// RPCError is the error kind a handler raises deliberately; the wrapper
// serializes it as {error: "RPC Error: <message>"} rather than the
// generic "Unhandled exception" form used for any other error or a
// recovered panic.
type RPCError struct {
	Message string
}

func (e *RPCError) Error() string { return e.Message }

// NewRPCError is a convenience constructor for handlers.
func NewRPCError(format string, args ...any) *RPCError {
	return &RPCError{Message: fmt.Sprintf(format, args...)}
}
