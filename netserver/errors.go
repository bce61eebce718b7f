package netserver

import (
	"errors"
)

var (
	// ErrAlreadyListening is emitted (asynchronously) by [Server.Listen] if
	// the server already has a listening socket.
	ErrAlreadyListening = errors.New("netserver: already listening")

	// ErrClosed is returned by operations on a closed [Socket].
	ErrClosed = errors.New("netserver: use of closed socket")

	// ErrSocket is reported when error readiness is signalled for a
	// descriptor that has no pending SO_ERROR.
	ErrSocket = errors.New("netserver: socket error")
)

// OpError wraps the failure of a system call.
type OpError struct {
	Err error
	// Op is the operation that failed, e.g. "bind" or "accept".
	Op string
}

func (e *OpError) Error() string {
	return "netserver: " + e.Op + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }
