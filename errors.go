package reactor

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrNilEvent is returned by [Loop.Add] when passed a nil event.
	ErrNilEvent = errors.New("reactor: nil event")

	// ErrEventAttached is returned by [Loop.Add] when the event is already
	// attached to a loop (this one or another).
	ErrEventAttached = errors.New("reactor: event already attached")

	// ErrStaleHandle is returned when a [Handle] does not refer to a live
	// registration, e.g. because the slot was freed or reused.
	ErrStaleHandle = errors.New("reactor: stale or unknown handle")

	// ErrTimeoutArmed is returned by [Loop.ArmTimeout] if the registration
	// already has a pending timeout.
	ErrTimeoutArmed = errors.New("reactor: timeout already armed")

	// ErrTimeoutNotArmed is returned by [Loop.CancelTimeout] if there is
	// nothing to cancel.
	ErrTimeoutNotArmed = errors.New("reactor: timeout not armed")

	// ErrLoopRunning is returned by [Loop.Run] if called re-entrantly, and by
	// [Loop.Close] if called while the loop is running.
	ErrLoopRunning = errors.New("reactor: loop is already running")

	// ErrLoopTerminated is returned after the loop has been closed, or after
	// a fatal poll failure.
	ErrLoopTerminated = errors.New("reactor: loop has been terminated")

	// ErrUnsupportedPlatform is returned by [NewPollMultiplexer] on platforms
	// without an epoll or kqueue implementation.
	ErrUnsupportedPlatform = errors.New("reactor: no poll multiplexer for this platform")

	ErrFDOutOfRange        = errors.New("reactor: fd out of range (max 100000000)")
	ErrFDAlreadyRegistered = errors.New("reactor: fd already registered")
	ErrFDNotRegistered     = errors.New("reactor: fd not registered")
	ErrPollerClosed        = errors.New("reactor: poller closed")
)

// RegistrationError wraps a failure of the [IOMultiplexer] to register,
// modify or unregister a file descriptor.
type RegistrationError struct {
	Err    error
	Op     string
	Handle Handle
	FD     int
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("reactor: %s fd %d for handle %s: %v", e.Op, e.FD, e.Handle, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// PollError is returned by [Loop.Run] and [Loop.Tick] when the multiplexer
// fails to poll. It is fatal: the loop terminates.
type PollError struct {
	Err error
}

func (e *PollError) Error() string {
	return "reactor: poll failed: " + e.Err.Error()
}

func (e *PollError) Unwrap() error { return e.Err }

// PanicError wraps a value recovered from a panicking callback.
type PanicError struct {
	// Value is whatever was passed to panic.
	Value any
	// Category identifies the kind of callback, e.g. "read" or "next-tick".
	Category string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("reactor: %s callback panicked: %v", e.Category, e.Value)
}

// Unwrap returns the panic value if it is an error, enabling use with
// [errors.Is] and [errors.As].
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
