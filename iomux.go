package reactor

import (
	"strconv"
	"strings"
)

// IOEvents is a bitset of readiness conditions.
type IOEvents uint32

const (
	// EventRead indicates the file descriptor is ready for reading.
	EventRead IOEvents = 1 << iota
	// EventWrite indicates the file descriptor is ready for writing.
	EventWrite
	// EventError indicates an error condition on the file descriptor.
	EventError
	// EventClose indicates the peer closed (or hung up) its end.
	EventClose
)

func (e IOEvents) String() string {
	if e == 0 {
		return "none"
	}
	var parts []string
	for _, v := range [...]struct {
		bit  IOEvents
		name string
	}{
		{EventRead, "read"},
		{EventWrite, "write"},
		{EventError, "error"},
		{EventClose, "close"},
	} {
		if e&v.bit != 0 {
			parts = append(parts, v.name)
			e &^= v.bit
		}
	}
	if e != 0 {
		parts = append(parts, "0x"+strconv.FormatUint(uint64(e), 16))
	}
	return strings.Join(parts, "|")
}

// Readiness is a single result from [IOMultiplexer.Poll].
type Readiness struct {
	Handle Handle
	Events IOEvents
}

// IOMultiplexer wraps a kernel readiness mechanism (epoll, kqueue, ...).
// Implementations need not be safe for concurrent use, with the exception
// of [Waker.Wake], if implemented.
type IOMultiplexer interface {
	// Register starts monitoring fd for events, reporting readiness
	// against h.
	Register(fd int, events IOEvents, h Handle) error

	Unregister(fd int) error

	// Modify replaces the interest mask (and handle) of a registered fd.
	Modify(fd int, events IOEvents, h Handle) error

	// Poll waits up to timeoutMs milliseconds (negative blocks
	// indefinitely) and appends one entry per ready handle to buf[:0].
	Poll(timeoutMs int, buf []Readiness) ([]Readiness, error)

	Close() error
}

// Waker may be implemented by an [IOMultiplexer] to support interrupting a
// blocked Poll from another goroutine. See [Loop.Stop].
type Waker interface {
	Wake() error
}

// MaxFDLimit is the maximum fd value accepted by the poll multiplexers.
const MaxFDLimit = 100000000

// PollMultiplexer is the platform [IOMultiplexer], epoll on linux and
// kqueue on darwin. Use [NewPollMultiplexer] to create one.
type PollMultiplexer struct {
	pollMux
}

var (
	_ IOMultiplexer = (*PollMultiplexer)(nil)
	_ Waker         = (*PollMultiplexer)(nil)
)

// NewPollMultiplexer creates the platform multiplexer. It returns
// [ErrUnsupportedPlatform] where none exists.
func NewPollMultiplexer() (*PollMultiplexer, error) {
	var p PollMultiplexer
	if err := p.init(); err != nil {
		return nil, err
	}
	return &p, nil
}

// grows the fd table the same way on every platform
func growFDs[T any](fds []T, fd int) []T {
	if fd < len(fds) {
		return fds
	}
	newSize := fd*2 + 1
	if newSize > MaxFDLimit {
		newSize = MaxFDLimit + 1
	}
	grown := make([]T, newSize)
	copy(grown, fds)
	return grown
}
