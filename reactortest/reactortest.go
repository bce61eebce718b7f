// Package reactortest provides a scripted multiplexer and a manual clock, for
// deterministic tests of code built on the reactor package.
package reactortest

import (
	"errors"
	"sync"
	"time"

	reactor "github.com/joeycumines/go-reactor"
)

// ErrBlockedForever is returned by [Multiplexer.Poll] when asked to block
// indefinitely with nothing queued, which would otherwise hang the test.
var ErrBlockedForever = errors.New("reactortest: poll would block forever")

// ManualClock is a [reactor.Clock] that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a clock set to start, or an arbitrary fixed time
// if start is zero.
func NewManualClock(start time.Time) *ManualClock {
	if start.IsZero() {
		start = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// OpKind identifies a multiplexer call.
type OpKind string

const (
	OpRegister   OpKind = "register"
	OpUnregister OpKind = "unregister"
	OpModify     OpKind = "modify"
)

// Op records a single Register, Unregister or Modify call.
type Op struct {
	Kind   OpKind
	FD     int
	Events reactor.IOEvents
	Handle reactor.Handle
}

// Ready is queued readiness for a descriptor, resolved to the registered
// handle when polled.
type Ready struct {
	FD     int
	Events reactor.IOEvents
}

type pollResult struct {
	err   error
	ready []Ready
	raw   []reactor.Readiness
}

// Multiplexer is a scripted [reactor.IOMultiplexer]. Each queued batch is
// returned by one Poll. With nothing queued, Poll returns immediately,
// first advancing Clock (if set) by the timeout, as if it had slept.
//
// The exported error fields, when non-nil, are returned by the matching
// method, without side effects.
type Multiplexer struct {
	// Clock, if set, is advanced by Poll to simulate waiting.
	Clock *ManualClock
	// OnPoll, if set, is called at the start of each Poll.
	OnPoll func(timeoutMs int)

	RegisterErr   error
	UnregisterErr error
	ModifyErr     error

	mu     sync.Mutex
	regs   map[int]Op
	queue  []pollResult
	ops    []Op
	polls  []int
	woken  bool
	closed bool
	closeN int
	wakeN  int
}

var (
	_ reactor.IOMultiplexer = (*Multiplexer)(nil)
	_ reactor.Waker         = (*Multiplexer)(nil)
)

// NewMultiplexer returns an empty multiplexer. The clock may be nil.
func NewMultiplexer(clock *ManualClock) *Multiplexer {
	return &Multiplexer{Clock: clock, regs: make(map[int]Op)}
}

func (m *Multiplexer) Register(fd int, events reactor.IOEvents, h reactor.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RegisterErr != nil {
		return m.RegisterErr
	}
	if m.closed {
		return reactor.ErrPollerClosed
	}
	if fd < 0 {
		return reactor.ErrFDOutOfRange
	}
	if _, ok := m.regs[fd]; ok {
		return reactor.ErrFDAlreadyRegistered
	}
	op := Op{Kind: OpRegister, FD: fd, Events: events, Handle: h}
	m.regs[fd] = op
	m.ops = append(m.ops, op)
	return nil
}

func (m *Multiplexer) Unregister(fd int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UnregisterErr != nil {
		return m.UnregisterErr
	}
	if _, ok := m.regs[fd]; !ok {
		return reactor.ErrFDNotRegistered
	}
	delete(m.regs, fd)
	m.ops = append(m.ops, Op{Kind: OpUnregister, FD: fd})
	return nil
}

func (m *Multiplexer) Modify(fd int, events reactor.IOEvents, h reactor.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ModifyErr != nil {
		return m.ModifyErr
	}
	if _, ok := m.regs[fd]; !ok {
		return reactor.ErrFDNotRegistered
	}
	op := Op{Kind: OpModify, FD: fd, Events: events, Handle: h}
	m.regs[fd] = Op{Kind: OpRegister, FD: fd, Events: events, Handle: h}
	m.ops = append(m.ops, op)
	return nil
}

func (m *Multiplexer) Poll(timeoutMs int, buf []reactor.Readiness) ([]reactor.Readiness, error) {
	if fn := m.OnPoll; fn != nil {
		fn(timeoutMs)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	buf = buf[:0]
	m.polls = append(m.polls, timeoutMs)

	if m.closed {
		return buf, reactor.ErrPollerClosed
	}

	if len(m.queue) != 0 {
		res := m.queue[0]
		m.queue = m.queue[1:]
		if res.err != nil {
			return buf, res.err
		}
		buf = append(buf, res.raw...)
		for _, r := range res.ready {
			if op, ok := m.regs[r.FD]; ok {
				buf = append(buf, reactor.Readiness{Handle: op.Handle, Events: r.Events})
			}
		}
		return buf, nil
	}

	if m.woken {
		m.woken = false
		return buf, nil
	}

	if timeoutMs < 0 {
		return buf, ErrBlockedForever
	}

	if m.Clock != nil {
		m.Clock.Advance(time.Duration(timeoutMs) * time.Millisecond)
	}

	return buf, nil
}

// Wake causes the next Poll with nothing queued to return immediately.
func (m *Multiplexer) Wake() error {
	m.mu.Lock()
	m.woken = true
	m.wakeN++
	m.mu.Unlock()
	return nil
}

func (m *Multiplexer) Close() error {
	m.mu.Lock()
	m.closed = true
	m.closeN++
	m.mu.Unlock()
	return nil
}

// Queue adds a batch of readiness, to be returned by a single Poll.
func (m *Multiplexer) Queue(batch ...Ready) {
	m.mu.Lock()
	m.queue = append(m.queue, pollResult{ready: batch})
	m.mu.Unlock()
}

// QueueRaw adds a batch of readiness by handle, which need not be valid.
func (m *Multiplexer) QueueRaw(batch ...reactor.Readiness) {
	m.mu.Lock()
	m.queue = append(m.queue, pollResult{raw: batch})
	m.mu.Unlock()
}

// QueueError causes a Poll to fail with err.
func (m *Multiplexer) QueueError(err error) {
	m.mu.Lock()
	m.queue = append(m.queue, pollResult{err: err})
	m.mu.Unlock()
}

// Registered returns the current registration of fd.
func (m *Multiplexer) Registered(fd int) (Op, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.regs[fd]
	return op, ok
}

// Len returns the number of registered descriptors.
func (m *Multiplexer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.regs)
}

// Ops returns every Register, Unregister and Modify call, in order.
func (m *Multiplexer) Ops() []Op {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Op(nil), m.ops...)
}

// Polls returns the timeout passed to every Poll, in order.
func (m *Multiplexer) Polls() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.polls...)
}

// Closed reports the number of times Close was called.
func (m *Multiplexer) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeN
}

// Wakes reports the number of times Wake was called.
func (m *Multiplexer) Wakes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wakeN
}
