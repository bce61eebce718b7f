//go:build darwin

package reactor

import (
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// initial fd table size, grown on demand
const maxFDs = 65536

type fdEntry struct {
	handle Handle
	events IOEvents
	active bool
}

// pollMux manages I/O event registration using kqueue (Darwin).
// Wake-ups go through a non-blocking self-pipe, which is never reported.
type pollMux struct {
	closed  *atomic.Bool
	events  []unix.Kevent_t
	fds     []fdEntry
	kq      int
	wakeR   int
	wakeW   int
	scratch map[int]int
}

func (p *pollMux) init() error {
	p.closed = atomic.NewBool(false)

	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	unix.CloseOnExec(kq)

	var pipe [2]int
	if err := unix.Pipe(pipe[:]); err != nil {
		_ = unix.Close(kq)
		return err
	}
	cleanup := func() {
		_ = unix.Close(pipe[0])
		_ = unix.Close(pipe[1])
		_ = unix.Close(kq)
	}
	for _, fd := range pipe {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			cleanup()
			return err
		}
	}

	if _, err := unix.Kevent(kq, []unix.Kevent_t{{
		Ident:  uint64(pipe[0]),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	}}, nil, nil); err != nil {
		cleanup()
		return err
	}

	p.kq = kq
	p.wakeR = pipe[0]
	p.wakeW = pipe[1]
	p.fds = make([]fdEntry, maxFDs)
	p.events = make([]unix.Kevent_t, 256)
	p.scratch = make(map[int]int)
	return nil
}

// Close closes the kqueue instance and the wake-up pipe.
func (p *pollMux) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	_ = unix.Close(p.wakeR)
	_ = unix.Close(p.wakeW)
	return unix.Close(p.kq)
}

// Register starts monitoring fd.
func (p *pollMux) Register(fd int, events IOEvents, h Handle) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if fd < 0 || fd >= MaxFDLimit || fd == p.wakeR || fd == p.wakeW {
		return ErrFDOutOfRange
	}

	p.fds = growFDs(p.fds, fd)
	if p.fds[fd].active {
		return ErrFDAlreadyRegistered
	}

	if kevents := eventsToKevents(fd, events, unix.EV_ADD|unix.EV_ENABLE); len(kevents) > 0 {
		if _, err := unix.Kevent(p.kq, kevents, nil, nil); err != nil {
			return err
		}
	}

	p.fds[fd] = fdEntry{handle: h, events: events, active: true}
	return nil
}

// Unregister stops monitoring fd.
func (p *pollMux) Unregister(fd int) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}
	if fd >= len(p.fds) || !p.fds[fd].active {
		return ErrFDNotRegistered
	}

	events := p.fds[fd].events
	p.fds[fd] = fdEntry{}

	if p.closed.Load() {
		return nil
	}
	if kevents := eventsToKevents(fd, events, unix.EV_DELETE); len(kevents) > 0 {
		// errors ignored, closing the fd already removes its filters
		_, _ = unix.Kevent(p.kq, kevents, nil, nil)
	}
	return nil
}

// Modify updates the events being monitored for fd.
func (p *pollMux) Modify(fd int, events IOEvents, h Handle) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if fd < 0 {
		return ErrFDOutOfRange
	}
	if fd >= len(p.fds) || !p.fds[fd].active {
		return ErrFDNotRegistered
	}

	oldEvents := p.fds[fd].events

	if removed := oldEvents &^ events; removed != 0 {
		if kevents := eventsToKevents(fd, removed, unix.EV_DELETE); len(kevents) > 0 {
			_, _ = unix.Kevent(p.kq, kevents, nil, nil)
		}
	}

	if added := events &^ oldEvents; added != 0 {
		if kevents := eventsToKevents(fd, added, unix.EV_ADD|unix.EV_ENABLE); len(kevents) > 0 {
			if _, err := unix.Kevent(p.kq, kevents, nil, nil); err != nil {
				return err
			}
		}
	}

	p.fds[fd].handle = h
	p.fds[fd].events = events
	return nil
}

// Poll waits for readiness. Read and write filters for the same fd are
// merged into a single Readiness.
func (p *pollMux) Poll(timeoutMs int, buf []Readiness) ([]Readiness, error) {
	buf = buf[:0]
	if p.closed.Load() {
		return buf, ErrPollerClosed
	}

	if c := cap(buf); c > len(p.events) {
		p.events = make([]unix.Kevent_t, c)
	}

	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMs / 1000),
			Nsec: int64((timeoutMs % 1000) * 1000000),
		}
	}

	n, err := unix.Kevent(p.kq, nil, p.events, ts)
	if err != nil {
		if err == unix.EINTR {
			return buf, nil
		}
		return buf, err
	}

	clear(p.scratch)
	for i := 0; i < n; i++ {
		fd := int(p.events[i].Ident)
		if fd == p.wakeR {
			p.drainWake()
			continue
		}
		if fd < 0 || fd >= len(p.fds) || !p.fds[fd].active {
			continue
		}
		events := keventToEvents(&p.events[i])
		if idx, ok := p.scratch[fd]; ok {
			buf[idx].Events |= events
			continue
		}
		p.scratch[fd] = len(buf)
		buf = append(buf, Readiness{Handle: p.fds[fd].handle, Events: events})
	}

	return buf, nil
}

// Wake interrupts a blocked Poll. Safe for concurrent use.
func (p *pollMux) Wake() error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	_, err := unix.Write(p.wakeW, []byte{1})
	if err == unix.EAGAIN {
		// pipe full, a wake-up is already pending
		return nil
	}
	return err
}

func (p *pollMux) drainWake() {
	var b [64]byte
	for {
		if _, err := unix.Read(p.wakeR, b[:]); err != nil {
			return
		}
	}
}

// eventsToKevents converts IOEvents to kqueue kevent structures.
// EventClose is reported through EV_EOF on the read or write filter.
func eventsToKevents(fd int, events IOEvents, flags uint16) []unix.Kevent_t {
	var kevents []unix.Kevent_t

	if events&EventRead != 0 {
		kevents = append(kevents, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_READ,
			Flags:  flags,
		})
	}

	if events&EventWrite != 0 {
		kevents = append(kevents, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_WRITE,
			Flags:  flags,
		})
	}

	return kevents
}

// keventToEvents converts kqueue event to IOEvents.
func keventToEvents(kev *unix.Kevent_t) IOEvents {
	var events IOEvents
	switch kev.Filter {
	case unix.EVFILT_READ:
		events |= EventRead
	case unix.EVFILT_WRITE:
		events |= EventWrite
	}
	if kev.Flags&unix.EV_ERROR != 0 {
		events |= EventError
	}
	if kev.Flags&unix.EV_EOF != 0 {
		events |= EventClose
	}
	return events
}
