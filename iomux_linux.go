//go:build linux

package reactor

import (
	"encoding/binary"

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

// pollMux manages I/O event registration using epoll (Linux).
// Level triggered. Wake-ups go through an eventfd, which is never reported.
type pollMux struct {
	closed *atomic.Bool
	events []unix.EpollEvent
	fds    []fdEntry
	epfd   int
	wakeFD int
}

func (p *pollMux) init() error {
	p.closed = atomic.NewBool(false)

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}

	wakeFD, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return err
	}

	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFD, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakeFD),
	}); err != nil {
		_ = unix.Close(wakeFD)
		_ = unix.Close(epfd)
		return err
	}

	p.epfd = epfd
	p.wakeFD = wakeFD
	p.fds = make([]fdEntry, maxFDs)
	p.events = make([]unix.EpollEvent, 256)
	return nil
}

// Close closes the epoll instance and the wake-up eventfd.
func (p *pollMux) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	_ = unix.Close(p.wakeFD)
	return unix.Close(p.epfd)
}

// Register starts monitoring fd.
func (p *pollMux) Register(fd int, events IOEvents, h Handle) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if fd < 0 || fd >= MaxFDLimit || fd == p.wakeFD {
		return ErrFDOutOfRange
	}

	p.fds = growFDs(p.fds, fd)
	if p.fds[fd].active {
		return ErrFDAlreadyRegistered
	}

	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: eventsToEpoll(events),
		Fd:     int32(fd),
	}); err != nil {
		return err
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

	p.fds[fd] = fdEntry{}

	if p.closed.Load() {
		return nil
	}
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.EBADF || err == unix.ENOENT {
		// already closed by the owner, which removes it from the epoll set
		return nil
	}
	return err
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

	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: eventsToEpoll(events),
		Fd:     int32(fd),
	}); err != nil {
		return err
	}

	p.fds[fd].handle = h
	p.fds[fd].events = events
	return nil
}

// Poll waits for readiness. The kernel batch size follows cap(buf).
func (p *pollMux) Poll(timeoutMs int, buf []Readiness) ([]Readiness, error) {
	buf = buf[:0]
	if p.closed.Load() {
		return buf, ErrPollerClosed
	}

	if c := cap(buf); c > len(p.events) {
		p.events = make([]unix.EpollEvent, c)
	}

	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return buf, nil
		}
		return buf, err
	}

	for i := 0; i < n; i++ {
		fd := int(p.events[i].Fd)
		if fd == p.wakeFD {
			p.drainWake()
			continue
		}
		if fd < 0 || fd >= len(p.fds) || !p.fds[fd].active {
			continue
		}
		buf = append(buf, Readiness{
			Handle: p.fds[fd].handle,
			Events: epollToEvents(p.events[i].Events),
		})
	}

	return buf, nil
}

// Wake interrupts a blocked Poll. Safe for concurrent use.
func (p *pollMux) Wake() error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], 1)
	_, err := unix.Write(p.wakeFD, b[:])
	if err == unix.EAGAIN {
		// counter saturated, a wake-up is already pending
		return nil
	}
	return err
}

func (p *pollMux) drainWake() {
	var b [8]byte
	for {
		if _, err := unix.Read(p.wakeFD, b[:]); err != nil {
			return
		}
	}
}

// eventsToEpoll converts IOEvents to epoll event flags.
// EPOLLERR and EPOLLHUP are always reported by the kernel.
func eventsToEpoll(events IOEvents) uint32 {
	var epollEvents uint32
	if events&EventRead != 0 {
		epollEvents |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if events&EventWrite != 0 {
		epollEvents |= unix.EPOLLOUT
	}
	if events&EventClose != 0 {
		epollEvents |= unix.EPOLLRDHUP
	}
	return epollEvents
}

// epollToEvents converts epoll event flags to IOEvents.
func epollToEvents(epollEvents uint32) IOEvents {
	var events IOEvents
	if epollEvents&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if epollEvents&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if epollEvents&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if epollEvents&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		events |= EventClose
	}
	return events
}
