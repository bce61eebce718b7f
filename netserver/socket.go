//go:build linux || darwin

package netserver

import (
	"net"

	reactor "github.com/joeycumines/go-reactor"
	"github.com/joeycumines/go-reactor/emitter"
	"github.com/joeycumines/go-reactor/stream"
	"golang.org/x/sys/unix"
)

// upper bound on reads per read readiness, so one busy peer cannot starve
// the rest of the loop
const maxReadsPerEvent = 16

// Socket is an accepted TCP connection. The readable side is a
// [stream.Readable]: data is emitted via OnData while flowing, and End
// marks the peer having finished sending. While paused, or once the high
// water mark is reached, the socket stops reading from the kernel.
//
// Writes are performed directly, without buffering.
type Socket struct {
	reactor.BaseEvent
	*stream.Readable
	loop          *reactor.Loop
	errs          *emitter.Signal[error]
	closed        *emitter.Signal[bool]
	remote        *net.TCPAddr
	readBuf       []byte
	allowHalfOpen bool
	destroyed     bool
	hadError      bool
}

var (
	_ reactor.ReadHandler  = (*Socket)(nil)
	_ reactor.ErrorHandler = (*Socket)(nil)
	_ reactor.CloseHandler = (*Socket)(nil)
	_ reactor.DetachHook   = (*Socket)(nil)
)

func newSocket(loop *reactor.Loop, readBuf []byte, opts options) *Socket {
	s := &Socket{
		loop:          loop,
		errs:          emitter.NewSignal[error]("error", loop),
		closed:        emitter.NewSignal[bool]("close", loop),
		readBuf:       readBuf,
		allowHalfOpen: opts.allowHalfOpen,
	}
	s.Readable = stream.NewReadable(loop, stream.SourceFunc(s.resumeReading), stream.WithHighWaterMark(opts.highWaterMark))
	if !opts.pauseOnConnect {
		s.Readable.Resume()
	}
	return s
}

// open attaches fd, reading only if flowing
func (s *Socket) open(fd int) error {
	var interest reactor.IOEvents
	if !s.IsPaused() {
		interest = reactor.EventRead
	}
	if err := s.SetFD(fd, interest); err != nil {
		return err
	}
	if _, err := s.loop.Add(s); err != nil {
		_ = s.SetFD(reactor.NoFD, 0)
		return err
	}
	return nil
}

// Errors is emitted for read, write and socket errors. The socket is
// closed after the error is emitted.
func (s *Socket) Errors() *emitter.Signal[error] { return s.errs }

// Closed is emitted once the socket is closed. The value reports whether
// the socket was closed due to an error.
func (s *Socket) Closed() *emitter.Signal[bool] { return s.closed }

// RemoteAddr returns the peer address.
func (s *Socket) RemoteAddr() net.Addr {
	if s.remote == nil {
		return nil
	}
	return s.remote
}

// LocalAddr returns the local address, or nil if closed.
func (s *Socket) LocalAddr() net.Addr {
	if addr := localAddr(s.FD()); addr != nil {
		return addr
	}
	return nil
}

// Destroyed reports whether the socket has been closed.
func (s *Socket) Destroyed() bool { return s.destroyed }

// Pause stops the flow of data, and stops reading from the kernel.
func (s *Socket) Pause() {
	s.Readable.Pause()
	s.setReading(false)
}

// Write writes p directly to the socket, returning the number of bytes
// written. A full kernel buffer results in a short write, with an error
// satisfying errors.Is(err, unix.EAGAIN).
func (s *Socket) Write(p []byte) (int, error) {
	if s.destroyed {
		return 0, ErrClosed
	}
	var written int
	for written < len(p) {
		n, err := unix.Write(s.FD(), p[written:])
		if n > 0 {
			written += n
		}
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return written, &OpError{Op: "write", Err: err}
		}
	}
	return written, nil
}

// OnRead reads until the kernel buffer is drained, the stream applies
// backpressure, or the peer finishes.
func (s *Socket) OnRead() {
	for i := 0; i < maxReadsPerEvent && !s.destroyed; i++ {
		n, err := unix.Read(s.FD(), s.readBuf)
		switch {
		case err == unix.EINTR:
			continue
		case isWouldBlock(err):
			return
		case err != nil:
			s.fail(&OpError{Op: "read", Err: err})
			return
		case n == 0:
			s.onEOF()
			return
		}

		if !s.Push(s.readBuf[:n]) {
			s.setReading(false)
			return
		}
	}
}

// OnClose handles the peer hanging up. Data still held by the kernel is
// read into the stream first, since a paused socket has no read interest.
func (s *Socket) OnClose() {
	if !s.IsEnded() {
		s.drain()
	}
	if !s.destroyed {
		s.onEOF()
	}
}

// drain reads until EOF or would block, regardless of flow control
func (s *Socket) drain() {
	for !s.destroyed {
		n, err := unix.Read(s.FD(), s.readBuf)
		switch {
		case err == unix.EINTR:
			continue
		case isWouldBlock(err):
			return
		case err != nil:
			s.fail(&OpError{Op: "read", Err: err})
			return
		case n == 0:
			return
		}
		s.Push(s.readBuf[:n])
	}
}

// OnError reports the pending socket error, then closes the socket.
func (s *Socket) OnError() {
	s.fail(socketError(s.FD()))
}

// OnDetach releases the descriptor.
func (s *Socket) OnDetach() {
	s.destroy()
}

// Close closes the socket. It is a no-op if already closed.
func (s *Socket) Close() {
	if s.Attached() {
		// OnDetach destroys
		_ = s.Detach()
		return
	}
	s.destroy()
}

func (s *Socket) onEOF() {
	s.setReading(false)
	s.End()
	if !s.allowHalfOpen {
		s.Close()
	}
}

func (s *Socket) fail(err error) {
	s.hadError = true
	s.errs.Emit(err)
	s.Close()
}

func (s *Socket) destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true
	if fd := s.FD(); fd >= 0 {
		_ = s.SetFD(reactor.NoFD, 0)
		_ = unix.Close(fd)
	}
	s.closed.EmitAsync(s.hadError)
}

// resumeReading is the stream's source
func (s *Socket) resumeReading() {
	if !s.IsEnded() {
		s.setReading(true)
	}
}

func (s *Socket) setReading(reading bool) {
	if s.destroyed {
		return
	}
	var interest reactor.IOEvents
	if reading {
		interest = reactor.EventRead
	}
	if err := s.SetInterest(interest); err != nil {
		s.fail(err)
	}
}
