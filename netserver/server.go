//go:build linux || darwin

// Package netserver provides a listening TCP server and readable sockets,
// as events attached to a reactor loop.
//
// Errors are reported through the Errors signals rather than returned,
// matching the asynchronous nature of the loop. As with the loop itself,
// nothing here is safe for concurrent use.
package netserver

import (
	"errors"
	"net"

	reactor "github.com/joeycumines/go-reactor"
	"github.com/joeycumines/go-reactor/emitter"
	"golang.org/x/sys/unix"
)

// Server accepts TCP connections, emitting each as a [*Socket].
type Server struct {
	reactor.BaseEvent
	loop       *reactor.Loop
	listening  *emitter.Signal[struct{}]
	connection *emitter.Signal[*Socket]
	errs       *emitter.Signal[error]
	closed     *emitter.Signal[struct{}]
	readBuf    []byte
	opts       options
}

var (
	_ reactor.ReadHandler  = (*Server)(nil)
	_ reactor.ErrorHandler = (*Server)(nil)
	_ reactor.DetachHook   = (*Server)(nil)
)

// NewServer returns a server that will attach to loop, once listening.
func NewServer(loop *reactor.Loop, opts ...Option) *Server {
	return &Server{
		loop:       loop,
		listening:  emitter.NewSignal[struct{}]("listening", loop),
		connection: emitter.NewSignal[*Socket]("connection", loop),
		errs:       emitter.NewSignal[error]("error", loop),
		closed:     emitter.NewSignal[struct{}]("close", loop),
		opts:       resolveOptions(opts),
	}
}

// Listening is emitted once the server is bound and listening.
func (s *Server) Listening() *emitter.Signal[struct{}] { return s.listening }

// Connections is emitted for each accepted connection.
func (s *Server) Connections() *emitter.Signal[*Socket] { return s.connection }

// Errors is emitted for listen, accept and socket errors.
func (s *Server) Errors() *emitter.Signal[error] { return s.errs }

// Closed is emitted when the listening socket is closed.
func (s *Server) Closed() *emitter.Signal[struct{}] { return s.closed }

// Listen binds to address (host:port, see [net.ResolveTCPAddr]) and starts
// listening. The outcome is emitted asynchronously, on Listening or Errors.
// On failure the server is closed.
func (s *Server) Listen(address string) {
	if s.FD() >= 0 {
		s.errs.EmitAsync(ErrAlreadyListening)
		return
	}

	fd, err := openListener(address, s.opts.backlog, s.loop.Logger())
	if err != nil {
		s.errs.EmitAsync(err)
		s.Close()
		return
	}

	if err := s.SetFD(fd, reactor.EventRead); err != nil {
		// already attached, registration of the new fd failed
		_ = s.SetFD(reactor.NoFD, 0)
		_ = unix.Close(fd)
		s.errs.EmitAsync(err)
		s.Close()
		return
	}

	if !s.Attached() {
		if _, err := s.loop.Add(s); err != nil {
			_ = s.SetFD(reactor.NoFD, 0)
			_ = unix.Close(fd)
			s.errs.EmitAsync(err)
			return
		}
	}

	s.loop.Logger().Info().
		Str("addr", localAddr(fd).String()).
		Int("fd", fd).
		Log("netserver: listening")

	s.listening.EmitAsync(struct{}{})
}

// Addr returns the bound address, or nil if not listening.
func (s *Server) Addr() net.Addr {
	if addr := localAddr(s.FD()); addr != nil {
		return addr
	}
	return nil
}

// OnRead accepts every pending connection.
func (s *Server) OnRead() {
	for {
		fd, sa, err := accept(s.FD())
		if err != nil {
			if err == unix.EINTR || err == unix.ECONNABORTED {
				continue
			}
			if !isWouldBlock(err) {
				s.errs.Emit(&OpError{Op: "accept", Err: err})
			}
			return
		}

		sock, err := s.newSocket(fd, sa)
		if err != nil {
			_ = unix.Close(fd)
			s.errs.Emit(err)
			continue
		}

		s.connection.Emit(sock)

		if s.FD() < 0 {
			// closed by a listener
			return
		}
	}
}

// OnError reports the pending socket error, then closes the server.
func (s *Server) OnError() {
	s.errs.Emit(socketError(s.FD()))
	s.Close()
}

// OnDetach closes the listening socket.
func (s *Server) OnDetach() {
	s.closeFD()
}

// Close stops listening. Sockets already accepted are unaffected.
func (s *Server) Close() {
	if s.Attached() {
		// OnDetach closes the fd
		_ = s.Detach()
		return
	}
	s.closeFD()
}

func (s *Server) closeFD() {
	fd := s.FD()
	if fd < 0 {
		return
	}
	_ = s.SetFD(reactor.NoFD, 0)
	if err := unix.Close(fd); err != nil && !errors.Is(err, unix.EBADF) {
		s.loop.Logger().Warning().
			Err(err).
			Int("fd", fd).
			Log("netserver: close failed")
	}
	s.closed.EmitAsync(struct{}{})
}

func (s *Server) newSocket(fd int, sa unix.Sockaddr) (*Socket, error) {
	if s.readBuf == nil {
		s.readBuf = make([]byte, s.opts.readBufferSize)
	}
	sock := newSocket(s.loop, s.readBuf, s.opts)
	sock.remote = sockaddrToTCPAddr(sa)
	if err := sock.open(fd); err != nil {
		return nil, err
	}
	return sock, nil
}
