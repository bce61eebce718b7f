//go:build linux || darwin

package netserver

import (
	"net"

	"github.com/joeycumines/logiface"
	"golang.org/x/sys/unix"
)

// openListener creates a non-blocking listening TCP socket. The address
// family follows the resolved IP, defaulting to IPv4 for an empty host.
func openListener(address string, backlog int, logger *logiface.Logger[logiface.Event]) (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return -1, &OpError{Op: "resolve", Err: err}
	}

	fam := unix.AF_INET
	var sa unix.Sockaddr
	if ip4 := addr.IP.To4(); addr.IP == nil || ip4 != nil {
		var sa4 unix.SockaddrInet4
		copy(sa4.Addr[:], ip4)
		sa4.Port = addr.Port
		sa = &sa4
	} else {
		fam = unix.AF_INET6
		var sa6 unix.SockaddrInet6
		copy(sa6.Addr[:], addr.IP.To16())
		sa6.Port = addr.Port
		sa = &sa6
	}

	fd, err := unix.Socket(fam, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, &OpError{Op: "socket", Err: err}
	}
	unix.CloseOnExec(fd)

	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, &OpError{Op: "setnonblock", Err: err}
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		// not critical
		logger.Warning().
			Err(err).
			Int("fd", fd).
			Log("netserver: setsockopt(SO_REUSEADDR) failed")
	}

	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, &OpError{Op: "bind", Err: err}
	}

	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return -1, &OpError{Op: "listen", Err: err}
	}

	return fd, nil
}

func sockaddrToTCPAddr(sa unix.Sockaddr) *net.TCPAddr {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(append([]byte(nil), sa.Addr[:]...)), Port: sa.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(append([]byte(nil), sa.Addr[:]...)), Port: sa.Port}
	}
	return nil
}

func localAddr(fd int) *net.TCPAddr {
	if fd < 0 {
		return nil
	}
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil
	}
	return sockaddrToTCPAddr(sa)
}

// socketError returns the pending SO_ERROR of fd.
func socketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return &OpError{Op: "getsockopt", Err: err}
	}
	if errno == 0 {
		return ErrSocket
	}
	return &OpError{Op: "socket", Err: unix.Errno(errno)}
}

func isWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}
