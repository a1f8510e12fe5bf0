//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package transport

import (
	"net"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// nonblockingReader reads straight from the socket descriptor with
// MSG_DONTWAIT so an empty socket never parks the caller.
type nonblockingReader struct {
	raw syscall.RawConn
}

func newNonblockingReader(conn *net.UDPConn) (*nonblockingReader, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, err
	}
	var nbErr error
	if err := raw.Control(func(fd uintptr) {
		nbErr = unix.SetNonblock(int(fd), true)
	}); err != nil {
		return nil, err
	}
	if nbErr != nil {
		return nil, os.NewSyscallError("setnonblock", nbErr)
	}
	return &nonblockingReader{raw: raw}, nil
}

// ReadFrom fills buf with one datagram. Longer datagrams are truncated to
// len(buf). It returns errWouldBlock when nothing is queued.
func (r *nonblockingReader) ReadFrom(buf []byte) (int, *net.UDPAddr, error) {
	var (
		n       int
		from    unix.Sockaddr
		readErr error
	)
	// Returning true skips the runtime poller wait.
	err := r.raw.Read(func(fd uintptr) bool {
		n, from, readErr = unix.Recvfrom(int(fd), buf, unix.MSG_DONTWAIT)
		return true
	})
	if err != nil {
		return 0, nil, err
	}
	if readErr != nil {
		if readErr == unix.EAGAIN || readErr == unix.EWOULDBLOCK || readErr == unix.EINTR {
			return 0, nil, errWouldBlock
		}
		return 0, nil, os.NewSyscallError("recvfrom", readErr)
	}
	return n, sockaddrToUDP(from), nil
}

func sockaddrToUDP(sa unix.Sockaddr) *net.UDPAddr {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, net.IPv4len)
		copy(ip, sa.Addr[:])
		return &net.UDPAddr{IP: ip, Port: sa.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, net.IPv6len)
		copy(ip, sa.Addr[:])
		addr := &net.UDPAddr{IP: ip, Port: sa.Port}
		if sa.ZoneId != 0 {
			if ifi, err := net.InterfaceByIndex(int(sa.ZoneId)); err == nil {
				addr.Zone = ifi.Name
			}
		}
		return addr
	default:
		return &net.UDPAddr{}
	}
}
