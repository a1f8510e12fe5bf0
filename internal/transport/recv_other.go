//go:build !js && !wasip1 && !linux && !darwin && !freebsd && !netbsd && !openbsd && !dragonfly

package transport

import (
	"errors"
	"net"
	"time"
)

// pollWindow is how long a read may wait on platforms without MSG_DONTWAIT.
const pollWindow = time.Millisecond

// nonblockingReader emulates a non-blocking read with a short deadline.
type nonblockingReader struct {
	conn *net.UDPConn
}

func newNonblockingReader(conn *net.UDPConn) (*nonblockingReader, error) {
	return &nonblockingReader{conn: conn}, nil
}

func (r *nonblockingReader) ReadFrom(buf []byte) (int, *net.UDPAddr, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(pollWindow)); err != nil {
		return 0, nil, err
	}
	n, addr, err := r.conn.ReadFromUDP(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, nil, errWouldBlock
		}
		return 0, nil, err
	}
	return n, addr, nil
}
