package transport

import (
	"errors"
	"fmt"
	"net"
)

var (
	// ErrUnexpectedSender matches any *UnexpectedSenderError.
	ErrUnexpectedSender = errors.New("packet from unexpected sender")

	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("transport closed")

	// errWouldBlock reports an empty socket on a non-blocking read.
	errWouldBlock = errors.New("would block")
)

// UnexpectedSenderError is returned by Receive when a datagram arrives from
// an address other than the configured remote. The datagram is discarded.
type UnexpectedSenderError struct {
	Addr     net.Addr
	Expected net.Addr
}

func (e *UnexpectedSenderError) Error() string {
	return fmt.Sprintf("packet from unexpected sender %s (expected %s)", e.Addr, e.Expected)
}

func (e *UnexpectedSenderError) Unwrap() error {
	return ErrUnexpectedSender
}
