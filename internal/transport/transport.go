// Package transport provides the client side of an unordered, unreliable
// datagram link to a single remote peer.
//
// Two implementations share the Transport interface: NativeTransport speaks
// UDP through the operating system and BridgeTransport hands datagrams to an
// embedding host. Either can be wrapped in a LinkConditioner that simulates a
// lossy, slow network.
//
// Receive never waits. A poll that finds nothing returns ok == false and a
// nil error, so callers drive the transport from their own loop.
package transport

import (
	"net"

	"github.com/postalsys/metroo-socket/internal/chaos"
)

const (
	// DefaultReceiveBufferSize is the largest UDP payload that fits an
	// Ethernet frame without fragmentation. Longer datagrams are truncated.
	DefaultReceiveBufferSize = 1472

	// MaxReceiveBufferSize is the largest UDP payload over IPv4.
	MaxReceiveBufferSize = 65507
)

// Transport is a bidirectional datagram link to one remote peer.
type Transport interface {
	// Receive returns the next available packet without waiting. It returns
	// ok == false with a nil error when nothing is ready.
	Receive() (p Packet, ok bool, err error)

	// Sender returns an independent handle that sends to the remote peer.
	// Senders may outlive further calls to Receive and may be used from
	// other goroutines.
	Sender() Sender

	// WithLinkConditioner wraps the transport in a LinkConditioner.
	WithLinkConditioner(cfg chaos.Config) (Transport, error)

	// LocalAddr returns the bound socket address, or nil when the transport
	// has no socket of its own.
	LocalAddr() net.Addr

	// Close releases the transport. Senders obtained earlier fail with
	// ErrClosed afterwards.
	Close() error
}

// Sender transmits packets to the remote peer.
type Sender interface {
	// Send transmits p. Delivery is not guaranteed.
	Send(p Packet) error
}
