package transport

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/Workiva/go-datastructures/queue"

	"github.com/postalsys/metroo-socket/internal/chaos"
	"github.com/postalsys/metroo-socket/internal/logging"
	"github.com/postalsys/metroo-socket/internal/metrics"
)

// HostBridge is the embedding host's side of a BridgeTransport. The host
// owns the real socket; the bridge only converts and hands over payloads.
type HostBridge interface {
	// NewBuffer converts payload into the host's buffer representation.
	NewBuffer(payload []byte) (any, error)

	// Transmit sends a buffer produced by NewBuffer to the remote peer.
	Transmit(buffer any) error
}

// BridgeOptions configures a BridgeTransport.
type BridgeOptions struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// BridgeTransport is a Transport whose datagrams travel through a host.
// Inbound datagrams are pushed with Deliver and drained by Receive.
type BridgeTransport struct {
	host    HostBridge
	inbox   *queue.Queue
	closed  *atomic.Bool
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewBridgeTransport returns a transport sending through host.
func NewBridgeTransport(host HostBridge, opts BridgeOptions) *BridgeTransport {
	return &BridgeTransport{
		host:    host,
		inbox:   queue.New(64),
		closed:  new(atomic.Bool),
		logger:  logging.OrNop(opts.Logger).With(logging.KeyTransport, metrics.TransportBridge),
		metrics: opts.Metrics,
	}
}

// Deliver queues a copy of payload for a later Receive. Hosts call it when a
// datagram arrives.
func (t *BridgeTransport) Deliver(payload []byte) error {
	return t.push(NewPacket(payload))
}

func (t *BridgeTransport) push(p Packet) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if err := t.inbox.Put(p); err != nil {
		if errors.Is(err, queue.ErrDisposed) {
			return ErrClosed
		}
		return fmt.Errorf("deliver: %w", err)
	}
	return nil
}

// Receive returns the oldest delivered packet, if any. It must be called
// from a single goroutine.
func (t *BridgeTransport) Receive() (Packet, bool, error) {
	if t.closed.Load() {
		return Packet{}, false, ErrClosed
	}
	if t.inbox.Empty() {
		return Packet{}, false, nil
	}
	items, err := t.inbox.Get(1)
	if err != nil {
		if errors.Is(err, queue.ErrDisposed) {
			return Packet{}, false, ErrClosed
		}
		return Packet{}, false, fmt.Errorf("receive: %w", err)
	}
	p := items[0].(Packet)
	t.metrics.RecordReceive(metrics.TransportBridge, p.Len())
	return p, true, nil
}

// Pending returns the number of delivered packets not yet received.
func (t *BridgeTransport) Pending() int {
	return int(t.inbox.Len())
}

// Sender returns a handle transmitting through the host.
func (t *BridgeTransport) Sender() Sender {
	return bridgeSender{host: t.host, closed: t.closed, metrics: t.metrics}
}

// WithLinkConditioner wraps t in a LinkConditioner using t's logger and
// metrics.
func (t *BridgeTransport) WithLinkConditioner(cfg chaos.Config) (Transport, error) {
	c, err := NewLinkConditioner(t, cfg, WithLogger(t.logger), WithMetrics(t.metrics))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// LocalAddr returns nil; the host owns the socket.
func (t *BridgeTransport) LocalAddr() net.Addr {
	return nil
}

// Close discards undelivered packets and closes the host if it implements
// io.Closer.
func (t *BridgeTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.inbox.Dispose()
	if c, ok := t.host.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type bridgeSender struct {
	host    HostBridge
	closed  *atomic.Bool
	metrics *metrics.Metrics
}

func (s bridgeSender) Send(p Packet) error {
	if s.closed.Load() {
		return ErrClosed
	}
	buf, err := s.host.NewBuffer(p.Payload())
	if err != nil {
		s.metrics.RecordSendError(metrics.TransportBridge)
		return fmt.Errorf("convert payload: %w", err)
	}
	if err := s.host.Transmit(buf); err != nil {
		s.metrics.RecordSendError(metrics.TransportBridge)
		return fmt.Errorf("transmit: %w", err)
	}
	s.metrics.RecordSend(metrics.TransportBridge, p.Len())
	return nil
}
