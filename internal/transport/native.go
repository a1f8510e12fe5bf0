//go:build !js && !wasip1

package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/postalsys/metroo-socket/internal/chaos"
	"github.com/postalsys/metroo-socket/internal/logging"
	"github.com/postalsys/metroo-socket/internal/metrics"
	"github.com/postalsys/metroo-socket/internal/sharedref"
)

// NativeOptions configures a NativeTransport.
type NativeOptions struct {
	// BindIP is the local address to bind. Nil binds all interfaces.
	BindIP net.IP

	// BindPort is the local port. Zero lets the OS pick one.
	BindPort int

	// Remote is the only peer packets are accepted from and sent to.
	Remote *net.UDPAddr

	// ReceiveBufferSize bounds the datagram length Receive can return.
	// Zero means DefaultReceiveBufferSize.
	ReceiveBufferSize int

	// DSCP marks outgoing datagrams (0-63). Zero leaves the default.
	DSCP int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// socketState is shared between a NativeTransport and its senders.
type socketState struct {
	conn   *net.UDPConn
	reader *nonblockingReader
	buffer []byte
	closed bool
}

// NativeTransport is a Transport over an OS UDP socket.
type NativeTransport struct {
	remote  *net.UDPAddr
	socket  sharedref.Ref[socketState]
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewNativeTransport binds a UDP socket and returns a transport exchanging
// datagrams with opts.Remote.
func NewNativeTransport(opts NativeOptions) (*NativeTransport, error) {
	if opts.Remote == nil {
		return nil, errors.New("remote address is required")
	}
	size := opts.ReceiveBufferSize
	if size == 0 {
		size = DefaultReceiveBufferSize
	}
	if size < 1 || size > MaxReceiveBufferSize {
		return nil, fmt.Errorf("receive buffer size %d out of range [1, %d]", size, MaxReceiveBufferSize)
	}
	if opts.DSCP < 0 || opts.DSCP > 63 {
		return nil, fmt.Errorf("dscp %d out of range [0, 63]", opts.DSCP)
	}

	logger := logging.OrNop(opts.Logger).With(logging.KeyTransport, metrics.TransportNative)

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: opts.BindIP, Port: opts.BindPort})
	if err != nil {
		return nil, fmt.Errorf("bind udp socket: %w", err)
	}

	reader, err := newNonblockingReader(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("set non-blocking mode: %w", err)
	}

	if opts.DSCP > 0 {
		if err := setDSCP(conn, opts.DSCP); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set dscp: %w", err)
		}
	}

	logger.Info("udp socket bound",
		logging.KeyLocalAddr, conn.LocalAddr().String(),
		logging.KeyRemoteAddr, opts.Remote.String())

	return &NativeTransport{
		remote: opts.Remote,
		socket: sharedref.New(socketState{
			conn:   conn,
			reader: reader,
			buffer: make([]byte, size),
		}),
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Receive reads one datagram if the socket has one queued. Datagrams from any
// address other than the remote are discarded and reported as
// *UnexpectedSenderError.
func (t *NativeTransport) Receive() (Packet, bool, error) {
	g := t.socket.BorrowMut()
	defer g.Release()
	st := g.Value()

	if st.closed {
		return Packet{}, false, ErrClosed
	}

	n, from, err := st.reader.ReadFrom(st.buffer)
	switch {
	case errors.Is(err, errWouldBlock):
		return Packet{}, false, nil
	case err != nil:
		t.metrics.RecordReceiveError(metrics.TransportNative)
		return Packet{}, false, fmt.Errorf("receive: %w", err)
	}

	if !sameUDPAddr(from, t.remote) {
		t.metrics.RecordUnexpectedSender()
		t.logger.Debug("discarding datagram from unexpected sender",
			logging.KeySender, from.String(),
			logging.KeyBytes, n)
		return Packet{}, false, &UnexpectedSenderError{Addr: from, Expected: t.remote}
	}

	t.metrics.RecordReceive(metrics.TransportNative, n)
	return NewPacket(st.buffer[:n]), true, nil
}

// Sender returns a handle sharing this transport's socket.
func (t *NativeTransport) Sender() Sender {
	return nativeSender{
		socket:  t.socket.Clone(),
		remote:  t.remote,
		metrics: t.metrics,
	}
}

// WithLinkConditioner wraps t in a LinkConditioner using t's logger and
// metrics.
func (t *NativeTransport) WithLinkConditioner(cfg chaos.Config) (Transport, error) {
	c, err := NewLinkConditioner(t, cfg, WithLogger(t.logger), WithMetrics(t.metrics))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// LocalAddr returns the bound socket address.
func (t *NativeTransport) LocalAddr() net.Addr {
	g := t.socket.Borrow()
	defer g.Release()
	return g.Value().conn.LocalAddr()
}

// RemoteAddr returns the configured remote.
func (t *NativeTransport) RemoteAddr() net.Addr {
	return t.remote
}

// Close closes the socket. It is safe to call more than once.
func (t *NativeTransport) Close() error {
	g := t.socket.BorrowMut()
	defer g.Release()
	st := g.Value()

	if st.closed {
		return nil
	}
	st.closed = true
	t.logger.Debug("udp socket closed")
	return st.conn.Close()
}

type nativeSender struct {
	socket  sharedref.Ref[socketState]
	remote  *net.UDPAddr
	metrics *metrics.Metrics
}

func (s nativeSender) Send(p Packet) error {
	g := s.socket.Borrow()
	defer g.Release()
	st := g.Value()

	if st.closed {
		return ErrClosed
	}
	if _, err := st.conn.WriteToUDP(p.Payload(), s.remote); err != nil {
		s.metrics.RecordSendError(metrics.TransportNative)
		return fmt.Errorf("send to %s: %w", s.remote, err)
	}
	s.metrics.RecordSend(metrics.TransportNative, p.Len())
	return nil
}

// sameUDPAddr compares addresses treating IPv4 and IPv4-mapped IPv6 forms as
// equal.
func sameUDPAddr(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Port == b.Port && a.IP.Equal(b.IP)
}
