// Package client opens the transport a game client uses to talk to its
// server: a native UDP socket on regular builds, a host bridge in the
// browser, optionally behind a link conditioner.
package client

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/postalsys/metroo-socket/internal/chaos"
	"github.com/postalsys/metroo-socket/internal/discovery"
	"github.com/postalsys/metroo-socket/internal/logging"
	"github.com/postalsys/metroo-socket/internal/metrics"
	"github.com/postalsys/metroo-socket/internal/transport"
)

var (
	// ErrConfiguration is returned for an unusable Config.
	ErrConfiguration = errors.New("invalid client configuration")

	// ErrUnsupportedTarget is returned on builds with neither sockets nor a
	// host bridge.
	ErrUnsupportedTarget = errors.New("no transport available for this target")
)

// Config describes the connection to open.
type Config struct {
	// RemoteAddress is the server, as host:port.
	RemoteAddress string

	// BindAddress is the local IP to bind. Empty selects the address the
	// OS would route outbound traffic from.
	BindAddress string

	// ReceiveBufferSize bounds inbound datagram size. Zero means
	// transport.DefaultReceiveBufferSize.
	ReceiveBufferSize int

	// DSCP marks outbound datagrams (0-63).
	DSCP int

	// LinkConditioner enables network simulation when non-nil.
	LinkConditioner *chaos.Config
}

// Validate reports every problem with c.
func (c Config) Validate() error {
	var errs []string

	if c.RemoteAddress == "" {
		errs = append(errs, "remote_address is required")
	} else if err := checkHostPort(c.RemoteAddress); err != nil {
		errs = append(errs, fmt.Sprintf("remote_address %q: %v", c.RemoteAddress, err))
	}
	if c.BindAddress != "" && net.ParseIP(c.BindAddress) == nil {
		errs = append(errs, fmt.Sprintf("bind_address %q is not an IP address", c.BindAddress))
	}
	if c.ReceiveBufferSize < 0 || c.ReceiveBufferSize > transport.MaxReceiveBufferSize {
		errs = append(errs, fmt.Sprintf("receive_buffer_size must be between 1 and %d, got %d",
			transport.MaxReceiveBufferSize, c.ReceiveBufferSize))
	}
	if c.DSCP < 0 || c.DSCP > 63 {
		errs = append(errs, fmt.Sprintf("dscp must be between 0 and 63, got %d", c.DSCP))
	}
	if c.LinkConditioner != nil {
		if err := c.LinkConditioner.Validate(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrConfiguration, strings.Join(errs, "\n  - "))
	}
	return nil
}

func checkHostPort(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if host == "" {
		return errors.New("missing host")
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}

// Option customizes Connect.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	metrics    *metrics.Metrics
	discover   func() (net.IP, error)
	jsTransmit string
	jsReceive  string
}

// WithLogger sets the logger passed to every transport layer.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithDiscovery replaces the bind address lookup used when
// Config.BindAddress is empty.
func WithDiscovery(fn func() (net.IP, error)) Option {
	return func(o *options) { o.discover = fn }
}

// WithJSFunctions names the JavaScript globals used by the browser build.
// An empty name keeps the transport package default. Other builds ignore it.
func WithJSFunctions(transmit, receive string) Option {
	return func(o *options) {
		o.jsTransmit = transmit
		o.jsReceive = receive
	}
}

// Connect validates cfg and opens the transport for the current build.
func Connect(cfg Config, opts ...Option) (transport.Transport, error) {
	o := options{
		discover: discovery.OutboundIP,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.OrNop(o.logger)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tr, err := connect(cfg, o)
	if err != nil {
		return nil, err
	}
	return condition(tr, cfg)
}

// condition wraps tr when cfg asks for network simulation.
func condition(tr transport.Transport, cfg Config) (transport.Transport, error) {
	if cfg.LinkConditioner == nil {
		return tr, nil
	}
	conditioned, err := tr.WithLinkConditioner(*cfg.LinkConditioner)
	if err != nil {
		tr.Close()
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return conditioned, nil
}
