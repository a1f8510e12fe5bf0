//go:build !js && !wasip1

package client

import (
	"fmt"
	"net"

	"github.com/postalsys/metroo-socket/internal/transport"
)

func connect(cfg Config, o options) (transport.Transport, error) {
	remote, err := net.ResolveUDPAddr("udp", cfg.RemoteAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve remote_address: %w", ErrConfiguration, err)
	}

	bindIP := net.ParseIP(cfg.BindAddress)
	if bindIP == nil {
		if bindIP, err = o.discover(); err != nil {
			return nil, fmt.Errorf("discover bind address: %w", err)
		}
	}

	return transport.NewNativeTransport(transport.NativeOptions{
		BindIP:            bindIP,
		Remote:            remote,
		ReceiveBufferSize: cfg.ReceiveBufferSize,
		DSCP:              cfg.DSCP,
		Logger:            o.logger,
		Metrics:           o.metrics,
	})
}
