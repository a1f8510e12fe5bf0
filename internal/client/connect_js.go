//go:build js && wasm

package client

import (
	"fmt"

	"github.com/postalsys/metroo-socket/internal/logging"
	"github.com/postalsys/metroo-socket/internal/transport"
)

// connect opens a bridge to the JavaScript host. The host owns the socket,
// so the remote address and socket options are left to it.
func connect(cfg Config, o options) (transport.Transport, error) {
	host, err := transport.NewJSHost(o.jsTransmit)
	if err != nil {
		return nil, fmt.Errorf("open host bridge: %w", err)
	}
	tr := transport.NewBridgeTransport(host, transport.BridgeOptions{
		Logger:  o.logger,
		Metrics: o.metrics,
	})
	host.Listen(o.jsReceive, tr)

	o.logger.Info("host bridge ready", logging.KeyRemoteAddr, cfg.RemoteAddress)
	return tr, nil
}
