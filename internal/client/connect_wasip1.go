//go:build wasip1

package client

import "github.com/postalsys/metroo-socket/internal/transport"

func connect(Config, options) (transport.Transport, error) {
	return nil, ErrUnsupportedTarget
}
