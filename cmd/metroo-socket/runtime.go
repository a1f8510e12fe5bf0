//go:build !js && !wasip1

package main

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/postalsys/metroo-socket/internal/client"
	"github.com/postalsys/metroo-socket/internal/config"
	"github.com/postalsys/metroo-socket/internal/health"
	"github.com/postalsys/metroo-socket/internal/logging"
	"github.com/postalsys/metroo-socket/internal/metrics"
	"github.com/postalsys/metroo-socket/internal/transport"
)

// runtimeEnv holds what every command builds from the configuration.
type runtimeEnv struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	server  *health.Server
	status  *transportStatus

	// progress receives a live status line when set.
	progress io.Writer
}

func newRuntime(cfg *config.Config) (*runtimeEnv, error) {
	env := &runtimeEnv{
		cfg:    cfg,
		logger: logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format),
		status: &transportStatus{},
	}

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		env.metrics = metrics.NewMetricsWithRegistry(reg)

		serverCfg := health.DefaultServerConfig()
		serverCfg.Address = cfg.Metrics.Address
		serverCfg.Gatherer = reg
		env.server = health.NewServer(serverCfg, env.status)
		if err := env.server.Start(); err != nil {
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
		env.logger.Info("metrics endpoint enabled", "address", env.server.Address().String())
	}

	return env, nil
}

func loadRuntime(configPath string) (*runtimeEnv, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return newRuntime(cfg)
}

// connect opens the configured transport.
func (e *runtimeEnv) connect() (transport.Transport, error) {
	cc, err := e.cfg.ClientConfig()
	if err != nil {
		return nil, err
	}
	tr, err := client.Connect(cc, client.WithLogger(e.logger), client.WithMetrics(e.metrics))
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	e.status.set(tr, cc.RemoteAddress)
	return tr, nil
}

// Close stops the metrics server.
func (e *runtimeEnv) Close() {
	e.status.set(nil, "")
	if e.server != nil {
		_ = e.server.Stop()
	}
}

// transportStatus reports the open transport to the health server.
type transportStatus struct {
	mu     sync.Mutex
	tr     transport.Transport
	remote string
}

func (s *transportStatus) set(tr transport.Transport, remote string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tr = tr
	s.remote = remote
}

func (s *transportStatus) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tr != nil
}

func (s *transportStatus) Stats() health.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := health.Stats{RemoteAddr: s.remote}
	if s.tr == nil {
		return stats
	}
	if addr := s.tr.LocalAddr(); addr != nil {
		stats.LocalAddr = addr.String()
	}

	inner := s.tr
	if lc, ok := inner.(*transport.LinkConditioner); ok {
		cs := lc.Stats()
		stats.Conditioner = &cs
		inner = lc.Unwrap()
	}
	switch inner.(type) {
	case *transport.NativeTransport:
		stats.Transport = metrics.TransportNative
	case *transport.BridgeTransport:
		stats.Transport = metrics.TransportBridge
	}
	return stats
}
