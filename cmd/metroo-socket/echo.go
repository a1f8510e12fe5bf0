//go:build !js && !wasip1

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/postalsys/metroo-socket/internal/chaos"
	"github.com/postalsys/metroo-socket/internal/config"
	"github.com/postalsys/metroo-socket/internal/logging"
	"github.com/postalsys/metroo-socket/internal/transport"
)

func echoCmd() *cobra.Command {
	var (
		listenAddr   string
		peerAddr     string
		preset       string
		logLevel     string
		pollInterval time.Duration
		metricsAddr  string
	)

	cmd := &cobra.Command{
		Use:   "echo",
		Short: "Run a local peer that echoes every packet back",
		Long: `Bind a native transport on --listen that accepts packets from --peer
only and sends each one straight back. Use --preset to simulate a poor
link on the echo side.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			listen, err := net.ResolveUDPAddr("udp", listenAddr)
			if err != nil {
				return fmt.Errorf("invalid --listen: %w", err)
			}
			peer, err := net.ResolveUDPAddr("udp", peerAddr)
			if err != nil {
				return fmt.Errorf("invalid --peer: %w", err)
			}

			cfg := config.Default()
			cfg.Logging.Level = logLevel
			if metricsAddr != "" {
				cfg.Metrics.Enabled = true
				cfg.Metrics.Address = metricsAddr
			}
			env, err := newRuntime(cfg)
			if err != nil {
				return err
			}
			defer env.Close()

			tr, err := openEcho(env, listen, peer, preset)
			if err != nil {
				return err
			}
			defer tr.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if term.IsTerminal(int(os.Stdout.Fd())) {
				env.progress = os.Stdout
			}

			fmt.Printf("Echoing on %s for %s (Ctrl+C to stop)\n", tr.LocalAddr(), peer)
			var echoed trafficStats
			err = runEcho(ctx, tr, pollInterval, &echoed, env)
			fmt.Printf("\nEchoed: %s\n", echoed)
			return err
		},
	}

	cmd.Flags().StringVarP(&listenAddr, "listen", "l", "127.0.0.1:14191", "Local address to bind")
	cmd.Flags().StringVarP(&peerAddr, "peer", "p", "", "Only accept and echo packets from this address")
	cmd.Flags().StringVar(&preset, "preset", "", "Simulate a link preset (perfect, very_good, good, average, poor, very_poor)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", time.Millisecond, "Delay between polls when idle")
	cmd.Flags().StringVar(&metricsAddr, "metrics", "", "Serve /metrics and /healthz on this address")
	_ = cmd.MarkFlagRequired("peer")

	return cmd
}

// openEcho binds the echo transport, reporting into env's metrics, and
// wraps it in a link conditioner when preset is set.
func openEcho(env *runtimeEnv, listen, peer *net.UDPAddr, preset string) (transport.Transport, error) {
	native, err := transport.NewNativeTransport(transport.NativeOptions{
		BindIP:   listen.IP,
		BindPort: listen.Port,
		Remote:   peer,
		Logger:   env.logger,
		Metrics:  env.metrics,
	})
	if err != nil {
		return nil, err
	}

	var tr transport.Transport = native
	if preset != "" {
		conditions, err := chaos.PresetByName(preset)
		if err != nil {
			native.Close()
			return nil, err
		}
		if tr, err = native.WithLinkConditioner(conditions); err != nil {
			native.Close()
			return nil, err
		}
	}

	env.status.set(tr, peer.String())
	return tr, nil
}

// progressInterval paces the live status line.
const progressInterval = time.Second

// runEcho polls tr until ctx is done, sending every packet back.
func runEcho(ctx context.Context, tr transport.Transport, interval time.Duration, stats *trafficStats, env *runtimeEnv) error {
	sender := tr.Sender()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	lastReport := time.Now()

	for {
		p, ok, err := tr.Receive()
		switch {
		case errors.Is(err, transport.ErrUnexpectedSender):
			env.logger.Debug("ignoring stray datagram", logging.KeyError, err)
			if ctx.Err() != nil {
				return nil
			}
			continue
		case err != nil:
			return fmt.Errorf("receive failed: %w", err)
		case ok:
			if err := sender.Send(p); err != nil {
				env.logger.Warn("echo failed", logging.KeyError, err)
			} else {
				stats.add(p)
			}
			continue
		}

		if env.progress != nil && time.Since(lastReport) >= progressInterval {
			fmt.Fprintf(env.progress, "\rEchoed: %s", stats)
			lastReport = time.Now()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
