//go:build !js && !wasip1

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/postalsys/metroo-socket/internal/logging"
	"github.com/postalsys/metroo-socket/internal/transport"
)

// trafficStats counts one direction of traffic.
type trafficStats struct {
	packets uint64
	bytes   uint64
}

func (s *trafficStats) add(p transport.Packet) {
	s.packets++
	s.bytes += uint64(p.Len())
}

func (s trafficStats) String() string {
	return fmt.Sprintf("%s packets, %s", humanize.Comma(int64(s.packets)), humanize.Bytes(s.bytes))
}

func sendCmd() *cobra.Command {
	var (
		configPath string
		count      int
		pps        float64
		message    string
		wait       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send packets to the configured server",
		Long: `Send a paced stream of packets to the configured remote and count
the replies. Replies are collected while sending and for --wait afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return errors.New("--count must be positive")
			}
			if pps <= 0 {
				return errors.New("--rate must be positive")
			}

			env, err := loadRuntime(configPath)
			if err != nil {
				return err
			}
			defer env.Close()

			tr, err := env.connect()
			if err != nil {
				return err
			}
			defer tr.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			limiter := rate.NewLimiter(rate.Limit(pps), 1)
			sender := tr.Sender()
			var sent, received trafficStats
			var sendErrors uint64
			start := time.Now()

			for i := 0; i < count; i++ {
				if err := limiter.Wait(ctx); err != nil {
					break
				}
				p := transport.NewPacket([]byte(fmt.Sprintf("%s #%d", message, i)))
				if err := sender.Send(p); err != nil {
					sendErrors++
					env.logger.Warn("send failed", logging.KeyError, err)
					continue
				}
				sent.add(p)
				if err := drainReplies(ctx, tr, &received, env); err != nil {
					return err
				}
			}

			deadline := time.NewTimer(wait)
			defer deadline.Stop()
			ticker := time.NewTicker(time.Millisecond)
			defer ticker.Stop()
		collect:
			for {
				if err := drainReplies(ctx, tr, &received, env); err != nil {
					return err
				}
				select {
				case <-ctx.Done():
					break collect
				case <-deadline.C:
					break collect
				case <-ticker.C:
				}
			}

			elapsed := time.Since(start)
			fmt.Printf("Sent:     %s\n", sent)
			fmt.Printf("Received: %s\n", received)
			if sendErrors > 0 {
				fmt.Printf("Errors:   %s\n", humanize.Comma(int64(sendErrors)))
			}
			if sent.packets > 0 {
				loss := 100 * (1 - float64(received.packets)/float64(sent.packets))
				fmt.Printf("Loss:     %s%%\n", humanize.FtoaWithDigits(max(loss, 0), 2))
			}
			fmt.Printf("Elapsed:  %v (%s/s sent)\n", elapsed.Round(time.Millisecond),
				humanize.Bytes(uint64(float64(sent.bytes)/max(elapsed.Seconds(), 1e-9))))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to configuration file")
	cmd.Flags().IntVarP(&count, "count", "n", 10, "Number of packets to send")
	cmd.Flags().Float64VarP(&pps, "rate", "r", 20, "Packets per second")
	cmd.Flags().StringVarP(&message, "message", "m", "ping", "Payload prefix")
	cmd.Flags().DurationVar(&wait, "wait", time.Second, "How long to keep collecting replies after the last send")

	return cmd
}

// maxDrainBatch bounds one drainReplies pass so a flood of datagrams cannot
// starve the caller's deadline and signal checks.
const maxDrainBatch = 1024

// drainReplies receives what is currently available, up to maxDrainBatch
// datagrams. Packets from unexpected senders are logged and skipped.
func drainReplies(ctx context.Context, tr transport.Transport, stats *trafficStats, env *runtimeEnv) error {
	for i := 0; i < maxDrainBatch && ctx.Err() == nil; i++ {
		p, ok, err := tr.Receive()
		switch {
		case errors.Is(err, transport.ErrUnexpectedSender):
			env.logger.Debug("ignoring stray datagram", logging.KeyError, err)
			continue
		case err != nil:
			return fmt.Errorf("receive failed: %w", err)
		case !ok:
			return nil
		}
		stats.add(p)
	}
	return nil
}
