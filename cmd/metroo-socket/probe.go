//go:build !js && !wasip1

package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"

	"github.com/postalsys/metroo-socket/internal/transport"
)

var errNoReply = errors.New("no reply yet")

func probeCmd() *cobra.Command {
	var (
		configPath string
		timeout    time.Duration
		count      int
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Measure round-trip time to an echoing server",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			fmt.Printf("Probing %s from %v\n", env.cfg.Client.RemoteAddress, tr.LocalAddr())
			var lost int
			for i := 0; i < count; i++ {
				rtt, err := probeOnce(tr, i, timeout)
				if err != nil {
					lost++
					fmt.Printf("seq=%d: %v\n", i, err)
					continue
				}
				fmt.Printf("seq=%d: rtt=%v\n", i, rtt.Round(time.Microsecond))
			}
			if lost == count {
				return fmt.Errorf("no replies from %s", env.cfg.Client.RemoteAddress)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to configuration file")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 2*time.Second, "How long to wait for each reply")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of probes")

	return cmd
}

// probeOnce sends one tagged packet and polls with exponential backoff until
// the identical payload comes back.
func probeOnce(tr transport.Transport, seq int, timeout time.Duration) (time.Duration, error) {
	payload := []byte("probe-" + strconv.Itoa(seq) + "-" + strconv.FormatInt(time.Now().UnixNano(), 36))
	want := transport.NewPacket(payload)

	start := time.Now()
	if err := tr.Sender().Send(want); err != nil {
		return 0, fmt.Errorf("send failed: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Microsecond
	b.MaxInterval = 20 * time.Millisecond
	b.MaxElapsedTime = timeout

	var rtt time.Duration
	err := backoff.Retry(func() error {
		for {
			p, ok, err := tr.Receive()
			switch {
			case errors.Is(err, transport.ErrUnexpectedSender):
				if time.Since(start) >= timeout {
					return backoff.Permanent(errNoReply)
				}
				continue
			case err != nil:
				return backoff.Permanent(err)
			case !ok:
				return errNoReply
			case p.Equal(want):
				rtt = time.Since(start)
				return nil
			}
		}
	}, b)
	if errors.Is(err, errNoReply) {
		return 0, fmt.Errorf("timed out after %v", timeout)
	}
	return rtt, err
}
