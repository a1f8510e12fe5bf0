//go:build !js && !wasip1

// Package main provides the metroo-socket CLI for exercising the client
// transport against a real or simulated link.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/postalsys/metroo-socket/internal/config"
	"github.com/postalsys/metroo-socket/internal/wizard"
)

var (
	// Version is set at build time
	Version = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "metroo-socket",
		Short: "metroo-socket - unreliable UDP client transport",
		Long: `metroo-socket drives the client datagram transport from the command
line. It can send traffic to a server, run a local echo peer, and measure
round trips, optionally through a link conditioner that simulates loss,
latency, jitter and duplication.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(echoCmd())
	rootCmd.AddCommand(probeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	var (
		outPath     string
		force       bool
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(outPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", outPath)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to check %s: %w", outPath, err)
			}

			if interactive {
				_, err := wizard.New().Run(outPath)
				return err
			}

			content := "# metroo-socket configuration\n" + config.Default().String()
			if err := os.WriteFile(outPath, []byte(content), 0644); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			fmt.Printf("Configuration written to %s\n", outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "./config.yaml", "Path of the configuration file to create")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Answer setup questions instead of writing defaults")

	return cmd
}
