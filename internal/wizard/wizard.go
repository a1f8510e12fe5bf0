//go:build !js && !wasip1

// Package wizard provides an interactive setup wizard that writes a
// metroo-socket configuration file.
package wizard

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/postalsys/metroo-socket/internal/chaos"
	"github.com/postalsys/metroo-socket/internal/config"
	"github.com/postalsys/metroo-socket/internal/transport"
)

// presetCustom selects hand-entered link conditions.
const presetCustom = "custom"

// Result contains the wizard output.
type Result struct {
	Config     *config.Config
	ConfigPath string
}

// Answers holds everything the wizard asks for.
type Answers struct {
	RemoteAddress  string
	BindAddress    string
	DSCP           string
	Conditioner    bool
	Preset         string
	Loss           string
	Latency        string
	Jitter         string
	Duplication    string
	LogLevel       string
	MetricsEnabled bool
	MetricsAddress string
}

// Wizard manages the interactive setup process.
type Wizard struct {
	theme *huh.Theme
}

// New creates a new setup wizard.
func New() *Wizard {
	return &Wizard{
		theme: huh.ThemeDracula(),
	}
}

// Run executes the interactive setup wizard.
func (w *Wizard) Run(configPath string) (*Result, error) {
	w.printBanner()

	a := defaultAnswers()

	if err := w.askConnection(&a); err != nil {
		return nil, err
	}
	if err := w.askLinkConditioner(&a); err != nil {
		return nil, err
	}
	if err := w.askAdvancedOptions(&a); err != nil {
		return nil, err
	}

	cfg, err := buildConfig(a)
	if err != nil {
		return nil, err
	}

	if err := writeConfig(cfg, configPath); err != nil {
		return nil, err
	}

	w.printSummary(configPath, cfg)

	return &Result{Config: cfg, ConfigPath: configPath}, nil
}

func defaultAnswers() Answers {
	d := config.Default()
	return Answers{
		RemoteAddress:  d.Client.RemoteAddress,
		DSCP:           "0",
		Preset:         "good",
		Loss:           "0",
		Latency:        "0s",
		Jitter:         "0s",
		Duplication:    "0",
		LogLevel:       d.Logging.Level,
		MetricsAddress: d.Metrics.Address,
	}
}

func (w *Wizard) printBanner() {
	banner := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("212")).
		Render("\n  metroo-socket")

	subtitle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render("  Unreliable UDP client transport - Setup Wizard\n")

	fmt.Println(banner)
	fmt.Println(subtitle)
}

func (w *Wizard) askConnection(a *Answers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Connection").
				Description("Where the client sends its datagrams."),

			huh.NewInput().
				Title("Server Address").
				Description("host:port of the game server").
				Value(&a.RemoteAddress).
				Validate(validateHostPort),

			huh.NewInput().
				Title("Bind Address").
				Description("Local IP to bind (leave empty to detect)").
				Value(&a.BindAddress).
				Validate(func(s string) error {
					if s != "" && net.ParseIP(s) == nil {
						return fmt.Errorf("must be an IP address")
					}
					return nil
				}),

			huh.NewInput().
				Title("DSCP").
				Description("Traffic class for outgoing packets (0-63, 46 = expedited)").
				Value(&a.DSCP).
				Validate(validateIntRange(0, 63)),
		),
	).WithTheme(w.theme)

	return form.Run()
}

func (w *Wizard) askLinkConditioner(a *Answers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Link Conditioner").
				Description("Simulate packet loss, latency, jitter and duplication."),

			huh.NewConfirm().
				Title("Simulate a degraded network?").
				Value(&a.Conditioner),
		),
	).WithTheme(w.theme)

	if err := form.Run(); err != nil {
		return err
	}
	if !a.Conditioner {
		return nil
	}

	presetForm := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Network Preset").
				Options(
					huh.NewOption("Perfect (LAN)", "perfect"),
					huh.NewOption("Very good (wired, nearby)", "very_good"),
					huh.NewOption("Good (broadband)", "good"),
					huh.NewOption("Average (congested)", "average"),
					huh.NewOption("Poor (bad wireless)", "poor"),
					huh.NewOption("Very poor (barely usable)", "very_poor"),
					huh.NewOption("Custom", presetCustom),
				).
				Value(&a.Preset),
		),
	).WithTheme(w.theme)

	if err := presetForm.Run(); err != nil {
		return err
	}
	if a.Preset != presetCustom {
		return nil
	}

	customForm := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Packet Loss").
				Description("Probability from 0 to 1").
				Value(&a.Loss).
				Validate(validateProbability),
			huh.NewInput().
				Title("Minimum Latency").
				Description("e.g. 80ms").
				Value(&a.Latency).
				Validate(validateDuration),
			huh.NewInput().
				Title("Jitter").
				Description("Extra random delay, e.g. 20ms").
				Value(&a.Jitter).
				Validate(validateDuration),
			huh.NewInput().
				Title("Duplication").
				Description("Probability from 0 to 1").
				Value(&a.Duplication).
				Validate(validateProbability),
		),
	).WithTheme(w.theme)

	return customForm.Run()
}

func (w *Wizard) askAdvancedOptions(a *Answers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Advanced Options").
				Description("Configure monitoring and logging."),

			huh.NewSelect[string]().
				Title("Log Level").
				Options(
					huh.NewOption("Debug (verbose)", "debug"),
					huh.NewOption("Info (recommended)", "info"),
					huh.NewOption("Warning", "warn"),
					huh.NewOption("Error (quiet)", "error"),
				).
				Value(&a.LogLevel),

			huh.NewConfirm().
				Title("Enable metrics endpoint?").
				Description("HTTP endpoint for Prometheus (/metrics, /healthz)").
				Value(&a.MetricsEnabled),
		),
	).WithTheme(w.theme)

	return form.Run()
}

// buildConfig turns answers into a validated configuration.
func buildConfig(a Answers) (*config.Config, error) {
	cfg := config.Default()
	cfg.Client.RemoteAddress = strings.TrimSpace(a.RemoteAddress)
	cfg.Client.BindAddress = strings.TrimSpace(a.BindAddress)
	cfg.Client.ReceiveBufferSize = transport.DefaultReceiveBufferSize
	cfg.Logging.Level = a.LogLevel
	cfg.Metrics.Enabled = a.MetricsEnabled
	if a.MetricsAddress != "" {
		cfg.Metrics.Address = a.MetricsAddress
	}

	if a.DSCP != "" {
		dscp, err := strconv.Atoi(a.DSCP)
		if err != nil {
			return nil, fmt.Errorf("invalid dscp: %w", err)
		}
		cfg.Client.DSCP = dscp
	}

	if a.Conditioner {
		cfg.LinkConditioner.Enabled = true
		if a.Preset != presetCustom {
			cfg.LinkConditioner.Preset = a.Preset
		} else {
			cond, err := customConditions(a)
			if err != nil {
				return nil, err
			}
			cfg.LinkConditioner.Config = cond
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func customConditions(a Answers) (chaos.Config, error) {
	var (
		c   chaos.Config
		err error
	)
	if c.PacketLossProbability, err = strconv.ParseFloat(a.Loss, 64); err != nil {
		return c, fmt.Errorf("invalid packet loss: %w", err)
	}
	if c.MinLatency, err = time.ParseDuration(a.Latency); err != nil {
		return c, fmt.Errorf("invalid latency: %w", err)
	}
	if c.Jitter, err = time.ParseDuration(a.Jitter); err != nil {
		return c, fmt.Errorf("invalid jitter: %w", err)
	}
	if c.PacketDuplicationProbability, err = strconv.ParseFloat(a.Duplication, 64); err != nil {
		return c, fmt.Errorf("invalid duplication: %w", err)
	}
	return c, c.Validate()
}

// writeConfig writes cfg with a header comment, creating parent directories.
func writeConfig(cfg *config.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	header := "# metroo-socket configuration\n# Generated by setup wizard\n\n"
	if err := os.WriteFile(path, []byte(header+cfg.String()), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

func (w *Wizard) printSummary(configPath string, cfg *config.Config) {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("42"))

	divider := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render("─────────────────────────────────────────────────")

	fmt.Println()
	fmt.Println(divider)
	fmt.Println(style.Render("✓ Setup Complete!"))
	fmt.Println(divider)
	fmt.Println()

	fmt.Printf("  Config file:  %s\n", configPath)
	fmt.Printf("  Server:       %s\n", cfg.Client.RemoteAddress)
	if cfg.LinkConditioner.Enabled {
		if cfg.LinkConditioner.Preset != "" {
			fmt.Printf("  Conditions:   %s preset\n", cfg.LinkConditioner.Preset)
		} else {
			fmt.Printf("  Conditions:   %s\n", cfg.LinkConditioner.Config)
		}
	}
	if cfg.Metrics.Enabled {
		fmt.Printf("  Metrics:      http://%s/metrics\n", cfg.Metrics.Address)
	}

	fmt.Println()
	fmt.Println("  To measure the round trip:")
	fmt.Printf("    metroo-socket probe -c %s\n", configPath)
	fmt.Println()
}

func validateHostPort(s string) error {
	if _, _, err := net.SplitHostPort(s); err != nil {
		return fmt.Errorf("must be host:port")
	}
	return nil
}

func validateIntRange(min, max int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(s)
		if err != nil || n < min || n > max {
			return fmt.Errorf("must be a number between %d and %d", min, max)
		}
		return nil
	}
}

func validateProbability(s string) error {
	p, err := strconv.ParseFloat(s, 64)
	if err != nil || p < 0 || p > 1 {
		return fmt.Errorf("must be between 0 and 1")
	}
	return nil
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fmt.Errorf("must be a duration like 50ms")
	}
	return nil
}
