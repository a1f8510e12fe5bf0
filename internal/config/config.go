// Package config provides configuration parsing and validation for the
// metroo-socket client.
package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/postalsys/metroo-socket/internal/chaos"
	"github.com/postalsys/metroo-socket/internal/client"
	"github.com/postalsys/metroo-socket/internal/transport"
)

// Config represents the complete client configuration.
type Config struct {
	Client          ClientConfig          `yaml:"client"`
	LinkConditioner LinkConditionerConfig `yaml:"link_conditioner"`
	Logging         LoggingConfig         `yaml:"logging"`
	Metrics         MetricsConfig         `yaml:"metrics"`
}

// ClientConfig describes the socket.
type ClientConfig struct {
	RemoteAddress     string `yaml:"remote_address"`
	BindAddress       string `yaml:"bind_address"`
	ReceiveBufferSize int    `yaml:"receive_buffer_size"`
	DSCP              int    `yaml:"dscp"`
}

// LinkConditionerConfig enables network simulation. A non-empty Preset
// replaces the inline fields.
type LinkConditionerConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Preset       string `yaml:"preset"`
	chaos.Config `yaml:",inline"`
}

// LoggingConfig contains log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Client: ClientConfig{
			RemoteAddress:     "127.0.0.1:14191",
			ReceiveBufferSize: transport.DefaultReceiveBufferSize,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: "127.0.0.1:9464",
		},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envVarRegex matches ${VAR} or $VAR patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces environment variable references with their values.
// ${VAR:-default} falls back to default; unknown variables are kept as is.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		if idx := strings.Index(name, ":-"); idx != -1 {
			if val, ok := os.LookupEnv(name[:idx]); ok {
				return val
			}
			return name[idx+2:]
		}

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Client.RemoteAddress == "" {
		errs = append(errs, "client.remote_address is required")
	} else if _, _, err := net.SplitHostPort(c.Client.RemoteAddress); err != nil {
		errs = append(errs, fmt.Sprintf("client.remote_address: %v", err))
	}
	if c.Client.BindAddress != "" && net.ParseIP(c.Client.BindAddress) == nil {
		errs = append(errs, fmt.Sprintf("client.bind_address must be an IP address, got %q", c.Client.BindAddress))
	}
	if c.Client.ReceiveBufferSize < 1 || c.Client.ReceiveBufferSize > transport.MaxReceiveBufferSize {
		errs = append(errs, fmt.Sprintf("client.receive_buffer_size must be between 1 and %d", transport.MaxReceiveBufferSize))
	}
	if c.Client.DSCP < 0 || c.Client.DSCP > 63 {
		errs = append(errs, "client.dscp must be between 0 and 63")
	}

	if c.LinkConditioner.Enabled {
		if _, err := c.LinkConditioner.Resolve(); err != nil {
			errs = append(errs, fmt.Sprintf("link_conditioner: %v", err))
		}
	}

	if !isValidLogLevel(c.Logging.Level) {
		errs = append(errs, fmt.Sprintf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level))
	}
	if !isValidLogFormat(c.Logging.Format) {
		errs = append(errs, fmt.Sprintf("invalid logging.format: %s (must be text or json)", c.Logging.Format))
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		errs = append(errs, "metrics.address is required when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Resolve returns the conditions to simulate, applying the preset if one is
// named.
func (l LinkConditionerConfig) Resolve() (chaos.Config, error) {
	cfg := l.Config
	if l.Preset != "" {
		preset, err := chaos.PresetByName(l.Preset)
		if err != nil {
			return chaos.Config{}, err
		}
		cfg = preset
	}
	if err := cfg.Validate(); err != nil {
		return chaos.Config{}, err
	}
	return cfg, nil
}

// ClientConfig converts c into the connection settings for client.Connect.
func (c *Config) ClientConfig() (client.Config, error) {
	out := client.Config{
		RemoteAddress:     c.Client.RemoteAddress,
		BindAddress:       c.Client.BindAddress,
		ReceiveBufferSize: c.Client.ReceiveBufferSize,
		DSCP:              c.Client.DSCP,
	}
	if c.LinkConditioner.Enabled {
		cond, err := c.LinkConditioner.Resolve()
		if err != nil {
			return client.Config{}, err
		}
		out.LinkConditioner = &cond
	}
	return out, nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func isValidLogFormat(format string) bool {
	switch format {
	case "text", "json":
		return true
	default:
		return false
	}
}

// String returns the configuration as YAML.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}
