package chaos

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid link conditioner config")

// Config describes the network conditions a link conditioner simulates.
// A Config is a value: copy it freely, never mutate a shared one.
type Config struct {
	// PacketLossProbability is the chance (0.0 to 1.0) that a packet is
	// silently discarded.
	PacketLossProbability float64 `yaml:"packet_loss_probability"`

	// MinLatency is the base delay applied to every surviving packet.
	MinLatency time.Duration `yaml:"min_latency"`

	// Jitter is the upper bound of the random extra delay drawn per packet.
	Jitter time.Duration `yaml:"jitter"`

	// PacketDuplicationProbability is the chance (0.0 to 1.0) that a
	// surviving packet is delivered twice with independent delays.
	// Zero disables duplication.
	PacketDuplicationProbability float64 `yaml:"packet_duplication_probability"`
}

// Validate checks every field and reports all problems at once.
func (c Config) Validate() error {
	var errs []string

	if !isProbability(c.PacketLossProbability) {
		errs = append(errs, fmt.Sprintf("packet_loss_probability must be between 0 and 1, got %v", c.PacketLossProbability))
	}
	if !isProbability(c.PacketDuplicationProbability) {
		errs = append(errs, fmt.Sprintf("packet_duplication_probability must be between 0 and 1, got %v", c.PacketDuplicationProbability))
	}
	if c.MinLatency < 0 {
		errs = append(errs, fmt.Sprintf("min_latency must not be negative, got %v", c.MinLatency))
	}
	if c.Jitter < 0 {
		errs = append(errs, fmt.Sprintf("jitter must not be negative, got %v", c.Jitter))
	}
	if c.MinLatency >= 0 && c.Jitter >= 0 &&
		(c.Jitter == math.MaxInt64 || c.MinLatency > math.MaxInt64-c.Jitter) {
		errs = append(errs, fmt.Sprintf("min_latency + jitter must not exceed %v", time.Duration(math.MaxInt64-1)))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}

// String returns a compact description for logs.
func (c Config) String() string {
	return fmt.Sprintf("loss=%.2f%% latency=%v jitter=%v dup=%.2f%%",
		c.PacketLossProbability*100, c.MinLatency, c.Jitter, c.PacketDuplicationProbability*100)
}

func isProbability(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 1
}

// PerfectCondition is a LAN-like link.
func PerfectCondition() Config {
	return Config{MinLatency: time.Millisecond, PacketLossProbability: 0.00001}
}

// VeryGoodCondition is a nearby server on a wired connection.
func VeryGoodCondition() Config {
	return Config{MinLatency: 12 * time.Millisecond, Jitter: 3 * time.Millisecond, PacketLossProbability: 0.001}
}

// GoodCondition is a typical broadband connection.
func GoodCondition() Config {
	return Config{MinLatency: 40 * time.Millisecond, Jitter: 10 * time.Millisecond, PacketLossProbability: 0.002}
}

// AverageCondition is a congested or distant connection.
func AverageCondition() Config {
	return Config{MinLatency: 100 * time.Millisecond, Jitter: 25 * time.Millisecond, PacketLossProbability: 0.02}
}

// PoorCondition is a bad wireless link.
func PoorCondition() Config {
	return Config{MinLatency: 200 * time.Millisecond, Jitter: 50 * time.Millisecond, PacketLossProbability: 0.04}
}

// VeryPoorCondition is a barely usable link.
func VeryPoorCondition() Config {
	return Config{MinLatency: 300 * time.Millisecond, Jitter: 75 * time.Millisecond, PacketLossProbability: 0.06}
}

var presets = map[string]func() Config{
	"perfect":   PerfectCondition,
	"very_good": VeryGoodCondition,
	"good":      GoodCondition,
	"average":   AverageCondition,
	"poor":      PoorCondition,
	"very_poor": VeryPoorCondition,
}

// PresetByName returns a named preset: perfect, very_good, good, average,
// poor or very_poor.
func PresetByName(name string) (Config, error) {
	fn, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Config{}, fmt.Errorf("%w: unknown preset %q", ErrInvalidConfig, name)
	}
	return fn(), nil
}
