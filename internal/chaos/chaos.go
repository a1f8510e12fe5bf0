// Package chaos provides the random fault decisions behind the link
// conditioner: packet loss, duplication and delay.
package chaos

import (
	"math/rand"
	"sync"
	"time"
)

// FaultType represents the type of fault injected into a packet's delivery.
type FaultType int

const (
	// FaultDrop discards the packet.
	FaultDrop FaultType = iota
	// FaultDuplicate schedules a second copy of the packet.
	FaultDuplicate
	// FaultDelay holds the packet back before delivery.
	FaultDelay
)

// String returns a label suitable for metrics.
func (f FaultType) String() string {
	switch f {
	case FaultDrop:
		return "drop"
	case FaultDuplicate:
		return "duplicate"
	case FaultDelay:
		return "delay"
	default:
		return "unknown"
	}
}

// Decision is the fate of one packet.
type Decision struct {
	// Drop is true when the packet must be discarded.
	Drop bool

	// Delays holds one delay per copy to schedule. Empty when Drop is set.
	Delays []time.Duration
}

// Injector draws per-packet decisions for one direction of a link.
type Injector struct {
	config    Config
	mu        sync.Mutex
	rng       *rand.Rand
	faultHits map[FaultType]int64
}

// NewInjector creates an injector seeded from the clock.
func NewInjector(config Config) *Injector {
	return NewInjectorWithSeed(config, time.Now().UnixNano())
}

// NewInjectorWithSeed creates an injector with a deterministic sequence of
// decisions.
func NewInjectorWithSeed(config Config, seed int64) *Injector {
	return &Injector{
		config:    config,
		rng:       rand.New(rand.NewSource(seed)),
		faultHits: make(map[FaultType]int64),
	}
}

// Config returns the conditions this injector simulates.
func (f *Injector) Config() Config {
	return f.config
}

// Decide draws the fate of the next packet: a drop test, then a duplication
// test, then one independent delay per copy.
func (f *Injector) Decide() Decision {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.shouldInject(f.config.PacketLossProbability) {
		f.faultHits[FaultDrop]++
		return Decision{Drop: true}
	}

	copies := 1
	if f.shouldInject(f.config.PacketDuplicationProbability) {
		f.faultHits[FaultDuplicate]++
		copies = 2
	}

	delays := make([]time.Duration, copies)
	for i := range delays {
		delays[i] = f.randomDelay(f.config.MinLatency, f.config.MinLatency+f.config.Jitter)
		if delays[i] > 0 {
			f.faultHits[FaultDelay]++
		}
	}

	return Decision{Delays: delays}
}

// GetStats returns the fault injection statistics.
func (f *Injector) GetStats() map[FaultType]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := make(map[FaultType]int64, len(f.faultHits))
	for k, v := range f.faultHits {
		stats[k] = v
	}
	return stats
}

// Reset resets the fault injection statistics.
func (f *Injector) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faultHits = make(map[FaultType]int64)
}

// shouldInject must be called with mu held.
func (f *Injector) shouldInject(probability float64) bool {
	if probability <= 0 {
		return false
	}
	return f.rng.Float64() < probability
}

// randomDelay must be called with mu held.
func (f *Injector) randomDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	delta := max - min
	return min + time.Duration(f.rng.Int63n(int64(delta)+1))
}
