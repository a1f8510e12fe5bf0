package transport

import (
	"log/slog"
	"net"
	"time"

	"github.com/postalsys/metroo-socket/internal/chaos"
	"github.com/postalsys/metroo-socket/internal/logging"
	"github.com/postalsys/metroo-socket/internal/metrics"
	"github.com/postalsys/metroo-socket/internal/recovery"
	"github.com/postalsys/metroo-socket/internal/sharedref"
)

// ConditionerOption configures a LinkConditioner.
type ConditionerOption func(*conditionerOptions)

type conditionerOptions struct {
	logger    *slog.Logger
	metrics   *metrics.Metrics
	seed      int64
	seeded    bool
	now       func() time.Time
	autoFlush bool
}

// WithLogger sets the conditioner logger.
func WithLogger(logger *slog.Logger) ConditionerOption {
	return func(o *conditionerOptions) { o.logger = logger }
}

// WithMetrics sets the conditioner metrics.
func WithMetrics(m *metrics.Metrics) ConditionerOption {
	return func(o *conditionerOptions) { o.metrics = m }
}

// WithSeed makes the fault decisions reproducible. Inbound and outbound
// traffic draw from separate generators derived from seed.
func WithSeed(seed int64) ConditionerOption {
	return func(o *conditionerOptions) {
		o.seed = seed
		o.seeded = true
	}
}

// withClock replaces the time source and disables the background flush
// timer, leaving delayed sends to Send and Receive.
func withClock(now func() time.Time) ConditionerOption {
	return func(o *conditionerOptions) {
		o.now = now
		o.autoFlush = false
	}
}

// conditionerEnv is the immutable context shared by a conditioner and its
// senders.
type conditionerEnv struct {
	now       func() time.Time
	autoFlush bool
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// link is one direction of simulated network.
type link struct {
	direction string
	injector  *chaos.Injector
	pending   *delayQueue
}

func newLink(direction string, cfg chaos.Config, seed int64) *link {
	return &link{
		direction: direction,
		injector:  chaos.NewInjectorWithSeed(cfg, seed),
		pending:   newDelayQueue(),
	}
}

// schedule decides the fate of p and queues the surviving copies.
func (l *link) schedule(p Packet, now time.Time, env *conditionerEnv) {
	d := l.injector.Decide()
	if d.Drop {
		env.metrics.RecordDrop(l.direction)
		env.logger.Debug("packet dropped",
			logging.KeyDirection, l.direction,
			logging.KeyBytes, p.Len())
		return
	}
	if len(d.Delays) > 1 {
		env.metrics.RecordDuplicate(l.direction)
	}
	for _, delay := range d.Delays {
		l.pending.push(p, now.Add(delay))
		env.metrics.RecordDelay(l.direction, delay.Seconds())
	}
	env.metrics.AddPending(l.direction, len(d.Delays))
}

func (l *link) popDue(now time.Time, env *conditionerEnv) (Packet, bool) {
	p, ok := l.pending.popDue(now)
	if ok {
		env.metrics.AddPending(l.direction, -1)
	}
	return p, ok
}

// discard drops every held packet.
func (l *link) discard(env *conditionerEnv) {
	env.metrics.AddPending(l.direction, -l.pending.Len())
	l.pending.clear()
}

func (l *link) stats() DirectionStats {
	hits := l.injector.GetStats()
	return DirectionStats{
		Dropped:    hits[chaos.FaultDrop],
		Duplicated: hits[chaos.FaultDuplicate],
		Delayed:    hits[chaos.FaultDelay],
		Pending:    l.pending.Len(),
	}
}

// outboundState is shared between a conditioner and its senders.
type outboundState struct {
	link   *link
	sender Sender
	timer  *time.Timer
	closed bool
}

// flush sends every due packet in release order. All due packets are
// attempted; the first error is returned.
func (st *outboundState) flush(now time.Time, env *conditionerEnv) error {
	var firstErr error
	for {
		p, ok := st.link.popDue(now, env)
		if !ok {
			return firstErr
		}
		if err := st.sender.Send(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
}

// arm points the flush timer at the earliest pending release.
func (env *conditionerEnv) arm(st *outboundState, ref sharedref.Ref[outboundState], now time.Time) {
	if !env.autoFlush || st.closed {
		return
	}
	next, ok := st.link.pending.nextRelease()
	if !ok {
		if st.timer != nil {
			st.timer.Stop()
		}
		return
	}
	wait := max(next.Sub(now), 0)
	if st.timer == nil {
		st.timer = time.AfterFunc(wait, func() {
			defer recovery.RecoverWithLog(env.logger, "link-conditioner-flush")
			env.tick(ref)
		})
		return
	}
	st.timer.Reset(wait)
}

// tick flushes due outbound packets outside of any Send call. Errors have no
// caller to return to, so they are logged.
func (env *conditionerEnv) tick(ref sharedref.Ref[outboundState]) {
	_ = ref.Update(func(st *outboundState) error {
		if st.closed {
			return nil
		}
		now := env.now()
		if err := st.flush(now, env); err != nil {
			env.logger.Warn("delayed send failed", logging.KeyError, err)
		}
		env.arm(st, ref, now)
		return nil
	})
}

// DirectionStats counts the conditioner's decisions for one direction.
type DirectionStats struct {
	Dropped    int64 `json:"dropped"`
	Duplicated int64 `json:"duplicated"`
	Delayed    int64 `json:"delayed"`
	Pending    int   `json:"pending"`
}

// ConditionerStats reports both directions of a LinkConditioner.
type ConditionerStats struct {
	Inbound  DirectionStats `json:"inbound"`
	Outbound DirectionStats `json:"outbound"`
}

// LinkConditioner wraps a Transport and simulates packet loss, latency,
// jitter and duplication in both directions. Each direction decides
// independently with its own random source.
//
// Inbound packets are held until their release time and handed out by
// Receive. Outbound packets are held the same way and sent by Send, by
// Receive, or by a background timer, whichever runs first after release.
type LinkConditioner struct {
	inner    Transport
	config   chaos.Config
	inbound  *link
	outbound sharedref.Ref[outboundState]
	env      *conditionerEnv
}

// NewLinkConditioner wraps inner. cfg must pass chaos.Config.Validate.
func NewLinkConditioner(inner Transport, cfg chaos.Config, opts ...ConditionerOption) (*LinkConditioner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := conditionerOptions{now: time.Now, autoFlush: true}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.seeded {
		o.seed = time.Now().UnixNano()
	}

	env := &conditionerEnv{
		now:       o.now,
		autoFlush: o.autoFlush,
		logger:    logging.OrNop(o.logger).With(logging.KeyComponent, "link-conditioner"),
		metrics:   o.metrics,
	}
	env.logger.Info("link conditioner enabled", logging.KeyConditions, cfg.String())

	return &LinkConditioner{
		inner:   inner,
		config:  cfg,
		inbound: newLink(metrics.DirectionInbound, cfg, o.seed),
		outbound: sharedref.New(outboundState{
			link:   newLink(metrics.DirectionOutbound, cfg, o.seed+1),
			sender: inner.Sender(),
		}),
		env: env,
	}, nil
}

// Receive first flushes due outbound packets, then drains everything the
// wrapped transport has ready into the inbound schedule, and finally returns
// the earliest released inbound packet. Errors from the wrapped transport
// are returned unchanged.
func (c *LinkConditioner) Receive() (Packet, bool, error) {
	c.env.tick(c.outbound)

	now := c.env.now()
	for {
		p, ok, err := c.inner.Receive()
		if err != nil {
			return Packet{}, false, err
		}
		if !ok {
			break
		}
		c.inbound.schedule(p, now, c.env)
	}

	if p, ok := c.inbound.popDue(c.env.now(), c.env); ok {
		return p, true, nil
	}
	return Packet{}, false, nil
}

// Sender returns a handle that schedules packets through the outbound link.
func (c *LinkConditioner) Sender() Sender {
	return conditionedSender{outbound: c.outbound.Clone(), env: c.env}
}

// WithLinkConditioner stacks another conditioner on top of c.
func (c *LinkConditioner) WithLinkConditioner(cfg chaos.Config) (Transport, error) {
	next, err := NewLinkConditioner(c, cfg, WithLogger(c.env.logger), WithMetrics(c.env.metrics))
	if err != nil {
		return nil, err
	}
	return next, nil
}

// LocalAddr returns the wrapped transport's address.
func (c *LinkConditioner) LocalAddr() net.Addr {
	return c.inner.LocalAddr()
}

// Config returns the simulated conditions.
func (c *LinkConditioner) Config() chaos.Config {
	return c.config
}

// Unwrap returns the wrapped transport.
func (c *LinkConditioner) Unwrap() Transport {
	return c.inner
}

// Stats returns decision counts for both directions.
func (c *LinkConditioner) Stats() ConditionerStats {
	stats := ConditionerStats{Inbound: c.inbound.stats()}
	_ = c.outbound.Read(func(st outboundState) error {
		stats.Outbound = st.link.stats()
		return nil
	})
	return stats
}

// Close discards held packets, stops the flush timer and closes the wrapped
// transport.
func (c *LinkConditioner) Close() error {
	_ = c.outbound.Update(func(st *outboundState) error {
		st.closed = true
		if st.timer != nil {
			st.timer.Stop()
		}
		st.link.discard(c.env)
		return nil
	})
	c.inbound.discard(c.env)
	return c.inner.Close()
}

type conditionedSender struct {
	outbound sharedref.Ref[outboundState]
	env      *conditionerEnv
}

// Send schedules p and then sends every outbound packet whose release time
// has passed, including p itself when it carries no delay.
func (s conditionedSender) Send(p Packet) error {
	return s.outbound.Update(func(st *outboundState) error {
		if st.closed {
			return ErrClosed
		}
		now := s.env.now()
		st.link.schedule(p, now, s.env)
		err := st.flush(now, s.env)
		s.env.arm(st, s.outbound, now)
		return err
	})
}
