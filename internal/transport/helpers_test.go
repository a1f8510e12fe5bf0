package transport

import (
	"net"
	"sync"
	"time"

	"github.com/postalsys/metroo-socket/internal/chaos"
)

// memTransport is an in-memory Transport for exercising decorators.
type memTransport struct {
	mu      sync.Mutex
	inbox   []Packet
	recvErr error
	sent    []Packet
	sendErr error
	closed  bool
}

func (m *memTransport) deliver(payloads ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range payloads {
		m.inbox = append(m.inbox, NewPacket([]byte(p)))
	}
}

func (m *memTransport) failNextReceive(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recvErr = err
}

func (m *memTransport) sentPayloads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, p := range m.sent {
		out[i] = string(p.Payload())
	}
	return out
}

func (m *memTransport) Receive() (Packet, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Packet{}, false, ErrClosed
	}
	if err := m.recvErr; err != nil {
		m.recvErr = nil
		return Packet{}, false, err
	}
	if len(m.inbox) == 0 {
		return Packet{}, false, nil
	}
	p := m.inbox[0]
	m.inbox = m.inbox[1:]
	return p, true, nil
}

func (m *memTransport) Sender() Sender {
	return memSender{m: m}
}

func (m *memTransport) WithLinkConditioner(cfg chaos.Config) (Transport, error) {
	c, err := NewLinkConditioner(m, cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (m *memTransport) LocalAddr() net.Addr {
	return nil
}

func (m *memTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

type memSender struct {
	m *memTransport
}

func (s memSender) Send(p Packet) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.closed {
		return ErrClosed
	}
	if s.m.sendErr != nil {
		return s.m.sendErr
	}
	s.m.sent = append(s.m.sent, p)
	return nil
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// drain collects every packet t currently releases.
func drain(t Transport) ([]string, error) {
	var out []string
	for {
		p, ok, err := t.Receive()
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, string(p.Payload()))
	}
}
