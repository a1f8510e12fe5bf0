package transport

import (
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postalsys/metroo-socket/internal/chaos"
	"github.com/postalsys/metroo-socket/internal/metrics"
)

// fakeHost records transmitted buffers.
type fakeHost struct {
	mu          sync.Mutex
	transmitted [][]byte
	convertErr  error
	transmitErr error
	closed      bool
}

type hostBuffer struct {
	data []byte
}

func (h *fakeHost) NewBuffer(payload []byte) (any, error) {
	if h.convertErr != nil {
		return nil, h.convertErr
	}
	b := make([]byte, len(payload))
	copy(b, payload)
	return &hostBuffer{data: b}, nil
}

func (h *fakeHost) Transmit(buffer any) error {
	if h.transmitErr != nil {
		return h.transmitErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transmitted = append(h.transmitted, buffer.(*hostBuffer).data)
	return nil
}

func (h *fakeHost) Close() error {
	h.closed = true
	return nil
}

func TestBridgeSend(t *testing.T) {
	host := &fakeHost{}
	reg := prometheus.NewRegistry()
	m := metrics.NewMetricsWithRegistry(reg)
	tr := NewBridgeTransport(host, BridgeOptions{Metrics: m})

	require.NoError(t, tr.Sender().Send(NewPacket([]byte{1, 2, 3})))
	require.Len(t, host.transmitted, 1)
	assert.Equal(t, []byte{1, 2, 3}, host.transmitted[0])
	assert.Equal(t, float64(3), testutil.ToFloat64(m.BytesSent.WithLabelValues(metrics.TransportBridge)))
}

func TestBridgeSendErrors(t *testing.T) {
	convert := errors.New("out of memory")
	tr := NewBridgeTransport(&fakeHost{convertErr: convert}, BridgeOptions{})
	assert.ErrorIs(t, tr.Sender().Send(NewPacket([]byte("x"))), convert)

	transmit := errors.New("socket gone")
	tr = NewBridgeTransport(&fakeHost{transmitErr: transmit}, BridgeOptions{})
	assert.ErrorIs(t, tr.Sender().Send(NewPacket([]byte("x"))), transmit)
}

func TestBridgeDeliverAndReceive(t *testing.T) {
	tr := NewBridgeTransport(&fakeHost{}, BridgeOptions{})

	p, ok, err := tr.Receive()
	require.NoError(t, err)
	assert.False(t, ok, "empty bridge returns nothing")
	assert.Zero(t, p.Len())

	buf := []byte("first")
	require.NoError(t, tr.Deliver(buf))
	require.NoError(t, tr.Deliver([]byte("second")))
	buf[0] = 'F'
	assert.Equal(t, 2, tr.Pending())

	got, err := drain(tr)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestBridgeClose(t *testing.T) {
	host := &fakeHost{}
	tr := NewBridgeTransport(host, BridgeOptions{})
	s := tr.Sender()
	require.NoError(t, tr.Deliver([]byte("dropped")))

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.True(t, host.closed)
	assert.Nil(t, tr.LocalAddr())

	assert.ErrorIs(t, s.Send(NewPacket([]byte("x"))), ErrClosed)
	assert.ErrorIs(t, tr.Deliver([]byte("x")), ErrClosed)
	_, _, err := tr.Receive()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBridgeWithLinkConditioner(t *testing.T) {
	host := &fakeHost{}
	tr := NewBridgeTransport(host, BridgeOptions{})

	conditioned, err := tr.WithLinkConditioner(chaos.Config{PacketDuplicationProbability: 1})
	require.NoError(t, err)

	require.NoError(t, conditioned.Sender().Send(NewPacket([]byte("dup"))))
	assert.Len(t, host.transmitted, 2)

	require.NoError(t, tr.Deliver([]byte("in")))
	got, err := drain(conditioned)
	require.NoError(t, err)
	assert.Equal(t, []string{"in", "in"}, got)
}
