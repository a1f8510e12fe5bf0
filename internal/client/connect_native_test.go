//go:build !js && !wasip1

package client

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postalsys/metroo-socket/internal/chaos"
	"github.com/postalsys/metroo-socket/internal/discovery"
	"github.com/postalsys/metroo-socket/internal/metrics"
	"github.com/postalsys/metroo-socket/internal/transport"
)

func loopbackDiscovery() (net.IP, error) {
	return net.IPv4(127, 0, 0, 1), nil
}

func listenPeer(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestConnectRoundTrip(t *testing.T) {
	peer := listenPeer(t)

	tr, err := Connect(Config{RemoteAddress: peer.LocalAddr().String()},
		WithDiscovery(loopbackDiscovery),
		WithMetrics(metrics.NewMetricsWithRegistry(prometheus.NewRegistry())))
	require.NoError(t, err)
	defer tr.Close()

	_, ok := tr.(*transport.NativeTransport)
	assert.True(t, ok, "unconditioned connect returns the native transport")

	require.NoError(t, tr.Sender().Send(transport.NewPacket([]byte("ping"))))

	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 64)
	n, from, err := peer.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))

	_, err = peer.WriteToUDP([]byte("pong"), from)
	require.NoError(t, err)

	var got transport.Packet
	op := func() error {
		p, ok, err := tr.Receive()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errors.New("nothing yet")
		}
		got = p
		return nil
	}
	require.NoError(t, backoff.Retry(op, backoff.WithMaxRetries(backoff.NewConstantBackOff(5*time.Millisecond), 400)))
	assert.Equal(t, "pong", string(got.Payload()))
}

func TestConnectExplicitBindAddressSkipsDiscovery(t *testing.T) {
	peer := listenPeer(t)

	tr, err := Connect(Config{
		RemoteAddress: peer.LocalAddr().String(),
		BindAddress:   "127.0.0.1",
	}, WithDiscovery(func() (net.IP, error) {
		t.Error("discovery must not run when bind_address is set")
		return nil, errors.New("unused")
	}))
	require.NoError(t, err)
	defer tr.Close()

	local, ok := tr.LocalAddr().(*net.UDPAddr)
	require.True(t, ok)
	assert.True(t, local.IP.Equal(net.IPv4(127, 0, 0, 1)))
}

func TestConnectDiscoveryFailure(t *testing.T) {
	_, err := Connect(Config{RemoteAddress: "127.0.0.1:9000"},
		WithDiscovery(func() (net.IP, error) {
			return nil, discovery.ErrNoAddress
		}))
	assert.ErrorIs(t, err, discovery.ErrNoAddress)
}

func TestConnectWithLinkConditioner(t *testing.T) {
	peer := listenPeer(t)

	tr, err := Connect(Config{
		RemoteAddress:   peer.LocalAddr().String(),
		LinkConditioner: &chaos.Config{PacketDuplicationProbability: 1},
	}, WithDiscovery(loopbackDiscovery))
	require.NoError(t, err)
	defer tr.Close()

	lc, ok := tr.(*transport.LinkConditioner)
	require.True(t, ok, "conditioned connect returns a LinkConditioner")
	assert.Equal(t, 1.0, lc.Config().PacketDuplicationProbability)

	require.NoError(t, tr.Sender().Send(transport.NewPacket([]byte("twice"))))

	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 64)
	for i := 0; i < 2; i++ {
		n, _, err := peer.ReadFromUDP(buf)
		require.NoError(t, err)
		assert.Equal(t, "twice", string(buf[:n]))
	}
}

func TestConnectBindFailure(t *testing.T) {
	_, err := Connect(Config{
		RemoteAddress: "127.0.0.1:9000",
		BindAddress:   "192.0.2.1",
	})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrConfiguration)
}
