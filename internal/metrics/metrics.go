// Package metrics provides Prometheus metrics for the socket transports.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "metroo_socket"
)

// Transport label values.
const (
	TransportNative = "native"
	TransportBridge = "bridge"
)

// Direction label values.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Metrics contains all Prometheus metrics for a client socket. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// Traffic
	PacketsSent     *prometheus.CounterVec
	PacketsReceived *prometheus.CounterVec
	BytesSent       *prometheus.CounterVec
	BytesReceived   *prometheus.CounterVec

	// Errors
	SendErrors       *prometheus.CounterVec
	ReceiveErrors    *prometheus.CounterVec
	UnexpectedSender prometheus.Counter

	// Link conditioner
	ConditionerDropped    *prometheus.CounterVec
	ConditionerDuplicated *prometheus.CounterVec
	ConditionerDelay      *prometheus.HistogramVec
	ConditionerPending    *prometheus.GaugeVec
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the default metrics instance.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a new Metrics instance registered with the default
// registerer.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance with a custom registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PacketsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_sent_total",
			Help:      "Total packets handed to the transport",
		}, []string{"transport"}),
		PacketsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_received_total",
			Help:      "Total packets accepted from the remote",
		}, []string{"transport"}),
		BytesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total payload bytes sent",
		}, []string{"transport"}),
		BytesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total payload bytes received",
		}, []string{"transport"}),

		SendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_errors_total",
			Help:      "Total failed sends",
		}, []string{"transport"}),
		ReceiveErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receive_errors_total",
			Help:      "Total failed receives, excluding would-block",
		}, []string{"transport"}),
		UnexpectedSender: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unexpected_sender_total",
			Help:      "Total datagrams rejected because they came from an unconfigured address",
		}),

		ConditionerDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conditioner_dropped_total",
			Help:      "Total packets discarded by the link conditioner",
		}, []string{"direction"}),
		ConditionerDuplicated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conditioner_duplicated_total",
			Help:      "Total extra packet copies scheduled by the link conditioner",
		}, []string{"direction"}),
		ConditionerDelay: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conditioner_delay_seconds",
			Help:      "Histogram of delays applied by the link conditioner",
			Buckets:   []float64{0, .005, .01, .025, .05, .1, .2, .3, .5, 1},
		}, []string{"direction"}),
		ConditionerPending: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conditioner_pending",
			Help:      "Packets currently held by link conditioners, summed over nested layers",
		}, []string{"direction"}),
	}
}

// RecordSend records a successful send.
func (m *Metrics) RecordSend(transport string, bytes int) {
	if m == nil {
		return
	}
	m.PacketsSent.WithLabelValues(transport).Inc()
	m.BytesSent.WithLabelValues(transport).Add(float64(bytes))
}

// RecordReceive records an accepted packet.
func (m *Metrics) RecordReceive(transport string, bytes int) {
	if m == nil {
		return
	}
	m.PacketsReceived.WithLabelValues(transport).Inc()
	m.BytesReceived.WithLabelValues(transport).Add(float64(bytes))
}

// RecordSendError records a failed send.
func (m *Metrics) RecordSendError(transport string) {
	if m == nil {
		return
	}
	m.SendErrors.WithLabelValues(transport).Inc()
}

// RecordReceiveError records a failed receive.
func (m *Metrics) RecordReceiveError(transport string) {
	if m == nil {
		return
	}
	m.ReceiveErrors.WithLabelValues(transport).Inc()
}

// RecordUnexpectedSender records a rejected datagram.
func (m *Metrics) RecordUnexpectedSender() {
	if m == nil {
		return
	}
	m.UnexpectedSender.Inc()
}

// RecordDrop records a packet discarded by the conditioner.
func (m *Metrics) RecordDrop(direction string) {
	if m == nil {
		return
	}
	m.ConditionerDropped.WithLabelValues(direction).Inc()
}

// RecordDuplicate records an extra copy scheduled by the conditioner.
func (m *Metrics) RecordDuplicate(direction string) {
	if m == nil {
		return
	}
	m.ConditionerDuplicated.WithLabelValues(direction).Inc()
}

// RecordDelay records the delay applied to one scheduled copy.
func (m *Metrics) RecordDelay(direction string, delaySeconds float64) {
	if m == nil {
		return
	}
	m.ConditionerDelay.WithLabelValues(direction).Observe(delaySeconds)
}

// AddPending adjusts the number of packets held by conditioners. Each layer
// reports its own changes so nested conditioners sharing one Metrics add up.
func (m *Metrics) AddPending(direction string, delta int) {
	if m == nil {
		return
	}
	m.ConditionerPending.WithLabelValues(direction).Add(float64(delta))
}
