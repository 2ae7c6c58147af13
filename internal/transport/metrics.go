package transport

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	connects      prometheus.Counter
	dialFailures  prometheus.Counter
	inboundFrames prometheus.Counter
	parseDrops    prometheus.Counter
	overflowDrops prometheus.Counter
	sendsDropped  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "krypt_transport_connects_total",
			Help: "Successful registrations with the relay.",
		}),
		dialFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "krypt_transport_dial_failures_total",
			Help: "Failed connection attempts to the relay.",
		}),
		inboundFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "krypt_transport_inbound_frames_total",
			Help: "Raw frames received from the relay.",
		}),
		parseDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "krypt_transport_parse_drops_total",
			Help: "Frames dropped because they failed to parse or validate.",
		}),
		overflowDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "krypt_transport_overflow_drops_total",
			Help: "Envelopes dropped because the inbound buffer was full.",
		}),
		sendsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "krypt_transport_sends_dropped_total",
			Help: "Outbound envelopes dropped while disconnected.",
		}),
	}

	reg.MustRegister(
		m.connects,
		m.dialFailures,
		m.inboundFrames,
		m.parseDrops,
		m.overflowDrops,
		m.sendsDropped,
	)
	return m
}

func (m *Metrics) RecordConnect() {
	if m == nil {
		return
	}
	m.connects.Inc()
}

func (m *Metrics) RecordDialFailure() {
	if m == nil {
		return
	}
	m.dialFailures.Inc()
}

func (m *Metrics) RecordInboundFrame() {
	if m == nil {
		return
	}
	m.inboundFrames.Inc()
}

func (m *Metrics) RecordParseDrop() {
	if m == nil {
		return
	}
	m.parseDrops.Inc()
}

func (m *Metrics) RecordOverflowDrop() {
	if m == nil {
		return
	}
	m.overflowDrops.Inc()
}

func (m *Metrics) RecordSendDropped() {
	if m == nil {
		return
	}
	m.sendsDropped.Inc()
}
