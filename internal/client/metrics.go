package client

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	envelopesRouted  *prometheus.CounterVec
	handlerFaults    prometheus.Counter
	decryptDrops     prometheus.Counter
	messagesReceived prometheus.Counter
	messagesSent     prometheus.Counter
	chunksReceived   prometheus.Counter
	filesCompleted   prometheus.Counter
	keyRequests      prometheus.Counter
	keysResolved     prometheus.Counter
	sendsRefused     prometheus.Counter
	statusesSeen     prometheus.Counter
	callsStarted     prometheus.Counter
	callsEnded       prometheus.Counter
	pendingTransfers prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		envelopesRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "krypt_client_envelopes_routed_total",
			Help: "Inbound envelopes dispatched, by type.",
		}, []string{"type"}),
		handlerFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "krypt_client_handler_faults_total",
			Help: "Handler failures isolated by the dispatch loop.",
		}),
		decryptDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "krypt_client_decrypt_drops_total",
			Help: "Payloads dropped because decryption failed.",
		}),
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "krypt_client_messages_received_total",
			Help: "Text messages decrypted and stored.",
		}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "krypt_client_messages_sent_total",
			Help: "Text messages encrypted and handed to the transport.",
		}),
		chunksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "krypt_client_file_chunks_total",
			Help: "File chunks decrypted into pending transfers.",
		}),
		filesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "krypt_client_files_completed_total",
			Help: "File transfers fully reassembled and stored.",
		}),
		keyRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "krypt_client_key_requests_total",
			Help: "Public key requests issued for contacts.",
		}),
		keysResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "krypt_client_keys_resolved_total",
			Help: "Contact keys filled in from key responses.",
		}),
		sendsRefused: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "krypt_client_sends_refused_total",
			Help: "Outbound messages refused because the contact key is unresolved.",
		}),
		statusesSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "krypt_client_statuses_total",
			Help: "Status envelopes accepted.",
		}),
		callsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "krypt_client_calls_started_total",
			Help: "Call sessions created, outgoing or accepted.",
		}),
		callsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "krypt_client_calls_ended_total",
			Help: "Call sessions torn down.",
		}),
		pendingTransfers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "krypt_client_pending_transfers",
			Help: "File transfers currently awaiting chunks.",
		}),
	}

	reg.MustRegister(
		m.envelopesRouted,
		m.handlerFaults,
		m.decryptDrops,
		m.messagesReceived,
		m.messagesSent,
		m.chunksReceived,
		m.filesCompleted,
		m.keyRequests,
		m.keysResolved,
		m.sendsRefused,
		m.statusesSeen,
		m.callsStarted,
		m.callsEnded,
		m.pendingTransfers,
	)
	return m
}

func (m *Metrics) RecordEnvelope(envType string) {
	if m == nil {
		return
	}
	m.envelopesRouted.WithLabelValues(envType).Inc()
}

func (m *Metrics) RecordHandlerFault() {
	if m == nil {
		return
	}
	m.handlerFaults.Inc()
}

func (m *Metrics) RecordDecryptDrop() {
	if m == nil {
		return
	}
	m.decryptDrops.Inc()
}

func (m *Metrics) RecordMessageReceived() {
	if m == nil {
		return
	}
	m.messagesReceived.Inc()
}

func (m *Metrics) RecordMessageSent() {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
}

func (m *Metrics) RecordChunk() {
	if m == nil {
		return
	}
	m.chunksReceived.Inc()
}

func (m *Metrics) RecordFileCompleted() {
	if m == nil {
		return
	}
	m.filesCompleted.Inc()
}

func (m *Metrics) RecordKeyRequest() {
	if m == nil {
		return
	}
	m.keyRequests.Inc()
}

func (m *Metrics) RecordKeyResolved() {
	if m == nil {
		return
	}
	m.keysResolved.Inc()
}

func (m *Metrics) RecordSendRefused() {
	if m == nil {
		return
	}
	m.sendsRefused.Inc()
}

func (m *Metrics) RecordStatus() {
	if m == nil {
		return
	}
	m.statusesSeen.Inc()
}

func (m *Metrics) RecordCallStarted() {
	if m == nil {
		return
	}
	m.callsStarted.Inc()
}

func (m *Metrics) RecordCallEnded() {
	if m == nil {
		return
	}
	m.callsEnded.Inc()
}

func (m *Metrics) SetPendingTransfers(n int) {
	if m == nil {
		return
	}
	m.pendingTransfers.Set(float64(n))
}
