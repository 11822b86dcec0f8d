package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the subsystem's Prometheus instruments. They are created
// against an injected registerer so tests can use a private registry
// without collisions.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter

	EnvelopesSent     *prometheus.CounterVec
	EnvelopesReceived prometheus.Counter
	ProtocolFaults    prometheus.Counter

	AuthResults    *prometheus.CounterVec
	EvictionsTotal *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_connections_active",
			Help: "Number of currently registered connections",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realtime_connections_total",
			Help: "Total number of accepted connections",
		}),
		EnvelopesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_envelopes_sent_total",
			Help: "Envelopes written to connections, by event type",
		}, []string{"event"}),
		EnvelopesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realtime_envelopes_received_total",
			Help: "Envelopes received from clients",
		}),
		ProtocolFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realtime_protocol_faults_total",
			Help: "Inbound frames rejected as malformed or unknown",
		}),
		AuthResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_auth_results_total",
			Help: "Authentication handshake outcomes",
		}, []string{"result"}),
		EvictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_evictions_total",
			Help: "Connections evicted, by cause",
		}, []string{"cause"}),
	}
	reg.MustRegister(
		m.ConnectionsActive,
		m.ConnectionsTotal,
		m.EnvelopesSent,
		m.EnvelopesReceived,
		m.ProtocolFaults,
		m.AuthResults,
		m.EvictionsTotal,
	)
	return m
}

// NewNop returns metrics bound to a throwaway registry, for callers that
// do not scrape.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
