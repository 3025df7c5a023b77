// Package metrics exports signaling counters to Prometheus.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rendezvous"

// Join outcomes.
const (
	JoinCreated  = "created"
	JoinPaired   = "paired"
	JoinEvicted  = "evicted"
	JoinRejected = "rejected"
)

// Reject reasons; they mirror the wire error codes.
const (
	RejectBadPayload   = "bad_payload"
	RejectInvalidRoom  = "invalid_room"
	RejectUnknownEvent = "unknown_event"
	RejectRateLimited  = "rate_limited"
	RejectRoomFull     = "room_full"
	RejectAlreadyIn    = "already_joined"
)

type Metrics struct {
	Connections    prometheus.Gauge
	Rooms          prometheus.Gauge
	Joins          *prometheus.CounterVec
	Ready          prometheus.Counter
	UserLeft       prometheus.Counter
	SignalsRelayed prometheus.Counter
	SignalsDropped prometheus.Counter
	Rejected       *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Live signaling connections.",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Rooms with at least one member.",
		}),
		Joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "joins_total",
			Help:      "Room joins by outcome.",
		}, []string{"result"}),
		Ready: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_ready_total",
			Help:      "Rooms that reached two members.",
		}),
		UserLeft: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "user_left_total",
			Help:      "Participants that left a room which stayed alive.",
		}),
		SignalsRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_relayed_total",
			Help:      "Signal messages delivered to a peer outbox.",
		}),
		SignalsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_dropped_total",
			Help:      "Signal messages dropped because the peer outbox was full or closed.",
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_rejected_total",
			Help:      "Inbound events rejected by reason.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Connections, m.Rooms, m.Joins, m.Ready, m.UserLeft,
			m.SignalsRelayed, m.SignalsDropped, m.Rejected,
		)
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnOpened() {
	if m != nil {
		m.Connections.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.Connections.Dec()
	}
}

func (m *Metrics) RoomCreated() {
	if m != nil {
		m.Rooms.Inc()
	}
}

func (m *Metrics) RoomDeleted() {
	if m != nil {
		m.Rooms.Dec()
	}
}

func (m *Metrics) Join(result string) {
	if m != nil {
		m.Joins.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) RoomReady() {
	if m != nil {
		m.Ready.Inc()
	}
}

func (m *Metrics) Left() {
	if m != nil {
		m.UserLeft.Inc()
	}
}

func (m *Metrics) Relayed(sent, dropped int) {
	if m != nil {
		m.SignalsRelayed.Add(float64(sent))
		m.SignalsDropped.Add(float64(dropped))
	}
}

func (m *Metrics) Reject(reason string) {
	if m != nil {
		m.Rejected.WithLabelValues(reason).Inc()
	}
}
