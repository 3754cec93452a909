package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every roomlink metric.
const Namespace = "roomlink"

// Metrics holds the client's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	stateTransitions  *prometheus.CounterVec
	inboundMessages   *prometheus.CounterVec
	framesDropped     prometheus.Counter
	acks              *prometheus.CounterVec
	pendingRequests   prometheus.Gauge
	reconnectAttempts prometheus.Counter
	heartbeatFailures prometheus.Counter
	commands          *prometheus.CounterVec
	roomResyncs       prometheus.Counter
}

// New registers the collectors on reg. If reg is nil the default registerer is used.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		stateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "state_transitions_total",
			Help:      "Connection state transitions by target state",
		}, []string{"to"}),
		inboundMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "inbound_messages_total",
			Help:      "Inbound envelopes by type",
		}, []string{"type"}),
		framesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped because they could not be parsed",
		}),
		acks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "requests_total",
			Help:      "Correlated requests by outcome",
		}, []string{"outcome"}),
		pendingRequests: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "pending_requests",
			Help:      "Requests waiting for an ack",
		}),
		reconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Automatic reconnect attempts",
		}),
		heartbeatFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "heartbeat_failures_total",
			Help:      "Heartbeats that could not be written",
		}),
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "commands_total",
			Help:      "Inbound commands by type and whether a handler took them",
		}, []string{"type", "handled"}),
		roomResyncs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "room_resyncs_total",
			Help:      "Room info refreshes triggered by structural room events",
		}),
	}
}

// StateTransition counts a transition into state.
func (m *Metrics) StateTransition(state string) {
	if m == nil {
		return
	}
	m.stateTransitions.WithLabelValues(state).Inc()
}

// InboundMessage counts a parsed inbound envelope.
func (m *Metrics) InboundMessage(msgType string) {
	if m == nil {
		return
	}
	m.inboundMessages.WithLabelValues(msgType).Inc()
}

// FrameDropped counts an unparseable frame.
func (m *Metrics) FrameDropped() {
	if m == nil {
		return
	}
	m.framesDropped.Inc()
}

// Request counts a finished correlated request. outcome is one of
// "ok", "rejected", "timeout", "cancelled", "error".
func (m *Metrics) Request(outcome string) {
	if m == nil {
		return
	}
	m.acks.WithLabelValues(outcome).Inc()
}

// SetPending records the number of outstanding requests.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pendingRequests.Set(float64(n))
}

// ReconnectAttempt counts a scheduled reconnect that fired.
func (m *Metrics) ReconnectAttempt() {
	if m == nil {
		return
	}
	m.reconnectAttempts.Inc()
}

// HeartbeatFailure counts a heartbeat write error.
func (m *Metrics) HeartbeatFailure() {
	if m == nil {
		return
	}
	m.heartbeatFailures.Inc()
}

// Command counts an inbound command.
func (m *Metrics) Command(commandType string, handled bool) {
	if m == nil {
		return
	}
	h := "false"
	if handled {
		h = "true"
	}
	m.commands.WithLabelValues(commandType, h).Inc()
}

// RoomResync counts a room refresh triggered by a structural event.
func (m *Metrics) RoomResync() {
	if m == nil {
		return
	}
	m.roomResyncs.Inc()
}
