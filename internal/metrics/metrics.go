// Package metrics provides Prometheus metrics for the bridge, the mission
// manager and the episodic manager. Labels never carry vehicle ids or
// session ids.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsAccepted counts accepted vehicle connections.
	ConnectionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marineops_bridge_connections_accepted_total",
		Help: "Total number of accepted vehicle connections.",
	})

	// ConnectionsDropped counts closed connections by reason.
	ConnectionsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marineops_bridge_connections_dropped_total",
		Help: "Total number of dropped vehicle connections, by reason.",
	}, []string{"reason"})

	// MessagesReceived counts decoded STATE messages.
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marineops_bridge_messages_received_total",
		Help: "Total number of vehicle states received.",
	})

	// ResponsesSent counts instructions written to vehicles by frame type.
	ResponsesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marineops_bridge_responses_sent_total",
		Help: "Total number of instructions sent to vehicles, by frame type.",
	}, []string{"type"})

	// ValidationErrors counts rejected payloads.
	ValidationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marineops_bridge_validation_errors_total",
		Help: "Total number of vehicle payloads rejected by validation.",
	})

	// TransitionsLogged counts transitions handed to the transition log.
	TransitionsLogged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marineops_bridge_transitions_logged_total",
		Help: "Total number of transitions written to transition logs.",
	})

	// TransitionLogErrors counts transitions that could not be logged.
	TransitionLogErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marineops_bridge_transition_log_errors_total",
		Help: "Total number of transitions rejected by the transition log.",
	})

	// EpisodesCompleted counts episodes completed under the episodic manager.
	EpisodesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marineops_bridge_episodes_completed_total",
		Help: "Total number of completed episodes observed by the episodic manager.",
	})

	// Gauges

	// QueueDepth is the number of messages waiting for the consumer.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marineops_bridge_queue_depth",
		Help: "Current number of messages waiting for the consumer.",
	})

	// VehiclesConnected is the number of identified live connections.
	VehiclesConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marineops_bridge_vehicles_connected",
		Help: "Current number of identified vehicle connections.",
	})

	// AwaitingResponse is the number of messages with no response yet.
	AwaitingResponse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marineops_bridge_awaiting_response",
		Help: "Current number of vehicle messages awaiting a response.",
	})
)

// RecordDrop increments the dropped-connection counter.
func RecordDrop(reason string) {
	ConnectionsDropped.WithLabelValues(reason).Inc()
}

// RecordResponse increments the sent-instruction counter.
func RecordResponse(frameType string) {
	ResponsesSent.WithLabelValues(frameType).Inc()
}
