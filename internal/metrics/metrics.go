// Package metrics declares the Prometheus instruments exposed on /metrics.
//
// Naming convention: namespace_subsystem_name.
//   - namespace: watchparty (application-level grouping)
//   - subsystem: room, websocket, rate_limit (feature-level grouping)
//   - name: specific metric
//
// Metric types: Gauge for current state, Counter for cumulative events,
// Histogram for latency distributions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks the current number of open session channels.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "watchparty",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active session channel connections",
	})

	// ActiveRooms tracks the current number of rooms in the registry.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "watchparty",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomParticipants tracks participant count per room.
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "watchparty",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of participants in each room",
	}, []string{"room_id"})

	// MessagesTotal counts dispatched inbound messages by type and outcome.
	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchparty",
		Subsystem: "websocket",
		Name:      "messages_total",
		Help:      "Total inbound messages dispatched, by type and outcome",
	}, []string{"type", "outcome"})

	// DispatchDuration tracks handler latency per message type.
	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "watchparty",
		Subsystem: "websocket",
		Name:      "dispatch_duration_seconds",
		Help:      "Time spent dispatching an inbound message",
		Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25},
	}, []string{"type"})

	// BroadcastEvictions counts channels evicted from a room after a failed send.
	BroadcastEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchparty",
		Subsystem: "room",
		Name:      "broadcast_evictions_total",
		Help:      "Total participants evicted from a room after a failed broadcast send",
	}, []string{"room_id"})

	// HostFailovers counts host-promotion events.
	HostFailovers = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "watchparty",
		Subsystem: "room",
		Name:      "host_failovers_total",
		Help:      "Total number of host failover promotions",
	})

	// RateLimitExceeded counts rejected requests by endpoint and limiter key type.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchparty",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total number of requests that exceeded the rate limit",
	}, []string{"endpoint", "key_type"})
)

func IncConnection() {
	ActiveConnections.Inc()
}

func DecConnection() {
	ActiveConnections.Dec()
}
