// Package metrics exposes Prometheus collectors for the relay process.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Naming convention: namespace_subsystem_name
// - namespace: relay (application-level grouping)
// - subsystem: websocket, room, persist, handshake, signal, rate_limit, circuit_breaker
// - name: specific metric

var (
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "relay",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "relay",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of rooms held in memory",
	})

	RoomMembers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "relay",
		Subsystem: "room",
		Name:      "members_count",
		Help:      "Number of members currently in each room",
	}, []string{"room_id"})

	WebsocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Total WebSocket events processed, by kind and outcome",
	}, []string{"event", "status"})

	EventProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "relay",
		Subsystem: "websocket",
		Name:      "event_processing_seconds",
		Help:      "Time spent routing and applying a single event",
		Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"event"})

	HandshakeMessagesRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "handshake",
		Name:      "messages_relayed_total",
		Help:      "Total PQC key-exchange blobs relayed, by stage",
	}, []string{"stage"})

	SignalMessagesRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "signal",
		Name:      "messages_relayed_total",
		Help:      "Total call/canvas signaling messages relayed, by kind",
	}, []string{"kind"})

	RoomsEvicted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "room",
		Name:      "evicted_total",
		Help:      "Total rooms torn down, by reason",
	}, []string{"reason"})

	PersistenceOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "persist",
		Name:      "operations_total",
		Help:      "Total persistence adapter operations, by kind and outcome",
	}, []string{"op", "status"})

	PersistenceOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "relay",
		Subsystem: "persist",
		Name:      "operation_duration_seconds",
		Help:      "Duration of persistence adapter operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	CoalescedSaves = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "persist",
		Name:      "coalesced_saves_total",
		Help:      "Total debounced snapshot saves triggered by the coalescer",
	})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "relay",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of a circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})

	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by a circuit breaker",
	}, []string{"service"})

	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total requests that exceeded a rate limit",
	}, []string{"endpoint", "reason"})

	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "rate_limit",
		Name:      "requests_total",
		Help:      "Total requests checked against a rate limiter",
	}, []string{"endpoint"})

	RedisOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "redis",
		Name:      "operations_total",
		Help:      "Total Redis bus operations, by op and outcome",
	}, []string{"op", "status"})

	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "relay",
		Subsystem: "redis",
		Name:      "operation_duration_seconds",
		Help:      "Duration of Redis bus operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
