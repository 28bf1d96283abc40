package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/zkroom/relay/internal/v1/metrics"
)

const roomChannelPattern = "relay:room:*"

// PubSubPayload is the standardized container for moving messages between nodes.
type PubSubPayload struct {
	NodeID   string          `json:"nodeId"`   // the publishing process; used to suppress self-echo
	RoomID   string          `json:"roomId"`
	Event    string          `json:"event"`    // the event kind (e.g. "message", "handshake-request")
	Payload  json.RawMessage `json:"payload"`  // the event's JSON body
	SenderID string          `json:"senderId"` // the originating session; receiving nodes skip it on fan-out
}

// Service handles all interaction with the Redis cluster.
type Service struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
	nodeID string
}

// Client returns the underlying Redis client.
func (s *Service) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// NodeID identifies this process on the bus. Each process mints its own at
// startup; SubscribeAll uses it to drop this process's own publishes.
func (s *Service) NodeID() string {
	if s == nil {
		return ""
	}
	return s.nodeID
}

// NewService creates a robust Redis connection with automatic retries.
func NewService(addr, password string) (*Service, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0, // Default DB
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10, // Optimize for 15 replicas
		MinIdleConns: 2,
	})

	// Ping to verify connection immediately
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(stateVal)
		},
	}

	slog.Info("Connected to Redis Pub/Sub", "addr", addr)
	return &Service{
		client: rdb,
		cb:     gobreaker.NewCircuitBreaker(st),
		nodeID: uuid.NewString(),
	}, nil
}

// Publish broadcasts a message to all other nodes watching this room.
func (s *Service) Publish(ctx context.Context, roomID string, event string, payload any, senderID string) error {
	if s == nil || s.client == nil {
		return nil // Single-instance mode, no Redis available
	}

	start := time.Now()
	defer func() { metrics.RedisOperationDuration.WithLabelValues("publish").Observe(time.Since(start).Seconds()) }()

	_, err := s.cb.Execute(func() (interface{}, error) {
		// 1. Wrap the payload
		innerBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal inner payload: %w", err)
		}

		msg := PubSubPayload{
			NodeID:   s.nodeID,
			RoomID:   roomID,
			Event:    event,
			Payload:  innerBytes,
			SenderID: senderID, // Pass the ID of the client who sent this
		}

		data, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal pubsub envelope: %w", err)
		}

		// 2. Publish to the specific room channel
		channel := fmt.Sprintf("relay:room:%s", roomID)

		return nil, s.client.Publish(ctx, channel, data).Err()
	})

	if err != nil {
		metrics.RedisOperationsTotal.WithLabelValues("publish", "error").Inc()
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			slog.Warn("Redis Circuit Breaker Open: dropping publish", "roomID", roomID)
			return nil // Graceful degradation: drop message, don't crash caller
		}
		slog.Error("Redis Publish Failed", "roomID", roomID, "error", err)
		return err
	}

	metrics.RedisOperationsTotal.WithLabelValues("publish", "success").Inc()
	return nil
}

// SubscribeAll starts a background goroutine that listens for room
// broadcasts published by OTHER processes and hands each one to handler.
// This process's own publishes are filtered out by node id, so a handler
// can fan the payload out to local sessions without double-delivering.
func (s *Service) SubscribeAll(ctx context.Context, wg *sync.WaitGroup, handler func(PubSubPayload)) {
	if s == nil || s.client == nil {
		return // Single-instance mode, no Redis available
	}

	// One pattern subscription covers every room channel; rooms come and go
	// too often to manage a subscription per room id.
	pubsub := s.client.PSubscribe(ctx, roomChannelPattern)

	if wg != nil {
		wg.Add(1)
	}
	go func() {
		defer pubsub.Close()
		if wg != nil {
			defer wg.Done()
		}

		slog.Info("Subscribed to Redis room channels", "pattern", roomChannelPattern)

		ch := pubsub.Channel()

		// Read indefinitely until the context is cancelled or connection dies
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					slog.Warn("Redis subscription channel closed", "pattern", roomChannelPattern)
					return
				}

				var payload PubSubPayload
				if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
					slog.Error("Failed to unmarshal Redis message", "error", err, "raw", msg.Payload)
					continue
				}

				if payload.NodeID == s.nodeID {
					continue // our own publish echoing back
				}

				// Pass the data back up to the application layer
				handler(payload)
			}
		}
	}()
}

// Ping checks Redis connectivity using the PING command
// Used by health checks to verify Redis is reachable
func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil // Single-instance mode, no Redis available
	}

	start := time.Now()
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Ping(ctx).Err()
	})
	metrics.RedisOperationDuration.WithLabelValues("ping").Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.RedisOperationsTotal.WithLabelValues("ping", "error").Inc()
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
		}
		return err
	}
	metrics.RedisOperationsTotal.WithLabelValues("ping", "success").Inc()
	return nil
}

// Close gracefully shuts down the Redis connection
func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil // Single-instance mode, no Redis available
	}
	return s.client.Close()
}
