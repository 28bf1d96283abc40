package persistence

import (
	"context"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	"cloud.google.com/go/firestore"
	"github.com/sony/gobreaker"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/zkroom/relay/internal/v1/domain"
	"github.com/zkroom/relay/internal/v1/metrics"
)

const roomsCollection = "rooms"

// FirestoreAdapter persists each room as one document under rooms/{room_id}.
// All calls are
// wrapped in a circuit breaker so a degraded Firestore backend fails fast
// instead of blocking the coalescer's save goroutine.
type FirestoreAdapter struct {
	client *firestore.Client
	cb     *gobreaker.CircuitBreaker
}

// NewFirestoreAdapter authenticates with a service account JSON blob and
// opens a Firestore client for the given project.
func NewFirestoreAdapter(ctx context.Context, projectID string, serviceAccountJSON []byte) (*FirestoreAdapter, error) {
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, option.WithCredentialsJSON(serviceAccountJSON))
	if err != nil {
		return nil, fmt.Errorf("persistence: init firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("persistence: init firestore client: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "firestore",
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
			metrics.CircuitBreakerState.WithLabelValues("firestore").Set(stateVal)
		},
	}

	return &FirestoreAdapter{client: client, cb: gobreaker.NewCircuitBreaker(st)}, nil
}

// LoadAll reads every document in the rooms collection.
func (a *FirestoreAdapter) LoadAll(ctx context.Context) ([]*domain.Room, error) {
	start := time.Now()
	result, err := a.cb.Execute(func() (any, error) {
		iter := a.client.Collection(roomsCollection).Documents(ctx)
		defer iter.Stop()

		now := time.Now()
		var rooms []*domain.Room
		for {
			doc, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("persistence: iterate rooms: %w", err)
			}
			var d RoomDoc
			if err := doc.DataTo(&d); err != nil {
				return nil, fmt.Errorf("persistence: decode room %s: %w", doc.Ref.ID, err)
			}
			rooms = append(rooms, RoomFromDoc(d, now))
		}
		return rooms, nil
	})

	metrics.PersistenceOperationDuration.WithLabelValues("load_all").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PersistenceOperations.WithLabelValues("load_all", "error").Inc()
		return nil, err
	}
	metrics.PersistenceOperations.WithLabelValues("load_all", "success").Inc()
	rooms, _ := result.([]*domain.Room)
	return rooms, nil
}

// Upsert writes one document per room via a batched commit.
func (a *FirestoreAdapter) Upsert(ctx context.Context, rooms []*domain.Room) error {
	start := time.Now()
	_, err := a.cb.Execute(func() (any, error) {
		batch := a.client.Batch()
		for _, r := range rooms {
			ref := a.client.Collection(roomsCollection).Doc(r.ID)
			batch.Set(ref, RoomToDoc(r))
		}
		if len(rooms) == 0 {
			return nil, nil
		}
		_, err := batch.Commit(ctx)
		return nil, err
	})

	metrics.PersistenceOperationDuration.WithLabelValues("upsert").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PersistenceOperations.WithLabelValues("upsert", "error").Inc()
		return fmt.Errorf("persistence: upsert rooms: %w", err)
	}
	metrics.PersistenceOperations.WithLabelValues("upsert", "success").Inc()
	return nil
}

// Ping verifies connectivity by listing at most one document.
func (a *FirestoreAdapter) Ping(ctx context.Context) error {
	_, err := a.cb.Execute(func() (any, error) {
		iter := a.client.Collection(roomsCollection).Limit(1).Documents(ctx)
		defer iter.Stop()
		_, err := iter.Next()
		if err == iterator.Done {
			return nil, nil
		}
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("persistence: firestore ping: %w", err)
	}
	return nil
}

// Close releases the underlying Firestore client.
func (a *FirestoreAdapter) Close() error {
	return a.client.Close()
}
