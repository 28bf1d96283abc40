package persistence

import (
	"context"

	"github.com/zkroom/relay/internal/v1/domain"
)

// Adapter is the pluggable durability boundary: load every room at startup,
// upsert the current set on every coalesced save. Implementations must be
// safe for concurrent use; the caller never issues overlapping Upsert calls
// for the same adapter (the coalescer guarantees at most one save in
// flight), but Ping may be called concurrently from the health endpoint.
type Adapter interface {
	LoadAll(ctx context.Context) ([]*domain.Room, error)
	Upsert(ctx context.Context, rooms []*domain.Room) error
	Ping(ctx context.Context) error
}
