// Package roomstore holds the in-memory authoritative mapping of
// room-id -> Room aggregate. It is the only thing that creates or enumerates
// rooms; the Event Router and HTTP surface both go through it rather than
// holding their own registries, so the REST "create room" path and the
// websocket "join creates it implicitly" path can never diverge.
package roomstore

import (
	"sync"
	"time"

	"github.com/zkroom/relay/internal/v1/domain"
)

// Store is the thread-safe room-id -> *domain.Room map.
type Store struct {
	mu      sync.RWMutex
	rooms   map[string]*domain.Room
	onDirty func()
}

// New constructs an empty Store. onDirty, if non-nil, is invoked every time
// a room is created or mutated through the store — wiring it to the
// Snapshot Coalescer's Dirty method is the expected use.
func New(onDirty func()) *Store {
	return &Store{
		rooms:   make(map[string]*domain.Room),
		onDirty: onDirty,
	}
}

func (s *Store) markDirty() {
	if s.onDirty != nil {
		s.onDirty()
	}
}

// Get looks up a room by id without creating it.
func (s *Store) Get(roomID string) (*domain.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	return r, ok
}

// Create inserts a brand-new room. Used by the HTTP room-creation endpoint,
// which always mints a fresh id first.
func (s *Store) Create(roomID, name, creatorIdentity string, now time.Time) *domain.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := domain.NewRoom(roomID, name, creatorIdentity, now)
	s.rooms[roomID] = r
	s.markDirty()
	return r
}

// GetOrCreate returns the room for roomID, creating it (with creatorIdentity
// as its creator identity and its own id as its display name) if this is the
// first time anyone has referenced it — the websocket join-to-unknown-room
// path. The bool result reports whether a new room was created.
func (s *Store) GetOrCreate(roomID, creatorIdentity string, now time.Time) (*domain.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[roomID]; ok {
		return r, false
	}
	r := domain.NewRoom(roomID, roomID, creatorIdentity, now)
	s.rooms[roomID] = r
	s.markDirty()
	return r, true
}

// All returns a snapshot slice of every room currently held, used by the
// Persistence Adapter to build a save batch.
func (s *Store) All() []*domain.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	return out
}

// Count returns the number of rooms held in memory.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// Load adds rooms rehydrated from the Persistence Adapter at startup,
// overwriting any room with the same ID; other rooms already in the store
// are kept. Must be called before ServeWs accepts
// any connections.
func (s *Store) Load(rooms []*domain.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rooms {
		s.rooms[r.ID] = r
	}
}

// MarkDirty trips the coalescer hook without otherwise mutating the store.
// It is for callers that mutate a *domain.Room in place and need to signal
// that a save is owed; the session package's handlers call the coalescer's
// Dirty directly instead.
func (s *Store) MarkDirty() {
	s.markDirty()
}
