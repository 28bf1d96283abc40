package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zkroom/relay/internal/v1/domain"
)

// rawRoomDoc is the on-disk shape of a single room inside the local
// snapshot file. Members are kept as [session_id, MemberDoc] pairs for
// forward compatibility with the format the source process writes, even
// though RoomFromDoc never restores them into live state.
type rawRoomDoc struct {
	RoomDoc
	Members [][2]json.RawMessage `json:"members,omitempty"`
}

// LocalAdapter persists every room into a single JSON snapshot file,
// written atomically via write-to-temp-then-rename so a crash mid-write
// never corrupts the previous snapshot.
type LocalAdapter struct {
	mu   sync.Mutex
	path string
}

// NewLocalAdapter constructs an adapter writing to path. The containing
// directory is created on first Upsert if missing.
func NewLocalAdapter(path string) *LocalAdapter {
	return &LocalAdapter{path: path}
}

// LoadAll reads the snapshot file, if present. A missing file is not an
// error: it means this is the first run.
func (a *LocalAdapter) LoadAll(ctx context.Context) ([]*domain.Room, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := os.ReadFile(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("persistence: read snapshot: %w", err)
	}

	var raws []rawRoomDoc
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("persistence: decode snapshot: %w", err)
	}

	now := time.Now()
	rooms := make([]*domain.Room, 0, len(raws))
	for _, raw := range raws {
		rooms = append(rooms, RoomFromDoc(raw.RoomDoc, now))
	}
	return rooms, nil
}

// Upsert overwrites the entire snapshot file with the given rooms. The
// adapter has no concept of a partial update: every coalesced save carries
// the full in-memory room set, matching the source's whole-file rewrite.
func (a *LocalAdapter) Upsert(ctx context.Context, rooms []*domain.Room) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	docs := make([]rawRoomDoc, len(rooms))
	for i, r := range rooms {
		docs[i].RoomDoc = RoomToDoc(r)
		for _, m := range r.Members() {
			sid, _ := json.Marshal(m.SessionID)
			member, _ := json.Marshal(MemberDoc{SessionID: m.SessionID, PersistentUserID: m.PersistentUserID,
				DisplayName: m.DisplayName, AvatarInitials: m.AvatarInitials, Color: m.Color,
				JoinedAt: m.JoinedAt, IsOnline: m.IsOnline})
			docs[i].Members = append(docs[i].Members, [2]json.RawMessage{sid, member})
		}
	}

	payload, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("persistence: encode snapshot: %w", err)
	}

	dir := filepath.Dir(a.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("persistence: create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("persistence: create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("persistence: write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("persistence: close temp snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, a.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("persistence: rename temp snapshot: %w", err)
	}
	return nil
}

// Ping reports whether the snapshot directory is reachable and writable.
func (a *LocalAdapter) Ping(ctx context.Context) error {
	dir := filepath.Dir(a.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("persistence: snapshot dir unreachable: %w", err)
	}
	return nil
}
