// Package domain holds the Room aggregate: the authoritative in-memory state
// machine for a single chat room. All mutation methods are safe for
// concurrent use; each Room serializes its own operations behind a mutex so
// callers never need to coordinate locking across rooms.
package domain

import (
	"sync"
	"time"

	"k8s.io/utils/set"
)

// Recognized disappearing-message durations: 5s, 1m, 1h, 24h. Anything
// else in an update-settings patch is ignored.
var RecognizedDisappearDurations = map[int64]bool{
	5_000:      true,
	60_000:     true,
	3_600_000:  true,
	86_400_000: true,
}

const (
	MessageKindText   = "text"
	MessageKindVoice  = "voice"
	MessageKindFile   = "file"
	MessageKindImage  = "image"
	MessageKindSystem = "system"
)

const (
	RedactedDeleted     = "This message was deleted"
	RedactedDisappeared = "This message has disappeared"
)

// FileData is the voice/file descriptor attached to a Message.
type FileData struct {
	URL       string
	Name      string
	Size      int64
	Mimetype  string
	AudioData string
	Duration  float64
	Waveform  []float64
}

// Settings is a room's advisory configuration.
type Settings struct {
	DisappearingMessages *int64 // ms; nil = disabled
	MaxMembers           int
	IsPrivate            bool
	AllowFileSharing     bool
	AllowVoiceMessages   bool
}

// DefaultSettings mirrors the source's permissive defaults.
func DefaultSettings() Settings {
	return Settings{
		MaxMembers:         50,
		IsPrivate:          false,
		AllowFileSharing:   true,
		AllowVoiceMessages: true,
	}
}

// Member is transient: it exists only while its session is connected.
type Member struct {
	SessionID        string
	PersistentUserID string
	DisplayName      string
	AvatarInitials   string
	Color            string
	JoinedAt         time.Time
	IsOnline         bool
}

// Message is append-only except for redaction (edit/delete/disappearance).
type Message struct {
	ID                string
	RoomID            string
	SenderSessionID   string
	SenderDisplayName string
	SenderAvatar      string
	Content           string
	Kind              string
	Timestamp         time.Time
	ReplyTo           *string
	Reactions         map[string][]string // emoji -> ordered session ids
	ReadBy            set.Set[string]     // session ids with a read receipt
	Edited            bool
	EditedAt          *time.Time
	Deleted           bool
	DisappearAt       *time.Time
	FileData          *FileData
	IsEncrypted       bool
}

// Room is the authoritative aggregate for one chat room.
type Room struct {
	mu sync.Mutex

	ID              string
	Name            string
	CreatorIdentity string
	CreatedAt       time.Time
	Settings        Settings

	members  map[string]*Member // session_id -> Member
	messages []*Message

	idSeq uint64
}

// NewRoom constructs an empty room owned by creatorIdentity.
func NewRoom(id, name, creatorIdentity string, createdAt time.Time) *Room {
	return &Room{
		ID:              id,
		Name:            name,
		CreatorIdentity: creatorIdentity,
		CreatedAt:       createdAt,
		Settings:        DefaultSettings(),
		members:         make(map[string]*Member),
	}
}

// nextMessageID mints a server-unique message id, scoped to this room.
// Must be called with mu held.
func (r *Room) nextMessageID() string {
	r.idSeq++
	return r.ID + "-m-" + formatUint(r.idSeq)
}

// Join inserts sessionID as a Member, evicting any stale Member that shares
// persistentUserID. Returns the Member that was displaced, if any, and a
// snapshot of the room usable to build a room-joined reply.
func (r *Room) Join(sessionID, persistentUserID, displayName, avatarInitials, color string, now time.Time) (displaced *Member, snapshot RoomSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for sid, m := range r.members {
		if m.PersistentUserID == persistentUserID {
			displaced = m
			delete(r.members, sid)
			break
		}
	}

	r.members[sessionID] = &Member{
		SessionID:        sessionID,
		PersistentUserID: persistentUserID,
		DisplayName:      displayName,
		AvatarInitials:   avatarInitials,
		Color:            color,
		JoinedAt:         now,
		IsOnline:         true,
	}

	return displaced, r.snapshotLocked()
}

// RoomSnapshot is the data needed to answer a join with room-joined.
type RoomSnapshot struct {
	Name     string
	Members  []*Member
	Messages []*Message
	Settings Settings
}

func (r *Room) snapshotLocked() RoomSnapshot {
	members := make([]*Member, 0, len(r.members))
	for _, m := range r.members {
		members = append(members, m)
	}
	return RoomSnapshot{
		Name:     r.Name,
		Members:  members,
		Messages: r.messages,
		Settings: r.Settings,
	}
}

// RecentMessages returns the most recent n messages (or fewer if the room
// has not yet accumulated n), oldest first.
func (s RoomSnapshot) RecentMessages(n int) []*Message {
	if len(s.Messages) <= n {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}

// Members returns a snapshot of currently connected members.
func (r *Room) Members() []*Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	return out
}

// Member looks up a connected member by session id.
func (r *Room) Member(sessionID string) (*Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[sessionID]
	return m, ok
}

// IsMember reports whether sessionID currently holds a Member slot.
func (r *Room) IsMember(sessionID string) bool {
	_, ok := r.Member(sessionID)
	return ok
}

// Post appends a new message authored by sessionID. Returns nil if
// sessionID is not currently a member (e.g. evicted mid-flight).
func (r *Room) Post(sessionID, kind, content string, replyTo *string, fileData *FileData, isEncrypted bool, now time.Time) *Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	sender, ok := r.members[sessionID]
	if !ok {
		return nil
	}

	if replyTo != nil {
		found := false
		for _, m := range r.messages {
			if m.ID == *replyTo {
				found = true
				break
			}
		}
		if !found {
			replyTo = nil
		}
	}

	var disappearAt *time.Time
	if r.Settings.DisappearingMessages != nil {
		at := now.Add(time.Duration(*r.Settings.DisappearingMessages) * time.Millisecond)
		disappearAt = &at
	}

	msg := &Message{
		ID:                r.nextMessageID(),
		RoomID:            r.ID,
		SenderSessionID:   sessionID,
		SenderDisplayName: sender.DisplayName,
		SenderAvatar:      sender.AvatarInitials,
		Content:           content,
		Kind:              kind,
		Timestamp:         now,
		ReplyTo:           replyTo,
		Reactions:         make(map[string][]string),
		ReadBy:            set.New[string](),
		FileData:          fileData,
		IsEncrypted:       isEncrypted,
		DisappearAt:       disappearAt,
	}
	r.messages = append(r.messages, msg)
	return msg
}

// React toggles sessionID's presence in reactions[emoji] for messageID.
// Returns the post-image of reactions for that message and whether the
// message was found.
func (r *Room) React(sessionID, messageID, emoji string) (map[string][]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := r.findLocked(messageID)
	if msg == nil {
		return nil, false
	}

	bucket := msg.Reactions[emoji]
	idx := indexOf(bucket, sessionID)
	if idx >= 0 {
		bucket = append(bucket[:idx], bucket[idx+1:]...)
	} else {
		bucket = append(bucket, sessionID)
	}

	if len(bucket) == 0 {
		delete(msg.Reactions, emoji)
	} else {
		msg.Reactions[emoji] = bucket
	}

	return copyReactions(msg.Reactions), true
}

// Edit mutates a message's content. Only the original sender may edit, and
// a deleted message can no longer be edited. Matches source behavior: edited
// is set even if newContent is identical to the existing content.
func (r *Room) Edit(sessionID, messageID, newContent string, now time.Time) (ok bool, editedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := r.findLocked(messageID)
	if msg == nil || msg.Deleted || msg.SenderSessionID != sessionID {
		return false, time.Time{}
	}

	msg.Content = newContent
	msg.Edited = true
	msg.EditedAt = &now
	return true, now
}

// Delete tombstones a message. Only the original sender may delete.
// Deleting an already-deleted message reports false so callers don't
// re-broadcast a tombstone that every member has already seen.
func (r *Room) Delete(sessionID, messageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := r.findLocked(messageID)
	if msg == nil || msg.SenderSessionID != sessionID {
		return false
	}
	if msg.Deleted {
		return false
	}

	msg.Deleted = true
	msg.Content = RedactedDeleted
	return true
}

// MarkRead adds sessionID to read_by for each message id not already
// marked, and returns the subset of ids that were newly marked.
func (r *Room) MarkRead(sessionID string, ids []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var newlyRead []string
	for _, id := range ids {
		msg := r.findLocked(id)
		if msg == nil {
			continue
		}
		if msg.ReadBy.Has(sessionID) {
			continue
		}
		msg.ReadBy.Insert(sessionID)
		newlyRead = append(newlyRead, id)
	}
	return newlyRead
}

// SettingsPatch carries only the fields a caller wants to update.
type SettingsPatch struct {
	DisappearingMessages *int64
	MaxMembers           *int
	IsPrivate            *bool
	AllowFileSharing     *bool
	AllowVoiceMessages   *bool
}

// UpdateSettings merges patch into the room's settings and returns the
// post-image. Unrecognized disappearing-message durations are ignored.
func (r *Room) UpdateSettings(patch SettingsPatch) Settings {
	r.mu.Lock()
	defer r.mu.Unlock()

	if patch.DisappearingMessages != nil {
		if *patch.DisappearingMessages == 0 {
			r.Settings.DisappearingMessages = nil
		} else if RecognizedDisappearDurations[*patch.DisappearingMessages] {
			v := *patch.DisappearingMessages
			r.Settings.DisappearingMessages = &v
		}
	}
	if patch.MaxMembers != nil {
		r.Settings.MaxMembers = *patch.MaxMembers
	}
	if patch.IsPrivate != nil {
		r.Settings.IsPrivate = *patch.IsPrivate
	}
	if patch.AllowFileSharing != nil {
		r.Settings.AllowFileSharing = *patch.AllowFileSharing
	}
	if patch.AllowVoiceMessages != nil {
		r.Settings.AllowVoiceMessages = *patch.AllowVoiceMessages
	}
	return r.Settings
}

// Evict removes targetSessionID from the room, if requesterDisplayName
// matches the room's creator_identity. Returns ok and the remaining members.
func (r *Room) Evict(requesterDisplayName, targetSessionID string) (ok bool, remaining []*Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if requesterDisplayName != r.CreatorIdentity {
		return false, nil
	}
	if _, present := r.members[targetSessionID]; !present {
		return false, nil
	}

	delete(r.members, targetSessionID)
	out := make([]*Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	return true, out
}

// Disconnect removes sessionID's Member slot, if present.
func (r *Room) Disconnect(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[sessionID]; !ok {
		return false
	}
	delete(r.members, sessionID)
	return true
}

// Redact marks messageID as deleted with the disappearance tombstone text.
// Used by the Disappearance Scheduler at fire time and during load for
// messages whose disappear_at already elapsed.
func (r *Room) Redact(messageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg := r.findLocked(messageID)
	if msg == nil || msg.Deleted {
		return false
	}
	msg.Deleted = true
	msg.Content = RedactedDisappeared
	return true
}

// Messages returns every message in the room, in append order.
func (r *Room) Messages() []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// MemberCount returns the current number of connected members.
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// RestoreMessages replaces the message log wholesale. Used only by the
// persistence adapter while loading a room from storage.
func (r *Room) RestoreMessages(messages []*Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = messages
	var maxSeq uint64
	for _, m := range r.messages {
		if seq, ok := parseSeqSuffix(r.ID, m.ID); ok && seq > maxSeq {
			maxSeq = seq
		}
	}
	r.idSeq = maxSeq
}

func (r *Room) findLocked(messageID string) *Message {
	for _, m := range r.messages {
		if m.ID == messageID {
			return m
		}
	}
	return nil
}

func indexOf(ss []string, v string) int {
	for i, s := range ss {
		if s == v {
			return i
		}
	}
	return -1
}

func copyReactions(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		cp := make([]string, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}
