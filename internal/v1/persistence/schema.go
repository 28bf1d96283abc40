// Package persistence implements the pluggable durability layer: a local
// append-safe snapshot file and a remote document-store variant, both
// exposing load-all / upsert-room over the same wire schema.
package persistence

import (
	"time"

	"k8s.io/utils/set"

	"github.com/zkroom/relay/internal/v1/domain"
)

// SettingsDoc mirrors domain.Settings on the wire, camelCase field names.
// Both json and firestore struct tags are set to the same camelCase names:
// encoding/json honors the json tag, the Firestore client honors its own
// `firestore` tag and otherwise falls back to the bare (capitalized) Go
// field name, which would silently diverge from the documented schema.
type SettingsDoc struct {
	DisappearingMessages *int64 `json:"disappearingMessages" firestore:"disappearingMessages"`
	MaxMembers           int    `json:"maxMembers" firestore:"maxMembers"`
	IsPrivate            bool   `json:"isPrivate" firestore:"isPrivate"`
	AllowFileSharing     bool   `json:"allowFileSharing" firestore:"allowFileSharing"`
	AllowVoiceMessages   bool   `json:"allowVoiceMessages" firestore:"allowVoiceMessages"`
}

// FileDataDoc mirrors domain.FileData on the wire.
type FileDataDoc struct {
	URL       string    `json:"url,omitempty" firestore:"url,omitempty"`
	Name      string    `json:"name,omitempty" firestore:"name,omitempty"`
	Size      int64     `json:"size,omitempty" firestore:"size,omitempty"`
	Mimetype  string    `json:"mimetype,omitempty" firestore:"mimetype,omitempty"`
	AudioData string    `json:"audioData,omitempty" firestore:"audioData,omitempty"`
	Duration  float64   `json:"duration,omitempty" firestore:"duration,omitempty"`
	Waveform  []float64 `json:"waveform,omitempty" firestore:"waveform,omitempty"`
}

// MessageDoc is the persisted shape of a domain.Message. Timestamps are
// time.Time fields: the cloud variant stores them as native Firestore
// timestamp values, not ISO-8601 strings; the local variant stores whatever
// encoding/json produces for time.Time (RFC3339 strings).
type MessageDoc struct {
	ID           string              `json:"id" firestore:"id"`
	RoomID       string              `json:"roomId" firestore:"roomId"`
	SenderID     string              `json:"senderId" firestore:"senderId"`
	SenderName   string              `json:"senderName" firestore:"senderName"`
	SenderAvatar string              `json:"senderAvatar" firestore:"senderAvatar"`
	Content      string              `json:"content" firestore:"content"`
	Type         string              `json:"type" firestore:"type"`
	Timestamp    time.Time           `json:"timestamp" firestore:"timestamp"`
	ReplyTo      *string             `json:"replyTo" firestore:"replyTo,omitempty"`
	Reactions    map[string][]string `json:"reactions" firestore:"reactions"`
	ReadBy       []string            `json:"readBy" firestore:"readBy"`
	Edited       bool                `json:"edited" firestore:"edited"`
	EditedAt     *time.Time          `json:"editedAt" firestore:"editedAt,omitempty"`
	Deleted      bool                `json:"deleted" firestore:"deleted"`
	DisappearAt  *time.Time          `json:"disappearAt" firestore:"disappearAt,omitempty"`
	FileData     *FileDataDoc        `json:"fileData,omitempty" firestore:"fileData,omitempty"`
	IsEncrypted  bool                `json:"isEncrypted" firestore:"isEncrypted"`
}

// MemberDoc is the persisted shape of a domain.Member. The local snapshot
// variant serializes members as [session_id, MemberDoc] pairs; the cloud
// variant does not persist members at all — every session is dead after a
// restart, so there is nothing worth restoring.
type MemberDoc struct {
	SessionID        string    `json:"sessionId"`
	PersistentUserID string    `json:"persistentUserId"`
	DisplayName      string    `json:"displayName"`
	AvatarInitials   string    `json:"avatarInitials"`
	Color            string    `json:"color"`
	JoinedAt         time.Time `json:"joinedAt"`
	IsOnline         bool      `json:"isOnline"`
}

// RoomDoc is the persisted shape of a Room aggregate, one document per
// room at `rooms/{room_id}`. Members are advisory-only metadata (see
// RoomFromDoc) and are never restored into live state, so RoomDoc omits
// them entirely; the local snapshot's on-disk members array is handled
// directly by local.go via rawRoomDoc.
type RoomDoc struct {
	ID        string       `json:"id" firestore:"id"`
	Name      string       `json:"name" firestore:"name"`
	CreatedBy string       `json:"createdBy" firestore:"createdBy"`
	CreatedAt time.Time    `json:"createdAt" firestore:"createdAt"`
	Settings  SettingsDoc  `json:"settings" firestore:"settings"`
	Messages  []MessageDoc `json:"messages" firestore:"messages"`
}

func settingsToDoc(s domain.Settings) SettingsDoc {
	return SettingsDoc{
		DisappearingMessages: s.DisappearingMessages,
		MaxMembers:           s.MaxMembers,
		IsPrivate:            s.IsPrivate,
		AllowFileSharing:     s.AllowFileSharing,
		AllowVoiceMessages:   s.AllowVoiceMessages,
	}
}

func settingsFromDoc(d SettingsDoc) domain.Settings {
	return domain.Settings{
		DisappearingMessages: d.DisappearingMessages,
		MaxMembers:           d.MaxMembers,
		IsPrivate:            d.IsPrivate,
		AllowFileSharing:     d.AllowFileSharing,
		AllowVoiceMessages:   d.AllowVoiceMessages,
	}
}

func fileDataToDoc(f *domain.FileData) *FileDataDoc {
	if f == nil {
		return nil
	}
	return &FileDataDoc{
		URL:       f.URL,
		Name:      f.Name,
		Size:      f.Size,
		Mimetype:  f.Mimetype,
		AudioData: f.AudioData,
		Duration:  f.Duration,
		Waveform:  f.Waveform,
	}
}

func fileDataFromDoc(d *FileDataDoc) *domain.FileData {
	if d == nil {
		return nil
	}
	return &domain.FileData{
		URL:       d.URL,
		Name:      d.Name,
		Size:      d.Size,
		Mimetype:  d.Mimetype,
		AudioData: d.AudioData,
		Duration:  d.Duration,
		Waveform:  d.Waveform,
	}
}

func messageToDoc(m *domain.Message) MessageDoc {
	readBy := m.ReadBy.UnsortedList()
	reactions := make(map[string][]string, len(m.Reactions))
	for emoji, sids := range m.Reactions {
		cp := make([]string, len(sids))
		copy(cp, sids)
		reactions[emoji] = cp
	}
	return MessageDoc{
		ID:           m.ID,
		RoomID:       m.RoomID,
		SenderID:     m.SenderSessionID,
		SenderName:   m.SenderDisplayName,
		SenderAvatar: m.SenderAvatar,
		Content:      m.Content,
		Type:         m.Kind,
		Timestamp:    m.Timestamp,
		ReplyTo:      m.ReplyTo,
		Reactions:    reactions,
		ReadBy:       readBy,
		Edited:       m.Edited,
		EditedAt:     m.EditedAt,
		Deleted:      m.Deleted,
		DisappearAt:  m.DisappearAt,
		FileData:     fileDataToDoc(m.FileData),
		IsEncrypted:  m.IsEncrypted,
	}
}

// messageFromDoc rehydrates a domain.Message from its persisted form. If
// disappearAt has already elapsed, the caller is responsible for redacting
// it in-line; this function only deserializes.
func messageFromDoc(d MessageDoc) *domain.Message {
	readBy := set.New[string](d.ReadBy...)
	reactions := make(map[string][]string, len(d.Reactions))
	for emoji, sids := range d.Reactions {
		cp := make([]string, len(sids))
		copy(cp, sids)
		reactions[emoji] = cp
	}
	return &domain.Message{
		ID:                d.ID,
		RoomID:            d.RoomID,
		SenderSessionID:   d.SenderID,
		SenderDisplayName: d.SenderName,
		SenderAvatar:      d.SenderAvatar,
		Content:           d.Content,
		Kind:              d.Type,
		Timestamp:         d.Timestamp,
		ReplyTo:           d.ReplyTo,
		Reactions:         reactions,
		ReadBy:            readBy,
		Edited:            d.Edited,
		EditedAt:          d.EditedAt,
		Deleted:           d.Deleted,
		DisappearAt:       d.DisappearAt,
		FileData:          fileDataFromDoc(d.FileData),
		IsEncrypted:       d.IsEncrypted,
	}
}

// RoomToDoc projects a live Room aggregate into its persisted shape.
func RoomToDoc(r *domain.Room) RoomDoc {
	msgs := r.Messages()
	docMsgs := make([]MessageDoc, len(msgs))
	for i, m := range msgs {
		docMsgs[i] = messageToDoc(m)
	}
	return RoomDoc{
		ID:        r.ID,
		Name:      r.Name,
		CreatedBy: r.CreatorIdentity,
		CreatedAt: r.CreatedAt,
		Settings:  settingsToDoc(r.Settings),
		Messages:  docMsgs,
	}
}

// RoomFromDoc rehydrates a Room aggregate from its persisted shape. Members
// are intentionally NOT restored: saved members are advisory — every
// session is dead after a restart and must rejoin. Messages whose
// disappear_at has already elapsed are redacted in-line with no broadcast;
// there is nobody connected yet to broadcast to.
func RoomFromDoc(d RoomDoc, now time.Time) *domain.Room {
	r := domain.NewRoom(d.ID, d.Name, d.CreatedBy, d.CreatedAt)
	r.Settings = settingsFromDoc(d.Settings)

	msgs := make([]*domain.Message, len(d.Messages))
	for i, md := range d.Messages {
		m := messageFromDoc(md)
		if m.DisappearAt != nil && !m.Deleted && !m.DisappearAt.After(now) {
			m.Deleted = true
			m.Content = domain.RedactedDisappeared
		}
		msgs[i] = m
	}
	r.RestoreMessages(msgs)
	return r
}
