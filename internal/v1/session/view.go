package session

import (
	"time"

	"github.com/zkroom/relay/internal/v1/domain"
	"github.com/zkroom/relay/internal/v1/protocol"
)

func toUnixMs(t time.Time) int64 { return t.UnixNano() / int64(time.Millisecond) }

func toUnixMsPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := toUnixMs(*t)
	return &ms
}

func memberView(m *domain.Member) protocol.MemberView {
	return protocol.MemberView{
		ID:             m.SessionID,
		UserID:         m.PersistentUserID,
		DisplayName:    m.DisplayName,
		AvatarInitials: m.AvatarInitials,
		Color:          m.Color,
		JoinedAt:       toUnixMs(m.JoinedAt),
		IsOnline:       m.IsOnline,
	}
}

func memberViews(members []*domain.Member) []protocol.MemberView {
	out := make([]protocol.MemberView, len(members))
	for i, m := range members {
		out[i] = memberView(m)
	}
	return out
}

func fileDataView(f *domain.FileData) *protocol.FileData {
	if f == nil {
		return nil
	}
	return &protocol.FileData{
		URL:       f.URL,
		Name:      f.Name,
		Size:      f.Size,
		Mimetype:  f.Mimetype,
		AudioData: f.AudioData,
		Duration:  f.Duration,
		Waveform:  f.Waveform,
	}
}

func fileDataFromWire(f *protocol.FileData) *domain.FileData {
	if f == nil {
		return nil
	}
	return &domain.FileData{
		URL:       f.URL,
		Name:      f.Name,
		Size:      f.Size,
		Mimetype:  f.Mimetype,
		AudioData: f.AudioData,
		Duration:  f.Duration,
		Waveform:  f.Waveform,
	}
}

func messageView(m *domain.Message) protocol.MessageView {
	readBy := m.ReadBy.UnsortedList()
	reactions := m.Reactions
	if reactions == nil {
		reactions = map[string][]string{}
	}
	return protocol.MessageView{
		ID:           m.ID,
		RoomID:       m.RoomID,
		SenderID:     m.SenderSessionID,
		SenderName:   m.SenderDisplayName,
		SenderAvatar: m.SenderAvatar,
		Content:      m.Content,
		Type:         m.Kind,
		Timestamp:    toUnixMs(m.Timestamp),
		ReplyTo:      m.ReplyTo,
		Reactions:    reactions,
		ReadBy:       readBy,
		Edited:       m.Edited,
		EditedAt:     toUnixMsPtr(m.EditedAt),
		Deleted:      m.Deleted,
		DisappearAt:  toUnixMsPtr(m.DisappearAt),
		FileData:     fileDataView(m.FileData),
		IsEncrypted:  m.IsEncrypted,
	}
}

func messageViews(messages []*domain.Message) []protocol.MessageView {
	out := make([]protocol.MessageView, len(messages))
	for i, m := range messages {
		out[i] = messageView(m)
	}
	return out
}

func settingsView(s domain.Settings) protocol.Settings {
	return protocol.Settings{
		DisappearingMessages: s.DisappearingMessages,
		MaxMembers:           s.MaxMembers,
		IsPrivate:            s.IsPrivate,
		AllowFileSharing:     s.AllowFileSharing,
		AllowVoiceMessages:   s.AllowVoiceMessages,
	}
}
