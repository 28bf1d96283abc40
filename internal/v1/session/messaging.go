package session

import (
	"encoding/json"
	"time"

	"github.com/zkroom/relay/internal/v1/domain"
	"github.com/zkroom/relay/internal/v1/protocol"
)

func (h *Hub) roomAndIdentity(c *Client) (roomID string, identity string, ok bool) {
	entry, found := h.clients.Get(c.SessionID)
	if !found || entry.RoomID == "" {
		return "", "", false
	}
	return entry.RoomID, entry.Identity, true
}

// handleSendMessage posts a text (or other typed) message from the
// send-message event.
func (h *Hub) handleSendMessage(c *Client, data json.RawMessage) {
	roomID, _, ok := h.roomAndIdentity(c)
	if !ok {
		return
	}
	room, ok := h.rooms.Get(roomID)
	if !ok {
		return
	}

	in, ok := decodePayload[protocol.SendMessageIn](data)
	if !ok {
		return
	}
	kind := in.Type
	if kind == "" {
		kind = domain.MessageKindText
	}

	h.postAndBroadcast(room, roomID, c.SessionID, kind, in.Content, in.ReplyTo, in.FileData, in.IsEncrypted)
}

func (h *Hub) handleVoiceMessage(c *Client, data json.RawMessage) {
	roomID, _, ok := h.roomAndIdentity(c)
	if !ok {
		return
	}
	room, ok := h.rooms.Get(roomID)
	if !ok {
		return
	}

	in, ok := decodePayload[protocol.VoiceMessageIn](data)
	if !ok {
		return
	}

	h.postAndBroadcast(room, roomID, c.SessionID, domain.MessageKindVoice, in.Content, nil, in.FileData, in.IsEncrypted)
}

func (h *Hub) postAndBroadcast(room *domain.Room, roomID, sessionID, kind, content string, replyTo *string, fileData *protocol.FileData, isEncrypted bool) {
	msg := room.Post(sessionID, kind, content, replyTo, fileDataFromWire(fileData), isEncrypted, time.Now())
	if msg == nil {
		return
	}

	h.broadcastRoom(roomID, protocol.EventMessage, messageView(msg), "")
	h.coalescer.Dirty()

	if msg.DisappearAt != nil {
		disappearAt := *msg.DisappearAt
		messageID := msg.ID
		h.scheduler.Schedule(messageID, disappearAt, func() {
			if room.Redact(messageID) {
				h.broadcastRoom(roomID, protocol.EventMessageDeleted, protocol.MessageDeletedOut{MessageID: messageID}, "")
				h.coalescer.Dirty()
			}
		})
	}
}

func (h *Hub) handleTyping(c *Client, data json.RawMessage, event string) {
	roomID, identity, ok := h.roomAndIdentity(c)
	if !ok {
		return
	}
	h.broadcastRoom(roomID, event, protocol.UserTypingOut{UserID: c.SessionID, UserName: identity}, c.SessionID)
}

func (h *Hub) handleAddReaction(c *Client, data json.RawMessage) {
	roomID, _, ok := h.roomAndIdentity(c)
	if !ok {
		return
	}
	room, ok := h.rooms.Get(roomID)
	if !ok {
		return
	}

	in, ok := decodePayload[protocol.AddReactionIn](data)
	if !ok {
		return
	}

	reactions, found := room.React(c.SessionID, in.MessageID, in.Emoji)
	if !found {
		return
	}

	h.broadcastRoom(roomID, protocol.EventReactionUpdated, protocol.ReactionUpdatedOut{
		MessageID: in.MessageID,
		Reactions: reactions,
	}, "")
	h.coalescer.Dirty()
}

func (h *Hub) handleMarkRead(c *Client, data json.RawMessage) {
	roomID, identity, ok := h.roomAndIdentity(c)
	if !ok {
		return
	}
	room, ok := h.rooms.Get(roomID)
	if !ok {
		return
	}

	in, ok := decodePayload[protocol.MarkReadIn](data)
	if !ok {
		return
	}

	newlyRead := room.MarkRead(c.SessionID, in.MessageIDs)
	if len(newlyRead) == 0 {
		return
	}

	for _, id := range newlyRead {
		h.broadcastRoom(roomID, protocol.EventMessageRead, protocol.MessageReadOut{
			MessageID: id,
			UserID:    c.SessionID,
			UserName:  identity,
		}, c.SessionID)
	}
	h.coalescer.Dirty()
}

func (h *Hub) handleEditMessage(c *Client, data json.RawMessage) {
	roomID, _, ok := h.roomAndIdentity(c)
	if !ok {
		return
	}
	room, ok := h.rooms.Get(roomID)
	if !ok {
		return
	}

	in, ok := decodePayload[protocol.EditMessageIn](data)
	if !ok {
		return
	}

	edited, editedAt := room.Edit(c.SessionID, in.MessageID, in.NewContent, time.Now())
	if !edited {
		return
	}

	h.broadcastRoom(roomID, protocol.EventMessageEdited, protocol.MessageEditedOut{
		MessageID:  in.MessageID,
		NewContent: in.NewContent,
		EditedAt:   toUnixMs(editedAt),
	}, "")
	h.coalescer.Dirty()
}

func (h *Hub) handleDeleteMessage(c *Client, data json.RawMessage) {
	roomID, _, ok := h.roomAndIdentity(c)
	if !ok {
		return
	}
	room, ok := h.rooms.Get(roomID)
	if !ok {
		return
	}

	in, ok := decodePayload[protocol.DeleteMessageIn](data)
	if !ok {
		return
	}

	if !room.Delete(c.SessionID, in.MessageID) {
		return
	}
	h.scheduler.Cancel(in.MessageID)

	h.broadcastRoom(roomID, protocol.EventMessageDeleted, protocol.MessageDeletedOut{MessageID: in.MessageID}, "")
	h.coalescer.Dirty()
}
