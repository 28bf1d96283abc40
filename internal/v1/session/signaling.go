package session

import (
	"encoding/json"

	"github.com/zkroom/relay/internal/v1/metrics"
	"github.com/zkroom/relay/internal/v1/protocol"
)

// handleCanvasStroke relays a collaborative-canvas drawing event to every
// other room member. Strokes are ephemeral: never persisted, never replayed
// on join.
func (h *Hub) handleCanvasStroke(c *Client, data json.RawMessage) {
	roomID, _, ok := h.roomAndIdentity(c)
	if !ok {
		return
	}

	in, ok := decodePayload[protocol.CanvasStrokeIn](data)
	if !ok {
		return
	}

	h.broadcastRoom(roomID, protocol.EventCanvasStroke, protocol.CanvasStrokeOut{
		SenderID: c.SessionID,
		Stroke:   in.Stroke,
	}, c.SessionID)
}

func (h *Hub) handleJoinVoice(c *Client, data json.RawMessage) {
	h.broadcastVoiceState(c, protocol.EventUserJoinedVoice)
}

func (h *Hub) handleLeaveVoice(c *Client, data json.RawMessage) {
	h.broadcastVoiceState(c, protocol.EventUserLeftVoice)
}

func (h *Hub) broadcastVoiceState(c *Client, event string) {
	roomID, identity, ok := h.roomAndIdentity(c)
	if !ok {
		return
	}
	h.broadcastRoom(roomID, event, protocol.UserVoiceOut{UserID: c.SessionID, UserName: identity}, c.SessionID)
}

// handleTargetedSignal relays WebRTC call/voice signaling and the PQC
// call-media handshake directly to one target session, never broadcast.
// An unknown or unreachable target is a silent drop, resolved by the
// registry's own Send no-op.
func (h *Hub) handleTargetedSignal(c *Client, event string, data json.RawMessage) {
	roomID, identity, ok := h.roomAndIdentity(c)
	if !ok {
		return
	}
	room, ok := h.rooms.Get(roomID)
	if !ok {
		return
	}

	in, ok := decodePayload[protocol.TargetedSignalIn](data)
	if !ok || in.TargetID == "" {
		return
	}
	if !room.IsMember(in.TargetID) {
		return
	}

	h.send(in.TargetID, event, protocol.TargetedSignalOut{
		SenderID:    c.SessionID,
		SenderName:  identity,
		Signal:      in.Signal,
		MediaSecret: in.MediaSecret,
		MediaPk:     in.MediaPk,
	})
	metrics.SignalMessagesRelayed.WithLabelValues(event).Inc()
}
