package session

import (
	"encoding/json"

	"github.com/zkroom/relay/internal/v1/domain"
	"github.com/zkroom/relay/internal/v1/metrics"
	"github.com/zkroom/relay/internal/v1/protocol"
)

// handleUpdateSettings applies a settings patch. The domain model imposes
// no creator-only gate on this operation (an open question in the source
// left unresolved there; this port preserves that permissiveness rather
// than inventing an authorization rule the original never enforced).
func (h *Hub) handleUpdateSettings(c *Client, data json.RawMessage) {
	roomID, _, ok := h.roomAndIdentity(c)
	if !ok {
		return
	}
	room, ok := h.rooms.Get(roomID)
	if !ok {
		return
	}

	in, ok := decodePayload[protocol.UpdateSettingsIn](data)
	if !ok {
		return
	}

	settings := room.UpdateSettings(domain.SettingsPatch{
		DisappearingMessages: in.DisappearingMessages,
		MaxMembers:           in.MaxMembers,
		IsPrivate:            in.IsPrivate,
		AllowFileSharing:     in.AllowFileSharing,
		AllowVoiceMessages:   in.AllowVoiceMessages,
	})

	h.broadcastRoom(roomID, protocol.EventSettingsUpdated, settingsView(settings), "")
	h.coalescer.Dirty()
}

// handleKickMember evicts a member. Authorization is enforced inside
// domain.Room.Evict against the room's creator identity; a failed check is
// a silent drop, like every other authorization failure on this channel.
func (h *Hub) handleKickMember(c *Client, data json.RawMessage) {
	roomID, identity, ok := h.roomAndIdentity(c)
	if !ok {
		return
	}
	room, ok := h.rooms.Get(roomID)
	if !ok {
		return
	}

	in, ok := decodePayload[protocol.KickMemberIn](data)
	if !ok {
		return
	}

	evicted, remaining := room.Evict(identity, in.TargetID)
	if !evicted {
		return
	}

	h.clients.ClearRoom(in.TargetID)
	h.send(in.TargetID, protocol.EventKicked, protocol.KickedOut{RoomID: roomID})
	h.broadcastRoom(roomID, protocol.EventUserLeft, protocol.UserLeftOut{
		ID:      in.TargetID,
		Members: memberViews(remaining),
	}, in.TargetID)

	metrics.RoomMembers.WithLabelValues(roomID).Set(float64(room.MemberCount()))
}
