package session

import (
	"encoding/json"
	"time"

	"github.com/zkroom/relay/internal/v1/metrics"
	"github.com/zkroom/relay/internal/v1/protocol"
)

// handleJoinRoom admits the session into a room, creating the room
// implicitly if this is the first reference to its id. Any prior session
// sharing the same persistent user id is displaced: its room association
// is cleared but its transport connection is left open.
func (h *Hub) handleJoinRoom(c *Client, data json.RawMessage) {
	in, ok := decodePayload[protocol.JoinRoomIn](data)
	if !ok || in.RoomID == "" || in.UserID == "" {
		return
	}

	now := time.Now()
	room, created := h.rooms.GetOrCreate(in.RoomID, in.UserName, now)

	displaced, snapshot := room.Join(c.SessionID, in.UserID, in.UserName, in.AvatarInitials, in.Color, now)
	h.clients.SetRoom(c.SessionID, in.RoomID, in.UserName)

	if displaced != nil {
		h.clients.ClearRoom(displaced.SessionID)
	}

	h.send(c.SessionID, protocol.EventRoomJoined, protocol.RoomJoinedOut{
		RoomID:   in.RoomID,
		RoomName: snapshot.Name,
		Members:  memberViews(snapshot.Members),
		Messages: messageViews(snapshot.RecentMessages(h.recentLimit)),
		Settings: settingsView(snapshot.Settings),
	})

	if self, ok := room.Member(c.SessionID); ok {
		h.broadcastRoom(in.RoomID, protocol.EventUserJoined, protocol.UserJoinedOut{
			User: memberView(self),
		}, c.SessionID)
	}

	metrics.RoomMembers.WithLabelValues(in.RoomID).Set(float64(room.MemberCount()))
	if created {
		metrics.ActiveRooms.Inc()
	}
}
