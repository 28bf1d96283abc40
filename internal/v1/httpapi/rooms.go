// Package httpapi implements the REST surface that sits alongside the
// websocket event channel: room creation/lookup, file/voice-note upload,
// and the liveness ping the keep-alive prober targets.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/zkroom/relay/internal/v1/domain"
	"github.com/zkroom/relay/internal/v1/protocol"
	"github.com/zkroom/relay/internal/v1/roomstore"
)

// RoomsHandler serves the room-creation and room-lookup endpoints. It shares
// the same Store the websocket join flow uses, so a room created here and a
// room first referenced by a join-room frame are indistinguishable once
// they exist.
type RoomsHandler struct {
	rooms *roomstore.Store
}

func NewRoomsHandler(rooms *roomstore.Store) *RoomsHandler {
	return &RoomsHandler{rooms: rooms}
}

type createRoomRequest struct {
	Name        string `json:"name"`
	CreatorName string `json:"creatorName"`
}

type createRoomResponse struct {
	Success    bool   `json:"success"`
	RoomID     string `json:"roomId"`
	InviteLink string `json:"inviteLink"`
}

// roomMetaResponse is the public metadata GET /api/rooms/:id returns.
type roomMetaResponse struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	MemberCount int               `json:"memberCount"`
	CreatedAt   int64             `json:"createdAt"`
	Settings    protocol.Settings `json:"settings"`
}

// Create handles POST /api/rooms. It mints a fresh room id up front so the
// websocket join flow's implicit-create path and this explicit path never
// collide on the same id.
func (h *RoomsHandler) Create(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	roomID := uuid.NewString()
	h.rooms.Create(roomID, req.Name, req.CreatorName, time.Now())

	c.JSON(http.StatusCreated, createRoomResponse{
		Success:    true,
		RoomID:     roomID,
		InviteLink: "/room/" + roomID,
	})
}

// Get handles GET /api/rooms/:id, returning public room metadata. It never
// includes message history or member identities — those are only ever
// delivered over the authenticated websocket join flow.
func (h *RoomsHandler) Get(c *gin.Context) {
	roomID := c.Param("id")
	room, ok := h.rooms.Get(roomID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	c.JSON(http.StatusOK, roomMetaResponse{
		ID:          roomID,
		Name:        room.Name,
		MemberCount: room.MemberCount(),
		CreatedAt:   room.CreatedAt.UnixMilli(),
		Settings:    toSettings(room.Settings),
	})
}

func toSettings(s domain.Settings) protocol.Settings {
	return protocol.Settings{
		DisappearingMessages: s.DisappearingMessages,
		MaxMembers:           s.MaxMembers,
		IsPrivate:            s.IsPrivate,
		AllowFileSharing:     s.AllowFileSharing,
		AllowVoiceMessages:   s.AllowVoiceMessages,
	}
}
