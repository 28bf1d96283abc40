package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zkroom/relay/internal/v1/bus"
	"github.com/zkroom/relay/internal/v1/coalescer"
	"github.com/zkroom/relay/internal/v1/metrics"
	"github.com/zkroom/relay/internal/v1/protocol"
	"github.com/zkroom/relay/internal/v1/registry"
	"github.com/zkroom/relay/internal/v1/roomstore"
	"github.com/zkroom/relay/internal/v1/scheduler"
)

// Hub is the central coordinator tying the Connection Registry, the Room
// Store, the Disappearance Scheduler, and the Snapshot Coalescer together
// behind the event channel's WebSocket surface. There is exactly one Hub
// per process. It does not talk to the Persistence Adapter directly — the
// coalescer's save callback, wired at startup, owns that boundary.
type Hub struct {
	rooms       *roomstore.Store
	clients     *registry.Registry
	scheduler   *scheduler.Scheduler
	coalescer   *coalescer.Coalescer
	bus         *bus.Service
	rateLimit   interface{ CheckWebSocket(c *gin.Context) bool }
	upgrader    websocket.Upgrader
	recentLimit int
}

// NewHub wires a Hub from its collaborators. rateLimit may be nil to skip
// websocket connection throttling (e.g. in tests). recentLimit bounds how
// many messages a room-joined reply carries.
func NewHub(rooms *roomstore.Store, clients *registry.Registry, sched *scheduler.Scheduler, coal *coalescer.Coalescer, busService *bus.Service, allowedOrigins []string, rateLimit interface{ CheckWebSocket(c *gin.Context) bool }, recentLimit int) *Hub {
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}

	return &Hub{
		rooms:       rooms,
		clients:     clients,
		scheduler:   sched,
		coalescer:   coal,
		bus:         busService,
		rateLimit:   rateLimit,
		recentLimit: recentLimit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(originSet) == 0 {
					return true
				}
				return originSet[origin]
			},
		},
	}
}

// ServeWs upgrades the HTTP request and starts a session. The websocket
// join-room flow carries no credential check: the only gate here is an
// optional per-IP connection rate limit, which writes its own 429.
func (h *Hub) ServeWs(c *gin.Context) {
	if h.rateLimit != nil && !h.rateLimit.CheckWebSocket(c) {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	sessionID := uuid.NewString()
	client := newClient(h, sessionID, conn)
	h.clients.Register(sessionID, client)
	metrics.IncConnection()

	go client.writePump()
	go client.readPump()
}

// handleDisconnect tears down a session's registry entry and, if it held a
// room membership, removes it from that room and notifies the remaining
// members.
func (h *Hub) handleDisconnect(c *Client) {
	metrics.DecConnection()

	entry, ok := h.clients.Remove(c.SessionID)
	if !ok || entry.RoomID == "" {
		return
	}

	room, ok := h.rooms.Get(entry.RoomID)
	if !ok {
		return
	}
	if room.Disconnect(c.SessionID) {
		metrics.RoomMembers.WithLabelValues(entry.RoomID).Set(float64(room.MemberCount()))
		h.broadcastRoom(entry.RoomID, protocol.EventUserLeft, protocol.UserLeftOut{ID: c.SessionID}, c.SessionID)
	}
}

// route decodes the envelope's data payload for the given event kind and
// dispatches to the matching handler. Unknown events and malformed
// payloads are silent drops — a transport-level error is never echoed to
// the client.
func (h *Hub) route(c *Client, env protocol.Envelope) {
	switch env.Event {
	case protocol.EventJoinRoom:
		h.handleJoinRoom(c, env.Data)
	case protocol.EventSendMessage:
		h.handleSendMessage(c, env.Data)
	case protocol.EventVoiceMessage:
		h.handleVoiceMessage(c, env.Data)
	case protocol.EventTypingStart:
		h.handleTyping(c, env.Data, protocol.EventUserTyping)
	case protocol.EventTypingStop:
		h.handleTyping(c, env.Data, protocol.EventUserStoppedTyping)
	case protocol.EventAddReaction:
		h.handleAddReaction(c, env.Data)
	case protocol.EventMarkRead:
		h.handleMarkRead(c, env.Data)
	case protocol.EventEditMessage:
		h.handleEditMessage(c, env.Data)
	case protocol.EventDeleteMessage:
		h.handleDeleteMessage(c, env.Data)
	case protocol.EventUpdateSettings:
		h.handleUpdateSettings(c, env.Data)
	case protocol.EventKickMember:
		h.handleKickMember(c, env.Data)
	case protocol.EventCanvasStroke:
		h.handleCanvasStroke(c, env.Data)
	case protocol.EventJoinVoice:
		h.handleJoinVoice(c, env.Data)
	case protocol.EventLeaveVoice:
		h.handleLeaveVoice(c, env.Data)
	case protocol.EventVoiceSignal, protocol.EventCallSignal, protocol.EventCallInvite,
		protocol.EventCallAccept, protocol.EventCallReject, protocol.EventCallEnd,
		protocol.EventCallMediaHandshake:
		h.handleTargetedSignal(c, env.Event, env.Data)
	case protocol.EventHandshakeInit:
		h.handleHandshakeInit(c, env.Data)
	case protocol.EventHandshakeResponse:
		h.handleHandshakeResponse(c, env.Data)
	default:
		metrics.WebsocketEvents.WithLabelValues(env.Event, "unknown").Inc()
	}
}

// send encodes payload as an envelope of kind event and pushes it directly
// to sessionID via the registry.
func (h *Hub) send(sessionID, event string, payload any) {
	data, err := protocol.MarshalEnvelope(event, payload)
	if err != nil {
		slog.Error("failed to marshal outbound envelope", "event", event, "error", err)
		return
	}
	h.clients.Send(sessionID, data)
}

// broadcastRoom sends event/payload to every currently connected member of
// roomID, optionally excluding one session (the sender, to avoid echo).
func (h *Hub) broadcastRoom(roomID, event string, payload any, excludeSessionID string) {
	room, ok := h.rooms.Get(roomID)
	if !ok {
		return
	}
	data, err := protocol.MarshalEnvelope(event, payload)
	if err != nil {
		slog.Error("failed to marshal broadcast envelope", "event", event, "error", err)
		return
	}
	for _, m := range room.Members() {
		if m.SessionID == excludeSessionID {
			continue
		}
		h.clients.Send(m.SessionID, data)
	}
	metrics.WebsocketEvents.WithLabelValues(event, "broadcast").Inc()

	if h.bus != nil {
		go h.bus.Publish(context.Background(), roomID, event, payload, excludeSessionID)
	}
}

// DeliverRemote fans a frame received from the cross-process bus out to
// this process's local members of the room. It never re-publishes: the
// originating process already did, and SubscribeAll drops self-echo by
// node id before this is called.
func (h *Hub) DeliverRemote(p bus.PubSubPayload) {
	room, ok := h.rooms.Get(p.RoomID)
	if !ok {
		return
	}
	data, err := protocol.MarshalEnvelope(p.Event, p.Payload)
	if err != nil {
		slog.Error("failed to marshal remote envelope", "event", p.Event, "error", err)
		return
	}
	for _, m := range room.Members() {
		if m.SessionID == p.SenderID {
			continue
		}
		h.clients.Send(m.SessionID, data)
	}
	metrics.WebsocketEvents.WithLabelValues(p.Event, "remote").Inc()
}

// decodePayload unmarshals an envelope's data field into T. A malformed
// payload reports ok=false so the caller can silently drop the event.
func decodePayload[T any](data json.RawMessage) (T, bool) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false
	}
	return v, true
}
