package session

import (
	"encoding/json"

	"github.com/zkroom/relay/internal/v1/metrics"
	"github.com/zkroom/relay/internal/v1/protocol"
)

// handleHandshakeInit broadcasts a new member's PQC public key to every
// other room member so each can independently complete a key exchange with
// them. The relay never sees key material in cleartext form it could act
// on — it only forwards opaque blobs.
func (h *Hub) handleHandshakeInit(c *Client, data json.RawMessage) {
	roomID, _, ok := h.roomAndIdentity(c)
	if !ok {
		return
	}

	in, ok := decodePayload[protocol.HandshakeInitIn](data)
	if !ok || in.Pk == "" {
		return
	}

	h.broadcastRoom(roomID, protocol.EventHandshakeRequest, protocol.HandshakeRequestOut{
		SenderID: c.SessionID,
		Pk:       in.Pk,
	}, c.SessionID)
	metrics.HandshakeMessagesRelayed.WithLabelValues("init").Inc()
}

// handleHandshakeResponse forwards a completed key-exchange ciphertext to
// the session that originated the handshake.
func (h *Hub) handleHandshakeResponse(c *Client, data json.RawMessage) {
	roomID, _, ok := h.roomAndIdentity(c)
	if !ok {
		return
	}
	room, ok := h.rooms.Get(roomID)
	if !ok {
		return
	}

	in, ok := decodePayload[protocol.HandshakeResponseIn](data)
	if !ok || in.TargetID == "" {
		return
	}
	if !room.IsMember(in.TargetID) {
		return
	}

	h.send(in.TargetID, protocol.EventHandshakeComplete, protocol.HandshakeCompleteOut{
		Ciphertext:   in.Ciphertext,
		EncryptedKey: in.EncryptedKey,
	})
	metrics.HandshakeMessagesRelayed.WithLabelValues("response").Inc()
}
