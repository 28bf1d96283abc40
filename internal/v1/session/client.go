// Package session implements the bidirectional event channel: the
// WebSocket transport, the Event Router that authenticates and dispatches
// every inbound frame, and the fan-out back to connected members.
package session

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zkroom/relay/internal/v1/metrics"
	"github.com/zkroom/relay/internal/v1/protocol"
)

// wsConnection is the narrow surface Client needs from *websocket.Conn,
// named separately so tests can substitute a fake connection.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	SetReadLimit(limit int64)
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256

	// maxFrameBytes bounds a single inbound frame. Voice clips arrive
	// in-band as base64, so the ceiling is generous.
	maxFrameBytes = 10 << 20
)

// Client represents one live WebSocket connection. It implements
// registry.Sender so the Connection Registry can fan out to it without
// importing this package.
type Client struct {
	SessionID string

	hub *Hub
	ws  wsConnection

	send chan []byte
}

// Send implements registry.Sender. It never blocks: a full buffer means a
// slow or dead client, and the message is dropped rather than stalling the
// room's broadcast fan-out.
func (c *Client) Send(data []byte) {
	select {
	case c.send <- data:
	default:
		slog.Warn("client send buffer full, dropping message", "sessionId", c.SessionID)
	}
}

func newClient(h *Hub, sessionID string, ws wsConnection) *Client {
	return &Client{
		SessionID: sessionID,
		hub:       h,
		ws:        ws,
		send:      make(chan []byte, sendBufferSize),
	}
}

// readPump decodes inbound frames and hands them to the hub's router. It
// owns the connection's read side and terminates the session on any
// transport error. A frame whose outer envelope does not decode is skipped
// (per-event payload errors are handled inside the router as silent drops).
func (c *Client) readPump() {
	defer func() {
		c.hub.handleDisconnect(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxFrameBytes)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		start := time.Now()
		c.hub.route(c, env)
		metrics.EventProcessingDuration.WithLabelValues(env.Event).Observe(time.Since(start).Seconds())
	}
}

// writePump owns the connection's write side: it drains the send channel
// and sends periodic pings so intermediaries don't reap an idle connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
