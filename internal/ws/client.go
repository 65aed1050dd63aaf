package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sealchat/backend/internal/auth"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Envelopes carry base64 encrypted blobs; cap well above the
	// expected media-free message size.
	maxMessageSize = 256 * 1024

	sendBufferSize = 64
)

// Client is one authenticated websocket connection. The principal is
// populated at handshake time and immutable afterwards.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	principal auth.Principal

	// sendMu orders trySend against closeSend so a fan-out caught
	// mid-delivery can never write to a closed channel.
	sendMu sync.Mutex
	closed bool
	send   chan []byte
}

func newClient(hub *Hub, conn *websocket.Conn, principal auth.Principal) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		principal: principal,
		send:      make(chan []byte, sendBufferSize),
	}
}

// UserID returns the authenticated owner of this socket.
func (c *Client) UserID() string { return c.principal.UserID }

// SessionID returns the session this socket authenticated with.
func (c *Client) SessionID() string { return c.principal.SessionID }

// trySend enqueues a frame without blocking. Reports false when the
// buffer is full, signalling a consumer too slow to keep. Frames for a
// client already detached from the hub are dropped silently.
func (c *Client) trySend(frame []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// closeSend shuts down the outbound channel, letting writePump finish.
// Idempotent; concurrent deliveries see the closed flag instead of the
// closed channel.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump consumes inbound frames until the connection drops, feeding
// each envelope to the hub. Runs once per connection.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(ctx, c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.hub.HandleEnvelope(ctx, c, raw)
	}
}

// writePump drains the send buffer onto the wire and keeps the
// connection alive with pings. Runs once per connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
