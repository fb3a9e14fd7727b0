package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatrelay/chatrelay/internal/routing"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
	sendBuffer     = 64
)

// Client is one WebSocket connection. It tracks the threads it joined so
// they are all left again on disconnect.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan Frame
	logger *slog.Logger

	mu     sync.Mutex
	joined map[string]struct{}
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn, userID string, log *slog.Logger) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan Frame, sendBuffer),
		logger: log,
		joined: make(map[string]struct{}),
	}
}

func (c *Client) UserID() string { return c.userID }

// Send queues a frame without blocking. A full buffer or a closed
// connection drops the frame.
func (c *Client) Send(frame Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// run services the connection until either pump stops.
func (c *Client) run() {
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer c.teardown()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed", slog.String("error", err.Error()))
			}
			return
		}
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Debug("malformed client frame", slog.String("error", err.Error()))
			continue
		}
		c.handleFrame(frame)
	}
}

func (c *Client) handleFrame(frame Frame) {
	if frame.ThreadID == "" {
		return
	}
	switch frame.Event {
	case eventJoinThread:
		c.mu.Lock()
		c.joined[frame.ThreadID] = struct{}{}
		c.mu.Unlock()
		c.hub.Join(frame.ThreadID, c)
	case eventLeaveThread:
		c.mu.Lock()
		delete(c.joined, frame.ThreadID)
		c.mu.Unlock()
		c.hub.Leave(frame.ThreadID, c)
	case routing.EventTypingStart, routing.EventTypingStop:
		// Typing is ephemeral passthrough: relayed to the rest of the
		// room, never persisted.
		c.hub.PublishExcept(frame.ThreadID, c, frame.Event, routing.TypingPayload{
			ThreadID: frame.ThreadID,
			UserID:   c.userID,
		})
	}
}

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
			if err := c.conn.WriteJSON(frame); err != nil {
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

func (c *Client) teardown() {
	c.mu.Lock()
	joined := make([]string, 0, len(c.joined))
	for threadID := range c.joined {
		joined = append(joined, threadID)
	}
	c.joined = make(map[string]struct{})
	alreadyClosed := c.closed
	c.closed = true
	c.mu.Unlock()

	for _, threadID := range joined {
		c.hub.Leave(threadID, c)
	}
	if !alreadyClosed {
		close(c.send)
	}
	_ = c.conn.Close()
}
