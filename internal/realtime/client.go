package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	sendBuffer = 64
)

// IntentHandler dispatches decoded client intents and observes disconnects.
type IntentHandler interface {
	HandleIntent(ctx context.Context, client *Client, intent Intent)
	HandleDisconnect(ctx context.Context, client *Client)
}

// Client wraps a single websocket connection. It stays anonymous until a
// login intent binds it to a username.
type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan Event
	handler IntentHandler
	logger  *slog.Logger

	mu       sync.Mutex
	username string

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient wraps an upgraded websocket connection.
func NewClient(conn *websocket.Conn, handler IntentHandler, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan Event, sendBuffer),
		handler: handler,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// ID returns the connection identifier used in logs.
func (c *Client) ID() string {
	return c.id
}

// SetUsername records the identity this connection is bound to.
func (c *Client) SetUsername(username string) {
	c.mu.Lock()
	c.username = username
	c.mu.Unlock()
}

// Username returns the bound identity, or "" for an anonymous connection.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// Send queues an event for delivery without blocking. It reports false when
// the event was dropped because the client is closed or its buffer is full.
func (c *Client) Send(event Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

// Receive pops the next queued event without blocking. It reports false when
// the queue is empty. Only meaningful while no write pump is draining the
// connection.
func (c *Client) Receive() (Event, bool) {
	select {
	case event := <-c.send:
		return event, true
	default:
		return Event{}, false
	}
}

// Close tears down the connection. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// ReadPump consumes inbound intents until the connection drops, then reports
// the disconnect. It must run in its own goroutine, one per connection.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.handler.HandleDisconnect(ctx, c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read failed", "client", c.id, "error", err)
			}
			return
		}

		var intent Intent
		if err := json.Unmarshal(payload, &intent); err != nil {
			c.logger.Warn("malformed client payload", "client", c.id, "error", err)
			c.Send(Event{Name: EventError, Data: map[string]string{"message": "malformed payload"}})
			continue
		}

		c.handler.HandleIntent(ctx, c, intent)
	}
}

// WritePump drains the send queue onto the wire and keeps the connection
// alive with pings. It must run in its own goroutine, one per connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case event := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			payload, err := json.Marshal(event)
			if err != nil {
				c.logger.Error("marshal outbound event", "event", event.Name, "error", err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
