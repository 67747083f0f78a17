package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	maxFrameSize   = 64 << 10
)

var (
	// ErrClosed is returned by Send after the connection is gone.
	ErrClosed = errors.New("websocket client closed")
	// ErrBufferFull is returned by Send when the client is not keeping up.
	ErrBufferFull = errors.New("websocket send buffer full")
)

// FrameHandler handles one frame read from the device.
type FrameHandler func(ctx context.Context, data []byte)

// Client represents a single WebSocket connection.
type Client struct {
	hub    *Hub
	conn   *ws.Conn
	logger *slog.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
	userID int64
}

// NewClient creates a Client tied to the given hub and connection.
func NewClient(hub *Hub, conn *ws.Conn, logger *slog.Logger) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		logger: logger,
		send:   make(chan []byte, sendBufferSize),
	}
}

// SetUser ties the connection to a signed-in user, or to nobody with 0.
func (c *Client) SetUser(userID int64) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

func (c *Client) UserID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Send queues v as a JSON text frame without blocking.
func (c *Client) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return c.enqueue(data)
}

func (c *Client) enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Run registers the client, starts the write pump, and runs the read pump,
// passing each frame to handle. It blocks until the connection is closed,
// then unregisters.
func (c *Client) Run(ctx context.Context, handle FrameHandler) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx)
	c.readPump(ctx, handle)
}

// readPump hands every text frame to handle. It returns on error
// (connection close), which triggers cleanup.
func (c *Client) readPump(ctx context.Context, handle FrameHandler) {
	c.conn.SetReadLimit(maxFrameSize)
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			if status := ws.CloseStatus(err); status != ws.StatusNormalClosure && status != ws.StatusGoingAway && ctx.Err() == nil {
				c.logger.Debug("websocket read", "error", err)
			}
			return
		}
		if typ != ws.MessageText {
			continue
		}
		handle(ctx, data)
	}
}

// writePump drains the send channel and writes messages to the WebSocket.
// It also sends periodic pings to detect stale connections.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
