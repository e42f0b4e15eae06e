package websocket

import (
	"context"
	"log/slog"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// Client is one change-feed subscriber. The feed is one way: a peer that
// sends a data message is disconnected with StatusPolicyViolation.
type Client struct {
	hub    *Hub
	conn   *ws.Conn
	send   chan []byte
	logger *slog.Logger
}

func NewClient(hub *Hub, conn *ws.Conn, logger *slog.Logger) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: logger,
	}
}

// Run registers the client and writes broadcasts until the peer goes away or
// ctx is done.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	// CloseRead answers pings and close frames and cancels ctx when the
	// peer disconnects.
	ctx = c.conn.CloseRead(ctx)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.Close(ws.StatusGoingAway, "")
				return
			}
			if err := c.write(ctx, msg); err != nil {
				c.logger.Debug("change feed write failed", "error", err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.logger.Debug("change feed ping failed", "error", err)
				return
			}
		case <-ctx.Done():
			c.conn.Close(ws.StatusNormalClosure, "")
			return
		}
	}
}

func (c *Client) write(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, ws.MessageText, msg)
}
