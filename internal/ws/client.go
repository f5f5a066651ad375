package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"session-service/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Client wraps one websocket connection. It is the hub-facing Sink: the
// hub enqueues events on the buffered channel and the write pump owns all
// writes to the underlying connection.
type Client struct {
	connID string
	conn   *websocket.Conn
	send   chan models.ServerEvent

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(connID string, conn *websocket.Conn) *Client {
	return &Client{
		connID: connID,
		conn:   conn,
		send:   make(chan models.ServerEvent, sendBuffer),
		done:   make(chan struct{}),
	}
}

// Deliver enqueues an event without ever blocking the hub. A connection
// that cannot drain its buffer is dropped; the client re-syncs from
// snapshots on reconnect.
func (c *Client) Deliver(ev models.ServerEvent) {
	select {
	case c.send <- ev:
	case <-c.done:
	default:
		zap.L().Warn("dropping slow websocket consumer", zap.String("conn_id", c.connID))
		c.close()
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// writePump serializes all writes: queued events and keepalive pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
