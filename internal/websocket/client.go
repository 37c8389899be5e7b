package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

type Client struct {
	ID       string
	DeviceID string
	Conn     *websocket.Conn
	Manager  *Manager
	Send     chan []byte

	// missed counts consecutive pushes dropped because Send was full.
	missed atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
}

func NewClient(id, deviceID string, conn *websocket.Conn, manager *Manager) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:       id,
		DeviceID: deviceID,
		Conn:     conn,
		Manager:  manager,
		Send:     make(chan []byte, manager.sendBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Context is cancelled once the connection stops reading.
func (c *Client) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// ReadPump handles client frames until the connection fails or the pong
// deadline passes. Messages are dispatched on this goroutine, so a slow
// request only delays its own connection.
func (c *Client) ReadPump() {
	defer func() {
		if c.cancel != nil {
			c.cancel()
		}
		c.Manager.remove(c)
		c.Conn.Close()
	}()

	if c.Manager.maxMessageSize > 0 {
		c.Conn.SetReadLimit(c.Manager.maxMessageSize)
	}
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WebSocket] read error on %s: %v", c.ID, err)
			}
			break
		}

		// Any inbound frame proves liveness.
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.pongWait))

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[WebSocket] error unmarshaling message from %s: %v", c.ID, err)
			continue
		}
		c.Manager.dispatch(c, &msg)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.Manager.pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[WebSocket] write failed on %s: %v", c.ID, err)
				c.Manager.remove(c)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Manager.remove(c)
				return
			}
		}
	}
}
