package ws

import (
	"time"

	"github.com/gorilla/websocket"

	"healthboard/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4 * 1024
)

// Client bridges one websocket connection and the hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message

	heartbeat time.Duration
	logger    *logger.Logger
}

// NewClient wraps an upgraded connection. heartbeat controls the ping
// interval; a peer that misses two heartbeats is considered gone.
func NewClient(hub *Hub, conn *websocket.Conn, heartbeat time.Duration, log *logger.Logger) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan Message, 256),
		heartbeat: heartbeat,
		logger:    log,
	}
}

// Start registers the client and begins its read and write pumps.
func (c *Client) Start() {
	c.hub.register <- c
	go c.writePump()
	go c.readPump()
}

func (c *Client) pongWait() time.Duration {
	return 2 * c.heartbeat
}

// readPump drains inbound messages. Clients only ever send pings; anything
// else is ignored. Exit unregisters the client.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait())); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Warn("Unexpected websocket close")
			}
			return
		}

		if msg.Type == MessageTypePing {
			select {
			case c.send <- Message{Type: MessageTypePong}:
			default:
			}
		}
	}
}

// writePump writes queued messages and periodic heartbeats. A closed send
// channel means the hub dropped the client.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.heartbeat)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
