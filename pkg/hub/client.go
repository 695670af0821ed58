package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps inbound messages. Viewers only send pongs.
	maxMessageSize = 4 * 1024

	clientBuffer = 64
)

// Client is a single viewer connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message
	// done is closed when writePump returns.
	done chan struct{}
}

// Serve registers conn with the hub and pumps messages until the viewer
// disconnects or the hub stops. Call it from a websocket handler.
func (h *Hub) Serve(conn *websocket.Conn) {
	h.serve(conn)
}

// serve returns the client once both pumps have stopped using conn.
func (h *Hub) serve(conn *websocket.Conn) *Client {
	c := &Client{
		hub:  h,
		conn: conn,
		send: make(chan Message, clientBuffer),
		done: make(chan struct{}),
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		close(c.done)
		return c
	}
	go c.writePump()
	c.readPump()

	// The handler's conn is recycled once Serve returns.
	<-c.done
	return c
}

// readPump detects disconnection and handles pongs. Unregistering closes
// send, which stops writePump.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer on the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			wsType := websocket.TextMessage
			if message.Binary {
				wsType = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(wsType, message.Data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
