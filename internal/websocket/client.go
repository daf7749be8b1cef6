package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Subscribers only send control messages; anything larger is a misbehaving peer.
const maxInboundFrame = 4096

const sendBuffer = 256

// Client is one UI subscriber. Every engine event reaches it as a single
// text frame holding one JSON Message.
type Client struct {
	ID      string
	Conn    *websocket.Conn
	Manager *Manager
	Send    chan []byte

	closeOnce sync.Once
}

func NewClient(id string, conn *websocket.Conn, manager *Manager) *Client {
	return &Client{
		ID:      id,
		Conn:    conn,
		Manager: manager,
		Send:    make(chan []byte, sendBuffer),
	}
}

// Serve runs the subscriber until the peer disconnects or the manager
// stops. The client must already be registered. Serve blocks.
func (c *Client) Serve() {
	go c.deliver()
	c.listen()
}

// listen forwards inbound frames to the manager and unregisters the client
// once the peer stops answering.
func (c *Client) listen() {
	defer func() {
		c.Manager.drop(c)
		c.close()
	}()

	m := c.Manager
	c.Conn.SetReadLimit(maxInboundFrame)
	c.extendRead()
	c.Conn.SetPongHandler(func(string) error {
		c.extendRead()
		return nil
	})

	for {
		_, frame, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Printf("client %s read: %v", c.ID, err)
			}
			return
		}

		select {
		case m.HandleMessage <- &ClientMessage{Client: c, Message: frame}:
		case <-m.done:
			return
		}
	}
}

// deliver writes queued events and keepalive pings. A closed Send means the
// manager let go of the client, so the peer gets a close frame.
func (c *Client) deliver() {
	keepalive := time.NewTicker(c.Manager.pingPeriod)
	defer func() {
		keepalive.Stop()
		c.close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			if !ok {
				c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.write(websocket.TextMessage, frame); err != nil {
				c.Manager.logger.Printf("client %s write: %v", c.ID, err)
				return
			}

		case <-keepalive.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(kind int, data []byte) error {
	c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.writeWait))
	return c.Conn.WriteMessage(kind, data)
}

func (c *Client) extendRead() {
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.pongWait))
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}
