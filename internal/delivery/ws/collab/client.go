package ws_collab

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ekuzmich/collabrun/internal/bus"
	"github.com/ekuzmich/collabrun/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024
	sendBuffer     = 256
)

type Client struct {
	gateway *Gateway
	conn    *websocket.Conn
	send    chan bus.Event
	connID  string
	userID  string

	// guarded by the hub's mutex
	topics map[string]bool

	// sendMu guards send against enqueues racing shutdown; once closed
	// is set the channel is gone and events for this client are dropped.
	sendMu sync.Mutex
	closed bool
}

func newClient(g *Gateway, conn *websocket.Conn, userID string) *Client {
	return &Client{
		gateway: g,
		conn:    conn,
		send:    make(chan bus.Event, sendBuffer),
		connID:  uuid.NewString(),
		userID:  userID,
		topics:  make(map[string]bool),
	}
}

// enqueue hands an event to the write pump. A client that cannot keep up
// gets dropped rather than allowed to stall fanout; anything addressed to
// a dropped client is discarded until the read pump detaches it.
func (c *Client) enqueue(evt bus.Event) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- evt:
	default:
		c.closed = true
		close(c.send)
	}
}

func (c *Client) shutdown() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) readPump() {
	defer func() {
		c.gateway.hub.Detach(c)
		c.shutdown()
		c.conn.Close()
		metrics.WsConnections.Dec()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.enqueue(bus.Event{Type: bus.EventError, Payload: "malformed message"})
			continue
		}
		c.gateway.dispatch(c, msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(evt); err != nil {
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
