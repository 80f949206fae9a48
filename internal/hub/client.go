package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"collaborative-rooms/internal/domain"
	"collaborative-rooms/internal/room"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	// Per-connection outbound buffer.
	sendBufferSize = 256
)

// Client is one websocket connection bound to a room coordinator. It
// implements room.Sender: Send is non-blocking and drops frames for a
// stalled peer rather than ever holding up the coordinator.
type Client struct {
	hub          *Hub
	conn         *websocket.Conn
	coordinator  *room.Coordinator
	connectionID string
	send         chan []byte
	closeOnce    sync.Once
	log          *logrus.Entry
}

// NewClient wraps an upgraded connection.
func NewClient(h *Hub, conn *websocket.Conn, coordinator *room.Coordinator, connectionID string) *Client {
	return &Client{
		hub:          h,
		conn:         conn,
		coordinator:  coordinator,
		connectionID: connectionID,
		send:         make(chan []byte, sendBufferSize),
		log: logrus.WithFields(logrus.Fields{
			"component":     "client",
			"room_id":       coordinator.ID(),
			"connection_id": connectionID,
		}),
	}
}

// ConnectionID returns the per-connection identifier.
func (c *Client) ConnectionID() string { return c.connectionID }

// Send queues a frame for delivery. Reports false when the buffer is full.
func (c *Client) Send(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close tears the connection down; the pumps exit and the read side
// deregisters the participant.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

// Run starts the read and write pumps.
func (c *Client) Run() {
	go c.writePump()
	go c.readPump()
}

// readPump decodes inbound envelopes and hands them to the coordinator one
// at a time. A malformed frame is answered with an error event and never
// takes the connection down.
func (c *Client) readPump() {
	defer func() {
		c.hub.HandleDisconnect(c.coordinator.ID(), c.connectionID)
		c.Close()
		c.log.Debug("Read pump exited")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Warn("Unexpected websocket close")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env domain.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.log.WithError(err).Warn("Malformed envelope")
			if frame, err := domain.NewEvent(domain.EvtError, c.connectionID, map[string]string{"message": "malformed message envelope"}); err == nil {
				c.Send(frame)
			}
			continue
		}
		env.ConnectionID = c.connectionID
		c.coordinator.Dispatch(c.connectionID, &env)
	}
}

// writePump pumps queued frames to the peer and keeps the connection alive
// with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		c.log.Debug("Write pump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.WithError(err).Warn("Write failed")
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
