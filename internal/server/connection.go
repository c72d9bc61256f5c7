package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/gravitas-games/prodsim/internal/network"
	"github.com/gravitas-games/prodsim/pkg/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

// Connection represents a WebSocket connection to an observer
type Connection struct {
	ws      *websocket.Conn
	session *Session

	observer *models.Observer

	// Buffered channel for outbound messages
	send   chan []byte
	sendMu sync.Mutex
	closed bool

	// Throttles transfer_progress; other messages are never throttled
	progress *rate.Limiter
	dropped  int

	closeOnce sync.Once
}

// NewConnection creates a connection for an authenticated observer
func NewConnection(ws *websocket.Conn, session *Session, observer *models.Observer, sendBuffer int, progress *rate.Limiter) *Connection {
	return &Connection{
		ws:       ws,
		session:  session,
		observer: observer,
		send:     make(chan []byte, sendBuffer),
		progress: progress,
	}
}

// Observer returns the connected observer
func (c *Connection) Observer() *models.Observer { return c.observer }

// Dropped returns how many messages overflowed the send buffer
func (c *Connection) Dropped() int {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.dropped
}

// Handle manages the connection lifecycle until the peer goes away or
// done is closed.
func (c *Connection) Handle(done <-chan struct{}) {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.join()

	go c.writePump(done)
	c.readPump() // Blocking
}

func (c *Connection) join() {
	c.SendMessage(&network.ServerMessage{
		Type: network.MsgTypeWelcome,
		Payload: network.WelcomePayload{
			ObserverID:    c.observer.ID,
			Username:      c.observer.Username,
			SessionID:     c.session.ID,
			SessionStatus: c.session.GetStatus(),
		},
	})
	c.session.AddObserver(c)
	if err := c.session.SendSnapshot(c); err != nil {
		c.SendError(network.ErrCodeBusy, err.Error())
	}
}

// readPump pumps messages from the WebSocket connection to the session
func (c *Connection) readPump() {
	defer c.Close()

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}

		var clientMsg network.ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			log.Printf("Failed to parse client message: %v", err)
			c.SendError(network.ErrCodeInvalidMessage, "Failed to parse message")
			continue
		}

		c.handleMessage(&clientMsg)
	}
}

// writePump pumps messages from the send channel to the WebSocket connection
func (c *Connection) writePump(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("WebSocket write error: %v", err)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}

// handleMessage routes messages to appropriate handlers
func (c *Connection) handleMessage(msg *network.ClientMessage) {
	switch msg.Type {
	case network.MsgTypeEnterStorage:
		c.handleEnterStorage(msg.Payload)

	case network.MsgTypeExitStorage:
		c.handleExitStorage()

	case network.MsgTypeSnapshot:
		if err := c.session.SendSnapshot(c); err != nil {
			c.SendError(network.ErrCodeBusy, err.Error())
		}

	case network.MsgTypePing:
		c.handlePing()

	default:
		log.Printf("Unknown message type: %s", msg.Type)
		c.SendError(network.ErrCodeUnknownType, "Unknown message type")
	}
}

func (c *Connection) handleEnterStorage(payload json.RawMessage) {
	if !c.observer.CanControl() {
		c.SendError(network.ErrCodeReadOnly, "Observer may not control the player")
		return
	}

	var p network.EnterStoragePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.SendError(network.ErrCodeInvalidPayload, "Invalid enter_storage payload")
		return
	}

	if err := c.session.EnterStorage(p, c.SendError); err != nil {
		c.SendError(network.ErrCodeInvalidPayload, err.Error())
	}
}

func (c *Connection) handleExitStorage() {
	if !c.observer.CanControl() {
		c.SendError(network.ErrCodeReadOnly, "Observer may not control the player")
		return
	}
	if err := c.session.ExitStorage(); err != nil {
		c.SendError(network.ErrCodeBusy, err.Error())
	}
}

func (c *Connection) handlePing() {
	c.SendMessage(&network.ServerMessage{
		Type:    network.MsgTypePong,
		Payload: network.PongPayload{Timestamp: time.Now().Unix()},
	})
}

// SendMessage sends a message to the client. Messages are dropped when
// the send buffer is full or the connection is closed.
func (c *Connection) SendMessage(msg *network.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal message: %v", err)
		return
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		c.dropped++
		log.Printf("Send buffer full for %s, dropping %s", c.observer.ID, msg.Type)
	}
}

// SendProgress sends a progress message if the connection's limiter
// allows it.
func (c *Connection) SendProgress(msg *network.ServerMessage) {
	if c.progress != nil && !c.progress.Allow() {
		return
	}
	c.SendMessage(msg)
}

// SendError sends an error message to the client
func (c *Connection) SendError(code, message string) {
	c.SendMessage(&network.ServerMessage{
		Type: network.MsgTypeError,
		Payload: network.ErrorPayload{
			Code:    code,
			Message: message,
		},
	})
}

// Close unregisters the connection and closes it
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.session.RemoveObserver(c.observer.ID)

		c.sendMu.Lock()
		c.closed = true
		close(c.send)
		c.sendMu.Unlock()

		if c.ws != nil {
			c.ws.Close()
		}
	})
}
