package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"quizroom/internal/anticheat"
	"quizroom/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // 64 KB
)

type Client struct {
	Hub         *Hub
	Conn        *websocket.Conn
	Send        chan []byte
	UserID      string
	DisplayName string
	RoomID      string
	IsHost      bool

	// Per-connection anti-cheat state. The feed holds alerts about everyone
	// else; the detector tracks this user's own focus episodes. The detector
	// is touched from the hub's run loop, the join goroutine, and
	// subscription callbacks, so every access goes through detMu.
	Feed *anticheat.Feed

	detMu    sync.Mutex
	detector *anticheat.Detector

	// sendMu serializes SendMessage against CloseSend so nothing writes to
	// Send after it is closed.
	sendMu sync.Mutex
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, userID, displayName, roomID string, isHost bool) *Client {
	return &Client{
		Hub:         hub,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		UserID:      userID,
		DisplayName: displayName,
		RoomID:      roomID,
		IsHost:      isHost,
		Feed:        anticheat.NewFeed(userID),
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Failed to unmarshal message: %v", err)
			c.SendError("Invalid message format")
			continue
		}

		c.Hub.HandleMessage <- &ClientMessage{
			Client:  c,
			Message: msg,
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// AttachDetector arms focus tracking for the given session, replacing any
// detector from an earlier session.
func (c *Client) AttachDetector(sessionID string, threshold time.Duration, active bool) {
	c.detMu.Lock()
	defer c.detMu.Unlock()
	c.detector = anticheat.NewDetector(sessionID, c.UserID, threshold)
	if active {
		c.detector.SetGameActive(true)
	}
}

// SetGameActive toggles the detector's game window. Returns false when no
// detector is attached yet.
func (c *Client) SetGameActive(active bool) bool {
	c.detMu.Lock()
	defer c.detMu.Unlock()
	if c.detector == nil {
		return false
	}
	c.detector.SetGameActive(active)
	return true
}

func (c *Client) FocusLost(at time.Time) {
	c.detMu.Lock()
	defer c.detMu.Unlock()
	if c.detector != nil {
		c.detector.FocusLost(at)
	}
}

func (c *Client) FocusRegained(at time.Time) *models.CheatEvent {
	c.detMu.Lock()
	defer c.detMu.Unlock()
	if c.detector == nil {
		return nil
	}
	return c.detector.FocusRegained(at)
}

// FlushDetector closes out an episode still open when the connection drops.
func (c *Client) FlushDetector(at time.Time) *models.CheatEvent {
	c.detMu.Lock()
	defer c.detMu.Unlock()
	if c.detector == nil {
		return nil
	}
	return c.detector.Flush(at)
}

func (c *Client) HasDetector() bool {
	c.detMu.Lock()
	defer c.detMu.Unlock()
	return c.detector != nil
}

func (c *Client) SendMessage(msgType MessageType, payload any) {
	msg := Message{
		Type:    msgType,
		Payload: payload,
	}
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
	case c.Send <- data:
	default:
		log.Printf("Client send channel full, dropping message for user %s", c.UserID)
	}
}

// CloseSend shuts the outbound channel exactly once. Late senders, like the
// join goroutine finishing after an unregister, become no-ops.
func (c *Client) CloseSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

func (c *Client) SendError(message string) {
	c.SendMessage(MessageTypeError, ErrorPayload{Message: message})
}
