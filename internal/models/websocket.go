package models

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// ClientMessage represents a message from the browser
type ClientMessage struct {
	Type       string            `json:"type"` // "message", "inactive", "cookie_id", "client_info"
	Text       string            `json:"text,omitempty"`
	SessionID  string            `json:"session_id,omitempty"` // echoed back on reconnects
	CookieID   string            `json:"cookie_id,omitempty"`
	Duration   int64             `json:"duration,omitempty"` // idle milliseconds reported with "inactive"
	Context    string            `json:"context,omitempty"`  // e.g. "payment_pending"
	ClientInfo map[string]string `json:"client_info,omitempty"`
}

// ServerMessage represents a message pushed to the browser
type ServerMessage struct {
	Type      string `json:"type"` // "message", "follow_up", "show_document_upload", "payment_link", "session_info", "set_cookie", "error"
	Text      string `json:"text,omitempty"`
	Link      string `json:"link,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	CookieID  string `json:"cookie_id,omitempty"`
}

// ClientConnection represents a single live WebSocket connection.
// Exactly one session record is bound to a connection; the record outlives the
// connection so a visitor can reconnect and pick up where they left off.
type ClientConnection struct {
	ConnID    string
	SessionID string
	ClientIP  string
	Conn      *websocket.Conn
	CreatedAt time.Time
	WriteChan chan ServerMessage

	Mutex  sync.Mutex
	closed bool
}

// SafeSend sends a message to WriteChan safely, returning false if the channel
// has already been closed by the connection manager.
func (c *ClientConnection) SafeSend(msg ServerMessage) bool {
	c.Mutex.Lock()
	if c.closed {
		c.Mutex.Unlock()
		return false
	}
	c.Mutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			c.Mutex.Lock()
			c.closed = true
			c.Mutex.Unlock()
		}
	}()

	c.WriteChan <- msg
	return true
}

// Session returns the currently bound session ID
func (c *ClientConnection) Session() string {
	c.Mutex.Lock()
	defer c.Mutex.Unlock()
	return c.SessionID
}

// SetSession rebinds the connection to a session ID (reconciliation)
func (c *ClientConnection) SetSession(id string) {
	c.Mutex.Lock()
	c.SessionID = id
	c.Mutex.Unlock()
}

// MarkClosed marks the connection as closed
func (c *ClientConnection) MarkClosed() {
	c.Mutex.Lock()
	c.closed = true
	c.Mutex.Unlock()
}

// IsClosed returns true if the connection has been marked as closed
func (c *ClientConnection) IsClosed() bool {
	c.Mutex.Lock()
	defer c.Mutex.Unlock()
	return c.closed
}
