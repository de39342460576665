package services

import (
	"log"
	"sync"

	"registerkaro/internal/models"
)

// ConnectionManager manages all active WebSocket connections
type ConnectionManager struct {
	connections map[string]*models.ClientConnection // connID -> connection
	bySession   map[string]string                   // sessionID -> connID
	mutex       sync.RWMutex
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*models.ClientConnection),
		bySession:   make(map[string]string),
	}
}

// Add adds a new connection
func (cm *ConnectionManager) Add(conn *models.ClientConnection) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.connections[conn.ConnID] = conn
	if conn.SessionID != "" {
		cm.bySession[conn.SessionID] = conn.ConnID
	}
	log.Printf("✅ Connection added: %s (Total: %d)", conn.ConnID, len(cm.connections))
}

// Bind points a session ID at an existing connection. Used when the reconciler
// maps a reconnecting client onto its old session record.
func (cm *ConnectionManager) Bind(sessionID, connID string) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	if conn, exists := cm.connections[connID]; exists {
		if old := conn.Session(); old != "" && cm.bySession[old] == connID {
			delete(cm.bySession, old)
		}
		conn.SetSession(sessionID)
		cm.bySession[sessionID] = connID
	}
}

// Remove removes a connection. The session record itself is preserved in the
// store so the visitor can reconnect.
func (cm *ConnectionManager) Remove(connID string) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	if conn, exists := cm.connections[connID]; exists {
		sid := conn.Session()
		conn.MarkClosed()
		close(conn.WriteChan)
		if cm.bySession[sid] == connID {
			delete(cm.bySession, sid)
		}
		delete(cm.connections, connID)
		log.Printf("❌ Connection removed: %s (Total: %d)", connID, len(cm.connections))
	}
}

// Get retrieves a connection by ID
func (cm *ConnectionManager) Get(connID string) (*models.ClientConnection, bool) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	conn, exists := cm.connections[connID]
	return conn, exists
}

// GetBySession retrieves the live connection for a session, if any
func (cm *ConnectionManager) GetBySession(sessionID string) (*models.ClientConnection, bool) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	connID, exists := cm.bySession[sessionID]
	if !exists {
		return nil, false
	}
	conn, exists := cm.connections[connID]
	return conn, exists
}

// SessionIDs returns the session IDs with a live connection
func (cm *ConnectionManager) SessionIDs() []string {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	ids := make([]string, 0, len(cm.bySession))
	for id := range cm.bySession {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of active connections
func (cm *ConnectionManager) Count() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return len(cm.connections)
}
