// Package chatws serves chat turns over WebSocket connections.
package chatws

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"github.com/ashureev/dynamo-gateway/internal/metrics"
)

// SessionManager tracks the open chat socket of each user/session pair. A new
// socket for the same pair replaces and closes the old one.
type SessionManager struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// GetActive returns the active connection for a user and session.
func (m *SessionManager) GetActive(userID, sessionID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sessions, ok := m.active[userID]; ok {
		return sessions[sessionID]
	}
	return nil
}

// Count returns the number of open sockets.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, sessions := range m.active {
		n += len(sessions)
	}
	return n
}

// Register adds a connection for a user/session.
func (m *SessionManager) Register(userID, sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[userID]; !exists {
		m.active[userID] = make(map[string]*websocket.Conn)
	}

	existing, replaced := m.active[userID][sessionID]
	if replaced && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}

	m.active[userID][sessionID] = conn
	if !replaced {
		metrics.ActiveChatSockets.Inc()
	}
	slog.Info("Chat session registered", "user_id", userID, "session_id", sessionID)
}

// Unregister removes a connection if it is still the current one for its session.
func (m *SessionManager) Unregister(userID, sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions, ok := m.active[userID]
	if !ok {
		return
	}
	if current, exists := sessions[sessionID]; exists && current == conn {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(m.active, userID)
		}
		metrics.ActiveChatSockets.Dec()
		slog.Info("Chat session unregistered", "user_id", userID, "session_id", sessionID)
	}
}

// CloseAll closes every open socket, used on shutdown.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for userID, sessions := range m.active {
		for sid, conn := range sessions {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			metrics.ActiveChatSockets.Dec()
			slog.Info("Chat session closed", "user_id", userID, "session_id", sid)
		}
	}
	m.active = make(map[string]map[string]*websocket.Conn)
}
