package server

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/michaelbrown/cmdbox/internal/metrics"
)

// TerminalSession is one connected WebSocket terminal.
type TerminalSession struct {
	ID   string
	conn *websocket.Conn
	mu   sync.Mutex // one writer at a time
}

// WriteJSON sends v to the client.
func (ts *TerminalSession) WriteJSON(v any) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.conn.WriteJSON(v)
}

// SessionManager tracks open terminal sessions so shutdown can close them.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*TerminalSession
	metrics  *metrics.Collector
}

// NewSessionManager creates a new SessionManager. collector may be nil.
func NewSessionManager(collector *metrics.Collector) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*TerminalSession),
		metrics:  collector,
	}
}

// Add registers a connection and returns its session.
func (sm *SessionManager) Add(conn *websocket.Conn) *TerminalSession {
	ts := &TerminalSession{ID: uuid.NewString(), conn: conn}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sessions[ts.ID] = ts
	sm.metrics.TerminalOpened()
	return ts
}

// Get returns a session if it exists.
func (sm *SessionManager) Get(id string) (*TerminalSession, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	ts, ok := sm.sessions[id]
	return ts, ok
}

// Count returns the number of open sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Remove forgets a session and closes its connection.
func (sm *SessionManager) Remove(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if ts, ok := sm.sessions[id]; ok {
		if ts.conn != nil {
			ts.conn.Close()
		}
		delete(sm.sessions, id)
		sm.metrics.TerminalClosed()
	}
}

// CloseAll closes every open session.
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for id, ts := range sm.sessions {
		if ts.conn != nil {
			ts.mu.Lock()
			ts.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			ts.mu.Unlock()
			ts.conn.Close()
		}
		delete(sm.sessions, id)
		sm.metrics.TerminalClosed()
	}
}
