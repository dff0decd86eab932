package websocket

import (
	"log"
	"sync"

	"classpulse/pkg/types"
)

// Registry tracks live connections per session room, split by role so the
// hub can deliver professor-only detail separately from the student view.
type Registry struct {
	mu                sync.RWMutex
	globalConnections map[string]*Connection            // clientID -> Connection
	sessionProfessors map[string]map[string]*Connection // sessionID -> clientID -> Connection
	sessionStudents   map[string]map[string]*Connection // sessionID -> clientID -> Connection
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		globalConnections: make(map[string]*Connection),
		sessionProfessors: make(map[string]map[string]*Connection),
		sessionStudents:   make(map[string]map[string]*Connection),
	}
}

// RegisterConnection adds an identified connection to the registry. A second
// connection for the same client replaces the first; the old one is closed
// asynchronously so registration never blocks on socket teardown.
func (r *Registry) RegisterConnection(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	if !conn.IsIdentified() {
		return ErrConnectionNotIdentified
	}

	clientID := conn.GetClientID()
	role := conn.GetRole()
	sessionID := conn.GetSessionID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.globalConnections[clientID]; exists {
		go func() {
			if err := existing.Close(); err != nil {
				log.Printf("Failed to close replaced connection: %v", err)
			}
		}()
	}

	r.globalConnections[clientID] = conn

	switch role {
	case types.RoleProfessor:
		if r.sessionProfessors[sessionID] == nil {
			r.sessionProfessors[sessionID] = make(map[string]*Connection)
		}
		r.sessionProfessors[sessionID][clientID] = conn
	case types.RoleStudent:
		if r.sessionStudents[sessionID] == nil {
			r.sessionStudents[sessionID] = make(map[string]*Connection)
		}
		r.sessionStudents[sessionID][clientID] = conn
	}

	return nil
}

// UnregisterConnection removes a connection. Idempotent, and it only removes
// the exact instance currently registered so a stale connection's cleanup
// cannot evict its replacement.
func (r *Registry) UnregisterConnection(conn *Connection) {
	if conn == nil {
		return
	}

	clientID := conn.GetClientID()
	r.mu.Lock()
	defer r.mu.Unlock()

	registered, exists := r.globalConnections[clientID]
	if !exists {
		return
	}

	if registered != conn {
		return
	}

	role := conn.GetRole()
	sessionID := conn.GetSessionID()

	delete(r.globalConnections, clientID)

	switch role {
	case types.RoleProfessor:
		if professors, ok := r.sessionProfessors[sessionID]; ok {
			delete(professors, clientID)
			if len(professors) == 0 {
				delete(r.sessionProfessors, sessionID)
			}
		}
	case types.RoleStudent:
		if students, ok := r.sessionStudents[sessionID]; ok {
			delete(students, clientID)
			if len(students) == 0 {
				delete(r.sessionStudents, sessionID)
			}
		}
	}
}

// GetClientConnection returns the current connection for a client.
func (r *Registry) GetClientConnection(clientID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.globalConnections[clientID]
	return conn, exists
}

// GetSessionConnections returns every connection in a session room.
func (r *Registry) GetSessionConnections(sessionID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var connections []*Connection

	if professors, exists := r.sessionProfessors[sessionID]; exists {
		for _, conn := range professors {
			connections = append(connections, conn)
		}
	}

	if students, exists := r.sessionStudents[sessionID]; exists {
		for _, conn := range students {
			connections = append(connections, conn)
		}
	}

	return connections
}

// GetSessionProfessors returns the professor connections in a session room.
func (r *Registry) GetSessionProfessors(sessionID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var connections []*Connection
	if professors, exists := r.sessionProfessors[sessionID]; exists {
		for _, conn := range professors {
			connections = append(connections, conn)
		}
	}

	return connections
}

// GetSessionStudents returns the student connections in a session room.
func (r *Registry) GetSessionStudents(sessionID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var connections []*Connection
	if students, exists := r.sessionStudents[sessionID]; exists {
		for _, conn := range students {
			connections = append(connections, conn)
		}
	}

	return connections
}

// GetStats reports registry counts for the health endpoint.
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	uniqueSessions := make(map[string]bool)
	for sessionID := range r.sessionProfessors {
		uniqueSessions[sessionID] = true
	}
	for sessionID := range r.sessionStudents {
		uniqueSessions[sessionID] = true
	}

	return map[string]int{
		"total_connections": len(r.globalConnections),
		"active_sessions":   len(uniqueSessions),
	}
}
