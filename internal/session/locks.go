package session

import "sync"

// Locks hands out one mutex per session identifier. Every state-mutating
// command for a session runs inside that session's critical section, so
// sessions serialize internally while executing independently of each other.
//
// Entries are never removed; the map is bounded by the number of sessions
// the process has touched, which is small at classroom scale.
type Locks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocks creates an empty lock table.
func NewLocks() *Locks {
	return &Locks{locks: make(map[string]*sync.Mutex)}
}

func (l *Locks) get(sessionID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, exists := l.locks[sessionID]
	if !exists {
		m = &sync.Mutex{}
		l.locks[sessionID] = m
	}
	return m
}

// Lock acquires the session's critical section.
func (l *Locks) Lock(sessionID string) {
	l.get(sessionID).Lock()
}

// Unlock releases the session's critical section.
func (l *Locks) Unlock(sessionID string) {
	l.get(sessionID).Unlock()
}
