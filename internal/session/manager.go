package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultGreeting opens every new conversation.
const DefaultGreeting = "Hello! I can run a short health screening or check an aircraft design " +
	"against airworthiness requirements. Tell me what you'd like to look at and I'll guide you through it."

// ErrSessionNotFound is returned when no live session has the requested id.
var ErrSessionNotFound = errors.New("session not found")

// Manager owns the live sessions of the process.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	greeting string
	now      func() time.Time
}

// NewManager creates a manager that opens sessions with greeting.
func NewManager(greeting string) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		greeting: greeting,
		now:      time.Now,
	}
}

// GetOrCreate returns the session for id, creating it on first use.
func (m *Manager) GetOrCreate(id string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, false
	}
	s = New(id, m.greeting, m.now())
	m.sessions[id] = s
	slog.Info("Conversation session created", "session_id", id)
	return s, true
}

// Acquire returns the session for id with its round lock held and its
// activity refreshed. Callers release it with UnlockRound. A session evicted
// while the caller waited for the lock is skipped in favor of a fresh one.
func (m *Manager) Acquire(id string) (*Session, bool) {
	for {
		s, created := m.GetOrCreate(id)
		s.LockRound()
		if !s.evicted {
			s.Touch(m.now())
			return s, created
		}
		s.UnlockRound()
	}
}

// Get returns the live session for id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete drops the session for id. It reports whether one existed. A round
// running on the session finishes before Delete returns.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	s.LockRound()
	s.evicted = true
	s.UnlockRound()
	slog.Info("Conversation session deleted", "session_id", id)
	return true
}

// evictIdle drops the session for id if it is still idle for longer than
// ttl and no round holds it.
func (m *Manager) evictIdle(id string, ttl time.Duration) bool {
	cutoff := m.now().Add(-ttl)
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || !s.round.TryLock() {
		return false
	}
	defer s.round.Unlock()
	if !s.LastActive().Before(cutoff) {
		return false
	}
	s.evicted = true
	delete(m.sessions, id)
	return true
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Expired returns the ids of sessions idle for longer than ttl. Sessions
// with a round in progress are left out.
func (m *Manager) Expired(ttl time.Duration) []string {
	cutoff := m.now().Add(-ttl)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, s := range m.sessions {
		if s.LastActive().Before(cutoff) && !s.busy() {
			ids = append(ids, id)
		}
	}
	return ids
}
