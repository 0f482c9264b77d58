package game

import (
	"errors"
	"sync"

	"github.com/tradequest/game-engine/internal/market"
)

// ErrSessionNotFound is returned when a command names an unknown session.
var ErrSessionNotFound = errors.New("game: session not found")

// Manager is the registry of running sessions. Each session is fully
// isolated; the manager only guards the registry map itself.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	base     *market.Market
	sessions map[string]*Session
}

// NewManager creates a manager whose sessions start from clones of the
// base market.
func NewManager(cfg Config, base *market.Market) *Manager {
	return &Manager{
		cfg:      cfg,
		base:     base,
		sessions: make(map[string]*Session),
	}
}

// Start creates and registers a new session for playerID.
func (m *Manager) Start(playerID string) (*Session, error) {
	s, err := New(m.cfg, playerID, m.base)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s, nil
}

// Get looks up a session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Reset restarts a session's game from scratch against a fresh market.
func (m *Manager) Reset(id string) (*Session, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	s.Reset(m.base)
	return s, nil
}

// Remove drops a session from the registry. Ended games stay registered
// until removed so their final snapshot remains readable.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

// Count reports the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ActiveCount reports the number of registered sessions still in play.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, s := range m.sessions {
		if s.Active() {
			n++
		}
	}
	return n
}
