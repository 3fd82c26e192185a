package domain

import (
	"sync"
	"time"
)

// Session carries the per-connection state: which identity, if any, has
// registered on it. Accessed from the connection's read goroutine and,
// on delivery, from other senders' goroutines.
type Session struct {
	ID           string
	Identity     string
	Registered   bool
	CreatedAt    time.Time
	LastActiveAt time.Time
	mu           sync.RWMutex
}

func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

func (s *Session) RegisterIdentity(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Identity = identity
	s.Registered = true
	s.LastActiveAt = time.Now()
}

func (s *Session) IsRegistered() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Registered
}

func (s *Session) GetIdentity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Identity
}

func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()
}
