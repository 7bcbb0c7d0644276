package memory

import (
	"sync"
	"time"

	"iq-card-service/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Create(session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID()] = session
}

func (s *SessionStore) Get(id string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Sweep removes every session that is idle at now and returns their ids.
func (s *SessionStore) Sweep(now time.Time, idle time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var evicted []string
	for id, session := range s.sessions {
		if session.Idle(now, idle) {
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// Len reports how many sessions are live.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
