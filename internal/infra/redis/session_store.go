package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"iq-card-service/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Sessions live in a local map; their countdowns and subscribers are in-process.
//   - Redis only holds a liveness marker with a TTL so operators can count live
//     sessions across instances. Nothing about the quiz itself is persisted.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Create(session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID()] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(session.ID()), session.Brand(), s.ttl).Err()
}

// Get returns the local session and refreshes its liveness marker.
func (s *SessionStore) Get(id string) (*app.Session, bool) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok && s.ttl > 0 {
		_ = s.client.Expire(context.Background(), s.key(id), s.ttl).Err()
	}
	return session, ok
}

func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return
	}
	delete(s.sessions, id)
	_ = s.client.Del(context.Background(), s.key(id)).Err()
}

// Sweep removes idle sessions and their liveness markers.
func (s *SessionStore) Sweep(now time.Time, idle time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var evicted []string
	for id, session := range s.sessions {
		if !session.Idle(now, idle) {
			continue
		}
		delete(s.sessions, id)
		evicted = append(evicted, id)
	}
	if len(evicted) == 0 {
		return nil
	}
	keys := make([]string, len(evicted))
	for i, id := range evicted {
		keys[i] = s.key(id)
	}
	_ = s.client.Del(context.Background(), keys...).Err()
	return evicted
}

func (s *SessionStore) key(id string) string {
	return "iq:session:" + id
}
