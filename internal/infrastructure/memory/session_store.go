package memory

import (
	"context"
	"sync"
	"time"

	"github.com/baechuer/account-service/internal/application/account"
	"github.com/baechuer/account-service/internal/domain"
)

type sessionEntry struct {
	profile   account.SessionProfile
	expiresAt time.Time
}

// SessionStore keeps per-session profiles in process memory.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]sessionEntry
	byUser   map[string]map[string]struct{}
	now      func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]sessionEntry),
		byUser:   make(map[string]map[string]struct{}),
		now:      time.Now,
	}
}

func (s *SessionStore) Put(ctx context.Context, sessionID string, p account.SessionProfile, ttl time.Duration) error {
	if sessionID == "" {
		return domain.ErrMissingField("session_id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sessionID] = sessionEntry{profile: p, expiresAt: s.now().Add(ttl)}
	if p.UserID != "" {
		ids, ok := s.byUser[p.UserID]
		if !ok {
			ids = make(map[string]struct{})
			s.byUser[p.UserID] = ids
		}
		ids[sessionID] = struct{}{}
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (account.SessionProfile, error) {
	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if !ok {
		return account.SessionProfile{}, domain.ErrSessionNotFound()
	}
	if !s.now().Before(e.expiresAt) {
		_ = s.Delete(ctx, sessionID)
		return account.SessionProfile{}, domain.ErrSessionNotFound()
	}
	return e.profile, nil
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.sessions[sessionID]; ok {
		s.unindex(e.profile.UserID, sessionID)
	}
	delete(s.sessions, sessionID)
	return nil
}

func (s *SessionStore) DeleteAllForUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.byUser[userID] {
		delete(s.sessions, id)
	}
	delete(s.byUser, userID)
	return nil
}

// caller holds mu
func (s *SessionStore) unindex(userID, sessionID string) {
	ids, ok := s.byUser[userID]
	if !ok {
		return
	}
	delete(ids, sessionID)
	if len(ids) == 0 {
		delete(s.byUser, userID)
	}
}
