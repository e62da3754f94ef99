package runner

import (
	"context"
	"sync"
)

// InMemSessionService is the default SessionService: it tracks which
// session ids exist and for which user, with no external dependency. A
// provider package may supply its own SessionService backed by a real SDK
// session API instead.
type InMemSessionService struct {
	mu       sync.Mutex
	sessions map[string]string // sessionID -> userID
}

// NewInMemSessionService constructs an empty InMemSessionService.
func NewInMemSessionService() *InMemSessionService {
	return &InMemSessionService{sessions: map[string]string{}}
}

// CreateSession records sessionID as belonging to userID. Idempotent.
func (s *InMemSessionService) CreateSession(ctx context.Context, sessionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = userID
	return nil
}

// DeleteSession forgets sessionID. No-op if absent.
func (s *InMemSessionService) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Shutdown clears all tracked sessions.
func (s *InMemSessionService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = map[string]string{}
	return nil
}
