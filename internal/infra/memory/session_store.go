package memory

import (
	"context"
	"sync"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

var _ app.SessionRepository = (*SessionStore)(nil)

// SessionStore is an in-memory implementation of app.SessionRepository.
// Each session has its own lock; the store lock only guards the maps.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	players  map[string]string // player id -> session id
}

type sessionEntry struct {
	mu      sync.Mutex
	session *domain.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*sessionEntry),
		players:  make(map[string]string),
	}
}

func (s *SessionStore) Create(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return domain.Conflictf("session %s already exists", session.ID)
	}
	s.sessions[session.ID] = &sessionEntry{session: session.Clone()}
	s.indexPlayersLocked(session)
	return nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (*domain.Session, error) {
	entry, ok := s.entry(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.session.Clone(), nil
}

// Update runs fn on a copy of the session while holding the session lock and
// keeps the copy only if fn succeeds.
func (s *SessionStore) Update(_ context.Context, sessionID string, fn func(*domain.Session) error) (*domain.Session, error) {
	entry, ok := s.entry(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	// Clear may have dropped the entry while we waited for its lock.
	if current, ok := s.entry(sessionID); !ok || current != entry {
		return nil, domain.ErrSessionNotFound
	}

	next := entry.session.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Revision = entry.session.Revision + 1
	entry.session = next

	s.mu.Lock()
	s.indexPlayersLocked(next)
	s.mu.Unlock()
	return next.Clone(), nil
}

func (s *SessionStore) SessionIDForPlayer(_ context.Context, playerID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessionID, ok := s.players[playerID]
	if !ok {
		return "", domain.ErrPlayerNotFound
	}
	return sessionID, nil
}

func (s *SessionStore) ListByQuiz(_ context.Context, quizID string) ([]*domain.Session, error) {
	return s.filter(func(sess *domain.Session) bool { return sess.QuizID == quizID }), nil
}

func (s *SessionStore) ListByOwner(_ context.Context, ownerID string) ([]*domain.Session, error) {
	return s.filter(func(sess *domain.Session) bool { return sess.OwnerID == ownerID }), nil
}

func (s *SessionStore) filter(keep func(*domain.Session) bool) []*domain.Session {
	s.mu.RLock()
	entries := make([]*sessionEntry, 0, len(s.sessions))
	for _, entry := range s.sessions {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	out := make([]*domain.Session, 0)
	for _, entry := range entries {
		entry.mu.Lock()
		if keep(entry.session) {
			out = append(out, entry.session.Clone())
		}
		entry.mu.Unlock()
	}
	return out
}

func (s *SessionStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*sessionEntry)
	s.players = make(map[string]string)
	return nil
}

func (s *SessionStore) entry(sessionID string) (*sessionEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.sessions[sessionID]
	return entry, ok
}

func (s *SessionStore) indexPlayersLocked(session *domain.Session) {
	for _, p := range session.Players {
		s.players[p.ID] = session.ID
	}
}
