package memory

import (
	"context"
	"fmt"
	"sync"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/joincode"
)

const maxCodeAttempts = 16

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
	newCode  func() (string, error)
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.Session),
		newCode:  joincode.New,
	}
}

func (s *SessionStore) Create(_ context.Context, build func(code string) *app.Session) (*app.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return nil, err
		}
		if _, taken := s.sessions[code]; taken {
			continue
		}
		session := build(code)
		s.sessions[code] = session
		return session, nil
	}
	return nil, fmt.Errorf("no free join code after %d attempts", maxCodeAttempts)
}

func (s *SessionStore) Get(code string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[code]
	return session, ok
}

func (s *SessionStore) Delete(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, code)
}

func (s *SessionStore) List() []*app.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}
