package app

import (
	"context"
	"log/slog"
	"time"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/joincode"
	"live-quiz-service/internal/protocol"
	"live-quiz-service/internal/scoring"
)

// SessionRepository abstracts where live sessions are registered (in-memory, Redis, etc).
type SessionRepository interface {
	// Create reserves an unused join code and registers the session built for it.
	Create(ctx context.Context, build func(code string) *Session) (*Session, error)
	Get(code string) (*Session, bool)
	Delete(code string)
	List() []*Session
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// GameService contains the host and player use cases, keyed by join code.
type GameService struct {
	sessions SessionRepository
	quizzes  QuizRepository
	opts     SessionOptions
}

func NewGameService(sessions SessionRepository, quizzes QuizRepository, opts SessionOptions) *GameService {
	return &GameService{sessions: sessions, quizzes: quizzes, opts: opts}
}

// CreateSession loads a quiz and opens a lobby owned by hostID.
func (s *GameService) CreateSession(ctx context.Context, hostID, quizID string) (*Session, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := quiz.Validate(); err != nil {
		return nil, err
	}

	opts := s.opts
	hook := s.opts.OnFinished
	opts.OnFinished = func(code string) {
		s.release(code)
		if hook != nil {
			hook(code)
		}
	}
	session, err := s.sessions.Create(ctx, func(code string) *Session {
		return NewSession(code, hostID, quiz, opts)
	})
	if err != nil {
		return nil, err
	}
	slog.Info("session created", "code", session.Code(), "quiz", quiz.ID, "host", hostID, "questions", len(quiz.Questions))
	return session, nil
}

// Join admits a player (or reconnects a known peer ID) into the session with the given code.
func (s *GameService) Join(code, peerID, name string, ch Channel) (*Session, domain.Player, error) {
	session, err := s.lookup(code)
	if err != nil {
		return nil, domain.Player{}, err
	}
	player, err := session.Join(peerID, name, ch)
	if err != nil {
		return nil, domain.Player{}, err
	}
	return session, player, nil
}

func (s *GameService) SubmitAnswer(code, peerID string, questionIndex int, value domain.AnswerValue) (scoring.Result, error) {
	session, err := s.lookup(code)
	if err != nil {
		return scoring.Result{}, err
	}
	return session.SubmitAnswer(peerID, questionIndex, value)
}

func (s *GameService) Disconnect(code, peerID string, ch Channel) error {
	session, err := s.lookup(code)
	if err != nil {
		return err
	}
	return session.Disconnect(peerID, ch)
}

func (s *GameService) StartQuiz(hostID, code string) error {
	session, err := s.owned(hostID, code)
	if err != nil {
		return err
	}
	return session.StartQuiz()
}

func (s *GameService) Advance(hostID, code string) error {
	session, err := s.owned(hostID, code)
	if err != nil {
		return err
	}
	return session.Advance()
}

// End finishes the session early and removes it from the registry.
func (s *GameService) End(hostID, code string) error {
	session, err := s.owned(hostID, code)
	if err != nil {
		return err
	}
	s.sessions.Delete(session.Code())
	return session.End()
}

func (s *GameService) Observe(hostID, code string, ch Channel) (*Session, error) {
	session, err := s.owned(hostID, code)
	if err != nil {
		return nil, err
	}
	return session, session.Observe(ch)
}

func (s *GameService) Snapshot(hostID, code string) (protocol.HostStatePayload, error) {
	session, err := s.owned(hostID, code)
	if err != nil {
		return protocol.HostStatePayload{}, err
	}
	return session.Snapshot()
}

// Standings are public: anyone holding the join code may read them.
func (s *GameService) Standings(code string) ([]domain.Standing, error) {
	session, err := s.lookup(code)
	if err != nil {
		return nil, err
	}
	return session.Standings()
}

// ReapIdle ends every session with no activity since cutoff and returns how many were removed.
func (s *GameService) ReapIdle(cutoff time.Time) int {
	reaped := 0
	for _, session := range s.sessions.List() {
		if session.LastActive().After(cutoff) {
			continue
		}
		s.sessions.Delete(session.Code())
		if err := session.End(); err != nil {
			slog.Debug("idle session already closed", "code", session.Code(), "error", err)
		}
		slog.Info("idle session reaped", "code", session.Code(), "last_active", session.LastActive())
		reaped++
	}
	return reaped
}

// Shutdown closes every live session.
func (s *GameService) Shutdown() {
	for _, session := range s.sessions.List() {
		s.sessions.Delete(session.Code())
		session.Close()
	}
}

func (s *GameService) release(code string) {
	session, ok := s.sessions.Get(code)
	if !ok {
		return
	}
	s.sessions.Delete(code)
	session.Close()
}

// Find returns the live session registered under code.
func (s *GameService) Find(code string) (*Session, error) {
	return s.lookup(code)
}

func (s *GameService) lookup(code string) (*Session, error) {
	session, ok := s.sessions.Get(joincode.Normalize(code))
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *GameService) owned(hostID, code string) (*Session, error) {
	session, err := s.lookup(code)
	if err != nil {
		return nil, err
	}
	if session.HostID() != hostID {
		return nil, domain.ErrForbidden
	}
	return session, nil
}
