// Package client is the player side of a live quiz: a state machine driven by host broadcasts,
// with automatic reconnection.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/protocol"

	"github.com/cenkalti/backoff/v4"
)

type Phase string

const (
	PhaseJoining        Phase = "joining"
	PhaseWaiting        Phase = "waiting"
	PhaseAnswering      Phase = "answering"
	PhaseAnswered       Phase = "answered"
	PhaseViewingResults Phase = "viewing_results"
)

type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusFailed       Status = "failed"
)

var (
	ErrAlreadyAnswered = errors.New("already answered this question")
	ErrNotAnswering    = errors.New("no question is open")
	ErrReconnectFailed = errors.New("reconnect attempts exhausted")
	ErrJoinRejected    = errors.New("join rejected")
)

const DefaultMaxAttempts = 5

// State is a snapshot of what the player sees.
type State struct {
	Phase  Phase
	Status Status
	// ReconnectAttempts counts redials since the last welcome.
	ReconnectAttempts int
	PeerID            string
	Name              string
	QuestionIndex     int
	Total             int
	Question          *domain.RedactedQuestion
	RemainingMs       int64
	SelectedAnswer    *domain.AnswerValue
	Score             int
	LastReveal        *protocol.RevealPayload
	Standings         []domain.Standing
	Finished          bool
	LastError         *protocol.ErrorPayload
}

type Options struct {
	Code   string
	Name   string
	PeerID string
	Dialer Dialer
	// NewBackOff builds the delay schedule between reconnect attempts.
	NewBackOff  func() backoff.BackOff
	MaxAttempts uint64
	// OnState is called after every state change, outside the player's lock.
	OnState func(State)
}

type Player struct {
	opts Options

	mu      sync.Mutex
	state   State
	conn    Conn
	pending *protocol.AnswerPayload
}

func NewPlayer(opts Options) *Player {
	if opts.NewBackOff == nil {
		opts.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = 0
			return b
		}
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	return &Player{
		opts: opts,
		state: State{
			Phase:         PhaseJoining,
			Status:        StatusConnecting,
			PeerID:        opts.PeerID,
			Name:          opts.Name,
			QuestionIndex: -1,
		},
	}
}

// State returns a copy of the current state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SubmitAnswer moves to answered immediately and sends the answer. If the connection is down
// the answer is kept and sent once after the next successful join.
func (p *Player) SubmitAnswer(value domain.AnswerValue) error {
	p.mu.Lock()
	switch p.state.Phase {
	case PhaseAnswering:
	case PhaseAnswered:
		p.mu.Unlock()
		return ErrAlreadyAnswered
	default:
		p.mu.Unlock()
		return ErrNotAnswering
	}
	p.state.Phase = PhaseAnswered
	p.state.SelectedAnswer = &value
	msg := protocol.AnswerPayload{QuestionIndex: p.state.QuestionIndex, Value: value}
	conn := p.conn
	state := p.state
	if conn == nil {
		p.pending = &msg
	}
	p.mu.Unlock()
	p.notify(state)

	if conn == nil {
		return nil
	}
	if err := conn.WriteJSON(protocol.Message{Type: protocol.TypeAnswer, Payload: msg}); err != nil {
		slog.Debug("answer send failed, will retry after reconnect", "index", msg.QuestionIndex, "error", err)
		p.mu.Lock()
		p.pending = &msg
		p.mu.Unlock()
	}
	return nil
}

// Run connects, follows the session, and reconnects on connection loss until the quiz finishes,
// the join is rejected, ctx is cancelled, or reconnect attempts run out.
func (p *Player) Run(ctx context.Context) error {
	b := backoff.WithContext(backoff.WithMaxRetries(p.opts.NewBackOff(), p.opts.MaxAttempts), ctx)
	for {
		err := p.session(ctx)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrJoinRejected):
			p.setStatus(StatusFailed)
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		}

		if p.State().Status == StatusConnected {
			b.Reset()
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.setStatus(StatusFailed)
			return fmt.Errorf("%w: %v", ErrReconnectFailed, err)
		}
		p.update(func(s *State) {
			s.Status = StatusReconnecting
			s.ReconnectAttempts++
		})
		slog.Info("connection lost, reconnecting", "code", p.opts.Code, "in", wait, "error", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// session runs one connection. It returns nil once the quiz has finished.
func (p *Player) session(ctx context.Context) error {
	conn, err := p.opts.Dialer.Dial(ctx, p.opts.Code)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer func() {
		p.mu.Lock()
		p.conn = nil
		p.mu.Unlock()
		_ = conn.Close()
	}()

	p.mu.Lock()
	join := protocol.JoinPayload{Name: p.state.Name, PeerID: p.state.PeerID}
	p.mu.Unlock()
	if err := conn.WriteJSON(protocol.Message{Type: protocol.TypeJoin, Payload: join}); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	welcomed := false
	for {
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if p.State().Finished {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if env.Type == protocol.TypeError && !welcomed {
			var payload protocol.ErrorPayload
			_ = env.Decode(&payload)
			p.update(func(s *State) { s.LastError = &payload })
			return fmt.Errorf("%w: %s", ErrJoinRejected, payload.Code)
		}
		if env.Type == protocol.TypeWelcome {
			welcomed = true
			p.mu.Lock()
			p.conn = conn
			p.mu.Unlock()
		}
		if err := p.apply(conn, env); err != nil {
			slog.Debug("ignoring malformed message", "type", env.Type, "error", err)
		}
	}
}

// apply maps one host broadcast onto the player state.
func (p *Player) apply(conn Conn, env protocol.Envelope) error {
	switch env.Type {
	case protocol.TypeWelcome:
		var m protocol.WelcomePayload
		if err := env.Decode(&m); err != nil {
			return err
		}
		p.update(func(s *State) {
			s.Status = StatusConnected
			s.ReconnectAttempts = 0
			s.PeerID = m.PeerID
			s.Name = m.Name
			s.Score = m.Score
			if s.Phase == PhaseJoining {
				s.Phase = PhaseWaiting
			}
		})
	case protocol.TypeLobby:
		p.update(func(s *State) { s.Phase = PhaseWaiting })
	case protocol.TypeQuestion:
		var m protocol.QuestionPayload
		if err := env.Decode(&m); err != nil {
			return err
		}
		resend := p.takePending(m)
		p.update(func(s *State) {
			if s.QuestionIndex != m.Index {
				s.SelectedAnswer = nil
			}
			q := m.Question
			s.Question = &q
			s.QuestionIndex = m.Index
			s.Total = m.Total
			s.RemainingMs = m.RemainingMs
			s.LastReveal = nil
			switch {
			case m.Answered, resend != nil:
				s.Phase = PhaseAnswered
			default:
				s.Phase = PhaseAnswering
			}
		})
		if resend != nil {
			if err := conn.WriteJSON(protocol.Message{Type: protocol.TypeAnswer, Payload: *resend}); err != nil {
				slog.Debug("answer resend failed", "index", resend.QuestionIndex, "error", err)
			}
		}
	case protocol.TypeReveal:
		var m protocol.RevealPayload
		if err := env.Decode(&m); err != nil {
			return err
		}
		p.update(func(s *State) {
			s.Phase = PhaseViewingResults
			s.LastReveal = &m
			s.Score = m.TotalScore
		})
	case protocol.TypeSummary:
		var m protocol.SummaryPayload
		if err := env.Decode(&m); err != nil {
			return err
		}
		p.update(func(s *State) {
			s.Phase = PhaseWaiting
			s.Standings = m.Standings
			if m.Self != nil {
				s.Score = m.Self.Score
			}
		})
	case protocol.TypeFinished:
		var m protocol.FinishedPayload
		if err := env.Decode(&m); err != nil {
			return err
		}
		p.update(func(s *State) {
			s.Phase = PhaseViewingResults
			s.Finished = true
			s.Standings = m.Standings
			if m.Self != nil {
				s.Score = m.Self.Score
			}
		})
	case protocol.TypeAnswerAck:
		var m protocol.AnswerAckPayload
		if err := env.Decode(&m); err != nil {
			return err
		}
		if !m.Accepted {
			p.update(func(s *State) { s.LastError = &protocol.ErrorPayload{Code: m.Code} })
		}
	case protocol.TypeError:
		var m protocol.ErrorPayload
		if err := env.Decode(&m); err != nil {
			return err
		}
		p.update(func(s *State) { s.LastError = &m })
	}
	return nil
}

// takePending returns the unsent answer if it belongs to the replayed question and the
// host has not recorded one. The pending answer is cleared either way.
func (p *Player) takePending(m protocol.QuestionPayload) *protocol.AnswerPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	pending := p.pending
	p.pending = nil
	if pending == nil || pending.QuestionIndex != m.Index || m.Answered {
		return nil
	}
	return pending
}

func (p *Player) setStatus(status Status) {
	p.update(func(s *State) { s.Status = status })
}

func (p *Player) update(fn func(*State)) {
	p.mu.Lock()
	fn(&p.state)
	state := p.state
	p.mu.Unlock()
	p.notify(state)
}

func (p *Player) notify(state State) {
	if p.opts.OnState != nil {
		p.opts.OnState(state)
	}
}
