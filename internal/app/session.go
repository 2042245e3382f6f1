package app

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/protocol"
	"live-quiz-service/internal/scoring"

	"github.com/google/uuid"
)

const maxNameLength = 32

// Channel is the session's end of one transport link (a player or a host console).
// Send must not block; implementations drop the link when their buffer is full.
type Channel interface {
	Send(msg protocol.Message) error
	Close() error
}

// Timer is the part of *time.Timer the session uses.
type Timer interface {
	Stop() bool
}

// SessionOptions tunes a session. Zero values fall back to defaults.
type SessionOptions struct {
	Policy scoring.Policy
	// RevealDelay and SummaryDelay auto-advance those phases; zero leaves it to the host.
	RevealDelay   time.Duration
	SummaryDelay  time.Duration
	StandingsTopN int
	Now           func() time.Time
	AfterFunc     func(d time.Duration, f func()) Timer
	OnFinished    func(code string)
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.Policy.Speed == nil || o.Policy.Slider == nil {
		o.Policy = scoring.DefaultPolicy()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.AfterFunc == nil {
		o.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	return o
}

type request struct {
	apply func() error
	reply chan error
}

// Session is one live game. All state below the events channel is owned by the run goroutine;
// every join, answer, disconnect, host action and timer fire is queued and applied in order.
type Session struct {
	code   string
	hostID string
	quiz   domain.Quiz
	opts   SessionOptions

	events     chan request
	done       chan struct{}
	closeOnce  sync.Once
	lastActive atomic.Int64

	closing           bool
	phase             domain.Phase
	index             int
	questionStartedAt time.Time
	players           map[string]*domain.Player
	order             []string
	channels          map[string]Channel
	observers         map[Channel]struct{}
	answers           map[string]domain.Answer
	results           map[string]scoring.Result
	timer             Timer
	timerSeq          uint64
}

// NewSession starts the session's event loop. Callers must Close or End it.
func NewSession(code, hostID string, quiz domain.Quiz, opts SessionOptions) *Session {
	opts = opts.withDefaults()
	s := &Session{
		code:      code,
		hostID:    hostID,
		quiz:      quiz,
		opts:      opts,
		events:    make(chan request),
		done:      make(chan struct{}),
		phase:     domain.PhaseLobby,
		index:     -1,
		players:   make(map[string]*domain.Player),
		channels:  make(map[string]Channel),
		observers: make(map[Channel]struct{}),
		answers:   make(map[string]domain.Answer),
		results:   make(map[string]scoring.Result),
	}
	s.lastActive.Store(opts.Now().UnixNano())
	go s.run()
	return s
}

func (s *Session) Code() string   { return s.code }
func (s *Session) HostID() string { return s.hostID }

// LastActive is the time of the most recent player or host action.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// Done is closed once the session has been torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) run() {
	for req := range s.events {
		req.reply <- req.apply()
		if s.closing {
			close(s.done)
			return
		}
	}
}

// do applies fn on the session goroutine and waits for it.
func (s *Session) do(fn func() error) error {
	req := request{apply: fn, reply: make(chan error, 1)}
	select {
	case s.events <- req:
	case <-s.done:
		return domain.ErrSessionClosed
	}
	return <-req.reply
}

// act is do for player and host actions. Only these count as activity for idle reaping;
// reads and timer fires do not.
func (s *Session) act(fn func() error) error {
	err := s.do(fn)
	if !errors.Is(err, domain.ErrSessionClosed) {
		s.lastActive.Store(s.opts.Now().UnixNano())
	}
	return err
}

// StartQuiz moves the lobby to the first question.
func (s *Session) StartQuiz() error {
	return s.act(s.start)
}

// Advance performs the next host-driven transition.
func (s *Session) Advance() error {
	return s.act(s.advance)
}

// Join registers a new player in the lobby, or reconnects a known peer ID in any phase.
func (s *Session) Join(peerID, name string, ch Channel) (domain.Player, error) {
	var joined domain.Player
	err := s.act(func() error {
		p, err := s.join(peerID, name, ch)
		if err == nil {
			joined = clonePlayer(p)
		}
		return err
	})
	return joined, err
}

// SubmitAnswer records and scores a player's answer to the active question.
func (s *Session) SubmitAnswer(peerID string, questionIndex int, value domain.AnswerValue) (scoring.Result, error) {
	var result scoring.Result
	err := s.act(func() error {
		r, err := s.submit(peerID, questionIndex, value)
		result = r
		return err
	})
	return result, err
}

// Disconnect marks a player offline. ch guards against a stale link reporting after a reconnect.
func (s *Session) Disconnect(peerID string, ch Channel) error {
	return s.act(func() error { return s.disconnect(peerID, ch) })
}

// Observe attaches a host console that receives host:state after every change.
func (s *Session) Observe(ch Channel) error {
	return s.act(func() error {
		s.observers[ch] = struct{}{}
		s.send(ch, protocol.Message{Type: protocol.TypeHostState, Payload: s.hostState()})
		return nil
	})
}

// Unobserve detaches a host console.
func (s *Session) Unobserve(ch Channel) {
	_ = s.do(func() error {
		delete(s.observers, ch)
		return nil
	})
}

// Snapshot returns the host view of the session.
func (s *Session) Snapshot() (protocol.HostStatePayload, error) {
	var state protocol.HostStatePayload
	err := s.do(func() error {
		state = s.hostState()
		return nil
	})
	return state, err
}

// Standings are computed fresh on every call.
func (s *Session) Standings() ([]domain.Standing, error) {
	var standings []domain.Standing
	err := s.do(func() error {
		standings = s.standings()
		return nil
	})
	return standings, err
}

// End is the host ending the session: players receive final standings, then every link is released.
func (s *Session) End() error {
	return s.do(func() error {
		if s.phase != domain.PhaseFinished {
			s.stopTimer()
			s.phase = domain.PhaseFinished
			s.broadcast()
		}
		s.teardown()
		return nil
	})
}

// Close tears the session down without further broadcasts.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		_ = s.do(func() error {
			s.teardown()
			return nil
		})
	})
}

func (s *Session) teardown() {
	s.stopTimer()
	for id, ch := range s.channels {
		_ = ch.Close()
		delete(s.channels, id)
	}
	for ch := range s.observers {
		_ = ch.Close()
		delete(s.observers, ch)
	}
	for _, p := range s.players {
		p.Connected = false
	}
	s.closing = true
	slog.Info("session closed", "code", s.code)
}

func (s *Session) start() error {
	if s.phase != domain.PhaseLobby {
		return fmt.Errorf("%w: quiz already started", domain.ErrProtocolViolation)
	}
	if s.connectedCount() == 0 {
		return domain.ErrNoConnectedPlayers
	}
	slog.Info("quiz started", "code", s.code, "quiz", s.quiz.ID, "players", len(s.players))
	s.startQuestion(0)
	return nil
}

func (s *Session) advance() error {
	switch s.phase {
	case domain.PhaseLobby:
		return s.start()
	case domain.PhaseQuestion:
		s.reveal()
	case domain.PhaseReveal:
		s.summarize()
	case domain.PhaseSummary:
		if s.index+1 < len(s.quiz.Questions) {
			s.startQuestion(s.index + 1)
		} else {
			s.finish()
		}
	default:
		return fmt.Errorf("%w: session finished", domain.ErrProtocolViolation)
	}
	return nil
}

func (s *Session) startQuestion(index int) {
	s.stopTimer()
	s.phase = domain.PhaseQuestion
	s.index = index
	s.questionStartedAt = s.opts.Now()
	s.answers = make(map[string]domain.Answer)
	s.results = make(map[string]scoring.Result)
	s.startTimer(s.quiz.Questions[index].TimeLimit())
	slog.Debug("question started", "code", s.code, "index", index)
	s.broadcast()
}

func (s *Session) reveal() {
	s.stopTimer()
	s.phase = domain.PhaseReveal
	if s.opts.RevealDelay > 0 {
		s.startTimer(s.opts.RevealDelay)
	}
	slog.Debug("answers revealed", "code", s.code, "index", s.index, "answers", len(s.answers))
	s.broadcast()
}

func (s *Session) summarize() {
	s.stopTimer()
	s.phase = domain.PhaseSummary
	if s.opts.SummaryDelay > 0 {
		s.startTimer(s.opts.SummaryDelay)
	}
	s.broadcast()
}

func (s *Session) finish() {
	s.stopTimer()
	s.phase = domain.PhaseFinished
	slog.Info("quiz finished", "code", s.code, "players", len(s.players))
	s.broadcast()
	if s.opts.OnFinished != nil {
		go s.opts.OnFinished(s.code)
	}
}

func (s *Session) startTimer(d time.Duration) {
	seq := s.timerSeq
	s.timer = s.opts.AfterFunc(d, func() {
		_ = s.do(func() error {
			s.onTimer(seq)
			return nil
		})
	})
}

// stopTimer cancels the pending timer and invalidates any fire already queued behind other events.
func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerSeq++
}

func (s *Session) onTimer(seq uint64) {
	if seq != s.timerSeq {
		slog.Debug("stale timer ignored", "code", s.code, "phase", s.phase)
		return
	}
	s.timer = nil
	_ = s.advance()
}

func (s *Session) join(peerID, name string, ch Channel) (*domain.Player, error) {
	if p, ok := s.players[peerID]; ok && peerID != "" {
		s.reconnect(p, ch)
		return p, nil
	}
	if s.phase != domain.PhaseLobby {
		return nil, domain.ErrJoinClosed
	}
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return nil, domain.ErrInvalidName
	}
	for _, other := range s.players {
		if strings.EqualFold(other.Name, name) {
			return nil, domain.ErrNameTaken
		}
	}
	if peerID == "" {
		peerID = uuid.NewString()
	}
	p := &domain.Player{
		PeerID:    peerID,
		Name:      name,
		Connected: true,
		Answered:  make(map[int]bool),
		JoinedAt:  s.opts.Now(),
	}
	s.players[peerID] = p
	s.order = append(s.order, peerID)
	s.channels[peerID] = ch
	slog.Info("player joined", "code", s.code, "peer", peerID, "name", name)

	s.send(ch, s.welcome(p, false))
	s.broadcast()
	return p, nil
}

func (s *Session) reconnect(p *domain.Player, ch Channel) {
	if old, ok := s.channels[p.PeerID]; ok && old != ch {
		_ = old.Close()
	}
	s.channels[p.PeerID] = ch
	p.Connected = true
	slog.Info("player reconnected", "code", s.code, "peer", p.PeerID, "phase", s.phase)

	s.send(ch, s.welcome(p, true))
	if s.phase == domain.PhaseLobby {
		s.broadcast()
		return
	}
	s.send(ch, s.messageFor(p.PeerID))
	s.publishHostState()
}

func (s *Session) disconnect(peerID string, ch Channel) error {
	p, ok := s.players[peerID]
	if !ok {
		return domain.ErrUnknownPlayer
	}
	if current, ok := s.channels[peerID]; !ok || (ch != nil && current != ch) {
		return nil
	}
	delete(s.channels, peerID)
	p.Connected = false
	slog.Info("player disconnected", "code", s.code, "peer", peerID, "phase", s.phase)

	switch s.phase {
	case domain.PhaseLobby:
		s.broadcast()
	case domain.PhaseQuestion:
		if !s.checkAllAnswered() {
			s.publishHostState()
		}
	default:
		s.publishHostState()
	}
	return nil
}

func (s *Session) submit(peerID string, questionIndex int, value domain.AnswerValue) (scoring.Result, error) {
	if s.phase != domain.PhaseQuestion {
		return scoring.Result{}, fmt.Errorf("%w: answer during %s", domain.ErrProtocolViolation, s.phase)
	}
	if questionIndex != s.index {
		return scoring.Result{}, fmt.Errorf("%w: answer for question %d while %d is active", domain.ErrProtocolViolation, questionIndex, s.index)
	}
	p, ok := s.players[peerID]
	if !ok {
		return scoring.Result{}, domain.ErrUnknownPlayer
	}
	if !p.Connected {
		return scoring.Result{}, domain.ErrPlayerDisconnected
	}
	if p.HasAnswered(questionIndex) {
		return scoring.Result{}, domain.ErrDuplicateSubmission
	}

	question := s.quiz.Questions[questionIndex]
	limit := question.TimeLimit()
	elapsed := s.opts.Now().Sub(s.questionStartedAt)
	if elapsed > limit {
		return scoring.Result{}, domain.ErrExpired
	}
	result, err := s.opts.Policy.Score(question, value, elapsed, limit)
	if err != nil {
		return scoring.Result{}, err
	}

	s.answers[peerID] = domain.Answer{
		PeerID:         peerID,
		QuestionIndex:  questionIndex,
		Value:          value,
		SubmittedAfter: elapsed,
	}
	s.results[peerID] = result
	p.Score += result.ScoreGained
	p.Answered[questionIndex] = true
	slog.Debug("answer recorded", "code", s.code, "peer", peerID, "index", questionIndex, "correct", result.Correct, "gained", result.ScoreGained)

	s.send(s.channels[peerID], protocol.Message{
		Type:    protocol.TypeAnswerAck,
		Payload: protocol.AnswerAckPayload{QuestionIndex: questionIndex, Accepted: true},
	})
	if !s.checkAllAnswered() {
		s.publishHostState()
	}
	return result, nil
}

// checkAllAnswered reveals early once every connected player has answered. It reports whether it advanced.
func (s *Session) checkAllAnswered() bool {
	if s.phase != domain.PhaseQuestion {
		return false
	}
	connected := 0
	for _, p := range s.players {
		if !p.Connected {
			continue
		}
		connected++
		if !p.HasAnswered(s.index) {
			return false
		}
	}
	if connected == 0 {
		return false
	}
	s.reveal()
	return true
}

func (s *Session) connectedCount() int {
	n := 0
	for _, p := range s.players {
		if p.Connected {
			n++
		}
	}
	return n
}

func (s *Session) send(ch Channel, msg protocol.Message) {
	if ch == nil {
		return
	}
	if err := ch.Send(msg); err != nil {
		slog.Debug("send failed", "code", s.code, "type", msg.Type, "error", err)
	}
}

// broadcast sends every connected player its view of the current phase, then updates host consoles.
func (s *Session) broadcast() {
	for _, peerID := range s.order {
		if ch, ok := s.channels[peerID]; ok {
			s.send(ch, s.messageFor(peerID))
		}
	}
	s.publishHostState()
}

func (s *Session) publishHostState() {
	if len(s.observers) == 0 {
		return
	}
	msg := protocol.Message{Type: protocol.TypeHostState, Payload: s.hostState()}
	for ch := range s.observers {
		s.send(ch, msg)
	}
}

func (s *Session) welcome(p *domain.Player, reconnected bool) protocol.Message {
	return protocol.Message{Type: protocol.TypeWelcome, Payload: protocol.WelcomePayload{
		PeerID:      p.PeerID,
		Code:        s.code,
		Name:        p.Name,
		Score:       p.Score,
		Phase:       s.phase,
		Reconnected: reconnected,
	}}
}

// messageFor builds the current phase broadcast as seen by one player.
func (s *Session) messageFor(peerID string) protocol.Message {
	p := s.players[peerID]
	switch s.phase {
	case domain.PhaseLobby:
		names := make([]string, 0, len(s.order))
		for _, id := range s.order {
			if s.players[id].Connected {
				names = append(names, s.players[id].Name)
			}
		}
		return protocol.Message{Type: protocol.TypeLobby, Payload: protocol.LobbyPayload{
			Code:        s.code,
			PlayerCount: len(names),
			Players:     names,
		}}
	case domain.PhaseQuestion:
		question := s.quiz.Questions[s.index]
		remaining := question.TimeLimit() - s.opts.Now().Sub(s.questionStartedAt)
		if remaining < 0 {
			remaining = 0
		}
		return protocol.Message{Type: protocol.TypeQuestion, Payload: protocol.QuestionPayload{
			Index:            s.index,
			Total:            len(s.quiz.Questions),
			Question:         domain.Redact(question),
			TimeLimitSeconds: question.TimeLimitSeconds,
			RemainingMs:      remaining.Milliseconds(),
			Answered:         p != nil && p.HasAnswered(s.index),
		}}
	case domain.PhaseReveal:
		_, answered := s.answers[peerID]
		payload := protocol.RevealPayload{
			Index:       s.index,
			Correct:     domain.CorrectAnswer(s.quiz.Questions[s.index]),
			Answered:    answered,
			Result:      s.results[peerID],
			AnswerCount: len(s.answers),
		}
		if p != nil {
			payload.TotalScore = p.Score
		}
		return protocol.Message{Type: protocol.TypeReveal, Payload: payload}
	case domain.PhaseSummary:
		standings := s.standings()
		return protocol.Message{Type: protocol.TypeSummary, Payload: protocol.SummaryPayload{
			Index:     s.index,
			Total:     len(s.quiz.Questions),
			Standings: topN(standings, s.opts.StandingsTopN),
			Self:      findStanding(standings, peerID),
		}}
	default:
		standings := s.standings()
		return protocol.Message{Type: protocol.TypeFinished, Payload: protocol.FinishedPayload{
			Standings: standings,
			Self:      findStanding(standings, peerID),
		}}
	}
}

// standings ranks players by score; ties keep join order.
func (s *Session) standings() []domain.Standing {
	out := make([]domain.Standing, 0, len(s.order))
	for _, id := range s.order {
		p := s.players[id]
		out = append(out, domain.Standing{PeerID: p.PeerID, Name: p.Name, Score: p.Score, Connected: p.Connected})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func (s *Session) hostState() protocol.HostStatePayload {
	players := make([]protocol.HostPlayer, 0, len(s.order))
	for _, id := range s.order {
		p := s.players[id]
		players = append(players, protocol.HostPlayer{
			PeerID:    p.PeerID,
			Name:      p.Name,
			Score:     p.Score,
			Connected: p.Connected,
			Answered:  s.index >= 0 && p.HasAnswered(s.index),
		})
	}
	return protocol.HostStatePayload{
		Code:          s.code,
		QuizID:        s.quiz.ID,
		Title:         s.quiz.Title,
		Phase:         s.phase,
		QuestionIndex: s.index,
		Total:         len(s.quiz.Questions),
		AnswerCount:   len(s.answers),
		Players:       players,
	}
}

func topN(standings []domain.Standing, n int) []domain.Standing {
	if n <= 0 || n >= len(standings) {
		return standings
	}
	return standings[:n]
}

func findStanding(standings []domain.Standing, peerID string) *domain.Standing {
	for i := range standings {
		if standings[i].PeerID == peerID {
			st := standings[i]
			return &st
		}
	}
	return nil
}

func clonePlayer(p *domain.Player) domain.Player {
	c := *p
	c.Answered = make(map[int]bool, len(p.Answered))
	for k, v := range p.Answered {
		c.Answered[k] = v
	}
	return c
}
