package app_test

import (
	"sync"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/protocol"
)

type recorder struct {
	mu     sync.Mutex
	msgs   []protocol.Message
	closed bool
}

func (r *recorder) Send(msg protocol.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func (r *recorder) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// last returns the most recent message of the given type.
func (r *recorder) last(t protocol.MessageType) (protocol.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.msgs) - 1; i >= 0; i-- {
		if r.msgs[i].Type == t {
			return r.msgs[i], true
		}
	}
	return protocol.Message{}, false
}

func (r *recorder) lastAny() protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return protocol.Message{}
	}
	return r.msgs[len(r.msgs)-1]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	mu      sync.Mutex
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *fakeTimer) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Fire runs the callback even if the timer was stopped, like a fire that raced a Stop.
func (t *fakeTimer) Fire() {
	t.f()
}

type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (ft *fakeTimers) AfterFunc(d time.Duration, f func()) app.Timer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	ft.timers = append(ft.timers, t)
	return t
}

// active returns the newest timer that has not been stopped.
func (ft *fakeTimers) active() *fakeTimer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	for i := len(ft.timers) - 1; i >= 0; i-- {
		if t := ft.timers[i]; !t.isStopped() {
			return t
		}
	}
	return nil
}

type harness struct {
	clock  *fakeClock
	timers *fakeTimers
	opts   app.SessionOptions
}

func newHarness() *harness {
	h := &harness{clock: newFakeClock(), timers: &fakeTimers{}}
	h.opts = app.SessionOptions{Now: h.clock.Now, AfterFunc: h.timers.AfterFunc}
	return h
}

func (h *harness) session(quiz domain.Quiz) *app.Session {
	return app.NewSession("ABC234", "host-1", quiz, h.opts)
}

func twoQuestionQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Warmup",
		Questions: []domain.Question{
			{ID: "q1", Text: "2+2?", TimeLimitSeconds: 10, Variant: domain.MultipleChoice{Options: []string{"3", "4", "5", "6"}, Correct: 1}},
			{ID: "q2", Text: "Halfway", TimeLimitSeconds: 20, Variant: domain.Slider{Min: 0, Max: 100, Correct: 50}},
		},
	}
}

func phaseOf(t interface{ Fatalf(string, ...any) }, s *app.Session) domain.Phase {
	state, err := s.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return state.Phase
}
