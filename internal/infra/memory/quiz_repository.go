package memory

import (
	"context"
	"sync"
	"time"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/quizcache"

	"golang.org/x/sync/singleflight"
)

type QuizLoader = quizcache.Loader

// QuizRepository keeps validated quizzes in process until their jittered TTL runs out.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	fills  singleflight.Group

	mu      sync.RWMutex
	entries map[string]entry
}

type entry struct {
	quiz    domain.Quiz
	expires time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader:  loader,
		ttl:     ttl,
		clock:   time.Now,
		entries: make(map[string]entry),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.lookup(quizID); ok {
		return quiz, nil
	}
	v, err, _ := r.fills.Do(quizID, func() (any, error) {
		if quiz, ok := r.lookup(quizID); ok {
			return quiz, nil
		}
		quiz, err := quizcache.Load(ctx, r.loader, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		r.store(quizID, quiz)
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return v.(domain.Quiz), nil
}

func (r *QuizRepository) lookup(quizID string) (domain.Quiz, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[quizID]
	if !ok || !e.expires.After(r.clock()) {
		return domain.Quiz{}, false
	}
	return e.quiz, true
}

func (r *QuizRepository) store(quizID string, quiz domain.Quiz) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[quizID] = entry{quiz: quiz, expires: r.clock().Add(quizcache.TTL(r.ttl))}
}

// StaticQuizLoader serves quizzes from a fixed map (tests, demos, quizzes inlined in config).
type StaticQuizLoader struct {
	quizzes map[string]domain.Quiz
}

func NewStaticQuizLoader(quizzes map[string]domain.Quiz) *StaticQuizLoader {
	return &StaticQuizLoader{quizzes: quizzes}
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	quiz, ok := l.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}
