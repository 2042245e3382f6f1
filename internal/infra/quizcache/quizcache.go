// Package quizcache holds the fill policy shared by the quiz caches: load, validate, expire with jitter.
package quizcache

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"live-quiz-service/internal/domain"
)

// Loader fetches quiz content from a backing store (Postgres, a YAML directory, a static map).
type Loader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Load fetches quizID and rejects malformed documents so nothing invalid gets cached.
func Load(ctx context.Context, loader Loader, quizID string) (domain.Quiz, error) {
	quiz, err := loader.LoadQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if err := quiz.Validate(); err != nil {
		return domain.Quiz{}, fmt.Errorf("quiz %s: %w", quizID, err)
	}
	return quiz, nil
}

// TTL adds up to 10% jitter to base so entries filled together do not expire together.
// Safe for concurrent use.
func TTL(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	return base + time.Duration(rand.Int64N(int64(base)/10+1))
}
