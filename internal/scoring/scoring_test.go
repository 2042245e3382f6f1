package scoring

import (
	"errors"
	"math"
	"testing"
	"time"

	"live-quiz-service/internal/domain"
)

var (
	mcQuestion = domain.Question{Text: "2+2?", TimeLimitSeconds: 10, Variant: domain.MultipleChoice{Options: []string{"3", "4", "5", "6"}, Correct: 1}}
	multi      = domain.Question{Text: "primes", TimeLimitSeconds: 10, Variant: domain.MultiChoice{Options: []string{"2", "3", "4", "9"}, Correct: []int{1, 0}}}
	slider     = domain.Question{Text: "middle", TimeLimitSeconds: 10, Variant: domain.Slider{Min: 0, Max: 100, Correct: 50}}
)

func TestMultipleChoiceScoring(t *testing.T) {
	p := DefaultPolicy()
	limit := 10 * time.Second

	fast, err := p.Score(mcQuestion, domain.IndexAnswer(1), 2*time.Second, limit)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if !fast.Correct || fast.ScoreGained != 900 {
		t.Fatalf("expected correct with 900 points, got %+v", fast)
	}

	wrong, err := p.Score(mcQuestion, domain.IndexAnswer(0), 9*time.Second, limit)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if wrong.Correct || wrong.ScoreGained != 0 {
		t.Fatalf("expected incorrect with 0 points, got %+v", wrong)
	}

	atLimit, _ := p.Score(mcQuestion, domain.IndexAnswer(1), limit, limit)
	if atLimit.ScoreGained != 500 {
		t.Fatalf("expected floor score 500 at the limit, got %d", atLimit.ScoreGained)
	}
}

func TestMultiChoiceRequiresExactSet(t *testing.T) {
	p := DefaultPolicy()
	exact, err := p.Score(multi, domain.IndicesAnswer(0, 1), 0, 10*time.Second)
	if err != nil || !exact.Correct || exact.ScoreGained != 1000 {
		t.Fatalf("expected full credit, got %+v err=%v", exact, err)
	}
	partial, err := p.Score(multi, domain.IndicesAnswer(0), 0, 10*time.Second)
	if err != nil || partial.Correct || partial.ScoreGained != 0 {
		t.Fatalf("expected no partial credit, got %+v err=%v", partial, err)
	}
	extra, _ := p.Score(multi, domain.IndicesAnswer(0, 1, 2), 0, 10*time.Second)
	if extra.Correct {
		t.Fatalf("superset must not be correct")
	}
	if _, err := p.Score(multi, domain.IndicesAnswer(1, 1), 0, 10*time.Second); !errors.Is(err, domain.ErrInvalidAnswer) {
		t.Fatalf("expected invalid answer for duplicate indices, got %v", err)
	}
}

func TestEmptyMultiChoiceSelectionScoresZero(t *testing.T) {
	res, err := DefaultPolicy().Score(multi, domain.IndicesAnswer(), 0, 10*time.Second)
	if err != nil {
		t.Fatalf("expected empty selection to be scored, got %v", err)
	}
	if res.Correct || res.ScoreGained != 0 {
		t.Fatalf("expected wrong answer, got %+v", res)
	}
}

func TestSliderCloseness(t *testing.T) {
	p := DefaultPolicy()
	limit := 10 * time.Second

	near, err := p.Score(slider, domain.NumberAnswer(55), 0, limit)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if near.Closeness == nil || math.Abs(*near.Closeness-0.05) > 1e-9 {
		t.Fatalf("expected closeness 0.05, got %+v", near.Closeness)
	}
	if !near.Correct || near.ScoreGained <= 0 {
		t.Fatalf("expected correct partial score, got %+v", near)
	}

	far, err := p.Score(slider, domain.NumberAnswer(5), 0, limit)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if math.Abs(*far.Closeness-0.45) > 1e-9 {
		t.Fatalf("expected closeness 0.45, got %v", *far.Closeness)
	}
	if far.Correct || far.ScoreGained >= near.ScoreGained || far.ScoreGained > 100 {
		t.Fatalf("expected near-zero score, got %+v", far)
	}

	if _, err := p.Score(slider, domain.NumberAnswer(101), 0, limit); !errors.Is(err, domain.ErrInvalidAnswer) {
		t.Fatalf("expected out of range rejection, got %v", err)
	}
}

func TestShapeMismatchIsRejected(t *testing.T) {
	p := DefaultPolicy()
	if _, err := p.Score(mcQuestion, domain.NumberAnswer(1), 0, time.Second); !errors.Is(err, domain.ErrInvalidAnswer) {
		t.Fatalf("expected invalid answer, got %v", err)
	}
	if _, err := p.Score(slider, domain.IndexAnswer(1), 0, time.Second); !errors.Is(err, domain.ErrInvalidAnswer) {
		t.Fatalf("expected invalid answer, got %v", err)
	}
	if _, err := p.Score(mcQuestion, domain.IndexAnswer(4), 0, time.Second); !errors.Is(err, domain.ErrInvalidAnswer) {
		t.Fatalf("expected out of range index to be rejected, got %v", err)
	}
}

func TestScoringIsDeterministic(t *testing.T) {
	p := DefaultPolicy()
	first, _ := p.Score(slider, domain.NumberAnswer(63.5), 3700*time.Millisecond, 10*time.Second)
	for i := 0; i < 100; i++ {
		again, _ := p.Score(slider, domain.NumberAnswer(63.5), 3700*time.Millisecond, 10*time.Second)
		if again.Correct != first.Correct || again.ScoreGained != first.ScoreGained || *again.Closeness != *first.Closeness {
			t.Fatalf("run %d differs: %+v vs %+v", i, again, first)
		}
	}
}

func TestCurves(t *testing.T) {
	speed := LinearSpeedFactor(0.5)
	if got := speed(0, 10*time.Second); got != 1 {
		t.Fatalf("speed at 0 = %v", got)
	}
	if got := speed(5*time.Second, 10*time.Second); got != 0.75 {
		t.Fatalf("speed at half = %v", got)
	}
	if got := speed(20*time.Second, 10*time.Second); got != 0.5 {
		t.Fatalf("speed past limit = %v", got)
	}

	curve := PowerFalloff(2)
	if curve(0) != 1 || curve(1) != 0 || curve(1.5) != 0 {
		t.Fatalf("unexpected curve endpoints")
	}
	if got := curve(0.5); got != 0.25 {
		t.Fatalf("curve(0.5) = %v", got)
	}
}
