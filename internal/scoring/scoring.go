// Package scoring computes per-answer scores. Everything here is a pure function of its inputs.
package scoring

import (
	"fmt"
	"math"
	"slices"
	"time"

	"live-quiz-service/internal/domain"
)

// Result is the outcome of scoring one answer. Closeness is only set for slider questions.
type Result struct {
	Correct     bool     `json:"correct"`
	ScoreGained int      `json:"scoreGained"`
	Closeness   *float64 `json:"closeness,omitempty"`
}

// SpeedFactor scales a base score by how quickly the answer arrived.
type SpeedFactor func(elapsed, limit time.Duration) float64

// SliderCurve maps closeness (0 = exact) to a fraction of the base score.
type SliderCurve func(closeness float64) float64

// Policy holds the tunable scoring curves.
type Policy struct {
	BaseScore       int
	SliderThreshold float64
	Speed           SpeedFactor
	Slider          SliderCurve
}

const (
	DefaultBaseScore       = 1000
	DefaultSpeedFloor      = 0.5
	DefaultSliderThreshold = 0.05
	DefaultSliderExponent  = 5
)

func DefaultPolicy() Policy {
	return Policy{
		BaseScore:       DefaultBaseScore,
		SliderThreshold: DefaultSliderThreshold,
		Speed:           LinearSpeedFactor(DefaultSpeedFloor),
		Slider:          PowerFalloff(DefaultSliderExponent),
	}
}

// LinearSpeedFactor falls linearly from 1.0 at zero elapsed time to floor at the time limit.
func LinearSpeedFactor(floor float64) SpeedFactor {
	floor = clamp(floor, 0, 1)
	return func(elapsed, limit time.Duration) float64 {
		if limit <= 0 {
			return floor
		}
		frac := clamp(float64(elapsed)/float64(limit), 0, 1)
		return 1 - (1-floor)*frac
	}
}

// PowerFalloff returns (1-c)^exponent, reaching zero at closeness 1.
func PowerFalloff(exponent float64) SliderCurve {
	return func(closeness float64) float64 {
		if closeness >= 1 {
			return 0
		}
		return math.Pow(1-clamp(closeness, 0, 1), exponent)
	}
}

// Score evaluates value against the question's correct answer.
// Late answers never reach here; elapsed beyond limit is clamped to the floor.
func (p Policy) Score(q domain.Question, value domain.AnswerValue, elapsed, limit time.Duration) (Result, error) {
	speed := p.Speed(elapsed, limit)

	switch v := q.Variant.(type) {
	case domain.MultipleChoice:
		return p.scoreIndex(value, v.Correct, len(v.Options), speed)
	case domain.TrueFalse:
		return p.scoreIndex(value, v.Correct, len(v.Options), speed)
	case domain.MultiChoice:
		if value.Indices == nil || value.Index != nil || value.Number != nil {
			return Result{}, fmt.Errorf("%w: multi_choice expects indices", domain.ErrInvalidAnswer)
		}
		submitted := slices.Clone(value.Indices)
		slices.Sort(submitted)
		if len(slices.Compact(slices.Clone(submitted))) != len(submitted) {
			return Result{}, fmt.Errorf("%w: duplicate indices", domain.ErrInvalidAnswer)
		}
		for _, idx := range submitted {
			if idx < 0 || idx >= len(v.Options) {
				return Result{}, fmt.Errorf("%w: index %d out of range", domain.ErrInvalidAnswer, idx)
			}
		}
		correct := slices.Clone(v.Correct)
		slices.Sort(correct)
		if !slices.Equal(submitted, correct) {
			return Result{}, nil
		}
		return Result{Correct: true, ScoreGained: p.points(1, speed)}, nil
	case domain.Slider:
		if value.Number == nil || value.Index != nil || value.Indices != nil {
			return Result{}, fmt.Errorf("%w: slider expects a number", domain.ErrInvalidAnswer)
		}
		n := *value.Number
		if math.IsNaN(n) || n < v.Min || n > v.Max {
			return Result{}, fmt.Errorf("%w: %v outside [%v, %v]", domain.ErrInvalidAnswer, n, v.Min, v.Max)
		}
		closeness := Closeness(n, v)
		return Result{
			Correct:     closeness <= p.SliderThreshold,
			ScoreGained: p.points(p.Slider(closeness), speed),
			Closeness:   &closeness,
		}, nil
	default:
		return Result{}, fmt.Errorf("%w: unknown question variant %T", domain.ErrInvalidQuiz, v)
	}
}

func (p Policy) scoreIndex(value domain.AnswerValue, correct, options int, speed float64) (Result, error) {
	if value.Index == nil || value.Indices != nil || value.Number != nil {
		return Result{}, fmt.Errorf("%w: expected an option index", domain.ErrInvalidAnswer)
	}
	if *value.Index < 0 || *value.Index >= options {
		return Result{}, fmt.Errorf("%w: index %d out of range", domain.ErrInvalidAnswer, *value.Index)
	}
	if *value.Index != correct {
		return Result{}, nil
	}
	return Result{Correct: true, ScoreGained: p.points(1, speed)}, nil
}

func (p Policy) points(fraction, speed float64) int {
	return int(math.Round(float64(p.BaseScore) * fraction * speed))
}

// Closeness is |value-correct| normalised by the slider range.
func Closeness(value float64, s domain.Slider) float64 {
	return math.Abs(value-s.Correct) / (s.Max - s.Min)
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
