package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// QuestionKind names a question variant on the wire and in quiz documents.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple_choice"
	KindTrueFalse      QuestionKind = "true_false"
	KindMultiChoice    QuestionKind = "multi_choice"
	KindSlider         QuestionKind = "slider"
)

const (
	multipleChoiceOptions = 4
	minMultiOptions       = 2
	maxMultiOptions       = 8
)

// Variant is the closed set of question bodies. Only types in this package implement it.
type Variant interface {
	Kind() QuestionKind
	isVariant()
}

// MultipleChoice has four options and one correct index.
type MultipleChoice struct {
	Options []string
	Correct int
}

// TrueFalse has two options and one correct index.
type TrueFalse struct {
	Options []string
	Correct int
}

// MultiChoice has 2-8 options and a set of correct indices that must be matched exactly.
type MultiChoice struct {
	Options []string
	Correct []int
}

// Slider asks for a number in [Min, Max].
type Slider struct {
	Min     float64
	Max     float64
	Correct float64
}

func (MultipleChoice) Kind() QuestionKind { return KindMultipleChoice }
func (TrueFalse) Kind() QuestionKind      { return KindTrueFalse }
func (MultiChoice) Kind() QuestionKind    { return KindMultiChoice }
func (Slider) Kind() QuestionKind         { return KindSlider }

func (MultipleChoice) isVariant() {}
func (TrueFalse) isVariant()      {}
func (MultiChoice) isVariant()    {}
func (Slider) isVariant()         {}

// Question is one quiz step. Variant is fixed once the quiz is loaded.
type Question struct {
	ID               string
	Text             string
	Images           []string
	TimeLimitSeconds int
	Variant          Variant
}

func (q Question) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitSeconds) * time.Second
}

// Validate checks the structural rules of the question's variant.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: empty question text", ErrInvalidQuiz)
	}
	if q.TimeLimitSeconds <= 0 {
		return fmt.Errorf("%w: time limit must be positive", ErrInvalidQuiz)
	}
	switch v := q.Variant.(type) {
	case MultipleChoice:
		if len(v.Options) != multipleChoiceOptions {
			return fmt.Errorf("%w: multiple_choice needs %d options, got %d", ErrInvalidQuiz, multipleChoiceOptions, len(v.Options))
		}
		return checkIndex(v.Correct, len(v.Options))
	case TrueFalse:
		if len(v.Options) != 2 {
			return fmt.Errorf("%w: true_false needs 2 options, got %d", ErrInvalidQuiz, len(v.Options))
		}
		return checkIndex(v.Correct, len(v.Options))
	case MultiChoice:
		if len(v.Options) < minMultiOptions || len(v.Options) > maxMultiOptions {
			return fmt.Errorf("%w: multi_choice needs %d-%d options, got %d", ErrInvalidQuiz, minMultiOptions, maxMultiOptions, len(v.Options))
		}
		if len(v.Correct) == 0 {
			return fmt.Errorf("%w: multi_choice needs at least one correct option", ErrInvalidQuiz)
		}
		seen := make(map[int]bool, len(v.Correct))
		for _, idx := range v.Correct {
			if err := checkIndex(idx, len(v.Options)); err != nil {
				return err
			}
			if seen[idx] {
				return fmt.Errorf("%w: duplicate correct option %d", ErrInvalidQuiz, idx)
			}
			seen[idx] = true
		}
		return nil
	case Slider:
		if !(v.Min < v.Max) {
			return fmt.Errorf("%w: slider min must be below max", ErrInvalidQuiz)
		}
		if v.Correct < v.Min || v.Correct > v.Max {
			return fmt.Errorf("%w: slider correct value outside range", ErrInvalidQuiz)
		}
		return nil
	case nil:
		return fmt.Errorf("%w: question has no variant", ErrInvalidQuiz)
	default:
		return fmt.Errorf("%w: unknown variant %T", ErrInvalidQuiz, v)
	}
}

func checkIndex(idx, n int) error {
	if idx < 0 || idx >= n {
		return fmt.Errorf("%w: correct option %d out of range", ErrInvalidQuiz, idx)
	}
	return nil
}

// Validate checks that the quiz has questions and that each one is well formed.
func (q Quiz) Validate() error {
	if len(q.Questions) == 0 {
		return fmt.Errorf("%w: quiz %q has no questions", ErrInvalidQuiz, q.ID)
	}
	for i, question := range q.Questions {
		if err := question.Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i, err)
		}
	}
	return nil
}

// RedactedQuestion is what players see: the question without its correct answer.
type RedactedQuestion struct {
	Kind             QuestionKind `json:"kind"`
	Text             string       `json:"text"`
	Images           []string     `json:"images,omitempty"`
	Options          []string     `json:"options,omitempty"`
	Min              *float64     `json:"min,omitempty"`
	Max              *float64     `json:"max,omitempty"`
	TimeLimitSeconds int          `json:"timeLimitSeconds"`
}

// Redact strips the correct-answer fields.
func Redact(q Question) RedactedQuestion {
	r := RedactedQuestion{
		Kind:             q.Variant.Kind(),
		Text:             q.Text,
		Images:           q.Images,
		TimeLimitSeconds: q.TimeLimitSeconds,
	}
	switch v := q.Variant.(type) {
	case MultipleChoice:
		r.Options = slices.Clone(v.Options)
	case TrueFalse:
		r.Options = slices.Clone(v.Options)
	case MultiChoice:
		r.Options = slices.Clone(v.Options)
	case Slider:
		lo, hi := v.Min, v.Max
		r.Min, r.Max = &lo, &hi
	default:
		panic(fmt.Sprintf("redact: unknown question variant %T", v))
	}
	return r
}

// CorrectAnswer returns the answer key broadcast at reveal time.
func CorrectAnswer(q Question) AnswerValue {
	switch v := q.Variant.(type) {
	case MultipleChoice:
		return IndexAnswer(v.Correct)
	case TrueFalse:
		return IndexAnswer(v.Correct)
	case MultiChoice:
		correct := slices.Clone(v.Correct)
		slices.Sort(correct)
		return AnswerValue{Indices: correct}
	case Slider:
		return NumberAnswer(v.Correct)
	default:
		panic(fmt.Sprintf("correct answer: unknown question variant %T", v))
	}
}

// questionDoc is the document form shared by JSON (Postgres, Redis) and YAML (quiz files).
type questionDoc struct {
	ID               string       `json:"id,omitempty" yaml:"id,omitempty"`
	Kind             QuestionKind `json:"kind" yaml:"kind"`
	Text             string       `json:"text" yaml:"text"`
	Images           []string     `json:"images,omitempty" yaml:"images,omitempty"`
	TimeLimitSeconds int          `json:"timeLimitSeconds" yaml:"time_limit_seconds"`
	Options          []string     `json:"options,omitempty" yaml:"options,omitempty"`
	Correct          *int         `json:"correct,omitempty" yaml:"correct,omitempty"`
	CorrectOptions   []int        `json:"correctOptions,omitempty" yaml:"correct_options,omitempty"`
	Min              *float64     `json:"min,omitempty" yaml:"min,omitempty"`
	Max              *float64     `json:"max,omitempty" yaml:"max,omitempty"`
	CorrectValue     *float64     `json:"correctValue,omitempty" yaml:"correct_value,omitempty"`
}

func (q Question) toDoc() questionDoc {
	doc := questionDoc{
		ID:               q.ID,
		Text:             q.Text,
		Images:           q.Images,
		TimeLimitSeconds: q.TimeLimitSeconds,
	}
	switch v := q.Variant.(type) {
	case MultipleChoice:
		doc.Kind, doc.Options, doc.Correct = KindMultipleChoice, v.Options, &v.Correct
	case TrueFalse:
		doc.Kind, doc.Options, doc.Correct = KindTrueFalse, v.Options, &v.Correct
	case MultiChoice:
		doc.Kind, doc.Options, doc.CorrectOptions = KindMultiChoice, v.Options, v.Correct
	case Slider:
		doc.Kind, doc.Min, doc.Max, doc.CorrectValue = KindSlider, &v.Min, &v.Max, &v.Correct
	}
	return doc
}

func (doc questionDoc) toQuestion() (Question, error) {
	q := Question{
		ID:               doc.ID,
		Text:             doc.Text,
		Images:           doc.Images,
		TimeLimitSeconds: doc.TimeLimitSeconds,
	}
	switch doc.Kind {
	case KindMultipleChoice:
		if doc.Correct == nil {
			return Question{}, fmt.Errorf("%w: %s without correct option", ErrInvalidQuiz, doc.Kind)
		}
		q.Variant = MultipleChoice{Options: doc.Options, Correct: *doc.Correct}
	case KindTrueFalse:
		if doc.Correct == nil {
			return Question{}, fmt.Errorf("%w: %s without correct option", ErrInvalidQuiz, doc.Kind)
		}
		options := doc.Options
		if len(options) == 0 {
			options = []string{"True", "False"}
		}
		q.Variant = TrueFalse{Options: options, Correct: *doc.Correct}
	case KindMultiChoice:
		q.Variant = MultiChoice{Options: doc.Options, Correct: doc.CorrectOptions}
	case KindSlider:
		if doc.Min == nil || doc.Max == nil || doc.CorrectValue == nil {
			return Question{}, fmt.Errorf("%w: slider needs min, max and correct value", ErrInvalidQuiz)
		}
		q.Variant = Slider{Min: *doc.Min, Max: *doc.Max, Correct: *doc.CorrectValue}
	default:
		return Question{}, fmt.Errorf("%w: unknown question kind %q", ErrInvalidQuiz, doc.Kind)
	}
	return q, nil
}

func (q Question) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.toDoc())
}

func (q *Question) UnmarshalJSON(data []byte) error {
	var doc questionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	decoded, err := doc.toQuestion()
	if err != nil {
		return err
	}
	*q = decoded
	return nil
}

func (q Question) MarshalYAML() (any, error) {
	return q.toDoc(), nil
}

func (q *Question) UnmarshalYAML(node *yaml.Node) error {
	var doc questionDoc
	if err := node.Decode(&doc); err != nil {
		return err
	}
	decoded, err := doc.toQuestion()
	if err != nil {
		return err
	}
	*q = decoded
	return nil
}
