package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestQuestionValidate(t *testing.T) {
	cases := []struct {
		name    string
		q       Question
		wantErr bool
	}{
		{"multiple choice ok", Question{Text: "q", TimeLimitSeconds: 10, Variant: MultipleChoice{Options: []string{"a", "b", "c", "d"}, Correct: 3}}, false},
		{"multiple choice three options", Question{Text: "q", TimeLimitSeconds: 10, Variant: MultipleChoice{Options: []string{"a", "b", "c"}, Correct: 0}}, true},
		{"true false index out of range", Question{Text: "q", TimeLimitSeconds: 10, Variant: TrueFalse{Options: []string{"T", "F"}, Correct: 2}}, true},
		{"multi choice ok", Question{Text: "q", TimeLimitSeconds: 10, Variant: MultiChoice{Options: []string{"a", "b", "c"}, Correct: []int{0, 2}}}, false},
		{"multi choice empty set", Question{Text: "q", TimeLimitSeconds: 10, Variant: MultiChoice{Options: []string{"a", "b"}}}, true},
		{"multi choice duplicate", Question{Text: "q", TimeLimitSeconds: 10, Variant: MultiChoice{Options: []string{"a", "b"}, Correct: []int{1, 1}}}, true},
		{"multi choice nine options", Question{Text: "q", TimeLimitSeconds: 10, Variant: MultiChoice{Options: make([]string, 9), Correct: []int{1}}}, true},
		{"slider ok", Question{Text: "q", TimeLimitSeconds: 10, Variant: Slider{Min: 0, Max: 100, Correct: 50}}, false},
		{"slider inverted range", Question{Text: "q", TimeLimitSeconds: 10, Variant: Slider{Min: 10, Max: 10, Correct: 10}}, true},
		{"slider correct outside", Question{Text: "q", TimeLimitSeconds: 10, Variant: Slider{Min: 0, Max: 10, Correct: 11}}, true},
		{"no time limit", Question{Text: "q", Variant: Slider{Min: 0, Max: 10, Correct: 1}}, true},
		{"no variant", Question{Text: "q", TimeLimitSeconds: 5}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.q.Validate()
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidQuiz) {
					t.Fatalf("expected ErrInvalidQuiz, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestQuestionJSONDecodesVariants(t *testing.T) {
	raw := `{"id":"quiz-1","title":"Mixed","questions":[
		{"kind":"multiple_choice","text":"2+2?","timeLimitSeconds":10,"options":["3","4","5","6"],"correct":1},
		{"kind":"true_false","text":"Sky is blue","timeLimitSeconds":5,"correct":0},
		{"kind":"multi_choice","text":"Primes","timeLimitSeconds":15,"options":["2","3","4"],"correctOptions":[0,1]},
		{"kind":"slider","text":"Boiling point","timeLimitSeconds":20,"min":0,"max":200,"correctValue":100}
	]}`
	var quiz Quiz
	if err := json.Unmarshal([]byte(raw), &quiz); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := quiz.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if mc, ok := quiz.Questions[0].Variant.(MultipleChoice); !ok || mc.Correct != 1 {
		t.Fatalf("expected multiple choice with correct 1, got %#v", quiz.Questions[0].Variant)
	}
	if tf, ok := quiz.Questions[1].Variant.(TrueFalse); !ok || len(tf.Options) != 2 {
		t.Fatalf("expected true/false with default options, got %#v", quiz.Questions[1].Variant)
	}
	if s, ok := quiz.Questions[3].Variant.(Slider); !ok || s.Correct != 100 {
		t.Fatalf("expected slider, got %#v", quiz.Questions[3].Variant)
	}

	encoded, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var again Quiz
	if err := json.Unmarshal(encoded, &again); err != nil {
		t.Fatalf("unmarshal again: %v", err)
	}
	if mc, ok := again.Questions[2].Variant.(MultiChoice); !ok || len(mc.Correct) != 2 {
		t.Fatalf("multi choice lost on re-encode: %#v", again.Questions[2].Variant)
	}
}

func TestQuestionRejectsUnknownKind(t *testing.T) {
	var q Question
	err := json.Unmarshal([]byte(`{"kind":"essay","text":"x","timeLimitSeconds":5}`), &q)
	if !errors.Is(err, ErrInvalidQuiz) {
		t.Fatalf("expected ErrInvalidQuiz, got %v", err)
	}
}

func TestQuestionYAMLDecodes(t *testing.T) {
	doc := `
id: geo
title: Geography
questions:
  - kind: slider
    text: How tall is Everest in km?
    time_limit_seconds: 20
    min: 0
    max: 10
    correct_value: 8.8
  - kind: multiple_choice
    text: Capital of France?
    time_limit_seconds: 10
    options: [Berlin, Paris, Rome, Madrid]
    correct: 1
`
	var quiz Quiz
	if err := yaml.Unmarshal([]byte(doc), &quiz); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if err := quiz.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if quiz.Questions[0].Variant.Kind() != KindSlider {
		t.Fatalf("expected slider, got %s", quiz.Questions[0].Variant.Kind())
	}
}

func TestRedactHidesCorrectAnswer(t *testing.T) {
	q := Question{Text: "2+2?", TimeLimitSeconds: 10, Variant: MultipleChoice{Options: []string{"3", "4", "5", "6"}, Correct: 1}}
	data, err := json.Marshal(Redact(q))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "correct") {
		t.Fatalf("redacted payload leaks answer: %s", data)
	}

	slider := Redact(Question{Text: "x", TimeLimitSeconds: 5, Variant: Slider{Min: 0, Max: 100, Correct: 42}})
	if slider.Min == nil || *slider.Max != 100 {
		t.Fatalf("expected slider range, got %+v", slider)
	}
	if got := CorrectAnswer(Question{Variant: MultiChoice{Options: []string{"a", "b", "c"}, Correct: []int{2, 0}}}); len(got.Indices) != 2 || got.Indices[0] != 0 {
		t.Fatalf("expected sorted correct set, got %+v", got)
	}
}

func TestErrorCode(t *testing.T) {
	if got := ErrorCode(ErrDuplicateSubmission); got != "duplicate_submission" {
		t.Fatalf("got %s", got)
	}
	if got := ErrorCode(errors.Join(errors.New("x"), ErrExpired)); got != "expired" {
		t.Fatalf("got %s", got)
	}
	if got := ErrorCode(errors.New("boom")); got != "internal" {
		t.Fatalf("got %s", got)
	}
}

func TestEmptySelectionSurvivesTheWire(t *testing.T) {
	data, err := json.Marshal(IndicesAnswer())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"indices":[]}` {
		t.Fatalf("unexpected encoding %s", data)
	}
	var back AnswerValue
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Indices == nil || len(back.Indices) != 0 || back.IsZero() {
		t.Fatalf("empty selection lost: %+v", back)
	}

	data, _ = json.Marshal(IndexAnswer(2))
	if string(data) != `{"index":2}` {
		t.Fatalf("unexpected index encoding %s", data)
	}
}
