package domain

import (
	"encoding/json"
	"time"
)

// Phase is the session-wide stage of progress through a quiz.
type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhaseQuestion Phase = "question"
	PhaseReveal   Phase = "answer_reveal"
	PhaseSummary  Phase = "answer_summary"
	PhaseFinished Phase = "finished"
)

// Player represents a joined participant and their accumulated score.
// Players are never deleted while the session lives; a lost connection only clears Connected.
type Player struct {
	PeerID    string
	Name      string
	Score     int
	Connected bool
	Answered  map[int]bool
	JoinedAt  time.Time
}

// HasAnswered reports whether the player already has an answer recorded for the question index.
func (p *Player) HasAnswered(index int) bool {
	return p.Answered[index]
}

// Answer is a recorded submission. At most one exists per (PeerID, QuestionIndex).
type Answer struct {
	PeerID         string        `json:"peerId"`
	QuestionIndex  int           `json:"questionIndex"`
	Value          AnswerValue   `json:"value"`
	SubmittedAfter time.Duration `json:"submittedAfterMs"`
}

// AnswerValue carries exactly one of its fields depending on the question variant:
// Index for multiple_choice and true_false, Indices for multi_choice, Number for slider.
type AnswerValue struct {
	Index   *int     `json:"index,omitempty"`
	Indices []int    `json:"indices,omitempty"`
	Number  *float64 `json:"number,omitempty"`
}

func IndexAnswer(i int) AnswerValue {
	return AnswerValue{Index: &i}
}

// IndicesAnswer with no arguments is an empty selection, which scores as wrong rather than invalid.
func IndicesAnswer(indices ...int) AnswerValue {
	out := make([]int, len(indices))
	copy(out, indices)
	return AnswerValue{Indices: out}
}

func NumberAnswer(n float64) AnswerValue {
	return AnswerValue{Number: &n}
}

// MarshalJSON keeps an empty multi_choice selection on the wire as "indices": [].
func (v AnswerValue) MarshalJSON() ([]byte, error) {
	w := struct {
		Index   *int     `json:"index,omitempty"`
		Indices *[]int   `json:"indices,omitempty"`
		Number  *float64 `json:"number,omitempty"`
	}{Index: v.Index, Number: v.Number}
	if v.Indices != nil {
		w.Indices = &v.Indices
	}
	return json.Marshal(w)
}

// IsZero reports whether no field is set.
func (v AnswerValue) IsZero() bool {
	return v.Index == nil && v.Indices == nil && v.Number == nil
}

// Standing is a derived scoreboard row; ranks are recomputed every time standings are requested.
type Standing struct {
	PeerID    string `json:"peerId"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Rank      int    `json:"rank"`
	Connected bool   `json:"connected"`
}

// Quiz is an ordered collection of questions, immutable for a session's lifetime.
type Quiz struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	Questions []Question `json:"questions" yaml:"questions"`
}
