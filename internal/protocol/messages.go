// Package protocol defines the messages exchanged between a game session and its players.
package protocol

import (
	"encoding/json"
	"fmt"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/scoring"
)

type MessageType string

const (
	// Host -> player
	TypeLobby     MessageType = "phase:lobby"
	TypeQuestion  MessageType = "phase:question"
	TypeReveal    MessageType = "phase:reveal"
	TypeSummary   MessageType = "phase:summary"
	TypeFinished  MessageType = "phase:finished"
	TypeWelcome   MessageType = "welcome"
	TypeAnswerAck MessageType = "answer:ack"
	TypeError     MessageType = "error"

	// Host -> host console
	TypeHostState MessageType = "host:state"

	// Player -> host
	TypeJoin   MessageType = "join"
	TypeAnswer MessageType = "answer"

	// Host console -> host
	TypeHostStart   MessageType = "host:start"
	TypeHostAdvance MessageType = "host:advance"
	TypeHostEnd     MessageType = "host:end"
)

// Message is an outbound envelope.
type Message struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload,omitempty"`
}

// Envelope is an inbound envelope whose payload is decoded once the type is known.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the payload into dst.
func (e Envelope) Decode(dst any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("%s payload: %w", e.Type, err)
	}
	return nil
}

// Encode turns an outbound message into an envelope, as a peer on the other end would receive it.
func Encode(msg Message) (Envelope, error) {
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: msg.Type, Payload: raw}, nil
}

type LobbyPayload struct {
	Code        string   `json:"code"`
	PlayerCount int      `json:"playerCount"`
	Players     []string `json:"players"`
}

type QuestionPayload struct {
	Index            int                     `json:"index"`
	Total            int                     `json:"total"`
	Question         domain.RedactedQuestion `json:"question"`
	TimeLimitSeconds int                     `json:"timeLimitSeconds"`
	RemainingMs      int64                   `json:"remainingMs"`
	Answered         bool                    `json:"answered"`
}

type RevealPayload struct {
	Index       int                `json:"index"`
	Correct     domain.AnswerValue `json:"correctAnswer"`
	Answered    bool               `json:"answered"`
	Result      scoring.Result     `json:"result"`
	TotalScore  int                `json:"totalScore"`
	AnswerCount int                `json:"answerCount"`
}

type SummaryPayload struct {
	Index     int               `json:"index"`
	Total     int               `json:"total"`
	Standings []domain.Standing `json:"standings"`
	Self      *domain.Standing  `json:"self,omitempty"`
}

type FinishedPayload struct {
	Standings []domain.Standing `json:"standings"`
	Self      *domain.Standing  `json:"self,omitempty"`
}

type WelcomePayload struct {
	PeerID      string       `json:"peerId"`
	Code        string       `json:"code"`
	Name        string       `json:"name"`
	Score       int          `json:"score"`
	Phase       domain.Phase `json:"phase"`
	Reconnected bool         `json:"reconnected"`
}

type AnswerAckPayload struct {
	QuestionIndex int    `json:"questionIndex"`
	Accepted      bool   `json:"accepted"`
	Code          string `json:"code,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type JoinPayload struct {
	Name   string `json:"name"`
	PeerID string `json:"peerId,omitempty"`
}

type AnswerPayload struct {
	QuestionIndex int                `json:"questionIndex"`
	Value         domain.AnswerValue `json:"value"`
}

// HostPlayer is the unredacted per-player row on the host console.
type HostPlayer struct {
	PeerID    string `json:"peerId"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Connected bool   `json:"connected"`
	Answered  bool   `json:"answered"`
}

type HostStatePayload struct {
	Code          string       `json:"code"`
	QuizID        string       `json:"quizId"`
	Title         string       `json:"title"`
	Phase         domain.Phase `json:"phase"`
	QuestionIndex int          `json:"questionIndex"`
	Total         int          `json:"total"`
	AnswerCount   int          `json:"answerCount"`
	Players       []HostPlayer `json:"players"`
}

// ErrorMessage reports a rejected inbound message to its sender.
func ErrorMessage(err error) Message {
	return Message{Type: TypeError, Payload: ErrorPayload{Code: domain.ErrorCode(err), Message: err.Error()}}
}
