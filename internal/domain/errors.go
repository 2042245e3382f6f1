package domain

import "errors"

var (
	// ErrProtocolViolation is returned when a message arrives in a phase where it is not valid.
	ErrProtocolViolation = errors.New("message not valid in current phase")
	// ErrDuplicateSubmission is returned for a second answer to an already answered question.
	ErrDuplicateSubmission = errors.New("question already answered")
	// ErrUnknownPlayer is returned when a peer ID is not in the session registry.
	ErrUnknownPlayer = errors.New("player not found in session")
	// ErrPlayerDisconnected is returned when a disconnected player tries to act.
	ErrPlayerDisconnected = errors.New("player is disconnected")
	// ErrExpired is returned for answers that arrive after the question time limit.
	ErrExpired = errors.New("answer arrived after time limit")
	// ErrNoConnectedPlayers is returned when the host starts a quiz with nobody connected.
	ErrNoConnectedPlayers = errors.New("no connected players")
	// ErrJoinClosed is returned when a new player tries to join after the lobby closed.
	ErrJoinClosed = errors.New("session no longer accepts new players")
	// ErrNameTaken is returned when another player already uses the requested name.
	ErrNameTaken = errors.New("name already taken")
	// ErrInvalidName is returned for empty or oversized player names.
	ErrInvalidName = errors.New("invalid player name")
	// ErrInvalidAnswer is returned when a submitted value does not fit the question variant.
	ErrInvalidAnswer = errors.New("invalid answer value")
	// ErrInvalidQuiz indicates the quiz document failed structural validation.
	ErrInvalidQuiz = errors.New("invalid quiz")
	// ErrSessionNotFound is returned when no session is registered under a join code.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionClosed is returned once a session has been torn down.
	ErrSessionClosed = errors.New("quiz session closed")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrForbidden is returned when a host acts on a session it does not own.
	ErrForbidden = errors.New("not the session host")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrDuplicateSubmission, "duplicate_submission"},
	{ErrUnknownPlayer, "unknown_player"},
	{ErrPlayerDisconnected, "player_disconnected"},
	{ErrExpired, "expired"},
	{ErrNoConnectedPlayers, "no_connected_players"},
	{ErrJoinClosed, "join_closed"},
	{ErrNameTaken, "name_taken"},
	{ErrInvalidName, "invalid_name"},
	{ErrInvalidAnswer, "invalid_answer"},
	{ErrInvalidQuiz, "invalid_quiz"},
	{ErrSessionNotFound, "session_not_found"},
	{ErrSessionClosed, "session_closed"},
	{ErrQuizNotFound, "quiz_not_found"},
	{ErrForbidden, "forbidden"},
	{ErrProtocolViolation, "protocol_violation"},
}

// ErrorCode maps an error to the stable code sent to clients.
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
