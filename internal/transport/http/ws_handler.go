package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/joincode"
	"live-quiz-service/internal/protocol"

	"github.com/gorilla/websocket"
)

type WSHandler struct {
	service    *app.GameService
	tokens     *auth.Manager
	upgrader   websocket.Upgrader
	sendBuffer int
}

func NewWSHandler(service *app.GameService, tokens *auth.Manager, sendBuffer int) *WSHandler {
	return &WSHandler{
		service:    service,
		tokens:     tokens,
		sendBuffer: sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServePlayer upgrades a player connection. The first message must be a join;
// after that the socket carries answers in and phase broadcasts out.
func (h *WSHandler) ServePlayer(w http.ResponseWriter, r *http.Request) {
	code := joincode.Normalize(r.URL.Query().Get("code"))
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}
	if _, err := h.service.Find(code); err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "error", err)
		return
	}
	ch := newWSChannel(conn, h.sendBuffer)
	defer func() {
		_ = ch.Close()
		ch.Wait()
	}()

	peerID, err := h.join(ch, code)
	if err != nil {
		slog.Debug("join rejected", "code", code, "error", err)
		_ = ch.Send(protocol.ErrorMessage(err))
		return
	}
	defer func() {
		if err := h.service.Disconnect(code, peerID, ch); err != nil {
			slog.Debug("disconnect after session end", "code", code, "peer", peerID, "error", err)
		}
	}()

	for {
		env, err := ch.Read(pongWait)
		if err != nil {
			return
		}
		switch env.Type {
		case protocol.TypeAnswer:
			h.answer(ch, code, peerID, env)
		default:
			_ = ch.Send(protocol.ErrorMessage(fmt.Errorf("%w: unexpected %q", domain.ErrProtocolViolation, env.Type)))
		}
	}
}

func (h *WSHandler) join(ch *wsChannel, code string) (string, error) {
	env, err := ch.Read(joinWait)
	if err != nil {
		return "", fmt.Errorf("%w: no join message: %v", domain.ErrProtocolViolation, err)
	}
	if env.Type != protocol.TypeJoin {
		return "", fmt.Errorf("%w: expected join, got %q", domain.ErrProtocolViolation, env.Type)
	}
	var payload protocol.JoinPayload
	if err := env.Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrProtocolViolation, err)
	}
	_, player, err := h.service.Join(code, payload.PeerID, payload.Name, ch)
	if err != nil {
		return "", err
	}
	return player.PeerID, nil
}

func (h *WSHandler) answer(ch *wsChannel, code, peerID string, env protocol.Envelope) {
	var payload protocol.AnswerPayload
	if err := env.Decode(&payload); err != nil {
		_ = ch.Send(protocol.ErrorMessage(fmt.Errorf("%w: %v", domain.ErrInvalidAnswer, err)))
		return
	}
	if _, err := h.service.SubmitAnswer(code, peerID, payload.QuestionIndex, payload.Value); err != nil {
		slog.Debug("answer rejected", "code", code, "peer", peerID, "index", payload.QuestionIndex, "error", err)
		_ = ch.Send(protocol.Message{Type: protocol.TypeAnswerAck, Payload: protocol.AnswerAckPayload{
			QuestionIndex: payload.QuestionIndex,
			Accepted:      false,
			Code:          domain.ErrorCode(err),
		}})
	}
}

// ServeHost upgrades a host console. It receives host:state after every change
// and may drive the session with host:start, host:advance and host:end.
func (h *WSHandler) ServeHost(w http.ResponseWriter, r *http.Request) {
	code := joincode.Normalize(r.URL.Query().Get("code"))
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}
	claims, err := h.tokens.Parse(token)
	if err != nil {
		writeError(w, err)
		return
	}
	hostID := claims.Subject
	if _, err := h.service.Snapshot(hostID, code); err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "error", err)
		return
	}
	ch := newWSChannel(conn, h.sendBuffer)
	defer func() {
		_ = ch.Close()
		ch.Wait()
	}()

	session, err := h.service.Observe(hostID, code, ch)
	if err != nil {
		_ = ch.Send(protocol.ErrorMessage(err))
		return
	}
	defer session.Unobserve(ch)

	for {
		env, err := ch.Read(pongWait)
		if err != nil {
			return
		}
		switch env.Type {
		case protocol.TypeHostStart:
			err = h.service.StartQuiz(hostID, code)
		case protocol.TypeHostAdvance:
			err = h.service.Advance(hostID, code)
		case protocol.TypeHostEnd:
			if err := h.service.End(hostID, code); err != nil {
				_ = ch.Send(protocol.ErrorMessage(err))
			}
			return
		default:
			err = fmt.Errorf("%w: unexpected %q", domain.ErrProtocolViolation, env.Type)
		}
		if err != nil {
			_ = ch.Send(protocol.ErrorMessage(err))
		}
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
