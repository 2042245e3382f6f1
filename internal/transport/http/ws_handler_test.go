package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/protocol"

	"github.com/gorilla/websocket"
)

type testEnv struct {
	server  *httptest.Server
	service *app.GameService
	tokens  *auth.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewSessionStore()
	quizRepo := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuiz()), time.Minute)
	service := app.NewGameService(store, quizRepo, app.SessionOptions{})

	hash, err := auth.HashPassword("hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	tokens := auth.NewManager("test-secret", time.Hour)
	api := NewAPI(service, tokens, auth.NewHosts(map[string]string{"host-1": hash}), "")
	server := httptest.NewServer(NewRouter(api, NewWSHandler(service, tokens, 0)))
	t.Cleanup(func() {
		service.Shutdown()
		server.Close()
	})
	return &testEnv{server: server, service: service, tokens: tokens}
}

func (e *testEnv) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(e.server.URL, "http") + path
}

func (e *testEnv) dialPlayer(t *testing.T, code, name, peerID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(e.wsURL("/ws/play?code="+code), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	join := protocol.Message{Type: protocol.TypeJoin, Payload: protocol.JoinPayload{Name: name, PeerID: peerID}}
	if err := conn.WriteJSON(join); err != nil {
		t.Fatalf("write join: %v", err)
	}
	return conn
}

func TestWebSocketAnswerFlow(t *testing.T) {
	env := newTestEnv(t)
	session, err := env.service.CreateSession(t.Context(), "host-1", "quiz-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	conn := env.dialPlayer(t, strings.ToLower(session.Code()), "Alice", "")
	defer conn.Close()

	var welcome protocol.WelcomePayload
	readUntil(t, conn, protocol.TypeWelcome, &welcome)
	if welcome.PeerID == "" || welcome.Phase != domain.PhaseLobby {
		t.Fatalf("unexpected welcome %+v", welcome)
	}
	var lobby protocol.LobbyPayload
	readUntil(t, conn, protocol.TypeLobby, &lobby)
	if lobby.PlayerCount != 1 {
		t.Fatalf("expected one player in lobby, got %+v", lobby)
	}

	if err := env.service.StartQuiz("host-1", session.Code()); err != nil {
		t.Fatalf("start: %v", err)
	}
	var question protocol.QuestionPayload
	readUntil(t, conn, protocol.TypeQuestion, &question)
	if question.Index != 0 || len(question.Question.Options) != 4 {
		t.Fatalf("unexpected question %+v", question)
	}

	answer := map[string]any{
		"type":    "answer",
		"payload": map[string]any{"questionIndex": 0, "value": map[string]any{"index": 1}},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}

	var ack protocol.AnswerAckPayload
	readUntil(t, conn, protocol.TypeAnswerAck, &ack)
	if !ack.Accepted {
		t.Fatalf("expected accepted ack, got %+v", ack)
	}
	var reveal protocol.RevealPayload
	readUntil(t, conn, protocol.TypeReveal, &reveal)
	if !reveal.Result.Correct || reveal.TotalScore == 0 {
		t.Fatalf("expected correct reveal, got %+v", reveal)
	}

	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write late answer: %v", err)
	}
	readUntil(t, conn, protocol.TypeAnswerAck, &ack)
	if ack.Accepted || ack.Code != "protocol_violation" {
		t.Fatalf("expected rejected ack, got %+v", ack)
	}
}

func TestJoinClosedAfterStart(t *testing.T) {
	env := newTestEnv(t)
	session, _ := env.service.CreateSession(t.Context(), "host-1", "quiz-1")

	first := env.dialPlayer(t, session.Code(), "Alice", "")
	defer first.Close()
	readUntil(t, first, protocol.TypeLobby, nil)
	if err := env.service.StartQuiz("host-1", session.Code()); err != nil {
		t.Fatalf("start: %v", err)
	}

	late := env.dialPlayer(t, session.Code(), "Bob", "")
	defer late.Close()
	var errPayload protocol.ErrorPayload
	readUntil(t, late, protocol.TypeError, &errPayload)
	if errPayload.Code != "join_closed" {
		t.Fatalf("expected join_closed, got %+v", errPayload)
	}
}

func TestUnknownCodeRejectedBeforeUpgrade(t *testing.T) {
	env := newTestEnv(t)
	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL("/ws/play?code=ZZZZZZ"), nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %+v", resp)
	}
}

func TestReconnectKeepsScoreAndIdentity(t *testing.T) {
	env := newTestEnv(t)
	session, _ := env.service.CreateSession(t.Context(), "host-1", "quiz-1")

	conn := env.dialPlayer(t, session.Code(), "Alice", "")
	var welcome protocol.WelcomePayload
	readUntil(t, conn, protocol.TypeWelcome, &welcome)
	readUntil(t, conn, protocol.TypeLobby, nil)
	_ = env.service.StartQuiz("host-1", session.Code())
	readUntil(t, conn, protocol.TypeQuestion, nil)
	_ = conn.Close()

	waitFor(t, func() bool {
		state, _ := session.Snapshot()
		return len(state.Players) == 1 && !state.Players[0].Connected
	})

	again := env.dialPlayer(t, session.Code(), "", welcome.PeerID)
	defer again.Close()
	var back protocol.WelcomePayload
	readUntil(t, again, protocol.TypeWelcome, &back)
	if !back.Reconnected || back.PeerID != welcome.PeerID || back.Name != "Alice" {
		t.Fatalf("unexpected reconnect welcome %+v", back)
	}
	var question protocol.QuestionPayload
	readUntil(t, again, protocol.TypeQuestion, &question)
	if question.Answered || question.RemainingMs <= 0 {
		t.Fatalf("unexpected replayed question %+v", question)
	}
}

func TestHostAPIAndConsole(t *testing.T) {
	env := newTestEnv(t)
	client := env.server.Client()

	body, _ := json.Marshal(loginRequest{Username: "host-1", Password: "wrong"})
	resp, err := client.Post(env.server.URL+"/api/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", resp.StatusCode)
	}

	body, _ = json.Marshal(loginRequest{Username: "host-1", Password: "hunter2"})
	resp, err = client.Post(env.server.URL+"/api/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	var login loginResponse
	_ = json.NewDecoder(resp.Body).Decode(&login)
	resp.Body.Close()
	if login.Token == "" {
		t.Fatalf("expected token")
	}

	create := authed(t, http.MethodPost, env.server.URL+"/api/sessions", login.Token, `{"quizId":"quiz-1"}`)
	resp, _ = client.Do(create)
	var created createResponse
	_ = json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated || created.Code == "" || !strings.Contains(created.JoinURL, created.Code) {
		t.Fatalf("unexpected create response %d %+v", resp.StatusCode, created)
	}

	resp, _ = client.Get(env.server.URL + "/api/sessions/" + created.Code)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	other, _, _ := env.tokens.Issue("host-2")
	resp, _ = client.Do(authed(t, http.MethodPost, env.server.URL+"/api/sessions/"+created.Code+"/start", other, ""))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for another host, got %d", resp.StatusCode)
	}

	resp, _ = client.Do(authed(t, http.MethodPost, env.server.URL+"/api/sessions/"+created.Code+"/start", login.Token, ""))
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 starting an empty lobby, got %d", resp.StatusCode)
	}

	resp, _ = client.Get(env.server.URL + "/api/sessions/" + created.Code + "/qr")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("expected png qr code, got %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	console, _, err := websocket.DefaultDialer.Dial(env.wsURL("/ws/host?code="+created.Code+"&token="+login.Token), nil)
	if err != nil {
		t.Fatalf("dial host console: %v", err)
	}
	defer console.Close()
	var state protocol.HostStatePayload
	readUntil(t, console, protocol.TypeHostState, &state)
	if state.Phase != domain.PhaseLobby || state.Code != created.Code {
		t.Fatalf("unexpected host state %+v", state)
	}

	player := env.dialPlayer(t, created.Code, "Alice", "")
	defer player.Close()
	readUntil(t, player, protocol.TypeLobby, nil)
	readUntil(t, console, protocol.TypeHostState, &state)

	if err := console.WriteJSON(protocol.Message{Type: protocol.TypeHostStart}); err != nil {
		t.Fatalf("host start: %v", err)
	}
	readUntil(t, player, protocol.TypeQuestion, nil)

	resp, _ = client.Do(authed(t, http.MethodGet, env.server.URL+"/api/sessions/"+created.Code, login.Token, ""))
	_ = json.NewDecoder(resp.Body).Decode(&state)
	resp.Body.Close()
	if state.Phase != domain.PhaseQuestion || len(state.Players) != 1 {
		t.Fatalf("unexpected snapshot %+v", state)
	}

	resp, _ = client.Do(authed(t, http.MethodDelete, env.server.URL+"/api/sessions/"+created.Code, login.Token, ""))
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 on end, got %d", resp.StatusCode)
	}
	readUntil(t, player, protocol.TypeFinished, nil)

	resp, _ = client.Get(env.server.URL + "/api/sessions/" + created.Code + "/standings")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected ended session to be gone, got %d", resp.StatusCode)
	}
}

func authed(t *testing.T, method, url, token, body string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// readUntil skips messages until one of the wanted type arrives, decoding its payload into dst.
func readUntil(t *testing.T, conn *websocket.Conn, want protocol.MessageType, dst any) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		if env.Type != want {
			continue
		}
		if dst != nil {
			if err := env.Decode(dst); err != nil {
				t.Fatalf("decode %s: %v", want, err)
			}
		}
		return
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func sampleQuiz() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Arithmetic",
			Questions: []domain.Question{
				{
					ID:               "q1",
					Text:             "What is 2 + 2?",
					TimeLimitSeconds: 30,
					Variant:          domain.MultipleChoice{Options: []string{"3", "4", "5", "6"}, Correct: 1},
				},
				{
					ID:               "q2",
					Text:             "The earth is flat",
					TimeLimitSeconds: 30,
					Variant:          domain.TrueFalse{Options: []string{"True", "False"}, Correct: 1},
				},
			},
		},
	}
}
