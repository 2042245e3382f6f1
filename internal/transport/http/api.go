package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/protocol"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320

type ctxKey int

const hostIDKey ctxKey = iota

// API serves the host REST endpoints.
type API struct {
	service   *app.GameService
	tokens    *auth.Manager
	hosts     *auth.Hosts
	publicURL string
}

func NewAPI(service *app.GameService, tokens *auth.Manager, hosts *auth.Hosts, publicURL string) *API {
	return &API{service: service, tokens: tokens, hosts: hosts, publicURL: strings.TrimRight(publicURL, "/")}
}

// Routes registers all API routes.
func (a *API) Routes(r chi.Router) {
	r.Post("/login", a.handleLogin)
	r.Get("/sessions/{code}/standings", a.handleStandings)
	r.Get("/sessions/{code}/qr", a.handleQR)
	r.Group(func(r chi.Router) {
		r.Use(a.requireHost)
		r.Post("/sessions", a.handleCreate)
		r.Get("/sessions/{code}", a.handleSnapshot)
		r.Delete("/sessions/{code}", a.handleEnd)
		r.Post("/sessions/{code}/start", a.handleStart)
		r.Post("/sessions/{code}/advance", a.handleAdvance)
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type createRequest struct {
	QuizID string `json:"quizId"`
}

type createResponse struct {
	Code    string `json:"code"`
	JoinURL string `json:"joinUrl"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	hostID, err := a.hosts.Authenticate(req.Username, req.Password)
	if err != nil {
		slog.Info("login failed", "username", req.Username)
		writeError(w, err)
		return
	}
	token, expires, err := a.tokens.Issue(hostID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expires})
}

func (a *API) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuizID == "" {
		http.Error(w, "quizId required", http.StatusBadRequest)
		return
	}
	session, err := a.service.CreateSession(r.Context(), hostFrom(r.Context()), req.QuizID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createResponse{Code: session.Code(), JoinURL: a.joinURL(r, session.Code())})
}

func (a *API) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	state, err := a.service.Snapshot(hostFrom(r.Context()), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) handleStart(w http.ResponseWriter, r *http.Request) {
	a.hostAction(w, r, a.service.StartQuiz)
}

func (a *API) handleAdvance(w http.ResponseWriter, r *http.Request) {
	a.hostAction(w, r, a.service.Advance)
}

func (a *API) handleEnd(w http.ResponseWriter, r *http.Request) {
	a.hostAction(w, r, a.service.End)
}

func (a *API) hostAction(w http.ResponseWriter, r *http.Request, action func(hostID, code string) error) {
	if err := action(hostFrom(r.Context()), chi.URLParam(r, "code")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleStandings(w http.ResponseWriter, r *http.Request) {
	standings, err := a.service.Standings(chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, standings)
}

// handleQR renders a PNG QR code of the join link.
func (a *API) handleQR(w http.ResponseWriter, r *http.Request) {
	session, err := a.service.Find(chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	png, err := qrcode.Encode(a.joinURL(r, session.Code()), qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (a *API) joinURL(r *http.Request, code string) string {
	base := a.publicURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/?code=" + url.QueryEscape(code)
}

func (a *API) requireHost(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.tokens.Parse(bearerToken(r))
		if err != nil {
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), hostIDKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func hostFrom(ctx context.Context) string {
	id, _ := ctx.Value(hostIDKey).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	code := domain.ErrorCode(err)
	if status == http.StatusUnauthorized {
		code = "unauthorized"
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, protocol.ErrorPayload{Code: code, Message: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrQuizNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, domain.ErrProtocolViolation), errors.Is(err, domain.ErrNoConnectedPlayers):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidQuiz):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
