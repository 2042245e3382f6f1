package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/joincode"

	"github.com/redis/go-redis/v9"
)

const maxCodeAttempts = 16

// releaseScript deletes a reservation only while it still names this instance.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Sessions themselves live in this process; their event loops cannot move between instances.
//   - Redis reserves join codes (SET NX) so instances sharing a Redis never hand out the same code,
//     and the key doubles as a liveness marker refreshed by Touch.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	owner    string
	newCode  func() (string, error)
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

// NewSessionStore records owner (typically the instance address) as the value of each reserved code.
func NewSessionStore(client *redis.Client, ttl time.Duration, owner string) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		owner:    owner,
		newCode:  joincode.New,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Create(ctx context.Context, build func(code string) *app.Session) (*app.Session, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return nil, err
		}
		ok, err := s.client.SetNX(ctx, s.key(code), s.owner, s.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("reserve join code: %w", err)
		}
		if !ok {
			continue
		}

		session := build(code)
		s.mu.Lock()
		s.sessions[code] = session
		s.mu.Unlock()
		return session, nil
	}
	return nil, fmt.Errorf("no free join code after %d attempts", maxCodeAttempts)
}

func (s *SessionStore) Get(code string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[code]
	return session, ok
}

func (s *SessionStore) Delete(code string) {
	s.mu.Lock()
	delete(s.sessions, code)
	s.mu.Unlock()
	// A reservation that expired and was taken by another instance is left alone.
	if err := releaseScript.Run(context.Background(), s.client, []string{s.key(code)}, s.owner).Err(); err != nil {
		slog.Warn("release join code", "code", code, "error", err)
	}
}

func (s *SessionStore) List() []*app.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}

// Touch extends the reservation of every live session's code.
func (s *SessionStore) Touch(ctx context.Context) error {
	s.mu.RLock()
	codes := make([]string, 0, len(s.sessions))
	for code := range s.sessions {
		codes = append(codes, code)
	}
	s.mu.RUnlock()

	if len(codes) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, code := range codes {
		pipe.Expire(ctx, s.key(code), s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Owner reports which instance holds the code, or "" if nobody does.
func (s *SessionStore) Owner(ctx context.Context, code string) (string, error) {
	owner, err := s.client.Get(ctx, s.key(code)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return owner, err
}

func (s *SessionStore) key(code string) string {
	return "quiz:session:" + code
}
