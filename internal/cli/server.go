package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/file"
	"live-quiz-service/internal/infra/memory"
	pgloader "live-quiz-service/internal/infra/postgres"
	redisinfra "live-quiz-service/internal/infra/redis"
	transport "live-quiz-service/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viperForCmd(cmd)
			return runServer(cmd.Context(), v.GetString("config"), v.GetString("port"))
		},
	}
	cmd.Flags().String("port", "", "HTTP listen port, overrides server.port (env: QUIZ_PORT)")
	return cmd
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.LoadOptional(configPath)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.Duration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader
	switch {
	case pool != nil:
		loader = pgloader.NewQuizLoader(pool)
		slog.Info("loading quizzes from postgres")
	case cfg.Quiz.Dir != "":
		loader = file.NewQuizLoader(cfg.Quiz.Dir)
		slog.Info("loading quizzes from directory", "dir", cfg.Quiz.Dir)
	case len(cfg.Quiz.Quizzes) > 0:
		loader = memory.NewStaticQuizLoader(indexQuizzes(cfg.Quiz.Quizzes))
		slog.Info("loading quizzes from config", "count", len(cfg.Quiz.Quizzes))
	default:
		loader = memory.NewStaticQuizLoader(sampleQuizzes())
		slog.Warn("no quiz source configured, serving the built-in sample quiz")
	}

	quizTTL := config.Duration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var (
		store      app.SessionRepository
		redisStore *redisinfra.SessionStore
	)
	if redisClient != nil {
		redisStore = redisinfra.NewSessionStore(redisClient, redisTTL, instanceName(finalPort))
		store = redisStore
	} else {
		store = memory.NewSessionStore()
	}

	service := app.NewGameService(store, quizRepo, app.SessionOptions{
		Policy:        cfg.ScoringPolicy(),
		RevealDelay:   config.Duration(cfg.Session.RevealDelay, 0),
		SummaryDelay:  config.Duration(cfg.Session.SummaryDelay, 0),
		StandingsTopN: cfg.Session.StandingsTopN,
		OnFinished: func(code string) {
			slog.Info("session finished", "code", code)
		},
	})

	tokens := auth.NewManager(cfg.Auth.Secret, config.Duration(cfg.Auth.TokenTTL, auth.DefaultTokenTTL))
	if cfg.Auth.Secret == "" {
		slog.Warn("auth.secret is empty, host tokens are signed with the development default")
	}
	hosts := auth.NewHosts(cfg.Auth.Hosts)
	if len(cfg.Auth.Hosts) == 0 {
		slog.Warn("no hosts configured in auth.hosts, host login is disabled")
	}

	api := transport.NewAPI(service, tokens, hosts, cfg.Server.PublicURL)
	wsHandler := transport.NewWSHandler(service, tokens, cfg.Session.SendBuffer)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewRouter(api, wsHandler),
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting quiz service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		reapIdle(gctx, service,
			config.Duration(cfg.Session.ReapInterval, time.Minute),
			config.Duration(cfg.Session.IdleTimeout, 30*time.Minute))
		return nil
	})
	if redisStore != nil {
		g.Go(func() error {
			touchReservations(gctx, redisStore, redisTTL/2)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		service.Shutdown()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func reapIdle(ctx context.Context, service *app.GameService, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := service.ReapIdle(now.Add(-idle)); n > 0 {
				slog.Info("reaped idle sessions", "count", n)
			}
		}
	}
}

func touchReservations(ctx context.Context, store *redisinfra.SessionStore, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Touch(ctx); err != nil {
				slog.Warn("refresh join code reservations", "error", err)
			}
		}
	}
}

func instanceName(port string) string {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return host + ":" + port
}

func indexQuizzes(quizzes []domain.Quiz) map[string]domain.Quiz {
	out := make(map[string]domain.Quiz, len(quizzes))
	for _, q := range quizzes {
		out[q.ID] = q
	}
	return out
}

// sampleQuizzes is served when no quiz source is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"sample": {
			ID:    "sample",
			Title: "Warm-up",
			Questions: []domain.Question{
				{
					ID:               "q1",
					Text:             "What is 2 + 2?",
					TimeLimitSeconds: 20,
					Variant:          domain.MultipleChoice{Options: []string{"3", "4", "5", "22"}, Correct: 1},
				},
				{
					ID:               "q2",
					Text:             "Go has generics.",
					TimeLimitSeconds: 10,
					Variant:          domain.TrueFalse{Options: []string{"True", "False"}, Correct: 0},
				},
				{
					ID:               "q3",
					Text:             "Which of these are prime?",
					TimeLimitSeconds: 30,
					Variant:          domain.MultiChoice{Options: []string{"2", "4", "7", "9"}, Correct: []int{0, 2}},
				},
				{
					ID:               "q4",
					Text:             "In what year was Go first released?",
					TimeLimitSeconds: 30,
					Variant:          domain.Slider{Min: 2000, Max: 2020, Correct: 2009},
				},
			},
		},
	}
}
