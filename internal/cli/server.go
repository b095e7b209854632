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

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/export"
	"live-quiz-service/internal/infra/memory"
	pginfra "live-quiz-service/internal/infra/postgres"
	redisinfra "live-quiz-service/internal/infra/redis"
	"live-quiz-service/internal/metrics"
	"live-quiz-service/internal/scoring"
	"live-quiz-service/internal/timer"
	transport "live-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func resolvePort(flag string, cfg config.Config) string {
	if flag != "" {
		return flag
	}
	if cfg.Server.Port != "" {
		return cfg.Server.Port
	}
	return "8080"
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, logger); err != nil {
			return err
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: ping: %w", err)
		}
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("postgres: connect: %w", err)
		}
		defer pool.Close()
	}

	loader, err := quizLoader(cfg, pool)
	if err != nil {
		return err
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	var store app.SessionRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL, logger)
		store = redisinfra.NewSessionStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 24*time.Hour))
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
		store = memory.NewSessionStore()
	}

	var tokens app.TokenValidator = memory.NewStaticTokenValidator(cfg.Auth.Tokens)
	if pool != nil {
		tokens = pginfra.NewTokenValidator(pool)
	}

	policy, err := scoring.ParseResubmitPolicy(cfg.Session.ResubmitPolicy)
	if err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	port := resolvePort(portFlag, cfg)
	baseURL := cfg.Server.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:" + port
	}
	exportDir := cfg.Export.Dir
	if exportDir == "" {
		exportDir = "exports"
	}
	artifacts, err := export.NewFileStore(exportDir, baseURL)
	if err != nil {
		return err
	}

	registry := timer.NewRegistry(logger)
	defer registry.Stop()
	m := metrics.New()

	service := app.NewQuizService(app.Deps{
		Sessions:  store,
		Quizzes:   quizRepo,
		Tokens:    tokens,
		Scheduler: registry,
		Artifacts: artifacts,
		Metrics:   m,
		Logger:    logger,
	}, app.Config{
		Countdown:         config.TTLDuration(cfg.Session.Countdown, app.DefaultCountdown),
		MaxActiveSessions: cfg.Session.MaxActiveSessions,
		MaxAutoStart:      cfg.Session.MaxAutoStart,
		ResubmitPolicy:    policy,
	})

	server := &http.Server{
		Addr: ":" + port,
		Handler: transport.NewRouter(transport.RouterConfig{
			Logger:    logger,
			Service:   service,
			ExportDir: artifacts.Dir(),
			Metrics:   m.Handler(),
		}),
		ReadHeaderTimeout: 15 * time.Second,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.InfoContext(ctx, "starting quiz service", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		logger.InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}

// quizLoader prefers Postgres, then the quiz file, then the built-in demo quiz.
func quizLoader(cfg config.Config, pool *pgxpool.Pool) (memory.QuizLoader, error) {
	switch {
	case pool != nil:
		return pginfra.NewQuizLoader(pool), nil
	case cfg.Quiz.File != "":
		return memory.LoadQuizFile(cfg.Quiz.File)
	default:
		return memory.NewStaticQuizLoader(demoQuizzes()), nil
	}
}

func demoQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"demo": {
			ID:          "demo",
			OwnerID:     "demo-owner",
			Name:        "Warm-up",
			Description: "Two quick questions",
			Questions: []domain.Question{
				{
					ID:       "q1",
					Prompt:   "What is 2 + 2?",
					Duration: 20,
					Points:   10,
					Answers: []domain.Answer{
						{ID: "a1", Text: "3", Colour: "red"},
						{ID: "a2", Text: "4", Colour: "blue", Correct: true},
						{ID: "a3", Text: "5", Colour: "green"},
					},
				},
				{
					ID:       "q2",
					Prompt:   "Which of these are prime?",
					Duration: 30,
					Points:   20,
					Answers: []domain.Answer{
						{ID: "b1", Text: "2", Colour: "red", Correct: true},
						{ID: "b2", Text: "4", Colour: "blue"},
						{ID: "b3", Text: "7", Colour: "green", Correct: true},
						{ID: "b4", Text: "9", Colour: "yellow"},
					},
				},
			},
		},
	}
}
