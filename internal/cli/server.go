package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"livequiz/internal/app"
	"livequiz/internal/config"
	"livequiz/internal/domain"
	"livequiz/internal/infra/memory"
	pgstore "livequiz/internal/infra/postgres"
	redisstore "livequiz/internal/infra/redis"
	transport "livequiz/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

type stores struct {
	games   app.GameRepository
	players app.PlayerRepository
	boards  app.LeaderboardRepository
	quizzes app.QuizRepository
	archive app.ResultArchive
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

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

	s, cleanup, err := buildStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	board := app.NewLeaderboardMaintainer(s.boards, s.players, cfg.Game.LeaderboardSize)
	grace := config.TTLDuration(cfg.Game.AnswerGrace, 2*time.Second)
	answers := app.NewAnswerService(s.games, s.players, board, grace)
	controller := app.NewGameController(s.games, s.players, s.quizzes, board, app.NewHub(), s.archive, app.ControllerConfig{
		DefaultTimeLimit: cfg.Game.DefaultTimeLimit,
		AnswerGrace:      grace,
		AutoFinish:       cfg.Game.AutoFinishEnabled(),
	})
	defer controller.Close()

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(answers, controller),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: websocket connections stay open for the whole game.
	}

	go func() {
		log.Printf("starting livequiz on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildStores picks Redis for live game state when configured, memory otherwise, and
// Postgres for question sets and the results archive when configured.
func buildStores(ctx context.Context, cfg config.Config) (stores, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var s stores
	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return stores{}, cleanup, err
		}
		closers = append(closers, pool.Close)
		loader = pgstore.NewQuizLoader(pool)

		db := openBunDB(cfg.Postgres.URL)
		closers = append(closers, func() { _ = db.Close() })
		s.archive = pgstore.NewResultArchive(db)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if cfg.Redis.Addr == "" {
		s.games = memory.NewGameStore()
		s.players = memory.NewPlayerStore()
		s.boards = memory.NewLeaderboardStore()
		s.quizzes = memory.NewQuizRepository(loader, quizTTL)
		return s, cleanup, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	closers = append(closers, func() { _ = client.Close() })
	if err := client.Ping(ctx).Err(); err != nil {
		return stores{}, cleanup, err
	}
	retention := config.TTLDuration(cfg.Game.Retention, config.TTLDuration(cfg.Redis.TTL, 2*time.Hour))
	s.games = redisstore.NewGameStore(client, retention)
	s.players = redisstore.NewPlayerStore(client, retention)
	s.boards = redisstore.NewLeaderboardStore(client, retention)
	s.quizzes = redisstore.NewQuizRepository(client, loader, quizTTL)
	return s, cleanup, nil
}

// sampleQuizzes is served when no Postgres is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warm-up",
			Questions: []domain.Question{
				{
					Type:               domain.SingleChoice,
					Prompt:             "What is 2 + 2?",
					Options:            []string{"3", "4", "5"},
					CorrectAnswerIndex: 1,
				},
				{
					Type:                 domain.MultipleChoice,
					Prompt:               "Which of these are primes?",
					Options:              []string{"2", "4", "5", "9"},
					CorrectAnswerIndices: []int{0, 2},
				},
				{
					Type:         domain.Slider,
					Prompt:       "In which year did the Berlin Wall fall?",
					MinValue:     1900,
					MaxValue:     2000,
					CorrectValue: 1989,
				},
				{
					Type:        domain.FreeResponse,
					Prompt:      "Which planet is known as the red planet?",
					CorrectText: "Mars",
					AllowTypos:  true,
				},
				{
					Type:    domain.PollSingle,
					Prompt:  "Did you enjoy this quiz?",
					Options: []string{"Yes", "No"},
				},
			},
		},
	}
}
