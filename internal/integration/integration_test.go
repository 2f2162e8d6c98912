package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"livequiz/internal/app"
	"livequiz/internal/domain"
	pgstore "livequiz/internal/infra/postgres"
	pgmigrations "livequiz/internal/infra/postgres/migrations"
	infraredis "livequiz/internal/infra/redis"
)

func TestGameEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := seedQuiz(t, ctx, pgURL, sampleQuiz())
	defer db.Close()

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgstore.NewQuizLoader(pool)
	archive := pgstore.NewResultArchive(db)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	games := infraredis.NewGameStore(redisClient, time.Hour)
	players := infraredis.NewPlayerStore(redisClient, time.Hour)
	board := app.NewLeaderboardMaintainer(infraredis.NewLeaderboardStore(redisClient, time.Hour), players, 20)
	quizzes := infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute)
	answers := app.NewAnswerService(games, players, board, 2*time.Second)
	controller := app.NewGameController(games, players, quizzes, board, app.NewHub(), archive, app.ControllerConfig{})
	defer controller.Close()

	game, err := controller.CreateGame(ctx, "quiz-1", "host")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	alice, err := controller.JoinGame(ctx, game.PIN, "Alice")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	bob, err := controller.JoinGame(ctx, game.PIN, "Bob")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := controller.StartGame(ctx, game.ID, "host"); err != nil {
		t.Fatalf("start game: %v", err)
	}
	if _, err := controller.StartQuestion(ctx, game.ID, "host"); err != nil {
		t.Fatalf("start question: %v", err)
	}

	// Duplicate submissions race; exactly one may be recorded.
	req := app.SubmitRequest{
		GameID:        game.ID,
		PlayerID:      bob.ID,
		QuestionType:  domain.SingleChoice,
		AnswerIndex:   intPtr(1),
		TimeRemaining: 15,
	}
	var wg sync.WaitGroup
	results := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := answers.SubmitAnswer(ctx, req)
			results <- err
		}()
	}
	wg.Wait()
	close(results)
	accepted := 0
	for err := range results {
		if err == nil {
			accepted++
		} else if !errors.Is(err, domain.ErrAlreadyAnswered) {
			t.Fatalf("unexpected submit error: %v", err)
		}
	}
	if accepted != 1 {
		t.Fatalf("expected one accepted submission, got %d", accepted)
	}

	if _, err := controller.FinishQuestion(ctx, game.ID, "host"); err != nil {
		t.Fatalf("finish: %v", err)
	}
	lb, err := controller.Leaderboard(ctx, game.ID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 2 || lb.Entries[0].PlayerID != bob.ID || lb.Entries[0].Score != 775 {
		t.Fatalf("expected bob leading with 775, got %+v", lb.Entries)
	}
	if !lb.Finalized || lb.AnsweredCount != 1 {
		t.Fatalf("expected finalized aggregate with one answer, got %+v", lb)
	}

	ended, err := controller.NextQuestion(ctx, game.ID, "host")
	if err != nil {
		t.Fatalf("end game: %v", err)
	}
	if ended.State != domain.StateEnded {
		t.Fatalf("expected ended, got %s", ended.State)
	}

	rows, err := archive.ListResults(ctx, game.ID)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	if len(rows) != 2 || rows[0].PlayerID != bob.ID || rows[1].PlayerID != alice.ID || rows[0].CorrectCount != 1 {
		t.Fatalf("unexpected archived results: %+v", rows)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

// seedQuiz migrates the schema, stores quiz and returns the open bun handle.
func seedQuiz(t *testing.T, ctx context.Context, dsn string, quiz domain.Quiz) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, data) VALUES (? , ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, quiz.ID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
	return db
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Arithmetic",
		Questions: []domain.Question{
			{
				Type:               domain.SingleChoice,
				Prompt:             "What is 2 + 2?",
				Options:            []string{"3", "4", "5"},
				CorrectAnswerIndex: 1,
				TimeLimit:          20,
			},
		},
	}
}

func intPtr(v int) *int { return &v }

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
