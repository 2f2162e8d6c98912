package app_test

import (
	"context"
	"testing"
	"time"

	"livequiz/internal/app"
	"livequiz/internal/domain"
	"livequiz/internal/infra/memory"
)

const hostID = "host-1"

type testEnv struct {
	games   *memory.GameStore
	players *memory.PlayerStore
	boards  app.LeaderboardRepository
	board   *app.LeaderboardMaintainer
	answers *app.AnswerService
	ctrl    *app.GameController
	now     time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithBoards(t, memory.NewLeaderboardStore(), app.ControllerConfig{})
}

func newTestEnvWithBoards(t *testing.T, boards app.LeaderboardRepository, cfg app.ControllerConfig) *testEnv {
	t.Helper()
	env := &testEnv{
		games:   memory.NewGameStore(),
		players: memory.NewPlayerStore(),
		boards:  boards,
		now:     time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return env.now }
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": sampleQuiz(),
	}), 5*time.Minute)
	env.board = app.NewLeaderboardMaintainer(boards, env.players, 20)
	env.answers = app.NewAnswerServiceWithClock(env.games, env.players, env.board, 2*time.Second, clock)
	env.ctrl = app.NewGameControllerWithClock(env.games, env.players, quizzes, env.board, app.NewHub(), nil, cfg, clock)
	t.Cleanup(env.ctrl.Close)
	return env
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "General knowledge",
		Questions: []domain.Question{
			{Type: domain.SingleChoice, Prompt: "Capital of France?", Options: []string{"Rome", "Paris", "Oslo", "Bern"}, CorrectAnswerIndex: 1},
			{Type: domain.PollSingle, Prompt: "Tea or coffee?", Options: []string{"Tea", "Coffee"}},
			{Type: domain.SingleChoice, Prompt: "2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswerIndex: 1, TimeLimit: 20},
			{Type: domain.MultipleChoice, Prompt: "Even numbers?", Options: []string{"2", "3", "4", "5"}, CorrectAnswerIndices: []int{0, 2}},
			{Type: domain.Slider, Prompt: "Boiling point of water?", MinValue: 0, MaxValue: 200, CorrectValue: 100},
		},
	}
}

// startedGame creates a game, joins the given players and starts it.
func (e *testEnv) startedGame(t *testing.T, names ...string) (domain.Game, []domain.Player) {
	t.Helper()
	ctx := context.Background()
	game, err := e.ctrl.CreateGame(ctx, "quiz-1", hostID)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	players := make([]domain.Player, 0, len(names))
	for _, name := range names {
		p, err := e.ctrl.JoinGame(ctx, game.PIN, name)
		if err != nil {
			t.Fatalf("join %s: %v", name, err)
		}
		players = append(players, p)
	}
	game, err = e.ctrl.StartGame(ctx, game.ID, hostID)
	if err != nil {
		t.Fatalf("start game: %v", err)
	}
	return game, players
}

func (e *testEnv) openQuestion(t *testing.T, gameID string) domain.Game {
	t.Helper()
	game, err := e.ctrl.StartQuestion(context.Background(), gameID, hostID)
	if err != nil {
		t.Fatalf("start question: %v", err)
	}
	return game
}

func (e *testEnv) closeQuestion(t *testing.T, gameID string) domain.Game {
	t.Helper()
	game, err := e.ctrl.FinishQuestion(context.Background(), gameID, hostID)
	if err != nil {
		t.Fatalf("finish question: %v", err)
	}
	return game
}

func (e *testEnv) next(t *testing.T, gameID string) domain.Game {
	t.Helper()
	game, err := e.ctrl.NextQuestion(context.Background(), gameID, hostID)
	if err != nil {
		t.Fatalf("next question: %v", err)
	}
	return game
}

// skipTo runs through questions without answers until index is open.
func (e *testEnv) skipTo(t *testing.T, gameID string, index int) domain.Game {
	t.Helper()
	game := e.openQuestion(t, gameID)
	for game.CurrentQuestionIndex < index {
		e.closeQuestion(t, gameID)
		e.next(t, gameID)
		game = e.openQuestion(t, gameID)
	}
	return game
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
