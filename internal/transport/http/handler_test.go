package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"livequiz/internal/app"
	"livequiz/internal/domain"
	"livequiz/internal/infra/memory"
)

const testHost = "host-1"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	games := memory.NewGameStore()
	players := memory.NewPlayerStore()
	board := app.NewLeaderboardMaintainer(memory.NewLeaderboardStore(), players, 20)
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuiz()), time.Minute)

	answers := app.NewAnswerService(games, players, board, 2*time.Second)
	controller := app.NewGameController(games, players, quizzes, board, app.NewHub(), nil, app.ControllerConfig{})
	t.Cleanup(controller.Close)

	server := httptest.NewServer(NewRouter(answers, controller))
	t.Cleanup(server.Close)
	return server
}

func sampleQuiz() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Arithmetic",
			Questions: []domain.Question{
				{Type: domain.SingleChoice, Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswerIndex: 1},
				{Type: domain.FreeResponse, Prompt: "Capital of Japan?", CorrectText: "Tokyo", AllowTypos: true},
			},
		},
	}
}

// call posts body to path and decodes the response into out when out is non-nil.
func call(t *testing.T, server *httptest.Server, path string, body any, out any) int {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(server.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// openGame creates a game with one player and opens the first question.
func openGame(t *testing.T, server *httptest.Server) (domain.Game, domain.Player) {
	t.Helper()
	var game domain.Game
	if status := call(t, server, "/rpc/createGame", map[string]string{"quizId": "quiz-1", "hostId": testHost}, &game); status != http.StatusOK {
		t.Fatalf("create game: status %d", status)
	}
	var player domain.Player
	if status := call(t, server, "/rpc/joinGame", map[string]string{"pin": game.PIN, "displayName": "Alice"}, &player); status != http.StatusOK {
		t.Fatalf("join game: status %d", status)
	}
	host := map[string]string{"gameId": game.ID, "hostId": testHost}
	if status := call(t, server, "/rpc/startGame", host, nil); status != http.StatusOK {
		t.Fatalf("start game: status %d", status)
	}
	if status := call(t, server, "/rpc/startQuestion", host, &game); status != http.StatusOK {
		t.Fatalf("start question: status %d", status)
	}
	return game, player
}

func TestSubmitAnswerRPC(t *testing.T) {
	server := newTestServer(t)
	game, player := openGame(t, server)

	var res app.SubmitResult
	status := call(t, server, "/rpc/submitAnswer", map[string]any{
		"gameId":        game.ID,
		"playerId":      player.ID,
		"questionIndex": 0,
		"questionType":  "single-choice",
		"answerIndex":   1,
		"timeRemaining": 20,
		// Client-supplied key fields are ignored.
		"correctAnswerIndex": 0,
	}, &res)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if !res.Success || !res.IsCorrect || res.Points != 1000 || res.NewScore != 1000 {
		t.Fatalf("unexpected result: %+v", res)
	}

	var dup errorResponse
	status = call(t, server, "/rpc/submitAnswer", map[string]any{
		"gameId":        game.ID,
		"playerId":      player.ID,
		"questionIndex": 0,
		"questionType":  "single-choice",
		"answerIndex":   1,
		"timeRemaining": 10,
	}, &dup)
	if status != http.StatusConflict || dup.Error.Code != domain.CodeFailedPrecondition {
		t.Fatalf("expected 409 failed-precondition, got %d %+v", status, dup)
	}

	var lb domain.Leaderboard
	resp, err := http.Get(server.URL + "/leaderboard/" + game.ID)
	if err != nil {
		t.Fatalf("get leaderboard: %v", err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&lb); err != nil {
		t.Fatalf("decode leaderboard: %v", err)
	}
	if lb.AnsweredCount != 1 || lb.TotalPlayers != 1 {
		t.Fatalf("unexpected leaderboard: %+v", lb)
	}
}

func TestSubmitAnswerRPCErrors(t *testing.T) {
	server := newTestServer(t)
	game, player := openGame(t, server)

	tests := []struct {
		name   string
		body   map[string]any
		status int
		code   domain.Code
	}{
		{
			name:   "missing player",
			body:   map[string]any{"gameId": game.ID, "questionIndex": 0, "questionType": "single-choice", "answerIndex": 1, "timeRemaining": 5},
			status: http.StatusBadRequest,
			code:   domain.CodeInvalidArgument,
		},
		{
			name:   "unknown type",
			body:   map[string]any{"gameId": game.ID, "playerId": player.ID, "questionIndex": 0, "questionType": "essay", "answerIndex": 1, "timeRemaining": 5},
			status: http.StatusBadRequest,
			code:   domain.CodeInvalidArgument,
		},
		{
			name:   "negative time",
			body:   map[string]any{"gameId": game.ID, "playerId": player.ID, "questionIndex": 0, "questionType": "single-choice", "answerIndex": 1, "timeRemaining": -1},
			status: http.StatusBadRequest,
			code:   domain.CodeInvalidArgument,
		},
		{
			name:   "empty selection",
			body:   map[string]any{"gameId": game.ID, "playerId": player.ID, "questionIndex": 0, "questionType": "single-choice", "answerIndices": []int{}, "timeRemaining": 5},
			status: http.StatusBadRequest,
			code:   domain.CodeInvalidArgument,
		},
		{
			name:   "unknown game",
			body:   map[string]any{"gameId": "nope", "playerId": player.ID, "questionIndex": 0, "questionType": "single-choice", "answerIndex": 1, "timeRemaining": 5},
			status: http.StatusNotFound,
			code:   domain.CodeNotFound,
		},
		{
			name:   "stale question",
			body:   map[string]any{"gameId": game.ID, "playerId": player.ID, "questionIndex": 1, "questionType": "free-response", "textAnswer": "tokio", "timeRemaining": 5},
			status: http.StatusConflict,
			code:   domain.CodeFailedPrecondition,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out errorResponse
			status := call(t, server, "/rpc/submitAnswer", tt.body, &out)
			if status != tt.status || out.Error.Code != tt.code {
				t.Fatalf("expected %d %s, got %d %+v", tt.status, tt.code, status, out)
			}
		})
	}
}

func TestHostRPCRequiresHost(t *testing.T) {
	server := newTestServer(t)
	game, _ := openGame(t, server)

	var out errorResponse
	status := call(t, server, "/rpc/finishQuestion", map[string]string{"gameId": game.ID, "hostId": "intruder"}, &out)
	if status != http.StatusForbidden || out.Error.Code != domain.CodePermissionDenied {
		t.Fatalf("expected 403, got %d %+v", status, out)
	}

	var finished domain.Game
	if status := call(t, server, "/rpc/finishQuestion", map[string]string{"gameId": game.ID, "hostId": testHost}, &finished); status != http.StatusOK {
		t.Fatalf("finish: status %d", status)
	}
	if finished.State != domain.StateLeaderboard {
		t.Fatalf("expected leaderboard state, got %s", finished.State)
	}

	var lb domain.Leaderboard
	status = call(t, server, "/rpc/computeQuestionResults", map[string]any{"gameId": game.ID, "questionIndex": 0}, &lb)
	if status != http.StatusOK || !lb.Finalized {
		t.Fatalf("expected finalized results, got %d %+v", status, lb)
	}
}

func TestGameByPINHidesHost(t *testing.T) {
	server := newTestServer(t)
	game, _ := openGame(t, server)

	resp, err := http.Get(server.URL + "/games/" + game.PIN)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	defer resp.Body.Close()
	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := raw["hostId"]; ok {
		t.Fatalf("public game must not expose hostId: %v", raw)
	}
	questions, _ := raw["questions"].([]any)
	if len(questions) != 2 {
		t.Fatalf("expected sanitized questions, got %v", raw["questions"])
	}
	first, _ := questions[0].(map[string]any)
	if _, ok := first["correctAnswerIndex"]; ok {
		t.Fatalf("answer key leaked: %v", first)
	}

	missing, err := http.Get(server.URL + "/games/999999")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t)
	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
