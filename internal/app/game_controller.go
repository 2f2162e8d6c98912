package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"livequiz/internal/domain"
)

const (
	pinDigits   = 6
	pinAttempts = 10
	// closeOutParallelism bounds concurrent timeout writes when a question is finalized.
	closeOutParallelism = 8
)

// ErrResultsIncomplete is returned alongside an advanced game when result computation failed.
// The state change stands; retrying ComputeQuestionResults is safe.
var ErrResultsIncomplete = domain.NewError(domain.CodeInternal, "question results not finalized, retry computeQuestionResults")

// ControllerConfig tunes the game controller.
type ControllerConfig struct {
	DefaultTimeLimit int
	// AnswerGrace is added to the question timer before it auto-finishes.
	AnswerGrace time.Duration
	// AutoFinish closes questions when the timer expires or everyone has answered.
	AutoFinish bool
}

// GameController moves games through lobby -> preparing -> question -> leaderboard -> (preparing | ended).
type GameController struct {
	games   GameRepository
	players PlayerRepository
	quizzes QuizRepository
	board   *LeaderboardMaintainer
	hub     *Hub
	archive ResultArchive
	cfg     ControllerConfig
	now     func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewGameController(games GameRepository, players PlayerRepository, quizzes QuizRepository, board *LeaderboardMaintainer, hub *Hub, archive ResultArchive, cfg ControllerConfig) *GameController {
	return NewGameControllerWithClock(games, players, quizzes, board, hub, archive, cfg, time.Now)
}

// NewGameControllerWithClock allows deterministic timestamps in tests.
func NewGameControllerWithClock(games GameRepository, players PlayerRepository, quizzes QuizRepository, board *LeaderboardMaintainer, hub *Hub, archive ResultArchive, cfg ControllerConfig, now func() time.Time) *GameController {
	if cfg.DefaultTimeLimit <= 0 {
		cfg.DefaultTimeLimit = domain.DefaultTimeLimit
	}
	if hub == nil {
		hub = NewHub()
	}
	return &GameController{
		games:   games,
		players: players,
		quizzes: quizzes,
		board:   board,
		hub:     hub,
		archive: archive,
		cfg:     cfg,
		now:     now,
		timers:  make(map[string]*time.Timer),
	}
}

// CreateGame opens a lobby for a question set and assigns it a join PIN.
func (c *GameController) CreateGame(ctx context.Context, quizID, hostID string) (domain.Game, error) {
	if strings.TrimSpace(quizID) == "" {
		return domain.Game{}, fmt.Errorf("%w: quizId", domain.ErrMissingField)
	}
	if strings.TrimSpace(hostID) == "" {
		return domain.Game{}, fmt.Errorf("%w: hostId", domain.ErrMissingField)
	}
	quiz, err := c.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Game{}, err
	}
	if len(quiz.Questions) == 0 {
		return domain.Game{}, fmt.Errorf("%w: quiz has no questions", domain.ErrInvalidQuestion)
	}

	now := c.now()
	for attempt := 0; attempt < pinAttempts; attempt++ {
		pin, err := generatePIN()
		if err != nil {
			return domain.Game{}, err
		}
		if _, err := c.games.FindByPIN(ctx, pin); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrGameNotFound) {
			return domain.Game{}, err
		}

		game := domain.Game{
			ID:            uuid.New().String(),
			QuizID:        quiz.ID,
			HostID:        hostID,
			PIN:           pin,
			State:         domain.StateLobby,
			QuestionCount: len(quiz.Questions),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := c.games.CreateGame(ctx, game); err != nil {
			if errors.Is(err, domain.ErrPINTaken) {
				continue
			}
			return domain.Game{}, err
		}
		log.Printf("game %s created for quiz %s with pin %s", game.ID, quiz.ID, pin)
		return game, nil
	}
	return domain.Game{}, fmt.Errorf("%w: could not allocate a pin", domain.ErrPINTaken)
}

// JoinGame adds a participant to the game identified by its PIN.
func (c *GameController) JoinGame(ctx context.Context, pin, displayName string) (domain.Player, error) {
	displayName = strings.TrimSpace(displayName)
	if strings.TrimSpace(pin) == "" {
		return domain.Player{}, fmt.Errorf("%w: pin", domain.ErrMissingField)
	}
	if displayName == "" {
		return domain.Player{}, fmt.Errorf("%w: displayName", domain.ErrMissingField)
	}
	game, err := c.games.FindByPIN(ctx, strings.TrimSpace(pin))
	if err != nil {
		return domain.Player{}, err
	}
	if game.State == domain.StateEnded {
		return domain.Player{}, fmt.Errorf("%w: game has ended", domain.ErrWrongState)
	}

	player := domain.Player{
		ID:          uuid.New().String(),
		GameID:      game.ID,
		DisplayName: displayName,
		Answers:     []domain.AnswerRecord{},
		JoinedAt:    c.now(),
	}
	if err := c.players.AddPlayer(ctx, player); err != nil {
		return domain.Player{}, err
	}
	return player, nil
}

// GetGameByPIN returns the participant view of a game. Answer keys are never part of it.
func (c *GameController) GetGameByPIN(ctx context.Context, pin string) (domain.Game, error) {
	game, err := c.games.FindByPIN(ctx, pin)
	if err != nil {
		return domain.Game{}, err
	}
	return game.Public(), nil
}

// GetGame returns the participant view of a game by id.
func (c *GameController) GetGame(ctx context.Context, gameID string) (domain.Game, error) {
	game, err := c.games.GetGame(ctx, gameID)
	if err != nil {
		return domain.Game{}, err
	}
	return game.Public(), nil
}

// Leaderboard returns the stored aggregate of a game.
func (c *GameController) Leaderboard(ctx context.Context, gameID string) (domain.Leaderboard, error) {
	return c.board.Get(ctx, gameID)
}

// Hub exposes the event fan-out used by live transports.
func (c *GameController) Hub() *Hub {
	return c.hub
}

// StartGame materializes the answer keys and sanitized questions and moves lobby -> preparing.
func (c *GameController) StartGame(ctx context.Context, gameID, hostID string) (domain.Game, error) {
	game, err := c.hostGame(ctx, gameID, hostID)
	if err != nil {
		return domain.Game{}, err
	}
	if game.State != domain.StateLobby {
		return domain.Game{}, fmt.Errorf("%w: game is %s", domain.ErrWrongState, game.State)
	}

	quiz, err := c.quizzes.GetQuiz(ctx, game.QuizID)
	if err != nil {
		return domain.Game{}, err
	}
	keys := make([]domain.AnswerKey, 0, len(quiz.Questions))
	public := make([]domain.PublicQuestion, 0, len(quiz.Questions))
	for i, q := range quiz.Questions {
		if err := q.Validate(); err != nil {
			return domain.Game{}, fmt.Errorf("question %d: %w", i, err)
		}
		keys = append(keys, q.Key(c.cfg.DefaultTimeLimit))
		public = append(public, q.Public(c.cfg.DefaultTimeLimit))
	}
	if len(keys) == 0 {
		return domain.Game{}, fmt.Errorf("%w: quiz has no questions", domain.ErrInvalidQuestion)
	}
	if err := c.games.SaveAnswerKeys(ctx, gameID, keys); err != nil {
		return domain.Game{}, err
	}

	updated, err := c.games.UpdateGame(ctx, gameID, func(g *domain.Game) error {
		if g.State != domain.StateLobby {
			return fmt.Errorf("%w: game is %s", domain.ErrWrongState, g.State)
		}
		g.State = domain.StatePreparing
		g.CurrentQuestionIndex = 0
		g.QuestionCount = len(public)
		g.Questions = public
		g.QuestionStartedAt = nil
		g.UpdatedAt = c.now()
		return nil
	})
	if err != nil {
		return domain.Game{}, err
	}

	players, err := c.players.ListPlayers(ctx, gameID)
	if err != nil {
		return domain.Game{}, err
	}
	if err := c.board.Initialize(ctx, gameID, len(players)); err != nil {
		return domain.Game{}, err
	}
	log.Printf("game %s started with %d players and %d questions", gameID, len(players), len(public))
	c.hub.publishState(updated)
	return updated, nil
}

// StartQuestion opens the current question: preparing -> question, stamping the server start time.
func (c *GameController) StartQuestion(ctx context.Context, gameID, hostID string) (domain.Game, error) {
	game, err := c.hostGame(ctx, gameID, hostID)
	if err != nil {
		return domain.Game{}, err
	}
	if game.State != domain.StatePreparing {
		return domain.Game{}, fmt.Errorf("%w: game is %s", domain.ErrWrongState, game.State)
	}
	question, ok := game.CurrentQuestion()
	if !ok {
		return domain.Game{}, domain.ErrQuestionNotFound
	}
	if err := c.board.ResetForNewQuestion(ctx, gameID, game.CurrentQuestionIndex, question); err != nil {
		return domain.Game{}, err
	}

	index := game.CurrentQuestionIndex
	updated, err := c.games.UpdateGame(ctx, gameID, func(g *domain.Game) error {
		if g.State != domain.StatePreparing || g.CurrentQuestionIndex != index {
			return fmt.Errorf("%w: game is %s", domain.ErrWrongState, g.State)
		}
		now := c.now()
		g.State = domain.StateQuestion
		g.QuestionStartedAt = &now
		g.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.Game{}, err
	}
	log.Printf("game %s question %d open for %ds", gameID, index, question.TimeLimit)
	c.hub.publishState(updated)
	c.scheduleAutoFinish(updated, question)
	return updated, nil
}

// FinishQuestion closes the current question: question -> leaderboard.
// Results are computed before and after the flip; the second pass closes out players who never
// answered and picks up submissions that committed in between. If computation fails the game
// still advances and ErrResultsIncomplete is returned with it.
func (c *GameController) FinishQuestion(ctx context.Context, gameID, hostID string) (domain.Game, error) {
	game, err := c.hostGame(ctx, gameID, hostID)
	if err != nil {
		return domain.Game{}, err
	}
	return c.finishQuestion(ctx, game.ID, game.CurrentQuestionIndex)
}

// FinishIfAllAnswered closes the question once every player has an answer for it.
func (c *GameController) FinishIfAllAnswered(ctx context.Context, gameID string, questionIndex int) error {
	if !c.cfg.AutoFinish {
		return nil
	}
	players, err := c.players.ListPlayers(ctx, gameID)
	if err != nil {
		return err
	}
	if len(players) == 0 {
		return nil
	}
	for _, p := range players {
		if !p.HasAnswered(questionIndex) {
			return nil
		}
	}
	_, err = c.finishQuestion(ctx, gameID, questionIndex)
	if errors.Is(err, domain.ErrWrongState) {
		return nil
	}
	return err
}

func (c *GameController) finishQuestion(ctx context.Context, gameID string, index int) (domain.Game, error) {
	game, err := c.games.GetGame(ctx, gameID)
	if err != nil {
		return domain.Game{}, err
	}
	if game.State != domain.StateQuestion || game.CurrentQuestionIndex != index {
		return domain.Game{}, fmt.Errorf("%w: game is %s", domain.ErrWrongState, game.State)
	}
	c.stopTimer(gameID)

	_, firstErr := c.ComputeQuestionResults(ctx, gameID, index, "")
	if firstErr != nil {
		log.Printf("game %s question %d results before close: %v", gameID, index, firstErr)
	}

	updated, err := c.games.UpdateGame(ctx, gameID, func(g *domain.Game) error {
		if g.State != domain.StateQuestion || g.CurrentQuestionIndex != index {
			return fmt.Errorf("%w: game is %s", domain.ErrWrongState, g.State)
		}
		g.State = domain.StateLeaderboard
		g.UpdatedAt = c.now()
		return nil
	})
	if err != nil {
		return domain.Game{}, err
	}
	c.hub.publishState(updated)

	if _, err := c.ComputeQuestionResults(ctx, gameID, index, ""); err != nil {
		log.Printf("game %s question %d results after close: %v", gameID, index, err)
		return updated, fmt.Errorf("%w: %v", ErrResultsIncomplete, err)
	}
	log.Printf("game %s question %d closed", gameID, index)
	return updated, nil
}

// NextQuestion leaves the leaderboard: to preparing for the next question, or to ended after the last.
func (c *GameController) NextQuestion(ctx context.Context, gameID, hostID string) (domain.Game, error) {
	game, err := c.hostGame(ctx, gameID, hostID)
	if err != nil {
		return domain.Game{}, err
	}
	if game.State != domain.StateLeaderboard {
		return domain.Game{}, fmt.Errorf("%w: game is %s", domain.ErrWrongState, game.State)
	}
	if game.IsLastQuestion() {
		return c.endGame(ctx, game)
	}

	index := game.CurrentQuestionIndex
	next := game.Questions[index+1]
	if err := c.board.ResetForNewQuestion(ctx, gameID, index+1, next); err != nil {
		return domain.Game{}, err
	}
	updated, err := c.games.UpdateGame(ctx, gameID, func(g *domain.Game) error {
		if g.State != domain.StateLeaderboard || g.CurrentQuestionIndex != index {
			return fmt.Errorf("%w: game is %s", domain.ErrWrongState, g.State)
		}
		g.State = domain.StatePreparing
		g.CurrentQuestionIndex = index + 1
		g.QuestionStartedAt = nil
		g.UpdatedAt = c.now()
		return nil
	})
	if err != nil {
		return domain.Game{}, err
	}
	c.hub.publishState(updated)
	return updated, nil
}

func (c *GameController) endGame(ctx context.Context, game domain.Game) (domain.Game, error) {
	index := game.CurrentQuestionIndex
	_, resultsErr := c.ComputeQuestionResults(ctx, game.ID, index, "")
	if resultsErr != nil {
		log.Printf("game %s final results: %v", game.ID, resultsErr)
	}

	updated, err := c.games.UpdateGame(ctx, game.ID, func(g *domain.Game) error {
		if g.State != domain.StateLeaderboard || g.CurrentQuestionIndex != index {
			return fmt.Errorf("%w: game is %s", domain.ErrWrongState, g.State)
		}
		g.State = domain.StateEnded
		g.QuestionStartedAt = nil
		g.UpdatedAt = c.now()
		return nil
	})
	if err != nil {
		return domain.Game{}, err
	}
	c.hub.publishState(updated)
	log.Printf("game %s ended", game.ID)

	if c.archive != nil {
		players, err := c.players.ListPlayers(ctx, game.ID)
		if err == nil {
			err = c.archive.ArchiveResults(ctx, updated, players)
		}
		if err != nil {
			log.Printf("game %s archive results: %v", game.ID, err)
		}
	}
	if resultsErr != nil {
		return updated, fmt.Errorf("%w: %v", ErrResultsIncomplete, resultsErr)
	}
	return updated, nil
}

// CancelGame deletes a game and everything derived from it. In-flight submissions then fail with not-found.
func (c *GameController) CancelGame(ctx context.Context, gameID, hostID string) error {
	if _, err := c.hostGame(ctx, gameID, hostID); err != nil {
		return err
	}
	c.stopTimer(gameID)
	if err := c.games.DeleteGame(ctx, gameID); err != nil {
		return err
	}
	if err := c.players.DeletePlayers(ctx, gameID); err != nil {
		return err
	}
	if err := c.board.Delete(ctx, gameID); err != nil {
		return err
	}
	c.hub.Publish(Event{Type: EventCancelled, GameID: gameID})
	c.hub.Close(gameID)
	log.Printf("game %s cancelled", gameID)
	return nil
}

// ComputeQuestionResults finalizes a question's results and rebuilds the aggregate.
// It is idempotent: timeout records are only written for players without an answer once the
// question stopped accepting answers, and the aggregate is a pure function of the player records.
// questionType is optional; when given it must match the question.
func (c *GameController) ComputeQuestionResults(ctx context.Context, gameID string, questionIndex int, questionType domain.QuestionType) (domain.Leaderboard, error) {
	if strings.TrimSpace(gameID) == "" {
		return domain.Leaderboard{}, fmt.Errorf("%w: gameId", domain.ErrMissingField)
	}
	game, err := c.games.GetGame(ctx, gameID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	if game.State == domain.StateLobby {
		return domain.Leaderboard{}, fmt.Errorf("%w: game has not started", domain.ErrWrongState)
	}
	if questionIndex < 0 || questionIndex >= len(game.Questions) {
		return domain.Leaderboard{}, domain.ErrQuestionNotFound
	}
	asked := questionIndex < game.CurrentQuestionIndex ||
		(questionIndex == game.CurrentQuestionIndex && game.State != domain.StatePreparing)
	if !asked {
		return domain.Leaderboard{}, fmt.Errorf("%w: question %d has not been asked", domain.ErrWrongState, questionIndex)
	}
	question := game.Questions[questionIndex]
	if questionType != "" && questionType != question.Type {
		return domain.Leaderboard{}, fmt.Errorf("%w: question is %s", domain.ErrInvalidAnswer, question.Type)
	}

	accepting := game.CurrentQuestionIndex == questionIndex && game.State == domain.StateQuestion
	if !accepting {
		if err := c.closeOut(ctx, gameID, questionIndex, question.Type); err != nil {
			return domain.Leaderboard{}, err
		}
	}

	if questionIndex != game.CurrentQuestionIndex {
		// An earlier question: report its results without overwriting the live aggregate.
		return c.board.Build(ctx, gameID, questionIndex, question)
	}
	lb, err := c.board.Recompute(ctx, gameID, questionIndex, question, !accepting)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	c.hub.publishLeaderboard(lb)
	return lb, nil
}

// closeOut records a timeout for every player without an answer to the question.
func (c *GameController) closeOut(ctx context.Context, gameID string, questionIndex int, t domain.QuestionType) error {
	players, err := c.players.ListPlayers(ctx, gameID)
	if err != nil {
		return err
	}
	now := c.now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(closeOutParallelism)
	for _, p := range players {
		if p.HasAnswered(questionIndex) {
			continue
		}
		playerID := p.ID
		g.Go(func() error {
			_, err := c.players.UpdatePlayer(gctx, gameID, playerID, func(p *domain.Player) error {
				if p.HasAnswered(questionIndex) {
					return errAnswerExists
				}
				p.Answers = append(p.Answers, domain.AnswerRecord{
					QuestionIndex: questionIndex,
					Answer:        domain.Timeout(),
					TimedOut:      true,
					AnsweredAt:    now,
				})
				if !t.IsPoll() {
					p.Streak = 0
				}
				return nil
			})
			if errors.Is(err, errAnswerExists) || errors.Is(err, domain.ErrPlayerNotFound) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

var errAnswerExists = errors.New("answer exists")

// Close stops pending question timers.
func (c *GameController) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}

func (c *GameController) scheduleAutoFinish(game domain.Game, question domain.PublicQuestion) {
	if !c.cfg.AutoFinish {
		return
	}
	index := game.CurrentQuestionIndex
	delay := time.Duration(question.TimeLimit)*time.Second + c.cfg.AnswerGrace
	timer := time.AfterFunc(delay, func() {
		c.mu.Lock()
		delete(c.timers, game.ID)
		c.mu.Unlock()
		_, err := c.finishQuestion(context.Background(), game.ID, index)
		if err != nil && !errors.Is(err, domain.ErrWrongState) && !errors.Is(err, domain.ErrGameNotFound) {
			log.Printf("game %s question %d timer finish: %v", game.ID, index, err)
		}
	})

	c.mu.Lock()
	if old, ok := c.timers[game.ID]; ok {
		old.Stop()
	}
	c.timers[game.ID] = timer
	c.mu.Unlock()
}

func (c *GameController) stopTimer(gameID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[gameID]; ok {
		t.Stop()
		delete(c.timers, gameID)
	}
}

func (c *GameController) hostGame(ctx context.Context, gameID, hostID string) (domain.Game, error) {
	if strings.TrimSpace(gameID) == "" {
		return domain.Game{}, fmt.Errorf("%w: gameId", domain.ErrMissingField)
	}
	game, err := c.games.GetGame(ctx, gameID)
	if err != nil {
		return domain.Game{}, err
	}
	if game.HostID != hostID {
		return domain.Game{}, domain.ErrNotHost
	}
	return game, nil
}

func generatePIN() (string, error) {
	var b strings.Builder
	for i := 0; i < pinDigits; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
