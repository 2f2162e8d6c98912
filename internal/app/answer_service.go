package app

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"livequiz/internal/domain"
	"livequiz/internal/scoring"
)

// MaxTextAnswerLength bounds free-response submissions, in runes.
const MaxTextAnswerLength = 500

// SubmitRequest is one player's answer for the current question.
// Exactly one answer field is expected, chosen by QuestionType.
type SubmitRequest struct {
	GameID        string
	PlayerID      string
	QuestionIndex int
	QuestionType  domain.QuestionType
	TimeRemaining float64
	// QuestionTimeLimit is the client's view of the limit; zero when unknown.
	QuestionTimeLimit int

	AnswerIndex   *int
	AnswerIndices []int
	SliderValue   *float64
	TextAnswer    *string
}

// SubmitResult is returned to the submitting player.
type SubmitResult struct {
	Success            bool `json:"success"`
	IsCorrect          bool `json:"isCorrect"`
	IsPartiallyCorrect bool `json:"isPartiallyCorrect"`
	Points             int  `json:"points"`
	NewScore           int  `json:"newScore"`
}

// AnswerService scores submissions against the server-side answer key and
// records at most one answer per player and question.
type AnswerService struct {
	games   GameRepository
	players PlayerRepository
	board   *LeaderboardMaintainer
	grace   time.Duration
	now     func() time.Time
}

func NewAnswerService(games GameRepository, players PlayerRepository, board *LeaderboardMaintainer, grace time.Duration) *AnswerService {
	return NewAnswerServiceWithClock(games, players, board, grace, time.Now)
}

// NewAnswerServiceWithClock allows deterministic timestamps in tests.
func NewAnswerServiceWithClock(games GameRepository, players PlayerRepository, board *LeaderboardMaintainer, grace time.Duration, now func() time.Time) *AnswerService {
	return &AnswerService{games: games, players: players, board: board, grace: grace, now: now}
}

// SubmitAnswer validates, scores and records an answer. Checks run in a fixed order and
// the first failure is returned; nothing is written unless every check passes.
func (s *AnswerService) SubmitAnswer(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	answer, err := answerFromRequest(req)
	if err != nil {
		return SubmitResult{}, err
	}
	if err := checkTimeRemaining(req.TimeRemaining, req.QuestionTimeLimit); err != nil {
		return SubmitResult{}, err
	}

	game, err := s.games.GetGame(ctx, req.GameID)
	if err != nil {
		return SubmitResult{}, err
	}
	if game.State != domain.StateQuestion {
		return SubmitResult{}, fmt.Errorf("%w: game is %s", domain.ErrWrongState, game.State)
	}
	if game.CurrentQuestionIndex != req.QuestionIndex {
		return SubmitResult{}, fmt.Errorf("%w: current question is %d", domain.ErrStaleQuestion, game.CurrentQuestionIndex)
	}
	key, err := s.games.GetAnswerKey(ctx, req.GameID, req.QuestionIndex)
	if err != nil {
		return SubmitResult{}, err
	}
	if key.Type != req.QuestionType {
		return SubmitResult{}, fmt.Errorf("%w: question is %s", domain.ErrInvalidAnswer, key.Type)
	}
	if err := checkTimeRemaining(req.TimeRemaining, key.TimeLimit); err != nil {
		return SubmitResult{}, err
	}

	player, err := s.players.GetPlayer(ctx, req.GameID, req.PlayerID)
	if err != nil {
		return SubmitResult{}, err
	}
	if player.HasAnswered(req.QuestionIndex) {
		return SubmitResult{}, domain.ErrAlreadyAnswered
	}

	if err := checkShape(key, answer); err != nil {
		return SubmitResult{}, err
	}

	remaining := s.effectiveRemaining(game, key, req.TimeRemaining)
	result, err := scoring.Score(key, answer, remaining)
	if err != nil {
		return SubmitResult{}, err
	}
	timedOut := scoring.IsNoAnswer(key.Type, answer)
	now := s.now()

	updated, err := s.players.UpdatePlayer(ctx, req.GameID, req.PlayerID, func(p *domain.Player) error {
		if p.HasAnswered(req.QuestionIndex) {
			return domain.ErrAlreadyAnswered
		}
		p.Answers = append(p.Answers, domain.AnswerRecord{
			QuestionIndex:      req.QuestionIndex,
			Answer:             answer,
			Points:             result.Points,
			IsCorrect:          result.IsCorrect,
			IsPartiallyCorrect: result.IsPartiallyCorrect,
			TimedOut:           timedOut,
			AnsweredAt:         now,
		})
		p.Score += result.Points
		p.Streak = scoring.NextStreak(key.Type, result.IsCorrect, p.Streak)
		return nil
	})
	if err != nil {
		return SubmitResult{}, err
	}

	if !timedOut && s.board != nil {
		if err := s.board.RecordResponse(ctx, req.GameID, req.QuestionIndex, key.Type, answer); err != nil {
			log.Printf("record response game=%s question=%d: %v", req.GameID, req.QuestionIndex, err)
		}
	}

	return SubmitResult{
		Success:            true,
		IsCorrect:          result.IsCorrect,
		IsPartiallyCorrect: result.IsPartiallyCorrect,
		Points:             result.Points,
		NewScore:           updated.Score,
	}, nil
}

// effectiveRemaining caps the client's remaining time by what the server clock allows.
func (s *AnswerService) effectiveRemaining(game domain.Game, key domain.AnswerKey, claimed float64) float64 {
	if game.QuestionStartedAt == nil {
		return claimed
	}
	elapsed := s.now().Sub(*game.QuestionStartedAt)
	allowed := (time.Duration(key.TimeLimit)*time.Second - elapsed + s.grace).Seconds()
	if allowed < 0 {
		allowed = 0
	}
	return math.Min(claimed, allowed)
}

func answerFromRequest(req SubmitRequest) (domain.Answer, error) {
	switch {
	case strings.TrimSpace(req.GameID) == "":
		return domain.Answer{}, fmt.Errorf("%w: gameId", domain.ErrMissingField)
	case strings.TrimSpace(req.PlayerID) == "":
		return domain.Answer{}, fmt.Errorf("%w: playerId", domain.ErrMissingField)
	case req.QuestionIndex < 0:
		return domain.Answer{}, fmt.Errorf("%w: questionIndex", domain.ErrMissingField)
	case !req.QuestionType.Valid():
		return domain.Answer{}, fmt.Errorf("%w: %q", domain.ErrQuestionTypeInvalid, req.QuestionType)
	}

	switch req.QuestionType {
	case domain.SingleChoice, domain.PollSingle:
		if req.AnswerIndex == nil {
			return domain.Answer{}, fmt.Errorf("%w: answerIndex", domain.ErrMissingField)
		}
		return domain.Answer{AnswerIndex: *req.AnswerIndex, NoAnswer: *req.AnswerIndex == domain.NoAnswerIndex}, nil
	case domain.MultipleChoice, domain.PollMultiple:
		if req.AnswerIndices == nil {
			return domain.Answer{}, fmt.Errorf("%w: answerIndices", domain.ErrMissingField)
		}
		indices := append([]int(nil), req.AnswerIndices...)
		noAnswer := len(indices) == 1 && indices[0] == domain.NoAnswerIndex
		return domain.Answer{AnswerIndex: domain.NoAnswerIndex, AnswerIndices: indices, NoAnswer: noAnswer}, nil
	case domain.Slider:
		if req.SliderValue == nil {
			if req.TimeRemaining == 0 {
				return domain.Timeout(), nil
			}
			return domain.Answer{}, fmt.Errorf("%w: sliderValue", domain.ErrMissingField)
		}
		return domain.Answer{AnswerIndex: domain.NoAnswerIndex, SliderValue: *req.SliderValue}, nil
	default:
		if req.TextAnswer == nil {
			if req.TimeRemaining == 0 {
				return domain.Timeout(), nil
			}
			return domain.Answer{}, fmt.Errorf("%w: textAnswer", domain.ErrMissingField)
		}
		return domain.Answer{AnswerIndex: domain.NoAnswerIndex, TextAnswer: *req.TextAnswer}, nil
	}
}

func checkTimeRemaining(remaining float64, limit int) error {
	if math.IsNaN(remaining) || math.IsInf(remaining, 0) || remaining < 0 {
		return fmt.Errorf("%w: %v", domain.ErrInvalidTime, remaining)
	}
	if limit > 0 && remaining > float64(limit) {
		return fmt.Errorf("%w: %v exceeds limit %d", domain.ErrInvalidTime, remaining, limit)
	}
	return nil
}

// checkShape validates the answer structurally against the question it targets.
func checkShape(key domain.AnswerKey, answer domain.Answer) error {
	if answer.NoAnswer {
		return nil
	}
	switch key.Type {
	case domain.SingleChoice, domain.PollSingle:
		if answer.AnswerIndex < 0 || answer.AnswerIndex >= key.OptionCount {
			return fmt.Errorf("%w: answerIndex %d out of range", domain.ErrInvalidAnswer, answer.AnswerIndex)
		}
	case domain.MultipleChoice, domain.PollMultiple:
		if len(answer.AnswerIndices) == 0 {
			return fmt.Errorf("%w: answerIndices is empty", domain.ErrInvalidAnswer)
		}
		seen := make(map[int]struct{}, len(answer.AnswerIndices))
		for _, idx := range answer.AnswerIndices {
			if idx < 0 || idx >= key.OptionCount {
				return fmt.Errorf("%w: answerIndices entry %d out of range", domain.ErrInvalidAnswer, idx)
			}
			if _, dup := seen[idx]; dup {
				return fmt.Errorf("%w: duplicate index %d", domain.ErrInvalidAnswer, idx)
			}
			seen[idx] = struct{}{}
		}
	case domain.Slider:
		v := answer.SliderValue
		if math.IsNaN(v) || v < key.MinValue || v > key.MaxValue {
			return fmt.Errorf("%w: sliderValue %v outside [%v, %v]", domain.ErrInvalidAnswer, v, key.MinValue, key.MaxValue)
		}
	case domain.FreeResponse:
		if utf8.RuneCountInString(answer.TextAnswer) > MaxTextAnswerLength {
			return fmt.Errorf("%w: textAnswer too long", domain.ErrInvalidAnswer)
		}
	}
	return nil
}
