package app

import (
	"context"
	"errors"
	"sort"

	"livequiz/internal/domain"
)

// DefaultLeaderboardSize is the number of players kept in the aggregate.
const DefaultLeaderboardSize = 20

// LeaderboardMaintainer keeps the per-game top-N aggregate in step with player scores
// so clients read one document instead of every player.
type LeaderboardMaintainer struct {
	boards  LeaderboardRepository
	players PlayerRepository
	size    int
}

func NewLeaderboardMaintainer(boards LeaderboardRepository, players PlayerRepository, size int) *LeaderboardMaintainer {
	if size <= 0 {
		size = DefaultLeaderboardSize
	}
	return &LeaderboardMaintainer{boards: boards, players: players, size: size}
}

// Get returns the stored aggregate.
func (m *LeaderboardMaintainer) Get(ctx context.Context, gameID string) (domain.Leaderboard, error) {
	return m.boards.GetLeaderboard(ctx, gameID)
}

// Delete drops the aggregate of a cancelled game.
func (m *LeaderboardMaintainer) Delete(ctx context.Context, gameID string) error {
	return m.boards.DeleteLeaderboard(ctx, gameID)
}

// Initialize writes an empty aggregate for a game that is starting.
func (m *LeaderboardMaintainer) Initialize(ctx context.Context, gameID string, playerCount int) error {
	return m.boards.SaveLeaderboard(ctx, domain.Leaderboard{
		GameID:       gameID,
		Entries:      []domain.LeaderboardEntry{},
		TotalPlayers: playerCount,
	})
}

// ResetForNewQuestion clears per-question counters and leaves standings alone.
// A missing aggregate means there is nothing to reset.
func (m *LeaderboardMaintainer) ResetForNewQuestion(ctx context.Context, gameID string, questionIndex int, question domain.PublicQuestion) error {
	err := m.boards.UpdateLeaderboard(ctx, gameID, func(lb *domain.Leaderboard) error {
		lb.QuestionIndex = questionIndex
		lb.AnsweredCount = 0
		lb.ResponseCounts = make([]int, optionCount(question))
		lb.Finalized = false
		return nil
	})
	if errors.Is(err, domain.ErrLeaderboardNotFound) {
		return nil
	}
	return err
}

// RecordResponse bumps the live counters for one accepted answer.
func (m *LeaderboardMaintainer) RecordResponse(ctx context.Context, gameID string, questionIndex int, t domain.QuestionType, answer domain.Answer) error {
	err := m.boards.UpdateLeaderboard(ctx, gameID, func(lb *domain.Leaderboard) error {
		if lb.QuestionIndex != questionIndex || lb.Finalized {
			return nil
		}
		lb.AnsweredCount++
		tally(lb.ResponseCounts, t, answer)
		return nil
	})
	if errors.Is(err, domain.ErrLeaderboardNotFound) {
		return nil
	}
	return err
}

// Recompute rebuilds the aggregate for a question from every player record and stores it.
func (m *LeaderboardMaintainer) Recompute(ctx context.Context, gameID string, questionIndex int, question domain.PublicQuestion, finalized bool) (domain.Leaderboard, error) {
	lb, err := m.Build(ctx, gameID, questionIndex, question)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	lb.Finalized = finalized
	if err := m.boards.SaveLeaderboard(ctx, lb); err != nil {
		return domain.Leaderboard{}, err
	}
	return lb, nil
}

// Build computes the aggregate without storing it.
func (m *LeaderboardMaintainer) Build(ctx context.Context, gameID string, questionIndex int, question domain.PublicQuestion) (domain.Leaderboard, error) {
	players, err := m.players.ListPlayers(ctx, gameID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return BuildLeaderboard(gameID, players, questionIndex, question, m.size), nil
}

// BuildLeaderboard ranks players by score and tallies responses for one question.
// The result depends only on its inputs, so rebuilding twice yields the same document.
func BuildLeaderboard(gameID string, players []domain.Player, questionIndex int, question domain.PublicQuestion, size int) domain.Leaderboard {
	ranked := make([]domain.Player, len(players))
	copy(ranked, players)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].DisplayName != ranked[j].DisplayName {
			return ranked[i].DisplayName < ranked[j].DisplayName
		}
		return ranked[i].ID < ranked[j].ID
	})

	lb := domain.Leaderboard{
		GameID:         gameID,
		QuestionIndex:  questionIndex,
		Entries:        make([]domain.LeaderboardEntry, 0, min(size, len(ranked))),
		TotalPlayers:   len(players),
		ResponseCounts: make([]int, optionCount(question)),
	}

	rank := 0
	for i, p := range ranked {
		if i == 0 || p.Score != ranked[i-1].Score {
			rank = i + 1
		}
		rec, answered := p.AnswerFor(questionIndex)
		if answered && !rec.TimedOut {
			lb.AnsweredCount++
			tally(lb.ResponseCounts, question.Type, rec.Answer)
		}
		if i >= size {
			continue
		}
		lb.Entries = append(lb.Entries, domain.LeaderboardEntry{
			Rank:        rank,
			PlayerID:    p.ID,
			DisplayName: p.DisplayName,
			Score:       p.Score,
			LastDelta:   rec.Points,
			Streak:      p.Streak,
		})
	}
	return lb
}

func optionCount(q domain.PublicQuestion) int {
	if !q.Type.HasOptions() {
		return 0
	}
	return len(q.Options)
}

func tally(counts []int, t domain.QuestionType, answer domain.Answer) {
	if answer.NoAnswer {
		return
	}
	if t.IsMultiSelect() {
		for _, idx := range answer.AnswerIndices {
			if idx >= 0 && idx < len(counts) {
				counts[idx]++
			}
		}
		return
	}
	if t.HasOptions() && answer.AnswerIndex >= 0 && answer.AnswerIndex < len(counts) {
		counts[answer.AnswerIndex]++
	}
}
