package memory

import (
	"context"
	"sync"

	"livequiz/internal/domain"
)

// LeaderboardStore is an in-memory implementation of app.LeaderboardRepository.
type LeaderboardStore struct {
	mu     sync.RWMutex
	boards map[string]domain.Leaderboard
}

func NewLeaderboardStore() *LeaderboardStore {
	return &LeaderboardStore{boards: make(map[string]domain.Leaderboard)}
}

func (s *LeaderboardStore) GetLeaderboard(_ context.Context, gameID string) (domain.Leaderboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lb, ok := s.boards[gameID]
	if !ok {
		return domain.Leaderboard{}, domain.ErrLeaderboardNotFound
	}
	return cloneLeaderboard(lb), nil
}

func (s *LeaderboardStore) SaveLeaderboard(_ context.Context, lb domain.Leaderboard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boards[lb.GameID] = cloneLeaderboard(lb)
	return nil
}

func (s *LeaderboardStore) UpdateLeaderboard(_ context.Context, gameID string, fn func(*domain.Leaderboard) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lb, ok := s.boards[gameID]
	if !ok {
		return domain.ErrLeaderboardNotFound
	}
	working := cloneLeaderboard(lb)
	if err := fn(&working); err != nil {
		return err
	}
	s.boards[gameID] = working
	return nil
}

func (s *LeaderboardStore) DeleteLeaderboard(_ context.Context, gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.boards, gameID)
	return nil
}

func cloneLeaderboard(lb domain.Leaderboard) domain.Leaderboard {
	entries := make([]domain.LeaderboardEntry, len(lb.Entries))
	copy(entries, lb.Entries)
	counts := make([]int, len(lb.ResponseCounts))
	copy(counts, lb.ResponseCounts)
	lb.Entries = entries
	lb.ResponseCounts = counts
	return lb
}
