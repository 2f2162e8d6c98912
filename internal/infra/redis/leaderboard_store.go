package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"livequiz/internal/domain"
)

// LeaderboardStore keeps the per-game aggregate as a single JSON document.
type LeaderboardStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLeaderboardStore(client *redis.Client, ttl time.Duration) *LeaderboardStore {
	return &LeaderboardStore{client: client, ttl: ttl}
}

func (s *LeaderboardStore) GetLeaderboard(ctx context.Context, gameID string) (domain.Leaderboard, error) {
	return getJSON[domain.Leaderboard](ctx, s.client, leaderboardKey(gameID), domain.ErrLeaderboardNotFound)
}

func (s *LeaderboardStore) SaveLeaderboard(ctx context.Context, lb domain.Leaderboard) error {
	return setJSON(ctx, s.client, leaderboardKey(lb.GameID), lb, s.ttl)
}

func (s *LeaderboardStore) UpdateLeaderboard(ctx context.Context, gameID string, fn func(*domain.Leaderboard) error) error {
	_, err := updateJSON(ctx, s.client, leaderboardKey(gameID), s.ttl, domain.ErrLeaderboardNotFound, fn)
	return err
}

func (s *LeaderboardStore) DeleteLeaderboard(ctx context.Context, gameID string) error {
	return s.client.Del(ctx, leaderboardKey(gameID)).Err()
}
