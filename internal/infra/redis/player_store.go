package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"livequiz/internal/domain"
)

// PlayerStore keeps one JSON document per player. UpdatePlayer is a WATCH/MULTI compare-and-swap
// on that document, so concurrent submissions for one player commit at most one answer.
type PlayerStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPlayerStore(client *redis.Client, ttl time.Duration) *PlayerStore {
	return &PlayerStore{client: client, ttl: ttl}
}

func (s *PlayerStore) AddPlayer(ctx context.Context, player domain.Player) error {
	ok, err := s.client.HSetNX(ctx, namesKey(player.GameID), player.DisplayName, player.ID).Result()
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrDisplayNameTaken
	}
	data, err := json.Marshal(player)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, playerKey(player.GameID, player.ID), data, s.ttl)
		pipe.SAdd(ctx, playersKey(player.GameID), player.ID)
		expire(ctx, pipe, s.ttl, playersKey(player.GameID), namesKey(player.GameID))
		return nil
	})
	return err
}

func (s *PlayerStore) GetPlayer(ctx context.Context, gameID, playerID string) (domain.Player, error) {
	return getJSON[domain.Player](ctx, s.client, playerKey(gameID, playerID), domain.ErrPlayerNotFound)
}

// ListPlayers returns players ordered by join time.
func (s *PlayerStore) ListPlayers(ctx context.Context, gameID string) ([]domain.Player, error) {
	ids, err := s.client.SMembers(ctx, playersKey(gameID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Player, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = playerKey(gameID, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var p domain.Player
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *PlayerStore) UpdatePlayer(ctx context.Context, gameID, playerID string, fn func(*domain.Player) error) (domain.Player, error) {
	return updateJSON(ctx, s.client, playerKey(gameID, playerID), s.ttl, domain.ErrPlayerNotFound, fn)
}

func (s *PlayerStore) DeletePlayers(ctx context.Context, gameID string) error {
	ids, err := s.client.SMembers(ctx, playersKey(gameID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	keys := make([]string, 0, len(ids)+2)
	for _, id := range ids {
		keys = append(keys, playerKey(gameID, id))
	}
	keys = append(keys, playersKey(gameID), namesKey(gameID))
	return s.client.Del(ctx, keys...).Err()
}
