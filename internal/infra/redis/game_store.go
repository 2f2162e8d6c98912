package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"livequiz/internal/domain"
)

// GameStore keeps games and their answer keys in Redis so several instances can serve one game.
type GameStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewGameStore(client *redis.Client, ttl time.Duration) *GameStore {
	return &GameStore{client: client, ttl: ttl}
}

func (s *GameStore) CreateGame(ctx context.Context, game domain.Game) error {
	ok, err := s.client.SetNX(ctx, pinKey(game.PIN), game.ID, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrPINTaken
	}
	if err := setJSON(ctx, s.client, gameKey(game.ID), game, s.ttl); err != nil {
		_ = s.client.Del(ctx, pinKey(game.PIN)).Err()
		return err
	}
	return nil
}

func (s *GameStore) GetGame(ctx context.Context, gameID string) (domain.Game, error) {
	return getJSON[domain.Game](ctx, s.client, gameKey(gameID), domain.ErrGameNotFound)
}

func (s *GameStore) FindByPIN(ctx context.Context, pin string) (domain.Game, error) {
	id, err := s.client.Get(ctx, pinKey(pin)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Game{}, domain.ErrGameNotFound
	}
	if err != nil {
		return domain.Game{}, err
	}
	return s.GetGame(ctx, id)
}

func (s *GameStore) UpdateGame(ctx context.Context, gameID string, fn func(*domain.Game) error) (domain.Game, error) {
	return updateJSON(ctx, s.client, gameKey(gameID), s.ttl, domain.ErrGameNotFound, fn)
}

func (s *GameStore) DeleteGame(ctx context.Context, gameID string) error {
	game, err := s.GetGame(ctx, gameID)
	if errors.Is(err, domain.ErrGameNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.client.Del(ctx, gameKey(gameID), pinKey(game.PIN), answerKeyKey(gameID)).Err()
}

// SaveAnswerKeys replaces the answer keys of a game. They never leave the server.
func (s *GameStore) SaveAnswerKeys(ctx context.Context, gameID string, keys []domain.AnswerKey) error {
	n, err := s.client.Exists(ctx, gameKey(gameID)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrGameNotFound
	}

	fields := make(map[string]any, len(keys))
	for i, k := range keys {
		data, err := json.Marshal(k)
		if err != nil {
			return err
		}
		fields[strconv.Itoa(i)] = data
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, answerKeyKey(gameID))
		if len(fields) > 0 {
			pipe.HSet(ctx, answerKeyKey(gameID), fields)
		}
		expire(ctx, pipe, s.ttl, answerKeyKey(gameID))
		return nil
	})
	return err
}

func (s *GameStore) GetAnswerKey(ctx context.Context, gameID string, questionIndex int) (domain.AnswerKey, error) {
	raw, err := s.client.HGet(ctx, answerKeyKey(gameID), strconv.Itoa(questionIndex)).Bytes()
	if errors.Is(err, redis.Nil) {
		if n, existsErr := s.client.Exists(ctx, gameKey(gameID)).Result(); existsErr == nil && n == 0 {
			return domain.AnswerKey{}, domain.ErrGameNotFound
		}
		return domain.AnswerKey{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.AnswerKey{}, err
	}
	var key domain.AnswerKey
	if err := json.Unmarshal(raw, &key); err != nil {
		return domain.AnswerKey{}, err
	}
	return key, nil
}
