package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"livequiz/internal/domain"
)

// maxTxRetries bounds optimistic WATCH/MULTI attempts before giving up with domain.ErrConflict.
const maxTxRetries = 32

// Key layout. Every key of a game expires after the retention TTL.
//
//	game:{id}                  JSON game document
//	game:pin:{pin}             game id
//	game:{id}:answerkey        hash question index -> JSON answer key
//	game:{id}:players          set of player ids
//	game:{id}:names            hash display name -> player id
//	game:{id}:player:{pid}     JSON player document
//	game:{id}:leaderboard      JSON leaderboard document
func gameKey(gameID string) string        { return "game:" + gameID }
func pinKey(pin string) string            { return "game:pin:" + pin }
func answerKeyKey(gameID string) string   { return "game:" + gameID + ":answerkey" }
func playersKey(gameID string) string     { return "game:" + gameID + ":players" }
func namesKey(gameID string) string       { return "game:" + gameID + ":names" }
func leaderboardKey(gameID string) string { return "game:" + gameID + ":leaderboard" }

func playerKey(gameID, playerID string) string {
	return "game:" + gameID + ":player:" + playerID
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

type setter interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

func getJSON[T any](ctx context.Context, c getter, key string, notFound error) (T, error) {
	var v T
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return v, notFound
	}
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, err
	}
	return v, nil
}

func setJSON(ctx context.Context, c setter, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, ttl).Err()
}

// updateJSON applies fn to the document at key inside WATCH/MULTI. A concurrent write to the key
// aborts the transaction and fn runs again on the fresh document.
func updateJSON[T any](ctx context.Context, client *redis.Client, key string, ttl time.Duration, notFound error, fn func(*T) error) (T, error) {
	var out T
	txf := func(tx *redis.Tx) error {
		v, err := getJSON[T](ctx, tx, key, notFound)
		if err != nil {
			return err
		}
		if err := fn(&v); err != nil {
			return err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, ttl)
			return nil
		})
		if err == nil {
			out = v
		}
		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return out, err
	}
	return out, domain.ErrConflict
}

func expire(ctx context.Context, pipe redis.Pipeliner, ttl time.Duration, keys ...string) {
	if ttl <= 0 {
		return
	}
	for _, k := range keys {
		pipe.Expire(ctx, k, ttl)
	}
}
