package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "ratelimit:"
	maxCASAttempts = 16
)

// ErrContended は CAS の再試行回数を使い切った場合に返されます。
var ErrContended = errors.New("ratelimit: too much contention on key")

// RedisStore はカウンタを Redis に保存します。
//
// 読み込みから書き込みまでを WATCH/MULTI で囲み、他のリクエストが同じキーを
// 更新していた場合はやり直すため、同時アクセスでもカウントは失われません。
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore は RedisStore を作成します。ttl は最長ウィンドウ以上にしてください。
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

// Apply は WATCH したキーに対して step の結果をトランザクションで書き込みます。
func (s *RedisStore) Apply(ctx context.Context, key string, step func(current *Record) *Record) error {
	redisKey := redisKeyPrefix + key

	txf := func(tx *redis.Tx) error {
		var current *Record
		data, err := tx.Get(ctx, redisKey).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var rec Record
			if err := json.Unmarshal(data, &rec); err == nil {
				current = &rec
			}
		}

		next := step(current)
		if next == nil {
			return nil
		}
		payload, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, payload, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxCASAttempts; i++ {
		err := s.rdb.Watch(ctx, txf, redisKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("redis rate limit: %w", err)
		}
		return nil
	}
	return ErrContended
}
