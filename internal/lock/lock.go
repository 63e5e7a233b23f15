// Package lock は文書・パッケージ単位の署名ロックを提供する。
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Ivan-vtr/doc-sign-service/internal/domain"
)

// NopLocker は何もしないロック。単一の署名のみが進行する前提の環境で使う。
type NopLocker struct{}

// Acquire は常に成功する。
func (NopLocker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

// releaseScript は自分が取得したロックのみを削除する。
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker はRedisのSET NX PXによるアドバイザリロック。
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker は新しいRedisLockerを生成する。
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl}
}

// Acquire はロックを取得し、解放用の関数を返す。
// 既に保持されている場合はErrSigningInProgressを返す。
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrSigningInProgress
	}

	release := func(ctx context.Context) error {
		err := releaseScript.Run(ctx, l.client, []string{key}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		return nil
	}
	return release, nil
}
