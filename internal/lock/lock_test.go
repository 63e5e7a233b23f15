package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Ivan-vtr/doc-sign-service/internal/domain"
)

func TestNopLocker(t *testing.T) {
	ctx := context.Background()
	var l NopLocker

	// 同じキーを何度でも取得できる
	for i := 0; i < 2; i++ {
		release, err := l.Acquire(ctx, "lock:sign:document:doc-1")
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		if err := release(ctx); err != nil {
			t.Fatalf("release failed: %v", err)
		}
	}
}

func newTestRedisLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, ttl), mr
}

func TestRedisLocker_AcquireAndRelease(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestRedisLocker(t, time.Minute)
	const key = "lock:sign:document:doc-1"

	release, err := l.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !mr.Exists(key) {
		t.Fatal("want lock key to exist")
	}
	if got := mr.TTL(key); got != time.Minute {
		t.Errorf("want ttl 1m, got %s", got)
	}

	if _, err := l.Acquire(ctx, key); !errors.Is(err, domain.ErrSigningInProgress) {
		t.Errorf("want ErrSigningInProgress, got %v", err)
	}

	// 別のキーは独立している
	releaseOther, err := l.Acquire(ctx, "lock:sign:package:pkg-1")
	if err != nil {
		t.Fatalf("Acquire other key failed: %v", err)
	}
	defer releaseOther(ctx)

	if err := release(ctx); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if mr.Exists(key) {
		t.Error("want lock key to be deleted after release")
	}

	// 二重解放はエラーにしない
	if err := release(ctx); err != nil {
		t.Errorf("second release failed: %v", err)
	}

	release, err = l.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("re-Acquire failed: %v", err)
	}
	_ = release(ctx)
}

func TestRedisLocker_ExpiredLockNotReleasedByFormerHolder(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestRedisLocker(t, time.Second)
	const key = "lock:sign:document:doc-1"

	releaseFirst, err := l.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	mr.FastForward(2 * time.Second)

	releaseSecond, err := l.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("want acquire after expiry, got %v", err)
	}
	token, err := mr.Get(key)
	if err != nil {
		t.Fatalf("get lock value: %v", err)
	}

	if err := releaseFirst(ctx); err != nil {
		t.Fatalf("release of expired lock failed: %v", err)
	}
	got, err := mr.Get(key)
	if err != nil || got != token {
		t.Errorf("want lock of second holder to remain, got %q (%v)", got, err)
	}

	if err := releaseSecond(ctx); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if mr.Exists(key) {
		t.Error("want lock key to be deleted")
	}
}

func TestRedisLocker_ServerUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	l := NewRedisLocker(client, time.Minute)
	mr.Close()

	_, err = l.Acquire(context.Background(), "lock:sign:document:doc-1")
	if err == nil {
		t.Fatal("want error when redis is unavailable")
	}
	if errors.Is(err, domain.ErrSigningInProgress) {
		t.Errorf("want transport error, got %v", err)
	}
}
