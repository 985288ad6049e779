// Package joblock provides named, expiring locks that keep two instances
// of the same background job from running at once.
package joblock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/privylock/internal/common"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "privylock:job:"

// ReleaseFunc gives a held lock back. Releasing an expired or stolen lock
// is a no-op.
type ReleaseFunc func(ctx context.Context) error

// Locker acquires job locks. Acquire returns common.ErrJobLocked when the
// lock is held by someone else.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (ReleaseFunc, error)
}

// Key returns the storage key for a job name.
func Key(name string) string {
	return keyPrefix + name
}

// releaseScript deletes the key only when it still carries our token.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisLocker shares locks between processes through Redis.
type RedisLocker struct {
	client redisClient
}

func NewRedisLocker(client redisClient) *RedisLocker {
	return &RedisLocker{client: client}
}

// NewRedisLockerFromURL parses a redis:// URL and pings the server.
func NewRedisLockerFromURL(ctx context.Context, url string) (*RedisLocker, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = time.Second
	opts.WriteTimeout = time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisLocker(client), client, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (ReleaseFunc, error) {
	key := Key(name)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", name, err)
	}
	if !ok {
		return nil, common.ErrJobLocked
	}

	return func(ctx context.Context) error {
		if err := l.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("release %s: %w", name, err)
		}
		return nil
	}, nil
}

// MemoryLocker keeps locks in process memory. It is used when no Redis
// URL is configured and in tests.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]memoryLock
	clock func() time.Time
}

type memoryLock struct {
	token   string
	expires time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]memoryLock), clock: time.Now}
}

func (l *MemoryLocker) Acquire(_ context.Context, name string, ttl time.Duration) (ReleaseFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if cur, ok := l.held[name]; ok && now.Before(cur.expires) {
		return nil, common.ErrJobLocked
	}

	token := uuid.NewString()
	l.held[name] = memoryLock{token: token, expires: now.Add(ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if cur, ok := l.held[name]; ok && cur.token == token {
			delete(l.held, name)
		}
		return nil
	}, nil
}
