package queue

import (
	"context"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/docqa/pkg/utils/id"
)

// DefaultLeasePrefix Redis 租约键前缀。
const DefaultLeasePrefix = "docqa:lease:"

// ReleaseFunc 释放租约。
type ReleaseFunc func(ctx context.Context) error

// Leaser 为同一键上的任务提供互斥，租约在 ttl 后自动过期。
type Leaser interface {
	// Acquire 获取租约，已被占用时 ok 为 false。
	Acquire(ctx context.Context, key string, ttl time.Duration) (release ReleaseFunc, ok bool, err error)
}

// releaseScript 仅当令牌匹配时删除，避免误删他人续上的租约。
var releaseScript = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLeaser 基于 SET NX PX 的租约。
type RedisLeaser struct {
	client goredis.UniversalClient
	prefix string
}

// NewRedisLeaser 创建 Redis 租约。
func NewRedisLeaser(client goredis.UniversalClient, prefix string) *RedisLeaser {
	if prefix == "" {
		prefix = DefaultLeasePrefix
	}
	return &RedisLeaser{client: client, prefix: prefix}
}

func (l *RedisLeaser) Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, bool, error) {
	token := id.NewULID()
	redisKey := l.prefix + key
	ok, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err()
	}, true, nil
}

// MemoryLeaser 进程内租约。
type MemoryLeaser struct {
	mu     sync.Mutex
	leases map[string]memoryLease
	now    func() time.Time
}

type memoryLease struct {
	token   string
	expires time.Time
}

// NewMemoryLeaser 创建进程内租约。
func NewMemoryLeaser() *MemoryLeaser {
	return &MemoryLeaser{leases: make(map[string]memoryLease), now: time.Now}
}

func (l *MemoryLeaser) Acquire(_ context.Context, key string, ttl time.Duration) (ReleaseFunc, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.leases[key]; ok && cur.expires.After(now) {
		return nil, false, nil
	}
	token := id.NewULID()
	l.leases[key] = memoryLease{token: token, expires: now.Add(ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if cur, ok := l.leases[key]; ok && cur.token == token {
			delete(l.leases, key)
		}
		return nil
	}, true, nil
}
