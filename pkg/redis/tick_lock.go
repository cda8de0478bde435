package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
)

// luaReleaseIfMatch 仅当锁值匹配 token 时才删除，避免误删其他副本续上的锁。
const luaReleaseIfMatch = `
local lockKey = KEYS[1]
local token = ARGV[1]
if redis.call('GET', lockKey) == token then
  return redis.call('DEL', lockKey)
end
return 0
`

// TickLock 基于 SET NX PX 的简单互斥锁。
type TickLock struct {
	rdb *rd.Client
	key string
}

func NewTickLock(rdb *rd.Client) *TickLock {
	return &TickLock{rdb: rdb, key: TickLockKey()}
}

func (l *TickLock) Acquire(ctx context.Context, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release 安全释放锁。
func (l *TickLock) Release(ctx context.Context, token string) error {
	_, err := l.rdb.Eval(ctx, luaReleaseIfMatch, []string{l.key}, token).Int()
	return err
}
