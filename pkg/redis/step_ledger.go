package redis

import (
	"context"
	"strconv"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// luaClaimStepOnce 通过 SETNX 保证“同一步只触发一次”，
// 重复 claim 返回首次写入的折扣。
const luaClaimStepOnce = `
local key = KEYS[1]
local discount = ARGV[1]
local ttlSec = tonumber(ARGV[2])

if redis.call('SETNX', key, discount) == 1 then
  redis.call('EXPIRE', key, ttlSec)
  return {1, discount}
end
return {0, redis.call('GET', key)}
`

const defaultStepTTL = 7 * 24 * time.Hour

// StepLedger 在 Redis 里记录已触发的步，进程重启或多副本时避免重复叠加折扣。
type StepLedger struct {
	rdb *rd.Client
	ttl time.Duration
}

func NewStepLedger(rdb *rd.Client, ttl time.Duration) *StepLedger {
	if ttl <= 0 {
		ttl = defaultStepTTL
	}
	return &StepLedger{rdb: rdb, ttl: ttl}
}

// ClaimStep 首次 claim 返回 claimed=true；重复 claim 返回 false 和当时记录的折扣。
func (l *StepLedger) ClaimStep(ctx context.Context, runID string, step int64, discount float64) (float64, bool, error) {
	key := StepClaimKey(runID, step)
	val := strconv.FormatFloat(discount, 'f', -1, 64)

	res, err := l.rdb.Eval(ctx, luaClaimStepOnce, []string{key}, val, int64(l.ttl/time.Second)).Slice()
	if err != nil {
		return 0, false, err
	}
	if len(res) != 2 {
		return 0, false, rd.Nil
	}
	claimed, _ := res[0].(int64)
	recordedStr, _ := res[1].(string)
	recorded, err := strconv.ParseFloat(recordedStr, 64)
	if err != nil {
		return 0, false, err
	}
	return recorded, claimed == 1, nil
}
