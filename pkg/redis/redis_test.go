package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*rd.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func TestClaimStepOnce(t *testing.T) {
	rdb, mr := newClient(t)
	ledger := NewStepLedger(rdb, time.Hour)
	ctx := context.Background()
	recorded, claimed, err := ledger.ClaimStep(ctx, "run-a", 1, 30)
	require.NoError(t, err)
	require.True(t, claimed)
	require.Equal(t, 30.0, recorded)

	// 重复 claim 返回首次记录的折扣
	recorded, claimed, err = ledger.ClaimStep(ctx, "run-a", 1, 45)
	require.NoError(t, err)
	require.False(t, claimed)
	require.Equal(t, 30.0, recorded)

	// 不同步互不影响
	_, claimed, err = ledger.ClaimStep(ctx, "run-a", 2, 45)
	require.NoError(t, err)
	require.True(t, claimed)

	// 重建的拍卖（新 runID）即使锚点相同也从头 claim
	recorded, claimed, err = ledger.ClaimStep(ctx, "run-b", 1, 15)
	require.NoError(t, err)
	require.True(t, claimed)
	require.Equal(t, 15.0, recorded)

	require.True(t, mr.Exists(StepClaimKey("run-a", 1)))
	require.Greater(t, mr.TTL(StepClaimKey("run-a", 1)), time.Duration(0))
}

func TestClaimStepFractionalDiscount(t *testing.T) {
	rdb, _ := newClient(t)
	ledger := NewStepLedger(rdb, 0)
	_, _, err := ledger.ClaimStep(context.Background(), "run-a", 3, 37.5)
	require.NoError(t, err)
	recorded, claimed, err := ledger.ClaimStep(context.Background(), "run-a", 3, 50)
	require.NoError(t, err)
	require.False(t, claimed)
	require.Equal(t, 37.5, recorded)
}

func TestTickLock(t *testing.T) {
	rdb, mr := newClient(t)
	lock := NewTickLock(rdb)
	ctx := context.Background()

	token, ok, err := lock.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = lock.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	// 错误 token 不会释放
	require.NoError(t, lock.Release(ctx, "someone-else"))
	require.True(t, mr.Exists(TickLockKey()))

	require.NoError(t, lock.Release(ctx, token))
	require.False(t, mr.Exists(TickLockKey()))

	_, ok, err = lock.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// 过期后其他副本可获取
	mr.FastForward(2 * time.Minute)
	_, ok, err = lock.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}
