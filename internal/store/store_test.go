package store

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"reverse_auction/internal/model"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestStoreSaveLoadClear(t *testing.T) {
	ctx := context.Background()
	s := New(openTestDB(t))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, got)

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	next := started.Add(30 * time.Minute)
	initial := 15.0
	cfg := &model.AuctionConfig{
		RunID:                    "3f1c2a9e-7b1d-4c55-9a0e-0c6d2b7f8e11",
		IntervalMinutes:          30,
		DiscountIncrementPercent: 5,
		CurrentDiscountPercent:   15,
		InitialDiscountPercent:   &initial,
		IsActive:                 true,
		Timezone:                 "Europe/Berlin",
		StartedAt:                &started,
		LastUpdateAt:             &started,
		NextUpdateAt:             &next,
		LastStepEligible:         12,
		LastStepUpdated:          11,
		LastStepFailed:           1,
	}
	require.NoError(t, s.Save(ctx, cfg))
	require.Equal(t, model.GlobalAuctionID, cfg.ID)

	got, err = s.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.True(t, got.IsActive)
	require.Equal(t, 15.0, got.CurrentDiscountPercent)
	require.NotNil(t, got.InitialDiscountPercent)
	require.Equal(t, 15.0, *got.InitialDiscountPercent)
	require.True(t, started.Equal(*got.StartedAt))
	require.True(t, next.Equal(*got.NextUpdateAt))
	require.Equal(t, 1, got.LastStepFailed)
	require.Equal(t, cfg.RunID, got.RunID)

	// 覆盖写入同一主键
	cfg.CurrentDiscountPercent = 20
	cfg.StepsFired = 1
	require.NoError(t, s.Save(ctx, cfg))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, 20.0, got.CurrentDiscountPercent)
	require.EqualValues(t, 1, got.StepsFired)

	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Clear(ctx))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStoreScheduledRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(openTestDB(t))

	at := time.Date(2026, 5, 2, 8, 30, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, &model.AuctionConfig{
		IntervalMinutes:          60,
		DiscountIncrementPercent: 10,
		ScheduledStartTime:       &at,
		Timezone:                 "CET",
	}))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, got.IsScheduled())
	require.False(t, got.IsActive)
	require.Nil(t, got.StartedAt)
	require.Equal(t, time.Hour, got.Interval())
}

func TestLogStoreAppendIdempotentAndRecent(t *testing.T) {
	ctx := context.Background()
	ls := NewLogStore(openTestDB(t))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, action := range []model.AuctionAction{model.ActionAuctionStarted, model.ActionPriceDrop, model.ActionAuctionStopped} {
		require.NoError(t, ls.Append(ctx, &model.AuctionLog{
			EventID:         fmt.Sprintf("evt-%d", i),
			AuctionID:       model.GlobalAuctionID,
			Action:          action,
			DiscountPercent: float64(10 * (i + 1)),
			OccurredAt:      base.Add(time.Duration(i) * time.Minute),
		}))
	}
	// 重复 event_id 不报错也不重复写入
	require.NoError(t, ls.Append(ctx, &model.AuctionLog{
		EventID:    "evt-1",
		AuctionID:  model.GlobalAuctionID,
		Action:     model.ActionPriceDrop,
		OccurredAt: base,
	}))

	list, err := ls.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, model.ActionAuctionStopped, list[0].Action)
	require.Equal(t, model.ActionAuctionStarted, list[2].Action)

	list, err = ls.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "evt-2", list[0].EventID)
}
