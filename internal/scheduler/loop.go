package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"reverse_auction/internal/metrics"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Ticker is driven once per period.
type Ticker interface {
	Tick(ctx context.Context) error
}

// Locker 跨副本互斥：拿不到锁的副本跳过本次 tick。
type Locker interface {
	Acquire(ctx context.Context, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, token string) error
}

// Loop 固定周期驱动引擎。tick 之间不重叠：上一次仍在执行时本次直接跳过。
type Loop struct {
	target   Ticker
	interval time.Duration
	locker   Locker
	logger   zerolog.Logger
	tracer   trace.Tracer

	running atomic.Bool
	wg      sync.WaitGroup
}

func New(target Ticker, interval time.Duration, locker Locker, logger zerolog.Logger) *Loop {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Loop{
		target:   target,
		interval: interval,
		locker:   locker,
		logger:   logger,
		tracer:   otel.Tracer("reverse_auction/scheduler"),
	}
}

// Run 启动后立即执行一次，然后每 interval 一次，直到 ctx 取消；返回前等待在途 tick 结束。
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info().Dur("interval", l.interval).Msg("scheduler loop started")
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	defer l.wg.Wait()

	l.launch(ctx)
	for {
		select {
		case <-ticker.C:
			l.launch(ctx)
		case <-ctx.Done():
			l.logger.Info().Msg("scheduler loop stopping")
			return
		}
	}
}

func (l *Loop) launch(ctx context.Context) {
	if !l.running.CompareAndSwap(false, true) {
		l.logger.Warn().Msg("previous tick still running, skipping")
		metrics.TickDuration.WithLabelValues("skipped").Observe(0)
		return
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.running.Store(false)
		l.runTick(ctx)
	}()
}

// RunOnce executes a single tick synchronously. It reports false when a tick
// was already in flight.
func (l *Loop) RunOnce(ctx context.Context) bool {
	if !l.running.CompareAndSwap(false, true) {
		return false
	}
	defer l.running.Store(false)
	l.runTick(ctx)
	return true
}

func (l *Loop) runTick(ctx context.Context) {
	start := time.Now()
	ctx, span := l.tracer.Start(ctx, "scheduler.tick")
	defer span.End()

	outcome := "ok"
	defer func() {
		metrics.TickDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		span.SetAttributes(attribute.String("tick.outcome", outcome))
	}()
	// 单次 tick 的 panic 不能拖垮循环
	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			l.logger.Error().Interface("panic", r).Msg("tick panicked")
		}
	}()

	if l.locker != nil {
		token, ok, err := l.locker.Acquire(ctx, l.interval)
		if err != nil {
			outcome = "error"
			l.logger.Error().Err(err).Msg("tick lock acquire failed")
			return
		}
		if !ok {
			outcome = "skipped"
			l.logger.Debug().Msg("tick lock held elsewhere, skipping")
			return
		}
		defer func() {
			if err := l.locker.Release(context.WithoutCancel(ctx), token); err != nil {
				l.logger.Warn().Err(err).Msg("tick lock release failed")
			}
		}()
	}

	if err := l.target.Tick(ctx); err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.logger.Error().Err(err).Msg("tick failed, retrying next period")
	}
}
