package auction

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"reverse_auction/internal/catalog"
	"reverse_auction/internal/metrics"
	"reverse_auction/internal/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Options wires the engine's collaborators. Ledger and Publisher are optional.
type Options struct {
	Store           ConfigStore
	Catalog         CatalogClient
	Ledger          StepLedger
	Publisher       Publisher
	Logger          zerolog.Logger
	Now             func() time.Time
	DefaultTimezone string
	PreviewLimit    int
}

// Engine 是全局拍卖状态的唯一持有者：IDLE -> SCHEDULED -> RUNNING -> IDLE。
// 所有变更经 mu 串行化；读者通过 atomic 快照读取，不持锁。
type Engine struct {
	mu sync.Mutex

	store     ConfigStore
	catalog   CatalogClient
	ledger    StepLedger
	publisher Publisher
	logger    zerolog.Logger
	now       func() time.Time

	defaultTZ    string
	previewLimit int

	// 以下字段仅在持有 mu 时读写
	cfg      *model.AuctionConfig
	products []catalog.Product
	// applied 是店面当前生效的折扣，拍卖结束或停止后仍保留
	applied float64
	// unsaved 表示店面已改价但落库失败，下次 tick 先补写
	unsaved bool

	loaded atomic.Bool
	snap   atomic.Pointer[snapshot]
}

type snapshot struct {
	cfg          *model.AuctionConfig
	applied      float64
	productCount int
}

func NewEngine(opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DefaultTimezone == "" {
		opts.DefaultTimezone = "CET"
	}
	if opts.PreviewLimit <= 0 {
		opts.PreviewLimit = 100
	}
	e := &Engine{
		store:        opts.Store,
		catalog:      opts.Catalog,
		ledger:       opts.Ledger,
		publisher:    opts.Publisher,
		logger:       opts.Logger,
		now:          opts.Now,
		defaultTZ:    opts.DefaultTimezone,
		previewLimit: opts.PreviewLimit,
	}
	e.snap.Store(&snapshot{})
	return e
}

// Load 读取持久化配置，重建 RUNNING/SCHEDULED 状态。重复调用无副作用。
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ensureLoaded(ctx)
}

func (e *Engine) ensureLoaded(ctx context.Context) error {
	if e.loaded.Load() {
		return nil
	}
	cfg, err := e.store.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "load auction config")
	}
	e.cfg = cfg
	if cfg != nil {
		if cfg.RunID == "" {
			cfg.RunID = uuid.NewString()
			e.unsaved = true
		}
		e.applied = cfg.CurrentDiscountPercent
		e.logger.Info().
			Bool("active", cfg.IsActive).
			Bool("scheduled", cfg.IsScheduled()).
			Float64("discount", cfg.CurrentDiscountPercent).
			Msg("auction state restored")
	}
	e.loaded.Store(true)
	e.publishSnapshot()
	return nil
}

// Create 校验并创建拍卖，替换已有拍卖。
// 立即开始（或计划时间已过）时拉取最新目录并应用首步折扣；否则进入 SCHEDULED。
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*model.AuctionConfig, error) {
	v, err := validateRequest(req, e.defaultTZ)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	ctx = detach(ctx)
	if err := e.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	now := e.now().UTC()
	next := &model.AuctionConfig{
		ID:                       model.GlobalAuctionID,
		RunID:                    uuid.NewString(),
		IntervalMinutes:          v.interval,
		DiscountIncrementPercent: v.increment,
		InitialDiscountPercent:   v.initial,
		Timezone:                 v.timezone,
		CurrentDiscountPercent:   e.applied,
	}

	if v.mode == StartScheduled && v.scheduledAt.After(now) {
		next.ScheduledStartTime = v.scheduledAt
		if err := e.store.Save(ctx, next); err != nil {
			return nil, errors.Wrap(err, "save scheduled auction")
		}
		e.cfg = next
		e.unsaved = false
		// 开始时再拉取目录
		e.products = nil
		e.publishSnapshot()
		e.logger.Info().
			Time("scheduled_start", *v.scheduledAt).
			Str("timezone", v.timezone).
			Int("interval_minutes", v.interval).
			Float64("increment", v.increment).
			Msg("auction scheduled")
		e.emit(ctx, model.ActionAuctionScheduled, e.applied, catalog.Result{},
			fmt.Sprintf("start %s %s", formatInZone(*v.scheduledAt, v.timezone), v.timezone))
		return next.Clone(), nil
	}

	products, err := e.catalog.FetchCatalog(ctx)
	if err != nil {
		return nil, catalogUnavailable(err)
	}
	if len(catalog.EligibleProducts(products)) == 0 {
		return nil, ErrNoEligibleProducts
	}
	e.products = products

	start := e.startingDiscount(next)
	next.StartedAt = &now
	discount, res := e.applyStep(ctx, next.RunID, 0, start)
	if err := e.commitStep(ctx, next, now, 0, discount, res); err != nil {
		return nil, err
	}
	e.logger.Info().
		Float64("discount", discount).
		Int("interval_minutes", v.interval).
		Float64("increment", v.increment).
		Int("updated", res.Updated).
		Int("failed", res.Failed()).
		Msg("auction started")
	e.emit(ctx, model.ActionAuctionStarted, discount, res, "immediate start")
	if e.cfg == nil {
		e.emit(ctx, model.ActionAuctionCompleted, discount, res, "reached 100% on first step")
	}
	return next.Clone(), nil
}

// Tick 由调度循环每分钟调用：加载状态、到期则提升 SCHEDULED、到期则推进一步。
func (e *Engine) Tick(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx = detach(ctx)
	if err := e.ensureLoaded(ctx); err != nil {
		return err
	}
	if err := e.flushUnsaved(ctx); err != nil {
		return err
	}
	now := e.now().UTC()
	if err := e.promoteIfDue(ctx, now); err != nil {
		return err
	}
	return e.stepIfDue(ctx, now)
}

// promoteIfDue 是 SCHEDULED -> RUNNING 的唯一入口，调度循环和状态查询共用。
// 锚点为计划开始时间而非当前时间。调用方必须持有 mu。
func (e *Engine) promoteIfDue(ctx context.Context, now time.Time) error {
	cfg := e.cfg
	if cfg == nil || !cfg.IsScheduled() || now.Before(*cfg.ScheduledStartTime) {
		return nil
	}
	if err := e.ensureProducts(ctx); err != nil {
		return err
	}

	anchor := cfg.ScheduledStartTime.UTC()
	passed := intervalsPassed(anchor, now, cfg.Interval())
	next := cfg.Clone()
	next.StartedAt = &anchor
	discount, res := e.applyStep(ctx, next.RunID, passed, e.startingDiscount(next))
	if err := e.commitStep(ctx, next, now, passed, discount, res); err != nil {
		return err
	}
	e.logger.Info().
		Time("anchor", anchor).
		Int64("intervals_passed", passed).
		Float64("discount", discount).
		Msg("scheduled auction started")
	e.emit(ctx, model.ActionAuctionStarted, discount, res, "scheduled start")
	if e.cfg == nil {
		e.emit(ctx, model.ActionAuctionCompleted, discount, res, "reached 100% on first step")
	}
	return nil
}

// stepIfDue 在 RUNNING 状态下按锚点判断是否到期，到期则推进一个步长。
// 错过的多个间隔合并为一步，不会补发。
func (e *Engine) stepIfDue(ctx context.Context, now time.Time) error {
	cfg := e.cfg
	if cfg == nil || !cfg.IsActive || cfg.StartedAt == nil {
		return nil
	}
	anchor := cfg.StartedAt.UTC()
	interval := cfg.Interval()
	if !stepDue(anchor, cfg.StepsFired, interval, now) {
		return nil
	}
	if err := e.ensureProducts(ctx); err != nil {
		return err
	}

	passed := intervalsPassed(anchor, now, interval)
	target := nextDiscount(e.applied, cfg.DiscountIncrementPercent)
	next := cfg.Clone()
	discount, res := e.applyStep(ctx, next.RunID, passed, target)
	if err := e.commitStep(ctx, next, now, passed, discount, res); err != nil {
		return err
	}

	e.logger.Info().
		Float64("discount", discount).
		Int64("step", passed).
		Int("eligible", res.Eligible).
		Int("updated", res.Updated).
		Int("failed", res.Failed()).
		Msg("price step applied")
	e.emit(ctx, model.ActionPriceDrop, discount, res, fmt.Sprintf("step %d", passed))
	if e.cfg == nil {
		e.logger.Info().Msg("auction completed at 100%")
		e.emit(ctx, model.ActionAuctionCompleted, discount, res, "")
	}
	return nil
}

// applyStep claims the step in the ledger and mutates prices. A step that was
// already claimed re-applies the recorded discount.
func (e *Engine) applyStep(ctx context.Context, runID string, step int64, target float64) (float64, catalog.Result) {
	discount := target
	if e.ledger != nil {
		recorded, claimed, err := e.ledger.ClaimStep(ctx, runID, step, target)
		switch {
		case err != nil:
			e.logger.Warn().Err(err).Int64("step", step).Msg("step ledger unavailable, applying without claim")
		case !claimed:
			e.logger.Warn().
				Int64("step", step).
				Float64("recorded", recorded).
				Float64("target", target).
				Msg("step already claimed, re-applying recorded discount")
			discount = recorded
		}
	}

	res := e.catalog.ApplyDiscount(ctx, e.products, decimal.NewFromFloat(discount))
	catalog.Apply(e.products, res.Applied)
	e.applied = discount
	metrics.StepsFired.Inc()
	metrics.CurrentDiscount.Set(discount)
	return discount, res
}

// commitStep 写入步进结果。到达 100% 时清除记录回到 IDLE，否则保存并推进 nextUpdateAt。
func (e *Engine) commitStep(ctx context.Context, next *model.AuctionConfig, now time.Time, passed int64, discount float64, res catalog.Result) error {
	anchor := next.StartedAt.UTC()
	nextAt := stepAt(anchor, passed+1, next.Interval())
	lastAt := now

	next.IsActive = true
	next.ScheduledStartTime = nil
	next.CurrentDiscountPercent = discount
	next.StepsFired = passed
	next.LastUpdateAt = &lastAt
	next.NextUpdateAt = &nextAt
	next.LastStepEligible = res.Eligible
	next.LastStepUpdated = res.Updated
	next.LastStepFailed = res.Failed()

	// 店面已改价，内存随之推进；落库失败记为 unsaved，由下一次 tick 补写。
	if reachedCap(discount) {
		e.cfg = nil
		e.products = nil
		e.publishSnapshot()
		return e.persist(ctx, "clear completed auction")
	}

	e.cfg = next
	e.publishSnapshot()
	return e.persist(ctx, "save auction step")
}

// persist 把当前内存状态写入 store：有拍卖则 Save，否则 Clear。
func (e *Engine) persist(ctx context.Context, op string) error {
	var err error
	if e.cfg != nil {
		err = e.store.Save(ctx, e.cfg)
	} else {
		err = e.store.Clear(ctx)
	}
	if err != nil {
		e.unsaved = true
		return errors.Wrap(err, op)
	}
	e.unsaved = false
	return nil
}

// flushUnsaved 补写上一次落库失败的状态。
func (e *Engine) flushUnsaved(ctx context.Context) error {
	if !e.unsaved {
		return nil
	}
	if err := e.persist(ctx, "retry persist auction state"); err != nil {
		return err
	}
	e.logger.Info().Msg("auction state persisted after earlier failure")
	return nil
}

// Stop 停止拍卖并删除记录。不恢复价格；恢复价格是单独的 ResetPrices 操作。
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx = detach(ctx)
	if err := e.ensureLoaded(ctx); err != nil {
		return err
	}
	// 先删记录：删除失败时保持运行，避免内存 IDLE 而重启后又恢复拍卖
	if err := e.store.Clear(ctx); err != nil {
		return errors.Wrap(err, "clear auction")
	}
	had := e.cfg != nil
	e.cfg = nil
	e.products = nil
	e.unsaved = false
	e.publishSnapshot()
	if had {
		e.logger.Info().Float64("discount", e.applied).Msg("auction stopped, prices left as they are")
		e.emit(ctx, model.ActionAuctionStopped, e.applied, catalog.Result{}, "")
	}
	return nil
}

// ResetPrices 将所有非草稿变体恢复为原价，店面折扣归零。
func (e *Engine) ResetPrices(ctx context.Context) (catalog.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx = detach(ctx)
	if err := e.ensureLoaded(ctx); err != nil {
		return catalog.Result{}, err
	}
	if err := e.ensureProducts(ctx); err != nil {
		return catalog.Result{}, err
	}

	res := e.catalog.ResetPrices(ctx, e.products)
	catalog.Apply(e.products, res.Applied)
	e.applied = 0
	metrics.CurrentDiscount.Set(0)

	var err error
	if e.cfg != nil {
		next := e.cfg.Clone()
		next.CurrentDiscountPercent = 0
		next.LastStepEligible = res.Eligible
		next.LastStepUpdated = res.Updated
		next.LastStepFailed = res.Failed()
		e.cfg = next
		err = e.persist(ctx, "save after reset")
	}
	// 下一次使用时重新拉取目录
	e.products = nil
	e.publishSnapshot()

	e.logger.Info().Int("reset", res.Updated).Int("failed", res.Failed()).Msg("prices reset to original")
	e.emit(ctx, model.ActionPricesReset, 0, res, "")
	return res, err
}

// ApplyManualDiscount 立即把店面折扣设为 percent，不改变调度状态。
func (e *Engine) ApplyManualDiscount(ctx context.Context, percent float64) (catalog.Result, error) {
	if !validPercent(percent) {
		return catalog.Result{}, errors.Wrapf(ErrInvalidDiscount, "got %v", percent)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	ctx = detach(ctx)
	if err := e.ensureLoaded(ctx); err != nil {
		return catalog.Result{}, err
	}
	if err := e.ensureProducts(ctx); err != nil {
		return catalog.Result{}, err
	}

	res := e.catalog.ApplyDiscount(ctx, e.products, decimal.NewFromFloat(percent))
	catalog.Apply(e.products, res.Applied)
	e.applied = percent
	metrics.CurrentDiscount.Set(percent)

	var err error
	if e.cfg != nil {
		next := e.cfg.Clone()
		next.CurrentDiscountPercent = percent
		next.LastStepEligible = res.Eligible
		next.LastStepUpdated = res.Updated
		next.LastStepFailed = res.Failed()
		e.cfg = next
		err = e.persist(ctx, "save after manual discount")
	}
	e.publishSnapshot()

	e.logger.Info().Float64("discount", percent).Int("updated", res.Updated).Int("failed", res.Failed()).Msg("manual discount applied")
	e.emit(ctx, model.ActionManualDiscount, percent, res, "")
	return res, err
}

// EstablishCompareAtPrices 为没有 compareAtPrice 的变体写入当前价作为原价参考。
func (e *Engine) EstablishCompareAtPrices(ctx context.Context) (catalog.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx = detach(ctx)
	if err := e.ensureLoaded(ctx); err != nil {
		return catalog.Result{}, err
	}
	if err := e.ensureProducts(ctx); err != nil {
		return catalog.Result{}, err
	}
	res := e.catalog.EstablishCompareAtPrices(ctx, e.products)
	catalog.Apply(e.products, res.Applied)
	e.publishSnapshot()
	e.emit(ctx, model.ActionComparePricesSet, e.applied, res, "")
	return res, nil
}

// startingDiscount: 显式指定的首步折扣；否则保留店面已有折扣；否则一个步长。
func (e *Engine) startingDiscount(cfg *model.AuctionConfig) float64 {
	if cfg.InitialDiscountPercent != nil {
		return *cfg.InitialDiscountPercent
	}
	if e.applied > 0 {
		return e.applied
	}
	return cfg.DiscountIncrementPercent
}

// detach 让改价不随调用方（HTTP 请求、店面轮询）取消而中断；改价一旦开始就完整执行。
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// ensureProducts 仅在缓存为空时全量拉取目录。
func (e *Engine) ensureProducts(ctx context.Context) error {
	if len(e.products) > 0 {
		return nil
	}
	products, err := e.catalog.FetchCatalog(ctx)
	if err != nil {
		return catalogUnavailable(err)
	}
	e.products = products
	return nil
}

func (e *Engine) publishSnapshot() {
	e.snap.Store(&snapshot{
		cfg:          e.cfg.Clone(),
		applied:      e.applied,
		productCount: len(e.products),
	})
}

func (e *Engine) emit(ctx context.Context, action model.AuctionAction, discount float64, res catalog.Result, details string) {
	if e.publisher == nil {
		return
	}
	ev := Event{
		ID:              uuid.NewString(),
		AuctionID:       model.GlobalAuctionID,
		Action:          action,
		DiscountPercent: discount,
		UpdatedVariants: res.Updated,
		FailedVariants:  res.Failed(),
		Details:         details,
		OccurredAt:      e.now().UTC(),
	}
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.logger.Warn().Err(err).Str("action", string(action)).Msg("publish auction event failed")
	}
}
