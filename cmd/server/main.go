package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"reverse_auction/internal/auction"
	"reverse_auction/internal/catalog"
	"reverse_auction/internal/config"
	"reverse_auction/internal/middleware"
	"reverse_auction/internal/obs"
	"reverse_auction/internal/queue"
	"reverse_auction/internal/router"
	"reverse_auction/internal/scheduler"
	"reverse_auction/internal/store"
	"reverse_auction/internal/tracing"
	rediskey "reverse_auction/pkg/redis"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const serviceName = "reverse-auction"

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger 还没初始化
		bootLogger := obs.InitLogger(serviceName, "info", false)
		bootLogger.Fatal().Err(err).Msg("load config")
	}
	logger := obs.InitLogger(serviceName, cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracing.InitTracerProvider(serviceName, cfg.JaegerEndpoint, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("init tracer")
	}

	// 1. 数据库：auction_configs + auction_logs
	db, err := store.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db")
	}
	logs := store.NewLogStore(db)

	// 2. Redis（可选）：限流、tick 锁、步进账本、事件 outbox
	var rdb *rd.Client
	if cfg.RedisAddr != "" {
		rdb = rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis ping")
		}
		defer rdb.Close()
	}

	// 3. 商品目录
	if cfg.ShopURL == "" || cfg.AccessToken == "" {
		logger.Warn().Msg("SHOPIFY_SHOP_URL / SHOPIFY_ACCESS_TOKEN not set, catalog calls will fail")
	}
	api := catalog.NewShopifyAPI(catalog.ShopifyEndpoint(cfg.ShopURL, cfg.APIVersion), cfg.AccessToken, nil)
	client := catalog.NewClient(api, catalog.Options{
		PageSize:    cfg.CatalogPageSize,
		PageDelay:   cfg.CatalogPageDelay,
		BatchSize:   cfg.CatalogBatchSize,
		Concurrency: cfg.CatalogConcurrency,
		ChunkDelay:  cfg.CatalogChunkDelay,
		Backoff:     catalog.DefaultBackoff,
	}, obs.Component(logger, "catalog"))

	g, gctx := errgroup.WithContext(ctx)

	// 4. 事件链路：Kafka 开启时 outbox -> relay -> kafka -> consumer -> auction_logs，否则直接落库
	opts := auction.Options{
		Store:           store.New(db),
		Catalog:         client,
		Logger:          obs.Component(logger, "engine"),
		DefaultTimezone: cfg.DefaultTimezone,
		PreviewLimit:    cfg.SchedulePreviewLimit,
		Publisher:       queue.NewRecorder(logs),
	}
	var locker scheduler.Locker
	if rdb != nil {
		opts.Ledger = rediskey.NewStepLedger(rdb, 0)
		locker = rediskey.NewTickLock(rdb)
	}
	if cfg.KafkaEnabled() {
		producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		consumer := queue.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, logs, obs.Component(logger, "consumer"))
		defer consumer.Close()
		relay := queue.NewRelay(rdb, producer, cfg.EventStream, cfg.EventGroup, cfg.EventConsumer, obs.Component(logger, "relay"))

		opts.Publisher = queue.NewOutbox(rdb, rediskey.EventOutboxKey(cfg.EventStream))
		g.Go(func() error { relay.Run(gctx); return nil })
		g.Go(func() error { consumer.Run(gctx); return nil })
	}

	engine := auction.NewEngine(opts)
	if err := engine.Load(ctx); err != nil {
		// 加载失败不阻止启动，首个 tick 会重试
		logger.Error().Err(err).Msg("load auction state")
	}

	// 5. 调度循环
	loop := scheduler.New(engine, cfg.TickInterval, locker, obs.Component(logger, "scheduler"))
	g.Go(func() error { loop.Run(gctx); return nil })

	// 6. HTTP
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(obs.Component(logger, "http")))
	router.Setup(r, engine, logs, rdb, cfg)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracer(flushCtx); err != nil {
		logger.Warn().Err(err).Msg("tracer shutdown")
	}
	logger.Info().Msg("bye")
}
