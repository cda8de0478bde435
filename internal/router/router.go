package router

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"reverse_auction/internal/auction"
	"reverse_auction/internal/catalog"
	"reverse_auction/internal/config"
	"reverse_auction/internal/middleware"
	"reverse_auction/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	rd "github.com/redis/go-redis/v9"
)

// AuctionService 是路由依赖的引擎操作，*auction.Engine 实现它。
type AuctionService interface {
	Status(ctx context.Context) auction.Status
	Create(ctx context.Context, req auction.CreateRequest) (*model.AuctionConfig, error)
	Stop(ctx context.Context) error
	ResetPrices(ctx context.Context) (catalog.Result, error)
	ApplyManualDiscount(ctx context.Context, percent float64) (catalog.Result, error)
	EstablishCompareAtPrices(ctx context.Context) (catalog.Result, error)
}

// LogReader 读取审计日志。
type LogReader interface {
	Recent(ctx context.Context, limit int) ([]model.AuctionLog, error)
}

// Setup 注册全部 HTTP 路由。rdb 为 nil 时管理接口不限流。
func Setup(r *gin.Engine, svc AuctionService, logs LogReader, rdb *rd.Client, cfg config.AppConfig) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 店面倒计时，公开只读
	public := r.Group("/api", middleware.CORS())
	public.GET("/auction-status", getStatus(svc))
	public.OPTIONS("/auction-status")

	admin := r.Group("/api",
		middleware.AdminToken(cfg.AdminToken),
		middleware.RedisRateLimit(rdb, cfg.AdminRateLimit, cfg.AdminRateWindow),
	)
	admin.GET("/auction-logs", listLogs(logs))
	admin.POST("/auctions", createAuction(svc))
	admin.POST("/auctions/stop", stopAuction(svc))
	admin.POST("/auctions/reset-prices", resetPrices(svc))
	admin.POST("/auctions/manual-discount", manualDiscount(svc))
	admin.POST("/auctions/compare-prices", comparePrices(svc))
}

func getStatus(svc AuctionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": svc.Status(c.Request.Context())})
	}
}

// listLogs 最近的审计日志，limit 默认 50。
func listLogs(logs LogReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 50
		if s := c.Query("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "limit 必须为正整数"})
				return
			}
			limit = n
		}
		list, err := logs.Recent(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

// createAuction 创建（并替换）拍卖。
func createAuction(svc AuctionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			IntervalMinutes          int      `json:"interval_minutes"`
			DiscountIncrementPercent float64  `json:"discount_increment_percent"`
			StartMode                string   `json:"start_mode"`
			ScheduledTime            string   `json:"scheduled_time"`
			Timezone                 string   `json:"timezone"`
			InitialDiscountPercent   *float64 `json:"initial_discount_percent"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		cfg, err := svc.Create(c.Request.Context(), auction.CreateRequest{
			IntervalMinutes:          req.IntervalMinutes,
			DiscountIncrementPercent: req.DiscountIncrementPercent,
			StartMode:                auction.StartMode(req.StartMode),
			ScheduledTime:            req.ScheduledTime,
			Timezone:                 req.Timezone,
			InitialDiscountPercent:   req.InitialDiscountPercent,
		})
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": cfg})
	}
}

func stopAuction(svc AuctionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.Stop(c.Request.Context()); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "拍卖已停止"})
	}
}

func resetPrices(svc AuctionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.ResetPrices(c.Request.Context())
		respondMutation(c, res, err)
	}
}

func manualDiscount(svc AuctionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Percent *float64 `json:"percent" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		res, err := svc.ApplyManualDiscount(c.Request.Context(), *req.Percent)
		respondMutation(c, res, err)
	}
}

func comparePrices(svc AuctionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.EstablishCompareAtPrices(c.Request.Context())
		respondMutation(c, res, err)
	}
}

func respondMutation(c *gin.Context, res catalog.Result, err error) {
	if err != nil {
		fail(c, err)
		return
	}
	failed := res.FailedIDs
	if failed == nil {
		failed = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": gin.H{
			"eligible":   res.Eligible,
			"updated":    res.Updated,
			"failed":     res.Failed(),
			"failed_ids": failed,
		},
	})
}

// fail 把引擎错误映射为 HTTP 状态码。
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case auction.IsValidation(err), errors.Is(err, auction.ErrNoEligibleProducts):
		status = http.StatusBadRequest
	case errors.Is(err, auction.ErrCatalogUnavailable):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"code": status, "msg": err.Error()})
}
