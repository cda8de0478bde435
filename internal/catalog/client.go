package catalog

import (
	"context"
	"sort"
	"time"

	"reverse_auction/internal/metrics"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// API is the outbound boundary to the product catalog.
type API interface {
	ProductsPage(ctx context.Context, first int, cursor string) (Page, error)
	// BulkUpdateVariants writes a batch; any rejected item fails the whole call.
	BulkUpdateVariants(ctx context.Context, updates []PriceUpdate) error
	UpdateVariant(ctx context.Context, update PriceUpdate) error
}

// Options 控制分页、分块与并发，保持在目录 API 的限流额度内。
type Options struct {
	PageSize    int
	PageDelay   time.Duration
	BatchSize   int
	Concurrency int
	ChunkDelay  time.Duration
	Backoff     Backoff
}

func (o *Options) setDefaults() {
	if o.PageSize <= 0 {
		o.PageSize = 50
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.Concurrency < 2 {
		o.Concurrency = 2
	}
	if o.Concurrency > 8 {
		o.Concurrency = 8
	}
	if o.Backoff.Attempts == 0 {
		sleep := o.Backoff.Sleep
		o.Backoff = DefaultBackoff
		o.Backoff.Sleep = sleep
	}
	if o.Backoff.Sleep == nil {
		o.Backoff.Sleep = sleepCtx
	}
}

// Result summarises one bulk price operation. Counts are variants.
type Result struct {
	Eligible  int
	Updated   int
	FailedIDs []string
	// Applied holds the writes that succeeded, for cache write-back.
	Applied []PriceUpdate
}

// Failed is the number of variants that could not be written.
func (r Result) Failed() int { return len(r.FailedIDs) }

// Client reads and rewrites catalog prices on top of an API adapter.
type Client struct {
	api    API
	opts   Options
	logger zerolog.Logger
}

func NewClient(api API, opts Options, logger zerolog.Logger) *Client {
	opts.setDefaults()
	return &Client{api: api, opts: opts, logger: logger}
}

// FetchCatalog 分页拉取全部商品。首页失败返回错误；后续页失败返回已拉取部分并记录降级日志。
func (c *Client) FetchCatalog(ctx context.Context) ([]Product, error) {
	var (
		out    []Product
		cursor string
		pages  int
	)
	for {
		var page Page
		err := c.opts.Backoff.Do(ctx, "products_page", func(ctx context.Context) error {
			var err error
			page, err = c.api.ProductsPage(ctx, c.opts.PageSize, cursor)
			return err
		})
		if err != nil {
			if pages == 0 {
				return nil, errors.Wrap(err, "fetch catalog first page")
			}
			c.logger.Warn().Err(err).
				Int("pages", pages).
				Int("products", len(out)).
				Msg("catalog fetch degraded, continuing with partial catalog")
			return out, nil
		}
		pages++

		for _, raw := range page.Products {
			p, err := Normalize(raw)
			if err != nil {
				c.logger.Warn().Err(err).Str("product_id", raw.ID).Msg("skipping malformed product")
				continue
			}
			out = append(out, p)
		}

		if !page.HasNextPage || page.EndCursor == "" {
			break
		}
		cursor = page.EndCursor
		if err := c.opts.Backoff.Sleep(ctx, c.opts.PageDelay); err != nil {
			return out, err
		}
	}
	c.logger.Info().Int("pages", pages).Int("products", len(out)).Msg("catalog fetched")
	return out, nil
}

// ApplyDiscount 对所有符合条件商品的全部变体按原价计算折扣价，并回写 compareAtPrice=原价。
func (c *Client) ApplyDiscount(ctx context.Context, products []Product, percent decimal.Decimal) Result {
	var updates []PriceUpdate
	for _, p := range EligibleProducts(products) {
		for _, v := range p.Variants {
			updates = append(updates, PriceUpdate{
				ProductID:      p.ID,
				VariantID:      v.ID,
				Price:          DiscountedPrice(v.OriginalPrice, percent),
				CompareAtPrice: v.OriginalPrice,
			})
		}
	}
	res := c.mutate(ctx, updates)
	c.logger.Info().
		Str("percent", percent.String()).
		Int("eligible", res.Eligible).
		Int("updated", res.Updated).
		Int("failed", res.Failed()).
		Msg("discount applied")
	return res
}

// ResetPrices 将非草稿商品的变体恢复为原价；已是原价的跳过。
func (c *Client) ResetPrices(ctx context.Context, products []Product) Result {
	var updates []PriceUpdate
	for _, p := range products {
		if p.Status == StatusDraft {
			continue
		}
		for _, v := range p.Variants {
			if v.Price.Equal(v.OriginalPrice) {
				continue
			}
			updates = append(updates, PriceUpdate{
				ProductID:      p.ID,
				VariantID:      v.ID,
				Price:          v.OriginalPrice,
				CompareAtPrice: v.OriginalPrice,
			})
		}
	}
	res := c.mutate(ctx, updates)
	c.logger.Info().Int("reset", res.Updated).Int("failed", res.Failed()).Msg("prices reset")
	return res
}

// EstablishCompareAtPrices 为尚无 compareAtPrice 的变体写入 compareAtPrice=当前价。
func (c *Client) EstablishCompareAtPrices(ctx context.Context, products []Product) Result {
	var updates []PriceUpdate
	for _, p := range products {
		if p.Status == StatusDraft {
			continue
		}
		for _, v := range p.Variants {
			if v.CompareAtPrice.IsPositive() {
				continue
			}
			updates = append(updates, PriceUpdate{
				ProductID:      p.ID,
				VariantID:      v.ID,
				Price:          v.Price,
				CompareAtPrice: v.Price,
			})
		}
	}
	res := c.mutate(ctx, updates)
	c.logger.Info().Int("established", res.Updated).Int("failed", res.Failed()).Msg("compare-at prices established")
	return res
}

type chunkResult struct {
	applied []PriceUpdate
	failed  []string
}

// mutate 是唯一的批量写入原语：
// 1. 按 BatchSize 分块，块之间间隔 ChunkDelay 启动，最多 Concurrency 个并发
// 2. 每块先走批量接口（可重试错误指数退避）
// 3. 仍失败的块逐条回退写入，失败的变体记入 FailedIDs
// 所有块完成后才返回。
func (c *Client) mutate(ctx context.Context, updates []PriceUpdate) Result {
	res := Result{Eligible: len(updates)}
	if len(updates) == 0 {
		return res
	}

	chunks := chunk(updates, c.opts.BatchSize)
	results := make([]chunkResult, len(chunks))

	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	for i, ch := range chunks {
		i, ch := i, ch
		if i > 0 {
			if err := c.opts.Backoff.Sleep(ctx, c.opts.ChunkDelay); err != nil {
				// 上下文已取消：剩余块全部记为失败
				for _, rest := range chunks[i:] {
					for _, u := range rest {
						results[i].failed = append(results[i].failed, u.VariantID)
					}
				}
				break
			}
		}
		g.Go(func() error {
			results[i] = c.runChunk(ctx, i, ch)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		res.Applied = append(res.Applied, r.applied...)
		res.FailedIDs = append(res.FailedIDs, r.failed...)
	}
	sort.Strings(res.FailedIDs)
	res.Updated = len(res.Applied)

	metrics.VariantUpdates.WithLabelValues("ok").Add(float64(res.Updated))
	metrics.VariantUpdates.WithLabelValues("failed").Add(float64(len(res.FailedIDs)))
	return res
}

func (c *Client) runChunk(ctx context.Context, idx int, ch []PriceUpdate) chunkResult {
	err := c.opts.Backoff.Do(ctx, "bulk_update", func(ctx context.Context) error {
		return c.api.BulkUpdateVariants(ctx, ch)
	})
	if err == nil {
		return chunkResult{applied: ch}
	}

	c.logger.Warn().Err(err).Int("chunk", idx).Int("size", len(ch)).Msg("bulk update failed, falling back to per-variant writes")

	var out chunkResult
	for _, u := range ch {
		u := u
		err := c.opts.Backoff.Do(ctx, "variant_update", func(ctx context.Context) error {
			return c.api.UpdateVariant(ctx, u)
		})
		if err != nil {
			c.logger.Error().Err(err).Str("variant_id", u.VariantID).Msg("variant update failed")
			out.failed = append(out.failed, u.VariantID)
			continue
		}
		out.applied = append(out.applied, u)
	}
	return out
}

func chunk(updates []PriceUpdate, size int) [][]PriceUpdate {
	out := make([][]PriceUpdate, 0, (len(updates)+size-1)/size)
	for start := 0; start < len(updates); start += size {
		end := start + size
		if end > len(updates) {
			end = len(updates)
		}
		out = append(out, updates[start:end])
	}
	return out
}
