package auction

import (
	"context"
	"time"

	"reverse_auction/internal/catalog"
	"reverse_auction/internal/model"

	"github.com/shopspring/decimal"
)

// ConfigStore persists the single auction record.
type ConfigStore interface {
	Save(ctx context.Context, cfg *model.AuctionConfig) error
	Load(ctx context.Context) (*model.AuctionConfig, error)
	Clear(ctx context.Context) error
}

// CatalogClient is the subset of catalog.Client the engine drives.
type CatalogClient interface {
	FetchCatalog(ctx context.Context) ([]catalog.Product, error)
	ApplyDiscount(ctx context.Context, products []catalog.Product, percent decimal.Decimal) catalog.Result
	ResetPrices(ctx context.Context, products []catalog.Product) catalog.Result
	EstablishCompareAtPrices(ctx context.Context, products []catalog.Product) catalog.Result
}

// StepLedger 记录某次拍卖（runID）的第 step 步是否已触发以及当时的折扣。
// 进程在改价后、落库前崩溃时，重启后的同一步复用已记录折扣，不会叠加。
type StepLedger interface {
	ClaimStep(ctx context.Context, runID string, step int64, discount float64) (recorded float64, claimed bool, err error)
}

// Event is an auction lifecycle record for the audit log.
type Event struct {
	ID              string              `json:"event_id"`
	AuctionID       string              `json:"auction_id"`
	Action          model.AuctionAction `json:"action"`
	DiscountPercent float64             `json:"discount_percent"`
	UpdatedVariants int                 `json:"updated_variants"`
	FailedVariants  int                 `json:"failed_variants"`
	Details         string              `json:"details,omitempty"`
	OccurredAt      time.Time           `json:"occurred_at"`
}

// Publisher receives lifecycle events. Failures never fail a transition.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// ToLog converts an event into its audit row.
func (ev Event) ToLog() *model.AuctionLog {
	return &model.AuctionLog{
		EventID:         ev.ID,
		AuctionID:       ev.AuctionID,
		Action:          ev.Action,
		DiscountPercent: ev.DiscountPercent,
		UpdatedVariants: ev.UpdatedVariants,
		FailedVariants:  ev.FailedVariants,
		Details:         ev.Details,
		OccurredAt:      ev.OccurredAt,
	}
}
