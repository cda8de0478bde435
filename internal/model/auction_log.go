package model

import (
	"time"
)

// AuctionAction 拍卖审计日志的动作类型。
type AuctionAction string

const (
	ActionAuctionStarted   AuctionAction = "AUCTION_STARTED"
	ActionAuctionScheduled AuctionAction = "AUCTION_SCHEDULED"
	ActionPriceDrop        AuctionAction = "PRICE_DROP"
	ActionAuctionCompleted AuctionAction = "AUCTION_COMPLETED"
	ActionAuctionStopped   AuctionAction = "AUCTION_STOPPED"
	ActionPricesReset      AuctionAction = "PRICES_RESET"
	ActionManualDiscount   AuctionAction = "MANUAL_DISCOUNT"
	ActionComparePricesSet AuctionAction = "COMPARE_PRICES_SET"
)

// AuctionLog 拍卖审计日志。EventID 全局唯一，重复消费时依赖唯一索引保证幂等。
type AuctionLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	EventID         string        `gorm:"size:64;uniqueIndex;not null" json:"event_id"`
	AuctionID       string        `gorm:"size:32;not null;index" json:"auction_id"`
	Action          AuctionAction `gorm:"size:32;not null;index" json:"action"`
	DiscountPercent float64       `gorm:"not null;default:0" json:"discount_percent"`
	UpdatedVariants int           `gorm:"not null;default:0" json:"updated_variants"`
	FailedVariants  int           `gorm:"not null;default:0" json:"failed_variants"`
	Details         string        `gorm:"size:512" json:"details"`
	OccurredAt      time.Time     `gorm:"not null;index" json:"occurred_at"`
}

func (AuctionLog) TableName() string { return "auction_logs" }
