package model

import (
	"time"
)

// GlobalAuctionID 全局唯一拍卖配置的主键，系统同一时刻只允许一个拍卖。
const GlobalAuctionID = "global"

// AuctionConfig 降价拍卖配置（单例行）。
// 约束：IsActive 与 ScheduledStartTime 互斥；CurrentDiscountPercent ∈ [0,100]。
type AuctionConfig struct {
	ID        string    `gorm:"primarykey;size:32" json:"id"`
	// RunID 每次创建拍卖生成一次，区分同一锚点时间下先后两次拍卖的步进记录
	RunID     string    `gorm:"size:36;not null;default:''" json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	IntervalMinutes          int     `gorm:"not null" json:"interval_minutes"`
	DiscountIncrementPercent float64 `gorm:"not null" json:"discount_increment_percent"`
	CurrentDiscountPercent   float64 `gorm:"not null;default:0" json:"current_discount_percent"`
	// InitialDiscountPercent 为空表示按默认策略决定首步折扣
	InitialDiscountPercent *float64 `json:"initial_discount_percent,omitempty"`

	IsActive           bool       `gorm:"not null;default:false;index" json:"is_active"`
	ScheduledStartTime *time.Time `json:"scheduled_start_time,omitempty"`
	Timezone           string     `gorm:"size:64;not null" json:"timezone"`

	StartedAt    *time.Time `json:"started_at,omitempty"`
	LastUpdateAt *time.Time `json:"last_update_at,omitempty"`
	NextUpdateAt *time.Time `json:"next_update_at,omitempty"`
	// StepsFired 记录最近一次步进时的 intervalsPassed，用于锚点对齐
	StepsFired int64 `gorm:"not null;default:0" json:"steps_fired"`

	// 最近一次批量改价的结果统计
	LastStepEligible int `gorm:"not null;default:0" json:"last_step_eligible"`
	LastStepUpdated  int `gorm:"not null;default:0" json:"last_step_updated"`
	LastStepFailed   int `gorm:"not null;default:0" json:"last_step_failed"`
}

func (AuctionConfig) TableName() string { return "auction_configs" }

// Interval 步进间隔。
func (c *AuctionConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// IsScheduled 是否处于待开始状态。
func (c *AuctionConfig) IsScheduled() bool {
	return !c.IsActive && c.ScheduledStartTime != nil
}

// Clone 深拷贝，指针字段不与原对象共享。
func (c *AuctionConfig) Clone() *AuctionConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.InitialDiscountPercent = cloneFloat(c.InitialDiscountPercent)
	out.ScheduledStartTime = cloneTime(c.ScheduledStartTime)
	out.StartedAt = cloneTime(c.StartedAt)
	out.LastUpdateAt = cloneTime(c.LastUpdateAt)
	out.NextUpdateAt = cloneTime(c.NextUpdateAt)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
