package store

import (
	"context"

	"reverse_auction/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxRecentLogs = 500

// LogStore 读写 auction_logs 审计表。
type LogStore struct {
	db *gorm.DB
}

func NewLogStore(db *gorm.DB) *LogStore {
	return &LogStore{db: db}
}

// Append 写入一条日志；event_id 冲突视为已写入（重复消息幂等）。
func (s *LogStore) Append(ctx context.Context, entry *model.AuctionLog) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(entry).Error
}

// Recent 按发生时间倒序返回最近 limit 条。
func (s *LogStore) Recent(ctx context.Context, limit int) ([]model.AuctionLog, error) {
	if limit <= 0 || limit > maxRecentLogs {
		limit = maxRecentLogs
	}
	var list []model.AuctionLog
	err := s.db.WithContext(ctx).
		Order("occurred_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&list).Error
	return list, err
}
