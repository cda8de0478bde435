package store

import (
	"context"
	"errors"

	"reverse_auction/internal/model"

	"gorm.io/gorm"
)

// Store 持久化全局拍卖配置。
// 写失败不回滚店面价格：引擎把状态记为未落库，由下一次 tick 补写。
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Save 按主键 upsert 整行。
func (s *Store) Save(ctx context.Context, cfg *model.AuctionConfig) error {
	if cfg.ID == "" {
		cfg.ID = model.GlobalAuctionID
	}
	return s.db.WithContext(ctx).Save(cfg).Error
}

// Load 读取全局配置；不存在时返回 (nil, nil)。
func (s *Store) Load(ctx context.Context) (*model.AuctionConfig, error) {
	var cfg model.AuctionConfig
	err := s.db.WithContext(ctx).Where("id = ?", model.GlobalAuctionID).First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

// Clear 删除全局配置，幂等。
func (s *Store) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).Where("id = ?", model.GlobalAuctionID).Delete(&model.AuctionConfig{}).Error
}
