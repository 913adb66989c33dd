package repository

import (
	"context"

	"daily-hug-go/internal/model"

	"gorm.io/gorm"
)

// ExchangeRepository 定义了归档问答的持久化操作。
type ExchangeRepository interface {
	Create(ctx context.Context, exchange *model.ChatExchange) error
	ListByUser(ctx context.Context, userName string, limit int) ([]model.ChatExchange, error)
}

type exchangeRepository struct {
	db *gorm.DB
}

// NewExchangeRepository 创建一个新的 ExchangeRepository 实例。
func NewExchangeRepository(db *gorm.DB) ExchangeRepository {
	return &exchangeRepository{db: db}
}

// AutoMigrate 创建或更新 chat_exchanges 表。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.ChatExchange{})
}

func (r *exchangeRepository) Create(ctx context.Context, exchange *model.ChatExchange) error {
	return r.db.WithContext(ctx).Create(exchange).Error
}

// ListByUser 按时间倒序返回某个用户最近的 limit 条问答。
func (r *exchangeRepository) ListByUser(ctx context.Context, userName string, limit int) ([]model.ChatExchange, error) {
	var exchanges []model.ChatExchange
	err := r.db.WithContext(ctx).
		Where("user_name = ?", userName).
		Order("id desc").
		Limit(limit).
		Find(&exchanges).Error
	return exchanges, err
}
