package service

import (
	"context"

	"daily-hug-go/internal/model"
	"daily-hug-go/internal/repository"
)

// 查询归档问答时的默认与最大条数。
const (
	DefaultExchangeLimit = 20
	MaxExchangeLimit     = 200
)

// ConversationService 定义了归档对话的查询接口。
type ConversationService interface {
	GetTranscript(ctx context.Context, userName, modelName string) ([]model.TranscriptEntry, error)
	ListExchanges(ctx context.Context, userName string, limit int) ([]model.ExchangeView, error)
}

type conversationService struct {
	conversationRepo repository.ConversationRepository
	exchangeRepo     repository.ExchangeRepository
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(conversationRepo repository.ConversationRepository, exchangeRepo repository.ExchangeRepository) ConversationService {
	return &conversationService{conversationRepo: conversationRepo, exchangeRepo: exchangeRepo}
}

// GetTranscript 获取某个用户与某个模型最近的对话记录。
func (s *conversationService) GetTranscript(ctx context.Context, userName, modelName string) ([]model.TranscriptEntry, error) {
	return s.conversationRepo.GetTranscript(ctx, userName, modelName)
}

// ListExchanges 返回最近的问答，limit 超出范围时使用默认值或上限。
func (s *conversationService) ListExchanges(ctx context.Context, userName string, limit int) ([]model.ExchangeView, error) {
	if limit <= 0 {
		limit = DefaultExchangeLimit
	}
	if limit > MaxExchangeLimit {
		limit = MaxExchangeLimit
	}
	rows, err := s.exchangeRepo.ListByUser(ctx, userName, limit)
	if err != nil {
		return nil, err
	}
	views := make([]model.ExchangeView, 0, len(rows))
	for _, r := range rows {
		views = append(views, model.NewExchangeView(r))
	}
	return views, nil
}
