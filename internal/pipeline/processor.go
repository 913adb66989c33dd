// Package pipeline 定义了对话归档的处理流程。
package pipeline

import (
	"context"
	"fmt"

	"daily-hug-go/internal/model"
	"daily-hug-go/internal/repository"
	"daily-hug-go/pkg/log"
	"daily-hug-go/pkg/tasks"
)

// Processor 将一次问答写入数据库并追加到 Redis 对话记录。
type Processor struct {
	exchangeRepo     repository.ExchangeRepository
	conversationRepo repository.ConversationRepository
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(exchangeRepo repository.ExchangeRepository, conversationRepo repository.ConversationRepository) *Processor {
	return &Processor{
		exchangeRepo:     exchangeRepo,
		conversationRepo: conversationRepo,
	}
}

// Process 是归档的主函数。
func (p *Processor) Process(ctx context.Context, task tasks.ChatExchangeEvent) error {
	log.Debugw("[Processor] 开始归档", "user", task.UserName, "model", task.ModelName)

	// 1. 写入问答记录
	exchange := &model.ChatExchange{
		UserName:  task.UserName,
		ModelName: task.ModelName,
		Message:   task.Message,
		Response:  task.Response,
		CreatedAt: task.CreatedAt,
	}
	if err := p.exchangeRepo.Create(ctx, exchange); err != nil {
		return fmt.Errorf("failed to save chat exchange: %w", err)
	}

	// 2. 追加对话记录
	var entries []model.TranscriptEntry
	if task.Message != "" {
		entries = append(entries, model.TranscriptEntry{Role: model.RoleUser, Content: task.Message, Timestamp: task.CreatedAt})
	}
	entries = append(entries, model.TranscriptEntry{Role: model.RoleModel, Content: task.Response, Timestamp: task.CreatedAt})
	if err := p.conversationRepo.AppendTranscript(ctx, task.UserName, task.ModelName, entries...); err != nil {
		return fmt.Errorf("failed to append transcript: %w", err)
	}

	log.Infof("[Processor] 归档完成, user: %s, exchangeID: %d", task.UserName, exchange.ID)
	return nil
}

// Publish 让 Processor 在未配置 Kafka 时直接充当同步发布者。
func (p *Processor) Publish(ctx context.Context, task tasks.ChatExchangeEvent) error {
	return p.Process(ctx, task)
}
