// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"daily-hug-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// ConversationRepository 定义了对话记录（transcript）的操作接口。
type ConversationRepository interface {
	AppendTranscript(ctx context.Context, userName, modelName string, entries ...model.TranscriptEntry) error
	GetTranscript(ctx context.Context, userName, modelName string) ([]model.TranscriptEntry, error)
	// IncrAttempts 与 ResetAttempts 用于统计归档任务的失败次数。
	IncrAttempts(ctx context.Context, key string) (int64, error)
	ResetAttempts(ctx context.Context, key string) error
}

type redisConversationRepository struct {
	redisClient *redis.Client
	limit       int64
	ttl         time.Duration
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例，只保留最近 limit 条记录。
func NewConversationRepository(redisClient *redis.Client, limit int, ttl time.Duration) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient, limit: int64(limit), ttl: ttl}
}

// 用户名与模型名来自客户端，转义后再拼 key，避免出现 ":" 或通配符。
func transcriptKey(userName, modelName string) string {
	return fmt.Sprintf("conversation:%s:%s", url.QueryEscape(userName), url.QueryEscape(modelName))
}

func attemptsKey(key string) string {
	return "archive:attempts:" + key
}

// AppendTranscript 追加记录并裁剪到最近 limit 条，同时刷新过期时间。
func (r *redisConversationRepository) AppendTranscript(ctx context.Context, userName, modelName string, entries ...model.TranscriptEntry) error {
	if len(entries) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal transcript entry: %w", err)
		}
		values = append(values, b)
	}

	key := transcriptKey(userName, modelName)
	_, err := r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		if r.limit > 0 {
			pipe.LTrim(ctx, key, -r.limit, -1)
		}
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append transcript: %w", err)
	}
	return nil
}

// GetTranscript 从 Redis 获取对话记录，不存在时返回空切片。
func (r *redisConversationRepository) GetTranscript(ctx context.Context, userName, modelName string) ([]model.TranscriptEntry, error) {
	raw, err := r.redisClient.LRange(ctx, transcriptKey(userName, modelName), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get transcript: %w", err)
	}
	entries := make([]model.TranscriptEntry, 0, len(raw))
	for _, item := range raw {
		var e model.TranscriptEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transcript entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *redisConversationRepository) IncrAttempts(ctx context.Context, key string) (int64, error) {
	k := attemptsKey(key)
	n, err := r.redisClient.Incr(ctx, k).Result()
	if err != nil {
		return 0, err
	}
	_ = r.redisClient.Expire(ctx, k, 24*time.Hour).Err()
	return n, nil
}

func (r *redisConversationRepository) ResetAttempts(ctx context.Context, key string) error {
	return r.redisClient.Del(ctx, attemptsKey(key)).Err()
}
