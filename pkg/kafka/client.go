// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"daily-hug-go/internal/config"
	"daily-hug-go/pkg/log"
	"daily-hug-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

// 同一条归档任务最多处理的次数，超过后提交 offset 放弃。
const maxAttempts = 3

// 两次重试之间的基础等待时间，第 n 次失败后等待 n 倍。
const retryBackoff = 500 * time.Millisecond

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.ChatExchangeEvent) error
}

// AttemptCounter 记录任务失败次数。
type AttemptCounter interface {
	IncrAttempts(ctx context.Context, key string) (int64, error)
	ResetAttempts(ctx context.Context, key string) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Producer 将归档任务写入 Kafka。
type Producer struct {
	writer messageWriter
}

// NewProducer 初始化 Kafka 生产者。同一用户的消息使用相同的 key，保证分区内有序。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers(cfg)...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// Publish 发送一个归档任务到 Kafka。
func (p *Producer) Publish(ctx context.Context, task tasks.ChatExchangeEvent) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.UserName),
		Value: taskBytes,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer 消费归档任务并交给 TaskProcessor 处理。
type Consumer struct {
	reader    messageReader
	processor TaskProcessor
	attempts  AttemptCounter
	backoff   time.Duration
}

// NewConsumer 创建一个消费者组成员。
func NewConsumer(cfg config.KafkaConfig, processor TaskProcessor, attempts AttemptCounter) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: r, processor: processor, attempts: attempts, backoff: retryBackoff}
}

// Run 循环拉取消息，直到 ctx 被取消。
func (c *Consumer) Run(ctx context.Context) {
	log.Info("Kafka 消费者已启动")
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			log.Error("从 Kafka 读取消息失败", err)
			break
		}
		c.handle(ctx, m)
	}

	if err := c.reader.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
	log.Info("Kafka 消费者已退出")
}

// handle 处理单条消息。成功或格式错误时提交 offset；失败时计数并重试，达到上限后提交 offset 放弃。
func (c *Consumer) handle(ctx context.Context, m kafka.Message) {
	var task tasks.ChatExchangeEvent
	if err := json.Unmarshal(m.Value, &task); err != nil {
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		c.commit(ctx, m)
		return
	}

	for {
		err := c.processor.Process(ctx, task)
		if err == nil {
			_ = c.attempts.ResetAttempts(ctx, task.Key())
			c.commit(ctx, m)
			return
		}
		log.Errorf("归档任务处理失败: user=%s, offset=%d, error=%v", task.UserName, m.Offset, err)

		n, incErr := c.attempts.IncrAttempts(ctx, task.Key())
		if incErr != nil {
			// Redis 异常时不提交 offset，重启或再均衡后由 Kafka 重投
			log.Error("记录归档失败次数失败", incErr)
			return
		}
		if n >= maxAttempts {
			log.Errorf("归档任务多次失败(>=%d)，提交 offset 终止重试: user=%s", maxAttempts, task.UserName)
			c.commit(ctx, m)
			return
		}
		if !c.wait(ctx, time.Duration(n)*c.backoff) {
			return
		}
	}
}

// wait 在两次重试之间等待，ctx 被取消时返回 false。
func (c *Consumer) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		log.Error(fmt.Sprintf("提交 Kafka 消息 offset 失败: offset=%d", m.Offset), err)
	}
}
