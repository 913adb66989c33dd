// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"daily-hug-go/internal/config"
	"daily-hug-go/internal/model"
	"daily-hug-go/internal/prompt"
	"daily-hug-go/pkg/llm"
	"daily-hug-go/pkg/log"
	"daily-hug-go/pkg/tasks"

	"golang.org/x/sync/semaphore"
)

// ErrInvalidHistory 表示客户端提交的 history 无法渲染成模型输入。
var ErrInvalidHistory = errors.New("invalid history")

// 归档发布使用独立的超时，不受请求取消影响。
const publishTimeout = 5 * time.Second

// Publisher 接收每次成功生成后的归档任务。
type Publisher interface {
	Publish(ctx context.Context, task tasks.ChatExchangeEvent) error
}

// ChatService 定义了聊天操作的接口。
type ChatService interface {
	Chat(ctx context.Context, req model.ChatRequest) (*model.ChatResult, error)
	StreamChat(ctx context.Context, req model.ChatRequest, writer llm.MessageWriter) (*model.ChatResult, error)
}

type chatService struct {
	llmClient    llm.Client
	params       llm.GenerationParams
	slots        *semaphore.Weighted
	timeout      time.Duration
	historyLimit int
	publisher    Publisher
	now          func() time.Time
}

// NewChatService 创建一个新的 ChatService 实例。
// 对后端的并发调用数由 genCfg.MaxConcurrency 限制；publisher 为 nil 时不归档。
func NewChatService(llmClient llm.Client, genCfg config.GenerationConfig, chatCfg config.ChatConfig, publisher Publisher) ChatService {
	params := llm.ParamsFromConfig(genCfg)
	params.ReturnFullText = true
	return &chatService{
		llmClient:    llmClient,
		params:       params,
		slots:        semaphore.NewWeighted(genCfg.MaxConcurrency),
		timeout:      genCfg.Timeout,
		historyLimit: chatCfg.HistoryLimit,
		publisher:    publisher,
		now:          time.Now,
	}
}

// Chat 构建提示词并调用生成后端，返回新生成的文本和截断后的 history。
func (s *chatService) Chat(ctx context.Context, req model.ChatRequest) (*model.ChatResult, error) {
	rendered, err := s.renderPrompt(req)
	if err != nil {
		return nil, err
	}

	var generated string
	err = s.withSlot(ctx, func(ctx context.Context) error {
		var genErr error
		generated, genErr = s.llmClient.Generate(ctx, rendered, s.params)
		return genErr
	})
	if err != nil {
		return nil, fmt.Errorf("text generation failed: %w", err)
	}

	response := extractResponse(rendered, generated)
	log.Infow("chat response generated", "user", req.UserName, "response", response)
	return s.finish(req, response), nil
}

// StreamChat 与 Chat 相同，但在生成过程中把分块写入 writer。
func (s *chatService) StreamChat(ctx context.Context, req model.ChatRequest, writer llm.MessageWriter) (*model.ChatResult, error) {
	rendered, err := s.renderPrompt(req)
	if err != nil {
		return nil, err
	}

	var response string
	err = s.withSlot(ctx, func(ctx context.Context) error {
		var genErr error
		response, genErr = s.llmClient.GenerateStream(ctx, rendered, s.params, writer)
		return genErr
	})
	if err != nil {
		return nil, fmt.Errorf("text generation failed: %w", err)
	}

	log.Infow("chat stream finished", "user", req.UserName, "response", response)
	return s.finish(req, response), nil
}

func (s *chatService) renderPrompt(req model.ChatRequest) (string, error) {
	log.Infow("chat request received",
		"user", req.UserName,
		"model", req.ModelName,
		"message", req.Message,
		"historyLen", len(req.History),
	)

	messages := composeMessages(req)
	llmMsgs := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		llmMsgs = append(llmMsgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	rendered, err := llm.RenderGemma(llmMsgs, true)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidHistory, err)
	}
	log.Debugw("rendered prompt", "prompt", rendered)
	return rendered, nil
}

// withSlot 在超时时间内获取生成槽位后执行 fn。
func (s *chatService) withSlot(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for generation slot: %w", err)
	}
	defer s.slots.Release(1)
	return fn(ctx)
}

// finish 追加新生成的记录、截断 history 并发布归档任务。
func (s *chatService) finish(req model.ChatRequest, response string) *model.ChatResult {
	history := appendHistory(req.History, model.Message{Role: model.RoleModel, Content: strings.TrimSpace(response)}, s.historyLimit)
	s.publish(req, response)
	return &model.ChatResult{Response: response, History: history}
}

func (s *chatService) publish(req model.ChatRequest, response string) {
	if s.publisher == nil {
		return
	}
	// 使用后台上下文，即使原始请求被取消也要保存已生成的答案
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	err := s.publisher.Publish(ctx, tasks.ChatExchangeEvent{
		UserName:  req.UserName,
		ModelName: req.ModelName,
		Message:   req.Message,
		Response:  strings.TrimSpace(response),
		CreatedAt: s.now(),
	})
	if err != nil {
		// 只记录错误，不影响本次响应
		log.Errorf("Failed to publish chat exchange: %v", err)
	}
}

// composeMessages 拼接系统指令与客户端 history。客户端通常已把本轮消息放在 history 末尾；
// 若 history 末尾不是 user 消息，则把 message 作为新的 user 轮次补上。
func composeMessages(req model.ChatRequest) []model.Message {
	base := prompt.Base(req.UserName, req.ModelName, req.Characters)
	msgs := make([]model.Message, 0, len(base)+len(req.History)+1)
	msgs = append(msgs, base...)
	msgs = append(msgs, req.History...)
	if req.Message != "" && (len(req.History) == 0 || req.History[len(req.History)-1].Role != model.RoleUser) {
		msgs = append(msgs, model.Message{Role: model.RoleUser, Content: req.Message})
	}
	return msgs
}

// extractResponse 去掉后端回显的 prompt。后端未回显时返回完整文本。
func extractResponse(prompt, generated string) string {
	if strings.HasPrefix(generated, prompt) {
		return generated[len(prompt):]
	}
	return generated
}

// appendHistory 返回 history + record 的最后 limit 条，不修改入参。
func appendHistory(history []model.Message, record model.Message, limit int) []model.Message {
	all := make([]model.Message, 0, len(history)+1)
	all = append(all, history...)
	all = append(all, record)
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all
}
