// Package llm provides a client for a text-generation-inference compatible server.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"daily-hug-go/internal/config"

	"github.com/gorilla/websocket"
)

// ErrEmptyGeneration is returned by Generate when the server answers with no result
// or with an empty or missing generated_text.
var ErrEmptyGeneration = errors.New("empty generation")

// MessageWriter defines an interface for writing WebSocket messages.
// This allows both a standard websocket.Conn and an interceptor to be used.
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// Client defines the interface for the text-generation pipeline.
type Client interface {
	// Generate 发送完整 prompt，返回服务端的 generated_text。
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
	// GenerateStream 逐 token 写入 writer，结束后返回拼接好的生成文本（不含 prompt）。
	GenerateStream(ctx context.Context, prompt string, params GenerationParams, writer MessageWriter) (string, error)
	// Health 探测后端是否已加载模型并可以接收请求。
	Health(ctx context.Context) error
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams 控制生成行为，nil 字段不下发，由服务端使用默认值。
type GenerationParams struct {
	DoSample          bool     `json:"do_sample"`
	Temperature       *float64 `json:"temperature,omitempty"`
	TopK              *int     `json:"top_k,omitempty"`
	TopP              *float64 `json:"top_p,omitempty"`
	RepetitionPenalty *float64 `json:"repetition_penalty,omitempty"`
	MaxNewTokens      *int     `json:"max_new_tokens,omitempty"`
	ReturnFullText    bool     `json:"return_full_text"`
}

// ParamsFromConfig 将配置中的采样参数转换为请求参数。
func ParamsFromConfig(cfg config.GenerationConfig) GenerationParams {
	p := GenerationParams{DoSample: cfg.DoSample}
	if cfg.Temperature != 0 {
		t := cfg.Temperature
		p.Temperature = &t
	}
	if cfg.TopK != 0 {
		k := cfg.TopK
		p.TopK = &k
	}
	if cfg.TopP != 0 {
		tp := cfg.TopP
		p.TopP = &tp
	}
	if cfg.RepetitionPenalty != 0 {
		rp := cfg.RepetitionPenalty
		p.RepetitionPenalty = &rp
	}
	if cfg.MaxNewTokens != 0 {
		m := cfg.MaxNewTokens
		p.MaxNewTokens = &m
	}
	return p
}

// APIError is a non-200 answer from the generation server.
type APIError struct {
	StatusCode int
	Message    string
	Type       string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("generation api returned %d (%s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("generation api returned %d: %s", e.StatusCode, e.Message)
}

type tgiClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient creates a new client for the configured generation server.
func NewClient(cfg config.LLMConfig) Client {
	return &tgiClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type generateRequest struct {
	Inputs     string           `json:"inputs"`
	Parameters GenerationParams `json:"parameters"`
	Stream     bool             `json:"stream,omitempty"`
}

type generateResponse struct {
	GeneratedText string `json:"generated_text"`
}

type streamEvent struct {
	Token *struct {
		Text    string `json:"text"`
		Special bool   `json:"special"`
	} `json:"token"`
	GeneratedText *string `json:"generated_text"`
	Error         string  `json:"error"`
	ErrorType     string  `json:"error_type"`
}

type errorResponse struct {
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
}

func (c *tgiClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	resp, err := c.post(ctx, "/generate", generateRequest{Inputs: prompt, Parameters: params}, "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read generation response: %w", err)
	}

	// 服务端可能返回对象，也可能像 pipeline 一样返回数组，取第一个结果。
	var out generateResponse
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []generateResponse
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return "", fmt.Errorf("failed to decode generation response: %w", err)
		}
		if len(list) == 0 {
			return "", ErrEmptyGeneration
		}
		out = list[0]
	} else if err := json.Unmarshal(trimmed, &out); err != nil {
		return "", fmt.Errorf("failed to decode generation response: %w", err)
	}
	if out.GeneratedText == "" {
		return "", ErrEmptyGeneration
	}
	return out.GeneratedText, nil
}

func (c *tgiClient) GenerateStream(ctx context.Context, prompt string, params GenerationParams, writer MessageWriter) (string, error) {
	// 流式接口只返回新生成的 token
	params.ReturnFullText = false
	resp, err := c.post(ctx, "/generate_stream", generateRequest{Inputs: prompt, Parameters: params, Stream: true}, "text/event-stream")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var generated strings.Builder
	var final *string
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("failed to read from stream: %w", err)
		}

		if strings.HasPrefix(line, "data:") {
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				break
			}

			var ev streamEvent
			if jsonErr := json.Unmarshal([]byte(data), &ev); jsonErr != nil {
				continue
			}
			if ev.Error != "" {
				return "", &APIError{StatusCode: http.StatusOK, Message: ev.Error, Type: ev.ErrorType}
			}
			if ev.Token != nil && !ev.Token.Special {
				generated.WriteString(ev.Token.Text)
				if werr := writer.WriteMessage(websocket.TextMessage, []byte(ev.Token.Text)); werr != nil {
					return "", fmt.Errorf("failed to write message to websocket: %w", werr)
				}
			}
			if ev.GeneratedText != nil {
				final = ev.GeneratedText
			}
		}

		if err == io.EOF {
			break
		}
	}

	if final != nil {
		return *final, nil
	}
	return generated.String(), nil
}

func (c *tgiClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}
	c.authorize(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call health endpoint: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}
	return nil
}

func (c *tgiClient) post(ctx context.Context, path string, body generateRequest, accept string) (*http.Response, error) {
	reqBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call generation api: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(bodyBytes))}
		var er errorResponse
		if json.Unmarshal(bodyBytes, &er) == nil && er.Error != "" {
			apiErr.Message = er.Error
			apiErr.Type = er.ErrorType
		}
		return nil, apiErr
	}
	return resp, nil
}

func (c *tgiClient) authorize(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}
