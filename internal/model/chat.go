// Package model 包含了应用的数据模型定义。
package model

// 对话角色。assistant 仅作为 model 的别名在渲染时接受。
const (
	RoleUser      = "user"
	RoleModel     = "model"
	RoleAssistant = "assistant"
)

// Message 是一条对话记录，既用于提示词，也用于客户端往返的 history。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatPayload 是 POST /chat 与 /chat/ws 的请求体。
// 所有字段必须出现且不能为 null；字符串允许为空，history 允许为空列表。
type ChatPayload struct {
	UserName   *string   `json:"user_name" binding:"required"`
	ModelName  *string   `json:"model_name" binding:"required"`
	Characters *string   `json:"characters" binding:"required"`
	Message    *string   `json:"message" binding:"required"`
	History    []Message `json:"history" binding:"required"`
}

// Request 转换为业务层使用的 ChatRequest，调用前需已通过校验。
func (p ChatPayload) Request() ChatRequest {
	return ChatRequest{
		UserName:   deref(p.UserName),
		ModelName:  deref(p.ModelName),
		Characters: deref(p.Characters),
		Message:    deref(p.Message),
		History:    p.History,
	}
}

// ChatRequest 是校验后的聊天请求。
type ChatRequest struct {
	UserName   string    `json:"user_name"`
	ModelName  string    `json:"model_name"`
	Characters string    `json:"characters"`
	Message    string    `json:"message"`
	History    []Message `json:"history"`
}

// GreetPayload 是 POST /greet 的请求体。
type GreetPayload struct {
	UserName  *string `json:"user_name" binding:"required"`
	ModelName *string `json:"model_name" binding:"required"`
}

// Request 转换为 GreetRequest，调用前需已通过校验。
func (p GreetPayload) Request() GreetRequest {
	return GreetRequest{UserName: deref(p.UserName), ModelName: deref(p.ModelName)}
}

// GreetRequest 是校验后的问候请求。
type GreetRequest struct {
	UserName  string `json:"user_name"`
	ModelName string `json:"model_name"`
}

// ChatResult 是一次生成的结果：新生成的文本以及截断后的 history。
type ChatResult struct {
	Response string    `json:"response"`
	History  []Message `json:"history"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
