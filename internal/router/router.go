// Package router 组装 Gin 引擎与全部路由。
package router

import (
	"daily-hug-go/internal/config"
	"daily-hug-go/internal/handler"
	"daily-hug-go/internal/middleware"

	"github.com/gin-gonic/gin"
)

// Handlers 汇总需要注册的处理器。Conversation 为 nil 时不注册归档查询接口。
type Handlers struct {
	Chat         *handler.ChatHandler
	Stream       *handler.StreamHandler
	Conversation *handler.ConversationHandler
}

// New 创建路由引擎。
func New(cfg config.Config, h Handlers) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 不使用默认中间件
	r.Use(
		middleware.CORS(cfg.CORS),
		middleware.BodyLimit(cfg.Server.MaxBodyBytes),
		middleware.RequestLogger(),
		gin.Recovery(),
	)

	r.GET("/", h.Chat.Root)
	r.GET("/hello/:name", h.Chat.Hello)
	r.GET("/healthz", h.Chat.Health)
	r.POST("/chat", h.Chat.Chat)
	r.POST("/greet", h.Chat.Greet)

	if h.Stream != nil {
		r.GET("/chat/ws", h.Stream.Handle)
	}

	if h.Conversation != nil {
		conversations := r.Group("/conversations")
		{
			conversations.GET("/:user_name", h.Conversation.GetTranscript)
			conversations.GET("/:user_name/exchanges", h.Conversation.ListExchanges)
		}
	}

	return r
}
