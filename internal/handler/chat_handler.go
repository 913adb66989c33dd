// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"daily-hug-go/internal/model"
	"daily-hug-go/internal/service"
	"daily-hug-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ChatHandler 负责 /chat、/greet 以及几个简单的问候接口。
type ChatHandler struct {
	chatService     service.ChatService
	greetingService service.GreetingService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, greetingService service.GreetingService) *ChatHandler {
	return &ChatHandler{
		chatService:     chatService,
		greetingService: greetingService,
	}
}

// Root 处理 GET /。
func (h *ChatHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Hello World"})
}

// Hello 处理 GET /hello/:name，原样回显路径参数。
func (h *ChatHandler) Hello(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Hello " + c.Param("name")})
}

// Health 处理 GET /healthz。
func (h *ChatHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Chat 处理 POST /chat。
func (h *ChatHandler) Chat(c *gin.Context) {
	var payload model.ChatPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		log.Warnf("Chat: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "invalid request payload",
		})
		return
	}
	req := payload.Request()

	result, err := h.chatService.Chat(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidHistory) {
			log.Warnf("Chat: rejected history for user '%s', error: %v", req.UserName, err)
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    http.StatusBadRequest,
				"message": err.Error(),
			})
			return
		}
		log.Errorf("Chat: generation failed for user '%s', error: %v", req.UserName, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "text generation failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"response": result})
}

// Greet 处理 POST /greet。
func (h *ChatHandler) Greet(c *gin.Context) {
	var payload model.GreetPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		log.Warnf("Greet: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "invalid request payload",
		})
		return
	}

	req := payload.Request()
	c.JSON(http.StatusOK, gin.H{"response": h.greetingService.Greet(req.UserName, req.ModelName)})
}
