package handler

import (
	"net/http"
	"strconv"

	"daily-hug-go/internal/service"
	"daily-hug-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 处理归档对话的查询请求。
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// GetTranscript 处理 GET /conversations/:user_name?model_name=。
func (h *ConversationHandler) GetTranscript(c *gin.Context) {
	userName := c.Param("user_name")
	modelName := c.Query("model_name")

	entries, err := h.service.GetTranscript(c.Request.Context(), userName, modelName)
	if err != nil {
		log.Errorf("GetTranscript: failed for user '%s', error: %v", userName, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "Failed to retrieve conversation history",
			"data":    nil,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    entries,
	})
}

// ListExchanges 处理 GET /conversations/:user_name/exchanges?limit=。
func (h *ConversationHandler) ListExchanges(c *gin.Context) {
	userName := c.Param("user_name")
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    http.StatusBadRequest,
				"message": "limit must be an integer",
				"data":    nil,
			})
			return
		}
		limit = n
	}

	views, err := h.service.ListExchanges(c.Request.Context(), userName, limit)
	if err != nil {
		log.Errorf("ListExchanges: failed for user '%s', error: %v", userName, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "Failed to retrieve exchanges",
			"data":    nil,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    views,
	})
}
