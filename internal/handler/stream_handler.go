package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"daily-hug-go/internal/model"
	"daily-hug-go/internal/service"
	"daily-hug-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源，与 CORS 策略一致
	},
}

// StreamHandler 通过 WebSocket 流式返回生成结果。
type StreamHandler struct {
	chatService service.ChatService
}

// NewStreamHandler 创建一个新的 StreamHandler。
func NewStreamHandler(chatService service.ChatService) *StreamHandler {
	return &StreamHandler{chatService: chatService}
}

// completionFrame 在每轮生成结束后发送，携带完整结果。
type completionFrame struct {
	Type      string          `json:"type"`
	Status    string          `json:"status"`
	Response  string          `json:"response"`
	History   []model.Message `json:"history"`
	Timestamp int64           `json:"timestamp"`
}

// Handle 处理一个 WebSocket 连接：每条文本消息是一个 ChatRequest。
func (h *StreamHandler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立: %s", c.ClientIP())

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			break
		}

		var payload model.ChatPayload
		if err := json.Unmarshal(message, &payload); err != nil {
			writeJSON(conn, gin.H{"error": "invalid request payload"})
			continue
		}
		if err := binding.Validator.ValidateStruct(&payload); err != nil {
			writeJSON(conn, gin.H{"error": "invalid request payload"})
			continue
		}
		req := payload.Request()

		result, err := h.chatService.StreamChat(c.Request.Context(), req, &chunkWriter{conn: conn})
		if err != nil {
			if errors.Is(err, service.ErrInvalidHistory) {
				log.Warnf("拒绝无效的 history: user=%s, error: %v", req.UserName, err)
				writeJSON(conn, gin.H{"error": err.Error()})
			} else {
				log.Errorf("处理流式响应失败: %v", err)
				writeJSON(conn, gin.H{"error": "text generation failed"})
			}
			writeJSON(conn, completionFrame{Type: "completion", Status: "failed", History: req.History, Timestamp: time.Now().UnixMilli()})
			continue
		}

		writeJSON(conn, completionFrame{
			Type:      "completion",
			Status:    "finished",
			Response:  result.Response,
			History:   result.History,
			Timestamp: time.Now().UnixMilli(),
		})
	}
}

// chunkWriter 将原始分块包装成 {"chunk":"..."}。
type chunkWriter struct {
	conn *websocket.Conn
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *chunkWriter) WriteMessage(messageType int, data []byte) error {
	b, err := json.Marshal(gin.H{"chunk": string(data)})
	if err != nil {
		return err
	}
	return w.conn.WriteMessage(messageType, b)
}

func writeJSON(conn *websocket.Conn, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error("序列化 WebSocket 消息失败", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Warnf("写入 WebSocket 消息失败: %v", err)
	}
}
