package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daily-hug-go/internal/config"
	"daily-hug-go/internal/handler"
	"daily-hug-go/internal/model"
	"daily-hug-go/internal/pipeline"
	"daily-hug-go/internal/repository"
	"daily-hug-go/internal/service"
	"daily-hug-go/pkg/database"
	"daily-hug-go/pkg/llm"
)

type stubLLM struct {
	reply string
	err   error
}

func (s *stubLLM) Generate(_ context.Context, prompt string, _ llm.GenerationParams) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return prompt + s.reply, nil
}

func (s *stubLLM) GenerateStream(_ context.Context, _ string, _ llm.GenerationParams, w llm.MessageWriter) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	for _, part := range strings.SplitAfter(s.reply, " ") {
		if err := w.WriteMessage(websocket.TextMessage, []byte(part)); err != nil {
			return "", err
		}
	}
	return s.reply, nil
}

func (s *stubLLM) Health(context.Context) error { return nil }

func testConfig() config.Config {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}
	cfg.Server.Mode = gin.TestMode
	cfg.Server.MaxBodyBytes = 64 << 10
	return cfg
}

func newEngine(t *testing.T, client llm.Client, publisher service.Publisher, conv service.ConversationService) *gin.Engine {
	t.Helper()
	cfg := testConfig()
	chat := service.NewChatService(client, cfg.Generation, cfg.Chat, publisher)
	h := Handlers{
		Chat:   handler.NewChatHandler(chat, service.NewGreetingService(nil)),
		Stream: handler.NewStreamHandler(chat),
	}
	if conv != nil {
		h.Conversation = handler.NewConversationHandler(conv)
	}
	return New(cfg, h)
}

func do(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

type chatEnvelope struct {
	Response model.ChatResult `json:"response"`
}

func chatBody(history []model.Message) map[string]interface{} {
	if history == nil {
		history = []model.Message{}
	}
	return map[string]interface{}{
		"user_name":  "민수",
		"model_name": "하루",
		"characters": "다정한, 유쾌한",
		"message":    "안녕?",
		"history":    history,
	}
}

func TestRoot(t *testing.T) {
	rr := do(newEngine(t, &stubLLM{}, nil, nil), http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"message":"Hello World"}`, rr.Body.String())
}

func TestHello(t *testing.T) {
	r := newEngine(t, &stubLLM{}, nil, nil)
	rr := do(r, http.MethodGet, "/hello/World", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"message":"Hello World"}`, rr.Body.String())

	rr = do(r, http.MethodGet, "/hello/"+url.PathEscape("민수"), nil)
	assert.JSONEq(t, `{"message":"Hello 민수"}`, rr.Body.String())
}

func TestHealthz(t *testing.T) {
	rr := do(newEngine(t, &stubLLM{}, nil, nil), http.MethodGet, "/healthz", nil)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestGreet(t *testing.T) {
	r := newEngine(t, &stubLLM{}, nil, nil)
	for i := 0; i < 20; i++ {
		rr := do(r, http.MethodPost, "/greet", map[string]string{"user_name": "민수", "model_name": "하루"})
		require.Equal(t, http.StatusOK, rr.Code)
		var body struct {
			Response string `json:"response"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Contains(t, service.Greetings("민수"), body.Response)
	}
}

func TestGreetInvalidPayload(t *testing.T) {
	r := newEngine(t, &stubLLM{}, nil, nil)
	for _, body := range []string{
		"{not json",
		`{}`,
		`{"user_name":"민수"}`,
		`{"user_name":null,"model_name":"하루"}`,
	} {
		rr := do(r, http.MethodPost, "/greet", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
	}
}

func TestGreetAcceptsEmptyStrings(t *testing.T) {
	rr := do(newEngine(t, &stubLLM{}, nil, nil), http.MethodPost, "/greet", `{"user_name":"","model_name":""}`)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestChatEmptyHistory(t *testing.T) {
	rr := do(newEngine(t, &stubLLM{reply: "반가워, 민수!"}, nil, nil), http.MethodPost, "/chat", chatBody(nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var env chatEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.Equal(t, "반가워, 민수!", env.Response.Response)
	assert.Equal(t, []model.Message{{Role: "model", Content: "반가워, 민수!"}}, env.Response.History)
}

func TestChatTruncatesHistory(t *testing.T) {
	history := make([]model.Message, 9)
	for i := range history {
		role := "model"
		if i%2 == 1 {
			role = "user"
		}
		history[i] = model.Message{Role: role, Content: fmt.Sprintf("m%d", i)}
	}
	rr := do(newEngine(t, &stubLLM{reply: "new"}, nil, nil), http.MethodPost, "/chat", chatBody(history))
	require.Equal(t, http.StatusOK, rr.Code)

	var env chatEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.Len(t, env.Response.History, 6)
	assert.Equal(t, history[4:], env.Response.History[:5])
	assert.Equal(t, model.Message{Role: "model", Content: "new"}, env.Response.History[5])
}

func TestChatRejectsMalformedBodies(t *testing.T) {
	r := newEngine(t, &stubLLM{reply: "x"}, nil, nil)
	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"history not a list", `{"user_name":"a","model_name":"b","characters":"c","message":"d","history":"oops"}`},
		{"bad role", `{"user_name":"a","model_name":"b","characters":"c","message":"d","history":[{"role":"system","content":"x"}]}`},
		{"empty object", `{}`},
		{"only message", `{"message":"hi"}`},
		{"missing history", `{"user_name":"a","model_name":"b","characters":"c","message":"d"}`},
		{"null history", `{"user_name":"a","model_name":"b","characters":"c","message":"d","history":null}`},
		{"null user name", `{"user_name":null,"model_name":"b","characters":"c","message":"d","history":[]}`},
		{"null message", `{"user_name":"a","model_name":"b","characters":"c","message":null,"history":[]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(r, http.MethodPost, "/chat", tc.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestChatAcceptsEmptyStrings(t *testing.T) {
	body := `{"user_name":"","model_name":"","characters":"","message":"","history":[]}`
	rr := do(newEngine(t, &stubLLM{reply: "x"}, nil, nil), http.MethodPost, "/chat", body)
	require.Equal(t, http.StatusOK, rr.Code)

	var env chatEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.Equal(t, []model.Message{{Role: "model", Content: "x"}}, env.Response.History)
}

func TestChatBackendFailure(t *testing.T) {
	rr := do(newEngine(t, &stubLLM{err: errors.New("boom")}, nil, nil), http.MethodPost, "/chat", chatBody(nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"code":500,"message":"text generation failed"}`, rr.Body.String())
}

func TestBodyLimit(t *testing.T) {
	big := strings.Repeat("가", 64<<10)
	body := chatBody([]model.Message{{Role: "user", Content: big}})
	rr := do(newEngine(t, &stubLLM{reply: "x"}, nil, nil), http.MethodPost, "/chat", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestRequestIDHeader(t *testing.T) {
	r := newEngine(t, &stubLLM{}, nil, nil)
	rr := do(r, http.MethodGet, "/", nil)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", rr.Header().Get("X-Request-ID"))
}

func TestCORSAllowsAnyOriginWithCredentials(t *testing.T) {
	r := newEngine(t, &stubLLM{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))

	pre := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	pre.Header.Set("Origin", "https://somewhere.example")
	pre.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, pre)
	assert.Less(t, rr.Code, 300)
	assert.Equal(t, "https://somewhere.example", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestCORSPreflightEchoesRequestedHeaders(t *testing.T) {
	r := newEngine(t, &stubLLM{}, nil, nil)

	pre := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	pre.Header.Set("Origin", "https://somewhere.example")
	pre.Header.Set("Access-Control-Request-Method", http.MethodPost)
	pre.Header.Set("Access-Control-Request-Headers", "content-type, x-custom-token")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, pre)

	assert.Less(t, rr.Code, 300)
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "content-type, x-custom-token", rr.Header().Get("Access-Control-Allow-Headers"))
	assert.NotContains(t, rr.Header().Get("Access-Control-Allow-Headers"), "*")
}

func TestConversationRoutesDisabledWithoutArchive(t *testing.T) {
	rr := do(newEngine(t, &stubLLM{}, nil, nil), http.MethodGet, "/conversations/u", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestChatWebSocket(t *testing.T) {
	srv := httptest.NewServer(newEngine(t, &stubLLM{reply: "반가워 민수!"}, nil, nil))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(chatBody(nil)))
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var chunks []string
	for {
		var frame map[string]interface{}
		require.NoError(t, conn.ReadJSON(&frame))
		if frame["type"] == "completion" {
			assert.Equal(t, "finished", frame["status"])
			assert.Equal(t, "반가워 민수!", frame["response"])
			history := frame["history"].([]interface{})
			require.Len(t, history, 1)
			break
		}
		chunks = append(chunks, frame["chunk"].(string))
	}
	assert.Equal(t, "반가워 민수!", strings.Join(chunks, ""))

	// malformed message keeps the connection open
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("nope")))
	var errFrame map[string]interface{}
	require.NoError(t, conn.ReadJSON(&errFrame))
	assert.Equal(t, "invalid request payload", errFrame["error"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"message":"hi"}`)))
	errFrame = nil
	require.NoError(t, conn.ReadJSON(&errFrame))
	assert.Equal(t, "invalid request payload", errFrame["error"])
}

func TestChatWebSocketReportsInvalidHistory(t *testing.T) {
	srv := httptest.NewServer(newEngine(t, &stubLLM{reply: "x"}, nil, nil))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(chatBody([]model.Message{{Role: "system", Content: "x"}})))
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var errFrame map[string]interface{}
	require.NoError(t, conn.ReadJSON(&errFrame))
	assert.Contains(t, errFrame["error"], service.ErrInvalidHistory.Error())
	assert.NotEqual(t, "text generation failed", errFrame["error"])

	var done map[string]interface{}
	require.NoError(t, conn.ReadJSON(&done))
	assert.Equal(t, "completion", done["type"])
	assert.Equal(t, "failed", done["status"])
}

func TestArchiveEndToEnd(t *testing.T) {
	db, err := database.NewSQL(config.SQLConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, repository.AutoMigrate(db))
	t.Cleanup(func() { _ = database.Close(db) })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	exchanges := repository.NewExchangeRepository(db)
	transcripts := repository.NewConversationRepository(rdb, 20, time.Hour)
	processor := pipeline.NewProcessor(exchanges, transcripts)
	r := newEngine(t, &stubLLM{reply: " 반가워! "}, processor, service.NewConversationService(transcripts, exchanges))

	rr := do(r, http.MethodPost, "/chat", chatBody([]model.Message{{Role: "user", Content: "안녕?"}}))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(r, http.MethodGet, "/conversations/"+url.PathEscape("민수")+"?model_name="+url.QueryEscape("하루"), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var transcript struct {
		Data []model.TranscriptEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &transcript))
	require.Len(t, transcript.Data, 2)
	assert.Equal(t, "안녕?", transcript.Data[0].Content)
	assert.Equal(t, "반가워!", transcript.Data[1].Content)

	rr = do(r, http.MethodGet, "/conversations/"+url.PathEscape("민수")+"/exchanges?limit=5", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "반가워!", list.Data[0]["response"])

	rr = do(r, http.MethodGet, "/conversations/x/exchanges?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
