package middleware

import (
	"net/http"

	"daily-hug-go/internal/config"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS 返回跨域中间件。未配置 allow_origins 时放行所有来源（回显 Origin，以便携带凭证）。
// 预检请求的 Access-Control-Request-Headers 原样回显：携带凭证时 "*" 不被浏览器当作通配符。
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
			http.MethodDelete, http.MethodHead, http.MethodOptions,
		},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept", "Authorization", "X-Requested-With", RequestIDHeader},
		ExposeHeaders:    []string{RequestIDHeader},
		AllowCredentials: cfg.AllowCredentials,
		AllowWebSockets:  true,
		MaxAge:           cfg.MaxAge,
	}
	if len(cfg.AllowOrigins) == 0 {
		c.AllowOriginFunc = func(string) bool { return true }
	} else {
		c.AllowOrigins = cfg.AllowOrigins
	}
	handler := cors.New(c)

	return func(ctx *gin.Context) {
		if ctx.Request.Method == http.MethodOptions {
			if requested := ctx.GetHeader("Access-Control-Request-Headers"); requested != "" {
				ctx.Writer = &preflightWriter{ResponseWriter: ctx.Writer, requested: requested}
			}
		}
		handler(ctx)
	}
}

// preflightWriter 在写出响应头前，把允许的请求头替换为预检请求所列的请求头。
type preflightWriter struct {
	gin.ResponseWriter
	requested string
}

func (w *preflightWriter) echo() {
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		w.Header().Set("Access-Control-Allow-Headers", w.requested)
	}
}

func (w *preflightWriter) WriteHeaderNow() {
	if !w.Written() {
		w.echo()
	}
	w.ResponseWriter.WriteHeaderNow()
}

func (w *preflightWriter) Write(b []byte) (int, error) {
	if !w.Written() {
		w.echo()
	}
	return w.ResponseWriter.Write(b)
}
