package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/h-d3ez/nemesis/internal/httpx"
)

// Rule は 1 つのミドルウェアが適用する上限です。
type Rule struct {
	Scope       string // キーの接頭辞（api, login など）
	MaxRequests int
	Window      time.Duration
}

// KeyFunc はリクエストから制限キーを作ります。
type KeyFunc func(c *gin.Context) string

// ByClientIP はクライアント IP をキーにします。
func ByClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// Middleware は Rule に従ってリクエストを制限するミドルウェアを返します。
// 判定に失敗した場合（保存先の障害など）はログを残して通過させます。
func Middleware(l *Limiter, rule Rule, keyFn KeyFunc, logger *zap.Logger) gin.HandlerFunc {
	if keyFn == nil {
		keyFn = ByClientIP
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		key := rule.Scope + "_" + keyFn(c)
		decision, err := l.Allow(c.Request.Context(), key, rule.MaxRequests, rule.Window)
		if err != nil {
			logger.Error("rate limit check failed", zap.String("scope", rule.Scope), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if !decision.Allowed {
			// Retry-After は秒数で返す
			wait := decision.RetryAfter(l.now())
			c.Header("Retry-After", strconv.FormatInt(int64(wait.Round(time.Second)/time.Second), 10))
			httpx.Abort(c, http.StatusTooManyRequests, "Too many requests")
			return
		}
		c.Next()
	}
}
