package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	sredis "storefront/pkg/redis"
)

// luaRateLimit：Redis 滑动窗口限流 Lua 脚本（原子操作）
// KEYS[1]=限流key，ARGV[1]=当前毫秒时间戳，ARGV[2]=窗口开始时间戳，ARGV[3]=窗口秒数，
// ARGV[4]=成员，ARGV[5]=上限
// 返回：当前窗口内的请求数（超限返回 -1）
var luaRateLimit = rd.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local windowStart = tonumber(ARGV[2])
local windowSec = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '0', windowStart)

local count = redis.call('ZCARD', key)
if count < tonumber(ARGV[5]) then
  redis.call('ZADD', key, now, member)
  redis.call('EXPIRE', key, windowSec)
  return count + 1
end
return -1
`)

// CheckoutRateLimit 下单限流：按 customer_email，解析失败时按 IP。
// Redis 出错时放行。
func CheckoutRateLimit(rdb *rd.Client, limit int, window time.Duration, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := sredis.RateLimitKey("ip", c.ClientIP())
		if email := extractEmail(c); email != "" {
			key = sredis.RateLimitKey("email", email)
		}

		now := time.Now()
		windowSec := int64(window.Seconds())
		res, err := luaRateLimit.Run(c.Request.Context(), rdb, []string{key},
			now.UnixMilli(), now.Add(-window).UnixMilli(), windowSec,
			fmt.Sprintf("%d-%d", now.UnixMilli(), now.UnixNano()), limit).Int()
		if err != nil {
			log.Warn("rate limit unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		if res < 0 {
			c.Header("Retry-After", fmt.Sprintf("%d", windowSec))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "Too Many Attempts."})
			return
		}
		c.Next()
	}
}

// extractEmail 从 body 读取 customer_email（不消耗 body，可重复读）
func extractEmail(c *gin.Context) string {
	if c.Request.Body == nil {
		return ""
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return ""
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

	var req struct {
		CustomerEmail string `json:"customer_email"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(req.CustomerEmail))
}
