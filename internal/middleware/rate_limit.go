// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"daily-grocer-go/internal/model"
)

// RateLimiter 是一个滑动窗口限流器，按身份标识（IP 或用户 ID）独立计数。
// 窗口内的请求时间戳全量保留，过期条目在下次访问时惰性清理。
type RateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	now    func() time.Time
	visits map[string][]time.Time
}

// NewRateLimiter 创建一个滑动窗口限流器。
func NewRateLimiter(window time.Duration, max int) *RateLimiter {
	return &RateLimiter{
		window: window,
		max:    max,
		now:    time.Now,
		visits: make(map[string][]time.Time),
	}
}

// Allow 判断该身份的本次请求是否放行。只有放行的请求才计入窗口。
func (l *RateLimiter) Allow(identity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	recent := l.visits[identity][:0]
	for _, t := range l.visits[identity] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.max {
		l.visits[identity] = recent
		return false
	}

	l.visits[identity] = append(recent, now)
	return true
}

// KeyFunc 从请求中提取限流身份标识。
type KeyFunc func(c *gin.Context) string

// ByClientIP 以客户端 IP 作为限流身份。
func ByClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// ByUserID 以已认证用户的 ID 作为限流身份，未认证时退回客户端 IP。
func ByUserID(c *gin.Context) string {
	if user, exists := c.Get("user"); exists {
		if u, ok := user.(*model.User); ok {
			return "user:" + strconv.FormatUint(uint64(u.ID), 10)
		}
	}
	return c.ClientIP()
}

// Middleware 将限流器包装为 Gin 中间件，超限请求直接返回 429。
func (l *RateLimiter) Middleware(keyFn KeyFunc, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(keyFn(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   message,
			})
			return
		}
		c.Next()
	}
}
