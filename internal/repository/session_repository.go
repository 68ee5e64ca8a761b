// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// 最近会话标记的保留时长。
const sessionTTL = 7 * 24 * time.Hour

// SessionRepository 定义了用户最近活跃会话标记的操作接口。
// 标记只用于运营侧观察，会话解析本身不读取它。
type SessionRepository interface {
	SetCurrentSession(ctx context.Context, userID uint, sessionID string) error
	ClearCurrentSession(ctx context.Context, userID uint) error
}

type redisSessionRepository struct {
	redisClient *redis.Client
}

// NewSessionRepository 创建一个新的 SessionRepository 实例。
func NewSessionRepository(redisClient *redis.Client) SessionRepository {
	return &redisSessionRepository{redisClient: redisClient}
}

// SetCurrentSession 将用户的最近会话标记指向给定会话并刷新过期时间。
func (r *redisSessionRepository) SetCurrentSession(ctx context.Context, userID uint, sessionID string) error {
	userKey := fmt.Sprintf("user:%d:current_session", userID)
	return r.redisClient.Set(ctx, userKey, sessionID, sessionTTL).Err()
}

// ClearCurrentSession 删除用户的最近会话标记（清空历史后调用）。
func (r *redisSessionRepository) ClearCurrentSession(ctx context.Context, userID uint) error {
	userKey := fmt.Sprintf("user:%d:current_session", userID)
	return r.redisClient.Del(ctx, userKey).Err()
}
