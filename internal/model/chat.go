// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"encoding/json"
	"time"
)

// 会话消息角色常量。
const (
	MessageTypeUser      = "user"
	MessageTypeAssistant = "assistant"
)

// 会话类型常量。顾客聊天默认为 general，
// 管理端测试会话以 admin_test_ 为前缀区分场景。
const (
	ChatTypeGeneral         = "general"
	ChatTypeAdminTestPrefix = "admin_test_"
)

// AiChatMessage 对应于数据库中的 'ai_chat_history' 表。
// 每条记录是一次对话中的单侧发言（用户或助手）。
type AiChatMessage struct {
	ID             uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         uint            `gorm:"not null;index:idx_user_session" json:"userId"`
	SessionID      string          `gorm:"type:varchar(64);not null;index:idx_user_session" json:"sessionId"`
	MessageType    string          `gorm:"type:varchar(20);not null;column:message_type" json:"messageType"`
	MessageText    string          `gorm:"type:text;not null;column:message_text" json:"messageText"`
	ChatType       string          `gorm:"type:varchar(50);not null;default:general;column:chat_type" json:"chatType"`
	Metadata       json.RawMessage `gorm:"type:json" json:"metadata"`
	ResponseTimeMs *int            `gorm:"column:response_time_ms" json:"responseTimeMs"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index" json:"createdAt"`
}

func (AiChatMessage) TableName() string {
	return "ai_chat_history"
}

// ChatTurn 代表客户端回传的一轮历史发言，用于拼接上下文。
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatSession 是按会话聚合后的摘要，用于会话列表接口。
type ChatSession struct {
	SessionID    string    `json:"sessionId"`
	ChatType     string    `json:"chatType"`
	MessageCount int       `json:"messageCount"`
	FirstMessage time.Time `json:"firstMessage"`
	LastMessage  time.Time `json:"lastMessage"`
	Preview      string    `json:"preview"`
}

// AiRecommendation 对应于数据库中的 'ai_recommendations' 表。
// 记录每次生成的推荐结果，便于审计与效果分析。
type AiRecommendation struct {
	ID                  uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID              uint      `gorm:"not null;index" json:"userId"`
	RecommendationType  string    `gorm:"type:varchar(50);not null;default:product" json:"recommendationType"`
	RecommendationsJSON string    `gorm:"type:json;not null;column:recommendations" json:"recommendations"`
	Context             string    `gorm:"type:text" json:"context"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (AiRecommendation) TableName() string {
	return "ai_recommendations"
}

// RecommendedProduct 是推荐结果中的单个条目。
type RecommendedProduct struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// AiDailyAnalytics 对应于数据库中的 'ai_analytics' 表。
// 按天聚合的聊天使用统计，同一天重复写入时做更新。
// 日期存为 YYYY-MM-DD 文本，跨 MySQL/SQLite 行为一致。
type AiDailyAnalytics struct {
	ID                 uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Date               string    `gorm:"type:varchar(10);not null;uniqueIndex" json:"date"`
	TotalMessages      int       `gorm:"not null;default:0" json:"totalMessages"`
	TotalConversations int       `gorm:"not null;default:0;column:total_conversations" json:"totalConversations"`
	UniqueUsers        int       `gorm:"not null;default:0" json:"uniqueUsers"`
	AvgResponseTimeMs  float64   `gorm:"not null;default:0;column:avg_response_time_ms" json:"avgResponseTimeMs"`
	PopularQueries     string    `gorm:"type:json;column:popular_queries" json:"popularQueries"`
	ChatTypesBreakdown string    `gorm:"type:json;column:chat_types_breakdown" json:"chatTypesBreakdown"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (AiDailyAnalytics) TableName() string {
	return "ai_analytics"
}
