// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"time"

	"gorm.io/gorm"

	"daily-grocer-go/internal/model"
)

// DailyUsage 是按天聚合的聊天使用统计。
type DailyUsage struct {
	Date              string  `json:"date"`
	TotalMessages     int64   `json:"totalMessages"`
	UserMessages      int64   `json:"userMessages"`
	AssistantMessages int64   `json:"assistantMessages"`
	UniqueUsers       int64   `json:"uniqueUsers"`
	UniqueSessions    int64   `json:"uniqueSessions"`
	AvgResponseTimeMs float64 `json:"avgResponseTimeMs"`
}

// ChatTypeUsage 是按会话类型聚合的消息量。
type ChatTypeUsage struct {
	ChatType string `json:"chatType"`
	Messages int64  `json:"messages"`
}

// QueryCount 是按用户消息前缀（前 50 字符）聚合的出现频次。
type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// ChatRepository 接口定义了聊天历史与分析数据的持久化操作。
type ChatRepository interface {
	SaveMessage(msg *model.AiChatMessage) error
	HistoryByUser(userID uint, sessionID string, limit int) ([]model.AiChatMessage, error)
	LatestTurns(userID uint, sessionID string, limit int) ([]model.AiChatMessage, error)
	SessionsByUser(userID uint) ([]model.ChatSession, error)
	ClearByUser(userID uint, sessionID string) (int64, error)
	ClearBySession(sessionID string) (int64, error)
	ClearAll() (int64, error)
	DailyUsageSince(since time.Time) ([]DailyUsage, error)
	UsageByChatType(since time.Time) ([]ChatTypeUsage, error)
	UsageForDate(date string) (DailyUsage, error)
	ChatTypeUsageForDate(date string) ([]ChatTypeUsage, error)
	PopularQueries(since time.Time, limit int) ([]QueryCount, error)
	PopularQueriesForDate(date string, limit int) ([]QueryCount, error)
	UpsertDailyAnalytics(row *model.AiDailyAnalytics) error
	SaveRecommendation(rec *model.AiRecommendation) error
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository 创建一个新的 ChatRepository 实例。
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

// SaveMessage 写入一条聊天记录。
func (r *chatRepository) SaveMessage(msg *model.AiChatMessage) error {
	return r.db.Create(msg).Error
}

// HistoryByUser 返回用户的聊天记录，按时间倒序（最新在前）。
// sessionID 非空时仅返回该会话内的记录。
func (r *chatRepository) HistoryByUser(userID uint, sessionID string, limit int) ([]model.AiChatMessage, error) {
	query := r.db.Where("user_id = ?", userID)
	if sessionID != "" {
		query = query.Where("session_id = ?", sessionID)
	}
	var messages []model.AiChatMessage
	err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&messages).Error
	return messages, err
}

// LatestTurns 返回会话内最近的 N 条记录，按时间正序（最旧在前），
// 用于拼接模型上下文。
func (r *chatRepository) LatestTurns(userID uint, sessionID string, limit int) ([]model.AiChatMessage, error) {
	var messages []model.AiChatMessage
	err := r.db.Where("user_id = ? AND session_id = ?", userID, sessionID).
		Order("created_at DESC, id DESC").Limit(limit).Find(&messages).Error
	if err != nil {
		return nil, err
	}
	// 倒序翻转为正序
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// SessionsByUser 按会话与类型聚合用户的聊天记录，最近活跃的会话在前。
// MIN/MAX 聚合列以文本返回（各驱动格式不同），统一在这里解析。
func (r *chatRepository) SessionsByUser(userID uint) ([]model.ChatSession, error) {
	type row struct {
		SessionID    string
		ChatType     string
		MessageCount int
		FirstMessage string
		LastMessage  string
	}
	var rows []row
	err := r.db.Model(&model.AiChatMessage{}).
		Select("session_id, chat_type, COUNT(*) AS message_count, MIN(created_at) AS first_message, MAX(created_at) AS last_message").
		Where("user_id = ?", userID).
		Group("session_id, chat_type").Order("last_message DESC").Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	sessions := make([]model.ChatSession, 0, len(rows))
	for _, s := range rows {
		session := model.ChatSession{
			SessionID:    s.SessionID,
			ChatType:     s.ChatType,
			MessageCount: s.MessageCount,
			FirstMessage: parseDBTime(s.FirstMessage),
			LastMessage:  parseDBTime(s.LastMessage),
		}
		// 取会话内第一条用户发言作为预览
		var first model.AiChatMessage
		err := r.db.Where("user_id = ? AND session_id = ? AND message_type = ?",
			userID, s.SessionID, model.MessageTypeUser).
			Order("created_at, id").First(&first).Error
		if err == nil {
			session.Preview = first.MessageText
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// parseDBTime 解析数据库返回的时间文本。MySQL 返回 RFC3339 变体，
// SQLite 存的是带纳秒与时区偏移的空格分隔格式。
func parseDBTime(value string) time.Time {
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ClearByUser 删除用户的聊天记录，sessionID 非空时仅删该会话，返回删除条数。
func (r *chatRepository) ClearByUser(userID uint, sessionID string) (int64, error) {
	query := r.db.Where("user_id = ?", userID)
	if sessionID != "" {
		query = query.Where("session_id = ?", sessionID)
	}
	result := query.Delete(&model.AiChatMessage{})
	return result.RowsAffected, result.Error
}

// ClearBySession 删除指定会话的全部记录（跨用户，管理端使用）。
func (r *chatRepository) ClearBySession(sessionID string) (int64, error) {
	result := r.db.Where("session_id = ?", sessionID).Delete(&model.AiChatMessage{})
	return result.RowsAffected, result.Error
}

// ClearAll 清空全部聊天记录（管理端使用）。
func (r *chatRepository) ClearAll() (int64, error) {
	result := r.db.Where("1 = 1").Delete(&model.AiChatMessage{})
	return result.RowsAffected, result.Error
}

// DailyUsageSince 返回自 since 起按天聚合的使用统计。
func (r *chatRepository) DailyUsageSince(since time.Time) ([]DailyUsage, error) {
	var usage []DailyUsage
	err := r.db.Model(&model.AiChatMessage{}).
		Select(`DATE(created_at) AS date,
			COUNT(*) AS total_messages,
			SUM(CASE WHEN message_type = 'user' THEN 1 ELSE 0 END) AS user_messages,
			SUM(CASE WHEN message_type = 'assistant' THEN 1 ELSE 0 END) AS assistant_messages,
			COUNT(DISTINCT user_id) AS unique_users,
			COUNT(DISTINCT session_id) AS unique_sessions,
			COALESCE(AVG(response_time_ms), 0) AS avg_response_time_ms`).
		Where("created_at >= ?", since).
		Group("DATE(created_at)").Order("date DESC").Scan(&usage).Error
	return usage, err
}

// UsageByChatType 返回自 since 起按会话类型聚合的消息量。
func (r *chatRepository) UsageByChatType(since time.Time) ([]ChatTypeUsage, error) {
	var usage []ChatTypeUsage
	err := r.db.Model(&model.AiChatMessage{}).
		Select("chat_type, COUNT(*) AS messages").
		Where("created_at >= ?", since).
		Group("chat_type").Order("messages DESC").Scan(&usage).Error
	return usage, err
}

// UsageForDate 返回某一天（YYYY-MM-DD）的聚合统计。
func (r *chatRepository) UsageForDate(date string) (DailyUsage, error) {
	var usage DailyUsage
	err := r.db.Model(&model.AiChatMessage{}).
		Select(`COUNT(*) AS total_messages,
			SUM(CASE WHEN message_type = 'user' THEN 1 ELSE 0 END) AS user_messages,
			SUM(CASE WHEN message_type = 'assistant' THEN 1 ELSE 0 END) AS assistant_messages,
			COUNT(DISTINCT user_id) AS unique_users,
			COUNT(DISTINCT session_id) AS unique_sessions,
			COALESCE(AVG(response_time_ms), 0) AS avg_response_time_ms`).
		Where("DATE(created_at) = ?", date).Scan(&usage).Error
	usage.Date = date
	return usage, err
}

// ChatTypeUsageForDate 返回某一天（YYYY-MM-DD）按会话类型聚合的消息量。
func (r *chatRepository) ChatTypeUsageForDate(date string) ([]ChatTypeUsage, error) {
	var usage []ChatTypeUsage
	err := r.db.Model(&model.AiChatMessage{}).
		Select("chat_type, COUNT(*) AS messages").
		Where("DATE(created_at) = ?", date).
		Group("chat_type").Order("messages DESC").Scan(&usage).Error
	return usage, err
}

// PopularQueries 返回自 since 起最高频的用户消息前缀。
func (r *chatRepository) PopularQueries(since time.Time, limit int) ([]QueryCount, error) {
	var rows []QueryCount
	err := r.db.Model(&model.AiChatMessage{}).
		Select("SUBSTR(message_text, 1, 50) AS query, COUNT(*) AS count").
		Where("message_type = ? AND created_at >= ?", model.MessageTypeUser, since).
		Group("SUBSTR(message_text, 1, 50)").
		Order("count DESC").Limit(limit).Scan(&rows).Error
	return rows, err
}

// PopularQueriesForDate 返回某一天最高频的用户消息前缀。
func (r *chatRepository) PopularQueriesForDate(date string, limit int) ([]QueryCount, error) {
	var rows []QueryCount
	err := r.db.Model(&model.AiChatMessage{}).
		Select("SUBSTR(message_text, 1, 50) AS query, COUNT(*) AS count").
		Where("message_type = ? AND DATE(created_at) = ?", model.MessageTypeUser, date).
		Group("SUBSTR(message_text, 1, 50)").
		Order("count DESC").Limit(limit).Scan(&rows).Error
	return rows, err
}

// UpsertDailyAnalytics 写入或更新某天的聚合统计行。
func (r *chatRepository) UpsertDailyAnalytics(row *model.AiDailyAnalytics) error {
	var existing model.AiDailyAnalytics
	err := r.db.Where("date = ?", row.Date).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return r.db.Create(row).Error
	}
	if err != nil {
		return err
	}
	existing.TotalMessages = row.TotalMessages
	existing.TotalConversations = row.TotalConversations
	existing.UniqueUsers = row.UniqueUsers
	existing.AvgResponseTimeMs = row.AvgResponseTimeMs
	existing.PopularQueries = row.PopularQueries
	existing.ChatTypesBreakdown = row.ChatTypesBreakdown
	return r.db.Save(&existing).Error
}

// SaveRecommendation 保存一次推荐结果。
func (r *chatRepository) SaveRecommendation(rec *model.AiRecommendation) error {
	return r.db.Create(rec).Error
}
