// Package pipeline 包含了后台异步处理流程。
package pipeline

import (
	"context"
	"encoding/json"

	"daily-grocer-go/internal/model"
	"daily-grocer-go/internal/repository"
	"daily-grocer-go/pkg/log"
	"daily-grocer-go/pkg/tasks"
)

// AnalyticsAggregator 消费聊天交互事件并维护按天聚合的统计表。
// 每个事件触发所属日期的全量重算，因此处理是幂等的，重复消费无副作用。
type AnalyticsAggregator struct {
	chatRepo repository.ChatRepository
}

// NewAnalyticsAggregator 创建一个新的 AnalyticsAggregator 实例。
func NewAnalyticsAggregator(chatRepo repository.ChatRepository) *AnalyticsAggregator {
	return &AnalyticsAggregator{chatRepo: chatRepo}
}

// Process 实现 kafka.EventProcessor 接口。
func (a *AnalyticsAggregator) Process(ctx context.Context, event tasks.ChatInteractionEvent) error {
	date := event.OccurredAt.Format("2006-01-02")

	usage, err := a.chatRepo.UsageForDate(date)
	if err != nil {
		return err
	}
	popular, err := a.chatRepo.PopularQueriesForDate(date, 10)
	if err != nil {
		return err
	}
	byType, err := a.chatRepo.ChatTypeUsageForDate(date)
	if err != nil {
		return err
	}

	popularJSON, err := json.Marshal(popular)
	if err != nil {
		return err
	}
	breakdown := make(map[string]int64, len(byType))
	for _, t := range byType {
		breakdown[t.ChatType] = t.Messages
	}
	breakdownJSON, err := json.Marshal(breakdown)
	if err != nil {
		return err
	}

	row := &model.AiDailyAnalytics{
		Date:               date,
		TotalMessages:      int(usage.TotalMessages),
		TotalConversations: int(usage.UniqueSessions),
		UniqueUsers:        int(usage.UniqueUsers),
		AvgResponseTimeMs:  usage.AvgResponseTimeMs,
		PopularQueries:     string(popularJSON),
		ChatTypesBreakdown: string(breakdownJSON),
	}
	if err := a.chatRepo.UpsertDailyAnalytics(row); err != nil {
		return err
	}

	log.Debugf("已更新 %s 的聊天统计: messages=%d sessions=%d users=%d",
		date, row.TotalMessages, row.TotalConversations, row.UniqueUsers)
	return nil
}
