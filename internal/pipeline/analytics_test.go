package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"daily-grocer-go/internal/model"
	"daily-grocer-go/internal/repository"
	"daily-grocer-go/pkg/tasks"
)

func openPipelineTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// 每个测试一个命名内存库，连接池内共享且测试间互不串库
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := db.AutoMigrate(&model.AiChatMessage{}, &model.AiDailyAnalytics{}); err != nil {
		t.Fatalf("迁移测试表失败: %v", err)
	}
	return db
}

func TestProcessRecomputesDailyRow(t *testing.T) {
	db := openPipelineTestDB(t)
	repo := repository.NewChatRepository(db)
	agg := NewAnalyticsAggregator(repo)

	rt := 150
	seed := []*model.AiChatMessage{
		{UserID: 1, SessionID: "s1", MessageType: model.MessageTypeUser, MessageText: "oat milk", ChatType: model.ChatTypeGeneral},
		{UserID: 1, SessionID: "s1", MessageType: model.MessageTypeAssistant, MessageText: "aisle 4", ChatType: model.ChatTypeGeneral, ResponseTimeMs: &rt},
		{UserID: 2, SessionID: "s2", MessageType: model.MessageTypeUser, MessageText: "oat milk", ChatType: "recipe"},
	}
	for _, m := range seed {
		if err := repo.SaveMessage(m); err != nil {
			t.Fatalf("SaveMessage: %v", err)
		}
	}

	event := tasks.ChatInteractionEvent{UserID: 1, SessionID: "s1", ChatType: model.ChatTypeGeneral, OccurredAt: time.Now()}
	if err := agg.Process(context.Background(), event); err != nil {
		t.Fatalf("Process: %v", err)
	}

	var row model.AiDailyAnalytics
	date := time.Now().Format("2006-01-02")
	if err := db.Where("date = ?", date).First(&row).Error; err != nil {
		t.Fatalf("加载当日统计失败: %v", err)
	}
	if row.TotalMessages != 3 || row.TotalConversations != 2 || row.UniqueUsers != 2 {
		t.Fatalf("unexpected totals: %+v", row)
	}

	var popular []repository.QueryCount
	if err := json.Unmarshal([]byte(row.PopularQueries), &popular); err != nil {
		t.Fatalf("popular_queries should hold JSON: %v", err)
	}
	if len(popular) == 0 || popular[0].Query != "oat milk" || popular[0].Count != 2 {
		t.Fatalf("unexpected popular queries: %+v", popular)
	}

	var breakdown map[string]int64
	if err := json.Unmarshal([]byte(row.ChatTypesBreakdown), &breakdown); err != nil {
		t.Fatalf("chat_types_breakdown should hold JSON: %v", err)
	}
	if breakdown[model.ChatTypeGeneral] != 2 || breakdown["recipe"] != 1 {
		t.Fatalf("unexpected breakdown: %+v", breakdown)
	}

	// 重复消费同一事件只是重算，不会堆积新行
	if err := agg.Process(context.Background(), event); err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	var count int64
	db.Model(&model.AiDailyAnalytics{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected a single row per day, got %d", count)
	}
}
