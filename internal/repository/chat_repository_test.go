package repository

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"daily-grocer-go/internal/model"
)

func openChatTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// 每个测试一个命名内存库，连接池内共享且测试间互不串库
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := db.AutoMigrate(&model.AiChatMessage{}, &model.AiDailyAnalytics{}, &model.AiRecommendation{}); err != nil {
		t.Fatalf("迁移测试表失败: %v", err)
	}
	return db
}

func seedMessage(t *testing.T, repo ChatRepository, userID uint, sessionID, msgType, text string) {
	t.Helper()
	err := repo.SaveMessage(&model.AiChatMessage{
		UserID:      userID,
		SessionID:   sessionID,
		MessageType: msgType,
		MessageText: text,
		ChatType:    model.ChatTypeGeneral,
	})
	if err != nil {
		t.Fatalf("写入测试消息失败: %v", err)
	}
}

func TestSessionsByUserGroupsAndPreviews(t *testing.T) {
	repo := NewChatRepository(openChatTestDB(t))

	seedMessage(t, repo, 1, "s1", model.MessageTypeUser, "Do you have oat milk?")
	seedMessage(t, repo, 1, "s1", model.MessageTypeAssistant, "Yes, two brands in stock.")
	seedMessage(t, repo, 1, "s2", model.MessageTypeUser, "Plan dinner for tonight")
	seedMessage(t, repo, 2, "s3", model.MessageTypeUser, "other user's session")

	sessions, err := repo.SessionsByUser(1)
	if err != nil {
		t.Fatalf("SessionsByUser: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}

	byID := make(map[string]model.ChatSession, len(sessions))
	for _, s := range sessions {
		byID[s.SessionID] = s
	}
	if byID["s1"].MessageCount != 2 {
		t.Fatalf("session s1 should count 2 messages, got %d", byID["s1"].MessageCount)
	}
	if byID["s1"].Preview != "Do you have oat milk?" {
		t.Fatalf("session s1 preview should be the first user message, got %q", byID["s1"].Preview)
	}
	if byID["s2"].MessageCount != 1 {
		t.Fatalf("session s2 should count 1 message, got %d", byID["s2"].MessageCount)
	}
	if _, ok := byID["s3"]; ok {
		t.Fatal("another user's session must not appear")
	}
	if byID["s1"].ChatType != model.ChatTypeGeneral {
		t.Fatalf("session summary should carry the chat type, got %q", byID["s1"].ChatType)
	}
	if byID["s1"].FirstMessage.IsZero() || byID["s1"].LastMessage.IsZero() {
		t.Fatalf("session timestamps should parse, got first=%v last=%v", byID["s1"].FirstMessage, byID["s1"].LastMessage)
	}
	if byID["s1"].LastMessage.Before(byID["s1"].FirstMessage) {
		t.Fatal("last message must not precede the first")
	}
}

func TestHistoryByUserScopesAndOrders(t *testing.T) {
	repo := NewChatRepository(openChatTestDB(t))

	seedMessage(t, repo, 1, "s1", model.MessageTypeUser, "first")
	seedMessage(t, repo, 1, "s1", model.MessageTypeAssistant, "second")
	seedMessage(t, repo, 1, "s2", model.MessageTypeUser, "third")
	seedMessage(t, repo, 2, "s1", model.MessageTypeUser, "not mine")

	all, err := repo.HistoryByUser(1, "", 50)
	if err != nil {
		t.Fatalf("HistoryByUser: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 messages for user 1, got %d", len(all))
	}
	// 倒序：最新的在前
	if all[0].MessageText != "third" || all[2].MessageText != "first" {
		t.Fatalf("unexpected ordering: %q ... %q", all[0].MessageText, all[2].MessageText)
	}

	scoped, err := repo.HistoryByUser(1, "s1", 50)
	if err != nil {
		t.Fatalf("HistoryByUser(s1): %v", err)
	}
	if len(scoped) != 2 {
		t.Fatalf("expected 2 messages in session s1, got %d", len(scoped))
	}
}

func TestClearScoping(t *testing.T) {
	repo := NewChatRepository(openChatTestDB(t))

	seedMessage(t, repo, 1, "s1", model.MessageTypeUser, "a")
	seedMessage(t, repo, 1, "s2", model.MessageTypeUser, "b")
	seedMessage(t, repo, 2, "s2", model.MessageTypeUser, "c")

	n, err := repo.ClearByUser(1, "s1")
	if err != nil {
		t.Fatalf("ClearByUser: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row deleted, got %d", n)
	}

	// 其余会话与其他用户不受影响
	rest, _ := repo.HistoryByUser(1, "", 50)
	if len(rest) != 1 || rest[0].SessionID != "s2" {
		t.Fatalf("user 1 should keep only session s2, got %+v", rest)
	}
	other, _ := repo.HistoryByUser(2, "", 50)
	if len(other) != 1 {
		t.Fatalf("user 2's history must be untouched, got %d rows", len(other))
	}

	n, err = repo.ClearBySession("s2")
	if err != nil {
		t.Fatalf("ClearBySession: %v", err)
	}
	if n != 2 {
		t.Fatalf("session s2 spans two users, expected 2 rows deleted, got %d", n)
	}
}

func TestUsageForDateAggregates(t *testing.T) {
	repo := NewChatRepository(openChatTestDB(t))

	rt := 120
	for i, text := range []string{"q1", "q2"} {
		if err := repo.SaveMessage(&model.AiChatMessage{
			UserID:      uint(i + 1),
			SessionID:   "s1",
			MessageType: model.MessageTypeUser,
			MessageText: text,
			ChatType:    model.ChatTypeGeneral,
		}); err != nil {
			t.Fatalf("SaveMessage: %v", err)
		}
	}
	if err := repo.SaveMessage(&model.AiChatMessage{
		UserID:         1,
		SessionID:      "s2",
		MessageType:    model.MessageTypeAssistant,
		MessageText:    "a1",
		ChatType:       model.ChatTypeGeneral,
		ResponseTimeMs: &rt,
	}); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}

	today := time.Now().Format("2006-01-02")
	usage, err := repo.UsageForDate(today)
	if err != nil {
		t.Fatalf("UsageForDate: %v", err)
	}
	if usage.TotalMessages != 3 || usage.UserMessages != 2 || usage.AssistantMessages != 1 {
		t.Fatalf("unexpected counts: %+v", usage)
	}
	if usage.UniqueUsers != 2 || usage.UniqueSessions != 2 {
		t.Fatalf("unexpected distinct counts: %+v", usage)
	}
	if usage.AvgResponseTimeMs != 120 {
		t.Fatalf("avg response time should only cover rows that have one, got %v", usage.AvgResponseTimeMs)
	}
}

func TestPopularQueriesForDateRanksUserMessages(t *testing.T) {
	repo := NewChatRepository(openChatTestDB(t))

	for i := 0; i < 3; i++ {
		seedMessage(t, repo, uint(i+1), "s1", model.MessageTypeUser, "where is the oat milk")
	}
	seedMessage(t, repo, 1, "s2", model.MessageTypeUser, "plan a dinner")
	// 助手回复不计入热门查询
	seedMessage(t, repo, 1, "s1", model.MessageTypeAssistant, "where is the oat milk")
	long := strings.Repeat("x", 80)
	seedMessage(t, repo, 2, "s3", model.MessageTypeUser, long)

	today := time.Now().Format("2006-01-02")
	queries, err := repo.PopularQueriesForDate(today, 2)
	if err != nil {
		t.Fatalf("PopularQueriesForDate: %v", err)
	}
	if len(queries) != 2 {
		t.Fatalf("limit should cap the result, got %d rows", len(queries))
	}
	if queries[0].Query != "where is the oat milk" || queries[0].Count != 3 {
		t.Fatalf("most frequent query should rank first, got %+v", queries[0])
	}
	for _, q := range queries {
		if len(q.Query) > 50 {
			t.Fatalf("query preview should be truncated to 50 chars, got %d", len(q.Query))
		}
	}
}

func TestSaveMessageKeepsStructuredMetadata(t *testing.T) {
	db := openChatTestDB(t)
	repo := NewChatRepository(db)

	err := repo.SaveMessage(&model.AiChatMessage{
		UserID:      1,
		SessionID:   "s1",
		MessageType: model.MessageTypeUser,
		MessageText: "hi",
		ChatType:    model.ChatTypeGeneral,
		Metadata:    json.RawMessage(`{"source":"voice"}`),
	})
	if err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}

	var got model.AiChatMessage
	if err := db.First(&got).Error; err != nil {
		t.Fatalf("reload message: %v", err)
	}
	out, err := json.Marshal(&got)
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	// metadata 应以对象原样输出，而不是再转义一层的字符串
	if !strings.Contains(string(out), `"metadata":{"source":"voice"}`) {
		t.Fatalf("metadata should serialize as an object, got %s", out)
	}
}

func TestUpsertDailyAnalyticsIsIdempotent(t *testing.T) {
	db := openChatTestDB(t)
	repo := NewChatRepository(db)

	row := &model.AiDailyAnalytics{Date: "2024-06-01", TotalMessages: 3, TotalConversations: 2, UniqueUsers: 2, AvgResponseTimeMs: 100}
	if err := repo.UpsertDailyAnalytics(row); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// 同一天重算后的结果覆盖旧行而不是新增
	update := &model.AiDailyAnalytics{
		Date:               "2024-06-01",
		TotalMessages:      5,
		TotalConversations: 3,
		UniqueUsers:        2,
		AvgResponseTimeMs:  90,
		PopularQueries:     `[{"query":"oat milk","count":3}]`,
		ChatTypesBreakdown: `{"general":5}`,
	}
	if err := repo.UpsertDailyAnalytics(update); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var count int64
	db.Model(&model.AiDailyAnalytics{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected a single row for the day, got %d", count)
	}
	var got model.AiDailyAnalytics
	if err := db.Where("date = ?", "2024-06-01").First(&got).Error; err != nil {
		t.Fatalf("reload row: %v", err)
	}
	if got.TotalMessages != 5 || got.TotalConversations != 3 || got.AvgResponseTimeMs != 90 {
		t.Fatalf("row was not updated: %+v", got)
	}
	if got.PopularQueries != update.PopularQueries || got.ChatTypesBreakdown != update.ChatTypesBreakdown {
		t.Fatalf("aggregated JSON columns were not updated: %+v", got)
	}
}
