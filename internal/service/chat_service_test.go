package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"daily-grocer-go/internal/model"
	"daily-grocer-go/internal/repository"
	"daily-grocer-go/pkg/llm"
)

// fakeProvider 记录收到的 prompt 并返回预设的回复或错误。
type fakeProvider struct {
	lastPrompt string
	reply      string
	err        error
}

func (f *fakeProvider) GenerateContent(ctx context.Context, prompt string) (string, error) {
	f.lastPrompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeProvider) StreamGenerateContent(ctx context.Context, prompt string, writer llm.MessageWriter) error {
	f.lastPrompt = prompt
	if f.err != nil {
		return f.err
	}
	return writer.WriteMessage(1, []byte(f.reply))
}

func openChatServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	// 每个测试一个命名内存库，连接池内共享且测试间互不串库
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	err = db.AutoMigrate(
		&model.AiChatMessage{}, &model.AiRecommendation{},
		&model.Category{}, &model.Product{}, &model.CartItem{},
		&model.Order{}, &model.OrderItem{},
	)
	if err != nil {
		t.Fatalf("迁移测试表失败: %v", err)
	}
	return db
}

func newTestChatService(db *gorm.DB, provider llm.Client) ChatService {
	return NewChatService(
		repository.NewChatRepository(db),
		nil,
		repository.NewOrderRepository(db),
		repository.NewCartRepository(db),
		repository.NewProductRepository(db),
		provider,
	)
}

func TestSendMessagePersistsUserThenAssistant(t *testing.T) {
	db := openChatServiceDB(t)
	fake := &fakeProvider{reply: "Try our seasonal apples."}
	svc := newTestChatService(db, fake)

	result, err := svc.SendMessage(context.Background(), 1, "What fruit is in season?", nil, "", "")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if result.Message != "Try our seasonal apples." {
		t.Fatalf("unexpected reply: %q", result.Message)
	}
	if result.SessionID == "" {
		t.Fatal("a session id should be generated when none is supplied")
	}
	if result.ChatType != model.ChatTypeGeneral {
		t.Fatalf("chat type should default to general, got %q", result.ChatType)
	}

	var msgs []model.AiChatMessage
	if err := db.Order("id ASC").Find(&msgs).Error; err != nil {
		t.Fatalf("加载持久化消息失败: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 persisted rows, got %d", len(msgs))
	}
	if msgs[0].MessageType != model.MessageTypeUser || msgs[0].MessageText != "What fruit is in season?" {
		t.Fatalf("first row should be the user turn: %+v", msgs[0])
	}
	if msgs[1].MessageType != model.MessageTypeAssistant || msgs[1].MessageText != "Try our seasonal apples." {
		t.Fatalf("second row should be the assistant turn: %+v", msgs[1])
	}
	if msgs[1].ResponseTimeMs == nil {
		t.Fatal("assistant turn should record a response time")
	}
	if msgs[0].SessionID != result.SessionID || msgs[1].SessionID != result.SessionID {
		t.Fatal("both rows should carry the resolved session id")
	}
}

func TestSendMessagePromptBoundsHistory(t *testing.T) {
	db := openChatServiceDB(t)
	fake := &fakeProvider{reply: "ok"}
	svc := newTestChatService(db, fake)

	history := make([]model.ChatTurn, 0, 15)
	for i := 1; i <= 15; i++ {
		role := model.MessageTypeUser
		if i%2 == 0 {
			role = model.MessageTypeAssistant
		}
		history = append(history, model.ChatTurn{Role: role, Content: fmt.Sprintf("msg%02d", i)})
	}

	if _, err := svc.SendMessage(context.Background(), 1, "current question", history, "", ""); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if !strings.HasPrefix(fake.lastPrompt, "You are GrocerAI") {
		t.Fatalf("prompt should open with the assistant persona, got %q", fake.lastPrompt[:40])
	}
	// 仅保留最近 10 条：msg06..msg15
	for i := 1; i <= 5; i++ {
		if strings.Contains(fake.lastPrompt, fmt.Sprintf("msg%02d", i)) {
			t.Fatalf("prompt should not contain msg%02d", i)
		}
	}
	for i := 6; i <= 15; i++ {
		if !strings.Contains(fake.lastPrompt, fmt.Sprintf("msg%02d", i)) {
			t.Fatalf("prompt should contain msg%02d", i)
		}
	}
	if !strings.HasSuffix(fake.lastPrompt, "User: current question\nGrocerAI: ") {
		t.Fatalf("prompt should end with the current turn cue, got %q", fake.lastPrompt[len(fake.lastPrompt)-60:])
	}
	if !strings.Contains(fake.lastPrompt, "User: msg07\n") || !strings.Contains(fake.lastPrompt, "GrocerAI: msg06\n") {
		t.Fatal("history roles should be rendered with User/GrocerAI labels")
	}
}

func TestSendMessageRejectsBlankMessage(t *testing.T) {
	db := openChatServiceDB(t)
	svc := newTestChatService(db, &fakeProvider{reply: "ok"})

	for _, msg := range []string{"", "   ", "\t\n "} {
		if _, err := svc.SendMessage(context.Background(), 1, msg, nil, "", ""); !errors.Is(err, ErrEmptyMessage) {
			t.Fatalf("message %q should be rejected with ErrEmptyMessage, got %v", msg, err)
		}
	}

	var count int64
	db.Model(&model.AiChatMessage{}).Count(&count)
	if count != 0 {
		t.Fatalf("rejected messages must not be persisted, found %d rows", count)
	}
}

func TestSendMessageKeepsUserTurnOnProviderFailure(t *testing.T) {
	db := openChatServiceDB(t)
	svc := newTestChatService(db, &fakeProvider{err: errors.New("upstream exploded")})

	_, err := svc.SendMessage(context.Background(), 1, "hello", nil, "", "")
	if err == nil {
		t.Fatal("provider failure should surface to the caller")
	}

	var msgs []model.AiChatMessage
	db.Order("id ASC").Find(&msgs)
	if len(msgs) != 1 {
		t.Fatalf("the user turn should survive the failure, got %d rows", len(msgs))
	}
	if msgs[0].MessageType != model.MessageTypeUser {
		t.Fatalf("surviving row should be the user turn: %+v", msgs[0])
	}
}

// recordingSessionRepo 记录最近会话标记的写入。
type recordingSessionRepo struct {
	current map[uint]string
}

func (f *recordingSessionRepo) SetCurrentSession(ctx context.Context, userID uint, sessionID string) error {
	f.current[userID] = sessionID
	return nil
}

func (f *recordingSessionRepo) ClearCurrentSession(ctx context.Context, userID uint) error {
	delete(f.current, userID)
	return nil
}

func TestSendMessageWithoutSessionStartsFreshThread(t *testing.T) {
	db := openChatServiceDB(t)
	sessions := &recordingSessionRepo{current: map[uint]string{}}
	svc := NewChatService(
		repository.NewChatRepository(db),
		sessions,
		repository.NewOrderRepository(db),
		repository.NewCartRepository(db),
		repository.NewProductRepository(db),
		&fakeProvider{reply: "ok"},
	)

	first, err := svc.SendMessage(context.Background(), 1, "hello", nil, "", "")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	second, err := svc.SendMessage(context.Background(), 1, "hello again", nil, "", "")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	// 缺省 sessionId 的每次请求都开启新会话，即便存在最近会话标记
	if first.SessionID == "" || first.SessionID == second.SessionID {
		t.Fatalf("each request without a session id must open a new thread, got %q twice", first.SessionID)
	}
	if sessions.current[1] != second.SessionID {
		t.Fatalf("recent-session marker should track the latest thread, got %q", sessions.current[1])
	}
}

func TestSendMessageHonorsSuppliedSession(t *testing.T) {
	db := openChatServiceDB(t)
	svc := newTestChatService(db, &fakeProvider{reply: "ok"})

	first, err := svc.SendMessage(context.Background(), 1, "hello", nil, "my-session", "")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if first.SessionID != "my-session" {
		t.Fatalf("supplied session id should be used as-is, got %q", first.SessionID)
	}

	second, err := svc.SendMessage(context.Background(), 1, "and again", nil, "my-session", "")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if second.SessionID != "my-session" {
		t.Fatalf("session id should stay stable across turns, got %q", second.SessionID)
	}

	var count int64
	db.Model(&model.AiChatMessage{}).Where("session_id = ?", "my-session").Count(&count)
	if count != 4 {
		t.Fatalf("expected 4 rows in the session, got %d", count)
	}
}

func TestClearHistoryScopesToSessionAndUser(t *testing.T) {
	db := openChatServiceDB(t)
	svc := newTestChatService(db, &fakeProvider{reply: "ok"})
	ctx := context.Background()

	if _, err := svc.SendMessage(ctx, 1, "a", nil, "s1", ""); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := svc.SendMessage(ctx, 1, "b", nil, "s2", ""); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := svc.SendMessage(ctx, 2, "c", nil, "s1", ""); err != nil {
		t.Fatalf("seed: %v", err)
	}

	deleted, err := svc.ClearHistory(ctx, 1, "s1")
	if err != nil {
		t.Fatalf("ClearHistory: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 rows deleted (one exchange), got %d", deleted)
	}

	// 用户 1 的另一个会话与用户 2 的同名会话均不受影响
	remaining, err := svc.GetHistory(1, "", 50)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(remaining) != 2 || remaining[0].SessionID != "s2" {
		t.Fatalf("user 1 should keep only session s2, got %+v", remaining)
	}
	other, _ := svc.GetHistory(2, "", 50)
	if len(other) != 2 {
		t.Fatalf("user 2's history must be untouched, got %d rows", len(other))
	}
}

func seedCatalog(t *testing.T, db *gorm.DB) []model.Product {
	t.Helper()
	cat := model.Category{Name: "Produce", IsActive: true}
	if err := db.Create(&cat).Error; err != nil {
		t.Fatalf("seed category: %v", err)
	}
	products := []model.Product{
		{Name: "Organic Bananas", SKU: "SKU-001", CategoryID: cat.ID, Price: 1.99, StockQuantity: 30, IsActive: true},
		{Name: "Baby Spinach", SKU: "SKU-002", CategoryID: cat.ID, Price: 3.49, StockQuantity: 12, IsActive: true},
		{Name: "Roma Tomatoes", SKU: "SKU-003", CategoryID: cat.ID, Price: 2.29, StockQuantity: 18, IsActive: true},
	}
	for i := range products {
		if err := db.Create(&products[i]).Error; err != nil {
			t.Fatalf("seed product: %v", err)
		}
	}
	return products
}

func TestRecommendationsFallBackOnUnparsableReply(t *testing.T) {
	db := openChatServiceDB(t)
	products := seedCatalog(t, db)
	svc := newTestChatService(db, &fakeProvider{reply: "Sure! Here are some ideas you might like."})

	result, err := svc.GetRecommendations(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetRecommendations: %v", err)
	}
	if len(result.Recommendations) != len(products) {
		t.Fatalf("fallback should sample from all candidates, got %d entries", len(result.Recommendations))
	}

	known := make(map[string]bool, len(products))
	for _, p := range products {
		known[p.Name] = true
	}
	for _, rec := range result.Recommendations {
		if !known[rec.Name] {
			t.Fatalf("fallback entry %q is not a catalog product", rec.Name)
		}
		if !strings.Contains(rec.Reason, "Produce") {
			t.Fatalf("fallback reason should name the category, got %q", rec.Reason)
		}
	}

	// 结果总是落库
	var saved model.AiRecommendation
	if err := db.First(&saved).Error; err != nil {
		t.Fatalf("recommendation record should be persisted: %v", err)
	}
	var stored []model.RecommendedProduct
	if err := json.Unmarshal([]byte(saved.RecommendationsJSON), &stored); err != nil {
		t.Fatalf("persisted recommendations should be valid JSON: %v", err)
	}
	if len(stored) != len(result.Recommendations) {
		t.Fatalf("persisted entries should match the response, got %d vs %d", len(stored), len(result.Recommendations))
	}
	if result.RecommendationID == 0 {
		t.Fatal("result should carry the persisted record id")
	}
}

func TestRecommendationsParseFencedJSONAndCapAtFour(t *testing.T) {
	db := openChatServiceDB(t)
	seedCatalog(t, db)

	reply := "```json\n" + `[
		{"name": "Organic Bananas", "reason": "Pairs with your breakfast items"},
		{"name": "Baby Spinach", "reason": "Completes a salad"},
		{"name": "Roma Tomatoes", "reason": "Great for sauces"},
		{"name": "Sourdough Bread", "reason": "Popular pairing"},
		{"name": "Extra Item", "reason": "Should be truncated"},
		{"name": "", "reason": "missing name is dropped"}
	]` + "\n```"
	svc := newTestChatService(db, &fakeProvider{reply: reply})

	result, err := svc.GetRecommendations(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetRecommendations: %v", err)
	}
	if len(result.Recommendations) != 4 {
		t.Fatalf("expected the list capped at 4, got %d", len(result.Recommendations))
	}
	if result.Recommendations[0].Name != "Organic Bananas" {
		t.Fatalf("entries should keep model order, got %q first", result.Recommendations[0].Name)
	}
}

func TestRecommendationsEmptyCatalog(t *testing.T) {
	db := openChatServiceDB(t)
	svc := newTestChatService(db, &fakeProvider{reply: "irrelevant"})

	result, err := svc.GetRecommendations(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetRecommendations: %v", err)
	}
	if len(result.Recommendations) != 0 {
		t.Fatalf("no candidates should yield an empty list, got %d", len(result.Recommendations))
	}
}
