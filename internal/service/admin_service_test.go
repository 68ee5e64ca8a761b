package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"daily-grocer-go/internal/model"
	"daily-grocer-go/internal/repository"
)

func newTestAdminService(t *testing.T, provider *fakeProvider) (AdminService, *gorm.DB) {
	t.Helper()
	// 每个测试一个命名内存库，连接池内共享且测试间互不串库
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	err = db.AutoMigrate(
		&model.User{}, &model.Category{}, &model.Product{},
		&model.Order{}, &model.OrderItem{},
		&model.AiChatMessage{}, &model.AiDailyAnalytics{},
	)
	if err != nil {
		t.Fatalf("迁移测试表失败: %v", err)
	}
	svc := NewAdminService(
		repository.NewUserRepository(db),
		repository.NewOrderRepository(db),
		repository.NewProductRepository(db),
		repository.NewChatRepository(db),
		provider,
	)
	return svc, db
}

func TestTestChatUsesScenarioPreamble(t *testing.T) {
	fake := &fakeProvider{reply: "Here is a weekly meal plan."}
	svc, db := newTestAdminService(t, fake)

	result, err := svc.TestChat(context.Background(), 7, "Plan meals for a family of four", "meal_planning")
	if err != nil {
		t.Fatalf("TestChat: %v", err)
	}
	if result.TestType != "meal_planning" || result.AdminID != 7 {
		t.Fatalf("unexpected result metadata: %+v", result)
	}
	if !strings.Contains(fake.lastPrompt, "meal planning") {
		t.Fatalf("prompt should carry the scenario preamble, got %q", fake.lastPrompt[:60])
	}
	if !strings.HasSuffix(fake.lastPrompt, "Plan meals for a family of four") {
		t.Fatal("prompt should end with the admin's query")
	}

	// 双侧发言落库，chat_type 带场景前缀
	var msgs []model.AiChatMessage
	db.Order("id ASC").Find(&msgs)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 persisted rows, got %d", len(msgs))
	}
	if msgs[0].ChatType != "admin_test_meal_planning" {
		t.Fatalf("unexpected chat type %q", msgs[0].ChatType)
	}
}

func TestTestChatUnknownScenarioFallsBackToGeneral(t *testing.T) {
	fake := &fakeProvider{reply: "ok"}
	svc, _ := newTestAdminService(t, fake)

	result, err := svc.TestChat(context.Background(), 1, "hello", "made_up_scenario")
	if err != nil {
		t.Fatalf("TestChat: %v", err)
	}
	if result.TestType != "general" {
		t.Fatalf("unknown scenario should fall back to general, got %q", result.TestType)
	}

	if _, err := svc.TestChat(context.Background(), 1, "   ", "general"); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("blank query should be rejected, got %v", err)
	}
}

func TestClearChatHistoryTargets(t *testing.T) {
	svc, db := newTestAdminService(t, &fakeProvider{reply: "ok"})
	chatRepo := repository.NewChatRepository(db)

	seed := func(userID uint, sessionID string) {
		t.Helper()
		err := chatRepo.SaveMessage(&model.AiChatMessage{
			UserID: userID, SessionID: sessionID,
			MessageType: model.MessageTypeUser, MessageText: "x",
			ChatType: model.ChatTypeGeneral,
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	seed(1, "s1")
	seed(1, "s2")
	seed(2, "s2")

	if _, err := svc.ClearChatHistory(0, "", false); !errors.Is(err, ErrInvalidClearTarget) {
		t.Fatalf("no target should be rejected, got %v", err)
	}

	n, err := svc.ClearChatHistory(1, "s1", false)
	if err != nil || n != 1 {
		t.Fatalf("user+session clear: n=%d err=%v", n, err)
	}
	// 按会话清除跨用户
	n, err = svc.ClearChatHistory(0, "s2", false)
	if err != nil || n != 2 {
		t.Fatalf("session clear: n=%d err=%v", n, err)
	}

	seed(3, "s9")
	n, err = svc.ClearChatHistory(0, "", true)
	if err != nil || n != 1 {
		t.Fatalf("clear all: n=%d err=%v", n, err)
	}
}
