// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"daily-grocer-go/internal/model"
	"daily-grocer-go/internal/repository"
	"daily-grocer-go/pkg/llm"
	"daily-grocer-go/pkg/log"
)

// ErrInvalidClearTarget 表示清理请求既没给 userId 也没给 sessionId 且未确认全量清理。
var ErrInvalidClearTarget = errors.New("specify userId, sessionId, or confirm clearing all history")

// 管理端测试会话的四种固定场景设定。
var adminTestPreambles = map[string]string{
	"meal_planning": `You are GrocerAI, being tested by an admin for meal planning capabilities. Provide detailed, practical meal planning advice focusing on:
- Weekly meal planning strategies
- Balanced nutrition considerations
- Seasonal ingredient recommendations
- Budget-friendly meal options
- Dietary restriction accommodations

Admin test query: `,
	"grocery_suggestions": `You are GrocerAI, being tested by an admin for grocery suggestion capabilities. Provide comprehensive grocery recommendations focusing on:
- Smart shopping lists
- Product substitutions
- Quality indicators for fresh produce
- Storage and preservation tips
- Value-for-money suggestions

Admin test query: `,
	"nutrition": `You are GrocerAI, being tested by an admin for nutritional guidance capabilities. Provide accurate nutritional information focusing on:
- Macro and micronutrient content
- Health benefits of ingredients
- Dietary guidelines compliance
- Special dietary needs
- Portion size recommendations

Admin test query: `,
	"general": `You are GrocerAI, being tested by an admin. Demonstrate your grocery and food-related assistance capabilities by providing helpful, accurate, and comprehensive responses to:
- Meal planning and recipes
- Grocery shopping advice
- Nutritional information
- Cooking tips and techniques
- Food storage and safety

Admin test query: `,
}

// DashboardStats 是后台首页的统计概览。
type DashboardStats struct {
	TotalUsers     int64         `json:"totalUsers"`
	NewUsersToday  int64         `json:"newUsersToday"`
	TotalOrders    int64         `json:"totalOrders"`
	PendingOrders  int64         `json:"pendingOrders"`
	TotalRevenue   float64       `json:"totalRevenue"`
	RevenueToday   float64       `json:"revenueToday"`
	ActiveProducts int64         `json:"activeProducts"`
	RecentOrders   []model.Order `json:"recentOrders"`
}

// SalesReport 是销售报表内容。
type SalesReport struct {
	SalesByDay  []repository.SalesPoint `json:"salesByDay"`
	TopProducts []repository.TopProduct `json:"topProducts"`
	LowStock    []model.Product         `json:"lowStock"`
}

// AiAnalytics 是 AI 聊天使用情况的汇总。
type AiAnalytics struct {
	DailyUsage     []repository.DailyUsage    `json:"dailyUsage"`
	UsageByType    []repository.ChatTypeUsage `json:"usageByType"`
	PopularQueries []repository.QueryCount    `json:"popularQueries"`
	TotalMessages  int64                      `json:"totalMessages"`
	UniqueUsers    int64                      `json:"uniqueUsers"`
}

// AdminTestResult 是管理端测试会话的返回内容。
type AdminTestResult struct {
	Message   string    `json:"message"`
	TestType  string    `json:"testType"`
	AdminID   uint      `json:"adminId"`
	Timestamp time.Time `json:"timestamp"`
}

// AdminService 接口定义了后台管理的业务操作。
type AdminService interface {
	GetDashboardStats() (*DashboardStats, error)
	ListUsers(offset, limit int) ([]model.User, int64, error)
	SetUserActive(userID uint, active bool) (*model.User, error)
	SetUserRole(userID uint, role string) (*model.User, error)
	GetSalesReport(days int) (*SalesReport, error)
	TestChat(ctx context.Context, adminID uint, message, testType string) (*AdminTestResult, error)
	GetAiAnalytics(days int) (*AiAnalytics, error)
	ClearChatHistory(userID uint, sessionID string, clearAll bool) (int64, error)
}

type adminService struct {
	userRepo    repository.UserRepository
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	chatRepo    repository.ChatRepository
	llmClient   llm.Client
}

// NewAdminService 创建一个新的 AdminService 实例。
func NewAdminService(
	userRepo repository.UserRepository,
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	chatRepo repository.ChatRepository,
	llmClient llm.Client,
) AdminService {
	return &adminService{
		userRepo:    userRepo,
		orderRepo:   orderRepo,
		productRepo: productRepo,
		chatRepo:    chatRepo,
		llmClient:   llmClient,
	}
}

// GetDashboardStats 汇总后台首页所需的各项统计。
func (s *adminService) GetDashboardStats() (*DashboardStats, error) {
	stats := &DashboardStats{}
	today := time.Now().Format("2006-01-02")

	var err error
	if stats.TotalUsers, err = s.userRepo.CountAll(); err != nil {
		return nil, err
	}
	if stats.NewUsersToday, err = s.userRepo.CountSince(today); err != nil {
		return nil, err
	}
	if stats.TotalOrders, err = s.orderRepo.CountAll(); err != nil {
		return nil, err
	}
	if stats.PendingOrders, err = s.orderRepo.CountByStatus(model.OrderStatusPending); err != nil {
		return nil, err
	}
	if stats.TotalRevenue, err = s.orderRepo.SumRevenue(); err != nil {
		return nil, err
	}
	if stats.RevenueToday, err = s.orderRepo.SumRevenueSince(today); err != nil {
		return nil, err
	}
	if stats.ActiveProducts, err = s.productRepo.CountActive(); err != nil {
		return nil, err
	}
	if stats.RecentOrders, err = s.orderRepo.FindRecent(10); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *adminService) ListUsers(offset, limit int) ([]model.User, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.userRepo.FindWithPagination(offset, limit)
}

func (s *adminService) SetUserActive(userID uint, active bool) (*model.User, error) {
	user, err := s.findUser(userID)
	if err != nil {
		return nil, err
	}
	user.IsActive = active
	if err := s.userRepo.Update(user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *adminService) SetUserRole(userID uint, role string) (*model.User, error) {
	if role != model.RoleCustomer && role != model.RoleAdmin {
		return nil, fmt.Errorf("unknown role: %s", role)
	}
	user, err := s.findUser(userID)
	if err != nil {
		return nil, err
	}
	user.Role = role
	if err := s.userRepo.Update(user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetSalesReport 生成最近 N 天的销售报表。
func (s *adminService) GetSalesReport(days int) (*SalesReport, error) {
	if days <= 0 || days > 365 {
		days = 30
	}

	report := &SalesReport{}
	var err error
	if report.SalesByDay, err = s.orderRepo.SalesByDay(days); err != nil {
		return nil, err
	}
	if report.TopProducts, err = s.orderRepo.TopProducts(10); err != nil {
		return nil, err
	}
	if report.LowStock, err = s.productRepo.FindLowStock(); err != nil {
		return nil, err
	}
	return report, nil
}

// TestChat 处理管理端的 AI 测试会话：按 testType 选用固定场景设定，
// 不携带历史上下文，完整对话以 admin_test_ 前缀的会话类型落库。
func (s *adminService) TestChat(ctx context.Context, adminID uint, message, testType string) (*AdminTestResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	preamble, ok := adminTestPreambles[testType]
	if !ok {
		testType = "general"
		preamble = adminTestPreambles["general"]
	}

	chatType := model.ChatTypeAdminTestPrefix + testType
	sessionID := fmt.Sprintf("admin-%d-%s", adminID, time.Now().Format("20060102"))

	if err := s.chatRepo.SaveMessage(&model.AiChatMessage{
		UserID:      adminID,
		SessionID:   sessionID,
		MessageType: model.MessageTypeUser,
		MessageText: message,
		ChatType:    chatType,
	}); err != nil {
		return nil, err
	}

	start := time.Now()
	reply, err := s.llmClient.GenerateContent(ctx, preamble+message)
	if err != nil {
		return nil, err
	}
	responseTime := int(time.Since(start).Milliseconds())

	if err := s.chatRepo.SaveMessage(&model.AiChatMessage{
		UserID:         adminID,
		SessionID:      sessionID,
		MessageType:    model.MessageTypeAssistant,
		MessageText:    reply,
		ChatType:       chatType,
		ResponseTimeMs: &responseTime,
	}); err != nil {
		return nil, err
	}

	log.Infow("管理端 AI 测试",
		"admin", adminID,
		"testType", testType,
		"queryLength", len(message),
		"responseLength", len(reply),
	)

	return &AdminTestResult{
		Message:   reply,
		TestType:  testType,
		AdminID:   adminID,
		Timestamp: time.Now(),
	}, nil
}

// GetAiAnalytics 汇总最近 N 天的 AI 聊天使用情况。
func (s *adminService) GetAiAnalytics(days int) (*AiAnalytics, error) {
	if days <= 0 || days > 365 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days)

	analytics := &AiAnalytics{}
	var err error
	if analytics.DailyUsage, err = s.chatRepo.DailyUsageSince(since); err != nil {
		return nil, err
	}
	if analytics.UsageByType, err = s.chatRepo.UsageByChatType(since); err != nil {
		return nil, err
	}
	if analytics.PopularQueries, err = s.chatRepo.PopularQueries(since, 10); err != nil {
		return nil, err
	}

	// UniqueUsers 跨天去重无法从日聚合还原，取区间内单日峰值
	for _, day := range analytics.DailyUsage {
		analytics.TotalMessages += day.TotalMessages
		if day.UniqueUsers > analytics.UniqueUsers {
			analytics.UniqueUsers = day.UniqueUsers
		}
	}
	return analytics, nil
}

// ClearChatHistory 按目标清理聊天记录：指定用户、指定会话或全量。
func (s *adminService) ClearChatHistory(userID uint, sessionID string, clearAll bool) (int64, error) {
	switch {
	case userID > 0:
		return s.chatRepo.ClearByUser(userID, sessionID)
	case sessionID != "":
		return s.chatRepo.ClearBySession(sessionID)
	case clearAll:
		return s.chatRepo.ClearAll()
	default:
		return 0, ErrInvalidClearTarget
	}
}

func (s *adminService) findUser(userID uint) (*model.User, error) {
	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}
