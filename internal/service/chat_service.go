// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"daily-grocer-go/internal/model"
	"daily-grocer-go/internal/repository"
	"daily-grocer-go/pkg/kafka"
	"daily-grocer-go/pkg/llm"
	"daily-grocer-go/pkg/log"
	"daily-grocer-go/pkg/tasks"
)

// ErrEmptyMessage 表示消息为空或仅含空白字符。
var ErrEmptyMessage = errors.New("message is required and must be a non-empty string")

// 拼接模型上下文时最多携带的历史条数，更早的发言直接丢弃。
const maxHistoryTurns = 10

// 顾客聊天的固定角色设定。
const shoppingAssistantPreamble = `You are GrocerAI, a helpful and friendly AI assistant for a grocery shopping platform called GrocerAI. Your role is to help users with:

1. Meal planning and recipe suggestions
2. Grocery shopping advice and product recommendations
3. Nutritional information and dietary guidance
4. Cooking tips and ingredient substitutions
5. Budget-friendly shopping strategies
6. Seasonal produce recommendations
7. Food storage and preservation tips

Please be helpful, concise, and focus on grocery and food-related topics. If users ask about non-food topics, politely redirect them back to grocery and cooking assistance.

Previous conversation:
`

// ChatResult 是一次同步聊天的返回内容。
type ChatResult struct {
	Message        string    `json:"message"`
	SessionID      string    `json:"sessionId"`
	ChatType       string    `json:"chatType"`
	ResponseTimeMs int       `json:"responseTime"`
	Timestamp      time.Time `json:"timestamp"`
}

// RecommendationResult 是一次推荐请求的返回内容。
type RecommendationResult struct {
	Recommendations  []model.RecommendedProduct `json:"recommendations"`
	ResponseTimeMs   int                        `json:"responseTime"`
	RecommendationID uint                       `json:"recommendationId"`
	SavedAt          time.Time                  `json:"savedAt"`
}

// ChatService 定义了对话管理的业务操作。
type ChatService interface {
	SendMessage(ctx context.Context, userID uint, message string, history []model.ChatTurn, sessionID, chatType string) (*ChatResult, error)
	StreamMessage(ctx context.Context, userID uint, message string, history []model.ChatTurn, sessionID, chatType string, ws *websocket.Conn, shouldStop func() bool) error
	GetHistory(userID uint, sessionID string, limit int) ([]model.AiChatMessage, error)
	GetSessions(userID uint) ([]model.ChatSession, error)
	ClearHistory(ctx context.Context, userID uint, sessionID string) (int64, error)
	GetRecommendations(ctx context.Context, userID uint) (*RecommendationResult, error)
}

type chatService struct {
	chatRepo    repository.ChatRepository
	sessionRepo repository.SessionRepository
	orderRepo   repository.OrderRepository
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	llmClient   llm.Client
}

// NewChatService 创建一个新的 ChatService 实例。
// sessionRepo 可为 nil，此时不维护最近会话标记。
func NewChatService(
	chatRepo repository.ChatRepository,
	sessionRepo repository.SessionRepository,
	orderRepo repository.OrderRepository,
	cartRepo repository.CartRepository,
	productRepo repository.ProductRepository,
	llmClient llm.Client,
) ChatService {
	return &chatService{
		chatRepo:    chatRepo,
		sessionRepo: sessionRepo,
		orderRepo:   orderRepo,
		cartRepo:    cartRepo,
		productRepo: productRepo,
		llmClient:   llmClient,
	}
}

// SendMessage 处理一次同步聊天：
// 确定会话 → 先落库用户发言 → 拼接上下文调用模型 → 落库助手回复。
// 模型调用失败时用户发言不回滚，会话中允许存在无回复的单侧发言。
func (s *chatService) SendMessage(ctx context.Context, userID uint, message string, history []model.ChatTurn, sessionID, chatType string) (*ChatResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if chatType == "" {
		chatType = model.ChatTypeGeneral
	}

	sessionID = s.resolveSession(ctx, userID, sessionID)

	if err := s.chatRepo.SaveMessage(&model.AiChatMessage{
		UserID:      userID,
		SessionID:   sessionID,
		MessageType: model.MessageTypeUser,
		MessageText: message,
		ChatType:    chatType,
	}); err != nil {
		return nil, err
	}
	s.publishEvent(userID, sessionID, chatType, model.MessageTypeUser, 0)

	prompt := buildChatPrompt(history, message)

	start := time.Now()
	reply, err := s.llmClient.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, err
	}
	responseTime := int(time.Since(start).Milliseconds())

	if err := s.chatRepo.SaveMessage(&model.AiChatMessage{
		UserID:         userID,
		SessionID:      sessionID,
		MessageType:    model.MessageTypeAssistant,
		MessageText:    reply,
		ChatType:       chatType,
		ResponseTimeMs: &responseTime,
	}); err != nil {
		return nil, err
	}
	s.publishEvent(userID, sessionID, chatType, model.MessageTypeAssistant, responseTime)

	return &ChatResult{
		Message:        reply,
		SessionID:      sessionID,
		ChatType:       chatType,
		ResponseTimeMs: responseTime,
		Timestamp:      time.Now(),
	}, nil
}

// StreamMessage 是 SendMessage 的流式变体，分块通过 WebSocket 下发，
// 完整回复仍在结束后整体落库。
func (s *chatService) StreamMessage(ctx context.Context, userID uint, message string, history []model.ChatTurn, sessionID, chatType string, ws *websocket.Conn, shouldStop func() bool) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return ErrEmptyMessage
	}
	if chatType == "" {
		chatType = model.ChatTypeGeneral
	}

	sessionID = s.resolveSession(ctx, userID, sessionID)

	if err := s.chatRepo.SaveMessage(&model.AiChatMessage{
		UserID:      userID,
		SessionID:   sessionID,
		MessageType: model.MessageTypeUser,
		MessageText: message,
		ChatType:    chatType,
	}); err != nil {
		return err
	}
	s.publishEvent(userID, sessionID, chatType, model.MessageTypeUser, 0)

	prompt := buildChatPrompt(history, message)

	answerBuilder := &strings.Builder{}
	interceptor := &wsWriterInterceptor{conn: ws, writer: answerBuilder, shouldStop: shouldStop}

	start := time.Now()
	if err := s.llmClient.StreamGenerateContent(ctx, prompt, interceptor); err != nil {
		return err
	}
	responseTime := int(time.Since(start).Milliseconds())

	sendCompletion(ws, sessionID)

	fullAnswer := answerBuilder.String()
	if len(fullAnswer) > 0 {
		// 使用后台上下文，即使连接已断开也要保住已生成的回复
		if err := s.chatRepo.SaveMessage(&model.AiChatMessage{
			UserID:         userID,
			SessionID:      sessionID,
			MessageType:    model.MessageTypeAssistant,
			MessageText:    fullAnswer,
			ChatType:       chatType,
			ResponseTimeMs: &responseTime,
		}); err != nil {
			log.Errorf("保存流式回复失败: %v", err)
		}
		s.publishEvent(userID, sessionID, chatType, model.MessageTypeAssistant, responseTime)
	}
	return nil
}

// GetHistory 返回用户的聊天记录，最新在前。
func (s *chatService) GetHistory(userID uint, sessionID string, limit int) ([]model.AiChatMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.chatRepo.HistoryByUser(userID, sessionID, limit)
}

// GetSessions 返回用户的会话摘要列表。
func (s *chatService) GetSessions(userID uint) ([]model.ChatSession, error) {
	return s.chatRepo.SessionsByUser(userID)
}

// ClearHistory 删除用户的聊天记录并清除最近会话标记，返回删除条数。
func (s *chatService) ClearHistory(ctx context.Context, userID uint, sessionID string) (int64, error) {
	deleted, err := s.chatRepo.ClearByUser(userID, sessionID)
	if err != nil {
		return 0, err
	}
	if s.sessionRepo != nil {
		if err := s.sessionRepo.ClearCurrentSession(ctx, userID); err != nil {
			log.Warnf("清除会话指针失败: user=%d, %v", userID, err)
		}
	}
	return deleted, nil
}

// GetRecommendations 基于购买历史与购物车生成 3-4 个商品推荐。
// 模型输出解析失败时回退到候选池随机抽样，结果总是落库。
func (s *chatService) GetRecommendations(ctx context.Context, userID uint) (*RecommendationResult, error) {
	start := time.Now()

	purchasedIDs, err := s.orderRepo.PurchasedProductIDs(userID)
	if err != nil {
		return nil, err
	}
	cartItems, err := s.cartRepo.FindByUser(userID)
	if err != nil {
		return nil, err
	}

	excludeIDs := make([]uint, 0, len(purchasedIDs)+len(cartItems))
	excludeIDs = append(excludeIDs, purchasedIDs...)
	for _, item := range cartItems {
		excludeIDs = append(excludeIDs, item.ProductID)
	}

	candidates, err := s.productRepo.FindCandidatesExcluding(excludeIDs, 20)
	if err != nil {
		return nil, err
	}

	var recommendations []model.RecommendedProduct
	if len(candidates) > 0 {
		recommendations = s.askForRecommendations(ctx, userID, purchasedIDs, cartItems, candidates)
		if len(recommendations) == 0 {
			recommendations = sampleFallback(candidates)
		}
	} else {
		recommendations = []model.RecommendedProduct{}
	}

	recBytes, err := json.Marshal(recommendations)
	if err != nil {
		return nil, err
	}
	record := &model.AiRecommendation{
		UserID:              userID,
		RecommendationType:  "product",
		RecommendationsJSON: string(recBytes),
	}
	if err := s.chatRepo.SaveRecommendation(record); err != nil {
		return nil, err
	}

	return &RecommendationResult{
		Recommendations:  recommendations,
		ResponseTimeMs:   int(time.Since(start).Milliseconds()),
		RecommendationID: record.ID,
		SavedAt:          record.CreatedAt,
	}, nil
}

// askForRecommendations 调用模型并严格解析 JSON 数组，任何失败返回空让调用方回退。
func (s *chatService) askForRecommendations(ctx context.Context, userID uint, purchasedIDs []uint, cartItems []model.CartItem, candidates []model.Product) []model.RecommendedProduct {
	purchased, err := s.productRepo.FindByIDs(purchasedIDs)
	if err != nil {
		log.Warnf("查询购买历史商品失败: user=%d, %v", userID, err)
	}

	prompt := buildRecommendationPrompt(purchased, cartItems, candidates)

	raw, err := s.llmClient.GenerateContent(ctx, prompt)
	if err != nil {
		log.Warnf("生成推荐失败，回退到随机抽样: user=%d, %v", userID, err)
		return nil
	}

	return parseRecommendations(raw)
}

// resolveSession 确定本次请求的会话：调用方给定则沿用（不校验是否出现过，
// 任意新 id 会静默开启空会话），缺省时每次生成全新 UUID 会话。
// 解析结果写入最近会话指针，仅作运营侧标记，不参与解析。
func (s *chatService) resolveSession(ctx context.Context, userID uint, sessionID string) string {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	if s.sessionRepo != nil {
		if err := s.sessionRepo.SetCurrentSession(ctx, userID, sessionID); err != nil {
			log.Warnf("更新会话指针失败: user=%d, %v", userID, err)
		}
	}
	return sessionID
}

func (s *chatService) publishEvent(userID uint, sessionID, chatType, role string, responseTimeMs int) {
	err := kafka.ProduceChatEvent(tasks.ChatInteractionEvent{
		UserID:         userID,
		SessionID:      sessionID,
		ChatType:       chatType,
		Role:           role,
		ResponseTimeMs: responseTimeMs,
		OccurredAt:     time.Now(),
	})
	if err != nil {
		log.Warnf("发送聊天事件失败: user=%d session=%s, %v", userID, sessionID, err)
	}
}

// buildChatPrompt 拼接模型上下文：固定角色设定 + 客户端回传的最近 10 条历史
// + 本次用户发言与助手续写提示。历史以客户端视角为准，不回查数据库。
func buildChatPrompt(history []model.ChatTurn, message string) string {
	var b strings.Builder
	b.WriteString(shoppingAssistantPreamble)

	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	for _, turn := range history {
		label := "GrocerAI"
		if turn.Role == model.MessageTypeUser {
			label = "User"
		}
		b.WriteString(fmt.Sprintf("%s: %s\n", label, turn.Content))
	}

	b.WriteString(fmt.Sprintf("User: %s\nGrocerAI: ", message))
	return b.String()
}

// buildRecommendationPrompt 构造推荐用提示词，要求模型只输出 JSON 数组。
func buildRecommendationPrompt(purchased []model.Product, cartItems []model.CartItem, candidates []model.Product) string {
	purchasedText := "None"
	if len(purchased) > 0 {
		names := make([]string, 0, len(purchased))
		for _, p := range purchased {
			names = append(names, p.Name)
		}
		purchasedText = strings.Join(names, ", ")
	}

	cartText := "None"
	if len(cartItems) > 0 {
		names := make([]string, 0, len(cartItems))
		for _, item := range cartItems {
			if item.Product != nil {
				names = append(names, item.Product.Name)
			}
		}
		if len(names) > 0 {
			cartText = strings.Join(names, ", ")
		}
	}

	candidateNames := make([]string, 0, len(candidates))
	for _, p := range candidates {
		candidateNames = append(candidateNames, p.Name)
	}

	return fmt.Sprintf(`You are an AI shopping assistant for GrocerAI. Based on the user's shopping data, recommend 3-4 products they might want to buy.

User's Recent Purchase History: %s

Current Cart Items: %s

Available Products to Choose From: %s

Please recommend 3-4 products from the available list that would complement their shopping pattern. Consider:
- Items that pair well with their recent purchases
- Products that complete meals or recipes
- Seasonal or complementary items
- Different categories for variety

Respond ONLY with a JSON array in this exact format (no other text):
[
  {"name": "Product Name", "reason": "Brief reason why this product fits their shopping pattern"},
  {"name": "Product Name", "reason": "Brief reason why this product fits their shopping pattern"}
]

Make sure product names exactly match those from the available products list.`,
		purchasedText, cartText, strings.Join(candidateNames, ", "))
}

// parseRecommendations 严格解析模型输出。剥掉 Markdown 代码块围栏后按
// JSON 数组解析，过滤掉缺字段的条目并截断到 4 条，失败时返回空。
func parseRecommendations(raw string) []model.RecommendedProduct {
	clean := strings.ReplaceAll(raw, "```json", "")
	clean = strings.ReplaceAll(clean, "```", "")
	clean = strings.TrimSpace(clean)

	var parsed []model.RecommendedProduct
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		log.Warnf("解析推荐结果失败: %v", err)
		return nil
	}

	valid := make([]model.RecommendedProduct, 0, len(parsed))
	for _, rec := range parsed {
		if strings.TrimSpace(rec.Name) == "" || strings.TrimSpace(rec.Reason) == "" {
			continue
		}
		valid = append(valid, rec)
		if len(valid) == 4 {
			break
		}
	}
	return valid
}

// sampleFallback 从候选池随机抽取至多 4 个商品，配以模板化理由。
func sampleFallback(candidates []model.Product) []model.RecommendedProduct {
	shuffled := make([]model.Product, len(candidates))
	copy(shuffled, candidates)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	n := 4
	if len(shuffled) < n {
		n = len(shuffled)
	}

	recs := make([]model.RecommendedProduct, 0, n)
	for _, p := range shuffled[:n] {
		categoryName := "grocery"
		if p.Category != nil {
			categoryName = p.Category.Name
		}
		recs = append(recs, model.RecommendedProduct{
			Name:   p.Name,
			Reason: fmt.Sprintf("Popular %s item you might enjoy", categoryName),
		})
	}
	return recs
}

type wsWriterInterceptor struct {
	conn       *websocket.Conn
	writer     *strings.Builder
	shouldStop func() bool
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	if w.shouldStop != nil && w.shouldStop() {
		// 停止标志生效：跳过下发
		return nil
	}
	w.writer.Write(data)
	// 将原始分块包装成 {"chunk":"..."}
	payload := map[string]string{"chunk": string(data)}
	b, _ := json.Marshal(payload)
	return w.conn.WriteMessage(messageType, b)
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(ws *websocket.Conn, sessionID string) {
	notif := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"sessionId": sessionID,
		"timestamp": time.Now().UnixMilli(),
	}
	b, _ := json.Marshal(notif)
	_ = ws.WriteMessage(websocket.TextMessage, b)
}
