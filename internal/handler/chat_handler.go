// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"daily-grocer-go/internal/model"
	"daily-grocer-go/internal/service"
	"daily-grocer-go/pkg/llm"
	"daily-grocer-go/pkg/log"
	"daily-grocer-go/pkg/token"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责处理 AI 聊天相关的 REST 与 WebSocket 请求。
type ChatHandler struct {
	chatService   service.ChatService
	userService   service.UserService
	jwtManager    *token.JWTManager
	stopToken     string
	stopTokenLock sync.Mutex
	// 每连接停止标志
	stopFlags sync.Map // key: conn pointer string, value: bool
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, userService service.UserService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		userService: userService,
		jwtManager:  jwtManager,
	}
}

// ChatRequest 定义了同步聊天 API 的请求体结构。
type ChatRequest struct {
	Message             string           `json:"message"`
	ConversationHistory []model.ChatTurn `json:"conversationHistory"`
	SessionID           string           `json:"sessionId"`
	ChatType            string           `json:"chatType"`
}

// Chat 处理一次同步聊天请求。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, "Message is required and must be a non-empty string")
		return
	}

	user := currentUser(c)
	result, err := h.chatService.SendMessage(c.Request.Context(), user.ID, req.Message, req.ConversationHistory, req.SessionID, req.ChatType)
	if err != nil {
		failChat(c, err)
		return
	}
	Success(c, http.StatusOK, result)
}

// failChat 将聊天错误翻译为统一信封，凭证细节绝不回传给客户端。
func failChat(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyMessage):
		Fail(c, http.StatusBadRequest, "Message is required and must be a non-empty string")
	case errors.Is(err, llm.ErrMissingAPIKey):
		log.Error("AI Chat: provider api key is not configured", err)
		Fail(c, http.StatusInternalServerError, "AI service is currently unavailable")
	case errors.Is(err, llm.ErrAuth):
		log.Error("AI Chat: provider rejected credentials", err)
		Fail(c, http.StatusInternalServerError, "AI service configuration error")
	case errors.Is(err, llm.ErrQuota):
		Fail(c, http.StatusTooManyRequests, "AI service is temporarily busy, please try again shortly")
	default:
		log.Error("AI Chat: request failed", err)
		Fail(c, http.StatusInternalServerError, "Sorry, I'm having trouble processing your request right now. Please try again in a moment.")
	}
}

// History 返回当前用户的聊天记录，最新在前。
func (h *ChatHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	sessionID := c.Query("sessionId")

	user := currentUser(c)
	messages, err := h.chatService.GetHistory(user.ID, sessionID, limit)
	if err != nil {
		Fail(c, http.StatusInternalServerError, "Failed to fetch chat history")
		return
	}
	Success(c, http.StatusOK, gin.H{"messages": messages})
}

// Sessions 返回当前用户的会话摘要列表。
func (h *ChatHandler) Sessions(c *gin.Context) {
	user := currentUser(c)
	sessions, err := h.chatService.GetSessions(user.ID)
	if err != nil {
		Fail(c, http.StatusInternalServerError, "Failed to fetch chat sessions")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	Success(c, http.StatusOK, gin.H{"sessions": sessions})
}

// ClearHistory 删除当前用户的聊天记录，带 sessionId 时仅删该会话。
func (h *ChatHandler) ClearHistory(c *gin.Context) {
	user := currentUser(c)
	deleted, err := h.chatService.ClearHistory(c.Request.Context(), user.ID, c.Query("sessionId"))
	if err != nil {
		Fail(c, http.StatusInternalServerError, "Failed to clear chat history")
		return
	}
	Success(c, http.StatusOK, gin.H{"deletedCount": deleted})
}

// Recommendations 基于购买历史生成商品推荐。
func (h *ChatHandler) Recommendations(c *gin.Context) {
	user := currentUser(c)
	result, err := h.chatService.GetRecommendations(c.Request.Context(), user.ID)
	if err != nil {
		log.Error("AI Recommendations: request failed", err)
		Fail(c, http.StatusInternalServerError, "Failed to generate recommendations")
		return
	}
	Success(c, http.StatusOK, result)
}

// Health 返回 AI 服务的运行状态。
func (h *ChatHandler) Health(c *gin.Context) {
	Success(c, http.StatusOK, gin.H{
		"service":   "GrocerAI Chat Assistant",
		"status":    "operational",
		"timestamp": time.Now(),
	})
}

// GetWebsocketStopToken 返回一个可用于停止流式响应的令牌。
func (h *ChatHandler) GetWebsocketStopToken(c *gin.Context) {
	h.stopTokenLock.Lock()
	defer h.stopTokenLock.Unlock()
	// 在多实例部署中应生成并存储在 Redis，这里使用单一轮换令牌
	h.stopToken = "WSS_STOP_CMD_" + token.GenerateRandomString(16)
	Success(c, http.StatusOK, gin.H{"cmdToken": h.stopToken})
}

// streamPayload 是 WebSocket 聊天消息的结构。
type streamPayload struct {
	Type                string           `json:"type"`
	Message             string           `json:"message"`
	ConversationHistory []model.ChatTurn `json:"conversationHistory"`
	SessionID           string           `json:"sessionId"`
	ChatType            string           `json:"chatType"`
	CmdToken            string           `json:"_internal_cmd_token"`
}

// HandleStream 处理一个传入的 WebSocket 聊天连接。
// 路径上的 token 用于认证，每条消息触发一次流式生成。
func (h *ChatHandler) HandleStream(c *gin.Context) {
	tokenString := c.Param("token")
	claims, err := h.jwtManager.VerifyToken(tokenString)
	if err != nil {
		Fail(c, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	user, err := h.userService.GetProfile(claims.UserID)
	if err != nil {
		Fail(c, http.StatusUnauthorized, "User not found")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，用户: %d", user.ID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		var payload streamPayload
		if err := json.Unmarshal(message, &payload); err != nil {
			h.writeError(conn, "Message is required and must be a non-empty string")
			continue
		}

		// 停止指令: {"type":"stop","_internal_cmd_token":"..."}
		if payload.Type == "stop" {
			h.stopTokenLock.Lock()
			valid := payload.CmdToken != "" && payload.CmdToken == h.stopToken
			h.stopTokenLock.Unlock()
			if valid {
				h.stopFlags.Store(connKey(conn), true)
				resp := map[string]interface{}{
					"type":      "stop",
					"timestamp": time.Now().UnixMilli(),
				}
				b, _ := json.Marshal(resp)
				_ = conn.WriteMessage(websocket.TextMessage, b)
			}
			continue
		}

		shouldStop := func() bool {
			v, ok := h.stopFlags.Load(connKey(conn))
			return ok && v.(bool)
		}
		h.stopFlags.Delete(connKey(conn))

		err = h.chatService.StreamMessage(c.Request.Context(), user.ID, payload.Message,
			payload.ConversationHistory, payload.SessionID, payload.ChatType, conn, shouldStop)
		if err != nil {
			log.Errorf("处理流式响应失败: %v", err)
			h.writeError(conn, "Sorry, I'm having trouble processing your request right now. Please try again in a moment.")
		}
	}

	h.stopFlags.Delete(connKey(conn))
}

func (h *ChatHandler) writeError(conn *websocket.Conn, message string) {
	resp := map[string]interface{}{"type": "error", "error": message}
	b, _ := json.Marshal(resp)
	_ = conn.WriteMessage(websocket.TextMessage, b)
}

func connKey(conn *websocket.Conn) string {
	return fmt.Sprintf("%p", conn)
}
