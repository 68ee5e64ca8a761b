// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"daily-grocer-go/internal/service"
	"daily-grocer-go/pkg/log"
)

// AuthHandler 负责处理注册、登录与令牌刷新请求。
type AuthHandler struct {
	userService service.UserService
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(userService service.UserService) *AuthHandler {
	return &AuthHandler{userService: userService}
}

// RegisterRequest 定义了用户注册 API 的请求体结构。
type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// Register 处理用户注册请求。
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Register: Invalid request payload, error: %v", err)
		Fail(c, http.StatusBadRequest, "Name, email and password (min 6 characters) are required")
		return
	}

	user, err := h.userService.Register(req.Name, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			Fail(c, http.StatusConflict, "Email is already registered")
			return
		}
		log.Error("Register: failed to create user", err)
		Fail(c, http.StatusInternalServerError, "Registration failed")
		return
	}

	log.Infof("User '%s' registered successfully", user.Email)
	Success(c, http.StatusCreated, gin.H{"user": user})
}

// LoginRequest 定义了用户登录 API 的请求体结构。
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login 处理用户登录请求。
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Login: Invalid request payload, error: %v", err)
		Fail(c, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, accessToken, refreshToken, err := h.userService.Login(req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			Fail(c, http.StatusUnauthorized, "Invalid email or password")
		case errors.Is(err, service.ErrAccountDisabled):
			Fail(c, http.StatusForbidden, "Account is disabled")
		default:
			log.Error("Login: unexpected failure", err)
			Fail(c, http.StatusInternalServerError, "Login failed")
		}
		return
	}

	Success(c, http.StatusOK, gin.H{
		"user":         user,
		"token":        accessToken,
		"refreshToken": refreshToken,
	})
}

// RefreshRequest 定义了令牌刷新 API 的请求体结构。
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// Refresh 处理令牌刷新请求。
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, "Refresh token is required")
		return
	}

	accessToken, refreshToken, err := h.userService.RefreshToken(req.RefreshToken)
	if err != nil {
		Fail(c, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	}

	Success(c, http.StatusOK, gin.H{
		"token":        accessToken,
		"refreshToken": refreshToken,
	})
}

// Profile 返回当前登录用户的资料。
func (h *AuthHandler) Profile(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		Fail(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	Success(c, http.StatusOK, gin.H{"user": user})
}

// UpdateProfileRequest 定义了资料更新 API 的请求体结构。
type UpdateProfileRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// UpdateProfile 更新当前登录用户的联系信息。
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		Fail(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	updated, err := h.userService.UpdateProfile(user.ID, req.Name, req.Phone, req.Address)
	if err != nil {
		log.Error("UpdateProfile: failed", err)
		Fail(c, http.StatusInternalServerError, "Failed to update profile")
		return
	}
	Success(c, http.StatusOK, gin.H{"user": updated})
}
