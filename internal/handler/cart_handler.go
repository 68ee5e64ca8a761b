// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"daily-grocer-go/internal/service"
)

// CartHandler 负责处理购物车相关的 API 请求。
type CartHandler struct {
	cartService service.CartService
}

// NewCartHandler 创建一个新的 CartHandler 实例。
func NewCartHandler(cartService service.CartService) *CartHandler {
	return &CartHandler{cartService: cartService}
}

// Get 返回当前用户的购物车。
func (h *CartHandler) Get(c *gin.Context) {
	user := currentUser(c)
	summary, err := h.cartService.GetCart(user.ID)
	if err != nil {
		Fail(c, http.StatusInternalServerError, "Failed to load cart")
		return
	}
	Success(c, http.StatusOK, summary)
}

// AddItemRequest 定义了加购 API 的请求体结构。
type AddItemRequest struct {
	ProductID uint `json:"productId" binding:"required"`
	Quantity  int  `json:"quantity"`
}

// AddItem 向购物车添加商品。
func (h *CartHandler) AddItem(c *gin.Context) {
	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, "Product id is required")
		return
	}

	user := currentUser(c)
	summary, err := h.cartService.AddItem(user.ID, req.ProductID, req.Quantity)
	if err != nil {
		h.failCart(c, err)
		return
	}
	Success(c, http.StatusOK, summary)
}

// UpdateItemRequest 定义了修改数量 API 的请求体结构。
type UpdateItemRequest struct {
	Quantity int `json:"quantity"`
}

// UpdateItem 修改购物车条目的数量。
func (h *CartHandler) UpdateItem(c *gin.Context) {
	itemID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		Fail(c, http.StatusBadRequest, "Invalid cart item id")
		return
	}

	var req UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Quantity < 0 {
		Fail(c, http.StatusBadRequest, "Quantity must be a non-negative integer")
		return
	}

	user := currentUser(c)
	summary, err := h.cartService.UpdateItem(user.ID, uint(itemID), req.Quantity)
	if err != nil {
		h.failCart(c, err)
		return
	}
	Success(c, http.StatusOK, summary)
}

// RemoveItem 从购物车移除一个条目。
func (h *CartHandler) RemoveItem(c *gin.Context) {
	itemID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		Fail(c, http.StatusBadRequest, "Invalid cart item id")
		return
	}

	user := currentUser(c)
	summary, err := h.cartService.RemoveItem(user.ID, uint(itemID))
	if err != nil {
		h.failCart(c, err)
		return
	}
	Success(c, http.StatusOK, summary)
}

// Clear 清空当前用户的购物车。
func (h *CartHandler) Clear(c *gin.Context) {
	user := currentUser(c)
	if err := h.cartService.Clear(user.ID); err != nil {
		Fail(c, http.StatusInternalServerError, "Failed to clear cart")
		return
	}
	Success(c, http.StatusOK, gin.H{"cleared": true})
}

func (h *CartHandler) failCart(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrProductNotFound):
		Fail(c, http.StatusNotFound, "Product not found")
	case errors.Is(err, service.ErrCartItemNotFound):
		Fail(c, http.StatusNotFound, "Cart item not found")
	case errors.Is(err, service.ErrInsufficientStock):
		Fail(c, http.StatusBadRequest, "Insufficient stock for product")
	case errors.Is(err, service.ErrExceedsMaxOrder):
		Fail(c, http.StatusBadRequest, "Quantity exceeds max order limit for product")
	default:
		Fail(c, http.StatusInternalServerError, "Cart operation failed")
	}
}
