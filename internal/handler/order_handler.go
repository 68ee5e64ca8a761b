// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"daily-grocer-go/internal/service"
	"daily-grocer-go/pkg/log"
)

// OrderHandler 负责处理订单相关的 API 请求。
type OrderHandler struct {
	orderService service.OrderService
}

// NewOrderHandler 创建一个新的 OrderHandler 实例。
func NewOrderHandler(orderService service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

// CheckoutRequest 定义了下单 API 的请求体结构。
type CheckoutRequest struct {
	DeliveryAddress string `json:"deliveryAddress" binding:"required"`
	PaymentMethod   string `json:"paymentMethod"`
	Notes           string `json:"notes"`
}

// Checkout 将当前购物车转为订单。
func (h *OrderHandler) Checkout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, "Delivery address is required")
		return
	}

	user := currentUser(c)
	order, err := h.orderService.Checkout(user.ID, req.DeliveryAddress, req.PaymentMethod, req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyCart):
			Fail(c, http.StatusBadRequest, "Cart is empty")
		case errors.Is(err, service.ErrInsufficientStock):
			Fail(c, http.StatusConflict, "One or more items are out of stock")
		default:
			log.Error("Checkout: failed to create order", err)
			Fail(c, http.StatusInternalServerError, "Failed to create order")
		}
		return
	}
	Success(c, http.StatusCreated, gin.H{"order": order})
}

// List 返回当前用户的订单列表。
func (h *OrderHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}

	user := currentUser(c)
	orders, total, err := h.orderService.ListByUser(user.ID, (page-1)*limit, limit)
	if err != nil {
		Fail(c, http.StatusInternalServerError, "Failed to load orders")
		return
	}
	Success(c, http.StatusOK, gin.H{
		"orders": orders,
		"total":  total,
		"page":   page,
	})
}

// Get 返回当前用户的单个订单详情。
func (h *OrderHandler) Get(c *gin.Context) {
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		Fail(c, http.StatusBadRequest, "Invalid order id")
		return
	}

	user := currentUser(c)
	order, err := h.orderService.GetForUser(user.ID, uint(orderID))
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			Fail(c, http.StatusNotFound, "Order not found")
			return
		}
		Fail(c, http.StatusInternalServerError, "Failed to load order")
		return
	}
	Success(c, http.StatusOK, gin.H{"order": order})
}

// Cancel 取消当前用户的订单。
func (h *OrderHandler) Cancel(c *gin.Context) {
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		Fail(c, http.StatusBadRequest, "Invalid order id")
		return
	}

	user := currentUser(c)
	order, err := h.orderService.Cancel(user.ID, uint(orderID))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			Fail(c, http.StatusNotFound, "Order not found")
		case errors.Is(err, service.ErrOrderNotCancelable):
			Fail(c, http.StatusConflict, "Order can no longer be cancelled")
		default:
			Fail(c, http.StatusInternalServerError, "Failed to cancel order")
		}
		return
	}
	Success(c, http.StatusOK, gin.H{"order": order})
}
