// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"daily-grocer-go/internal/model"
	"daily-grocer-go/internal/repository"
	"daily-grocer-go/internal/service"
	"daily-grocer-go/pkg/log"
)

// AdminHandler 负责处理后台管理相关的 API 请求。
type AdminHandler struct {
	adminService    service.AdminService
	productService  service.ProductService
	categoryService service.CategoryService
	orderService    service.OrderService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(
	adminService service.AdminService,
	productService service.ProductService,
	categoryService service.CategoryService,
	orderService service.OrderService,
) *AdminHandler {
	return &AdminHandler{
		adminService:    adminService,
		productService:  productService,
		categoryService: categoryService,
		orderService:    orderService,
	}
}

// Dashboard 返回后台首页统计。
func (h *AdminHandler) Dashboard(c *gin.Context) {
	stats, err := h.adminService.GetDashboardStats()
	if err != nil {
		log.Error("Dashboard: failed to collect stats", err)
		Fail(c, http.StatusInternalServerError, "Failed to load dashboard stats")
		return
	}
	Success(c, http.StatusOK, stats)
}

// ListUsers 返回用户列表。
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}

	users, total, err := h.adminService.ListUsers((page-1)*limit, limit)
	if err != nil {
		Fail(c, http.StatusInternalServerError, "Failed to load users")
		return
	}
	Success(c, http.StatusOK, gin.H{"users": users, "total": total, "page": page})
}

// UpdateUserRequest 定义了用户管理 API 的请求体结构。
type UpdateUserRequest struct {
	IsActive *bool  `json:"isActive"`
	Role     string `json:"role"`
}

// UpdateUser 调整用户的启用状态或角色。
func (h *AdminHandler) UpdateUser(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		Fail(c, http.StatusBadRequest, "Invalid user id")
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	var user *model.User
	if req.IsActive != nil {
		if user, err = h.adminService.SetUserActive(uint(userID), *req.IsActive); err != nil {
			h.failUser(c, err)
			return
		}
	}
	if req.Role != "" {
		if user, err = h.adminService.SetUserRole(uint(userID), req.Role); err != nil {
			h.failUser(c, err)
			return
		}
	}
	if user == nil {
		Fail(c, http.StatusBadRequest, "Nothing to update")
		return
	}
	Success(c, http.StatusOK, gin.H{"user": user})
}

func (h *AdminHandler) failUser(c *gin.Context, err error) {
	if errors.Is(err, service.ErrUserNotFound) {
		Fail(c, http.StatusNotFound, "User not found")
		return
	}
	Fail(c, http.StatusBadRequest, err.Error())
}

// ListProducts 返回含下架商品在内的完整商品列表。
func (h *AdminHandler) ListProducts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}

	products, total, err := h.productService.List(repositoryFilter(c, page, limit))
	if err != nil {
		Fail(c, http.StatusInternalServerError, "Failed to load products")
		return
	}
	Success(c, http.StatusOK, gin.H{"products": products, "total": total, "page": page})
}

// CreateProductRequest 定义了商品创建 API 的请求体结构。
type CreateProductRequest struct {
	Name             string   `json:"name" binding:"required"`
	Description      string   `json:"description"`
	SKU              string   `json:"sku" binding:"required"`
	CategoryID       uint     `json:"categoryId" binding:"required"`
	Brand            string   `json:"brand"`
	Unit             string   `json:"unit"`
	Price            float64  `json:"price" binding:"required,gt=0"`
	DiscountedPrice  *float64 `json:"discountedPrice"`
	StockQuantity    int      `json:"stockQuantity"`
	MinStockLevel    int      `json:"minStockLevel"`
	MaxOrderQuantity int      `json:"maxOrderQuantity"`
	ImageURLs        string   `json:"imageUrls"`
	Tags             string   `json:"tags"`
	IsFeatured       bool     `json:"isFeatured"`
}

// CreateProduct 创建商品。
func (h *AdminHandler) CreateProduct(c *gin.Context) {
	var req CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, "Name, sku, categoryId and a positive price are required")
		return
	}

	product := &model.Product{
		Name:             req.Name,
		Description:      req.Description,
		SKU:              req.SKU,
		CategoryID:       req.CategoryID,
		Brand:            req.Brand,
		Unit:             req.Unit,
		Price:            req.Price,
		DiscountedPrice:  req.DiscountedPrice,
		StockQuantity:    req.StockQuantity,
		MinStockLevel:    req.MinStockLevel,
		MaxOrderQuantity: req.MaxOrderQuantity,
		ImageURLs:        req.ImageURLs,
		Tags:             req.Tags,
		IsFeatured:       req.IsFeatured,
		IsActive:         true,
	}
	if product.Unit == "" {
		product.Unit = "piece"
	}
	if product.MaxOrderQuantity == 0 {
		product.MaxOrderQuantity = 10
	}

	if err := h.productService.Create(c.Request.Context(), product); err != nil {
		log.Error("CreateProduct: failed", err)
		Fail(c, http.StatusInternalServerError, "Failed to create product")
		return
	}
	Success(c, http.StatusCreated, gin.H{"product": product})
}

// UpdateProduct 按字段更新商品。
func (h *AdminHandler) UpdateProduct(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		Fail(c, http.StatusBadRequest, "Invalid product id")
		return
	}

	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		Fail(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	product, err := h.productService.Update(c.Request.Context(), uint(id), updates)
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			Fail(c, http.StatusNotFound, "Product not found")
			return
		}
		Fail(c, http.StatusInternalServerError, "Failed to update product")
		return
	}
	Success(c, http.StatusOK, gin.H{"product": product})
}

// DeleteProduct 删除商品。
func (h *AdminHandler) DeleteProduct(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		Fail(c, http.StatusBadRequest, "Invalid product id")
		return
	}

	if err := h.productService.Delete(c.Request.Context(), uint(id)); err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			Fail(c, http.StatusNotFound, "Product not found")
			return
		}
		Fail(c, http.StatusInternalServerError, "Failed to delete product")
		return
	}
	Success(c, http.StatusOK, gin.H{"deleted": true})
}

// UploadProductImage 上传商品图片，返回带签名的访问地址。
func (h *AdminHandler) UploadProductImage(c *gin.Context) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		Fail(c, http.StatusBadRequest, "Image file is required")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		Fail(c, http.StatusInternalServerError, "Failed to read uploaded file")
		return
	}
	defer file.Close()

	url, err := h.productService.UploadImage(c.Request.Context(), fileHeader.Filename,
		file, fileHeader.Size, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		log.Error("UploadProductImage: failed", err)
		Fail(c, http.StatusInternalServerError, "Failed to upload image")
		return
	}
	Success(c, http.StatusOK, gin.H{"url": url})
}

// CategoryRequest 定义了分类管理 API 的请求体结构。
type CategoryRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
	SortOrder   int    `json:"sortOrder"`
	IsActive    *bool  `json:"isActive"`
}

// CreateCategory 创建分类。
func (h *AdminHandler) CreateCategory(c *gin.Context) {
	var req CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, "Category name is required")
		return
	}

	category := &model.Category{
		Name:        req.Name,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		SortOrder:   req.SortOrder,
		IsActive:    true,
	}
	if req.IsActive != nil {
		category.IsActive = *req.IsActive
	}
	if err := h.categoryService.Create(category); err != nil {
		Fail(c, http.StatusInternalServerError, "Failed to create category")
		return
	}
	Success(c, http.StatusCreated, gin.H{"category": category})
}

// UpdateCategory 更新分类。
func (h *AdminHandler) UpdateCategory(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		Fail(c, http.StatusBadRequest, "Invalid category id")
		return
	}

	var req CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, "Category name is required")
		return
	}

	updates := &model.Category{
		Name:        req.Name,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		SortOrder:   req.SortOrder,
		IsActive:    true,
	}
	if req.IsActive != nil {
		updates.IsActive = *req.IsActive
	}

	category, err := h.categoryService.Update(uint(id), updates)
	if err != nil {
		if errors.Is(err, service.ErrCategoryNotFound) {
			Fail(c, http.StatusNotFound, "Category not found")
			return
		}
		Fail(c, http.StatusInternalServerError, "Failed to update category")
		return
	}
	Success(c, http.StatusOK, gin.H{"category": category})
}

// ListOrders 返回订单列表，支持状态过滤。
func (h *AdminHandler) ListOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}

	orders, total, err := h.orderService.ListAll(c.Query("status"), (page-1)*limit, limit)
	if err != nil {
		if errors.Is(err, service.ErrInvalidOrderStatus) {
			Fail(c, http.StatusBadRequest, "Invalid order status")
			return
		}
		Fail(c, http.StatusInternalServerError, "Failed to load orders")
		return
	}
	Success(c, http.StatusOK, gin.H{"orders": orders, "total": total, "page": page})
}

// UpdateOrderRequest 定义了订单状态更新 API 的请求体结构。
type UpdateOrderRequest struct {
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
}

// UpdateOrder 更新订单状态与支付状态。
func (h *AdminHandler) UpdateOrder(c *gin.Context) {
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		Fail(c, http.StatusBadRequest, "Invalid order id")
		return
	}

	var req UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	order, err := h.orderService.UpdateStatus(uint(orderID), req.Status, req.PaymentStatus)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			Fail(c, http.StatusNotFound, "Order not found")
		case errors.Is(err, service.ErrInvalidOrderStatus):
			Fail(c, http.StatusBadRequest, "Invalid order status")
		default:
			Fail(c, http.StatusInternalServerError, "Failed to update order")
		}
		return
	}
	Success(c, http.StatusOK, gin.H{"order": order})
}

// Reports 返回销售报表。
func (h *AdminHandler) Reports(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	report, err := h.adminService.GetSalesReport(days)
	if err != nil {
		log.Error("Reports: failed", err)
		Fail(c, http.StatusInternalServerError, "Failed to build report")
		return
	}
	Success(c, http.StatusOK, report)
}

// AiTestRequest 定义了管理端 AI 测试 API 的请求体结构。
type AiTestRequest struct {
	Message  string `json:"message"`
	TestType string `json:"testType"`
}

// AiTestChat 处理管理端的 AI 测试会话。
func (h *AdminHandler) AiTestChat(c *gin.Context) {
	var req AiTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, "Message is required and must be a non-empty string")
		return
	}

	admin := currentUser(c)
	result, err := h.adminService.TestChat(c.Request.Context(), admin.ID, req.Message, req.TestType)
	if err != nil {
		// 与顾客聊天共用同一套错误翻译
		failChat(c, err)
		return
	}
	Success(c, http.StatusOK, result)
}

// AiAnalytics 返回 AI 聊天使用统计。
func (h *AdminHandler) AiAnalytics(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	analytics, err := h.adminService.GetAiAnalytics(days)
	if err != nil {
		log.Error("AiAnalytics: failed", err)
		Fail(c, http.StatusInternalServerError, "Failed to load AI analytics")
		return
	}
	Success(c, http.StatusOK, analytics)
}

// ClearHistoryRequest 定义了管理端清理聊天记录 API 的请求体结构。
type ClearHistoryRequest struct {
	UserID    uint   `json:"userId"`
	SessionID string `json:"sessionId"`
	ClearAll  bool   `json:"clearAll"`
}

// AiClearHistory 按用户、会话或全量清理聊天记录。
func (h *AdminHandler) AiClearHistory(c *gin.Context) {
	var req ClearHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	deleted, err := h.adminService.ClearChatHistory(req.UserID, req.SessionID, req.ClearAll)
	if err != nil {
		if errors.Is(err, service.ErrInvalidClearTarget) {
			Fail(c, http.StatusBadRequest, "Specify userId, sessionId, or set clearAll to true")
			return
		}
		Fail(c, http.StatusInternalServerError, "Failed to clear chat history")
		return
	}
	Success(c, http.StatusOK, gin.H{"deletedCount": deleted})
}

// repositoryFilter 从查询参数构建后台商品过滤条件（不限上架状态）。
func repositoryFilter(c *gin.Context, page, limit int) repository.ProductFilter {
	filter := repository.ProductFilter{
		Search: c.Query("search"),
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
	if v, err := strconv.ParseUint(c.Query("categoryId"), 10, 32); err == nil {
		filter.CategoryID = uint(v)
	}
	return filter
}
