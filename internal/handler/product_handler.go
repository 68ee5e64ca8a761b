// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"daily-grocer-go/internal/repository"
	"daily-grocer-go/internal/service"
)

// ProductHandler 负责处理商品浏览与检索相关的 API 请求。
type ProductHandler struct {
	productService service.ProductService
}

// NewProductHandler 创建一个新的 ProductHandler 实例。
func NewProductHandler(productService service.ProductService) *ProductHandler {
	return &ProductHandler{productService: productService}
}

// List 返回商品列表，支持分类、精选、关键词过滤与分页。
func (h *ProductHandler) List(c *gin.Context) {
	filter := repository.ProductFilter{OnlyActive: true}

	if v, err := strconv.ParseUint(c.Query("categoryId"), 10, 32); err == nil {
		filter.CategoryID = uint(v)
	}
	if v, err := strconv.ParseBool(c.Query("featured")); err == nil {
		filter.Featured = &v
	}
	filter.Search = c.Query("search")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	products, total, err := h.productService.List(filter)
	if err != nil {
		Fail(c, http.StatusInternalServerError, "Failed to load products")
		return
	}
	Success(c, http.StatusOK, gin.H{
		"products": products,
		"total":    total,
		"page":     page,
	})
}

// Get 返回单个商品详情。
func (h *ProductHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		Fail(c, http.StatusBadRequest, "Invalid product id")
		return
	}

	product, err := h.productService.Get(uint(id))
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			Fail(c, http.StatusNotFound, "Product not found")
			return
		}
		Fail(c, http.StatusInternalServerError, "Failed to load product")
		return
	}
	Success(c, http.StatusOK, gin.H{"product": product})
}

// Search 对商品做全文检索。
func (h *ProductHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		Fail(c, http.StatusBadRequest, "Query parameter 'q' is required")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	products, err := h.productService.Search(c.Request.Context(), query, limit)
	if err != nil {
		Fail(c, http.StatusInternalServerError, "Search failed")
		return
	}
	Success(c, http.StatusOK, gin.H{"products": products})
}
