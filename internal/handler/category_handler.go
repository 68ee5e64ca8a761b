// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"daily-grocer-go/internal/service"
)

// CategoryHandler 负责处理商品分类相关的 API 请求。
type CategoryHandler struct {
	categoryService service.CategoryService
}

// NewCategoryHandler 创建一个新的 CategoryHandler 实例。
func NewCategoryHandler(categoryService service.CategoryService) *CategoryHandler {
	return &CategoryHandler{categoryService: categoryService}
}

// List 返回所有上架分类。
func (h *CategoryHandler) List(c *gin.Context) {
	categories, err := h.categoryService.ListActive()
	if err != nil {
		Fail(c, http.StatusInternalServerError, "Failed to load categories")
		return
	}
	Success(c, http.StatusOK, gin.H{"categories": categories})
}

// Get 返回单个分类详情。
func (h *CategoryHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		Fail(c, http.StatusBadRequest, "Invalid category id")
		return
	}

	category, err := h.categoryService.Get(uint(id))
	if err != nil {
		if errors.Is(err, service.ErrCategoryNotFound) {
			Fail(c, http.StatusNotFound, "Category not found")
			return
		}
		Fail(c, http.StatusInternalServerError, "Failed to load category")
		return
	}
	Success(c, http.StatusOK, gin.H{"category": category})
}
