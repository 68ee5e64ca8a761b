// Package service 包含了应用的业务逻辑层。
package service

import (
	"errors"

	"gorm.io/gorm"

	"daily-grocer-go/internal/model"
	"daily-grocer-go/internal/repository"
)

// ErrCategoryNotFound 表示请求的分类不存在。
var ErrCategoryNotFound = errors.New("category not found")

// CategoryService 接口定义了商品分类的业务操作。
type CategoryService interface {
	ListActive() ([]model.Category, error)
	ListAll() ([]model.Category, error)
	Get(id uint) (*model.Category, error)
	Create(category *model.Category) error
	Update(id uint, updates *model.Category) (*model.Category, error)
	Delete(id uint) error
}

type categoryService struct {
	categoryRepo repository.CategoryRepository
}

// NewCategoryService 创建一个新的 CategoryService 实例。
func NewCategoryService(categoryRepo repository.CategoryRepository) CategoryService {
	return &categoryService{categoryRepo: categoryRepo}
}

func (s *categoryService) ListActive() ([]model.Category, error) {
	return s.categoryRepo.FindAllActive()
}

func (s *categoryService) ListAll() ([]model.Category, error) {
	return s.categoryRepo.FindAll()
}

func (s *categoryService) Get(id uint) (*model.Category, error) {
	category, err := s.categoryRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}
	return category, nil
}

func (s *categoryService) Create(category *model.Category) error {
	return s.categoryRepo.Create(category)
}

// Update 更新分类信息，零值字段保持原值。
func (s *categoryService) Update(id uint, updates *model.Category) (*model.Category, error) {
	category, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	if updates.Name != "" {
		category.Name = updates.Name
	}
	if updates.Description != "" {
		category.Description = updates.Description
	}
	if updates.ImageURL != "" {
		category.ImageURL = updates.ImageURL
	}
	if updates.SortOrder != 0 {
		category.SortOrder = updates.SortOrder
	}
	category.IsActive = updates.IsActive

	if err := s.categoryRepo.Update(category); err != nil {
		return nil, err
	}
	return category, nil
}

func (s *categoryService) Delete(id uint) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	return s.categoryRepo.Delete(id)
}
