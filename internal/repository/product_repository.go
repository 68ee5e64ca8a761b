// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"gorm.io/gorm"

	"daily-grocer-go/internal/model"
)

// ProductFilter 是商品列表查询的筛选条件。
type ProductFilter struct {
	CategoryID uint
	Search     string
	Featured   *bool
	OnlyActive bool
	Offset     int
	Limit      int
}

// ProductRepository 接口定义了商品数据的持久化操作。
type ProductRepository interface {
	Create(product *model.Product) error
	FindByID(id uint) (*model.Product, error)
	FindByIDs(ids []uint) ([]model.Product, error)
	FindByNames(names []string) ([]model.Product, error)
	FindWithFilter(filter ProductFilter) ([]model.Product, int64, error)
	Update(product *model.Product) error
	Delete(id uint) error
	CountActive() (int64, error)
	FindLowStock() ([]model.Product, error)
	FindCandidatesExcluding(excludeIDs []uint, limit int) ([]model.Product, error)
}

type productRepository struct {
	db *gorm.DB
}

// NewProductRepository 创建一个新的 ProductRepository 实例。
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Create(product *model.Product) error {
	return r.db.Create(product).Error
}

func (r *productRepository) FindByID(id uint) (*model.Product, error) {
	var product model.Product
	if err := r.db.Preload("Category").First(&product, id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByIDs 批量查询商品，结果按传入的 ID 顺序返回。
func (r *productRepository) FindByIDs(ids []uint) ([]model.Product, error) {
	if len(ids) == 0 {
		return []model.Product{}, nil
	}
	var products []model.Product
	if err := r.db.Preload("Category").Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}

	byID := make(map[uint]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	ordered := make([]model.Product, 0, len(products))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
		}
	}
	return ordered, nil
}

func (r *productRepository) FindByNames(names []string) ([]model.Product, error) {
	if len(names) == 0 {
		return []model.Product{}, nil
	}
	var products []model.Product
	err := r.db.Where("name IN ?", names).Find(&products).Error
	return products, err
}

// FindWithFilter 按筛选条件分页查询商品列表。
func (r *productRepository) FindWithFilter(filter ProductFilter) ([]model.Product, int64, error) {
	query := r.db.Model(&model.Product{})
	if filter.OnlyActive {
		query = query.Where("is_active = ?", true)
	}
	if filter.CategoryID > 0 {
		query = query.Where("category_id = ?", filter.CategoryID)
	}
	if filter.Featured != nil {
		query = query.Where("is_featured = ?", *filter.Featured)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("name LIKE ? OR description LIKE ? OR brand LIKE ? OR tags LIKE ?", like, like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var products []model.Product
	err := query.Preload("Category").Order("created_at DESC").
		Offset(filter.Offset).Limit(filter.Limit).Find(&products).Error
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (r *productRepository) Update(product *model.Product) error {
	return r.db.Save(product).Error
}

func (r *productRepository) Delete(id uint) error {
	return r.db.Delete(&model.Product{}, id).Error
}

func (r *productRepository) CountActive() (int64, error) {
	var total int64
	err := r.db.Model(&model.Product{}).Where("is_active = ?", true).Count(&total).Error
	return total, err
}

// FindLowStock 返回库存不高于安全线的上架商品，用于补货报表。
func (r *productRepository) FindLowStock() ([]model.Product, error) {
	var products []model.Product
	err := r.db.Where("is_active = ? AND stock_quantity <= min_stock_level", true).
		Order("stock_quantity").Find(&products).Error
	return products, err
}

// FindCandidatesExcluding 返回排除指定商品后的上架商品候选池。
func (r *productRepository) FindCandidatesExcluding(excludeIDs []uint, limit int) ([]model.Product, error) {
	query := r.db.Preload("Category").Where("is_active = ? AND stock_quantity > 0", true)
	if len(excludeIDs) > 0 {
		query = query.Where("id NOT IN ?", excludeIDs)
	}
	var products []model.Product
	err := query.Limit(limit).Find(&products).Error
	return products, err
}
