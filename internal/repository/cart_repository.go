// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"gorm.io/gorm"

	"daily-grocer-go/internal/model"
)

// CartRepository 接口定义了购物车数据的持久化操作。
type CartRepository interface {
	FindByUser(userID uint) ([]model.CartItem, error)
	FindItem(userID, productID uint) (*model.CartItem, error)
	Save(item *model.CartItem) error
	DeleteItem(userID, itemID uint) (int64, error)
	ClearByUser(userID uint) error
}

type cartRepository struct {
	db *gorm.DB
}

// NewCartRepository 创建一个新的 CartRepository 实例。
func NewCartRepository(db *gorm.DB) CartRepository {
	return &cartRepository{db: db}
}

// FindByUser 返回用户购物车中的全部条目，按加入时间倒序。
func (r *cartRepository) FindByUser(userID uint) ([]model.CartItem, error) {
	var items []model.CartItem
	err := r.db.Preload("Product").Preload("Product.Category").
		Where("user_id = ?", userID).Order("created_at DESC").Find(&items).Error
	return items, err
}

func (r *cartRepository) FindItem(userID, productID uint) (*model.CartItem, error) {
	var item model.CartItem
	err := r.db.Where("user_id = ? AND product_id = ?", userID, productID).First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *cartRepository) Save(item *model.CartItem) error {
	return r.db.Save(item).Error
}

// DeleteItem 删除用户购物车中的一个条目，返回删除行数供调用方判断是否存在。
func (r *cartRepository) DeleteItem(userID, itemID uint) (int64, error) {
	result := r.db.Where("user_id = ? AND id = ?", userID, itemID).Delete(&model.CartItem{})
	return result.RowsAffected, result.Error
}

func (r *cartRepository) ClearByUser(userID uint) error {
	return r.db.Where("user_id = ?", userID).Delete(&model.CartItem{}).Error
}
