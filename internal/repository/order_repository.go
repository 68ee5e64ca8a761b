// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"gorm.io/gorm"

	"daily-grocer-go/internal/model"
)

// SalesPoint 是按天聚合的销售数据点。
type SalesPoint struct {
	Date    string  `json:"date"`
	Orders  int64   `json:"orders"`
	Revenue float64 `json:"revenue"`
}

// TopProduct 是销量排行中的单个条目。
type TopProduct struct {
	ProductID   uint    `json:"productId"`
	ProductName string  `json:"productName"`
	TotalSold   int64   `json:"totalSold"`
	Revenue     float64 `json:"revenue"`
}

// OrderRepository 接口定义了订单数据的持久化操作。
type OrderRepository interface {
	CreateWithItems(order *model.Order, clearCart bool) error
	FindByID(id uint) (*model.Order, error)
	FindByUser(userID uint, offset, limit int) ([]model.Order, int64, error)
	FindAll(status string, offset, limit int) ([]model.Order, int64, error)
	FindRecent(limit int) ([]model.Order, error)
	Update(order *model.Order) error
	CountAll() (int64, error)
	CountByStatus(status string) (int64, error)
	SumRevenue() (float64, error)
	SumRevenueSince(since string) (float64, error)
	PurchasedProductIDs(userID uint) ([]uint, error)
	SalesByDay(days int) ([]SalesPoint, error)
	TopProducts(limit int) ([]TopProduct, error)
}

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建一个新的 OrderRepository 实例。
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// CreateWithItems 在单个事务内创建订单、扣减库存，并按需清空购物车。
// 任一商品库存不足时整单回滚。
func (r *orderRepository) CreateWithItems(order *model.Order, clearCart bool) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		for _, item := range order.Items {
			result := tx.Model(&model.Product{}).
				Where("id = ? AND stock_quantity >= ?", item.ProductID, item.Quantity).
				UpdateColumn("stock_quantity", gorm.Expr("stock_quantity - ?", item.Quantity))
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return gorm.ErrInvalidData
			}
		}

		if err := tx.Create(order).Error; err != nil {
			return err
		}

		if clearCart {
			if err := tx.Where("user_id = ?", order.UserID).Delete(&model.CartItem{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *orderRepository) FindByID(id uint) (*model.Order, error) {
	var order model.Order
	err := r.db.Preload("Items").Preload("Items.Product").Preload("User").First(&order, id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) FindByUser(userID uint, offset, limit int) ([]model.Order, int64, error) {
	var total int64
	if err := r.db.Model(&model.Order{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []model.Order
	err := r.db.Preload("Items").Where("user_id = ?", userID).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *orderRepository) FindAll(status string, offset, limit int) ([]model.Order, int64, error) {
	query := r.db.Model(&model.Order{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []model.Order
	err := query.Preload("Items").Preload("User").
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// FindRecent 返回最近创建的订单，用于后台动态面板。
func (r *orderRepository) FindRecent(limit int) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.Preload("User").Order("created_at DESC").Limit(limit).Find(&orders).Error
	return orders, err
}

func (r *orderRepository) Update(order *model.Order) error {
	return r.db.Save(order).Error
}

func (r *orderRepository) CountAll() (int64, error) {
	var total int64
	err := r.db.Model(&model.Order{}).Count(&total).Error
	return total, err
}

func (r *orderRepository) CountByStatus(status string) (int64, error) {
	var total int64
	err := r.db.Model(&model.Order{}).Where("status = ?", status).Count(&total).Error
	return total, err
}

func (r *orderRepository) SumRevenue() (float64, error) {
	var revenue float64
	err := r.db.Model(&model.Order{}).Where("payment_status = ?", model.PaymentStatusPaid).
		Select("COALESCE(SUM(final_amount), 0)").Scan(&revenue).Error
	return revenue, err
}

func (r *orderRepository) SumRevenueSince(since string) (float64, error) {
	var revenue float64
	err := r.db.Model(&model.Order{}).
		Where("payment_status = ? AND created_at >= ?", model.PaymentStatusPaid, since).
		Select("COALESCE(SUM(final_amount), 0)").Scan(&revenue).Error
	return revenue, err
}

// PurchasedProductIDs 返回用户历史订单中出现过的商品 ID（去重）。
func (r *orderRepository) PurchasedProductIDs(userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&model.OrderItem{}).
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.user_id = ? AND orders.status <> ?", userID, model.OrderStatusCancelled).
		Distinct().Pluck("order_items.product_id", &ids).Error
	return ids, err
}

// SalesByDay 返回最近 N 天按日聚合的订单数与营收。
func (r *orderRepository) SalesByDay(days int) ([]SalesPoint, error) {
	var points []SalesPoint
	err := r.db.Model(&model.Order{}).
		Select("DATE(created_at) AS date, COUNT(*) AS orders, COALESCE(SUM(final_amount), 0) AS revenue").
		Where("created_at >= DATE_SUB(CURDATE(), INTERVAL ? DAY)", days).
		Group("DATE(created_at)").Order("date").Scan(&points).Error
	return points, err
}

// TopProducts 返回按销量排序的商品排行。
func (r *orderRepository) TopProducts(limit int) ([]TopProduct, error) {
	var tops []TopProduct
	err := r.db.Model(&model.OrderItem{}).
		Select("product_id, product_name, SUM(quantity) AS total_sold, COALESCE(SUM(subtotal), 0) AS revenue").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.status <> ?", model.OrderStatusCancelled).
		Group("product_id, product_name").Order("total_sold DESC").Limit(limit).Scan(&tops).Error
	return tops, err
}
