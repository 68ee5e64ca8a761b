// Package service 包含了应用的业务逻辑层。
package service

import (
	"errors"

	"gorm.io/gorm"

	"daily-grocer-go/internal/model"
	"daily-grocer-go/internal/repository"
)

// 购物车业务错误。
var (
	ErrInsufficientStock = errors.New("insufficient stock for product")
	ErrExceedsMaxOrder   = errors.New("quantity exceeds max order limit for product")
	ErrCartItemNotFound  = errors.New("cart item not found")
)

// CartSummary 是购物车内容与合计金额。
type CartSummary struct {
	Items      []model.CartItem `json:"items"`
	ItemCount  int              `json:"itemCount"`
	TotalItems int              `json:"totalItems"`
	Subtotal   float64          `json:"subtotal"`
}

// CartService 接口定义了购物车的业务操作。
type CartService interface {
	GetCart(userID uint) (*CartSummary, error)
	AddItem(userID, productID uint, quantity int) (*CartSummary, error)
	UpdateItem(userID, itemID uint, quantity int) (*CartSummary, error)
	RemoveItem(userID, itemID uint) (*CartSummary, error)
	Clear(userID uint) error
}

type cartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
}

// NewCartService 创建一个新的 CartService 实例。
func NewCartService(cartRepo repository.CartRepository, productRepo repository.ProductRepository) CartService {
	return &cartService{cartRepo: cartRepo, productRepo: productRepo}
}

// GetCart 返回用户购物车内容与合计。
func (s *cartService) GetCart(userID uint) (*CartSummary, error) {
	items, err := s.cartRepo.FindByUser(userID)
	if err != nil {
		return nil, err
	}
	return buildSummary(items), nil
}

// AddItem 加购商品。已在购物车中时累加数量，并校验库存与单笔限购。
func (s *cartService) AddItem(userID, productID uint, quantity int) (*CartSummary, error) {
	if quantity <= 0 {
		quantity = 1
	}

	product, err := s.productRepo.FindByID(productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	if !product.IsActive {
		return nil, ErrProductNotFound
	}

	item, err := s.cartRepo.FindItem(userID, productID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		item = &model.CartItem{UserID: userID, ProductID: productID, Quantity: 0}
	}

	newQuantity := item.Quantity + quantity
	if err := checkQuantity(product, newQuantity); err != nil {
		return nil, err
	}

	item.Quantity = newQuantity
	if err := s.cartRepo.Save(item); err != nil {
		return nil, err
	}
	return s.GetCart(userID)
}

// UpdateItem 修改条目数量。数量为 0 时等价于删除。
func (s *cartService) UpdateItem(userID, itemID uint, quantity int) (*CartSummary, error) {
	if quantity == 0 {
		return s.RemoveItem(userID, itemID)
	}

	items, err := s.cartRepo.FindByUser(userID)
	if err != nil {
		return nil, err
	}

	var target *model.CartItem
	for i := range items {
		if items[i].ID == itemID {
			target = &items[i]
			break
		}
	}
	if target == nil {
		return nil, ErrCartItemNotFound
	}

	product, err := s.productRepo.FindByID(target.ProductID)
	if err != nil {
		return nil, err
	}
	if err := checkQuantity(product, quantity); err != nil {
		return nil, err
	}

	target.Quantity = quantity
	target.Product = nil // 避免 Save 级联写关联行
	if err := s.cartRepo.Save(target); err != nil {
		return nil, err
	}
	return s.GetCart(userID)
}

// RemoveItem 从购物车移除一个条目。
func (s *cartService) RemoveItem(userID, itemID uint) (*CartSummary, error) {
	affected, err := s.cartRepo.DeleteItem(userID, itemID)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrCartItemNotFound
	}
	return s.GetCart(userID)
}

// Clear 清空用户购物车。
func (s *cartService) Clear(userID uint) error {
	return s.cartRepo.ClearByUser(userID)
}

func checkQuantity(product *model.Product, quantity int) error {
	if quantity > product.MaxOrderQuantity {
		return ErrExceedsMaxOrder
	}
	if quantity > product.StockQuantity {
		return ErrInsufficientStock
	}
	return nil
}

func buildSummary(items []model.CartItem) *CartSummary {
	summary := &CartSummary{Items: items, ItemCount: len(items)}
	for _, item := range items {
		summary.TotalItems += item.Quantity
		if item.Product != nil {
			summary.Subtotal += item.Product.EffectivePrice() * float64(item.Quantity)
		}
	}
	return summary
}
