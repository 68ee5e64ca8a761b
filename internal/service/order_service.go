// Package service 包含了应用的业务逻辑层。
package service

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"gorm.io/gorm"

	"daily-grocer-go/internal/model"
	"daily-grocer-go/internal/repository"
)

// 订单业务错误。
var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderNotCancelable = errors.New("order can no longer be cancelled")
	ErrInvalidOrderStatus = errors.New("invalid order status")
)

// 配送费规则：满额免运费。
const (
	deliveryFee       = 4.99
	freeDeliveryAbove = 50.0
)

var validOrderStatuses = map[string]bool{
	model.OrderStatusPending:    true,
	model.OrderStatusConfirmed:  true,
	model.OrderStatusProcessing: true,
	model.OrderStatusShipped:    true,
	model.OrderStatusDelivered:  true,
	model.OrderStatusCancelled:  true,
}

// OrderService 接口定义了订单的业务操作。
type OrderService interface {
	Checkout(userID uint, deliveryAddress, paymentMethod, notes string) (*model.Order, error)
	ListByUser(userID uint, offset, limit int) ([]model.Order, int64, error)
	GetForUser(userID, orderID uint) (*model.Order, error)
	Cancel(userID, orderID uint) (*model.Order, error)
	ListAll(status string, offset, limit int) ([]model.Order, int64, error)
	UpdateStatus(orderID uint, status, paymentStatus string) (*model.Order, error)
}

type orderService struct {
	orderRepo repository.OrderRepository
	cartRepo  repository.CartRepository
}

// NewOrderService 创建一个新的 OrderService 实例。
func NewOrderService(orderRepo repository.OrderRepository, cartRepo repository.CartRepository) OrderService {
	return &orderService{orderRepo: orderRepo, cartRepo: cartRepo}
}

// Checkout 将用户当前购物车转为订单：固化单价、扣库存、清空购物车，整单事务。
func (s *orderService) Checkout(userID uint, deliveryAddress, paymentMethod, notes string) (*model.Order, error) {
	cartItems, err := s.cartRepo.FindByUser(userID)
	if err != nil {
		return nil, err
	}
	if len(cartItems) == 0 {
		return nil, ErrEmptyCart
	}

	order := &model.Order{
		OrderNumber:     generateOrderNumber(),
		UserID:          userID,
		Status:          model.OrderStatusPending,
		PaymentStatus:   model.PaymentStatusPending,
		PaymentMethod:   paymentMethod,
		DeliveryAddress: deliveryAddress,
		Notes:           notes,
	}

	for _, item := range cartItems {
		if item.Product == nil {
			continue
		}
		unitPrice := item.Product.EffectivePrice()
		order.Items = append(order.Items, model.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.Product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   unitPrice,
			Subtotal:    unitPrice * float64(item.Quantity),
		})
		order.TotalAmount += unitPrice * float64(item.Quantity)
	}

	if order.TotalAmount < freeDeliveryAbove {
		order.DeliveryFee = deliveryFee
	}
	order.FinalAmount = order.TotalAmount + order.DeliveryFee

	if err := s.orderRepo.CreateWithItems(order, true); err != nil {
		if errors.Is(err, gorm.ErrInvalidData) {
			return nil, ErrInsufficientStock
		}
		return nil, err
	}
	return order, nil
}

func (s *orderService) ListByUser(userID uint, offset, limit int) ([]model.Order, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.orderRepo.FindByUser(userID, offset, limit)
}

// GetForUser 返回订单详情，只允许订单归属人访问。
func (s *orderService) GetForUser(userID, orderID uint) (*model.Order, error) {
	order, err := s.orderRepo.FindByID(orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// Cancel 取消订单。仅待处理/已确认状态可取消。
func (s *orderService) Cancel(userID, orderID uint) (*model.Order, error) {
	order, err := s.GetForUser(userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != model.OrderStatusPending && order.Status != model.OrderStatusConfirmed {
		return nil, ErrOrderNotCancelable
	}

	order.Status = model.OrderStatusCancelled
	if err := s.orderRepo.Update(order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *orderService) ListAll(status string, offset, limit int) ([]model.Order, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if status != "" && !validOrderStatuses[status] {
		return nil, 0, ErrInvalidOrderStatus
	}
	return s.orderRepo.FindAll(status, offset, limit)
}

// UpdateStatus 由管理端更新订单状态与支付状态，空字符串表示不变。
func (s *orderService) UpdateStatus(orderID uint, status, paymentStatus string) (*model.Order, error) {
	order, err := s.orderRepo.FindByID(orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	if status != "" {
		if !validOrderStatuses[status] {
			return nil, ErrInvalidOrderStatus
		}
		order.Status = status
	}
	if paymentStatus != "" {
		order.PaymentStatus = paymentStatus
	}
	if err := s.orderRepo.Update(order); err != nil {
		return nil, err
	}
	return order, nil
}

// generateOrderNumber 生成形如 DG-20240101-483920 的订单号。
func generateOrderNumber() string {
	return fmt.Sprintf("DG-%s-%06d", time.Now().Format("20060102"), rand.Intn(1000000))
}
