// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 订单状态常量。
const (
	OrderStatusPending    = "pending"
	OrderStatusConfirmed  = "confirmed"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// 支付状态常量。
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)

// Order 对应于数据库中的 'orders' 表。
type Order struct {
	ID              uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNumber     string      `gorm:"type:varchar(32);not null;uniqueIndex" json:"orderNumber"`
	UserID          uint        `gorm:"not null;index" json:"userId"`
	User            *User       `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Status          string      `gorm:"type:varchar(20);not null;default:pending" json:"status"`
	PaymentStatus   string      `gorm:"type:varchar(20);not null;default:pending" json:"paymentStatus"`
	PaymentMethod   string      `gorm:"type:varchar(30)" json:"paymentMethod"`
	TotalAmount     float64     `gorm:"type:decimal(10,2);not null" json:"totalAmount"`
	DeliveryFee     float64     `gorm:"type:decimal(10,2);not null;default:0" json:"deliveryFee"`
	FinalAmount     float64     `gorm:"type:decimal(10,2);not null" json:"finalAmount"`
	DeliveryAddress string      `gorm:"type:text;not null" json:"deliveryAddress"`
	Notes           string      `gorm:"type:text" json:"notes"`
	Items           []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	CreatedAt       time.Time   `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time   `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Order) TableName() string {
	return "orders"
}

// OrderItem 对应于数据库中的 'order_items' 表。
// 下单时固化商品名与单价，后续改价不影响历史订单。
type OrderItem struct {
	ID          uint     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID     uint     `gorm:"not null;index" json:"orderId"`
	ProductID   uint     `gorm:"not null" json:"productId"`
	Product     *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	ProductName string   `gorm:"type:varchar(255);not null" json:"productName"`
	Quantity    int      `gorm:"not null" json:"quantity"`
	UnitPrice   float64  `gorm:"type:decimal(10,2);not null" json:"unitPrice"`
	Subtotal    float64  `gorm:"type:decimal(10,2);not null" json:"subtotal"`
}

func (OrderItem) TableName() string {
	return "order_items"
}
