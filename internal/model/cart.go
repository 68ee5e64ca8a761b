// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// CartItem 对应于数据库中的 'cart_items' 表。
// 同一用户同一商品只保留一行，重复加购累加数量。
type CartItem struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:uk_user_product" json:"userId"`
	ProductID uint      `gorm:"not null;uniqueIndex:uk_user_product" json:"productId"`
	Product   *Product  `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	Quantity  int       `gorm:"not null;default:1" json:"quantity"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (CartItem) TableName() string {
	return "cart_items"
}
