// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// Product 对应于数据库中的 'products' 表。
type Product struct {
	ID               uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name             string    `gorm:"type:varchar(255);not null;index" json:"name"`
	Description      string    `gorm:"type:text" json:"description"`
	SKU              string    `gorm:"type:varchar(50);not null;uniqueIndex" json:"sku"`
	CategoryID       uint      `gorm:"not null;index" json:"categoryId"`
	Category         *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Brand            string    `gorm:"type:varchar(100)" json:"brand"`
	Unit             string    `gorm:"type:varchar(20);not null;default:piece" json:"unit"`
	Price            float64   `gorm:"type:decimal(10,2);not null" json:"price"`
	DiscountedPrice  *float64  `gorm:"type:decimal(10,2)" json:"discountedPrice"`
	StockQuantity    int       `gorm:"not null;default:0" json:"stockQuantity"`
	MinStockLevel    int       `gorm:"not null;default:5" json:"minStockLevel"`
	MaxOrderQuantity int       `gorm:"not null;default:10" json:"maxOrderQuantity"`
	ImageURLs        string    `gorm:"type:json" json:"imageUrls"`
	Weight           *float64  `gorm:"type:decimal(8,3)" json:"weight"`
	Tags             string    `gorm:"type:varchar(500)" json:"tags"`
	IsFeatured       bool      `gorm:"not null;default:false" json:"isFeatured"`
	IsActive         bool      `gorm:"not null;default:true" json:"isActive"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Product) TableName() string {
	return "products"
}

// EffectivePrice 返回实际售价：有折扣价时取折扣价。
func (p *Product) EffectivePrice() float64 {
	if p.DiscountedPrice != nil && *p.DiscountedPrice > 0 && *p.DiscountedPrice < p.Price {
		return *p.DiscountedPrice
	}
	return p.Price
}
