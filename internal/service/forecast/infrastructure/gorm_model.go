package infrastructure

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SalesFact 对应 sales_fact 表，一行是某天某产品在某国家某渠道的销量
type SalesFact struct {
	ID          uint64              `gorm:"primaryKey"`
	SaleDate    time.Time           `gorm:"type:date;not null;index:idx_sales_product_date,priority:2"`
	ProductID   string              `gorm:"type:varchar(64);not null;index:idx_sales_product_date,priority:1"`
	ProductName string              `gorm:"type:varchar(255)"`
	Country     string              `gorm:"type:varchar(8)"`
	Channel     string              `gorm:"type:varchar(32)"`
	Collection  string              `gorm:"type:varchar(64)"`
	Price       decimal.NullDecimal `gorm:"type:decimal(12,2)"`
	Quantity    *float64
	CreatedAt   time.Time
}

func (SalesFact) TableName() string {
	return "sales_fact"
}

// AutoMigrateSales 创建或更新销售表
func AutoMigrateSales(db *gorm.DB) error {
	return db.AutoMigrate(&SalesFact{})
}
