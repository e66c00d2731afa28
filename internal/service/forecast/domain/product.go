package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrProductNotFound 产品目录中没有该产品
var ErrProductNotFound = errors.New("product not found")

// Product 是产品主数据：所属系列与平均售价
type Product struct {
	ID           string
	Name         string
	Collection   string
	AveragePrice decimal.Decimal
}

// ProductCatalog 产品目录
type ProductCatalog interface {
	Get(ctx context.Context, productID string) (*Product, error)
	// ListByCollection 按产品 ID 排序返回系列下的全部产品，系列不存在时返回空切片
	ListByCollection(ctx context.Context, collection string) ([]Product, error)
}
