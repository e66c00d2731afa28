package infrastructure

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"demandcast/internal/service/forecast/domain"
)

// MemoryCatalog 是进程内的产品目录，用于本地运行与测试
type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

func NewMemoryCatalog(products ...domain.Product) *MemoryCatalog {
	c := &MemoryCatalog{products: make(map[string]domain.Product, len(products))}
	c.Upsert(products...)
	return c
}

// DefaultProducts 与合成数据中的产品一致
func DefaultProducts() []domain.Product {
	return []domain.Product{
		{ID: "BAG-001", Name: "Sac Iconique", Collection: "Fall 2024", AveragePrice: decimal.NewFromInt(5000)},
		{ID: "BAG-002", Name: "Malle Voyage", Collection: "Fall 2024", AveragePrice: decimal.NewFromInt(12000)},
		{ID: "BAG-003", Name: "Petit Sac", Collection: "Fall 2024", AveragePrice: decimal.NewFromInt(3500)},
	}
}

func (c *MemoryCatalog) Upsert(products ...domain.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range products {
		c.products[p.ID] = p
	}
}

func (c *MemoryCatalog) Get(_ context.Context, productID string) (*domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[productID]
	if !ok {
		return nil, errors.Wrapf(domain.ErrProductNotFound, "product %s", productID)
	}
	return &p, nil
}

func (c *MemoryCatalog) ListByCollection(_ context.Context, collection string) ([]domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := []domain.Product{}
	for _, p := range c.products {
		if p.Collection == collection {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
