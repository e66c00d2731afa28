package infrastructure

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"demandcast/internal/service/forecast/domain"
)

func TestSalesFactMapping(t *testing.T) {
	rec := domain.SalesRecord{
		Date:      time.Date(2024, time.May, 5, 0, 0, 0, 0, time.UTC),
		ProductID: "BAG-001",
		Country:   "CN",
		Price:     4999.999,
		Quantity:  math.NaN(),
	}
	m := fromSalesRecord(rec)
	assert.True(t, m.Price.Valid)
	assert.Equal(t, "5000", m.Price.Decimal.String())
	assert.Nil(t, m.Quantity)

	back := toSalesRecord(&m)
	assert.Equal(t, 5000.0, back.Price)
	assert.True(t, domain.IsMissing(back.Quantity))
	assert.Equal(t, rec.Date, back.Date)

	m = fromSalesRecord(domain.SalesRecord{Price: math.NaN(), Quantity: 3})
	assert.False(t, m.Price.Valid)
	assert.True(t, domain.IsMissing(toSalesRecord(&m).Price))
	assert.Equal(t, 3.0, toSalesRecord(&m).Quantity)
}

func TestProductMapping(t *testing.T) {
	p := domain.Product{ID: "BAG-002", Name: "Malle Voyage", Collection: "Fall 2024", AveragePrice: decimal.RequireFromString("11999.995")}
	m := fromDomainProduct(p)
	assert.Equal(t, "BAG-002", m.ProductID)
	assert.Equal(t, "12000", m.AveragePrice.String())

	back := toDomainProduct(&m)
	assert.Equal(t, p.Collection, back.Collection)
	assert.True(t, back.AveragePrice.Equal(decimal.NewFromInt(12000)))
}
