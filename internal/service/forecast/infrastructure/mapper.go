package infrastructure

import (
	"math"

	"github.com/shopspring/decimal"

	"demandcast/internal/service/forecast/domain"
)

func toSalesRecord(m *SalesFact) domain.SalesRecord {
	rec := domain.SalesRecord{
		Date:        m.SaleDate,
		ProductID:   m.ProductID,
		ProductName: m.ProductName,
		Country:     m.Country,
		Channel:     m.Channel,
		Collection:  m.Collection,
		Price:       math.NaN(),
		Quantity:    math.NaN(),
	}
	if m.Price.Valid {
		rec.Price = m.Price.Decimal.InexactFloat64()
	}
	if m.Quantity != nil {
		rec.Quantity = *m.Quantity
	}
	return rec
}

func fromSalesRecord(r domain.SalesRecord) SalesFact {
	m := SalesFact{
		SaleDate:    r.Date,
		ProductID:   r.ProductID,
		ProductName: r.ProductName,
		Country:     r.Country,
		Channel:     r.Channel,
		Collection:  r.Collection,
	}
	if !domain.IsMissing(r.Price) {
		m.Price = decimal.NewNullDecimal(decimal.NewFromFloat(r.Price).Round(2))
	}
	if !domain.IsMissing(r.Quantity) {
		q := r.Quantity
		m.Quantity = &q
	}
	return m
}

func toDomainProduct(m *ProductModel) domain.Product {
	return domain.Product{
		ID:           m.ProductID,
		Name:         m.Name,
		Collection:   m.Collection,
		AveragePrice: m.AveragePrice,
	}
}

func fromDomainProduct(p domain.Product) ProductModel {
	return ProductModel{
		ProductID:    p.ID,
		Name:         p.Name,
		Collection:   p.Collection,
		AveragePrice: p.AveragePrice.Round(2),
	}
}
