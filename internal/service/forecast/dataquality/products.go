package dataquality

import (
	"sort"

	"github.com/shopspring/decimal"

	"demandcast/internal/service/forecast/domain"
)

// SummarizeProducts 从销售数据推导产品目录：系列与名称取最近一次非空值，价格取非缺失值的均值。
// 没有价格的产品平均价为 0。
func SummarizeProducts(frame domain.Frame) []domain.Product {
	if !frame.Columns.Has(domain.ColProductID) {
		return nil
	}
	rows := append([]domain.SalesRecord(nil), frame.Rows...)
	if frame.Columns.Has(domain.ColDate) {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	}

	type acc struct {
		product  domain.Product
		priceSum float64
		priceN   int
	}
	byID := make(map[string]*acc)
	for _, r := range rows {
		if r.ProductID == "" {
			continue
		}
		a, ok := byID[r.ProductID]
		if !ok {
			a = &acc{product: domain.Product{ID: r.ProductID}}
			byID[r.ProductID] = a
		}
		if frame.Columns.Has(domain.ColCollection) && r.Collection != "" {
			a.product.Collection = r.Collection
		}
		if frame.Columns.Has(domain.ColProductName) && r.ProductName != "" {
			a.product.Name = r.ProductName
		}
		if frame.Columns.Has(domain.ColPrice) && !domain.IsMissing(r.Price) {
			a.priceSum += r.Price
			a.priceN++
		}
	}

	out := make([]domain.Product, 0, len(byID))
	for _, a := range byID {
		p := a.product
		if a.priceN > 0 {
			p.AveragePrice = decimal.NewFromFloat(a.priceSum / float64(a.priceN)).Round(2)
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
