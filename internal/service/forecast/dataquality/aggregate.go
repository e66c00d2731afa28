package dataquality

import (
	"github.com/pkg/errors"

	"demandcast/internal/service/forecast/domain"
)

type weekKey struct {
	week    int64
	product string
	country string
	channel string
}

// AggregateByWeek 按 (周, 产品, 国家, 渠道) 汇总：数量求和、价格取均值。
// 输出按首次出现的顺序排列，只保留参与汇总的列。
func AggregateByWeek(frame domain.Frame) (domain.Frame, error) {
	if !frame.Columns.Has(domain.ColDate) {
		return domain.Frame{}, errors.New("aggregate by week: frame must have a date column")
	}

	type acc struct {
		rec      domain.SalesRecord
		qty      float64
		priceSum float64
		priceN   int
	}
	groups := make(map[weekKey]*acc)
	var order []weekKey
	for _, r := range frame.Rows {
		week := WeekEnding(r.Date)
		k := weekKey{week: week.Unix(), product: r.ProductID, country: r.Country, channel: r.Channel}
		a, ok := groups[k]
		if !ok {
			a = &acc{rec: domain.SalesRecord{
				Date:      week,
				ProductID: r.ProductID,
				Country:   r.Country,
				Channel:   r.Channel,
			}}
			groups[k] = a
			order = append(order, k)
		}
		if !domain.IsMissing(r.Quantity) {
			a.qty += r.Quantity
		}
		if !domain.IsMissing(r.Price) {
			a.priceSum += r.Price
			a.priceN++
		}
	}

	cols := domain.ColDate
	for _, c := range []domain.ColumnSet{domain.ColProductID, domain.ColCountry, domain.ColChannel, domain.ColQuantity, domain.ColPrice} {
		if frame.Columns.Has(c) {
			cols = cols.With(c)
		}
	}

	rows := make([]domain.SalesRecord, 0, len(order))
	for _, k := range order {
		a := groups[k]
		rec := a.rec
		rec.Quantity = a.qty
		rec.Price = domain.Missing()
		if a.priceN > 0 {
			rec.Price = a.priceSum / float64(a.priceN)
		}
		rows = append(rows, rec)
	}
	return domain.NewFrame(cols, rows), nil
}
