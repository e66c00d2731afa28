package dataquality

import (
	"context"
	"math"
	"sort"
	"time"

	"demandcast/internal/pkg/logger"
	"demandcast/internal/service/forecast/domain"
)

// UnknownCategory 分类列缺失值的填充值
const UnknownCategory = "Unknown"

// Preprocessor 清洗历史销售数据：去重、缺失值填充、异常值截断
type Preprocessor struct {
	// OutlierStd 超过 均值 ± N 倍标准差 的值会被截断
	OutlierStd float64
}

func NewPreprocessor() *Preprocessor {
	return &Preprocessor{OutlierStd: 3}
}

// Report 记录一次清洗的改动
type Report struct {
	Duplicates     int
	ImputedNumeric int
	ImputedText    int
	Capped         int
}

// Clean 返回清洗后的新 Frame，不修改输入
func (p *Preprocessor) Clean(ctx context.Context, frame domain.Frame) (domain.Frame, Report) {
	var rep Report
	rows := dedupe(frame.Rows, &rep)
	p.impute(frame.Columns, rows, &rep)
	p.capOutliers(frame.Columns, rows, &rep)

	logger.Ctx(ctx).Info().
		Int("rows_in", len(frame.Rows)).
		Int("rows_out", len(rows)).
		Int("duplicates", rep.Duplicates).
		Int("imputed_numeric", rep.ImputedNumeric).
		Int("imputed_text", rep.ImputedText).
		Int("capped", rep.Capped).
		Msg("🧹 sales data cleaned")
	return domain.NewFrame(frame.Columns, rows), rep
}

type recordKey struct {
	date                                        int64
	product, name, country, channel, collection string
	price, quantity                             uint64
	week                                        int
}

func keyOf(r domain.SalesRecord) recordKey {
	return recordKey{
		date:       r.Date.UnixNano(),
		product:    r.ProductID,
		name:       r.ProductName,
		country:    r.Country,
		channel:    r.Channel,
		collection: r.Collection,
		price:      math.Float64bits(r.Price),
		quantity:   math.Float64bits(r.Quantity),
		week:       r.ForecastWeek,
	}
}

// dedupe 保留首次出现的记录
func dedupe(in []domain.SalesRecord, rep *Report) []domain.SalesRecord {
	seen := make(map[recordKey]struct{}, len(in))
	out := make([]domain.SalesRecord, 0, len(in))
	for _, r := range in {
		k := keyOf(r)
		if _, ok := seen[k]; ok {
			rep.Duplicates++
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

func (p *Preprocessor) impute(cols domain.ColumnSet, rows []domain.SalesRecord, rep *Report) {
	// 数值列用中位数
	if cols.Has(domain.ColPrice) {
		med := median(rows, func(r *domain.SalesRecord) *float64 { return &r.Price })
		rep.ImputedNumeric += fillMissing(rows, med, func(r *domain.SalesRecord) *float64 { return &r.Price })
	}
	if cols.Has(domain.ColQuantity) {
		med := median(rows, func(r *domain.SalesRecord) *float64 { return &r.Quantity })
		rep.ImputedNumeric += fillMissing(rows, med, func(r *domain.SalesRecord) *float64 { return &r.Quantity })
	}

	// 分类列用 Unknown
	text := []struct {
		col   domain.ColumnSet
		field func(*domain.SalesRecord) *string
	}{
		{domain.ColProductID, func(r *domain.SalesRecord) *string { return &r.ProductID }},
		{domain.ColProductName, func(r *domain.SalesRecord) *string { return &r.ProductName }},
		{domain.ColCountry, func(r *domain.SalesRecord) *string { return &r.Country }},
		{domain.ColChannel, func(r *domain.SalesRecord) *string { return &r.Channel }},
		{domain.ColCollection, func(r *domain.SalesRecord) *string { return &r.Collection }},
	}
	for _, t := range text {
		if !cols.Has(t.col) {
			continue
		}
		for i := range rows {
			if v := t.field(&rows[i]); *v == "" {
				*v = UnknownCategory
				rep.ImputedText++
			}
		}
	}
}

func (p *Preprocessor) capOutliers(cols domain.ColumnSet, rows []domain.SalesRecord, rep *Report) {
	if p.OutlierStd <= 0 {
		return
	}
	fields := []struct {
		col   domain.ColumnSet
		field func(*domain.SalesRecord) *float64
	}{
		{domain.ColPrice, func(r *domain.SalesRecord) *float64 { return &r.Price }},
		{domain.ColQuantity, func(r *domain.SalesRecord) *float64 { return &r.Quantity }},
	}
	for _, f := range fields {
		if !cols.Has(f.col) {
			continue
		}
		mu, sd, ok := meanStd(rows, f.field)
		if !ok {
			continue
		}
		lo, hi := mu-p.OutlierStd*sd, mu+p.OutlierStd*sd
		for i := range rows {
			v := f.field(&rows[i])
			switch {
			case domain.IsMissing(*v):
			case *v > hi:
				*v = hi
				rep.Capped++
			case *v < lo:
				*v = lo
				rep.Capped++
			}
		}
	}
}

func median(rows []domain.SalesRecord, field func(*domain.SalesRecord) *float64) float64 {
	vals := make([]float64, 0, len(rows))
	for i := range rows {
		if v := *field(&rows[i]); !domain.IsMissing(v) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return domain.Missing()
	}
	sort.Float64s(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 1 {
		return vals[mid]
	}
	return (vals[mid-1] + vals[mid]) / 2
}

func fillMissing(rows []domain.SalesRecord, value float64, field func(*domain.SalesRecord) *float64) int {
	if domain.IsMissing(value) {
		return 0
	}
	n := 0
	for i := range rows {
		if v := field(&rows[i]); domain.IsMissing(*v) {
			*v = value
			n++
		}
	}
	return n
}

// meanStd 均值与样本标准差（ddof=1）
func meanStd(rows []domain.SalesRecord, field func(*domain.SalesRecord) *float64) (float64, float64, bool) {
	var sum float64
	n := 0
	for i := range rows {
		if v := *field(&rows[i]); !domain.IsMissing(v) {
			sum += v
			n++
		}
	}
	if n < 2 {
		return 0, 0, false
	}
	mu := sum / float64(n)
	var ss float64
	for i := range rows {
		if v := *field(&rows[i]); !domain.IsMissing(v) {
			ss += (v - mu) * (v - mu)
		}
	}
	return mu, math.Sqrt(ss / float64(n-1)), true
}

// WeekEnding 返回日期所在周（周一至周日）的周日
func WeekEnding(d time.Time) time.Time {
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, (7-int(day.Weekday()))%7)
}
