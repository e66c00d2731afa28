package features

import (
	"context"
	"sort"
	"time"

	"demandcast/internal/pkg/logger"
	"demandcast/internal/service/forecast/domain"
)

// Engine 把原始销售行转换成模型输入特征，编码器状态在训练与预测之间共享
type Engine struct {
	encoders *EncoderState
	now      func() time.Time
}

func NewEngine(encoders *EncoderState) *Engine {
	if encoders == nil {
		encoders = NewEncoderState()
	}
	return &Engine{encoders: encoders, now: time.Now}
}

// WithClock 替换缺失日期列时使用的时钟
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) Encoders() *EncoderState {
	return e.encoders
}

// CreateFeatures 生成特征。输出行与输入行一一对应、顺序不变。
func (e *Engine) CreateFeatures(ctx context.Context, frame domain.Frame) *FeatureFrame {
	cols := frame.Columns
	rows := make([]FeatureRow, len(frame.Rows))

	// 1. 没有日期列时所有行共用同一个"现在"
	fallbackDate := time.Time{}
	if !cols.Has(domain.ColDate) {
		fallbackDate = e.now()
	}

	for i := range frame.Rows {
		src := &frame.Rows[i]
		r := &rows[i]
		r.ProductID = src.ProductID
		r.ForecastWeek = src.ForecastWeek
		r.Quantity = domain.Missing()
		if cols.Has(domain.ColQuantity) {
			r.Quantity = src.Quantity
		}

		// 2. 时间特征
		d := src.Date
		if !cols.Has(domain.ColDate) {
			d = fallbackDate
		}
		r.Date = d
		r.Month = int(d.Month())
		r.Quarter = (r.Month-1)/3 + 1
		r.IsPeakSeason = isPeakSeason(d.Month())
		r.WeeksToFashionWeek = weeksToFashionWeek(d)

		// 3. 产品与地域
		r.IsIconicModel = cols.Has(domain.ColProductID) && iconicModels[src.ProductID]
		r.CountryGDP = defaultGDPPerCapita
		if cols.Has(domain.ColCountry) {
			if gdp, ok := gdpPerCapita[src.Country]; ok {
				r.CountryGDP = gdp
			}
			r.IsKeyMarket = keyMarkets[src.Country]
		}

		// 4. 价格
		r.Price = DefaultPrice
		if cols.Has(domain.ColPrice) {
			r.Price = src.Price
		}
		r.PriceTier = TierOf(r.Price)

		r.IsOnline = cols.Has(domain.ColChannel) && src.Channel == "Online"
	}

	// 5. 历史特征
	if cols.Has(domain.ColQuantity) && cols.Has(domain.ColProductID) {
		e.fillHistory(frame, rows)
	} else {
		for i := range rows {
			rows[i].SalesRolling4w = defaultRolling
			rows[i].SalesRolling12w = defaultRolling
		}
	}

	// 6. 分类编码
	produced := append([]string(nil), baseColumns...)
	if cols.Has(domain.ColCollection) {
		e.encode(ctx, CatCollection, rows, func(i int) string { return frame.Rows[i].Collection },
			func(r *FeatureRow, code int) { r.CollectionEncoded = code })
		produced = append(produced, ColCollectionEncoded)
	}
	if cols.Has(domain.ColCountry) {
		e.encode(ctx, CatCountry, rows, func(i int) string { return frame.Rows[i].Country },
			func(r *FeatureRow, code int) { r.CountryEncoded = code })
		produced = append(produced, ColCountryEncoded)
	}
	if cols.Has(domain.ColChannel) {
		e.encode(ctx, CatChannel, rows, func(i int) string { return frame.Rows[i].Channel },
			func(r *FeatureRow, code int) { r.ChannelEncoded = code })
		produced = append(produced, ColChannelEncoded)
	}
	// 价格缺省时有默认值，所以 price_tier 总是存在
	e.encode(ctx, CatPriceTier, rows, func(i int) string { return string(rows[i].PriceTier) },
		func(r *FeatureRow, code int) { r.PriceTierEncoded = code })
	produced = append(produced, ColPriceTierEncoded)

	return &FeatureFrame{Rows: rows, Columns: produced, Source: cols}
}

// fillHistory 按产品分组、组内按日期稳定排序后计算滞后与滚动均值
func (e *Engine) fillHistory(frame domain.Frame, rows []FeatureRow) {
	groups := make(map[string][]int)
	var order []string
	for i, rec := range frame.Rows {
		if _, ok := groups[rec.ProductID]; !ok {
			order = append(order, rec.ProductID)
		}
		groups[rec.ProductID] = append(groups[rec.ProductID], i)
	}

	byDate := frame.Columns.Has(domain.ColDate)
	for _, product := range order {
		idx := groups[product]
		if byDate {
			sort.SliceStable(idx, func(a, b int) bool {
				return frame.Rows[idx[a]].Date.Before(frame.Rows[idx[b]].Date)
			})
		}

		series := make([]float64, len(idx))
		for k, i := range idx {
			series[k] = frame.Rows[i].Quantity
		}
		for k, i := range idx {
			r := &rows[i]
			for li, lag := range lagWeeks {
				if k >= lag && !domain.IsMissing(series[k-lag]) {
					r.SalesLags[li] = series[k-lag]
				}
			}
			r.SalesRolling4w = trailingMean(series, k, 4)
			r.SalesRolling12w = trailingMean(series, k, 12)
		}
	}
}

// trailingMean 窗口 [k-w+1, k] 内非缺失值的均值，至少需要 1 个观测，否则为 0
func trailingMean(series []float64, k, w int) float64 {
	start := k - w + 1
	if start < 0 {
		start = 0
	}
	var sum float64
	n := 0
	for _, v := range series[start : k+1] {
		if domain.IsMissing(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// encode 首次见到某列时拟合（冻结后不再拟合），未见过的取值编码为 0
func (e *Engine) encode(ctx context.Context, column string, rows []FeatureRow, value func(int) string, set func(*FeatureRow, int)) {
	if !e.encoders.Fitted(column) {
		values := make([]string, len(rows))
		for i := range rows {
			values[i] = value(i)
		}
		if err := e.encoders.Fit(column, values); err != nil {
			logger.Ctx(ctx).Debug().Err(err).Str("column", column).Msg("encoder not fitted, all values map to fallback code")
		}
	}

	unseen := make(map[string]struct{})
	for i := range rows {
		v := value(i)
		code, ok := e.encoders.Transform(column, v)
		if !ok {
			unseen[v] = struct{}{}
		}
		set(&rows[i], code)
	}
	if len(unseen) > 0 {
		values := make([]string, 0, len(unseen))
		for v := range unseen {
			values = append(values, v)
		}
		sort.Strings(values)
		logger.Ctx(ctx).Debug().Str("column", column).Strs("values", values).Msg("unseen category, using fallback code")
	}
}
