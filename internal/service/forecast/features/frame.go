package features

import (
	"time"

	"github.com/pkg/errors"

	"demandcast/internal/service/forecast/domain"
)

// 特征列名
const (
	ColMonth              = "month"
	ColQuarter            = "quarter"
	ColIsPeakSeason       = "is_peak_season"
	ColWeeksToFashionWeek = "weeks_to_fashion_week"
	ColIsIconicModel      = "is_iconic_model"
	ColCountryGDP         = "country_gdp_per_capita"
	ColIsKeyMarket        = "is_key_market"
	ColPrice              = "price"
	ColSalesLag1w         = "sales_lag_1w"
	ColSalesLag2w         = "sales_lag_2w"
	ColSalesLag4w         = "sales_lag_4w"
	ColSalesLag8w         = "sales_lag_8w"
	ColSalesLag12w        = "sales_lag_12w"
	ColSalesRolling4w     = "sales_rolling_4w"
	ColSalesRolling12w    = "sales_rolling_12w"
	ColIsOnline           = "is_online"
	ColCollectionEncoded  = "collection_encoded"
	ColCountryEncoded     = "country_encoded"
	ColChannelEncoded     = "channel_encoded"
	ColPriceTierEncoded   = "price_tier_encoded"
)

// 参与编码的分类列
const (
	CatCollection = "collection"
	CatCountry    = "country"
	CatChannel    = "channel"
	CatPriceTier  = "price_tier"
)

// baseColumns 总会产出的数值列，顺序即模型输入顺序
var baseColumns = []string{
	ColMonth, ColQuarter, ColIsPeakSeason, ColWeeksToFashionWeek,
	ColIsIconicModel, ColCountryGDP, ColIsKeyMarket, ColPrice,
	ColSalesLag1w, ColSalesLag2w, ColSalesLag4w, ColSalesLag8w, ColSalesLag12w,
	ColSalesRolling4w, ColSalesRolling12w, ColIsOnline,
}

// FeatureRow 是一行特征，同时保留原始标识与目标值
type FeatureRow struct {
	Date         time.Time
	ProductID    string
	ForecastWeek int
	Quantity     float64

	Month              int
	Quarter            int
	IsPeakSeason       bool
	WeeksToFashionWeek int
	IsIconicModel      bool
	CountryGDP         float64
	IsKeyMarket        bool
	Price              float64
	PriceTier          PriceTier
	SalesLags          [5]float64 // 对应 lagWeeks
	SalesRolling4w     float64
	SalesRolling12w    float64
	IsOnline           bool

	CollectionEncoded int
	CountryEncoded    int
	ChannelEncoded    int
	PriceTierEncoded  int
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Value 按列名取数值；未知列返回 false
func (r *FeatureRow) Value(column string) (float64, bool) {
	switch column {
	case ColMonth:
		return float64(r.Month), true
	case ColQuarter:
		return float64(r.Quarter), true
	case ColIsPeakSeason:
		return b2f(r.IsPeakSeason), true
	case ColWeeksToFashionWeek:
		return float64(r.WeeksToFashionWeek), true
	case ColIsIconicModel:
		return b2f(r.IsIconicModel), true
	case ColCountryGDP:
		return r.CountryGDP, true
	case ColIsKeyMarket:
		return b2f(r.IsKeyMarket), true
	case ColPrice:
		return r.Price, true
	case ColSalesLag1w:
		return r.SalesLags[0], true
	case ColSalesLag2w:
		return r.SalesLags[1], true
	case ColSalesLag4w:
		return r.SalesLags[2], true
	case ColSalesLag8w:
		return r.SalesLags[3], true
	case ColSalesLag12w:
		return r.SalesLags[4], true
	case ColSalesRolling4w:
		return r.SalesRolling4w, true
	case ColSalesRolling12w:
		return r.SalesRolling12w, true
	case ColIsOnline:
		return b2f(r.IsOnline), true
	case ColCollectionEncoded:
		return float64(r.CollectionEncoded), true
	case ColCountryEncoded:
		return float64(r.CountryEncoded), true
	case ColChannelEncoded:
		return float64(r.ChannelEncoded), true
	case ColPriceTierEncoded:
		return float64(r.PriceTierEncoded), true
	}
	return 0, false
}

// FeatureFrame 是特征工程的输出。Columns 是本次实际产出的数值列，
// 编码列只有在源列存在时才会出现。
type FeatureFrame struct {
	Rows    []FeatureRow
	Columns []string
	Source  domain.ColumnSet
}

// Matrix 按给定列顺序构造特征矩阵，缺失值已填 0。
// 请求的列必须是本帧实际产出的列，否则返回 ErrFeatureMismatch。
func (f *FeatureFrame) Matrix(columns []string) ([][]float64, error) {
	produced := make(map[string]struct{}, len(f.Columns))
	for _, c := range f.Columns {
		produced[c] = struct{}{}
	}
	var missing []string
	for _, c := range columns {
		if _, ok := produced[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, errors.Wrapf(domain.ErrFeatureMismatch, "columns %q not produced from input columns %v", missing, f.Source.Names())
	}

	out := make([][]float64, len(f.Rows))
	for i := range f.Rows {
		row := make([]float64, len(columns))
		for j, c := range columns {
			v, _ := f.Rows[i].Value(c)
			if v != v {
				v = 0
			}
			row[j] = v
		}
		out[i] = row
	}
	return out, nil
}

// Targets 返回目标列，缺失值填 0
func (f *FeatureFrame) Targets() []float64 {
	out := make([]float64, len(f.Rows))
	for i, r := range f.Rows {
		if !domain.IsMissing(r.Quantity) {
			out[i] = r.Quantity
		}
	}
	return out
}
