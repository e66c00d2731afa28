package domain

import (
	"math"
	"time"
)

// ColumnSet 记录一个 Frame 里实际存在哪些输入列，缺失列在特征工程中取默认值
type ColumnSet uint16

const (
	ColDate ColumnSet = 1 << iota
	ColProductID
	ColProductName
	ColCountry
	ColChannel
	ColCollection
	ColPrice
	ColQuantity
	ColForecastWeek
)

// AllSalesColumns 是一份完整历史销售数据具备的列
const AllSalesColumns = ColDate | ColProductID | ColProductName | ColCountry | ColChannel | ColCollection | ColPrice | ColQuantity

var columnNames = []struct {
	col  ColumnSet
	name string
}{
	{ColDate, "date"},
	{ColProductID, "product_id"},
	{ColProductName, "product_name"},
	{ColCountry, "country"},
	{ColChannel, "channel"},
	{ColCollection, "collection"},
	{ColPrice, "price"},
	{ColQuantity, "quantity"},
	{ColForecastWeek, "forecast_week"},
}

func (s ColumnSet) Has(c ColumnSet) bool { return s&c == c }

func (s ColumnSet) With(c ColumnSet) ColumnSet { return s | c }

func (s ColumnSet) Without(c ColumnSet) ColumnSet { return s &^ c }

// Names 按固定顺序返回列名
func (s ColumnSet) Names() []string {
	var out []string
	for _, cn := range columnNames {
		if s.Has(cn.col) {
			out = append(out, cn.name)
		}
	}
	return out
}

// ColumnByName 把列名解析为 ColumnSet 位
func ColumnByName(name string) (ColumnSet, bool) {
	for _, cn := range columnNames {
		if cn.name == name {
			return cn.col, true
		}
	}
	return 0, false
}

// SalesRecord 是一行销售记录（或待预测的未来行）。
// 数值列存在但取值缺失时用 NaN 表示，字符串列缺失时为空串。
type SalesRecord struct {
	Date         time.Time
	ProductID    string
	ProductName  string
	Country      string
	Channel      string
	Collection   string
	Price        float64
	Quantity     float64
	ForecastWeek int
}

// Frame 是一批记录及其列信息
type Frame struct {
	Columns ColumnSet
	Rows    []SalesRecord
}

func NewFrame(cols ColumnSet, rows []SalesRecord) Frame {
	return Frame{Columns: cols, Rows: rows}
}

func (f Frame) Len() int { return len(f.Rows) }

// Missing 是数值列缺失值的表示
func Missing() float64 { return math.NaN() }

func IsMissing(v float64) bool { return math.IsNaN(v) }
