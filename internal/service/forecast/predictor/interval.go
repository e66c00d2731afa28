package predictor

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// z95 是双侧 95% 正态分位数
const z95 = 1.96

// safetyStockFactor 建议产量 = 预测 × 1.2
const safetyStockFactor = 1.2

// ConfidenceInterval 以整批预测的总体标准差 ×1.96 作为区间半宽，下界截断到 0。
// 少于 2 个预测时区间宽度为 0。
func ConfidenceInterval(predictions []float64) (lower, upper []float64) {
	lower = make([]float64, len(predictions))
	upper = make([]float64, len(predictions))
	var half float64
	if len(predictions) >= 2 {
		half = populationStd(predictions) * z95
	}
	for i, p := range predictions {
		lower[i] = math.Max(p-half, 0)
		upper[i] = p + half
	}
	return lower, upper
}

// RecommendedProduction 建议生产数量
func RecommendedProduction(predicted float64) int {
	return int(math.Round(predicted * safetyStockFactor))
}

func populationStd(v []float64) float64 {
	_, std := stat.PopMeanStdDev(v, nil)
	return std
}
