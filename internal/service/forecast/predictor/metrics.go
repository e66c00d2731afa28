package predictor

import (
	"math"
	"strconv"

	"gonum.org/v1/gonum/stat"
)

// R2 决定系数；真实值方差为 0 时完全拟合返回 1，否则返回 0
func R2(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	if _, variance := stat.PopMeanVariance(actual, nil); variance == 0 {
		if RMSE(actual, predicted) == 0 {
			return 1
		}
		return 0
	}
	return stat.RSquaredFrom(predicted, actual, nil)
}

func MAE(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	var s float64
	for i, a := range actual {
		s += math.Abs(a - predicted[i])
	}
	return s / float64(len(actual))
}

func RMSE(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	var s float64
	for i, a := range actual {
		d := a - predicted[i]
		s += d * d
	}
	return math.Sqrt(s / float64(len(actual)))
}

// MAPE 百分比形式，跳过真实值为 0 的行；全部为 0 时返回 false
func MAPE(actual, predicted []float64) (float64, bool) {
	var s float64
	n := 0
	for i, a := range actual {
		if a == 0 {
			continue
		}
		s += math.Abs((a - predicted[i]) / a)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return 100 * s / float64(n), true
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return stat.Mean(v, nil)
}

func itoa(n int) string { return strconv.Itoa(n) }

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
