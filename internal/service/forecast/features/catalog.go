package features

import (
	"math"
	"time"
)

var iconicModels = map[string]bool{
	"BAG-001": true,
	"BAG-002": true,
}

var gdpPerCapita = map[string]float64{
	"FR": 45000,
	"US": 65000,
	"CN": 12000,
	"JP": 40000,
	"UK": 47000,
	"CH": 85000,
}

const defaultGDPPerCapita = 40000

var keyMarkets = map[string]bool{
	"US": true,
	"CN": true,
	"JP": true,
	"FR": true,
	"UK": true,
}

// DefaultPrice 缺少价格列时使用的价格
const DefaultPrice = 5000.0

const (
	defaultRolling        = 10.0
	noFashionWeekAheadDay = 365
)

var lagWeeks = []int{1, 2, 4, 8, 12}

// PriceTier 价格分档
type PriceTier string

const (
	TierEntry       PriceTier = "Entry"
	TierCore        PriceTier = "Core"
	TierPremium     PriceTier = "Premium"
	TierExceptional PriceTier = "Exceptional"
)

// TierOf 返回价格所属档位：[0,2000) [2000,5000) [5000,10000) [10000,∞)
// 负价格与缺失价格不属于任何档位，返回空串
func TierOf(price float64) PriceTier {
	switch {
	case math.IsNaN(price) || price < 0:
		return ""
	case price < 2000:
		return TierEntry
	case price < 5000:
		return TierCore
	case price < 10000:
		return TierPremium
	default:
		return TierExceptional
	}
}

func isPeakSeason(m time.Month) bool {
	return m == time.November || m == time.December || m == time.January || m == time.February
}

// weeksToFashionWeek 距下一个时装周锚点（2/15、9/20，10 月之后顺延到次年 2/15）的整周数
func weeksToFashionWeek(d time.Time) int {
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	y := day.Year()
	third := time.Date(y, time.February, 15, 0, 0, 0, 0, time.UTC)
	if day.Month() > time.September {
		third = time.Date(y+1, time.February, 15, 0, 0, 0, 0, time.UTC)
	}
	anchors := []time.Time{
		time.Date(y, time.February, 15, 0, 0, 0, 0, time.UTC),
		time.Date(y, time.September, 20, 0, 0, 0, 0, time.UTC),
		third,
	}

	best := -1
	for _, a := range anchors {
		days := int(a.Sub(day).Hours() / 24)
		if days >= 0 && (best < 0 || days < best) {
			best = days
		}
	}
	if best < 0 {
		best = noFashionWeekAheadDay
	}
	return best / 7
}
