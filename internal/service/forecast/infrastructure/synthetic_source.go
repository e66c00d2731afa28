package infrastructure

import (
	"context"
	"math"
	"math/rand"
	"time"

	"demandcast/internal/service/forecast/domain"
)

// SyntheticSource 生成本地演示用的周销量：三个产品、三个国家、两个渠道，
// 正弦季节项叠加 11-1 月的节日加成，数量服从泊松分布。
type SyntheticSource struct {
	Seed  int64
	Start time.Time
	End   time.Time
}

func NewSyntheticSource(seed int64) *SyntheticSource {
	return &SyntheticSource{
		Seed:  seed,
		Start: time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC),
	}
}

var (
	syntheticProducts  = []string{"BAG-001", "BAG-002", "BAG-003"}
	syntheticCountries = []string{"FR", "US", "CN"}
	syntheticChannels  = []string{"Boutique", "Online"}
)

const syntheticBaseDemand = 50.0

func (s *SyntheticSource) LoadSales(ctx context.Context) (domain.Frame, error) {
	rng := rand.New(rand.NewSource(s.Seed))
	var rows []domain.SalesRecord
	for d := firstSunday(s.Start); !d.After(s.End); d = d.AddDate(0, 0, 7) {
		if err := ctx.Err(); err != nil {
			return domain.Frame{}, err
		}
		seasonal := 1 + 0.3*math.Sin(2*math.Pi*float64(d.YearDay())/365)
		holiday := 1.0
		if m := d.Month(); m == time.November || m == time.December || m == time.January {
			holiday = 1.5
		}
		collection := "Fall 2024"
		if m := d.Month(); m >= time.March && m <= time.May {
			collection = "Spring 2024"
		}
		for _, product := range syntheticProducts {
			price := 8000.0
			if product == "BAG-001" {
				price = 5000
			}
			for _, country := range syntheticCountries {
				for _, channel := range syntheticChannels {
					rows = append(rows, domain.SalesRecord{
						Date:       d,
						ProductID:  product,
						Country:    country,
						Channel:    channel,
						Collection: collection,
						Price:      price,
						Quantity:   float64(poisson(rng, syntheticBaseDemand*seasonal*holiday)),
					})
				}
			}
		}
	}
	return domain.NewFrame(domain.AllSalesColumns.Without(domain.ColProductName), rows), nil
}

func firstSunday(d time.Time) time.Time {
	offset := (7 - int(d.Weekday())) % 7
	return d.AddDate(0, 0, offset)
}

// poisson Knuth 算法，lambda 在百以内足够
func poisson(rng *rand.Rand, lambda float64) int {
	limit := math.Exp(-lambda)
	k := 0
	p := rng.Float64()
	for p > limit {
		k++
		p *= rng.Float64()
	}
	return k
}
