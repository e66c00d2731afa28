package application

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"

	"demandcast/internal/service/forecast/domain"
	"demandcast/internal/service/forecast/predictor"
	regdomain "demandcast/internal/service/registry/domain"
)

type memoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
	gets  int
	hits  int
}

func newMemoryCache() *memoryCache { return &memoryCache{items: map[string][]byte{}} }

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	v, ok := c.items[key]
	if ok {
		c.hits++
	}
	return v, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
	return nil
}

type staticSource struct {
	frame domain.Frame
	err   error
}

func (s staticSource) LoadSales(context.Context) (domain.Frame, error) { return s.frame, s.err }

type recordingPublisher struct {
	events []regdomain.LifecycleEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e regdomain.LifecycleEvent) error {
	p.events = append(p.events, e)
	return p.err
}

var errBroker = errors.New("broker down")

func quickParams() predictor.Params {
	p := predictor.DefaultParams()
	p.NEstimators = 40
	p.LearningRate = 0.2
	p.EarlyStoppingRounds = 10
	return p
}

func weeklySales(weeks int) domain.Frame {
	start := time.Date(2022, time.January, 3, 0, 0, 0, 0, time.UTC)
	base := map[string]float64{"BAG-001": 50, "BAG-002": 35, "SLG-010": 15}
	var rows []domain.SalesRecord
	for w := 0; w < weeks; w++ {
		d := start.AddDate(0, 0, 7*w)
		season := 1.0
		if d.Month() >= time.November || d.Month() <= time.February {
			season = 1.4
		}
		for _, p := range []string{"BAG-001", "BAG-002", "SLG-010"} {
			for _, ch := range []string{"Online", "Retail"} {
				q := base[p] * season
				if ch == "Online" {
					q *= 0.6
				}
				rows = append(rows, domain.SalesRecord{
					Date:       d,
					ProductID:  p,
					Country:    "FR",
					Channel:    ch,
					Collection: "Core",
					Price:      4500,
					Quantity:   math.Round(q),
				})
			}
		}
	}
	return domain.NewFrame(domain.AllSalesColumns.Without(domain.ColProductName), rows)
}

type stubCatalog struct {
	products map[string]domain.Product
	err      error
}

func (c stubCatalog) Get(_ context.Context, id string) (*domain.Product, error) {
	if c.err != nil {
		return nil, c.err
	}
	p, ok := c.products[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrProductNotFound, "product %s", id)
	}
	return &p, nil
}

func (c stubCatalog) ListByCollection(context.Context, string) ([]domain.Product, error) {
	return nil, c.err
}
