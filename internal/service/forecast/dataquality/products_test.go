package dataquality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demandcast/internal/service/forecast/domain"
)

func TestSummarizeProducts(t *testing.T) {
	d := func(m time.Month) time.Time { return time.Date(2024, m, 1, 0, 0, 0, 0, time.UTC) }
	cols := domain.ColDate | domain.ColProductID | domain.ColProductName | domain.ColCollection | domain.ColPrice
	frame := domain.NewFrame(cols, []domain.SalesRecord{
		{Date: d(time.October), ProductID: "BAG-001", Collection: "Fall 2024", Price: 5200},
		{Date: d(time.April), ProductID: "BAG-001", ProductName: "Sac Iconique", Collection: "Spring 2024", Price: 4800},
		{Date: d(time.May), ProductID: "BAG-002", Collection: "", Price: domain.Missing()},
		{Date: d(time.May), ProductID: "", Collection: "Spring 2024", Price: 1},
	})

	products := SummarizeProducts(frame)
	require.Len(t, products, 2)

	assert.Equal(t, "BAG-001", products[0].ID)
	assert.Equal(t, "Sac Iconique", products[0].Name)
	assert.Equal(t, "Fall 2024", products[0].Collection)
	assert.Equal(t, "5000", products[0].AveragePrice.String())

	assert.Equal(t, "BAG-002", products[1].ID)
	assert.Empty(t, products[1].Collection)
	assert.True(t, products[1].AveragePrice.IsZero())

	assert.Nil(t, SummarizeProducts(domain.NewFrame(domain.ColPrice, nil)))
}
