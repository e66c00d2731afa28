package predictor

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demandcast/internal/service/forecast/domain"
)

func fastParams() Params {
	p := DefaultParams()
	p.NEstimators = 60
	p.LearningRate = 0.2
	p.EarlyStoppingRounds = 10
	return p
}

// seasonalHistory 生成确定性的周销量：季节项 + 产品基线 + 渠道差异
func seasonalHistory(weeks int) domain.Frame {
	start := time.Date(2022, time.January, 3, 0, 0, 0, 0, time.UTC)
	products := map[string]float64{"BAG-001": 60, "BAG-002": 45, "SLG-010": 20}
	order := []string{"BAG-001", "BAG-002", "SLG-010"}
	var rows []domain.SalesRecord
	for w := 0; w < weeks; w++ {
		d := start.AddDate(0, 0, 7*w)
		season := 1.0
		if isPeak := d.Month() >= time.November || d.Month() <= time.February; isPeak {
			season = 1.5
		}
		for _, p := range order {
			for _, ch := range []string{"Online", "Retail"} {
				q := products[p] * season
				if ch == "Online" {
					q *= 0.7
				}
				rows = append(rows, domain.SalesRecord{
					Date:       d,
					ProductID:  p,
					Country:    "FR",
					Channel:    ch,
					Collection: "Core",
					Price:      4000,
					Quantity:   math.Round(q),
				})
			}
		}
	}
	return domain.NewFrame(domain.AllSalesColumns.Without(domain.ColProductName), rows)
}

func futureFrame(start time.Time, products []string, horizon int) domain.Frame {
	var rows []domain.SalesRecord
	for w := 0; w < horizon; w++ {
		for _, p := range products {
			rows = append(rows, domain.SalesRecord{
				Date:         start.AddDate(0, 0, 7*w),
				ProductID:    p,
				ForecastWeek: w,
				Channel:      "All",
				Country:      "FR",
				Collection:   "Core",
			})
		}
	}
	return domain.NewFrame(domain.ColDate|domain.ColProductID|domain.ColForecastWeek|domain.ColChannel|domain.ColCountry|domain.ColCollection, rows)
}

func TestPredict_UntrainedModel(t *testing.T) {
	p := New(fastParams(), 5)
	_, err := p.Predict(context.Background(), futureFrame(time.Now(), []string{"BAG-001"}, 2), 2)
	assert.ErrorIs(t, err, domain.ErrUntrainedModel)
}

func TestTrainAndPredict(t *testing.T) {
	ctx := context.Background()
	p := New(fastParams(), 5)

	art, err := p.Train(ctx, seasonalHistory(104), "quantity")
	require.NoError(t, err)
	assert.Equal(t, 5, art.Report.Folds)
	assert.Len(t, art.Report.FoldR2, 5)
	assert.Equal(t, 104*6, art.Report.Rows)
	assert.Greater(t, art.Report.TrainR2, 0.8)
	assert.NotNil(t, art.Report.HoldoutMAPE)
	assert.True(t, p.Engine().Encoders().Frozen())
	assert.Contains(t, art.FeatureColumns, "collection_encoded")
	require.Len(t, art.Importance, len(art.FeatureColumns))

	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	batches, err := p.Predict(ctx, futureFrame(start, []string{"BAG-001", "SLG-010"}, 4), 4)
	require.NoError(t, err)
	require.Len(t, batches, 4)
	for w, b := range batches {
		assert.Equal(t, w, b.Week)
		assert.Equal(t, []string{"BAG-001", "SLG-010"}, b.ProductIDs)
		for i, v := range b.Predictions {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, b.Lower[i], v)
			assert.GreaterOrEqual(t, b.Upper[i], v)
			assert.GreaterOrEqual(t, b.Lower[i], 0.0)
		}
	}
}

func TestTrain_RejectsTooFewRows(t *testing.T) {
	frame := seasonalHistory(1)
	frame.Rows = frame.Rows[:4]
	_, err := New(fastParams(), 5).Train(context.Background(), frame, "quantity")
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestTrain_UnsupportedTarget(t *testing.T) {
	_, err := New(fastParams(), 5).Train(context.Background(), seasonalHistory(10), "revenue")
	assert.Error(t, err)
}

func TestPredict_SingleBatchWithoutForecastWeek(t *testing.T) {
	ctx := context.Background()
	p := New(fastParams(), 3)
	_, err := p.Train(ctx, seasonalHistory(30), "")
	require.NoError(t, err)

	cols := domain.ColProductID | domain.ColCountry | domain.ColChannel | domain.ColCollection
	frame := domain.NewFrame(cols, []domain.SalesRecord{
		{ProductID: "BAG-001", Country: "FR", Channel: "Online", Collection: "Core"},
		{ProductID: "BAG-002", Country: "FR", Channel: "Online", Collection: "Core"},
	})
	batches, err := p.Predict(ctx, frame, 13)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, 0, batches[0].Week)
	assert.Equal(t, []string{"BAG-001", "BAG-002"}, batches[0].ProductIDs)
}

func TestArtifactRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := New(fastParams(), 3)
	art, err := p.Train(ctx, seasonalHistory(40), "quantity")
	require.NoError(t, err)

	blob, err := art.Marshal()
	require.NoError(t, err)
	restored, err := UnmarshalArtifact(blob)
	require.NoError(t, err)
	assert.Equal(t, art.FeatureColumns, restored.FeatureColumns)

	future := futureFrame(time.Date(2023, time.March, 6, 0, 0, 0, 0, time.UTC), []string{"BAG-002"}, 3)
	want, err := p.Predict(ctx, future, 3)
	require.NoError(t, err)
	got, err := FromArtifact(restored).Predict(ctx, future, 3)
	require.NoError(t, err)
	for i := range want {
		assert.InDeltaSlice(t, want[i].Predictions, got[i].Predictions, 1e-9)
	}
}

func TestPredict_FeatureMismatch(t *testing.T) {
	ctx := context.Background()
	p := New(fastParams(), 3)
	art, err := p.Train(ctx, seasonalHistory(30), "quantity")
	require.NoError(t, err)

	art.FeatureColumns = append([]string(nil), art.FeatureColumns...)
	art.FeatureColumns[0] = "store_traffic"
	_, err = FromArtifact(art).Predict(ctx, futureFrame(time.Now(), []string{"BAG-001"}, 1), 1)
	assert.ErrorIs(t, err, domain.ErrFeatureMismatch)
}

func TestUnmarshalArtifact_Invalid(t *testing.T) {
	_, err := UnmarshalArtifact([]byte(`{"format":99}`))
	assert.Error(t, err)
	_, err = UnmarshalArtifact([]byte(`not json`))
	assert.Error(t, err)
}

func TestPredict_MissingTrainedCategoricalColumn(t *testing.T) {
	ctx := context.Background()
	p := New(fastParams(), 3)
	art, err := p.Train(ctx, seasonalHistory(30), "quantity")
	require.NoError(t, err)
	require.True(t, art.UsesFeature("collection_encoded"))

	future := futureFrame(time.Date(2023, time.March, 6, 0, 0, 0, 0, time.UTC), []string{"BAG-001"}, 2)
	future.Columns = future.Columns.Without(domain.ColCollection)
	_, err = p.Predict(ctx, future, 2)
	assert.ErrorIs(t, err, domain.ErrFeatureMismatch)
}

func TestPredict_ForecastWeekOutsideHorizon(t *testing.T) {
	ctx := context.Background()
	p := New(fastParams(), 3)
	_, err := p.Train(ctx, seasonalHistory(30), "quantity")
	require.NoError(t, err)

	future := futureFrame(time.Date(2023, time.March, 6, 0, 0, 0, 0, time.UTC), []string{"BAG-001"}, 4)
	_, err = p.Predict(ctx, future, 2)
	assert.ErrorIs(t, err, domain.ErrForecastWeekOutOfRange)

	// 周数未覆盖满 horizon 时，空的周也保留一个批次
	batches, err := p.Predict(ctx, future, 6)
	require.NoError(t, err)
	require.Len(t, batches, 6)
	assert.Len(t, batches[3].Predictions, 1)
	assert.Empty(t, batches[5].Predictions)
}

func TestTrain_RetrainRefitsEncoders(t *testing.T) {
	ctx := context.Background()
	p := New(fastParams(), 3)

	first := seasonalHistory(30)
	first.Columns = first.Columns.Without(domain.ColCollection)
	art, err := p.Train(ctx, first, "quantity")
	require.NoError(t, err)
	assert.False(t, art.UsesFeature("collection_encoded"))
	require.True(t, p.Engine().Encoders().Frozen())

	art, err = p.Train(ctx, seasonalHistory(30), "quantity")
	require.NoError(t, err)
	assert.True(t, art.UsesFeature("collection_encoded"))
	assert.Contains(t, art.Encoders.Vocab, "collection")
	code, ok := p.Engine().Encoders().Transform("collection", "Core")
	assert.True(t, ok)
	assert.Equal(t, 1, code)
}
