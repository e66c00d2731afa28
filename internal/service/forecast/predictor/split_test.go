package predictor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demandcast/internal/service/forecast/domain"
)

func TestTimeSeriesSplit(t *testing.T) {
	folds, err := TimeSeriesSplit(12, 5)
	require.NoError(t, err)
	require.Len(t, folds, 5)
	for i, f := range folds {
		assert.Equal(t, 2+2*i, f.TestStart)
		assert.Equal(t, f.TestStart, f.TrainEnd)
		assert.Equal(t, f.TestStart+2, f.TestEnd)
	}
	assert.Equal(t, 12, folds[4].TestEnd)
}

func TestTimeSeriesSplit_NeverShufflesAndTrainsOnPast(t *testing.T) {
	folds, err := TimeSeriesSplit(103, 5)
	require.NoError(t, err)
	prevEnd := 0
	for _, f := range folds {
		assert.Greater(t, f.TrainEnd, 0)
		assert.LessOrEqual(t, f.TrainEnd, f.TestStart)
		assert.Greater(t, f.TestStart, prevEnd-1)
		prevEnd = f.TestEnd
	}
	assert.Equal(t, 103, prevEnd)
}

func TestTimeSeriesSplit_Errors(t *testing.T) {
	_, err := TimeSeriesSplit(5, 5)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
	_, err = TimeSeriesSplit(100, 1)
	assert.Error(t, err)
}
