package predictor

import (
	"github.com/pkg/errors"

	"demandcast/internal/service/forecast/domain"
)

// Fold 是一次前向滚动验证：训练集是 [0, TrainEnd)，验证集是 [TestStart, TestEnd)
type Fold struct {
	TrainEnd  int
	TestStart int
	TestEnd   int
}

// TimeSeriesSplit 按时间顺序切分 n 行为 k 折，不打乱；
// 每折验证集大小为 n/(k+1)，训练集是验证集之前的全部行
func TimeSeriesSplit(n, k int) ([]Fold, error) {
	if k < 2 {
		return nil, errors.Errorf("time series split needs at least 2 folds, got %d", k)
	}
	if n < k+1 {
		return nil, errors.Wrapf(domain.ErrInsufficientData, "cannot split %d rows into %d folds", n, k)
	}
	testSize := n / (k + 1)
	folds := make([]Fold, k)
	for i := 0; i < k; i++ {
		start := n - k*testSize + i*testSize
		folds[i] = Fold{TrainEnd: start, TestStart: start, TestEnd: start + testSize}
	}
	return folds, nil
}
