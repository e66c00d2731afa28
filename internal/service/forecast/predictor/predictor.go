package predictor

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"demandcast/internal/pkg/logger"
	"demandcast/internal/service/forecast/domain"
	"demandcast/internal/service/forecast/features"
)

// DefaultFolds 时间序列交叉验证的折数
const DefaultFolds = 5

// Batch 是某个预测周（相对起始周的偏移）的一批预测
type Batch struct {
	Week        int
	ProductIDs  []string
	Predictions []float64
	Lower       []float64
	Upper       []float64
}

// Predictor 持有特征引擎与训练好的制品。训练完成后编码器被冻结，
// 预测路径只读，可以被多个 goroutine 同时调用。
type Predictor struct {
	params   Params
	folds    int
	engine   *features.Engine
	artifact *Artifact
}

func New(params Params, folds int) *Predictor {
	if folds <= 0 {
		folds = DefaultFolds
	}
	return &Predictor{
		params: params,
		folds:  folds,
		engine: features.NewEngine(features.NewEncoderState()),
	}
}

// FromArtifact 从持久化的制品恢复一个可直接预测的 Predictor
func FromArtifact(a *Artifact) *Predictor {
	enc := features.RestoreEncoderState(a.Encoders)
	enc.Freeze()
	return &Predictor{
		params:   a.Model.Params,
		folds:    a.Report.Folds,
		engine:   features.NewEngine(enc),
		artifact: a,
	}
}

// Engine 返回内部使用的特征引擎（测试中用于替换时钟）
func (p *Predictor) Engine() *features.Engine {
	return p.engine
}

func (p *Predictor) Artifact() *Artifact {
	return p.artifact
}

// Train 按日期排序后做前向滚动交叉验证，最后一折的模型作为最终模型
func (p *Predictor) Train(ctx context.Context, frame domain.Frame, target string) (*Artifact, error) {
	if target == "" {
		target = "quantity"
	}
	if target != "quantity" {
		return nil, errors.Errorf("unsupported target column %q", target)
	}
	if !frame.Columns.Has(domain.ColQuantity) {
		return nil, errors.New("training frame has no quantity column")
	}
	log := logger.Ctx(ctx)

	// 0. 每次训练重新拟合编码器，上一次训练的冻结状态不能沿用
	p.engine.Encoders().Reset()

	// 1. 按日期稳定排序，保证折的时间顺序
	sorted := frame
	sorted.Rows = append([]domain.SalesRecord(nil), frame.Rows...)
	if frame.Columns.Has(domain.ColDate) {
		sort.SliceStable(sorted.Rows, func(i, j int) bool {
			return sorted.Rows[i].Date.Before(sorted.Rows[j].Date)
		})
	}

	// 2. 特征工程
	ff := p.engine.CreateFeatures(ctx, sorted)
	columns := ff.Columns
	X, err := ff.Matrix(columns)
	if err != nil {
		return nil, err
	}
	y := ff.Targets()

	folds, err := TimeSeriesSplit(len(X), p.folds)
	if err != nil {
		return nil, err
	}

	// 3. 各折并行训练，结果按折序号写入
	models := make([]*GBM, len(folds))
	scores := make([]float64, len(folds))
	g, gctx := errgroup.WithContext(ctx)
	for i, fold := range folds {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m := NewGBM(p.params)
			eval := &EvalSet{X: X[fold.TestStart:fold.TestEnd], Y: y[fold.TestStart:fold.TestEnd]}
			if err := m.Fit(X[:fold.TrainEnd], y[:fold.TrainEnd], eval); err != nil {
				return errors.Wrapf(err, "fold %d", i)
			}
			models[i] = m
			scores[i] = R2(eval.Y, m.Predict(eval.X))
			log.Debug().Int("fold", i).Int("train_rows", fold.TrainEnd).Float64("r2", scores[i]).Msg("fold evaluated")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// 4. 最后一折的模型即最终模型
	last := folds[len(folds)-1]
	final := models[len(models)-1]
	holdX, holdY := X[last.TestStart:last.TestEnd], y[last.TestStart:last.TestEnd]
	holdPred := final.Predict(holdX)

	report := TrainingReport{
		Target:        target,
		Rows:          len(X),
		Folds:         len(folds),
		FoldR2:        scores,
		ValR2:         mean(scores),
		TrainR2:       R2(y[:last.TrainEnd], final.Predict(X[:last.TrainEnd])),
		HoldoutMAE:    MAE(holdY, holdPred),
		HoldoutRMSE:   RMSE(holdY, holdPred),
		HoldoutR2:     R2(holdY, holdPred),
		BestIteration: final.BestIteration,
		TrainedAt:     time.Now().UTC(),
	}
	if mape, ok := MAPE(holdY, holdPred); ok {
		report.HoldoutMAPE = &mape
	}

	// 5. 冻结编码器，生成制品
	p.engine.Encoders().Freeze()
	gain := final.Importance()
	importance := make([]FeatureImportance, len(columns))
	for i, c := range columns {
		importance[i] = FeatureImportance{Feature: c, Gain: gain[i]}
	}
	sort.SliceStable(importance, func(i, j int) bool { return importance[i].Gain > importance[j].Gain })

	p.artifact = &Artifact{
		Format:         ArtifactFormat,
		Model:          final,
		FeatureColumns: columns,
		Encoders:       p.engine.Encoders().Snapshot(),
		Report:         report,
		Importance:     importance,
	}
	log.Info().
		Int("rows", report.Rows).
		Float64("val_r2", report.ValR2).
		Float64("train_r2", report.TrainR2).
		Float64("holdout_rmse", report.HoldoutRMSE).
		Msg("✅ model trained")
	return p.artifact, nil
}

// Predict 使用训练时的编码器和列顺序预测，按 forecast_week 分组输出
func (p *Predictor) Predict(ctx context.Context, frame domain.Frame, horizon int) ([]Batch, error) {
	if p.artifact == nil || p.artifact.Model == nil {
		return nil, domain.ErrUntrainedModel
	}
	ff := p.engine.CreateFeatures(ctx, frame)
	X, err := ff.Matrix(p.artifact.FeatureColumns)
	if err != nil {
		return nil, err
	}
	pred := p.artifact.Model.Predict(X)
	for i, v := range pred {
		if v < 0 {
			pred[i] = 0
		}
	}

	if !frame.Columns.Has(domain.ColForecastWeek) {
		ids := make([]string, 0, len(ff.Rows))
		if frame.Columns.Has(domain.ColProductID) {
			for _, r := range ff.Rows {
				ids = append(ids, r.ProductID)
			}
		}
		return []Batch{newBatch(0, ids, pred)}, nil
	}

	// 每一行都必须落在 [0, horizon) 内，不能静默丢弃
	byWeek := make([][]int, horizon)
	for i, r := range ff.Rows {
		if r.ForecastWeek < 0 || r.ForecastWeek >= horizon {
			return nil, errors.Wrapf(domain.ErrForecastWeekOutOfRange, "row %d has forecast_week %d, horizon is %d", i, r.ForecastWeek, horizon)
		}
		byWeek[r.ForecastWeek] = append(byWeek[r.ForecastWeek], i)
	}

	batches := make([]Batch, 0, horizon)
	for week, idx := range byWeek {
		ids := make([]string, len(idx))
		vals := make([]float64, len(idx))
		for k, i := range idx {
			ids[k] = ff.Rows[i].ProductID
			vals[k] = pred[i]
		}
		batches = append(batches, newBatch(week, ids, vals))
	}
	return batches, nil
}

func newBatch(week int, ids []string, preds []float64) Batch {
	lower, upper := ConfidenceInterval(preds)
	return Batch{Week: week, ProductIDs: ids, Predictions: preds, Lower: lower, Upper: upper}
}
