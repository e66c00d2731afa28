package predictor

import (
	"encoding/json"
	"math"
	"time"

	"github.com/pkg/errors"

	"demandcast/internal/service/forecast/features"
)

// ArtifactFormat 制品格式版本，不兼容的变更需要递增
const ArtifactFormat = 1

// TrainingReport 训练过程的指标
type TrainingReport struct {
	Target        string    `json:"target"`
	Rows          int       `json:"rows"`
	Folds         int       `json:"folds"`
	FoldR2        []float64 `json:"fold_r2"`
	ValR2         float64   `json:"val_r2"`
	TrainR2       float64   `json:"train_r2"`
	HoldoutMAE    float64   `json:"holdout_mae"`
	HoldoutRMSE   float64   `json:"holdout_rmse"`
	HoldoutMAPE   *float64  `json:"holdout_mape,omitempty"`
	HoldoutR2     float64   `json:"holdout_r2"`
	BestIteration int       `json:"best_iteration"`
	TrainedAt     time.Time `json:"trained_at"`
}

// Metrics 以注册表使用的指标名返回（r2/mae/rmse/mape 均在最后一折验证集上计算），MAPE 不可计算时省略
func (r TrainingReport) Metrics() map[string]float64 {
	m := map[string]float64{
		"r2":       r.HoldoutR2,
		"r2_score": r.HoldoutR2,
		"val_r2":   r.ValR2,
		"train_r2": r.TrainR2,
		"mae":      r.HoldoutMAE,
		"rmse":     r.HoldoutRMSE,
	}
	if r.HoldoutMAPE != nil {
		m["mape"] = *r.HoldoutMAPE
	}
	for k, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			delete(m, k)
		}
	}
	return m
}

// FeatureImportance 单个特征的累计分裂增益
type FeatureImportance struct {
	Feature string  `json:"feature"`
	Gain    float64 `json:"gain"`
}

// Artifact 是可持久化的训练结果：模型、特征列顺序、编码器快照与训练报告
type Artifact struct {
	Format         int                      `json:"format"`
	Model          *GBM                     `json:"model"`
	FeatureColumns []string                 `json:"feature_columns"`
	Encoders       features.EncoderSnapshot `json:"encoders"`
	Report         TrainingReport           `json:"report"`
	Importance     []FeatureImportance      `json:"importance"`
}

// UsesFeature 判断模型是否以 column 作为输入
func (a *Artifact) UsesFeature(column string) bool {
	for _, c := range a.FeatureColumns {
		if c == column {
			return true
		}
	}
	return false
}

func (a *Artifact) Marshal() ([]byte, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, errors.Wrap(err, "marshal model artifact")
	}
	return b, nil
}

func UnmarshalArtifact(b []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, errors.Wrap(err, "unmarshal model artifact")
	}
	if a.Format != ArtifactFormat {
		return nil, errors.Errorf("unsupported artifact format %d", a.Format)
	}
	if a.Model == nil || len(a.FeatureColumns) == 0 {
		return nil, errors.New("model artifact is incomplete")
	}
	if a.Model.NumFeatures != len(a.FeatureColumns) {
		return nil, errors.Errorf("artifact declares %d columns but model expects %d", len(a.FeatureColumns), a.Model.NumFeatures)
	}
	return &a, nil
}
