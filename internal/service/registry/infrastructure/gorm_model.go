package infrastructure

import (
	"gorm.io/gorm"
)

// RegisteredModelVersion 对应 model_version 表
type RegisteredModelVersion struct {
	gorm.Model
	ModelName   string `gorm:"size:128;uniqueIndex:idx_model_version"`
	Version     int    `gorm:"uniqueIndex:idx_model_version"`
	RunID       string `gorm:"size:64;index"`
	Stage       string `gorm:"size:16;index"`
	Description string `gorm:"type:text"`
}

func (RegisteredModelVersion) TableName() string {
	return "model_version"
}

// TrainingRun 对应 training_run 表，参数以 JSON 文本保存
type TrainingRun struct {
	gorm.Model
	RunID     string      `gorm:"size:64;uniqueIndex"`
	ModelName string      `gorm:"size:128;index"`
	Params    string      `gorm:"type:text"`
	Metrics   []RunMetric `gorm:"foreignKey:RunID;references:RunID"`
}

func (TrainingRun) TableName() string {
	return "training_run"
}

// RunMetric 对应 run_metric 表
type RunMetric struct {
	ID    uint    `gorm:"primaryKey"`
	RunID string  `gorm:"size:64;uniqueIndex:idx_run_metric"`
	Key   string  `gorm:"column:metric_key;size:64;uniqueIndex:idx_run_metric"`
	Value float64 `gorm:"column:metric_value"`
}

func (RunMetric) TableName() string {
	return "run_metric"
}

// ModelArtifact 对应 model_artifact 表，和版本一对一
type ModelArtifact struct {
	ID        uint   `gorm:"primaryKey"`
	VersionID uint   `gorm:"uniqueIndex"`
	Payload   []byte `gorm:"type:longblob"`
}

func (ModelArtifact) TableName() string {
	return "model_artifact"
}

// AutoMigrate 创建或更新注册表所需的表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&RegisteredModelVersion{}, &TrainingRun{}, &RunMetric{}, &ModelArtifact{})
}
