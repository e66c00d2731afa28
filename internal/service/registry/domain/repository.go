package domain

import "context"

// ArtifactStore 保存和读取序列化后的模型制品
type ArtifactStore interface {
	// Load 返回指定阶段最新版本的制品；不存在时返回 (nil, nil, nil)
	Load(ctx context.Context, modelName string, stage Stage) ([]byte, *ModelVersion, error)
	// Save 注册一个新版本并返回 version id
	Save(ctx context.Context, artifact []byte, meta SaveMetadata) (string, error)
}

// VersionStore 是版本元数据与阶段迁移的端口，晋升流程只依赖它
type VersionStore interface {
	// GetVersions 返回版本列表（新的在前）；stages 为空表示全部阶段
	GetVersions(ctx context.Context, modelName string, stages ...Stage) ([]ModelVersion, error)
	GetRunMetrics(ctx context.Context, runID string) (map[string]float64, error)
	TransitionStage(ctx context.Context, modelName, versionID string, to Stage) error
	UpdateDescription(ctx context.Context, modelName, versionID, description string) error
}

// ProductionSwapper 是可选能力：在一次原子操作里归档现有 Production 并晋升候选版本
type ProductionSwapper interface {
	SwapProduction(ctx context.Context, modelName, versionID string) (archived []string, err error)
}

// Registry 同时具备制品与版本管理能力
type Registry interface {
	ArtifactStore
	VersionStore
}
