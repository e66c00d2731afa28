package infrastructure

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"demandcast/internal/service/registry/domain"
)

// GormRegistry 是 domain.Registry 的 MySQL 实现，同时提供原子的 SwapProduction
type GormRegistry struct {
	db *gorm.DB
}

func NewGormRegistry(db *gorm.DB) *GormRegistry {
	return &GormRegistry{db: db}
}

func registryErr(err error, op string) error {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrIllegalTransition) {
		return err
	}
	return errors.Wrapf(domain.ErrRegistry, "%s: %v", op, err)
}

func (r *GormRegistry) Load(ctx context.Context, modelName string, stage domain.Stage) ([]byte, *domain.ModelVersion, error) {
	var row RegisteredModelVersion
	err := r.db.WithContext(ctx).
		Where("model_name = ? AND stage = ?", modelName, string(stage)).
		Order("version DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, registryErr(err, "load version")
	}

	var artifact ModelArtifact
	if err := r.db.WithContext(ctx).Where("version_id = ?", row.ID).First(&artifact).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, errors.Wrapf(domain.ErrNotFound, "artifact of %s v%d", modelName, row.Version)
		}
		return nil, nil, registryErr(err, "load artifact")
	}
	mv := toDomainModelVersion(&row, nil)
	return artifact.Payload, &mv, nil
}

func (r *GormRegistry) Save(ctx context.Context, artifact []byte, meta domain.SaveMetadata) (string, error) {
	stage := meta.Stage
	if stage == "" {
		stage = domain.StageNone
	}
	if stage != domain.StageNone && !domain.StageNone.CanTransitionTo(stage) {
		return "", errors.Wrapf(domain.ErrIllegalTransition, "cannot register a version directly in %s", stage)
	}
	runID := meta.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	params, err := json.Marshal(meta.Params)
	if err != nil {
		return "", errors.Wrap(err, "marshal run params")
	}

	var version int
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 登记 run 与指标
		run := TrainingRun{RunID: runID, ModelName: meta.ModelName, Params: string(params)}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&run).Error; err != nil {
			return err
		}
		if len(meta.Metrics) > 0 {
			rows := fromMetricMap(runID, meta.Metrics)
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error; err != nil {
				return err
			}
		}

		// 2. 在行锁保护下分配版本号
		var maxVersion *int
		if err := tx.Model(&RegisteredModelVersion{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("model_name = ?", meta.ModelName).
			Select("MAX(version)").Scan(&maxVersion).Error; err != nil {
			return err
		}
		version = 1
		if maxVersion != nil {
			version = *maxVersion + 1
		}

		// 3. 写入版本与制品
		row := RegisteredModelVersion{
			ModelName:   meta.ModelName,
			Version:     version,
			RunID:       runID,
			Stage:       string(stage),
			Description: meta.Description,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return tx.Create(&ModelArtifact{VersionID: row.ID, Payload: artifact}).Error
	})
	if err != nil {
		return "", registryErr(err, "save model version")
	}
	return strconv.Itoa(version), nil
}

func (r *GormRegistry) GetVersions(ctx context.Context, modelName string, stages ...domain.Stage) ([]domain.ModelVersion, error) {
	q := r.db.WithContext(ctx).Where("model_name = ?", modelName)
	if len(stages) > 0 {
		names := make([]string, len(stages))
		for i, s := range stages {
			names[i] = string(s)
		}
		q = q.Where("stage IN ?", names)
	}
	var rows []RegisteredModelVersion
	if err := q.Order("created_at DESC").Order("version DESC").Find(&rows).Error; err != nil {
		return nil, registryErr(err, "list versions")
	}
	if len(rows) == 0 {
		return nil, nil
	}

	runIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		runIDs = append(runIDs, row.RunID)
	}
	var runs []TrainingRun
	if err := r.db.WithContext(ctx).Preload("Metrics").Where("run_id IN ?", runIDs).Find(&runs).Error; err != nil {
		return nil, registryErr(err, "load run metrics")
	}
	metricsByRun := make(map[string]map[string]float64, len(runs))
	for _, run := range runs {
		metricsByRun[run.RunID] = toMetricMap(run.Metrics)
	}

	out := make([]domain.ModelVersion, 0, len(rows))
	for i := range rows {
		out = append(out, toDomainModelVersion(&rows[i], metricsByRun[rows[i].RunID]))
	}
	return out, nil
}

func (r *GormRegistry) GetRunMetrics(ctx context.Context, runID string) (map[string]float64, error) {
	var run TrainingRun
	err := r.db.WithContext(ctx).Preload("Metrics").Where("run_id = ?", runID).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(domain.ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, registryErr(err, "get run metrics")
	}
	return toMetricMap(run.Metrics), nil
}

func (r *GormRegistry) TransitionStage(ctx context.Context, modelName, versionID string, to domain.Stage) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := findVersionForUpdate(tx, modelName, versionID)
		if err != nil {
			return err
		}
		from := domain.Stage(row.Stage)
		if !from.CanTransitionTo(to) {
			return errors.Wrapf(domain.ErrIllegalTransition, "%s v%s: %s -> %s", modelName, versionID, from, to)
		}
		return tx.Model(row).Update("stage", string(to)).Error
	})
	if err != nil {
		return registryErr(err, "transition stage")
	}
	return nil
}

func (r *GormRegistry) UpdateDescription(ctx context.Context, modelName, versionID, description string) error {
	version, err := strconv.Atoi(versionID)
	if err != nil {
		return errors.Wrapf(domain.ErrNotFound, "invalid version id %q", versionID)
	}
	res := r.db.WithContext(ctx).Model(&RegisteredModelVersion{}).
		Where("model_name = ? AND version = ?", modelName, version).
		Update("description", description)
	if res.Error != nil {
		return registryErr(res.Error, "update description")
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(domain.ErrNotFound, "%s v%s", modelName, versionID)
	}
	return nil
}

// SwapProduction 在一个事务中归档所有 Production 并晋升候选版本
func (r *GormRegistry) SwapProduction(ctx context.Context, modelName, versionID string) ([]string, error) {
	var archived []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		candidate, err := findVersionForUpdate(tx, modelName, versionID)
		if err != nil {
			return err
		}
		if !domain.Stage(candidate.Stage).CanTransitionTo(domain.StageProduction) {
			return errors.Wrapf(domain.ErrIllegalTransition, "%s v%s: %s -> %s", modelName, versionID, candidate.Stage, domain.StageProduction)
		}

		var current []RegisteredModelVersion
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("model_name = ? AND stage = ?", modelName, string(domain.StageProduction)).
			Order("created_at ASC").Find(&current).Error; err != nil {
			return err
		}
		for i := range current {
			if err := tx.Model(&current[i]).Update("stage", string(domain.StageArchived)).Error; err != nil {
				return err
			}
			archived = append(archived, strconv.Itoa(current[i].Version))
		}
		return tx.Model(candidate).Update("stage", string(domain.StageProduction)).Error
	})
	if err != nil {
		return nil, registryErr(err, "swap production")
	}
	return archived, nil
}

func findVersionForUpdate(tx *gorm.DB, modelName, versionID string) (*RegisteredModelVersion, error) {
	version, err := strconv.Atoi(versionID)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrNotFound, "invalid version id %q", versionID)
	}
	var row RegisteredModelVersion
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("model_name = ? AND version = ?", modelName, version).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(domain.ErrNotFound, "%s v%s", modelName, versionID)
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
