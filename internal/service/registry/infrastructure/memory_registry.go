package infrastructure

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"demandcast/internal/service/registry/domain"
)

type memoryVersion struct {
	version  domain.ModelVersion
	artifact []byte
}

// MemoryRegistry 是进程内注册表，用于本地运行与测试
type MemoryRegistry struct {
	mu       sync.RWMutex
	versions map[string][]*memoryVersion // model name -> versions (按注册顺序)
	runs     map[string]map[string]float64
	now      func() time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		versions: make(map[string][]*memoryVersion),
		runs:     make(map[string]map[string]float64),
		now:      time.Now,
	}
}

func (r *MemoryRegistry) Load(_ context.Context, modelName string, stage domain.Stage) ([]byte, *domain.ModelVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.versions[modelName]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].version.Stage == stage {
			v := list[i].version
			return append([]byte(nil), list[i].artifact...), &v, nil
		}
	}
	return nil, nil, nil
}

func (r *MemoryRegistry) Save(_ context.Context, artifact []byte, meta domain.SaveMetadata) (string, error) {
	if meta.Stage != domain.StageNone && meta.Stage != "" && !domain.StageNone.CanTransitionTo(meta.Stage) {
		return "", errors.Wrapf(domain.ErrIllegalTransition, "cannot register a version directly in %s", meta.Stage)
	}
	stage := meta.Stage
	if stage == "" {
		stage = domain.StageNone
	}
	runID := meta.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if meta.Metrics != nil {
		r.runs[runID] = copyMetrics(meta.Metrics)
	}
	versionID := strconv.Itoa(len(r.versions[meta.ModelName]) + 1)
	r.versions[meta.ModelName] = append(r.versions[meta.ModelName], &memoryVersion{
		version: domain.ModelVersion{
			ModelName:   meta.ModelName,
			VersionID:   versionID,
			RunID:       runID,
			Stage:       stage,
			Description: meta.Description,
			CreatedAt:   r.now(),
		},
		artifact: append([]byte(nil), artifact...),
	})
	return versionID, nil
}

// AddVersion 直接写入一个版本（测试用），run 指标为 nil 时不登记 run
func (r *MemoryRegistry) AddVersion(v domain.ModelVersion, runMetrics map[string]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if runMetrics != nil {
		r.runs[v.RunID] = copyMetrics(runMetrics)
	}
	v.Metrics = nil
	r.versions[v.ModelName] = append(r.versions[v.ModelName], &memoryVersion{version: v})
}

func (r *MemoryRegistry) GetVersions(_ context.Context, modelName string, stages ...domain.Stage) ([]domain.ModelVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.ModelVersion
	for _, mv := range r.versions[modelName] {
		if len(stages) > 0 && !containsStage(stages, mv.version.Stage) {
			continue
		}
		v := mv.version
		if m, ok := r.runs[v.RunID]; ok {
			v.Metrics = copyMetrics(m)
		}
		out = append(out, v)
	}
	domain.SortNewestFirst(out)
	return out, nil
}

func (r *MemoryRegistry) GetRunMetrics(_ context.Context, runID string) (map[string]float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.runs[runID]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "run %s", runID)
	}
	return copyMetrics(m), nil
}

func (r *MemoryRegistry) TransitionStage(_ context.Context, modelName, versionID string, to domain.Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	mv, err := r.find(modelName, versionID)
	if err != nil {
		return err
	}
	if !mv.version.Stage.CanTransitionTo(to) {
		return errors.Wrapf(domain.ErrIllegalTransition, "%s v%s: %s -> %s", modelName, versionID, mv.version.Stage, to)
	}
	mv.version.Stage = to
	return nil
}

func (r *MemoryRegistry) UpdateDescription(_ context.Context, modelName, versionID, description string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	mv, err := r.find(modelName, versionID)
	if err != nil {
		return err
	}
	mv.version.Description = description
	return nil
}

// SwapProduction 在同一把锁内完成归档与晋升
func (r *MemoryRegistry) SwapProduction(_ context.Context, modelName, versionID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	candidate, err := r.find(modelName, versionID)
	if err != nil {
		return nil, err
	}
	if !candidate.version.Stage.CanTransitionTo(domain.StageProduction) {
		return nil, errors.Wrapf(domain.ErrIllegalTransition, "%s v%s: %s -> %s", modelName, versionID, candidate.version.Stage, domain.StageProduction)
	}
	var archived []string
	for _, mv := range r.versions[modelName] {
		if mv.version.Stage == domain.StageProduction {
			mv.version.Stage = domain.StageArchived
			archived = append(archived, mv.version.VersionID)
		}
	}
	candidate.version.Stage = domain.StageProduction
	return archived, nil
}

func (r *MemoryRegistry) find(modelName, versionID string) (*memoryVersion, error) {
	for _, mv := range r.versions[modelName] {
		if mv.version.VersionID == versionID {
			return mv, nil
		}
	}
	return nil, errors.Wrapf(domain.ErrNotFound, "%s v%s", modelName, versionID)
}

func containsStage(stages []domain.Stage, s domain.Stage) bool {
	for _, st := range stages {
		if st == s {
			return true
		}
	}
	return false
}

func copyMetrics(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
