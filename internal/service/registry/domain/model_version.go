package domain

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Stage 是模型版本在注册表中的生命周期阶段
type Stage string

const (
	StageNone       Stage = "None"
	StageStaging    Stage = "Staging"
	StageProduction Stage = "Production"
	StageArchived   Stage = "Archived"
)

// transitions 合法的阶段迁移，Archived 是终态
var transitions = map[Stage][]Stage{
	StageNone:       {StageStaging},
	StageStaging:    {StageProduction, StageArchived},
	StageProduction: {StageArchived},
}

// ParseStage 解析阶段名（大小写敏感，与 MLflow 保持一致）
func ParseStage(s string) (Stage, error) {
	switch Stage(s) {
	case StageNone, StageStaging, StageProduction, StageArchived:
		return Stage(s), nil
	case "":
		return StageNone, nil
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

// CanTransitionTo 判断 s -> to 是否合法
func (s Stage) CanTransitionTo(to Stage) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// ModelVersion 是注册表中的一个模型版本
type ModelVersion struct {
	ModelName   string
	VersionID   string
	RunID       string
	Stage       Stage
	Metrics     map[string]float64 // nil 表示 run 指标不可用
	Description string
	CreatedAt   time.Time
}

// SaveMetadata 是注册一个新版本时附带的信息
type SaveMetadata struct {
	ModelName   string
	RunID       string // 为空时由存储生成
	Stage       Stage
	Params      map[string]string
	Metrics     map[string]float64
	Description string
}

// SortNewestFirst 按创建时间倒序，时间相同时按版本号倒序
func SortNewestFirst(versions []ModelVersion) {
	sort.SliceStable(versions, func(i, j int) bool {
		a, b := versions[i], versions[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return versionNumber(a.VersionID) > versionNumber(b.VersionID)
	})
}

// SortOldestFirst 与 SortNewestFirst 相反
func SortOldestFirst(versions []ModelVersion) {
	SortNewestFirst(versions)
	for i, j := 0, len(versions)-1; i < j; i, j = i+1, j-1 {
		versions[i], versions[j] = versions[j], versions[i]
	}
}

func versionNumber(id string) int {
	n, err := strconv.Atoi(id)
	if err != nil {
		return -1
	}
	return n
}
