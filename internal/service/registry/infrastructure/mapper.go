package infrastructure

import (
	"strconv"

	"demandcast/internal/service/registry/domain"
)

// toDomainModelVersion 将数据库模型转换为领域模型，metrics 可以为 nil
func toDomainModelVersion(m *RegisteredModelVersion, metrics map[string]float64) domain.ModelVersion {
	return domain.ModelVersion{
		ModelName:   m.ModelName,
		VersionID:   strconv.Itoa(m.Version),
		RunID:       m.RunID,
		Stage:       domain.Stage(m.Stage),
		Metrics:     metrics,
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
	}
}

func toMetricMap(rows []RunMetric) map[string]float64 {
	out := make(map[string]float64, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out
}

func fromMetricMap(runID string, metrics map[string]float64) []RunMetric {
	rows := make([]RunMetric, 0, len(metrics))
	for k, v := range metrics {
		rows = append(rows, RunMetric{RunID: runID, Key: k, Value: v})
	}
	return rows
}
