package domain

import (
	"fmt"
	"math"
	"strings"
)

// Thresholds 是晋升到 Production 的硬性质量门槛
type Thresholds struct {
	MaxMAPE float64
	MinR2   float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{MaxMAPE: 15.0, MinR2: 0.80}
}

// CandidateMetrics 是候选版本的验证指标，缺失的指标取最差值
type CandidateMetrics struct {
	MAPE float64 `json:"mape"`
	R2   float64 `json:"r2"`
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
}

// MetricsFromRun 从 run 指标中取出门槛关心的四项。r2 缺失时兼容 r2_score。
func MetricsFromRun(run map[string]float64) CandidateMetrics {
	m := CandidateMetrics{MAPE: math.Inf(1), R2: 0, MAE: math.Inf(1), RMSE: math.Inf(1)}
	if v, ok := run["mape"]; ok {
		m.MAPE = v
	}
	if v, ok := run["r2"]; ok {
		m.R2 = v
	} else if v, ok := run["r2_score"]; ok {
		m.R2 = v
	}
	if v, ok := run["mae"]; ok {
		m.MAE = v
	}
	if v, ok := run["rmse"]; ok {
		m.RMSE = v
	}
	return m
}

// AsMap 供规则引擎使用
func (m CandidateMetrics) AsMap() map[string]float64 {
	return map[string]float64{"mape": m.MAPE, "r2": m.R2, "mae": m.MAE, "rmse": m.RMSE}
}

// ThresholdFailure 描述一项未通过的门槛
type ThresholdFailure struct {
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold,omitempty"`
	// Delta 为超出门槛的幅度，始终为正
	Delta float64 `json:"delta,omitempty"`
	// Rule 仅在附加规则失败时设置
	Rule string `json:"rule,omitempty"`
}

func (f ThresholdFailure) String() string {
	if f.Rule != "" {
		return fmt.Sprintf("rule %q not satisfied", f.Rule)
	}
	switch f.Metric {
	case "mape":
		return fmt.Sprintf("MAPE (%.1f%%) > threshold (%.1f%%) by %.2f", f.Value, f.Threshold, f.Delta)
	case "r2":
		return fmt.Sprintf("R² (%.3f) < threshold (%.2f) by %.3f", f.Value, f.Threshold, f.Delta)
	}
	return fmt.Sprintf("%s (%g) violates threshold %g", f.Metric, f.Value, f.Threshold)
}

// Evaluate 按固定门槛检查候选指标，返回全部未通过项
func (t Thresholds) Evaluate(m CandidateMetrics) []ThresholdFailure {
	var failures []ThresholdFailure
	// NaN 不能通过任何比较，视为失败
	if !(m.MAPE <= t.MaxMAPE) {
		failures = append(failures, ThresholdFailure{Metric: "mape", Value: m.MAPE, Threshold: t.MaxMAPE, Delta: m.MAPE - t.MaxMAPE})
	}
	if !(m.R2 >= t.MinR2) {
		failures = append(failures, ThresholdFailure{Metric: "r2", Value: m.R2, Threshold: t.MinR2, Delta: t.MinR2 - m.R2})
	}
	return failures
}

// QualityGateRejection 是候选版本未达标时的正常结果，注册表不会被修改
type QualityGateRejection struct {
	ModelName string
	VersionID string
	Metrics   CandidateMetrics
	Failures  []ThresholdFailure
}

func (r *QualityGateRejection) Error() string {
	parts := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		parts[i] = f.String()
	}
	return fmt.Sprintf("model %s v%s rejected by quality gate: %s", r.ModelName, r.VersionID, strings.Join(parts, "; "))
}
