package domain

import (
	"fmt"
	"time"

	regdomain "demandcast/internal/service/registry/domain"
)

// Outcome 是一次成功晋升的结果
type Outcome struct {
	ModelName   string           `json:"model_name"`
	VersionID   string           `json:"version_id"`
	RunID       string           `json:"run_id"`
	Metrics     CandidateMetrics `json:"-"`
	Archived    []string         `json:"archived"`
	Description string           `json:"description"`
	PromotedAt  time.Time        `json:"promoted_at"`
}

// AuditDescription 写回晋升版本的说明文字
func AuditDescription(at time.Time, m CandidateMetrics) string {
	return fmt.Sprintf("Promoted on %s. MAPE: %.1f%%, R²: %.3f, MAE: %.2f, RMSE: %.2f",
		at.Format(time.DateTime), m.MAPE, m.R2, m.MAE, m.RMSE)
}

// VersionSummary 是列表中的一行，指标未知时 Metrics 为空
type VersionSummary struct {
	VersionID string             `json:"version_id"`
	Stage     regdomain.Stage    `json:"stage"`
	RunID     string             `json:"run_id"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// MetricsText 渲染 MAPE 与 R²，缺失时为 "unavailable"
func (v VersionSummary) MetricsText() string {
	if v.Metrics == nil {
		return "unavailable"
	}
	mape, hasMAPE := v.Metrics["mape"]
	r2, hasR2 := v.Metrics["r2"]
	if !hasR2 {
		r2, hasR2 = v.Metrics["r2_score"]
	}
	switch {
	case hasMAPE && hasR2:
		return fmt.Sprintf("MAPE: %.1f%%, R²: %.3f", mape, r2)
	case hasMAPE:
		return fmt.Sprintf("MAPE: %.1f%%", mape)
	case hasR2:
		return fmt.Sprintf("R²: %.3f", r2)
	}
	return "unavailable"
}
