package interfaces

import (
	"encoding/json"
	"math"
	"net/http"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"demandcast/internal/pkg/logger"
	"demandcast/internal/service/promotion/application"
	"demandcast/internal/service/promotion/domain"
	regdomain "demandcast/internal/service/registry/domain"
)

// PromotionHandler 封装了晋升服务的 HTTP 处理器
type PromotionHandler struct {
	service *application.PromotionService
}

// NewPromotionHandler 创建一个新的 HTTP 处理器实例
func NewPromotionHandler(service *application.PromotionService) *PromotionHandler {
	return &PromotionHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *PromotionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /models/{name}/promote", h.handlePromote)
	mux.HandleFunc("GET /models/{name}/versions", h.handleList)
}

type promoteRequest struct {
	RunID string `json:"run_id"`
}

// failureView 中无穷大的指标渲染为 null
type failureView struct {
	Metric    string   `json:"metric,omitempty"`
	Value     *float64 `json:"value,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
	Delta     *float64 `json:"delta,omitempty"`
	Rule      string   `json:"rule,omitempty"`
	Message   string   `json:"message"`
}

type rejectionView struct {
	Error     string        `json:"error"`
	ModelName string        `json:"model_name"`
	VersionID string        `json:"version_id"`
	Failures  []failureView `json:"failures"`
}

func (h *PromotionHandler) handlePromote(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req promoteRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}

	outcome, err := h.service.Promote(ctx, r.PathValue("name"), req.RunID)
	if err != nil {
		var rejection *domain.QualityGateRejection
		if errors.As(err, &rejection) {
			writeJSON(w, http.StatusConflict, toRejectionView(rejection))
			return
		}
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			logger.Ctx(ctx).Error().Err(err).Msg("promotion failed")
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *PromotionHandler) handleList(w http.ResponseWriter, r *http.Request) {
	versions, err := h.service.List(r.Context(), r.PathValue("name"))
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

// statusFor 根据错误类型返回不同的 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNoCandidate), errors.Is(err, regdomain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, regdomain.ErrIllegalTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidRule):
		return http.StatusInternalServerError
	case errors.Is(err, regdomain.ErrRegistry):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func toRejectionView(r *domain.QualityGateRejection) rejectionView {
	v := rejectionView{Error: "quality gate rejected", ModelName: r.ModelName, VersionID: r.VersionID}
	for _, f := range r.Failures {
		fv := failureView{Metric: f.Metric, Rule: f.Rule, Message: f.String()}
		if f.Rule == "" {
			fv.Value, fv.Threshold, fv.Delta = finite(f.Value), finite(f.Threshold), finite(f.Delta)
		}
		v.Failures = append(v.Failures, fv)
	}
	return v
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
