package interfaces

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"demandcast/internal/pkg/logger"
	"demandcast/internal/service/forecast/application"
	"demandcast/internal/service/forecast/domain"
	regdomain "demandcast/internal/service/registry/domain"
)

// ForecastHandler 封装了预测服务的 HTTP 处理器
type ForecastHandler struct {
	service *application.ForecastService
	hub     *EventHub
}

// NewForecastHandler hub 为 nil 时不注册 websocket 路由
func NewForecastHandler(service *application.ForecastService, hub *EventHub) *ForecastHandler {
	return &ForecastHandler{service: service, hub: hub}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *ForecastHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /forecast", h.handleForecast)
	mux.HandleFunc("GET /model/metrics", h.handleModelMetrics)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	if h.hub != nil {
		mux.HandleFunc("GET /ws/model-events", h.hub.ServeWS)
	}
}

type errorResponse struct {
	Error  string              `json:"error"`
	Fields []domain.FieldError `json:"fields,omitempty"`
}

func (h *ForecastHandler) handleForecast(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req application.ForecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	rows, err := h.service.Forecast(ctx, &req)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			logger.Ctx(ctx).Error().Err(err).Msg("forecast failed")
		}
		resp := errorResponse{Error: err.Error()}
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			resp.Fields = verr.Fields
		}
		writeJSON(w, status, resp)
		return
	}
	if rows == nil {
		rows = []application.ForecastRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *ForecastHandler) handleModelMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.MetricsSummary(r.Context()))
}

func (h *ForecastHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Health())
}

// statusFor 根据错误类型返回不同的 HTTP 状态码
func statusFor(err error) int {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUntrainedModel):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrFeatureMismatch):
		return http.StatusInternalServerError
	case errors.Is(err, regdomain.ErrRegistry):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
