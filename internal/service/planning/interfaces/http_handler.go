package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"demandcast/internal/pkg/logger"
	forecastdomain "demandcast/internal/service/forecast/domain"
	"demandcast/internal/service/planning/domain"
)

type planner interface {
	ProductionPlan(ctx context.Context, collection string, horizon int) (*domain.Plan, error)
}

// PlanningHandler 提供生产计划接口
type PlanningHandler struct {
	service planner
}

func NewPlanningHandler(service planner) *PlanningHandler {
	return &PlanningHandler{service: service}
}

func (h *PlanningHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /production-plan/{collection}", h.handleProductionPlan)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *PlanningHandler) handleProductionPlan(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	horizon := 0
	if raw := r.URL.Query().Get("horizon_weeks"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "horizon_weeks must be an integer"})
			return
		}
		horizon = v
	}

	plan, err := h.service.ProductionPlan(ctx, r.PathValue("collection"), horizon)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			logger.Ctx(ctx).Error().Err(err).Msg("production plan failed")
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func statusFor(err error) int {
	var verr *forecastdomain.ValidationError
	switch {
	case errors.Is(err, domain.ErrUnknownCollection):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidHorizon), errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, forecastdomain.ErrUntrainedModel):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
