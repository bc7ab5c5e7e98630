package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"codetrail/application/services"
	"codetrail/pkg/common"
	"codetrail/pkg/observability"
	"codetrail/pkg/utils"
)

// OrderHandler handles sibling ordering HTTP requests
type OrderHandler struct {
	order   *services.NodeOrderManager
	metrics *observability.Collector
	logger  *zap.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(order *services.NodeOrderManager, metrics *observability.Collector, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		order:   order,
		metrics: metrics,
		logger:  logger,
	}
}

// MoveToPositionRequest carries the 1-based target position
type MoveToPositionRequest struct {
	Position int `json:"position" validate:"required"`
}

// MoveUp handles POST /nodes/{nodeID}/order/up
func (h *OrderHandler) MoveUp(w http.ResponseWriter, r *http.Request) {
	h.swap(w, r, h.order.MoveNodeUp)
}

// MoveDown handles POST /nodes/{nodeID}/order/down
func (h *OrderHandler) MoveDown(w http.ResponseWriter, r *http.Request) {
	h.swap(w, r, h.order.MoveNodeDown)
}

// Position handles GET /nodes/{nodeID}/order. It reports the position
// alongside the movement predicates so a UI can enable its buttons in
// one round trip.
func (h *OrderHandler) Position(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "nodeID")

	position, err := h.order.GetNodePosition(r.Context(), nodeID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"position":    position,
		"canMoveUp":   h.order.CanMoveUp(r.Context(), nodeID),
		"canMoveDown": h.order.CanMoveDown(r.Context(), nodeID),
	})
}

// MoveToPosition handles PUT /nodes/{nodeID}/order
func (h *OrderHandler) MoveToPosition(w http.ResponseWriter, r *http.Request) {
	var req MoveToPositionRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", "invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", "validation error: "+err.Error())
		return
	}

	moved, err := h.order.MoveToPosition(r.Context(), chi.URLParam(r, "nodeID"), req.Position)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if moved {
		h.metrics.NodesReordered.Inc()
	}
	common.RespondJSON(w, http.StatusOK, map[string]bool{"moved": moved})
}

func (h *OrderHandler) swap(w http.ResponseWriter, r *http.Request, move func(ctx context.Context, nodeID string) (bool, error)) {
	moved, err := move(r.Context(), chi.URLParam(r, "nodeID"))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if moved {
		h.metrics.NodesReordered.Inc()
	}
	common.RespondJSON(w, http.StatusOK, map[string]bool{"moved": moved})
}
