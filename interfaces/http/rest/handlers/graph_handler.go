package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"codetrail/application/ports"
	"codetrail/pkg/common"
	"codetrail/pkg/utils"
)

// GraphHandler handles graph-level HTTP requests
type GraphHandler struct {
	graphs ports.GraphProvider
	logger *zap.Logger
}

// NewGraphHandler creates a new graph handler
func NewGraphHandler(graphs ports.GraphProvider, logger *zap.Logger) *GraphHandler {
	return &GraphHandler{
		graphs: graphs,
		logger: logger,
	}
}

// CreateGraphRequest names the graph to create
type CreateGraphRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

// ListGraphs handles GET /graphs
func (h *GraphHandler) ListGraphs(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.graphs.ListGraphs(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, summaries)
}

// GetGraph handles GET /graphs/{graphID}
func (h *GraphHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	graph, err := h.graphs.LoadGraph(r.Context(), chi.URLParam(r, "graphID"))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, graph)
}

// GetCurrentGraph handles GET /graphs/current. Returns null when no
// graph exists yet.
func (h *GraphHandler) GetCurrentGraph(w http.ResponseWriter, r *http.Request) {
	graph, err := h.graphs.GetCurrentGraph(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, graph)
}

// CreateGraph handles POST /graphs. The new graph becomes current.
func (h *GraphHandler) CreateGraph(w http.ResponseWriter, r *http.Request) {
	var req CreateGraphRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", "invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", "validation error: "+err.Error())
		return
	}

	graph, err := h.graphs.CreateGraph(r.Context(), req.Name)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, graph)
}

// DeleteGraph handles DELETE /graphs/{graphID}
func (h *GraphHandler) DeleteGraph(w http.ResponseWriter, r *http.Request) {
	if err := h.graphs.DeleteGraph(r.Context(), chi.URLParam(r, "graphID")); err != nil {
		respondError(w, h.logger, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"message": "graph deleted"})
}

// SwitchGraphRequest names the graph to activate
type SwitchGraphRequest struct {
	GraphID string `json:"graphId" validate:"required"`
}

// SwitchCurrentGraph handles PUT /graphs/current
func (h *GraphHandler) SwitchCurrentGraph(w http.ResponseWriter, r *http.Request) {
	var req SwitchGraphRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", "invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", "validation error: "+err.Error())
		return
	}

	graph, err := h.graphs.LoadGraph(r.Context(), req.GraphID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if err := h.graphs.SetCurrentGraph(r.Context(), graph); err != nil {
		respondError(w, h.logger, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, graph)
}
