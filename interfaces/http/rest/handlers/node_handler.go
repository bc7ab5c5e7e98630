package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"codetrail/application/services"
	"codetrail/pkg/common"
	"codetrail/pkg/observability"
	"codetrail/pkg/utils"
)

const maxBodyBytes = 1 << 20

// NodeHandler handles node-related HTTP requests
type NodeHandler struct {
	nodes   *services.NodeManager
	metrics *observability.Collector
	logger  *zap.Logger
}

// NewNodeHandler creates a new node handler
func NewNodeHandler(nodes *services.NodeManager, metrics *observability.Collector, logger *zap.Logger) *NodeHandler {
	return &NodeHandler{
		nodes:   nodes,
		metrics: metrics,
		logger:  logger,
	}
}

// CreateNodeRequest represents the request body for creating a root node
type CreateNodeRequest struct {
	Name        string `json:"name" validate:"required,max=500"`
	FilePath    string `json:"filePath" validate:"required"`
	LineNumber  int    `json:"lineNumber" validate:"required,gt=0"`
	CodeSnippet string `json:"codeSnippet,omitempty" validate:"omitempty,max=5000"`
}

// CreateRelativeRequest is the body for child, parent and sibling creation
type CreateRelativeRequest struct {
	Name       string `json:"name" validate:"required,max=500"`
	FilePath   string `json:"filePath" validate:"required"`
	LineNumber int    `json:"lineNumber" validate:"required,gt=0"`
}

// SetCurrentRequest selects the focused node
type SetCurrentRequest struct {
	NodeID string `json:"nodeId" validate:"required"`
}

// CreateNode handles POST /nodes
func (h *NodeHandler) CreateNode(w http.ResponseWriter, r *http.Request) {
	var req CreateNodeRequest
	if !h.decode(w, r, &req) {
		return
	}

	node, err := h.nodes.CreateNode(r.Context(), req.Name, req.FilePath, req.LineNumber, req.CodeSnippet)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	h.metrics.NodesCreated.Inc()
	common.RespondJSON(w, http.StatusCreated, node)
}

// CreateChildNode handles POST /nodes/{nodeID}/children
func (h *NodeHandler) CreateChildNode(w http.ResponseWriter, r *http.Request) {
	var req CreateRelativeRequest
	if !h.decode(w, r, &req) {
		return
	}

	node, err := h.nodes.CreateChildNode(r.Context(), chi.URLParam(r, "nodeID"), req.Name, req.FilePath, req.LineNumber)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	h.metrics.NodesCreated.Inc()
	common.RespondJSON(w, http.StatusCreated, node)
}

// CreateParentNode handles POST /nodes/{nodeID}/parent
func (h *NodeHandler) CreateParentNode(w http.ResponseWriter, r *http.Request) {
	var req CreateRelativeRequest
	if !h.decode(w, r, &req) {
		return
	}

	node, err := h.nodes.CreateParentNode(r.Context(), chi.URLParam(r, "nodeID"), req.Name, req.FilePath, req.LineNumber)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	h.metrics.NodesCreated.Inc()
	common.RespondJSON(w, http.StatusCreated, node)
}

// CreateSiblingNode handles POST /nodes/sibling
func (h *NodeHandler) CreateSiblingNode(w http.ResponseWriter, r *http.Request) {
	var req CreateRelativeRequest
	if !h.decode(w, r, &req) {
		return
	}

	node, err := h.nodes.CreateSiblingNode(r.Context(), req.Name, req.FilePath, req.LineNumber)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	h.metrics.NodesCreated.Inc()
	common.RespondJSON(w, http.StatusCreated, node)
}

// GetNode handles GET /nodes/{nodeID}
func (h *NodeHandler) GetNode(w http.ResponseWriter, r *http.Request) {
	node, err := h.nodes.GetNode(r.Context(), chi.URLParam(r, "nodeID"))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, node)
}

// UpdateNode handles PATCH /nodes/{nodeID}. The body is the partial
// update object itself; field whitelisting happens in the service.
func (h *NodeHandler) UpdateNode(w http.ResponseWriter, r *http.Request) {
	var updates map[string]interface{}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&updates); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", "invalid request body: "+err.Error())
		return
	}

	node, err := h.nodes.UpdateNode(r.Context(), chi.URLParam(r, "nodeID"), updates)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, node)
}

// DeleteNode handles DELETE /nodes/{nodeID}. With ?withChildren=true the
// whole subtree goes; otherwise children are promoted.
func (h *NodeHandler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "nodeID")
	withChildren, _ := strconv.ParseBool(r.URL.Query().Get("withChildren"))

	var err error
	if withChildren {
		err = h.nodes.DeleteNodeWithChildren(r.Context(), nodeID)
	} else {
		err = h.nodes.DeleteNode(r.Context(), nodeID)
	}
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	h.metrics.NodesDeleted.Inc()
	common.RespondJSON(w, http.StatusOK, map[string]string{"message": "node deleted"})
}

// FindNodes handles GET /nodes/search. q searches names, filePath and
// lineNumber match locations; both together rank location hits first.
func (h *NodeHandler) FindNodes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	filePath := r.URL.Query().Get("filePath")
	lineNumber, _ := strconv.Atoi(r.URL.Query().Get("lineNumber"))

	switch {
	case query == "" && filePath == "":
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", "q or filePath is required")
	case query == "":
		nodes, err := h.nodes.FindNodesByLocation(r.Context(), filePath, lineNumber)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		common.RespondJSON(w, http.StatusOK, nodes)
	case filePath == "":
		nodes, err := h.nodes.FindNodesByName(r.Context(), query)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		common.RespondJSON(w, http.StatusOK, nodes)
	default:
		nodes, err := h.nodes.FindNodesIntelligent(r.Context(), query, filePath, lineNumber)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		common.RespondJSON(w, http.StatusOK, nodes)
	}
}

// GetCurrentNode handles GET /nodes/current
func (h *NodeHandler) GetCurrentNode(w http.ResponseWriter, r *http.Request) {
	node, err := h.nodes.GetCurrentNode(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, node)
}

// SetCurrentNode handles PUT /nodes/current
func (h *NodeHandler) SetCurrentNode(w http.ResponseWriter, r *http.Request) {
	var req SetCurrentRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.nodes.SetCurrentNode(r.Context(), req.NodeID); err != nil {
		respondError(w, h.logger, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"currentNodeId": req.NodeID})
}

// ClearCurrentNode handles DELETE /nodes/current
func (h *NodeHandler) ClearCurrentNode(w http.ResponseWriter, r *http.Request) {
	if err := h.nodes.ClearCurrentNode(r.Context()); err != nil {
		respondError(w, h.logger, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"message": "current node cleared"})
}

// ValidateLocation handles POST /nodes/{nodeID}/validate-location
func (h *NodeHandler) ValidateLocation(w http.ResponseWriter, r *http.Request) {
	result, err := h.nodes.ValidateNodeLocation(r.Context(), chi.URLParam(r, "nodeID"))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// RelocateNode handles POST /nodes/{nodeID}/relocate
func (h *NodeHandler) RelocateNode(w http.ResponseWriter, r *http.Request) {
	node, err := h.nodes.RelocateNode(r.Context(), chi.URLParam(r, "nodeID"))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, node)
}

// decode parses and validates a JSON request body, responding on failure.
func (h *NodeHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := common.ParseJSONBody(r, v, maxBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", "invalid request body: "+err.Error())
		return false
	}
	if err := utils.ValidateStruct(v); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", "validation error: "+err.Error())
		return false
	}
	return true
}
