package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"codetrail/application/services"
	"codetrail/pkg/common"
	"codetrail/pkg/observability"
	"codetrail/pkg/utils"
)

// ClipboardHandler handles clipboard HTTP requests
type ClipboardHandler struct {
	clipboard *services.ClipboardManager
	metrics   *observability.Collector
	logger    *zap.Logger
}

// NewClipboardHandler creates a new clipboard handler
func NewClipboardHandler(clipboard *services.ClipboardManager, metrics *observability.Collector, logger *zap.Logger) *ClipboardHandler {
	return &ClipboardHandler{
		clipboard: clipboard,
		metrics:   metrics,
		logger:    logger,
	}
}

// ClipboardCaptureRequest names the node to copy or cut
type ClipboardCaptureRequest struct {
	NodeID string `json:"nodeId" validate:"required"`
}

// PasteRequest names the paste target; empty means paste as a root
type PasteRequest struct {
	TargetParentID string `json:"targetParentId,omitempty"`
}

// Copy handles POST /clipboard/copy
func (h *ClipboardHandler) Copy(w http.ResponseWriter, r *http.Request) {
	h.capture(w, r, "copy")
}

// Cut handles POST /clipboard/cut
func (h *ClipboardHandler) Cut(w http.ResponseWriter, r *http.Request) {
	h.capture(w, r, "cut")
}

func (h *ClipboardHandler) capture(w http.ResponseWriter, r *http.Request, op string) {
	var req ClipboardCaptureRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", "invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", "validation error: "+err.Error())
		return
	}

	var err error
	if op == "cut" {
		err = h.clipboard.CutNode(r.Context(), req.NodeID)
	} else {
		err = h.clipboard.CopyNode(r.Context(), req.NodeID)
	}
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	h.metrics.ClipboardOps.WithLabelValues(op).Inc()
	common.RespondJSON(w, http.StatusOK, h.clipboard.Info())
}

// Paste handles POST /clipboard/paste
func (h *ClipboardHandler) Paste(w http.ResponseWriter, r *http.Request) {
	var req PasteRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", "invalid request body: "+err.Error())
		return
	}

	created, err := h.clipboard.PasteNode(r.Context(), req.TargetParentID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	h.metrics.ClipboardOps.WithLabelValues("paste").Inc()
	common.RespondJSON(w, http.StatusCreated, created)
}

// Clear handles DELETE /clipboard
func (h *ClipboardHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.clipboard.Clear()
	common.RespondJSON(w, http.StatusOK, map[string]string{"message": "clipboard cleared"})
}

// Info handles GET /clipboard. An empty clipboard reports hasData false
// with no entry rather than an error.
func (h *ClipboardHandler) Info(w http.ResponseWriter, r *http.Request) {
	info := h.clipboard.Info()
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"hasData": info != nil,
		"entry":   info,
	})
}
