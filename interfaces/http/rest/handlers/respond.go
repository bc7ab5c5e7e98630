package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"codetrail/pkg/common"
	pkgerrors "codetrail/pkg/errors"
)

// respondError translates service errors into the API error envelope.
// AppErrors carry their own status and code; anything else is reported
// as an opaque internal error.
func respondError(w http.ResponseWriter, logger *zap.Logger, err error) {
	if appErr := pkgerrors.GetAppError(err); appErr != nil {
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			logger.Error("Request failed", zap.Error(err))
		}
		common.RespondError(w, appErr.HTTPStatus, string(appErr.Type), appErr.Message)
		return
	}

	logger.Error("Request failed", zap.Error(err))
	common.RespondError(w, http.StatusInternalServerError, string(pkgerrors.ErrorTypeInternal), "internal error")
}
