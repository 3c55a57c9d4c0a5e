package handler

import (
	"context"
	"net/http"

	"github.com/josh-kwaku/umrah-va-gateway/internal/logging"
	"github.com/josh-kwaku/umrah-va-gateway/internal/service"
)

type diagnostics interface {
	GatewayStatus(ctx context.Context) (*service.GatewayStatus, error)
}

type GatewayHandler struct {
	diagnostics diagnostics
}

func NewGatewayHandler(d diagnostics) *GatewayHandler {
	return &GatewayHandler{diagnostics: d}
}

func (h *GatewayHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.diagnostics.GatewayStatus(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("gateway status failed", "error", err)
		RespondAppError(w, ErrInternalError, nil)
		return
	}
	RespondSuccess(w, http.StatusOK, status)
}
