package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/josh-kwaku/umrah-va-gateway/internal/domain"
	"github.com/josh-kwaku/umrah-va-gateway/internal/logging"
	"github.com/josh-kwaku/umrah-va-gateway/internal/service"
)

const maxNotificationBody = 1 << 20

type notificationIngestor interface {
	ReceiveNotification(ctx context.Context, body []byte) (service.IngestResult, error)
}

type WebhookHandler struct {
	ingestor notificationIngestor
}

func NewWebhookHandler(ingestor notificationIngestor) *WebhookHandler {
	return &WebhookHandler{ingestor: ingestor}
}

// ReceiveMidtrans acknowledges with 200 once the notification is durably
// recorded. Anything other than 2xx makes the provider redeliver, so only
// transient failures answer 500.
func (h *WebhookHandler) ReceiveMidtrans(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBody+1))
	if err != nil {
		log.Warn("failed to read notification body", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if len(body) > maxNotificationBody {
		RespondAppError(w, ErrInvalidRequest, map[string]string{"body": "exceeds 1 MiB"})
		return
	}

	result, err := h.ingestor.ReceiveNotification(r.Context(), body)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidSignature):
			RespondAppError(w, ErrInvalidSignature, nil)
		case errors.Is(err, domain.ErrNotFound):
			RespondAppError(w, ErrUnknownVirtualAccount, nil)
		case errors.Is(err, domain.ErrInvalidRequest):
			RespondAppError(w, ErrInvalidRequest, nil)
		default:
			log.Error("failed to record notification", "error", err)
			RespondAppError(w, ErrInternalError, nil)
		}
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]string{"status": string(result)})
}
