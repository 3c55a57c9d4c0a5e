package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/umrah-va-gateway/internal/domain"
	"github.com/josh-kwaku/umrah-va-gateway/internal/logging"
)

type notificationService interface {
	ListNotifications(ctx context.Context, tenantID uuid.UUID, status domain.NotificationStatus, limit, offset int) ([]domain.PaymentNotification, int, error)
	RetryNotification(ctx context.Context, tenantID, id uuid.UUID) error
}

type NotificationHandler struct {
	notifications notificationService
}

func NewNotificationHandler(notifications notificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

type notificationDTO struct {
	ID                uuid.UUID  `json:"id"`
	TransactionID     string     `json:"transaction_id"`
	VirtualAccountID  *uuid.UUID `json:"virtual_account_id"`
	PaymentID         *uuid.UUID `json:"payment_id"`
	VANumber          string     `json:"va_number"`
	BankCode          string     `json:"bank_code"`
	TransactionStatus string     `json:"transaction_status"`
	Amount            int64      `json:"amount"`
	Status            string     `json:"status"`
	ProcessingError   *string    `json:"processing_error,omitempty"`
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func toNotificationDTO(n *domain.PaymentNotification) notificationDTO {
	return notificationDTO{
		ID:                n.ID,
		TransactionID:     n.TransactionID,
		VirtualAccountID:  n.VirtualAccountID,
		PaymentID:         n.PaymentID,
		VANumber:          n.VANumber,
		BankCode:          string(n.BankCode),
		TransactionStatus: string(n.TransactionStatus),
		Amount:            n.Amount,
		Status:            string(n.Status),
		ProcessingError:   n.ProcessingError,
		ProcessedAt:       n.ProcessedAt,
		CreatedAt:         n.CreatedAt,
	}
}

type notificationPage struct {
	Items  []notificationDTO `json:"items"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, appErr := tenantFromRequest(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	q := r.URL.Query()
	status := domain.NotificationStatus(q.Get("status"))
	if status == "" {
		status = domain.NotificationStatusFailed
	}
	if !status.IsValid() {
		RespondValidationError(w, []FieldError{{Field: "status", Message: "must be one of: pending, processed, failed"}})
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	list, total, err := h.notifications.ListNotifications(r.Context(), tenantID, status, limit, offset)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list notifications", "error", err)
		RespondDomainError(w, err)
		return
	}

	page := notificationPage{Items: make([]notificationDTO, len(list)), Total: total, Limit: limit, Offset: offset}
	for i := range list {
		page.Items[i] = toNotificationDTO(&list[i])
	}
	RespondSuccess(w, http.StatusOK, page)
}

func (h *NotificationHandler) Retry(w http.ResponseWriter, r *http.Request) {
	tenantID, appErr := tenantFromRequest(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}
	id, appErr := pathUUID(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	if err := h.notifications.RetryNotification(r.Context(), tenantID, id); err != nil {
		logging.FromContext(r.Context()).Warn("notification retry rejected", "notification_id", id, "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusAccepted, map[string]string{"id": id.String(), "status": string(domain.NotificationStatusPending)})
}
