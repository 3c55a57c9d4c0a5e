package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/umrah-va-gateway/internal/domain"
	"github.com/josh-kwaku/umrah-va-gateway/internal/logging"
	"github.com/josh-kwaku/umrah-va-gateway/internal/service"
)

type virtualAccountService interface {
	IssueVirtualAccount(ctx context.Context, req service.IssueRequest) (*domain.VirtualAccount, error)
	CloseVirtualAccount(ctx context.Context, tenantID, id uuid.UUID) (*domain.VirtualAccount, error)
	GetVirtualAccount(ctx context.Context, tenantID, id uuid.UUID) (*domain.VirtualAccount, error)
	ListByCustomer(ctx context.Context, tenantID, customerID uuid.UUID, activeOnly bool) ([]domain.VirtualAccount, error)
	ProviderStatus(ctx context.Context, tenantID, id uuid.UUID) (*service.ProviderStatus, error)
}

type VirtualAccountHandler struct {
	vas virtualAccountService
}

func NewVirtualAccountHandler(vas virtualAccountService) *VirtualAccountHandler {
	return &VirtualAccountHandler{vas: vas}
}

type issueVirtualAccountRequest struct {
	BankCode string `json:"bank_code" validate:"required,oneof=bca bni bri permata cimb mandiri"`
	Amount   *int64 `json:"amount,omitempty" validate:"omitnil,gt=0"`
}

type virtualAccountDTO struct {
	ID         uuid.UUID  `json:"id"`
	CustomerID uuid.UUID  `json:"customer_id"`
	BankCode   string     `json:"bank_code"`
	BankName   string     `json:"bank_name"`
	VANumber   string     `json:"va_number"`
	Amount     *int64     `json:"amount"`
	Status     string     `json:"status"`
	ExpiresAt  time.Time  `json:"expires_at"`
	UsedAt     *time.Time `json:"used_at,omitempty"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func toVirtualAccountDTO(va *domain.VirtualAccount) virtualAccountDTO {
	return virtualAccountDTO{
		ID:         va.ID,
		CustomerID: va.CustomerID,
		BankCode:   string(va.BankCode),
		BankName:   va.BankCode.DisplayName(),
		VANumber:   va.VANumber,
		Amount:     va.Amount,
		Status:     string(va.Status),
		ExpiresAt:  va.ExpiresAt,
		UsedAt:     va.UsedAt,
		ClosedAt:   va.ClosedAt,
		CreatedAt:  va.CreatedAt,
	}
}

func (h *VirtualAccountHandler) Issue(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	tenantID, appErr := tenantFromRequest(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}
	customerID, appErr := pathUUID(r, "customerId")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req issueVirtualAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := validateStruct(req); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	va, err := h.vas.IssueVirtualAccount(r.Context(), service.IssueRequest{
		TenantID:   tenantID,
		CustomerID: customerID,
		BankCode:   domain.BankCode(req.BankCode),
		Amount:     req.Amount,
	})
	if err != nil {
		log.Warn("virtual account issuance failed", "customer_id", customerID, "bank_code", req.BankCode, "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/virtual-accounts/%s", va.ID))
	RespondSuccess(w, http.StatusCreated, toVirtualAccountDTO(va))
}

func (h *VirtualAccountHandler) ListByCustomer(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, r.URL.Query().Get("active") == "true")
}

func (h *VirtualAccountHandler) ListActiveByCustomer(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

func (h *VirtualAccountHandler) list(w http.ResponseWriter, r *http.Request, activeOnly bool) {
	tenantID, appErr := tenantFromRequest(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}
	customerID, appErr := pathUUID(r, "customerId")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	vas, err := h.vas.ListByCustomer(r.Context(), tenantID, customerID, activeOnly)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list virtual accounts", "customer_id", customerID, "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]virtualAccountDTO, len(vas))
	for i := range vas {
		dtos[i] = toVirtualAccountDTO(&vas[i])
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *VirtualAccountHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	va, err := h.vas.GetVirtualAccount(r.Context(), tenantID, id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toVirtualAccountDTO(va))
}

func (h *VirtualAccountHandler) Close(w http.ResponseWriter, r *http.Request) {
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

	va, err := h.vas.CloseVirtualAccount(r.Context(), tenantID, id)
	if err != nil {
		logging.FromContext(r.Context()).Warn("virtual account close failed", "virtual_account_id", id, "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toVirtualAccountDTO(va))
}

// ProviderStatus reports what the gateway currently says about the VA.
func (h *VirtualAccountHandler) ProviderStatus(w http.ResponseWriter, r *http.Request) {
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

	status, err := h.vas.ProviderStatus(r.Context(), tenantID, id)
	if err != nil {
		logging.FromContext(r.Context()).Warn("gateway status query failed", "virtual_account_id", id, "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, status)
}
