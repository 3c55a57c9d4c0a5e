package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/umrah-va-gateway/internal/domain"
	"github.com/josh-kwaku/umrah-va-gateway/internal/logging"
)

// ProviderStatus is the gateway's view of a VA next to ours. InSync is false
// when the two disagree, which usually means a notification never arrived.
type ProviderStatus struct {
	VirtualAccountID  uuid.UUID                   `json:"virtual_account_id"`
	OrderRef          string                      `json:"order_ref"`
	LocalStatus       domain.VirtualAccountStatus `json:"local_status"`
	TransactionStatus domain.TransactionStatus    `json:"transaction_status"`
	TransactionID     string                      `json:"transaction_id,omitempty"`
	StatusCode        string                      `json:"status_code"`
	StatusMessage     string                      `json:"status_message,omitempty"`
	GrossAmount       string                      `json:"gross_amount,omitempty"`
	InSync            bool                        `json:"in_sync"`
	Raw               json.RawMessage             `json:"raw"`
}

type providerStatusBody struct {
	StatusCode        string `json:"status_code"`
	StatusMessage     string `json:"status_message"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	GrossAmount       string `json:"gross_amount"`
}

// ProviderStatus asks the gateway for the current state of a tenant's VA.
// Gateway failures come back as ErrGatewayUnavailable or ErrGatewayRejected.
func (s *VirtualAccountService) ProviderStatus(ctx context.Context, tenantID, id uuid.UUID) (*ProviderStatus, error) {
	va, err := s.vas.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("ProviderStatus: %w", err)
	}

	raw, err := s.gateway.QueryStatus(ctx, va.OrderRef)
	if err != nil {
		return nil, fmt.Errorf("ProviderStatus: %w", err)
	}

	var body providerStatusBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("ProviderStatus: %w: unreadable status response: %v", domain.ErrGatewayUnavailable, err)
	}

	status := &ProviderStatus{
		VirtualAccountID:  va.ID,
		OrderRef:          va.OrderRef,
		LocalStatus:       va.Status,
		TransactionStatus: domain.TransactionStatus(body.TransactionStatus),
		TransactionID:     body.TransactionID,
		StatusCode:        body.StatusCode,
		StatusMessage:     body.StatusMessage,
		GrossAmount:       body.GrossAmount,
		Raw:               raw,
	}
	status.InSync = inSync(status.LocalStatus, status.TransactionStatus)
	if !status.InSync {
		logging.FromContext(ctx).Warn("virtual account out of sync with gateway",
			"virtual_account_id", va.ID,
			"local_status", va.Status,
			"transaction_status", body.TransactionStatus,
		)
	}
	return status, nil
}

func inSync(local domain.VirtualAccountStatus, remote domain.TransactionStatus) bool {
	switch local {
	case domain.VirtualAccountStatusActive:
		return remote == domain.TransactionStatusPending
	case domain.VirtualAccountStatusUsed:
		return remote.IsSettled()
	case domain.VirtualAccountStatusExpired:
		return remote == domain.TransactionStatusExpire || remote == domain.TransactionStatusPending
	case domain.VirtualAccountStatusClosed:
		return remote == domain.TransactionStatusCancel || remote == domain.TransactionStatusExpire || remote == domain.TransactionStatusDeny
	}
	return false
}
