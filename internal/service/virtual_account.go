package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/umrah-va-gateway/internal/domain"
	"github.com/josh-kwaku/umrah-va-gateway/internal/gateway"
	"github.com/josh-kwaku/umrah-va-gateway/internal/logging"
)

const DefaultVirtualAccountTTL = 24 * time.Hour

type vaMetrics interface {
	VirtualAccountIssued(bank string)
	VirtualAccountsExpired(n int64)
}

type IssueRequest struct {
	TenantID   uuid.UUID
	CustomerID uuid.UUID
	BankCode   domain.BankCode
	// Amount overrides the customer's package price when set.
	Amount *int64
}

// VirtualAccountService owns the VA lifecycle: issuance, close, lookup and
// expiry sweeps.
type VirtualAccountService struct {
	vas       virtualAccountRepository
	customers customerDirectory
	gateway   gateway.Client
	metrics   vaMetrics
	ttl       time.Duration
	now       func() time.Time
}

func NewVirtualAccountService(vas virtualAccountRepository, customers customerDirectory, gw gateway.Client, m vaMetrics, ttl time.Duration) *VirtualAccountService {
	if ttl <= 0 {
		ttl = DefaultVirtualAccountTTL
	}
	return &VirtualAccountService{
		vas:       vas,
		customers: customers,
		gateway:   gw,
		metrics:   m,
		ttl:       ttl,
		now:       time.Now,
	}
}

// IssueVirtualAccount creates a VA at the gateway and records it. At most one
// active VA exists per (tenant, customer, bank); a second request gets an
// *domain.ActiveVAExistsError naming the number already in use.
func (s *VirtualAccountService) IssueVirtualAccount(ctx context.Context, req IssueRequest) (*domain.VirtualAccount, error) {
	log := logging.FromContext(ctx)

	if !req.BankCode.IsValid() {
		return nil, fmt.Errorf("IssueVirtualAccount: %w: %s", domain.ErrUnsupportedBank, req.BankCode)
	}

	customer, err := s.customers.GetByID(ctx, req.TenantID, req.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("IssueVirtualAccount: %w", err)
	}

	var amount int64
	switch {
	case req.Amount != nil:
		amount = *req.Amount
	case customer.PackagePrice != nil:
		amount = *customer.PackagePrice
	}
	if amount <= 0 {
		return nil, fmt.Errorf("IssueVirtualAccount: %w", domain.ErrInvalidAmount)
	}

	if err := s.ensureNoActive(ctx, req); err != nil {
		return nil, fmt.Errorf("IssueVirtualAccount: %w", err)
	}

	id := uuid.New()
	orderRef := id.String()
	res, err := s.gateway.CreateVirtualAccount(ctx, gateway.CreateRequest{
		OrderRef:      orderRef,
		Amount:        amount,
		BankCode:      req.BankCode,
		CustomerName:  customer.Name,
		CustomerEmail: customer.Email,
		Expiry:        s.ttl,
	})
	if err != nil {
		log.Error("gateway create failed", "bank_code", req.BankCode, "customer_id", req.CustomerID, "error", err)
		return nil, fmt.Errorf("IssueVirtualAccount: %w", err)
	}

	now := s.now().UTC()
	va := &domain.VirtualAccount{
		ID:         id,
		TenantID:   req.TenantID,
		CustomerID: req.CustomerID,
		BankCode:   req.BankCode,
		VANumber:   res.VANumber,
		OrderRef:   orderRef,
		Amount:     &amount,
		Status:     domain.VirtualAccountStatusActive,
		ExpiresAt:  now.Add(s.ttl),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if res.TransactionID != "" {
		txID := res.TransactionID
		va.GatewayTransactionID = &txID
	}

	if err := s.vas.Create(ctx, va); err != nil {
		s.cancelOrphan(ctx, orderRef)
		if errors.Is(err, domain.ErrActiveVAExists) {
			if existing, lerr := s.vas.GetActive(ctx, req.TenantID, req.CustomerID, req.BankCode); lerr == nil {
				return nil, fmt.Errorf("IssueVirtualAccount: %w", &domain.ActiveVAExistsError{VANumber: existing.VANumber})
			}
		}
		return nil, fmt.Errorf("IssueVirtualAccount: %w", err)
	}

	if s.metrics != nil {
		s.metrics.VirtualAccountIssued(string(va.BankCode))
	}
	log.Info("virtual account issued",
		"virtual_account_id", va.ID,
		"customer_id", va.CustomerID,
		"bank_code", va.BankCode,
		"va_number", va.VANumber,
		"amount", amount,
		"expires_at", va.ExpiresAt,
	)
	return va, nil
}

func (s *VirtualAccountService) ensureNoActive(ctx context.Context, req IssueRequest) error {
	existing, err := s.vas.GetActive(ctx, req.TenantID, req.CustomerID, req.BankCode)
	if err == nil {
		return &domain.ActiveVAExistsError{VANumber: existing.VANumber}
	}
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

// cancelOrphan releases a gateway VA whose local record could not be written.
func (s *VirtualAccountService) cancelOrphan(ctx context.Context, orderRef string) {
	if err := s.gateway.Cancel(ctx, orderRef); err != nil {
		logging.FromContext(ctx).Warn("failed to cancel orphaned gateway VA", "order_ref", orderRef, "error", err)
	}
}

func (s *VirtualAccountService) GetVirtualAccount(ctx context.Context, tenantID, id uuid.UUID) (*domain.VirtualAccount, error) {
	va, err := s.vas.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("GetVirtualAccount: %w", err)
	}
	return va, nil
}

func (s *VirtualAccountService) ListByCustomer(ctx context.Context, tenantID, customerID uuid.UUID, activeOnly bool) ([]domain.VirtualAccount, error) {
	vas, err := s.vas.ListByCustomer(ctx, tenantID, customerID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("ListByCustomer: %w", err)
	}
	return vas, nil
}

// CloseVirtualAccount closes an active VA. Closing a closed VA returns it
// unchanged; used and expired VAs cannot be closed.
func (s *VirtualAccountService) CloseVirtualAccount(ctx context.Context, tenantID, id uuid.UUID) (*domain.VirtualAccount, error) {
	log := logging.FromContext(ctx)

	va, err := s.vas.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("CloseVirtualAccount: %w", err)
	}

	switch va.Status {
	case domain.VirtualAccountStatusClosed:
		return va, nil
	case domain.VirtualAccountStatusActive:
	default:
		return nil, fmt.Errorf("CloseVirtualAccount: %w: virtual account is %s", domain.ErrInvalidState, va.Status)
	}

	if err := s.gateway.Cancel(ctx, va.OrderRef); err != nil {
		log.Warn("gateway cancel failed, closing locally", "virtual_account_id", va.ID, "error", err)
	}

	now := s.now().UTC()
	if err := s.vas.Close(ctx, tenantID, id, now); err != nil {
		if !errors.Is(err, domain.ErrInvalidState) {
			return nil, fmt.Errorf("CloseVirtualAccount: %w", err)
		}
		current, gerr := s.vas.GetByID(ctx, tenantID, id)
		if gerr == nil && current.Status == domain.VirtualAccountStatusClosed {
			return current, nil
		}
		return nil, fmt.Errorf("CloseVirtualAccount: %w", err)
	}

	va.Status = domain.VirtualAccountStatusClosed
	va.ClosedAt = &now
	va.UpdatedAt = now
	log.Info("virtual account closed", "virtual_account_id", va.ID, "va_number", va.VANumber)
	return va, nil
}

// SweepExpired moves every active VA past its expiry to expired.
func (s *VirtualAccountService) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.vas.ExpireDue(ctx, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("SweepExpired: %w", err)
	}
	if n > 0 {
		if s.metrics != nil {
			s.metrics.VirtualAccountsExpired(n)
		}
		logging.FromContext(ctx).Info("expired virtual accounts", "count", n)
	}
	return n, nil
}
