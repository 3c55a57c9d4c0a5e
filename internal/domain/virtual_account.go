package domain

import (
	"time"

	"github.com/google/uuid"
)

type VirtualAccountStatus string

const (
	VirtualAccountStatusActive  VirtualAccountStatus = "active"
	VirtualAccountStatusUsed    VirtualAccountStatus = "used"
	VirtualAccountStatusExpired VirtualAccountStatus = "expired"
	VirtualAccountStatusClosed  VirtualAccountStatus = "closed"
)

// IsTerminal reports whether no further status transition is permitted.
func (s VirtualAccountStatus) IsTerminal() bool {
	return s == VirtualAccountStatusUsed || s == VirtualAccountStatusClosed
}

type VirtualAccount struct {
	ID                   uuid.UUID
	TenantID             uuid.UUID
	CustomerID           uuid.UUID
	BankCode             BankCode
	VANumber             string
	OrderRef             string
	GatewayTransactionID *string
	Amount               *int64
	Status               VirtualAccountStatus
	ExpiresAt            time.Time
	UsedAt               *time.Time
	ClosedAt             *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// CanSettle reports whether a settlement may still be posted against the VA.
// Expiry is local bookkeeping; money settled after it is still accepted.
func (va *VirtualAccount) CanSettle() bool {
	return va.Status == VirtualAccountStatusActive || va.Status == VirtualAccountStatusExpired
}
