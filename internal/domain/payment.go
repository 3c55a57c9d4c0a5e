package domain

import (
	"time"

	"github.com/google/uuid"
)

type PaymentMethod string

const PaymentMethodVirtualAccount PaymentMethod = "virtual_account"

type PaymentStatus string

const PaymentStatusConfirmed PaymentStatus = "confirmed"

// Payment is a ledger row. The gateway core only ever inserts already-settled
// payments; refunds and cancellation belong to the ledger.
type Payment struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	CustomerID uuid.UUID
	PackageID  *uuid.UUID
	Amount     int64
	Method     PaymentMethod
	Reference  string
	Status     PaymentStatus
	PaidAt     time.Time
	Notes      *string
	CreatedAt  time.Time
}
