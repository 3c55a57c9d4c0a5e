package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	NotificationStatusPending   NotificationStatus = "pending"
	NotificationStatusProcessed NotificationStatus = "processed"
	NotificationStatusFailed    NotificationStatus = "failed"
)

func (s NotificationStatus) IsValid() bool {
	switch s {
	case NotificationStatusPending, NotificationStatusProcessed, NotificationStatusFailed:
		return true
	}
	return false
}

// TransactionStatus is the raw settlement status reported by the gateway.
type TransactionStatus string

const (
	TransactionStatusSettlement TransactionStatus = "settlement"
	TransactionStatusCapture    TransactionStatus = "capture"
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusDeny       TransactionStatus = "deny"
	TransactionStatusCancel     TransactionStatus = "cancel"
	TransactionStatusExpire     TransactionStatus = "expire"
	TransactionStatusFailure    TransactionStatus = "failure"
)

func (s TransactionStatus) IsSettled() bool {
	return s == TransactionStatusSettlement || s == TransactionStatusCapture
}

type PaymentNotification struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	TransactionID     string
	OrderRef          string
	VirtualAccountID  *uuid.UUID
	PaymentID         *uuid.UUID
	VANumber          string
	BankCode          BankCode
	TransactionStatus TransactionStatus
	StatusCode        string
	GrossAmount       string
	Amount            int64
	SettledAt         *time.Time
	Payload           json.RawMessage
	Signature         string
	Status            NotificationStatus
	ProcessingError   *string
	ProcessedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
