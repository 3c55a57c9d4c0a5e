package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/umrah-va-gateway/internal/domain"
	"github.com/josh-kwaku/umrah-va-gateway/internal/notify"
)

type txRunner interface {
	InTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

type customerDirectory interface {
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*domain.Customer, error)
}

type virtualAccountRepository interface {
	Create(ctx context.Context, va *domain.VirtualAccount) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*domain.VirtualAccount, error)
	GetActive(ctx context.Context, tenantID, customerID uuid.UUID, bank domain.BankCode) (*domain.VirtualAccount, error)
	ListByCustomer(ctx context.Context, tenantID, customerID uuid.UUID, activeOnly bool) ([]domain.VirtualAccount, error)
	Close(ctx context.Context, tenantID, id uuid.UUID, at time.Time) error
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

type enqueuer interface {
	Enqueue(ctx context.Context, notificationID uuid.UUID) error
	EnqueueTx(ctx context.Context, tx *sql.Tx, notificationID uuid.UUID) error
	Wake()
}

type paymentNotifier interface {
	PaymentConfirmed(ctx context.Context, evt notify.PaymentConfirmed) error
}
