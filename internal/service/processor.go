package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/josh-kwaku/umrah-va-gateway/internal/domain"
	"github.com/josh-kwaku/umrah-va-gateway/internal/notify"
)

var errAlreadyProcessed = errors.New("notification already processed")

type processorNotificationRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentNotification, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.PaymentNotification, error)
	MarkProcessed(ctx context.Context, tx *sql.Tx, id uuid.UUID, paymentID *uuid.UUID, providerNote *string, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

type processorVARepository interface {
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.VirtualAccount, error)
	MarkUsed(ctx context.Context, tx *sql.Tx, id uuid.UUID, at time.Time) error
}

type paymentWriter interface {
	Create(ctx context.Context, tx *sql.Tx, p *domain.Payment) error
}

type processorMetrics interface {
	NotificationProcessed(outcome string)
}

// NotificationProcessor turns a recorded notification into its effect. A
// settlement writes the payment, marks the VA used and marks the
// notification processed in one transaction.
type NotificationProcessor struct {
	db            txRunner
	notifications processorNotificationRepository
	vas           processorVARepository
	payments      paymentWriter
	customers     customerDirectory
	notifier      paymentNotifier
	metrics       processorMetrics
	logger        *slog.Logger
	now           func() time.Time
}

func NewNotificationProcessor(
	db txRunner,
	notifications processorNotificationRepository,
	vas processorVARepository,
	payments paymentWriter,
	customers customerDirectory,
	notifier paymentNotifier,
	m processorMetrics,
	logger *slog.Logger,
) *NotificationProcessor {
	return &NotificationProcessor{
		db:            db,
		notifications: notifications,
		vas:           vas,
		payments:      payments,
		customers:     customers,
		notifier:      notifier,
		metrics:       m,
		logger:        logger,
		now:           time.Now,
	}
}

// Process is the queue handler. A nil return completes the job; errors
// wrapped with backoff.Permanent are dead-lettered without further retries.
func (p *NotificationProcessor) Process(ctx context.Context, id uuid.UUID) error {
	log := p.logger.With("notification_id", id)

	n, err := p.notifications.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return backoff.Permanent(fmt.Errorf("Process: %w", err))
		}
		return fmt.Errorf("Process: %w", err)
	}
	if n.Status == domain.NotificationStatusProcessed {
		return nil
	}

	log = log.With("transaction_id", n.TransactionID, "tenant_id", n.TenantID)

	var (
		evt     *notify.PaymentConfirmed
		outcome string
	)
	err = p.db.InTx(ctx, func(tx *sql.Tx) error {
		// The recorded status may have advanced since the unlocked read, so
		// the branch is taken from the locked row.
		locked, err := p.notifications.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if locked.Status == domain.NotificationStatusProcessed {
			return errAlreadyProcessed
		}
		log = log.With("transaction_status", locked.TransactionStatus)

		switch {
		case locked.TransactionStatus.IsSettled():
			outcome = "settled"
			evt, err = p.settle(ctx, tx, log, locked)
			return err
		case locked.TransactionStatus == domain.TransactionStatusPending:
			outcome = "pending"
			return p.notifications.MarkProcessed(ctx, tx, locked.ID, nil, nil, p.now().UTC())
		default:
			outcome = "not_settled"
			note := fmt.Sprintf("provider reported %s", locked.TransactionStatus)
			return p.notifications.MarkProcessed(ctx, tx, locked.ID, nil, &note, p.now().UTC())
		}
	})

	if err != nil {
		if errors.Is(err, errAlreadyProcessed) {
			return nil
		}
		if ferr := p.notifications.MarkFailed(ctx, n.ID, err.Error()); ferr != nil {
			log.Error("failed to record processing error", "error", ferr)
		}
		p.record("failed")
		log.Error("notification processing failed", "error", err)
		return fmt.Errorf("Process: %w", err)
	}

	p.record(outcome)
	log.Info("notification processed", "outcome", outcome)

	if evt != nil && p.notifier != nil {
		if err := p.notifier.PaymentConfirmed(ctx, *evt); err != nil {
			log.Warn("payment confirmation not delivered to every sink", "payment_id", evt.PaymentID, "error", err)
		}
	}
	return nil
}

// settle writes the payment, marks the VA used and marks the notification
// processed inside tx. n must be locked by tx.
func (p *NotificationProcessor) settle(ctx context.Context, tx *sql.Tx, log *slog.Logger, n *domain.PaymentNotification) (*notify.PaymentConfirmed, error) {
	if n.VirtualAccountID == nil {
		return nil, backoff.Permanent(fmt.Errorf("settle: notification has no virtual account: %w", domain.ErrInvalidState))
	}

	va, err := p.vas.GetForUpdate(ctx, tx, *n.VirtualAccountID)
	if err != nil {
		return nil, err
	}
	if !va.CanSettle() {
		return nil, backoff.Permanent(fmt.Errorf("settle: virtual account %s is %s: %w", va.VANumber, va.Status, domain.ErrInvalidState))
	}
	if va.Amount != nil && *va.Amount != n.Amount {
		log.Warn("settled amount differs from requested amount",
			"virtual_account_id", va.ID,
			"requested", *va.Amount,
			"settled", n.Amount,
		)
	}

	customer, err := p.customers.GetByID(ctx, va.TenantID, va.CustomerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, backoff.Permanent(fmt.Errorf("settle: customer %s: %w", va.CustomerID, err))
		}
		return nil, err
	}

	now := p.now().UTC()
	paidAt := now
	if n.SettledAt != nil {
		paidAt = *n.SettledAt
	}
	note := fmt.Sprintf("Virtual account %s %s", va.BankCode.DisplayName(), va.VANumber)
	payment := &domain.Payment{
		ID:         uuid.New(),
		TenantID:   va.TenantID,
		CustomerID: va.CustomerID,
		PackageID:  customer.PackageID,
		Amount:     n.Amount,
		Method:     domain.PaymentMethodVirtualAccount,
		Reference:  n.TransactionID,
		Status:     domain.PaymentStatusConfirmed,
		PaidAt:     paidAt,
		Notes:      &note,
		CreatedAt:  now,
	}
	if err := p.payments.Create(ctx, tx, payment); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	if err := p.vas.MarkUsed(ctx, tx, va.ID, now); err != nil {
		return nil, err
	}
	if err := p.notifications.MarkProcessed(ctx, tx, n.ID, &payment.ID, nil, now); err != nil {
		return nil, err
	}

	return &notify.PaymentConfirmed{
		TenantID:         payment.TenantID,
		CustomerID:       payment.CustomerID,
		PaymentID:        payment.ID,
		VirtualAccountID: va.ID,
		NotificationID:   n.ID,
		VANumber:         va.VANumber,
		BankCode:         string(va.BankCode),
		Amount:           payment.Amount,
		Reference:        payment.Reference,
		PaidAt:           payment.PaidAt,
	}, nil
}

func (p *NotificationProcessor) record(outcome string) {
	if p.metrics != nil {
		p.metrics.NotificationProcessed(outcome)
	}
}
