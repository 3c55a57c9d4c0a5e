package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/umrah-va-gateway/internal/domain"
	"github.com/josh-kwaku/umrah-va-gateway/internal/gateway"
	"github.com/josh-kwaku/umrah-va-gateway/internal/logging"
)

// IngestResult describes what ingestion did with a verified notification.
type IngestResult string

const (
	IngestAccepted  IngestResult = "accepted"
	IngestDuplicate IngestResult = "duplicate"
	IngestRequeued  IngestResult = "requeued"
	IngestAdvanced  IngestResult = "advanced"
)

type signatureVerifier interface {
	VerifySignature(n *gateway.Notification) bool
}

type vaResolver interface {
	GetByNumber(ctx context.Context, vaNumber string) (*domain.VirtualAccount, error)
	GetByOrderRef(ctx context.Context, orderRef string) (*domain.VirtualAccount, error)
}

type ingestNotificationRepository interface {
	Create(ctx context.Context, tx *sql.Tx, n *domain.PaymentNotification) error
	GetByTransactionID(ctx context.Context, transactionID string) (*domain.PaymentNotification, error)
	Advance(ctx context.Context, tx *sql.Tx, n *domain.PaymentNotification) error
}

type webhookMetrics interface {
	WebhookReceived(result string)
}

// NotificationIngestor authenticates provider notifications, records each
// transaction once and hands it to the queue. It never settles inline.
type NotificationIngestor struct {
	db            txRunner
	verifier      signatureVerifier
	vas           vaResolver
	notifications ingestNotificationRepository
	queue         enqueuer
	metrics       webhookMetrics
	now           func() time.Time
}

func NewNotificationIngestor(db txRunner, verifier signatureVerifier, vas vaResolver, notifications ingestNotificationRepository, q enqueuer, m webhookMetrics) *NotificationIngestor {
	return &NotificationIngestor{
		db:            db,
		verifier:      verifier,
		vas:           vas,
		notifications: notifications,
		queue:         q,
		metrics:       m,
		now:           time.Now,
	}
}

// ReceiveNotification returns nil once the notification is durably recorded.
// Errors map to the response the provider sees: ErrInvalidSignature,
// ErrNotFound and ErrInvalidRequest are final; anything else asks for a
// redelivery.
func (s *NotificationIngestor) ReceiveNotification(ctx context.Context, body []byte) (IngestResult, error) {
	result, err := s.receive(ctx, body)
	if s.metrics != nil {
		label := string(result)
		if err != nil {
			label = errorLabel(err)
		}
		s.metrics.WebhookReceived(label)
	}
	return result, err
}

func (s *NotificationIngestor) receive(ctx context.Context, body []byte) (IngestResult, error) {
	log := logging.FromContext(ctx)

	n, err := gateway.ParseNotification(body)
	if err != nil {
		return "", fmt.Errorf("ReceiveNotification: %w: %v", domain.ErrInvalidRequest, err)
	}

	if n.TransactionID == "" || n.OrderID == "" || n.SignatureKey == "" || n.TransactionStatus == "" {
		return "", fmt.Errorf("ReceiveNotification: %w: transaction_id, order_id, transaction_status and signature_key are required", domain.ErrInvalidRequest)
	}

	if !s.verifier.VerifySignature(n) {
		log.Warn("notification signature rejected", "order_id", n.OrderID, "transaction_id", n.TransactionID)
		return "", fmt.Errorf("ReceiveNotification: %w", domain.ErrInvalidSignature)
	}

	amount, err := n.Amount()
	if err != nil {
		return "", fmt.Errorf("ReceiveNotification: %w: %v", domain.ErrInvalidRequest, err)
	}

	va, err := s.resolve(ctx, n)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn("notification for unknown virtual account", "order_id", n.OrderID, "transaction_id", n.TransactionID)
		}
		return "", fmt.Errorf("ReceiveNotification: %w", err)
	}

	log = log.With("transaction_id", n.TransactionID, "virtual_account_id", va.ID, "tenant_id", va.TenantID)
	ctx = logging.WithLogger(ctx, log)

	record := s.buildRecord(n, va, amount, body)

	existing, err := s.notifications.GetByTransactionID(ctx, n.TransactionID)
	switch {
	case err == nil:
		return s.redelivered(ctx, existing, record)
	case !errors.Is(err, domain.ErrNotFound):
		return "", fmt.Errorf("ReceiveNotification: %w", err)
	}

	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if err := s.notifications.Create(ctx, tx, record); err != nil {
			return err
		}
		return s.queue.EnqueueTx(ctx, tx, record.ID)
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			log.Info("notification recorded by concurrent delivery")
			return IngestDuplicate, nil
		}
		return "", fmt.Errorf("ReceiveNotification: %w", err)
	}
	s.queue.Wake()

	log.Info("notification accepted",
		"notification_id", record.ID,
		"transaction_status", record.TransactionStatus,
		"amount", record.Amount,
	)
	return IngestAccepted, nil
}

// redelivered handles a transaction id already on record. A final status
// replaces a recorded pending one; otherwise an unfinished record is put back
// on the queue and a processed one is acknowledged as is.
func (s *NotificationIngestor) redelivered(ctx context.Context, existing, incoming *domain.PaymentNotification) (IngestResult, error) {
	log := logging.FromContext(ctx)

	if existing.TransactionStatus == domain.TransactionStatusPending &&
		incoming.TransactionStatus != domain.TransactionStatusPending &&
		existing.PaymentID == nil {
		incoming.ID = existing.ID
		err := s.db.InTx(ctx, func(tx *sql.Tx) error {
			if err := s.notifications.Advance(ctx, tx, incoming); err != nil {
				return err
			}
			return s.queue.EnqueueTx(ctx, tx, existing.ID)
		})
		if err != nil {
			if errors.Is(err, domain.ErrInvalidState) {
				return IngestDuplicate, nil
			}
			return "", fmt.Errorf("ReceiveNotification: %w", err)
		}
		s.queue.Wake()
		log.Info("notification advanced", "notification_id", existing.ID, "transaction_status", incoming.TransactionStatus)
		return IngestAdvanced, nil
	}

	if existing.Status == domain.NotificationStatusProcessed {
		log.Info("duplicate notification ignored", "notification_id", existing.ID)
		return IngestDuplicate, nil
	}

	if err := s.queue.Enqueue(ctx, existing.ID); err != nil {
		log.Error("failed to requeue notification", "notification_id", existing.ID, "error", err)
	}
	log.Info("notification requeued", "notification_id", existing.ID, "status", existing.Status)
	return IngestRequeued, nil
}

// resolve finds the VA by the number the payer used, falling back to the
// order id we issued it under.
func (s *NotificationIngestor) resolve(ctx context.Context, n *gateway.Notification) (*domain.VirtualAccount, error) {
	number, bank := n.VirtualAccount()
	if number != "" {
		va, err := s.vas.GetByNumber(ctx, number)
		if err == nil {
			if bank != "" && va.BankCode != bank {
				return nil, fmt.Errorf("resolve: bank %s does not match %s: %w", bank, va.BankCode, domain.ErrNotFound)
			}
			return va, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	return s.vas.GetByOrderRef(ctx, n.OrderID)
}

func (s *NotificationIngestor) buildRecord(n *gateway.Notification, va *domain.VirtualAccount, amount int64, body []byte) *domain.PaymentNotification {
	now := s.now().UTC()
	vaID := va.ID
	number, bank := n.VirtualAccount()
	if number == "" {
		number, bank = va.VANumber, va.BankCode
	}
	return &domain.PaymentNotification{
		ID:                uuid.New(),
		TenantID:          va.TenantID,
		TransactionID:     n.TransactionID,
		OrderRef:          n.OrderID,
		VirtualAccountID:  &vaID,
		VANumber:          number,
		BankCode:          bank,
		TransactionStatus: domain.TransactionStatus(n.TransactionStatus),
		StatusCode:        n.StatusCode,
		GrossAmount:       n.GrossAmount,
		Amount:            amount,
		SettledAt:         n.SettledAt(),
		Payload:           json.RawMessage(body),
		Signature:         n.SignatureKey,
		Status:            domain.NotificationStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func errorLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, domain.ErrNotFound):
		return "unknown_va"
	case errors.Is(err, domain.ErrInvalidRequest):
		return "invalid"
	default:
		return "error"
	}
}
