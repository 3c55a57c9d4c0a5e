package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/umrah-va-gateway/internal/domain"
	"github.com/josh-kwaku/umrah-va-gateway/internal/logging"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type operatorNotificationRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentNotification, error)
	ListByStatus(ctx context.Context, tenantID uuid.UUID, status domain.NotificationStatus, limit, offset int) ([]domain.PaymentNotification, int, error)
	ResetFailed(ctx context.Context, tx *sql.Tx, tenantID, id uuid.UUID) error
}

// NotificationService backs the operator surface: inspecting notifications
// and retrying the ones that failed.
type NotificationService struct {
	db            txRunner
	notifications operatorNotificationRepository
	queue         enqueuer
}

func NewNotificationService(db txRunner, notifications operatorNotificationRepository, q enqueuer) *NotificationService {
	return &NotificationService{db: db, notifications: notifications, queue: q}
}

func (s *NotificationService) GetNotification(ctx context.Context, tenantID, id uuid.UUID) (*domain.PaymentNotification, error) {
	n, err := s.notifications.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetNotification: %w", err)
	}
	if n.TenantID != tenantID {
		return nil, fmt.Errorf("GetNotification: %w", domain.ErrNotFound)
	}
	return n, nil
}

func (s *NotificationService) ListNotifications(ctx context.Context, tenantID uuid.UUID, status domain.NotificationStatus, limit, offset int) ([]domain.PaymentNotification, int, error) {
	if !status.IsValid() {
		return nil, 0, fmt.Errorf("ListNotifications: %w: unknown status %q", domain.ErrInvalidRequest, status)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	list, total, err := s.notifications.ListByStatus(ctx, tenantID, status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("ListNotifications: %w", err)
	}
	return list, total, nil
}

// RetryNotification returns a failed notification to pending and queues it
// again in the same transaction.
func (s *NotificationService) RetryNotification(ctx context.Context, tenantID, id uuid.UUID) error {
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if err := s.notifications.ResetFailed(ctx, tx, tenantID, id); err != nil {
			return err
		}
		return s.queue.EnqueueTx(ctx, tx, id)
	})
	if err != nil {
		return fmt.Errorf("RetryNotification: %w", err)
	}
	s.queue.Wake()
	logging.FromContext(ctx).Info("notification queued for retry", "notification_id", id)
	return nil
}
