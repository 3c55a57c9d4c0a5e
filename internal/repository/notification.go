package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/umrah-va-gateway/internal/domain"
)

const notificationColumns = `id, tenant_id, transaction_id, order_ref, virtual_account_id, payment_id,
	va_number, bank_code, transaction_status, status_code, gross_amount, amount, settled_at,
	payload, signature, status, processing_error, processed_at, created_at, updated_at`

const transactionIDKey = "payment_notifications_transaction_id_key"

type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification inside tx so the row and its queue job land
// together. A second row for the same transaction id yields ErrAlreadyExists.
func (r *NotificationRepository) Create(ctx context.Context, tx *sql.Tx, n *domain.PaymentNotification) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payment_notifications (
			id, tenant_id, transaction_id, order_ref, virtual_account_id, payment_id,
			va_number, bank_code, transaction_status, status_code, gross_amount, amount, settled_at,
			payload, signature, status, processing_error, processed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		n.ID, n.TenantID, n.TransactionID, n.OrderRef, n.VirtualAccountID, n.PaymentID,
		n.VANumber, n.BankCode, n.TransactionStatus, n.StatusCode, n.GrossAmount, n.Amount, n.SettledAt,
		n.Payload, n.Signature, n.Status, n.ProcessingError, n.ProcessedAt, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, transactionIDKey) {
			return fmt.Errorf("Create: %w", domain.ErrAlreadyExists)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *NotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentNotification, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM payment_notifications WHERE id = $1`,
		id,
	)
	n, err := scanNotification(row)
	if err != nil {
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return n, nil
}

func (r *NotificationRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.PaymentNotification, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM payment_notifications WHERE transaction_id = $1`,
		transactionID,
	)
	n, err := scanNotification(row)
	if err != nil {
		return nil, fmt.Errorf("GetByTransactionID: %w", err)
	}
	return n, nil
}

func (r *NotificationRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.PaymentNotification, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM payment_notifications WHERE id = $1 FOR UPDATE`,
		id,
	)
	n, err := scanNotification(row)
	if err != nil {
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return n, nil
}

func (r *NotificationRepository) ListByStatus(ctx context.Context, tenantID uuid.UUID, status domain.NotificationStatus, limit, offset int) ([]domain.PaymentNotification, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payment_notifications WHERE tenant_id = $1 AND status = $2`,
		tenantID, status,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByStatus: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM payment_notifications
		WHERE tenant_id = $1 AND status = $2
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		tenantID, status, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByStatus: %w", err)
	}
	defer rows.Close()

	notifications := []domain.PaymentNotification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListByStatus: scan: %w", err)
		}
		notifications = append(notifications, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ListByStatus: rows: %w", err)
	}
	return notifications, total, nil
}

// MarkProcessed is the last write of the settlement unit of work. The status
// guard keeps a processed row from being processed twice.
func (r *NotificationRepository) MarkProcessed(ctx context.Context, tx *sql.Tx, id uuid.UUID, paymentID *uuid.UUID, providerNote *string, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payment_notifications
		SET status = $1, payment_id = $2, processing_error = $3, processed_at = $4, updated_at = $4
		WHERE id = $5 AND status <> $1`,
		domain.NotificationStatusProcessed, paymentID, providerNote, at, id,
	)
	if err != nil {
		return fmt.Errorf("MarkProcessed: %w", err)
	}
	return expectOneRow(res, "MarkProcessed", domain.ErrInvalidState)
}

// MarkFailed records a processing error. Processed rows are never downgraded.
func (r *NotificationRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payment_notifications SET status = $1, processing_error = $2, updated_at = now()
		WHERE id = $3 AND status <> $4`,
		domain.NotificationStatusFailed, reason, id, domain.NotificationStatusProcessed,
	)
	if err != nil {
		return fmt.Errorf("MarkFailed: %w", err)
	}
	return expectOneRow(res, "MarkFailed", domain.ErrInvalidState)
}

// ResetFailed returns a failed notification to pending for an operator retry.
func (r *NotificationRepository) ResetFailed(ctx context.Context, tx *sql.Tx, tenantID, id uuid.UUID) error {
	var status domain.NotificationStatus
	err := tx.QueryRowContext(ctx,
		`SELECT status FROM payment_notifications WHERE id = $1 AND tenant_id = $2 FOR UPDATE`,
		id, tenantID,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("ResetFailed: %w", domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("ResetFailed: %w", err)
	}
	if status != domain.NotificationStatusFailed {
		return fmt.Errorf("ResetFailed: status %s: %w", status, domain.ErrInvalidState)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE payment_notifications SET status = $1, processing_error = NULL, updated_at = now()
		WHERE id = $2`,
		domain.NotificationStatusPending, id,
	)
	if err != nil {
		return fmt.Errorf("ResetFailed: %w", err)
	}
	return nil
}

// Advance replaces the provider fields of a notification whose recorded
// transaction status is still pending. The provider reuses one transaction id
// for the pending and the final notification of a charge. The replaced
// payload and signature are appended to payload_history.
func (r *NotificationRepository) Advance(ctx context.Context, tx *sql.Tx, n *domain.PaymentNotification) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payment_notifications
		SET payload_history = payload_history || jsonb_build_array(jsonb_build_object(
				'transaction_status', transaction_status,
				'status_code', status_code,
				'signature', signature,
				'payload', payload,
				'replaced_at', now()
			)),
			transaction_status = $1, status_code = $2, gross_amount = $3, amount = $4, settled_at = $5,
			payload = $6, signature = $7, status = $8, processing_error = NULL, processed_at = NULL,
			updated_at = now()
		WHERE id = $9 AND transaction_status = $10 AND payment_id IS NULL`,
		n.TransactionStatus, n.StatusCode, n.GrossAmount, n.Amount, n.SettledAt,
		n.Payload, n.Signature, domain.NotificationStatusPending, n.ID, domain.TransactionStatusPending,
	)
	if err != nil {
		return fmt.Errorf("Advance: %w", err)
	}
	return expectOneRow(res, "Advance", domain.ErrInvalidState)
}

func scanNotification(s scanner) (*domain.PaymentNotification, error) {
	var n domain.PaymentNotification
	err := s.Scan(
		&n.ID, &n.TenantID, &n.TransactionID, &n.OrderRef, &n.VirtualAccountID, &n.PaymentID,
		&n.VANumber, &n.BankCode, &n.TransactionStatus, &n.StatusCode, &n.GrossAmount, &n.Amount, &n.SettledAt,
		&n.Payload, &n.Signature, &n.Status, &n.ProcessingError, &n.ProcessedAt, &n.CreatedAt, &n.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}
