package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/umrah-va-gateway/internal/domain"
)

const paymentColumns = `id, tenant_id, jamaah_id, package_id, amount, method, reference,
	status, paid_at, notes, created_at`

const paymentReferenceKey = "payments_va_reference_key"

// PaymentRepository writes into the ledger's payments table. Only inserts of
// confirmed payments happen here.
type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, tx *sql.Tx, p *domain.Payment) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payments (
			id, tenant_id, jamaah_id, package_id, amount, method, reference, status, paid_at, notes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.TenantID, p.CustomerID, p.PackageID, p.Amount, p.Method, p.Reference,
		p.Status, p.PaidAt, p.Notes, p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, paymentReferenceKey) {
			return fmt.Errorf("Create: %w", domain.ErrAlreadyExists)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	)
	p, err := scanPayment(row)
	if err != nil {
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return p, nil
}

func scanPayment(s scanner) (*domain.Payment, error) {
	var p domain.Payment
	var reference sql.NullString
	err := s.Scan(
		&p.ID, &p.TenantID, &p.CustomerID, &p.PackageID, &p.Amount, &p.Method, &reference,
		&p.Status, &p.PaidAt, &p.Notes, &p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Reference = reference.String
	return &p, nil
}
