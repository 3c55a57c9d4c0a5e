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

const virtualAccountColumns = `id, tenant_id, jamaah_id, bank_code, va_number, order_ref,
	gateway_transaction_id, amount, status, expires_at, used_at, closed_at, created_at, updated_at`

const oneActiveVAIndex = "virtual_accounts_one_active_idx"

type VirtualAccountRepository struct {
	db *sql.DB
}

func NewVirtualAccountRepository(db *sql.DB) *VirtualAccountRepository {
	return &VirtualAccountRepository{db: db}
}

// Create inserts an active VA. The partial unique index rejects a second
// active VA for the same tenant, customer and bank.
func (r *VirtualAccountRepository) Create(ctx context.Context, va *domain.VirtualAccount) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO virtual_accounts (
			id, tenant_id, jamaah_id, bank_code, va_number, order_ref,
			gateway_transaction_id, amount, status, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		va.ID, va.TenantID, va.CustomerID, va.BankCode, va.VANumber, va.OrderRef,
		va.GatewayTransactionID, va.Amount, va.Status, va.ExpiresAt, va.CreatedAt, va.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, oneActiveVAIndex) {
			return fmt.Errorf("Create: %w", domain.ErrActiveVAExists)
		}
		if isUniqueViolation(err, "") {
			return fmt.Errorf("Create: %w", domain.ErrAlreadyExists)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *VirtualAccountRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*domain.VirtualAccount, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+virtualAccountColumns+` FROM virtual_accounts WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	)
	va, err := scanVirtualAccount(row)
	if err != nil {
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return va, nil
}

// GetByNumber is tenant-agnostic: webhook callers are external and VA numbers
// are globally unique.
func (r *VirtualAccountRepository) GetByNumber(ctx context.Context, vaNumber string) (*domain.VirtualAccount, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+virtualAccountColumns+` FROM virtual_accounts WHERE va_number = $1`,
		vaNumber,
	)
	va, err := scanVirtualAccount(row)
	if err != nil {
		return nil, fmt.Errorf("GetByNumber: %w", err)
	}
	return va, nil
}

func (r *VirtualAccountRepository) GetByOrderRef(ctx context.Context, orderRef string) (*domain.VirtualAccount, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+virtualAccountColumns+` FROM virtual_accounts WHERE order_ref = $1`,
		orderRef,
	)
	va, err := scanVirtualAccount(row)
	if err != nil {
		return nil, fmt.Errorf("GetByOrderRef: %w", err)
	}
	return va, nil
}

func (r *VirtualAccountRepository) GetActive(ctx context.Context, tenantID, customerID uuid.UUID, bank domain.BankCode) (*domain.VirtualAccount, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+virtualAccountColumns+` FROM virtual_accounts
		WHERE tenant_id = $1 AND jamaah_id = $2 AND bank_code = $3 AND status = $4`,
		tenantID, customerID, bank, domain.VirtualAccountStatusActive,
	)
	va, err := scanVirtualAccount(row)
	if err != nil {
		return nil, fmt.Errorf("GetActive: %w", err)
	}
	return va, nil
}

func (r *VirtualAccountRepository) ListByCustomer(ctx context.Context, tenantID, customerID uuid.UUID, activeOnly bool) ([]domain.VirtualAccount, error) {
	query := `SELECT ` + virtualAccountColumns + ` FROM virtual_accounts
		WHERE tenant_id = $1 AND jamaah_id = $2`
	args := []any{tenantID, customerID}
	if activeOnly {
		query += ` AND status = $3`
		args = append(args, domain.VirtualAccountStatusActive)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListByCustomer: %w", err)
	}
	defer rows.Close()

	vas := []domain.VirtualAccount{}
	for rows.Next() {
		va, err := scanVirtualAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByCustomer: scan: %w", err)
		}
		vas = append(vas, *va)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByCustomer: rows: %w", err)
	}
	return vas, nil
}

func (r *VirtualAccountRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.VirtualAccount, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+virtualAccountColumns+` FROM virtual_accounts WHERE id = $1 FOR UPDATE`,
		id,
	)
	va, err := scanVirtualAccount(row)
	if err != nil {
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return va, nil
}

// MarkUsed moves an active or expired VA to used.
func (r *VirtualAccountRepository) MarkUsed(ctx context.Context, tx *sql.Tx, id uuid.UUID, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE virtual_accounts SET status = $1, used_at = $2, updated_at = $2
		WHERE id = $3 AND status IN ($4, $5)`,
		domain.VirtualAccountStatusUsed, at, id,
		domain.VirtualAccountStatusActive, domain.VirtualAccountStatusExpired,
	)
	if err != nil {
		return fmt.Errorf("MarkUsed: %w", err)
	}
	return expectOneRow(res, "MarkUsed", domain.ErrInvalidState)
}

// Close moves an active VA to closed. A VA in any other state is left alone
// and ErrInvalidState is returned.
func (r *VirtualAccountRepository) Close(ctx context.Context, tenantID, id uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE virtual_accounts SET status = $1, closed_at = $2, updated_at = $2
		WHERE id = $3 AND tenant_id = $4 AND status = $5`,
		domain.VirtualAccountStatusClosed, at, id, tenantID, domain.VirtualAccountStatusActive,
	)
	if err != nil {
		return fmt.Errorf("Close: %w", err)
	}
	return expectOneRow(res, "Close", domain.ErrInvalidState)
}

// ExpireDue transitions every active VA whose expiry has passed. Re-running
// it is a no-op for VAs already moved.
func (r *VirtualAccountRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE virtual_accounts SET status = $1, updated_at = $2
		WHERE status = $3 AND expires_at < $2`,
		domain.VirtualAccountStatusExpired, now, domain.VirtualAccountStatusActive,
	)
	if err != nil {
		return 0, fmt.Errorf("ExpireDue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ExpireDue: rows affected: %w", err)
	}
	return n, nil
}

func expectOneRow(res sql.Result, op string, noRows error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, noRows)
	}
	return nil
}

func scanVirtualAccount(s scanner) (*domain.VirtualAccount, error) {
	var va domain.VirtualAccount
	err := s.Scan(
		&va.ID, &va.TenantID, &va.CustomerID, &va.BankCode, &va.VANumber, &va.OrderRef,
		&va.GatewayTransactionID, &va.Amount, &va.Status, &va.ExpiresAt,
		&va.UsedAt, &va.ClosedAt, &va.CreatedAt, &va.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &va, nil
}
