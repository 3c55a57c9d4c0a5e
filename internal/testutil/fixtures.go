package testutil

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/umrah-va-gateway/internal/domain"
)

func SeedPackage(t *testing.T, db *sql.DB, tenantID uuid.UUID, price int64) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := db.Exec(
		`INSERT INTO packages (id, tenant_id, name, price) VALUES ($1, $2, $3, $4)`,
		id, tenantID, "Umrah Reguler 9 Hari", price,
	)
	if err != nil {
		t.Fatalf("seed package: %v", err)
	}
	return id
}

func SeedCustomer(t *testing.T, db *sql.DB, tenantID uuid.UUID, name string, packageID *uuid.UUID) *domain.Customer {
	t.Helper()

	c := &domain.Customer{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Name:      name,
		Email:     "jamaah@example.com",
		PackageID: packageID,
	}
	_, err := db.Exec(
		`INSERT INTO jamaah (id, tenant_id, full_name, email, package_id) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.TenantID, c.Name, c.Email, c.PackageID,
	)
	if err != nil {
		t.Fatalf("seed customer %s: %v", name, err)
	}
	return c
}

func SeedVirtualAccount(t *testing.T, db *sql.DB, c *domain.Customer, bank domain.BankCode, vaNumber string, status domain.VirtualAccountStatus, expiresAt time.Time) *domain.VirtualAccount {
	t.Helper()

	amount := int64(5_000_000)
	now := time.Now().UTC()
	va := &domain.VirtualAccount{
		ID:         uuid.New(),
		TenantID:   c.TenantID,
		CustomerID: c.ID,
		BankCode:   bank,
		VANumber:   vaNumber,
		OrderRef:   "order-" + uuid.NewString(),
		Amount:     &amount,
		Status:     status,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := db.Exec(
		`INSERT INTO virtual_accounts (
			id, tenant_id, jamaah_id, bank_code, va_number, order_ref, amount, status, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		va.ID, va.TenantID, va.CustomerID, va.BankCode, va.VANumber, va.OrderRef,
		va.Amount, va.Status, va.ExpiresAt, va.CreatedAt, va.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed virtual account %s: %v", vaNumber, err)
	}
	return va
}

func SeedNotification(t *testing.T, db *sql.DB, va *domain.VirtualAccount, transactionID string, txStatus domain.TransactionStatus, status domain.NotificationStatus) *domain.PaymentNotification {
	t.Helper()

	payload, _ := json.Marshal(map[string]any{
		"transaction_id":     transactionID,
		"transaction_status": txStatus,
		"order_id":           va.OrderRef,
		"status_code":        "200",
		"gross_amount":       "5000000.00",
		"va_numbers":         []map[string]string{{"bank": string(va.BankCode), "va_number": va.VANumber}},
	})
	now := time.Now().UTC()
	n := &domain.PaymentNotification{
		ID:                uuid.New(),
		TenantID:          va.TenantID,
		TransactionID:     transactionID,
		OrderRef:          va.OrderRef,
		VirtualAccountID:  &va.ID,
		VANumber:          va.VANumber,
		BankCode:          va.BankCode,
		TransactionStatus: txStatus,
		StatusCode:        "200",
		GrossAmount:       "5000000.00",
		Amount:            5_000_000,
		SettledAt:         &now,
		Payload:           payload,
		Signature:         "test-signature",
		Status:            status,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	_, err := db.Exec(
		`INSERT INTO payment_notifications (
			id, tenant_id, transaction_id, order_ref, virtual_account_id, va_number, bank_code,
			transaction_status, status_code, gross_amount, amount, settled_at, payload, signature,
			status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		n.ID, n.TenantID, n.TransactionID, n.OrderRef, n.VirtualAccountID, n.VANumber, n.BankCode,
		n.TransactionStatus, n.StatusCode, n.GrossAmount, n.Amount, n.SettledAt, n.Payload, n.Signature,
		n.Status, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed notification %s: %v", transactionID, err)
	}
	return n
}

func CountPayments(t *testing.T, db *sql.DB, reference string) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM payments WHERE reference = $1`, reference).Scan(&count)
	if err != nil {
		t.Fatalf("count payments for %s: %v", reference, err)
	}
	return count
}

func CountNotifications(t *testing.T, db *sql.DB) int {
	t.Helper()

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM payment_notifications`).Scan(&count); err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	return count
}

func GetVirtualAccountStatus(t *testing.T, db *sql.DB, id uuid.UUID) domain.VirtualAccountStatus {
	t.Helper()

	var status domain.VirtualAccountStatus
	if err := db.QueryRow(`SELECT status FROM virtual_accounts WHERE id = $1`, id).Scan(&status); err != nil {
		t.Fatalf("get virtual account status %s: %v", id, err)
	}
	return status
}

func GetNotificationStatus(t *testing.T, db *sql.DB, id uuid.UUID) domain.NotificationStatus {
	t.Helper()

	var status domain.NotificationStatus
	if err := db.QueryRow(`SELECT status FROM payment_notifications WHERE id = $1`, id).Scan(&status); err != nil {
		t.Fatalf("get notification status %s: %v", id, err)
	}
	return status
}

func GetJobStatus(t *testing.T, db *sql.DB, notificationID uuid.UUID) (string, int) {
	t.Helper()

	var status string
	var attempts int
	err := db.QueryRow(
		`SELECT status, attempts FROM notification_jobs WHERE notification_id = $1`, notificationID,
	).Scan(&status, &attempts)
	if err != nil {
		t.Fatalf("get job for notification %s: %v", notificationID, err)
	}
	return status, attempts
}
