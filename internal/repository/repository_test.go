package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/umrah-va-gateway/internal/domain"
	"github.com/josh-kwaku/umrah-va-gateway/internal/testutil"
)

func newVA(c *domain.Customer, bank domain.BankCode, number string) *domain.VirtualAccount {
	now := time.Now().UTC()
	return &domain.VirtualAccount{
		ID:         uuid.New(),
		TenantID:   c.TenantID,
		CustomerID: c.ID,
		BankCode:   bank,
		VANumber:   number,
		OrderRef:   uuid.NewString(),
		Status:     domain.VirtualAccountStatusActive,
		ExpiresAt:  now.Add(time.Hour),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestVirtualAccountRepository_OneActivePerBank(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	repo := NewVirtualAccountRepository(db)
	c := testutil.SeedCustomer(t, db, uuid.New(), "Siti Aminah", nil)

	first := newVA(c, domain.BankBCA, "39001000000000001")
	require.NoError(t, repo.Create(ctx, first))

	err := repo.Create(ctx, newVA(c, domain.BankBCA, "39001000000000002"))
	assert.ErrorIs(t, err, domain.ErrActiveVAExists)

	require.NoError(t, repo.Create(ctx, newVA(c, domain.BankBNI, "98801000000000003")), "other banks are independent")

	dup := newVA(testutil.SeedCustomer(t, db, c.TenantID, "Other", nil), domain.BankBCA, first.VANumber)
	assert.ErrorIs(t, repo.Create(ctx, dup), domain.ErrAlreadyExists)

	require.NoError(t, repo.Close(ctx, c.TenantID, first.ID, time.Now().UTC()))
	require.NoError(t, repo.Create(ctx, newVA(c, domain.BankBCA, "39001000000000004")), "closing frees the slot")

	active, err := repo.ListByCustomer(ctx, c.TenantID, c.ID, true)
	require.NoError(t, err)
	assert.Len(t, active, 2)
	all, err := repo.ListByCustomer(ctx, c.TenantID, c.ID, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestVirtualAccountRepository_TenantScoping(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	repo := NewVirtualAccountRepository(db)
	c := testutil.SeedCustomer(t, db, uuid.New(), "Budi", nil)
	va := testutil.SeedVirtualAccount(t, db, c, domain.BankBRI, "26215000000000001", domain.VirtualAccountStatusActive, time.Now().Add(time.Hour))

	_, err := repo.GetByID(ctx, uuid.New(), va.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := repo.GetByNumber(ctx, va.VANumber)
	require.NoError(t, err)
	assert.Equal(t, va.ID, got.ID)

	got, err = repo.GetByOrderRef(ctx, va.OrderRef)
	require.NoError(t, err)
	assert.Equal(t, va.ID, got.ID)

	assert.ErrorIs(t, repo.Close(ctx, uuid.New(), va.ID, time.Now()), domain.ErrInvalidState)
}

func TestVirtualAccountRepository_ExpireDueAndMarkUsed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	repo := NewVirtualAccountRepository(db)
	c := testutil.SeedCustomer(t, db, uuid.New(), "Fatimah", nil)

	overdue := testutil.SeedVirtualAccount(t, db, c, domain.BankBCA, "39001000000000011", domain.VirtualAccountStatusActive, time.Now().Add(-time.Minute))
	fresh := testutil.SeedVirtualAccount(t, db, c, domain.BankBNI, "98801000000000012", domain.VirtualAccountStatusActive, time.Now().Add(time.Hour))
	closed := testutil.SeedVirtualAccount(t, db, c, domain.BankBRI, "26215000000000013", domain.VirtualAccountStatusClosed, time.Now().Add(-time.Hour))

	n, err := repo.ExpireDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.ExpireDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n, "sweeping twice is a no-op")

	assert.Equal(t, domain.VirtualAccountStatusExpired, testutil.GetVirtualAccountStatus(t, db, overdue.ID))
	assert.Equal(t, domain.VirtualAccountStatusActive, testutil.GetVirtualAccountStatus(t, db, fresh.ID))

	txdb := NewDB(db)
	err = txdb.InTx(ctx, func(tx *sql.Tx) error {
		locked, err := repo.GetForUpdate(ctx, tx, overdue.ID)
		require.NoError(t, err)
		assert.True(t, locked.CanSettle())
		return repo.MarkUsed(ctx, tx, overdue.ID, time.Now())
	})
	require.NoError(t, err)
	assert.Equal(t, domain.VirtualAccountStatusUsed, testutil.GetVirtualAccountStatus(t, db, overdue.ID))

	err = txdb.InTx(ctx, func(tx *sql.Tx) error {
		return repo.MarkUsed(ctx, tx, closed.ID, time.Now())
	})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestNotificationRepository_ResetFailedAndAdvance(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	repo := NewNotificationRepository(db)
	txdb := NewDB(db)
	c := testutil.SeedCustomer(t, db, uuid.New(), "Yusuf", nil)
	va := testutil.SeedVirtualAccount(t, db, c, domain.BankPermata, "8528000000000021", domain.VirtualAccountStatusActive, time.Now().Add(time.Hour))

	failed := testutil.SeedNotification(t, db, va, "tx-failed", domain.TransactionStatusSettlement, domain.NotificationStatusFailed)
	err := txdb.InTx(ctx, func(tx *sql.Tx) error {
		return repo.ResetFailed(ctx, tx, uuid.New(), failed.ID)
	})
	assert.ErrorIs(t, err, domain.ErrNotFound, "other tenants cannot reset")

	require.NoError(t, txdb.InTx(ctx, func(tx *sql.Tx) error {
		return repo.ResetFailed(ctx, tx, va.TenantID, failed.ID)
	}))
	assert.Equal(t, domain.NotificationStatusPending, testutil.GetNotificationStatus(t, db, failed.ID))

	err = txdb.InTx(ctx, func(tx *sql.Tx) error {
		return repo.ResetFailed(ctx, tx, va.TenantID, failed.ID)
	})
	assert.ErrorIs(t, err, domain.ErrInvalidState, "only failed notifications reset")

	pending := testutil.SeedNotification(t, db, va, "tx-pending", domain.TransactionStatusPending, domain.NotificationStatusProcessed)
	pending.TransactionStatus = domain.TransactionStatusSettlement
	pending.StatusCode = "200"
	pending.Payload = json.RawMessage(`{"transaction_status":"settlement"}`)
	require.NoError(t, txdb.InTx(ctx, func(tx *sql.Tx) error {
		return repo.Advance(ctx, tx, pending)
	}))

	got, err := repo.GetByTransactionID(ctx, "tx-pending")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusSettlement, got.TransactionStatus)
	assert.Equal(t, domain.NotificationStatusPending, got.Status)
	assert.JSONEq(t, `{"transaction_status":"settlement"}`, string(got.Payload))

	var history []struct {
		TransactionStatus string          `json:"transaction_status"`
		Payload           json.RawMessage `json:"payload"`
	}
	var rawHistory []byte
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT payload_history FROM payment_notifications WHERE id = $1`, pending.ID,
	).Scan(&rawHistory))
	require.NoError(t, json.Unmarshal(rawHistory, &history))
	require.Len(t, history, 1, "the pending payload is kept for audit")
	assert.Equal(t, "pending", history[0].TransactionStatus)
	assert.NotEmpty(t, history[0].Payload)

	err = txdb.InTx(ctx, func(tx *sql.Tx) error {
		return repo.Advance(ctx, tx, pending)
	})
	assert.ErrorIs(t, err, domain.ErrInvalidState, "a final status is never replaced")
}

func TestNotificationRepository_MarkFailedNeverDowngrades(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	repo := NewNotificationRepository(db)
	c := testutil.SeedCustomer(t, db, uuid.New(), "Hasan", nil)
	va := testutil.SeedVirtualAccount(t, db, c, domain.BankCIMB, "4048000000000031", domain.VirtualAccountStatusUsed, time.Now().Add(time.Hour))
	n := testutil.SeedNotification(t, db, va, "tx-done", domain.TransactionStatusSettlement, domain.NotificationStatusProcessed)

	assert.ErrorIs(t, repo.MarkFailed(ctx, n.ID, "late failure"), domain.ErrInvalidState)
	assert.Equal(t, domain.NotificationStatusProcessed, testutil.GetNotificationStatus(t, db, n.ID))

	list, total, err := repo.ListByStatus(ctx, va.TenantID, domain.NotificationStatusProcessed, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, n.ID, list[0].ID)
}

func TestIdempotencyRepository(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	repo := NewIdempotencyRepository(db)
	tenantID := uuid.New()
	now := time.Now().UTC()

	miss, err := repo.Get(ctx, "k1", tenantID)
	require.NoError(t, err)
	assert.Nil(t, miss)

	entry := &IdempotencyRecord{
		Key: "k1", TenantID: tenantID, RequestHash: "h", StatusCode: 201,
		ResponseBody: []byte(`{"success":true}`), CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, repo.Put(ctx, entry))
	require.NoError(t, repo.Put(ctx, entry), "a second writer is ignored")

	hit, err := repo.Get(ctx, "k1", tenantID)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, 201, hit.StatusCode)
	assert.Equal(t, "application/json", hit.ContentType)

	other, err := repo.Get(ctx, "k1", uuid.New())
	require.NoError(t, err)
	assert.Nil(t, other)

	removed, err := repo.CleanExpired(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
