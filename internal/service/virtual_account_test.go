package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/umrah-va-gateway/internal/domain"
)

func newCustomer(price *int64) *domain.Customer {
	pkg := uuid.New()
	return &domain.Customer{
		ID:           uuid.New(),
		TenantID:     uuid.New(),
		Name:         "Siti Aminah",
		Email:        "siti@example.com",
		PackageID:    &pkg,
		PackagePrice: price,
	}
}

func int64Ptr(v int64) *int64 { return &v }

func newVAService(t *testing.T, c *domain.Customer, vas ...*domain.VirtualAccount) (*VirtualAccountService, *fakeVARepo, *fakeGateway, *fakeMetrics) {
	t.Helper()
	repo := newFakeVARepo(vas...)
	gw := newFakeGateway()
	m := &fakeMetrics{}
	svc := NewVirtualAccountService(repo, newFakeCustomers(c), gw, m, 24*time.Hour)
	svc.now = func() time.Time { return fixedNow }
	return svc, repo, gw, m
}

func TestIssueVirtualAccount_UsesPackagePrice(t *testing.T) {
	c := newCustomer(int64Ptr(35_000_000))
	svc, repo, gw, m := newVAService(t, c)

	va, err := svc.IssueVirtualAccount(context.Background(), IssueRequest{
		TenantID:   c.TenantID,
		CustomerID: c.ID,
		BankCode:   domain.BankBCA,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.VirtualAccountStatusActive, va.Status)
	assert.Equal(t, int64(35_000_000), *va.Amount)
	assert.Equal(t, va.ID.String(), va.OrderRef)
	assert.Equal(t, fixedNow.Add(24*time.Hour), va.ExpiresAt)
	require.NotNil(t, va.GatewayTransactionID)
	assert.Equal(t, "gw-"+va.OrderRef, *va.GatewayTransactionID)
	assert.Equal(t, 1, gw.creates)
	assert.Equal(t, []string{"bca"}, m.issued)

	stored, err := repo.GetByID(context.Background(), c.TenantID, va.ID)
	require.NoError(t, err)
	assert.Equal(t, va.VANumber, stored.VANumber)
}

func TestIssueVirtualAccount_ExplicitAmountOverridesPrice(t *testing.T) {
	c := newCustomer(int64Ptr(35_000_000))
	svc, _, _, _ := newVAService(t, c)

	va, err := svc.IssueVirtualAccount(context.Background(), IssueRequest{
		TenantID:   c.TenantID,
		CustomerID: c.ID,
		BankCode:   domain.BankMandiri,
		Amount:     int64Ptr(10_000_000),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000), *va.Amount)
}

func TestIssueVirtualAccount_Validation(t *testing.T) {
	c := newCustomer(nil)

	tests := []struct {
		name    string
		req     IssueRequest
		wantErr error
	}{
		{
			name:    "unsupported bank",
			req:     IssueRequest{TenantID: c.TenantID, CustomerID: c.ID, BankCode: "jago", Amount: int64Ptr(1000)},
			wantErr: domain.ErrUnsupportedBank,
		},
		{
			name:    "no amount and no package price",
			req:     IssueRequest{TenantID: c.TenantID, CustomerID: c.ID, BankCode: domain.BankBNI},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "negative amount",
			req:     IssueRequest{TenantID: c.TenantID, CustomerID: c.ID, BankCode: domain.BankBNI, Amount: int64Ptr(-5)},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "customer of another tenant",
			req:     IssueRequest{TenantID: uuid.New(), CustomerID: c.ID, BankCode: domain.BankBNI, Amount: int64Ptr(1000)},
			wantErr: domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, gw, _ := newVAService(t, c)
			_, err := svc.IssueVirtualAccount(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, gw.creates)
		})
	}
}

func TestIssueVirtualAccount_ActiveExists(t *testing.T) {
	c := newCustomer(int64Ptr(35_000_000))
	existing := &domain.VirtualAccount{
		ID:         uuid.New(),
		TenantID:   c.TenantID,
		CustomerID: c.ID,
		BankCode:   domain.BankBRI,
		VANumber:   "262150000000001",
		Status:     domain.VirtualAccountStatusActive,
		ExpiresAt:  fixedNow.Add(time.Hour),
	}
	svc, _, gw, _ := newVAService(t, c, existing)

	_, err := svc.IssueVirtualAccount(context.Background(), IssueRequest{
		TenantID:   c.TenantID,
		CustomerID: c.ID,
		BankCode:   domain.BankBRI,
	})
	require.ErrorIs(t, err, domain.ErrActiveVAExists)

	var conflict *domain.ActiveVAExistsError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "262150000000001", conflict.VANumber)
	assert.Equal(t, 0, gw.creates, "gateway must not be called when an active VA exists")

	_, err = svc.IssueVirtualAccount(context.Background(), IssueRequest{
		TenantID:   c.TenantID,
		CustomerID: c.ID,
		BankCode:   domain.BankBNI,
	})
	assert.NoError(t, err, "another bank is allowed")
}

func TestIssueVirtualAccount_StoreFailureCancelsAtGateway(t *testing.T) {
	c := newCustomer(int64Ptr(35_000_000))
	svc, repo, gw, m := newVAService(t, c)
	repo.createErr = errors.New("connection reset")

	_, err := svc.IssueVirtualAccount(context.Background(), IssueRequest{
		TenantID:   c.TenantID,
		CustomerID: c.ID,
		BankCode:   domain.BankCIMB,
	})
	require.Error(t, err)
	assert.Len(t, gw.cancelled, 1)
	assert.Empty(t, m.issued)
}

func TestIssueVirtualAccount_GatewayFailure(t *testing.T) {
	c := newCustomer(int64Ptr(35_000_000))
	svc, repo, gw, _ := newVAService(t, c)
	gw.createErr = domain.ErrGatewayUnavailable

	_, err := svc.IssueVirtualAccount(context.Background(), IssueRequest{
		TenantID:   c.TenantID,
		CustomerID: c.ID,
		BankCode:   domain.BankPermata,
	})
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)

	list, err := repo.ListByCustomer(context.Background(), c.TenantID, c.ID, false)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func seededVA(c *domain.Customer, status domain.VirtualAccountStatus) *domain.VirtualAccount {
	id := uuid.New()
	return &domain.VirtualAccount{
		ID:         id,
		TenantID:   c.TenantID,
		CustomerID: c.ID,
		BankCode:   domain.BankBCA,
		VANumber:   "70012" + id.String()[:8],
		OrderRef:   id.String(),
		Status:     status,
		ExpiresAt:  fixedNow.Add(time.Hour),
	}
}

func TestCloseVirtualAccount(t *testing.T) {
	c := newCustomer(nil)

	t.Run("active is closed", func(t *testing.T) {
		va := seededVA(c, domain.VirtualAccountStatusActive)
		svc, repo, gw, _ := newVAService(t, c, va)

		closed, err := svc.CloseVirtualAccount(context.Background(), c.TenantID, va.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.VirtualAccountStatusClosed, closed.Status)
		require.NotNil(t, closed.ClosedAt)
		assert.Equal(t, domain.VirtualAccountStatusClosed, repo.status(va.ID))
		assert.Equal(t, []string{va.OrderRef}, gw.cancelled)
	})

	t.Run("closed again is a no-op", func(t *testing.T) {
		va := seededVA(c, domain.VirtualAccountStatusClosed)
		svc, _, gw, _ := newVAService(t, c, va)

		closed, err := svc.CloseVirtualAccount(context.Background(), c.TenantID, va.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.VirtualAccountStatusClosed, closed.Status)
		assert.Empty(t, gw.cancelled)
	})

	t.Run("gateway cancel failure still closes locally", func(t *testing.T) {
		va := seededVA(c, domain.VirtualAccountStatusActive)
		svc, repo, gw, _ := newVAService(t, c, va)
		gw.cancelErr = domain.ErrGatewayUnavailable

		_, err := svc.CloseVirtualAccount(context.Background(), c.TenantID, va.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.VirtualAccountStatusClosed, repo.status(va.ID))
	})

	for _, status := range []domain.VirtualAccountStatus{domain.VirtualAccountStatusUsed, domain.VirtualAccountStatusExpired} {
		t.Run(string(status)+" cannot be closed", func(t *testing.T) {
			va := seededVA(c, status)
			svc, repo, _, _ := newVAService(t, c, va)

			_, err := svc.CloseVirtualAccount(context.Background(), c.TenantID, va.ID)
			assert.ErrorIs(t, err, domain.ErrInvalidState)
			assert.Equal(t, status, repo.status(va.ID))
		})
	}

	t.Run("other tenant gets not found", func(t *testing.T) {
		va := seededVA(c, domain.VirtualAccountStatusActive)
		svc, _, _, _ := newVAService(t, c, va)

		_, err := svc.CloseVirtualAccount(context.Background(), uuid.New(), va.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestSweepExpired(t *testing.T) {
	c := newCustomer(nil)
	due := seededVA(c, domain.VirtualAccountStatusActive)
	due.ExpiresAt = fixedNow.Add(-time.Minute)
	fresh := seededVA(c, domain.VirtualAccountStatusActive)
	fresh.BankCode = domain.BankBNI
	used := seededVA(c, domain.VirtualAccountStatusUsed)
	used.ExpiresAt = fixedNow.Add(-time.Hour)

	svc, repo, _, m := newVAService(t, c, due, fresh, used)

	n, err := svc.SweepExpired(context.Background(), fixedNow)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(1), m.expired)
	assert.Equal(t, domain.VirtualAccountStatusExpired, repo.status(due.ID))
	assert.Equal(t, domain.VirtualAccountStatusActive, repo.status(fresh.ID))
	assert.Equal(t, domain.VirtualAccountStatusUsed, repo.status(used.ID))

	n, err = svc.SweepExpired(context.Background(), fixedNow)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
