package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/umrah-va-gateway/internal/domain"
	"github.com/josh-kwaku/umrah-va-gateway/internal/gateway"
	"github.com/josh-kwaku/umrah-va-gateway/internal/notify"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// fakeTx runs fn with a nil transaction. inTx tells fakes whether a call
// happened inside the unit of work.
type fakeTx struct {
	calls int
	inTx  bool
	err   error
}

func (f *fakeTx) InTx(_ context.Context, fn func(tx *sql.Tx) error) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.inTx = true
	defer func() { f.inTx = false }()
	return fn(nil)
}

type fakeCustomers struct {
	byID map[uuid.UUID]*domain.Customer
}

func newFakeCustomers(cs ...*domain.Customer) *fakeCustomers {
	f := &fakeCustomers{byID: map[uuid.UUID]*domain.Customer{}}
	for _, c := range cs {
		f.byID[c.ID] = c
	}
	return f
}

func (f *fakeCustomers) GetByID(_ context.Context, tenantID, id uuid.UUID) (*domain.Customer, error) {
	c, ok := f.byID[id]
	if !ok || c.TenantID != tenantID {
		return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
	}
	return c, nil
}

type fakeVARepo struct {
	mu        sync.Mutex
	byID      map[uuid.UUID]*domain.VirtualAccount
	createErr error
	closeErr  error
}

func newFakeVARepo(vas ...*domain.VirtualAccount) *fakeVARepo {
	f := &fakeVARepo{byID: map[uuid.UUID]*domain.VirtualAccount{}}
	for _, va := range vas {
		f.byID[va.ID] = va
	}
	return f
}

func (f *fakeVARepo) Create(_ context.Context, va *domain.VirtualAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, v := range f.byID {
		if v.Status == domain.VirtualAccountStatusActive && v.TenantID == va.TenantID &&
			v.CustomerID == va.CustomerID && v.BankCode == va.BankCode {
			return fmt.Errorf("Create: %w", domain.ErrActiveVAExists)
		}
	}
	cp := *va
	f.byID[va.ID] = &cp
	return nil
}

func (f *fakeVARepo) GetByID(_ context.Context, tenantID, id uuid.UUID) (*domain.VirtualAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	va, ok := f.byID[id]
	if !ok || va.TenantID != tenantID {
		return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
	}
	cp := *va
	return &cp, nil
}

func (f *fakeVARepo) GetByNumber(_ context.Context, number string) (*domain.VirtualAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, va := range f.byID {
		if va.VANumber == number {
			cp := *va
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("GetByNumber: %w", domain.ErrNotFound)
}

func (f *fakeVARepo) GetByOrderRef(_ context.Context, ref string) (*domain.VirtualAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, va := range f.byID {
		if va.OrderRef == ref {
			cp := *va
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("GetByOrderRef: %w", domain.ErrNotFound)
}

func (f *fakeVARepo) GetActive(_ context.Context, tenantID, customerID uuid.UUID, bank domain.BankCode) (*domain.VirtualAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, va := range f.byID {
		if va.Status == domain.VirtualAccountStatusActive && va.TenantID == tenantID &&
			va.CustomerID == customerID && va.BankCode == bank {
			cp := *va
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("GetActive: %w", domain.ErrNotFound)
}

func (f *fakeVARepo) ListByCustomer(_ context.Context, tenantID, customerID uuid.UUID, activeOnly bool) ([]domain.VirtualAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.VirtualAccount{}
	for _, va := range f.byID {
		if va.TenantID != tenantID || va.CustomerID != customerID {
			continue
		}
		if activeOnly && va.Status != domain.VirtualAccountStatusActive {
			continue
		}
		out = append(out, *va)
	}
	return out, nil
}

func (f *fakeVARepo) Close(_ context.Context, tenantID, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closeErr != nil {
		return f.closeErr
	}
	va, ok := f.byID[id]
	if !ok || va.TenantID != tenantID || va.Status != domain.VirtualAccountStatusActive {
		return fmt.Errorf("Close: %w", domain.ErrInvalidState)
	}
	va.Status = domain.VirtualAccountStatusClosed
	va.ClosedAt = &at
	return nil
}

func (f *fakeVARepo) ExpireDue(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, va := range f.byID {
		if va.Status == domain.VirtualAccountStatusActive && !va.ExpiresAt.After(now) {
			va.Status = domain.VirtualAccountStatusExpired
			n++
		}
	}
	return n, nil
}

func (f *fakeVARepo) status(id uuid.UUID) domain.VirtualAccountStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id].Status
}

// fakeGateway issues sequential VA numbers and records cancellations.
type fakeGateway struct {
	gateway.Client
	creates   int
	cancelled []string
	createErr error
	cancelErr error
	status    json.RawMessage
	queryErr  error
	queried   []string
}

func (g *fakeGateway) QueryStatus(ctx context.Context, orderRef string) (json.RawMessage, error) {
	g.queried = append(g.queried, orderRef)
	if g.queryErr != nil {
		return nil, g.queryErr
	}
	if g.status != nil {
		return g.status, nil
	}
	return g.Client.QueryStatus(ctx, orderRef)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{Client: gateway.NewSimulated(testServerKey)}
}

func (g *fakeGateway) CreateVirtualAccount(_ context.Context, req gateway.CreateRequest) (*gateway.CreateResult, error) {
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.creates++
	return &gateway.CreateResult{
		TransactionID: "gw-" + req.OrderRef,
		VANumber:      fmt.Sprintf("7001200000000%04d", g.creates),
		Status:        "pending",
		RawResponse:   json.RawMessage(`{}`),
	}, nil
}

func (g *fakeGateway) Cancel(_ context.Context, orderRef string) error {
	g.cancelled = append(g.cancelled, orderRef)
	return g.cancelErr
}

const testServerKey = "SB-Mid-server-test"

type fakeMetrics struct {
	mu        sync.Mutex
	issued    []string
	expired   int64
	webhooks  []string
	processed []string
}

func (m *fakeMetrics) VirtualAccountIssued(bank string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issued = append(m.issued, bank)
}

func (m *fakeMetrics) VirtualAccountsExpired(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired += n
}

func (m *fakeMetrics) WebhookReceived(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webhooks = append(m.webhooks, result)
}

func (m *fakeMetrics) NotificationProcessed(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed = append(m.processed, outcome)
}

type fakeQueue struct {
	tx         *fakeTx
	enqueued   []uuid.UUID
	enqueuedTx []uuid.UUID
	wakes      int
	wokeInTx   bool
	err        error
}

func (q *fakeQueue) Wake() {
	q.wakes++
	if q.tx != nil && q.tx.inTx {
		q.wokeInTx = true
	}
}

func (q *fakeQueue) Enqueue(_ context.Context, id uuid.UUID) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, id)
	return nil
}

func (q *fakeQueue) EnqueueTx(_ context.Context, _ *sql.Tx, id uuid.UUID) error {
	if q.tx != nil && !q.tx.inTx {
		return fmt.Errorf("EnqueueTx called outside a transaction")
	}
	if q.err != nil {
		return q.err
	}
	q.enqueuedTx = append(q.enqueuedTx, id)
	return nil
}

type fakeNotifications struct {
	mu        sync.Mutex
	byID      map[uuid.UUID]*domain.PaymentNotification
	createErr error
}

func newFakeNotifications(ns ...*domain.PaymentNotification) *fakeNotifications {
	f := &fakeNotifications{byID: map[uuid.UUID]*domain.PaymentNotification{}}
	for _, n := range ns {
		f.byID[n.ID] = n
	}
	return f
}

func (f *fakeNotifications) Create(_ context.Context, _ *sql.Tx, n *domain.PaymentNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.byID {
		if existing.TransactionID == n.TransactionID {
			return fmt.Errorf("Create: %w", domain.ErrAlreadyExists)
		}
	}
	cp := *n
	f.byID[n.ID] = &cp
	return nil
}

func (f *fakeNotifications) GetByID(_ context.Context, id uuid.UUID) (*domain.PaymentNotification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
	}
	cp := *n
	return &cp, nil
}

func (f *fakeNotifications) GetByTransactionID(_ context.Context, txID string) (*domain.PaymentNotification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.byID {
		if n.TransactionID == txID {
			cp := *n
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("GetByTransactionID: %w", domain.ErrNotFound)
}

func (f *fakeNotifications) Advance(_ context.Context, _ *sql.Tx, n *domain.PaymentNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.byID[n.ID]
	if !ok || existing.TransactionStatus != domain.TransactionStatusPending || existing.PaymentID != nil {
		return fmt.Errorf("Advance: %w", domain.ErrInvalidState)
	}
	existing.TransactionStatus = n.TransactionStatus
	existing.StatusCode = n.StatusCode
	existing.Amount = n.Amount
	existing.Status = domain.NotificationStatusPending
	return nil
}

func (f *fakeNotifications) all() []domain.PaymentNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.PaymentNotification, 0, len(f.byID))
	for _, n := range f.byID {
		out = append(out, *n)
	}
	return out
}

type recordingNotifier struct {
	events []notify.PaymentConfirmed
	err    error
}

func (r *recordingNotifier) PaymentConfirmed(_ context.Context, evt notify.PaymentConfirmed) error {
	r.events = append(r.events, evt)
	return r.err
}
