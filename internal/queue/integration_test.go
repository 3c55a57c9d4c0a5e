package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/umrah-va-gateway/internal/domain"
	"github.com/josh-kwaku/umrah-va-gateway/internal/logging"
	"github.com/josh-kwaku/umrah-va-gateway/internal/testutil"
)

func TestQueue_RunRetriesThenSucceeds(t *testing.T) {
	db := testutil.SetupTestDB(t)
	tenantID := uuid.New()
	c := testutil.SeedCustomer(t, db, tenantID, "Ahmad", nil)
	va := testutil.SeedVirtualAccount(t, db, c, domain.BankBCA, "70012000000000001", domain.VirtualAccountStatusActive, time.Now().Add(time.Hour))
	n := testutil.SeedNotification(t, db, va, "tx-retry", domain.TransactionStatusSettlement, domain.NotificationStatusPending)

	m := &fakeMetrics{}
	q := New(db, Config{
		Workers:      2,
		MaxAttempts:  5,
		PollInterval: 20 * time.Millisecond,
		BackoffBase:  10 * time.Millisecond,
		BackoffMax:   50 * time.Millisecond,
	}, m, logging.Discard())

	require.NoError(t, q.Enqueue(context.Background(), n.ID))

	var calls atomic.Int32
	done := make(chan struct{})
	handler := func(_ context.Context, id uuid.UUID) error {
		assert.Equal(t, n.ID, id)
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		q.Run(ctx, handler)
		close(stopped)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("job was not retried to success")
	}
	cancel()
	<-stopped

	status, attempts := testutil.GetJobStatus(t, db, n.ID)
	assert.Equal(t, string(StatusDone), status)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, int32(3), calls.Load())
}

func TestQueue_DeadLettersAfterMaxAttempts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	c := testutil.SeedCustomer(t, db, uuid.New(), "Fatimah", nil)
	va := testutil.SeedVirtualAccount(t, db, c, domain.BankBNI, "8578000000000001", domain.VirtualAccountStatusActive, time.Now().Add(time.Hour))
	n := testutil.SeedNotification(t, db, va, "tx-dead", domain.TransactionStatusSettlement, domain.NotificationStatusPending)

	m := &fakeMetrics{}
	q := New(db, Config{
		Workers:      1,
		MaxAttempts:  2,
		PollInterval: 20 * time.Millisecond,
		BackoffBase:  10 * time.Millisecond,
		BackoffMax:   10 * time.Millisecond,
	}, m, logging.Discard())
	require.NoError(t, q.Enqueue(context.Background(), n.ID))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		q.Run(ctx, func(context.Context, uuid.UUID) error { return errors.New("always fails") })
		close(stopped)
	}()

	require.Eventually(t, func() bool {
		status, _ := testutil.GetJobStatus(t, db, n.ID)
		return status == string(StatusDead)
	}, 10*time.Second, 20*time.Millisecond)

	dead, err := q.ListDead(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, n.ID, dead[0].NotificationID)
	assert.Equal(t, 2, dead[0].Attempts)
	require.NotNil(t, dead[0].LastError)
	assert.Equal(t, "always fails", *dead[0].LastError)

	stats, err := q.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats[StatusDead])

	// Re-enqueueing a dead job starts a fresh attempt budget.
	cancel()
	<-stopped
	require.NoError(t, q.Enqueue(context.Background(), n.ID))
	status, attempts := testutil.GetJobStatus(t, db, n.ID)
	assert.Equal(t, string(StatusQueued), status)
	assert.Equal(t, 0, attempts)
}

func TestQueue_ClaimSkipsLockedAndReclaimsExpiredLease(t *testing.T) {
	db := testutil.SetupTestDB(t)
	c := testutil.SeedCustomer(t, db, uuid.New(), "Umar", nil)
	va := testutil.SeedVirtualAccount(t, db, c, domain.BankBRI, "262150000000001", domain.VirtualAccountStatusActive, time.Now().Add(time.Hour))
	n := testutil.SeedNotification(t, db, va, "tx-lease", domain.TransactionStatusSettlement, domain.NotificationStatusPending)

	q := New(db, Config{Lease: time.Minute}, nil, logging.Discard())
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, n.ID))

	job, err := q.claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, StatusRunning, job.Status)
	assert.Equal(t, 1, job.Attempts)

	// Running and inside its lease: nobody else may take it.
	again, err := q.claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, again)

	// Enqueue while running keeps the lease and flags the job for rerun.
	require.NoError(t, q.Enqueue(ctx, n.ID))
	status, _ := testutil.GetJobStatus(t, db, n.ID)
	assert.Equal(t, string(StatusRunning), status)

	// The worker disappears; once the lease passes the job is reclaimed.
	q.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	reclaimed, err := q.claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, job.ID, reclaimed.ID)
	assert.Equal(t, 2, reclaimed.Attempts)
	assert.True(t, reclaimed.Rerun)

	// The stale worker's outcome is fenced off by the attempt count.
	require.NoError(t, q.finish(ctx, job, StatusDone, nil, nil))
	status, attempts := testutil.GetJobStatus(t, db, n.ID)
	assert.Equal(t, string(StatusRunning), status)
	assert.Equal(t, 2, attempts)
}

func TestQueue_EnqueueWhileRunningQueuesAgain(t *testing.T) {
	db := testutil.SetupTestDB(t)
	c := testutil.SeedCustomer(t, db, uuid.New(), "Khadijah", nil)
	va := testutil.SeedVirtualAccount(t, db, c, domain.BankMandiri, "8900112233445566", domain.VirtualAccountStatusActive, time.Now().Add(time.Hour))
	n := testutil.SeedNotification(t, db, va, "tx-rerun", domain.TransactionStatusPending, domain.NotificationStatusPending)

	q := New(db, Config{}, nil, logging.Discard())
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, n.ID))

	job, err := q.claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	// A newer event for the same notification lands mid-run.
	require.NoError(t, q.Enqueue(ctx, n.ID))

	require.NoError(t, q.finish(ctx, job, StatusDone, nil, nil))
	status, attempts := testutil.GetJobStatus(t, db, n.ID)
	assert.Equal(t, string(StatusQueued), status)
	assert.Equal(t, 0, attempts)

	next, err := q.claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, job.ID, next.ID)
	assert.False(t, next.Rerun)

	require.NoError(t, q.finish(ctx, next, StatusDone, nil, nil))
	status, _ = testutil.GetJobStatus(t, db, n.ID)
	assert.Equal(t, string(StatusDone), status)
}
