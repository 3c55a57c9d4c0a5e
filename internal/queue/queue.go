package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// NotifyChannel is the Postgres channel used to wake idle workers.
const NotifyChannel = "notification_jobs"

const jobColumns = `id, notification_id, status, attempts, max_attempts, next_run_at,
	locked_at, last_error, rerun, created_at, updated_at`

type Handler func(ctx context.Context, notificationID uuid.UUID) error

type Config struct {
	Workers      int
	MaxAttempts  int
	PollInterval time.Duration
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	// Lease is how long a running job may go without finishing before another
	// worker may reclaim it.
	Lease time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 5
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 8
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 5 * time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Minute
	}
	if c.Lease <= 0 {
		c.Lease = 5 * time.Minute
	}
	return c
}

type Metrics interface {
	JobCompleted(outcome string, d time.Duration)
	JobDeadLettered()
	SetQueueJobs(status string, n int)
}

type nopMetrics struct{}

func (nopMetrics) JobCompleted(string, time.Duration) {}
func (nopMetrics) JobDeadLettered()                   {}
func (nopMetrics) SetQueueJobs(string, int)           {}

// Queue is a durable at-least-once work queue backed by the notification_jobs
// table. Handlers must be idempotent.
type Queue struct {
	db       *sql.DB
	cfg      Config
	metrics  Metrics
	logger   *slog.Logger
	listener *pq.Listener
	wake     chan struct{}
	now      func() time.Time
}

func New(db *sql.DB, cfg Config, m Metrics, logger *slog.Logger) *Queue {
	if m == nil {
		m = nopMetrics{}
	}
	return &Queue{
		db:      db,
		cfg:     cfg.withDefaults(),
		metrics: m,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		now:     time.Now,
	}
}

// UseListener wakes workers on NOTIFY from other processes. The listener must
// not yet be listening.
func (q *Queue) UseListener(l *pq.Listener) error {
	if err := l.Listen(NotifyChannel); err != nil {
		return fmt.Errorf("UseListener: %w", err)
	}
	q.listener = l
	return nil
}

func (q *Queue) Config() Config {
	return q.cfg
}

func (q *Queue) Enqueue(ctx context.Context, notificationID uuid.UUID) error {
	if err := enqueue(ctx, q.db, notificationID, q.cfg.MaxAttempts); err != nil {
		return fmt.Errorf("Enqueue: %w", err)
	}
	q.signal()
	return nil
}

// EnqueueTx enqueues inside the caller's transaction. The job becomes visible,
// and NOTIFY fires, only when tx commits. Call Wake after the commit to rouse
// workers in this process without waiting for the listener.
func (q *Queue) EnqueueTx(ctx context.Context, tx *sql.Tx, notificationID uuid.UUID) error {
	if err := enqueue(ctx, tx, notificationID, q.cfg.MaxAttempts); err != nil {
		return fmt.Errorf("EnqueueTx: %w", err)
	}
	return nil
}

// Wake rouses one idle local worker.
func (q *Queue) Wake() {
	q.signal()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// enqueue upserts the job. A done or dead job starts over with a fresh attempt
// budget and a queued job is pulled forward. A running job keeps its lease but
// is flagged for rerun, so finish queues it again instead of closing it over
// state the worker never saw.
func enqueue(ctx context.Context, db execer, notificationID uuid.UUID, maxAttempts int) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO notification_jobs (id, notification_id, status, attempts, max_attempts, next_run_at)
		VALUES ($1, $2, $3, 0, $4, now())
		ON CONFLICT (notification_id) DO UPDATE SET
			status = CASE WHEN notification_jobs.status = $5 THEN notification_jobs.status ELSE $3 END,
			rerun = (notification_jobs.status = $5),
			attempts = CASE WHEN notification_jobs.status IN ($3, $5) THEN notification_jobs.attempts ELSE 0 END,
			last_error = CASE WHEN notification_jobs.status IN ($3, $5) THEN notification_jobs.last_error ELSE NULL END,
			max_attempts = EXCLUDED.max_attempts,
			next_run_at = CASE WHEN notification_jobs.status = $5 THEN notification_jobs.next_run_at ELSE now() END,
			locked_at = CASE WHEN notification_jobs.status = $5 THEN notification_jobs.locked_at ELSE NULL END,
			updated_at = now()`,
		uuid.New(), notificationID, StatusQueued, maxAttempts, StatusRunning,
	)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, notificationID.String()); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Run starts the worker pool and blocks until ctx is cancelled and every
// in-flight job has finished. In-flight jobs are not cancelled.
func (q *Queue) Run(ctx context.Context, h Handler) error {
	q.logger.Info("notification queue started",
		"workers", q.cfg.Workers,
		"max_attempts", q.cfg.MaxAttempts,
	)

	if q.listener != nil {
		go q.forwardNotifications(ctx)
	}

	var wg sync.WaitGroup
	for i := range q.cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.work(ctx, i, h)
		}()
	}
	wg.Wait()

	q.logger.Info("notification queue stopped")
	return nil
}

func (q *Queue) forwardNotifications(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.listener.Notify:
			// A nil notification means the connection was re-established;
			// work may have been missed, so wake anyway.
			q.signal()
		}
	}
}

func (q *Queue) work(ctx context.Context, worker int, h Handler) {
	log := q.logger.With("worker", worker)
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := q.claim(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("failed to claim notification job", "error", err)
		}
		if job == nil {
			if !q.wait(ctx) {
				return
			}
			continue
		}

		q.execute(ctx, log, job, h)
	}
}

func (q *Queue) wait(ctx context.Context) bool {
	timer := time.NewTimer(q.cfg.PollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-q.wake:
		return true
	case <-timer.C:
		return true
	}
}

// claim takes the next due job, or a running job whose lease expired.
func (q *Queue) claim(ctx context.Context) (*Job, error) {
	now := q.now().UTC()
	row := q.db.QueryRowContext(ctx,
		`UPDATE notification_jobs
		SET status = $1, attempts = attempts + 1, locked_at = $2, updated_at = $2
		WHERE id = (
			SELECT id FROM notification_jobs
			WHERE (status = $3 AND next_run_at <= $2)
				OR (status = $1 AND locked_at < $4)
			ORDER BY next_run_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		StatusRunning, now, StatusQueued, now.Add(-q.cfg.Lease),
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}
	return job, nil
}

func (q *Queue) execute(ctx context.Context, log *slog.Logger, job *Job, h Handler) {
	log = log.With("job_id", job.ID, "notification_id", job.NotificationID, "attempt", job.Attempts)
	start := q.now()

	// A settlement commit, once started, runs to completion even on shutdown.
	jobCtx := context.WithoutCancel(ctx)
	err := runHandler(jobCtx, h, job.NotificationID)
	elapsed := q.now().Sub(start)

	if err == nil {
		q.metrics.JobCompleted("done", elapsed)
		if err := q.finish(jobCtx, job, StatusDone, nil, nil); err != nil {
			log.Error("failed to mark notification job done", "error", err)
		}
		return
	}

	msg := err.Error()
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) || job.Attempts >= job.MaxAttempts {
		q.metrics.JobCompleted("dead", elapsed)
		q.metrics.JobDeadLettered()
		if ferr := q.finish(jobCtx, job, StatusDead, &msg, nil); ferr != nil {
			log.Error("failed to dead-letter notification job", "error", ferr)
		}
		log.Error("notification job dead-lettered, operator action required",
			"alert", true,
			"permanent", permanent != nil,
			"error", err,
		)
		return
	}

	next := q.now().UTC().Add(Delay(job.Attempts, q.cfg.BackoffBase, q.cfg.BackoffMax))
	q.metrics.JobCompleted("retry", elapsed)
	if ferr := q.finish(jobCtx, job, StatusQueued, &msg, &next); ferr != nil {
		log.Error("failed to reschedule notification job", "error", ferr)
	}
	log.Warn("notification job failed, retry scheduled", "error", err, "next_run_at", next)
}

func runHandler(ctx context.Context, h Handler, id uuid.UUID) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, id)
}

// finish records the outcome of an attempt. The attempts guard fences off a
// worker whose lease expired and whose job was reclaimed by another worker.
// A job flagged for rerun while it ran is queued again with a fresh budget
// whatever the outcome.
func (q *Queue) finish(ctx context.Context, job *Job, status Status, lastError *string, nextRunAt *time.Time) error {
	next := q.now().UTC()
	if nextRunAt != nil {
		next = *nextRunAt
	}
	var final Status
	err := q.db.QueryRowContext(ctx,
		`UPDATE notification_jobs
		SET status = CASE WHEN rerun THEN $7 ELSE $1 END,
			attempts = CASE WHEN rerun THEN 0 ELSE attempts END,
			last_error = $2,
			next_run_at = CASE WHEN rerun THEN now() ELSE $3 END,
			rerun = false,
			locked_at = NULL,
			updated_at = now()
		WHERE id = $4 AND status = $5 AND attempts = $6
		RETURNING status`,
		status, lastError, next, job.ID, StatusRunning, job.Attempts, StatusQueued,
	).Scan(&final)
	if errors.Is(err, sql.ErrNoRows) {
		q.logger.Warn("notification job changed hands before finishing", "job_id", job.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("finish: %w", err)
	}
	if final != status {
		q.logger.Info("notification job re-enqueued while running, queued again",
			"job_id", job.ID,
			"notification_id", job.NotificationID,
			"outcome", status,
		)
		q.signal()
	}
	return nil
}

// Delay returns base * 2^(attempt-1), capped at max.
func Delay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max || d <= 0 {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// Stats counts jobs per status and publishes the counts as gauges.
func (q *Queue) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM notification_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("Stats: %w", err)
	}
	defer rows.Close()

	stats := map[Status]int{
		StatusQueued:  0,
		StatusRunning: 0,
		StatusDone:    0,
		StatusDead:    0,
	}
	for rows.Next() {
		var s Status
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, fmt.Errorf("Stats: scan: %w", err)
		}
		stats[s] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Stats: rows: %w", err)
	}

	for s, n := range stats {
		q.metrics.SetQueueJobs(string(s), n)
	}
	return stats, nil
}

func (q *Queue) ListDead(ctx context.Context, limit int) ([]Job, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM notification_jobs WHERE status = $1 ORDER BY updated_at DESC LIMIT $2`,
		StatusDead, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListDead: %w", err)
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("ListDead: scan: %w", err)
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListDead: rows: %w", err)
	}
	return jobs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*Job, error) {
	var j Job
	err := s.Scan(
		&j.ID, &j.NotificationID, &j.Status, &j.Attempts, &j.MaxAttempts, &j.NextRunAt,
		&j.LockedAt, &j.LastError, &j.Rerun, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}
