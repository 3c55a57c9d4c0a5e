package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const idempotencyColumns = `idempotency_key, tenant_id, request_hash, status_code,
	content_type, response_body, created_at, expires_at`

// IdempotencyRecord is a stored response, replayed when the same tenant
// repeats an Idempotency-Key.
type IdempotencyRecord struct {
	Key          string
	TenantID     uuid.UUID
	RequestHash  string
	StatusCode   int
	ContentType  string
	ResponseBody []byte
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

type IdempotencyRepository struct {
	db *sql.DB
}

func NewIdempotencyRepository(db *sql.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

// Get returns nil, nil when no live record exists for the key.
func (r *IdempotencyRepository) Get(ctx context.Context, key string, tenantID uuid.UUID) (*IdempotencyRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+idempotencyColumns+` FROM idempotency_cache
		WHERE idempotency_key = $1 AND tenant_id = $2 AND expires_at > now()`,
		key, tenantID,
	)
	rec, err := scanIdempotencyRecord(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("Get idempotency %q: %w", key, err)
	}
	return rec, nil
}

// Put stores rec unless a record for the key already exists. The first
// response wins when two requests race on the same key.
func (r *IdempotencyRepository) Put(ctx context.Context, rec *IdempotencyRecord) error {
	if rec.ContentType == "" {
		rec.ContentType = "application/json"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO idempotency_cache (`+idempotencyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (idempotency_key, tenant_id) DO NOTHING`,
		rec.Key, rec.TenantID, rec.RequestHash, rec.StatusCode,
		rec.ContentType, rec.ResponseBody, rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("Put idempotency %q: %w", rec.Key, err)
	}
	return nil
}

// CleanExpired deletes records that expired before now and returns how many
// were removed.
func (r *IdempotencyRepository) CleanExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM idempotency_cache WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("CleanExpired: %w", err)
	}
	return res.RowsAffected()
}

func scanIdempotencyRecord(s scanner) (*IdempotencyRecord, error) {
	var rec IdempotencyRecord
	if err := s.Scan(
		&rec.Key, &rec.TenantID, &rec.RequestHash, &rec.StatusCode,
		&rec.ContentType, &rec.ResponseBody, &rec.CreatedAt, &rec.ExpiresAt,
	); err != nil {
		return nil, err
	}
	return &rec, nil
}
