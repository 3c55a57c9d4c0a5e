package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/umrah-va-gateway/internal/auth"
	"github.com/josh-kwaku/umrah-va-gateway/internal/handler"
	"github.com/josh-kwaku/umrah-va-gateway/internal/logging"
	"github.com/josh-kwaku/umrah-va-gateway/internal/repository"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "X-Idempotent-Replayed"
	idempotencyTTL    = 24 * time.Hour
	maxIdempotencyKey = 255
	maxRequestBody    = 1 << 20
)

type idempotencyStore interface {
	Get(ctx context.Context, key string, tenantID uuid.UUID) (*repository.IdempotencyRecord, error)
	Put(ctx context.Context, rec *repository.IdempotencyRecord) error
}

// Idempotency makes VA issuance safe to retry. A repeated Idempotency-Key from
// the same tenant gets the first response back, and the same key with a
// different body is a conflict. Requests without a key pass through. Server
// errors are not stored so the client can retry them under the same key.
func Idempotency(store idempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(idempotencyHeader)
			if key == "" || !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKey {
				handler.RespondAppError(w, handler.ErrInvalidRequest, map[string]string{idempotencyHeader: "must be at most 255 characters"})
				return
			}
			tenantID, ok := auth.TenantIDFromContext(r.Context())
			if !ok {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}

			fingerprint, err := fingerprintRequest(r)
			if err != nil {
				handler.RespondAppError(w, handler.ErrInvalidRequest, nil)
				return
			}

			log := logging.FromContext(r.Context()).With("idempotency_key", key)

			prior, err := store.Get(r.Context(), key, tenantID)
			if err != nil {
				log.Error("idempotency lookup failed", "error", err)
				handler.RespondAppError(w, handler.ErrInternalError, nil)
				return
			}
			if prior != nil {
				if prior.RequestHash != fingerprint {
					handler.RespondAppError(w, handler.ErrIdempotencyConflict, nil)
					return
				}
				replay(w, prior, log)
				return
			}

			capture := &capturingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(capture, r)
			if capture.status >= http.StatusInternalServerError {
				return
			}

			now := time.Now().UTC()
			if err := store.Put(r.Context(), &repository.IdempotencyRecord{
				Key:          key,
				TenantID:     tenantID,
				RequestHash:  fingerprint,
				StatusCode:   capture.status,
				ContentType:  capture.Header().Get("Content-Type"),
				ResponseBody: capture.body.Bytes(),
				CreatedAt:    now,
				ExpiresAt:    now.Add(idempotencyTTL),
			}); err != nil {
				log.Error("idempotency store failed", "error", err)
			}
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

// fingerprintRequest hashes method, path and body, then restores the body for
// the next handler.
func fingerprintRequest(r *http.Request) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return "", err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	h := sha256.New()
	io.WriteString(h, r.Method)
	io.WriteString(h, " ")
	io.WriteString(h, r.URL.Path)
	io.WriteString(h, "\n")
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func replay(w http.ResponseWriter, rec *repository.IdempotencyRecord, log *slog.Logger) {
	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(rec.StatusCode)
	if _, err := w.Write(rec.ResponseBody); err != nil {
		log.Error("idempotent replay write failed", "error", err)
	}
}

// capturingWriter tees the response so it can be stored after the handler
// returns.
type capturingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *capturingWriter) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *capturingWriter) Write(b []byte) (int, error) {
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
