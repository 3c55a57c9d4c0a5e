package handler

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is an optional dependency reported by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db       *sql.DB
	optional map[string]Pinger
}

func NewHealthHandler(db *sql.DB, optional map[string]Pinger) *HealthHandler {
	return &HealthHandler{db: db, optional: optional}
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"version":   "1.0.0",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness fails only when the database is unreachable. Downstream sinks are
// best-effort and reported as degraded.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{"database": "ok"}
	httpStatus := http.StatusOK

	if err := h.db.PingContext(ctx); err != nil {
		slog.Warn("readiness check failed: database unreachable", "error", err)
		checks["database"] = "down"
		httpStatus = http.StatusServiceUnavailable
	}

	degraded := false
	for name, p := range h.optional {
		if err := p.Ping(ctx); err != nil {
			slog.Warn("readiness check: dependency unreachable", "dependency", name, "error", err)
			checks[name] = "down"
			degraded = true
			continue
		}
		checks[name] = "ok"
	}

	overallStatus := "ok"
	switch {
	case httpStatus != http.StatusOK:
		overallStatus = "down"
	case degraded:
		overallStatus = "degraded"
	}

	RespondJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}
