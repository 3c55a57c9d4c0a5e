package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/josh-kwaku/umrah-va-gateway/internal/auth"
)

// tenantFromRequest returns the caller's tenant. Every lookup is scoped to it,
// so records of other tenants read as not found.
func tenantFromRequest(r *http.Request) (uuid.UUID, *AppError) {
	tenantID, ok := auth.TenantIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, ErrMissingToken
	}
	return tenantID, nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, *AppError) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, ErrResourceNotFound
	}
	return id, nil
}
