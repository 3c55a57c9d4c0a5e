package domain

import "github.com/google/uuid"

// Customer is the read-only view of a jamaah record and its package.
type Customer struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	Name         string
	Email        string
	PackageID    *uuid.UUID
	PackagePrice *int64
}
