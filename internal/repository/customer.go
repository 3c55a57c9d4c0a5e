package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/umrah-va-gateway/internal/domain"
)

// CustomerRepository reads jamaah and package rows owned by the tenant CRUD
// subsystem. It never writes.
type CustomerRepository struct {
	db *sql.DB
}

func NewCustomerRepository(db *sql.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

func (r *CustomerRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*domain.Customer, error) {
	var c domain.Customer
	var email sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT j.id, j.tenant_id, j.full_name, j.email, j.package_id, p.price
		FROM jamaah j
		LEFT JOIN packages p ON p.id = j.package_id AND p.tenant_id = j.tenant_id
		WHERE j.id = $1 AND j.tenant_id = $2`,
		id, tenantID,
	).Scan(&c.ID, &c.TenantID, &c.Name, &email, &c.PackageID, &c.PackagePrice)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	c.Email = email.String
	return &c, nil
}
