package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/itineramio/facturas-api/internal/domain/entity"
	"github.com/itineramio/facturas-api/internal/domain/repository"
)

var _ repository.OwnerRepository = (*OwnerRepo)(nil)

// OwnerRepo implementación de OwnerRepository.
type OwnerRepo struct {
	q Querier
}

// NewOwnerRepository construye el adaptador.
func NewOwnerRepository(q Querier) *OwnerRepo {
	return &OwnerRepo{q: q}
}

// Create persiste un propietario.
func (r *OwnerRepo) Create(ctx context.Context, owner *entity.Owner) error {
	if owner.ID == "" {
		owner.ID = uuid.New().String()
	}
	query := `
		INSERT INTO owners (id, account_id, name, tax_id, type, default_vat_rate, default_retention_rate, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.q.Exec(ctx, query,
		owner.ID, owner.AccountID, owner.Name, owner.TaxID, owner.Type,
		owner.DefaultVatRate, owner.DefaultRetentionRate, owner.CreatedAt, owner.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert owner: %w", err)
	}
	return nil
}

// GetByID obtiene un propietario por ID (nil, nil si no existe).
func (r *OwnerRepo) GetByID(ctx context.Context, id string) (*entity.Owner, error) {
	query := `
		SELECT id, account_id, name, tax_id, type, default_vat_rate, default_retention_rate, created_at, updated_at
		FROM owners WHERE id = $1`
	var o entity.Owner
	err := r.q.QueryRow(ctx, query, id).Scan(
		&o.ID, &o.AccountID, &o.Name, &o.TaxID, &o.Type,
		&o.DefaultVatRate, &o.DefaultRetentionRate, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get owner: %w", err)
	}
	return &o, nil
}

// ListByAccount devuelve los propietarios de la cuenta ordenados por nombre.
func (r *OwnerRepo) ListByAccount(ctx context.Context, accountID string) ([]*entity.Owner, error) {
	query := `
		SELECT id, account_id, name, tax_id, type, default_vat_rate, default_retention_rate, created_at, updated_at
		FROM owners WHERE account_id = $1 ORDER BY name`
	rows, err := r.q.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	defer rows.Close()
	var list []*entity.Owner
	for rows.Next() {
		var o entity.Owner
		err := rows.Scan(
			&o.ID, &o.AccountID, &o.Name, &o.TaxID, &o.Type,
			&o.DefaultVatRate, &o.DefaultRetentionRate, &o.CreatedAt, &o.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		list = append(list, &o)
	}
	return list, rows.Err()
}

// Update reescribe los campos editables del propietario.
func (r *OwnerRepo) Update(ctx context.Context, owner *entity.Owner) error {
	query := `
		UPDATE owners
		SET name = $2, tax_id = $3, type = $4, default_vat_rate = $5, default_retention_rate = $6, updated_at = now()
		WHERE id = $1`
	if _, err := r.q.Exec(ctx, query,
		owner.ID, owner.Name, owner.TaxID, owner.Type,
		owner.DefaultVatRate, owner.DefaultRetentionRate,
	); err != nil {
		return fmt.Errorf("update owner: %w", err)
	}
	return nil
}
