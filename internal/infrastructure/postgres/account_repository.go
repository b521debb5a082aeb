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

var _ repository.AccountRepository = (*AccountRepo)(nil)

// AccountRepo implementación de AccountRepository.
type AccountRepo struct {
	q Querier
}

// NewAccountRepository construye el adaptador.
func NewAccountRepository(q Querier) *AccountRepo {
	return &AccountRepo{q: q}
}

// Create persiste una cuenta emisora.
func (r *AccountRepo) Create(ctx context.Context, acc *entity.Account) error {
	if acc.ID == "" {
		acc.ID = uuid.New().String()
	}
	query := `
		INSERT INTO accounts (id, name, tax_id, verifactu_exempt, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.q.Exec(ctx, query,
		acc.ID, acc.Name, acc.TaxID, acc.VerifactuExempt, acc.CreatedAt, acc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetByID obtiene una cuenta por ID (nil, nil si no existe).
func (r *AccountRepo) GetByID(ctx context.Context, id string) (*entity.Account, error) {
	query := `
		SELECT id, name, tax_id, verifactu_exempt, created_at, updated_at
		FROM accounts WHERE id = $1`
	var acc entity.Account
	err := r.q.QueryRow(ctx, query, id).Scan(
		&acc.ID, &acc.Name, &acc.TaxID, &acc.VerifactuExempt, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &acc, nil
}

// Update reescribe los campos editables de la cuenta.
func (r *AccountRepo) Update(ctx context.Context, acc *entity.Account) error {
	query := `
		UPDATE accounts SET name = $2, tax_id = $3, verifactu_exempt = $4, updated_at = now()
		WHERE id = $1`
	if _, err := r.q.Exec(ctx, query, acc.ID, acc.Name, acc.TaxID, acc.VerifactuExempt); err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}
