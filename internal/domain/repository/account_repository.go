package repository

import (
	"context"

	"github.com/itineramio/facturas-api/internal/domain/entity"
)

// AccountRepository puerto de persistencia para cuentas emisoras.
type AccountRepository interface {
	Create(ctx context.Context, acc *entity.Account) error
	GetByID(ctx context.Context, id string) (*entity.Account, error)
	Update(ctx context.Context, acc *entity.Account) error
}
