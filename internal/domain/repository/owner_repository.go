package repository

import (
	"context"

	"github.com/itineramio/facturas-api/internal/domain/entity"
)

// OwnerRepository puerto de persistencia para propietarios (clientes facturados).
// El motor de emisión solo lee de aquí: NIF y tipos por defecto.
type OwnerRepository interface {
	Create(ctx context.Context, owner *entity.Owner) error
	GetByID(ctx context.Context, id string) (*entity.Owner, error)
	ListByAccount(ctx context.Context, accountID string) ([]*entity.Owner, error)
	Update(ctx context.Context, owner *entity.Owner) error
}
