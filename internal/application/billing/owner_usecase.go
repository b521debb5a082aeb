package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/itineramio/facturas-api/internal/application/dto"
	"github.com/itineramio/facturas-api/internal/domain"
	"github.com/itineramio/facturas-api/internal/domain/entity"
	"github.com/itineramio/facturas-api/internal/domain/repository"
)

// Tipos por defecto aplicados a propietarios sin configuración propia
// (IVA general español y retención IRPF de alquileres).
var (
	defaultVatRate       = decimal.NewFromInt(21)
	defaultRetentionRate = decimal.NewFromInt(19)
)

// OwnerUseCase gestiona propietarios (los clientes a los que se factura).
// El motor de emisión los consume en modo solo lectura.
type OwnerUseCase struct {
	ownerRepo repository.OwnerRepository
}

// NewOwnerUseCase construye el caso de uso.
func NewOwnerUseCase(ownerRepo repository.OwnerRepository) *OwnerUseCase {
	return &OwnerUseCase{ownerRepo: ownerRepo}
}

// Create da de alta un propietario con sus tipos por defecto de IVA y retención.
func (uc *OwnerUseCase) Create(ctx context.Context, accountID string, in dto.CreateOwnerRequest) (*dto.OwnerResponse, error) {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.TaxID) == "" {
		return nil, fmt.Errorf("nombre y NIF son obligatorios: %w", domain.ErrValidation)
	}
	ownerType := in.Type
	if ownerType == "" {
		ownerType = entity.OwnerTypeIndividual
	}
	if ownerType != entity.OwnerTypeIndividual && ownerType != entity.OwnerTypeCompany {
		return nil, fmt.Errorf("tipo de propietario %q desconocido: %w", in.Type, domain.ErrValidation)
	}
	vat := defaultVatRate
	if in.DefaultVatRate != nil {
		vat = *in.DefaultVatRate
	}
	retention := defaultRetentionRate
	if in.DefaultRetentionRate != nil {
		retention = *in.DefaultRetentionRate
	}
	if vat.IsNegative() || retention.IsNegative() {
		return nil, fmt.Errorf("los tipos por defecto no pueden ser negativos: %w", domain.ErrValidation)
	}
	now := time.Now()
	owner := &entity.Owner{
		ID:                   uuid.New().String(),
		AccountID:            accountID,
		Name:                 strings.TrimSpace(in.Name),
		TaxID:                strings.ToUpper(strings.TrimSpace(in.TaxID)),
		Type:                 ownerType,
		DefaultVatRate:       vat,
		DefaultRetentionRate: retention,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := uc.ownerRepo.Create(ctx, owner); err != nil {
		return nil, err
	}
	return toOwnerResponse(owner), nil
}

// Get devuelve un propietario de la cuenta.
func (uc *OwnerUseCase) Get(ctx context.Context, accountID, id string) (*dto.OwnerResponse, error) {
	owner, err := uc.ownerRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if owner == nil || owner.AccountID != accountID {
		return nil, domain.ErrNotFound
	}
	return toOwnerResponse(owner), nil
}

// List devuelve los propietarios de la cuenta.
func (uc *OwnerUseCase) List(ctx context.Context, accountID string) ([]*dto.OwnerResponse, error) {
	list, err := uc.ownerRepo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.OwnerResponse, 0, len(list))
	for _, owner := range list {
		out = append(out, toOwnerResponse(owner))
	}
	return out, nil
}

func toOwnerResponse(owner *entity.Owner) *dto.OwnerResponse {
	return &dto.OwnerResponse{
		ID:                   owner.ID,
		Name:                 owner.Name,
		TaxID:                owner.TaxID,
		Type:                 owner.Type,
		DefaultVatRate:       owner.DefaultVatRate,
		DefaultRetentionRate: owner.DefaultRetentionRate,
	}
}
