package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/itineramio/facturas-api/internal/application/dto"
	"github.com/itineramio/facturas-api/internal/domain"
	domainbilling "github.com/itineramio/facturas-api/internal/domain/billing"
	"github.com/itineramio/facturas-api/internal/domain/entity"
	"github.com/itineramio/facturas-api/internal/domain/repository"
)

// RectifyInvoiceUseCase construye facturas rectificativas contra una factura ya
// emitida y las emite por el mismo camino que cualquier otra (número + cadena),
// usando la serie rectificativa por defecto de la cuenta.
//
// SUBSTITUTION: las líneas representan la factura corregida completa.
// DIFFERENCE: el total expresa solo el delta respecto de la original; el cálculo
// del delta es responsabilidad del llamante, aquí solo se valida motivo y líneas.
// La original no se modifica jamás; sus rectificativas se descubren por RectifiesID.
type RectifyInvoiceUseCase struct {
	invoiceRepo repository.InvoiceRepository
	ownerRepo   repository.OwnerRepository
	seriesUC    *SeriesUseCase
	issueUC     *IssueInvoiceUseCase
	now         Clock
}

// NewRectifyInvoiceUseCase construye el caso de uso.
func NewRectifyInvoiceUseCase(
	invoiceRepo repository.InvoiceRepository,
	ownerRepo repository.OwnerRepository,
	seriesUC *SeriesUseCase,
	issueUC *IssueInvoiceUseCase,
	now Clock,
) *RectifyInvoiceUseCase {
	if now == nil {
		now = time.Now
	}
	return &RectifyInvoiceUseCase{
		invoiceRepo: invoiceRepo,
		ownerRepo:   ownerRepo,
		seriesUC:    seriesUC,
		issueUC:     issueUC,
		now:         now,
	}
}

// CreateRectifying crea y emite una rectificativa contra la factura original.
func (uc *RectifyInvoiceUseCase) CreateRectifying(ctx context.Context, accountID, originalID string, in dto.RectifyInvoiceRequest) (*dto.InvoiceResponse, error) {
	if in.Type != entity.RectifyingSubstitution && in.Type != entity.RectifyingDifference {
		return nil, fmt.Errorf("tipo de rectificación %q desconocido: %w", in.Type, domain.ErrValidation)
	}
	if strings.TrimSpace(in.Reason) == "" {
		return nil, fmt.Errorf("el motivo de la rectificación es obligatorio: %w", domain.ErrValidation)
	}
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("la rectificativa debe tener al menos una línea: %w", domain.ErrValidation)
	}

	original, err := uc.invoiceRepo.GetByID(ctx, accountID, originalID)
	if err != nil {
		return nil, err
	}
	if original == nil {
		return nil, domain.ErrNotFound
	}
	if domainbilling.Mutable(original) {
		return nil, fmt.Errorf("no se puede rectificar una factura en borrador o proforma: %w", domain.ErrValidation)
	}

	owner, err := uc.ownerRepo.GetByID(ctx, original.OwnerID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, fmt.Errorf("propietario: %w", domain.ErrNotFound)
	}

	series, err := uc.seriesUC.GetOrCreateDefaultRectifying(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := uc.now()
	inv := &entity.Invoice{
		ID:               uuid.New().String(),
		AccountID:        accountID,
		SeriesID:         series.ID,
		OwnerID:          original.OwnerID,
		Status:           entity.StatusDraft,
		IsRectifying:     true,
		RectifiesID:      original.ID,
		RectifyingType:   in.Type,
		RectifyingReason: strings.TrimSpace(in.Reason),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	items, err := buildItems(inv.ID, owner, in.Items)
	if err != nil {
		return nil, err
	}
	if err := domainbilling.Recompute(inv, items); err != nil {
		return nil, err
	}
	if err := uc.invoiceRepo.Create(ctx, inv, items); err != nil {
		return nil, err
	}

	// Emisión por el camino estándar: mismo asignador y mismo encadenamiento.
	return uc.issueUC.Issue(ctx, accountID, inv.ID)
}

// ListRectifications devuelve las rectificativas emitidas contra una factura.
func (uc *RectifyInvoiceUseCase) ListRectifications(ctx context.Context, accountID, originalID string) ([]*dto.InvoiceResponse, error) {
	list, err := uc.invoiceRepo.ListRectifications(ctx, accountID, originalID)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.InvoiceResponse, 0, len(list))
	for _, inv := range list {
		out = append(out, toInvoiceResponse(inv, nil, nil))
	}
	return out, nil
}
