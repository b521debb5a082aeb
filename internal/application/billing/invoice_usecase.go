package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/itineramio/facturas-api/internal/application/dto"
	"github.com/itineramio/facturas-api/internal/domain"
	domainbilling "github.com/itineramio/facturas-api/internal/domain/billing"
	"github.com/itineramio/facturas-api/internal/domain/entity"
	"github.com/itineramio/facturas-api/internal/domain/repository"
)

// InvoiceUseCase gestiona el ciclo de vida de la factura fuera de la emisión:
// alta en borrador, edición, borrado y avances de estado tras la emisión.
// Toda mutación de líneas recalcula subtotal, IVA, retención y total.
type InvoiceUseCase struct {
	invoiceRepo    repository.InvoiceRepository
	seriesRepo     repository.SeriesRepository
	ownerRepo      repository.OwnerRepository
	complianceRepo repository.ComplianceRepository
	now            Clock
}

// NewInvoiceUseCase construye el caso de uso.
func NewInvoiceUseCase(
	invoiceRepo repository.InvoiceRepository,
	seriesRepo repository.SeriesRepository,
	ownerRepo repository.OwnerRepository,
	complianceRepo repository.ComplianceRepository,
	now Clock,
) *InvoiceUseCase {
	if now == nil {
		now = time.Now
	}
	return &InvoiceUseCase{
		invoiceRepo:    invoiceRepo,
		seriesRepo:     seriesRepo,
		ownerRepo:      ownerRepo,
		complianceRepo: complianceRepo,
		now:            now,
	}
}

// Create da de alta una factura en DRAFT (o PROFORMA). Las líneas pueden estar
// vacías en borrador; la precondición de líneas y total positivo se exige al emitir.
func (uc *InvoiceUseCase) Create(ctx context.Context, accountID string, in dto.CreateInvoiceRequest) (*dto.InvoiceResponse, error) {
	if in.SeriesID == "" || in.OwnerID == "" {
		return nil, fmt.Errorf("serie y propietario son obligatorios: %w", domain.ErrValidation)
	}
	series, err := uc.seriesRepo.GetByID(ctx, accountID, in.SeriesID)
	if err != nil {
		return nil, err
	}
	if series == nil {
		return nil, fmt.Errorf("serie: %w", domain.ErrNotFound)
	}
	if !series.IsActive {
		return nil, fmt.Errorf("la serie %q está desactivada: %w", series.Prefix, domain.ErrInvalidState)
	}
	owner, err := uc.ownerRepo.GetByID(ctx, in.OwnerID)
	if err != nil {
		return nil, err
	}
	if owner == nil || owner.AccountID != accountID {
		return nil, fmt.Errorf("propietario: %w", domain.ErrNotFound)
	}

	status := entity.StatusDraft
	if in.Proforma {
		status = entity.StatusProforma
	}
	now := uc.now()
	inv := &entity.Invoice{
		ID:        uuid.New().String(),
		AccountID: accountID,
		SeriesID:  in.SeriesID,
		OwnerID:   in.OwnerID,
		Status:    status,
		IsLocked:  false,
		Notes:     in.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.DueDate != "" {
		due, err := time.Parse("2006-01-02", in.DueDate)
		if err != nil {
			return nil, fmt.Errorf("fecha de vencimiento inválida (YYYY-MM-DD): %w", domain.ErrValidation)
		}
		inv.DueDate = due
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
	return toInvoiceResponse(inv, items, nil), nil
}

// Edit modifica una factura aún mutable (DRAFT/PROFORMA) y recalcula totales.
// Sobre una factura bloqueada devuelve ErrInvalidState sin tocar ningún campo.
func (uc *InvoiceUseCase) Edit(ctx context.Context, accountID, id string, in dto.EditInvoiceRequest) (*dto.InvoiceResponse, error) {
	inv, err := uc.invoiceRepo.GetByID(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.ErrNotFound
	}
	if !domainbilling.Mutable(inv) {
		return nil, fmt.Errorf("la factura %s está bloqueada: %w", inv.FullNumber, domain.ErrInvalidState)
	}

	if in.SeriesID != nil {
		series, err := uc.seriesRepo.GetByID(ctx, accountID, *in.SeriesID)
		if err != nil {
			return nil, err
		}
		if series == nil {
			return nil, fmt.Errorf("serie: %w", domain.ErrNotFound)
		}
		if !series.IsActive {
			return nil, fmt.Errorf("la serie %q está desactivada: %w", series.Prefix, domain.ErrInvalidState)
		}
		inv.SeriesID = *in.SeriesID
	}
	owner, err := uc.ownerRepo.GetByID(ctx, inv.OwnerID)
	if err != nil {
		return nil, err
	}
	if in.OwnerID != nil {
		owner, err = uc.ownerRepo.GetByID(ctx, *in.OwnerID)
		if err != nil {
			return nil, err
		}
		if owner == nil || owner.AccountID != accountID {
			return nil, fmt.Errorf("propietario: %w", domain.ErrNotFound)
		}
		inv.OwnerID = *in.OwnerID
	}
	if in.DueDate != nil {
		if *in.DueDate == "" {
			inv.DueDate = time.Time{}
		} else {
			due, err := time.Parse("2006-01-02", *in.DueDate)
			if err != nil {
				return nil, fmt.Errorf("fecha de vencimiento inválida (YYYY-MM-DD): %w", domain.ErrValidation)
			}
			inv.DueDate = due
		}
	}
	if in.Notes != nil {
		inv.Notes = *in.Notes
	}

	items, err := uc.invoiceRepo.GetItems(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	if in.Items != nil {
		items, err = buildItems(inv.ID, owner, in.Items)
		if err != nil {
			return nil, err
		}
	}
	if err := domainbilling.Recompute(inv, items); err != nil {
		return nil, err
	}
	// El repositorio usa inv.UpdatedAt como versión optimista: una escritura
	// sobre una lectura obsoleta se rechaza con ErrConflict.
	if err := uc.invoiceRepo.Update(ctx, inv, items); err != nil {
		return nil, err
	}
	return toInvoiceResponse(inv, items, nil), nil
}

// Delete borra físicamente una factura no emitida. Las facturas emitidas
// no se borran nunca.
func (uc *InvoiceUseCase) Delete(ctx context.Context, accountID, id string) error {
	inv, err := uc.invoiceRepo.GetByID(ctx, accountID, id)
	if err != nil {
		return err
	}
	if inv == nil {
		return domain.ErrNotFound
	}
	if !domainbilling.Mutable(inv) {
		return fmt.Errorf("la factura %s está emitida y no puede borrarse: %w", inv.FullNumber, domain.ErrInvalidState)
	}
	return uc.invoiceRepo.Delete(ctx, accountID, id)
}

// MarkSent avanza ISSUED → SENT.
func (uc *InvoiceUseCase) MarkSent(ctx context.Context, accountID, id string) (*dto.InvoiceResponse, error) {
	return uc.transition(ctx, accountID, id, entity.StatusSent)
}

// MarkPaid avanza ISSUED/SENT/OVERDUE → PAID.
func (uc *InvoiceUseCase) MarkPaid(ctx context.Context, accountID, id string) (*dto.InvoiceResponse, error) {
	return uc.transition(ctx, accountID, id, entity.StatusPaid)
}

// MarkOverdue avanza ISSUED/SENT → OVERDUE (disparo temporal o explícito).
func (uc *InvoiceUseCase) MarkOverdue(ctx context.Context, accountID, id string) (*dto.InvoiceResponse, error) {
	return uc.transition(ctx, accountID, id, entity.StatusOverdue)
}

func (uc *InvoiceUseCase) transition(ctx context.Context, accountID, id, target string) (*dto.InvoiceResponse, error) {
	inv, err := uc.invoiceRepo.GetByID(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.ErrNotFound
	}
	if err := domainbilling.Transition(inv, target); err != nil {
		return nil, err
	}
	if err := uc.invoiceRepo.UpdateStatus(ctx, inv); err != nil {
		return nil, err
	}
	items, err := uc.invoiceRepo.GetItems(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	return toInvoiceResponse(inv, items, nil), nil
}

// Get devuelve la factura completa con líneas y, si existe, su registro VeriFactu.
func (uc *InvoiceUseCase) Get(ctx context.Context, accountID, id string) (*dto.InvoiceResponse, error) {
	inv, err := uc.invoiceRepo.GetByID(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.ErrNotFound
	}
	items, err := uc.invoiceRepo.GetItems(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	var rec *entity.ComplianceRecord
	if inv.Issued() {
		rec, err = uc.complianceRepo.GetByInvoiceID(ctx, accountID, inv.ID)
		if err != nil {
			return nil, err
		}
	}
	return toInvoiceResponse(inv, items, rec), nil
}

// List devuelve las facturas de la cuenta paginadas (sin líneas).
func (uc *InvoiceUseCase) List(ctx context.Context, accountID string, page dto.PageRequest) ([]*dto.InvoiceResponse, error) {
	page.DefaultPage()
	list, err := uc.invoiceRepo.ListByAccount(ctx, accountID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.InvoiceResponse, 0, len(list))
	for _, inv := range list {
		out = append(out, toInvoiceResponse(inv, nil, nil))
	}
	return out, nil
}

// buildItems convierte las líneas de entrada en entidades, aplicando los tipos
// por defecto del propietario cuando la petición no los especifica.
func buildItems(invoiceID string, owner *entity.Owner, inputs []dto.InvoiceItemInput) ([]*entity.InvoiceItem, error) {
	items := make([]*entity.InvoiceItem, 0, len(inputs))
	for i, in := range inputs {
		vatRate := owner.DefaultVatRate
		if in.VatRate != nil {
			vatRate = *in.VatRate
		}
		retentionRate := owner.DefaultRetentionRate
		if in.RetentionRate != nil {
			retentionRate = *in.RetentionRate
		}
		item := &entity.InvoiceItem{
			ID:            uuid.New().String(),
			InvoiceID:     invoiceID,
			Concept:       in.Concept,
			Description:   in.Description,
			Quantity:      in.Quantity,
			UnitPrice:     in.UnitPrice,
			VatRate:       vatRate,
			RetentionRate: retentionRate,
			Position:      i,
		}
		if err := domainbilling.ValidateItem(item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func toInvoiceResponse(inv *entity.Invoice, items []*entity.InvoiceItem, rec *entity.ComplianceRecord) *dto.InvoiceResponse {
	resp := &dto.InvoiceResponse{
		ID:               inv.ID,
		SeriesID:         inv.SeriesID,
		OwnerID:          inv.OwnerID,
		Number:           inv.Number,
		FullNumber:       inv.FullNumber,
		Status:           inv.Status,
		IsLocked:         inv.IsLocked,
		Subtotal:         inv.Subtotal,
		TotalVat:         inv.TotalVat,
		TotalRetention:   inv.TotalRetention,
		Total:            inv.Total,
		Notes:            inv.Notes,
		IsRectifying:     inv.IsRectifying,
		RectifiesID:      inv.RectifiesID,
		RectifyingType:   inv.RectifyingType,
		RectifyingReason: inv.RectifyingReason,
		Items:            make([]dto.InvoiceItemResponse, 0, len(items)),
	}
	if !inv.IssueDate.IsZero() {
		resp.IssueDate = inv.IssueDate.Format("2006-01-02")
	}
	if !inv.DueDate.IsZero() {
		resp.DueDate = inv.DueDate.Format("2006-01-02")
	}
	for _, item := range items {
		resp.Items = append(resp.Items, dto.InvoiceItemResponse{
			ID:            item.ID,
			Concept:       item.Concept,
			Description:   item.Description,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
			VatRate:       item.VatRate,
			RetentionRate: item.RetentionRate,
			Total:         item.Total,
		})
	}
	if rec != nil {
		resp.Compliance = &dto.ComplianceResponse{
			Hash:         rec.Hash,
			PreviousHash: rec.PreviousHash,
			QRPayload:    rec.QRPayload,
			ComputedAt:   rec.ComputedAt.Format(time.RFC3339),
		}
	}
	return resp
}
