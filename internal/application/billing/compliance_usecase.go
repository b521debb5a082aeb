package billing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/itineramio/facturas-api/internal/application/dto"
	"github.com/itineramio/facturas-api/internal/domain"
	"github.com/itineramio/facturas-api/internal/domain/entity"
	"github.com/itineramio/facturas-api/internal/domain/repository"
	"github.com/itineramio/facturas-api/internal/domain/verifactu"
)

// ComplianceUseCase resuelve los datos del registro VeriFactu de una factura
// emitida para su exportación (XML de alta y QR tributario). Solo lee: el
// registro se creó en la transacción de emisión y es inmutable.
type ComplianceUseCase struct {
	invoiceRepo    repository.InvoiceRepository
	ownerRepo      repository.OwnerRepository
	accountRepo    repository.AccountRepository
	complianceRepo repository.ComplianceRepository
}

// NewComplianceUseCase construye el caso de uso.
func NewComplianceUseCase(
	invoiceRepo repository.InvoiceRepository,
	ownerRepo repository.OwnerRepository,
	accountRepo repository.AccountRepository,
	complianceRepo repository.ComplianceRepository,
) *ComplianceUseCase {
	return &ComplianceUseCase{
		invoiceRepo:    invoiceRepo,
		ownerRepo:      ownerRepo,
		accountRepo:    accountRepo,
		complianceRepo: complianceRepo,
	}
}

// QRPayload devuelve la URL de cotejo almacenada en el registro de la factura.
func (uc *ComplianceUseCase) QRPayload(ctx context.Context, accountID, invoiceID string) (string, error) {
	_, rec, err := uc.record(ctx, accountID, invoiceID)
	if err != nil {
		return "", err
	}
	return rec.QRPayload, nil
}

// RegistroAlta reúne y formatea los datos del registro de alta de la factura.
func (uc *ComplianceUseCase) RegistroAlta(ctx context.Context, accountID, invoiceID string) (*dto.RegistroAltaExport, error) {
	inv, rec, err := uc.record(ctx, accountID, invoiceID)
	if err != nil {
		return nil, err
	}
	account, err := uc.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("cuenta emisora: %w", domain.ErrNotFound)
	}
	owner, err := uc.ownerRepo.GetByID(ctx, inv.OwnerID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, fmt.Errorf("propietario: %w", domain.ErrNotFound)
	}
	items, err := uc.invoiceRepo.GetItems(ctx, inv.ID)
	if err != nil {
		return nil, err
	}

	tipoFactura := verifactu.TipoFacturaCompleta
	if inv.IsRectifying {
		tipoFactura = verifactu.TipoFacturaRectificativa
	}

	out := &dto.RegistroAltaExport{
		NIFEmisor:           account.TaxID,
		NombreEmisor:        account.Name,
		NIFReceptor:         owner.TaxID,
		NombreReceptor:      owner.Name,
		NumSerieFactura:     inv.FullNumber,
		FechaExpedicion:     verifactu.FormatFecha(inv.IssueDate),
		TipoFactura:         tipoFactura,
		Descripcion:         describeOperation(items),
		Desglose:            buildDesglose(items),
		CuotaTotal:          inv.TotalVat.StringFixed(2),
		ImporteTotal:        inv.Total.StringFixed(2),
		Huella:              rec.Hash,
		HuellaAnterior:      rec.PreviousHash,
		FechaHoraGeneracion: verifactu.FormatFechaHora(rec.ComputedAt),
		QRPayload:           rec.QRPayload,
	}

	if inv.IsRectifying && inv.RectifiesID != "" {
		original, err := uc.invoiceRepo.GetByID(ctx, accountID, inv.RectifiesID)
		if err != nil {
			return nil, err
		}
		if original != nil {
			out.Rectifying = &dto.RectifyingExport{
				Type:            inv.RectifyingType,
				NumSerieFactura: original.FullNumber,
				FechaExpedicion: verifactu.FormatFecha(original.IssueDate),
			}
		}
	}
	return out, nil
}

// record carga factura y registro validando que la factura esté emitida y encadenada.
func (uc *ComplianceUseCase) record(ctx context.Context, accountID, invoiceID string) (*entity.Invoice, *entity.ComplianceRecord, error) {
	inv, err := uc.invoiceRepo.GetByID(ctx, accountID, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	if inv == nil {
		return nil, nil, domain.ErrNotFound
	}
	if !inv.Issued() {
		return nil, nil, fmt.Errorf("la factura no está emitida: %w", domain.ErrInvalidState)
	}
	rec, err := uc.complianceRepo.GetByInvoiceID(ctx, accountID, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	if rec == nil {
		return nil, nil, fmt.Errorf("la factura no tiene registro de encadenamiento: %w", domain.ErrNotFound)
	}
	return inv, rec, nil
}

// buildDesglose agrupa las líneas por tipo impositivo: una línea de desglose
// por tipo de IVA, con base imponible y cuota repercutida agregadas.
func buildDesglose(items []*entity.InvoiceItem) []dto.DesgloseLine {
	type agg struct {
		rate decimal.Decimal
		base decimal.Decimal
	}
	var groups []*agg
	for _, it := range items {
		base := it.Quantity.Mul(it.UnitPrice)
		var found *agg
		for _, g := range groups {
			if g.rate.Equal(it.VatRate) {
				found = g
				break
			}
		}
		if found == nil {
			groups = append(groups, &agg{rate: it.VatRate, base: base})
			continue
		}
		found.base = found.base.Add(base)
	}
	lines := make([]dto.DesgloseLine, 0, len(groups))
	for _, g := range groups {
		base := g.base.Round(2)
		cuota := g.base.Mul(g.rate).Div(decimal.NewFromInt(100)).Round(2)
		lines = append(lines, dto.DesgloseLine{
			TipoImpositivo:   g.rate.StringFixed(2),
			BaseImponible:    base.StringFixed(2),
			CuotaRepercutida: cuota.StringFixed(2),
		})
	}
	return lines
}

// describeOperation compone la DescripcionOperacion a partir del primer concepto.
func describeOperation(items []*entity.InvoiceItem) string {
	if len(items) == 0 {
		return "Servicios de gestión de propiedades"
	}
	if len(items) == 1 {
		return items[0].Concept
	}
	return fmt.Sprintf("%s y %d conceptos más", items[0].Concept, len(items)-1)
}
