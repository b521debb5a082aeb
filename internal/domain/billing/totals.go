package billing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/itineramio/facturas-api/internal/domain"
	"github.com/itineramio/facturas-api/internal/domain/entity"
)

var hundred = decimal.NewFromInt(100)

// ItemTotal calcula el total de una línea:
// base*(1+vatRate/100) - base*retentionRate/100, con base = quantity*unitPrice.
func ItemTotal(item *entity.InvoiceItem) decimal.Decimal {
	base := item.Quantity.Mul(item.UnitPrice)
	vat := base.Mul(item.VatRate).Div(hundred)
	retention := base.Mul(item.RetentionRate).Div(hundred)
	return base.Add(vat).Sub(retention)
}

// ValidateItem verifica los invariantes de una línea: concepto no vacío,
// cantidad > 0, precio y tipos >= 0.
func ValidateItem(item *entity.InvoiceItem) error {
	if strings.TrimSpace(item.Concept) == "" {
		return fmt.Errorf("concepto de línea vacío: %w", domain.ErrValidation)
	}
	if !item.Quantity.IsPositive() {
		return fmt.Errorf("cantidad debe ser mayor que cero: %w", domain.ErrValidation)
	}
	if item.UnitPrice.IsNegative() {
		return fmt.Errorf("precio unitario negativo: %w", domain.ErrValidation)
	}
	if item.VatRate.IsNegative() || item.RetentionRate.IsNegative() {
		return fmt.Errorf("tipo de IVA o retención negativo: %w", domain.ErrValidation)
	}
	return nil
}

// Recompute recalcula subtotal, IVA, retención y total de la factura a partir
// de sus líneas, y el total derivado de cada línea. Se invoca en cada mutación
// de una factura DRAFT/PROFORMA; los importes quedan redondeados a 2 decimales.
func Recompute(inv *entity.Invoice, items []*entity.InvoiceItem) error {
	var subtotal, totalVat, totalRetention decimal.Decimal
	for _, item := range items {
		if err := ValidateItem(item); err != nil {
			return err
		}
		base := item.Quantity.Mul(item.UnitPrice)
		subtotal = subtotal.Add(base)
		totalVat = totalVat.Add(base.Mul(item.VatRate).Div(hundred))
		totalRetention = totalRetention.Add(base.Mul(item.RetentionRate).Div(hundred))
		item.Total = ItemTotal(item).Round(2)
	}
	inv.Subtotal = subtotal.Round(2)
	inv.TotalVat = totalVat.Round(2)
	inv.TotalRetention = totalRetention.Round(2)
	inv.Total = inv.Subtotal.Add(inv.TotalVat).Sub(inv.TotalRetention)
	return nil
}
