package entity

import "github.com/shopspring/decimal"

// InvoiceItem representa una línea de factura.
// Total es derivado por línea: base*(1+vatRate/100) - base*retentionRate/100,
// con base = Quantity*UnitPrice.
type InvoiceItem struct {
	ID            string
	InvoiceID     string
	Concept       string
	Description   string
	Quantity      decimal.Decimal
	UnitPrice     decimal.Decimal
	VatRate       decimal.Decimal
	RetentionRate decimal.Decimal
	Total         decimal.Decimal
	Position      int
}
