package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tipos de propietario (destinatario de la factura).
const (
	OwnerTypeIndividual = "INDIVIDUAL"
	OwnerTypeCompany    = "COMPANY"
)

// Owner representa al propietario/cliente al que se le factura.
// Para el motor es un colaborador de solo lectura: aporta el NIF que entra
// en la huella VeriFactu y los tipos por defecto de IVA y retención.
type Owner struct {
	ID                   string
	AccountID            string
	Name                 string
	TaxID                string
	Type                 string // INDIVIDUAL | COMPANY
	DefaultVatRate       decimal.Decimal
	DefaultRetentionRate decimal.Decimal
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
