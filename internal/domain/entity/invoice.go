package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados del ciclo de vida de una factura.
const (
	StatusDraft     = "DRAFT"
	StatusProforma  = "PROFORMA"
	StatusIssued    = "ISSUED"
	StatusSent      = "SENT"
	StatusPaid      = "PAID"
	StatusOverdue   = "OVERDUE"
	StatusCancelled = "CANCELLED"
)

// Tipos de rectificación (factura rectificativa).
const (
	RectifyingSubstitution = "SUBSTITUTION" // la nueva factura sustituye por completo a la original
	RectifyingDifference   = "DIFFERENCE"   // la nueva factura expresa solo la diferencia
)

// Invoice representa la cabecera de una factura.
// Mientras está en DRAFT/PROFORMA es libremente mutable; al emitirse recibe número
// correlativo y huella VeriFactu y queda bloqueada: número, líneas, fechas y totales
// son inmutables a partir de ahí (IsLocked == estado distinto de DRAFT y PROFORMA).
type Invoice struct {
	ID         string
	AccountID  string
	SeriesID   string
	OwnerID    string
	Number     int64  // 0 hasta la emisión
	FullNumber string // prefijo + año 2 dígitos + número con ceros (ej: "F250001")
	Status     string
	IsLocked   bool
	IssueDate  time.Time
	DueDate    time.Time
	IssuedAt   time.Time // instante de emisión (cero si no emitida)

	Subtotal       decimal.Decimal
	TotalVat       decimal.Decimal
	TotalRetention decimal.Decimal
	Total          decimal.Decimal // Subtotal + TotalVat - TotalRetention

	Notes string

	IsRectifying     bool
	RectifiesID      string // ID de la factura rectificada (vacío si no es rectificativa)
	RectifyingType   string // SUBSTITUTION | DIFFERENCE
	RectifyingReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Issued indica si la factura ya consumió un número de serie.
func (i *Invoice) Issued() bool {
	return i.Status != StatusDraft && i.Status != StatusProforma
}
