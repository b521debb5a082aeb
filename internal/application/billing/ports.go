package billing

import (
	"context"
	"time"

	"github.com/itineramio/facturas-api/internal/domain/repository"
)

// IssuanceTxRunner ejecuta fn dentro de una única transacción con los repos
// atados a ella. Es la frontera atómica de la emisión: asignación de número,
// cálculo y registro de huella y paso a ISSUED comparten transacción, de modo
// que un fallo en cualquier paso revierte también el incremento del contador
// (nunca queda una factura numerada sin encadenar ni encadenada sin numerar).
//
// También la usan las operaciones de series que deben ser atómicas
// (desmarcar el default anterior + marcar el nuevo).
type IssuanceTxRunner interface {
	RunIssuance(ctx context.Context, fn func(
		seriesRepo repository.SeriesRepository,
		invoiceRepo repository.InvoiceRepository,
		complianceRepo repository.ComplianceRepository,
	) error) error
}

// Clock reloj de calendario inyectable (reset anual de series, fechas de emisión).
type Clock func() time.Time
