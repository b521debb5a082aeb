package repository

import (
	"context"

	"github.com/itineramio/facturas-api/internal/domain/entity"
)

// ComplianceRepository puerto de persistencia para la cadena VeriFactu.
//
// El puntero de cadena (última huella de la cuenta) es un recurso compartido a
// nivel de cuenta: GetChainHead debe bloquear su fila dentro de la transacción
// de emisión para serializar a los escritores. Dos emisiones que leyeran la misma
// huella anterior producirían una cadena bifurcada — violación de cumplimiento.
type ComplianceRepository interface {
	// GetChainHead devuelve la última huella de la cuenta bloqueando la fila
	// del puntero (la crea con la semilla si la cuenta aún no tiene registros).
	GetChainHead(ctx context.Context, accountID string) (string, error)

	// AdvanceChain escribe la nueva huella como cabeza de cadena (misma tx que el lock).
	AdvanceChain(ctx context.Context, accountID, hash string) error

	// CreateRecord persiste el registro de encadenamiento (append-only, una vez por factura).
	CreateRecord(ctx context.Context, rec *entity.ComplianceRecord) error

	GetByInvoiceID(ctx context.Context, accountID, invoiceID string) (*entity.ComplianceRecord, error)
}
