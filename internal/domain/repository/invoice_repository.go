package repository

import (
	"context"

	"github.com/itineramio/facturas-api/internal/domain/entity"
)

// InvoiceRepository puerto de persistencia para facturas y sus líneas.
type InvoiceRepository interface {
	Create(ctx context.Context, inv *entity.Invoice, items []*entity.InvoiceItem) error
	GetByID(ctx context.Context, accountID, id string) (*entity.Invoice, error)

	// GetForIssuance relee la factura bloqueando su fila (SELECT ... FOR UPDATE).
	// Solo se llama dentro de la transacción de emisión: la revalidación de
	// estado se hace sobre el dato comprometido tras el lock, no sobre una
	// instantánea anterior. (nil, nil) si no existe.
	GetForIssuance(ctx context.Context, accountID, id string) (*entity.Invoice, error)

	GetItems(ctx context.Context, invoiceID string) ([]*entity.InvoiceItem, error)
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*entity.Invoice, error)

	// Update reescribe cabecera y líneas de una factura aún mutable.
	// Usa versionado optimista sobre updated_at: si la fila cambió desde la
	// lectura devuelve ErrConflict (escritura obsoleta rechazada).
	Update(ctx context.Context, inv *entity.Invoice, items []*entity.InvoiceItem) error

	// UpdateStatus persiste una transición de estado ya validada por el dominio.
	UpdateStatus(ctx context.Context, inv *entity.Invoice) error

	// MarkIssued persiste el efecto de la emisión: número, número completo,
	// estado ISSUED, bloqueo y fechas. Solo se llama dentro de la tx de emisión.
	// La escritura es condicional al estado: si la factura ya no está en
	// borrador/proforma devuelve ErrInvalidState sin tocar la fila.
	MarkIssued(ctx context.Context, inv *entity.Invoice) error

	// Delete elimina una factura no emitida con sus líneas (borrado físico).
	Delete(ctx context.Context, accountID, id string) error

	// ListRectifications devuelve las rectificativas emitidas contra una factura.
	ListRectifications(ctx context.Context, accountID, rectifiesID string) ([]*entity.Invoice, error)
}
