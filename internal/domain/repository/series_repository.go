package repository

import (
	"context"

	"github.com/itineramio/facturas-api/internal/domain/entity"
)

// SeriesRepository puerto de persistencia para series de numeración.
//
// GetForAllocation es la consulta crítica de la emisión: dentro de la transacción
// de emisión debe bloquear la fila de la serie (SELECT ... FOR UPDATE) para que dos
// emisiones concurrentes contra la misma serie nunca lean el mismo contador.
type SeriesRepository interface {
	Create(ctx context.Context, s *entity.InvoiceSeries) error
	GetByID(ctx context.Context, accountID, id string) (*entity.InvoiceSeries, error)
	ListByAccount(ctx context.Context, accountID string) ([]*entity.InvoiceSeries, error)

	// GetActiveByPrefix devuelve la serie activa de la cuenta con ese tipo y prefijo
	// (nil, nil si no existe). Usada para validar unicidad de prefijo.
	GetActiveByPrefix(ctx context.Context, accountID, seriesType, prefix string) (*entity.InvoiceSeries, error)

	// GetDefault devuelve la serie por defecto del tipo dado (nil, nil si no hay).
	GetDefault(ctx context.Context, accountID, seriesType string) (*entity.InvoiceSeries, error)

	// ClearDefault desmarca la serie por defecto actual del tipo dado.
	// Se ejecuta junto a SetDefault en una sola transacción para que nunca
	// haya dos series por defecto del mismo tipo.
	ClearDefault(ctx context.Context, accountID, seriesType string) error
	SetDefault(ctx context.Context, accountID, id string) error

	Update(ctx context.Context, s *entity.InvoiceSeries) error
	Delete(ctx context.Context, accountID, id string) error

	// GetForAllocation bloquea la fila de la serie y la devuelve (uso exclusivo en tx).
	GetForAllocation(ctx context.Context, seriesID string) (*entity.InvoiceSeries, error)

	// UpdateCounter escribe contador y año tras la asignación (misma tx que el lock).
	UpdateCounter(ctx context.Context, seriesID string, number int64, year int) error

	// HighestIssuedNumber devuelve el número más alto emitido contra la serie (0 si ninguno).
	HighestIssuedNumber(ctx context.Context, seriesID string) (int64, error)

	// IssuedCount cuenta facturas emitidas contra la serie; una serie con emisiones
	// deja de ser editable y nunca puede eliminarse.
	IssuedCount(ctx context.Context, seriesID string) (int64, error)
}
