package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/itineramio/facturas-api/internal/application/billing"
	"github.com/itineramio/facturas-api/internal/domain"
	"github.com/itineramio/facturas-api/internal/domain/repository"
)

// Ensure TxRunner implements billing.IssuanceTxRunner.
var _ billing.IssuanceTxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL.
// Es la frontera atómica de la emisión: contador de serie, registro VeriFactu
// y estado de la factura avanzan juntos o no avanza ninguno.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunIssuance inicia una transacción, ejecuta fn con repos atados a la tx y
// hace Commit o Rollback. Los fallos transitorios (serialización, deadlock,
// lock no disponible) se traducen a domain.ErrConflict para que el caso de uso
// los reintente con backoff; el resto de errores se propagan tal cual.
func (r *TxRunner) RunIssuance(ctx context.Context, fn func(
	seriesRepo repository.SeriesRepository,
	invoiceRepo repository.InvoiceRepository,
	complianceRepo repository.ComplianceRepository,
) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	seriesRepo := NewSeriesRepository(tx)
	invoiceRepo := NewInvoiceRepository(tx)
	complianceRepo := NewComplianceRepository(tx)

	if err := fn(seriesRepo, invoiceRepo, complianceRepo); err != nil {
		if isRetryableTxError(err) {
			return fmt.Errorf("transacción de emisión: %v: %w", err, domain.ErrConflict)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if isRetryableTxError(err) {
			return fmt.Errorf("commit de emisión: %v: %w", err, domain.ErrConflict)
		}
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
