package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/itineramio/facturas-api/internal/domain"
	"github.com/itineramio/facturas-api/internal/domain/entity"
	"github.com/itineramio/facturas-api/internal/domain/repository"
)

var _ repository.SeriesRepository = (*SeriesRepo)(nil)

// SeriesRepo implementación de SeriesRepository (usable con pool o tx).
type SeriesRepo struct {
	q Querier
}

// NewSeriesRepository construye el adaptador. Pasar pool o tx (Querier).
func NewSeriesRepository(q Querier) *SeriesRepo {
	return &SeriesRepo{q: q}
}

const seriesColumns = `id, account_id, name, prefix, year, type, current_number,
	       reset_yearly, is_default, is_active, created_at, updated_at`

func scanSeries(row pgxScanner) (*entity.InvoiceSeries, error) {
	var s entity.InvoiceSeries
	err := row.Scan(
		&s.ID, &s.AccountID, &s.Name, &s.Prefix, &s.Year, &s.Type, &s.CurrentNumber,
		&s.ResetYearly, &s.IsDefault, &s.IsActive, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create persiste una serie nueva.
func (r *SeriesRepo) Create(ctx context.Context, s *entity.InvoiceSeries) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	query := `
		INSERT INTO invoice_series (id, account_id, name, prefix, year, type, current_number,
		                            reset_yearly, is_default, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.q.Exec(ctx, query,
		s.ID, s.AccountID, s.Name, s.Prefix, s.Year, s.Type, s.CurrentNumber,
		s.ResetYearly, s.IsDefault, s.IsActive, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("prefijo de serie duplicado: %w", domain.ErrConflict)
		}
		return fmt.Errorf("insert series: %w", err)
	}
	return nil
}

// GetByID obtiene una serie por ID dentro de la cuenta, con Editable derivado.
func (r *SeriesRepo) GetByID(ctx context.Context, accountID, id string) (*entity.InvoiceSeries, error) {
	query := `
		SELECT ` + seriesColumns + `,
		       NOT EXISTS (SELECT 1 FROM invoices WHERE series_id = s.id AND number IS NOT NULL)
		FROM invoice_series s WHERE account_id = $1 AND id = $2`
	var s entity.InvoiceSeries
	err := r.q.QueryRow(ctx, query, accountID, id).Scan(
		&s.ID, &s.AccountID, &s.Name, &s.Prefix, &s.Year, &s.Type, &s.CurrentNumber,
		&s.ResetYearly, &s.IsDefault, &s.IsActive, &s.CreatedAt, &s.UpdatedAt,
		&s.Editable,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get series: %w", err)
	}
	return &s, nil
}

// ListByAccount devuelve todas las series de la cuenta, con Editable derivado.
func (r *SeriesRepo) ListByAccount(ctx context.Context, accountID string) ([]*entity.InvoiceSeries, error) {
	query := `
		SELECT ` + seriesColumns + `,
		       NOT EXISTS (SELECT 1 FROM invoices WHERE series_id = s.id AND number IS NOT NULL)
		FROM invoice_series s WHERE account_id = $1
		ORDER BY type, prefix`
	rows, err := r.q.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	defer rows.Close()
	var list []*entity.InvoiceSeries
	for rows.Next() {
		var s entity.InvoiceSeries
		err := rows.Scan(
			&s.ID, &s.AccountID, &s.Name, &s.Prefix, &s.Year, &s.Type, &s.CurrentNumber,
			&s.ResetYearly, &s.IsDefault, &s.IsActive, &s.CreatedAt, &s.UpdatedAt,
			&s.Editable,
		)
		if err != nil {
			return nil, fmt.Errorf("scan series: %w", err)
		}
		list = append(list, &s)
	}
	return list, rows.Err()
}

// GetActiveByPrefix devuelve la serie activa con ese tipo y prefijo (nil, nil si no existe).
func (r *SeriesRepo) GetActiveByPrefix(ctx context.Context, accountID, seriesType, prefix string) (*entity.InvoiceSeries, error) {
	query := `
		SELECT ` + seriesColumns + `
		FROM invoice_series s
		WHERE account_id = $1 AND type = $2 AND prefix = $3 AND is_active`
	s, err := scanSeries(r.q.QueryRow(ctx, query, accountID, seriesType, prefix))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get series by prefix: %w", err)
	}
	return s, nil
}

// GetDefault devuelve la serie por defecto del tipo dado (nil, nil si no hay).
func (r *SeriesRepo) GetDefault(ctx context.Context, accountID, seriesType string) (*entity.InvoiceSeries, error) {
	query := `
		SELECT ` + seriesColumns + `
		FROM invoice_series s
		WHERE account_id = $1 AND type = $2 AND is_default`
	s, err := scanSeries(r.q.QueryRow(ctx, query, accountID, seriesType))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get default series: %w", err)
	}
	return s, nil
}

// ClearDefault desmarca la serie por defecto actual del tipo dado.
func (r *SeriesRepo) ClearDefault(ctx context.Context, accountID, seriesType string) error {
	query := `
		UPDATE invoice_series SET is_default = false, updated_at = now()
		WHERE account_id = $1 AND type = $2 AND is_default`
	if _, err := r.q.Exec(ctx, query, accountID, seriesType); err != nil {
		return fmt.Errorf("clear default series: %w", err)
	}
	return nil
}

// SetDefault marca la serie como serie por defecto de su tipo.
func (r *SeriesRepo) SetDefault(ctx context.Context, accountID, id string) error {
	query := `
		UPDATE invoice_series SET is_default = true, updated_at = now()
		WHERE account_id = $1 AND id = $2`
	tag, err := r.q.Exec(ctx, query, accountID, id)
	if err != nil {
		return fmt.Errorf("set default series: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Update reescribe los campos configurables de la serie.
func (r *SeriesRepo) Update(ctx context.Context, s *entity.InvoiceSeries) error {
	query := `
		UPDATE invoice_series
		SET name = $3, prefix = $4, year = $5, current_number = $6,
		    reset_yearly = $7, is_active = $8, updated_at = now()
		WHERE account_id = $1 AND id = $2`
	tag, err := r.q.Exec(ctx, query,
		s.AccountID, s.ID, s.Name, s.Prefix, s.Year, s.CurrentNumber,
		s.ResetYearly, s.IsActive,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("prefijo de serie duplicado: %w", domain.ErrConflict)
		}
		return fmt.Errorf("update series: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete elimina la serie. El caso de uso ya comprobó que no tiene emisiones.
func (r *SeriesRepo) Delete(ctx context.Context, accountID, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM invoice_series WHERE account_id = $1 AND id = $2`, accountID, id)
	if err != nil {
		return fmt.Errorf("delete series: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetForAllocation bloquea la fila de la serie (FOR UPDATE) y la devuelve.
// Solo tiene sentido dentro de la transacción de emisión.
func (r *SeriesRepo) GetForAllocation(ctx context.Context, seriesID string) (*entity.InvoiceSeries, error) {
	query := `
		SELECT ` + seriesColumns + `
		FROM invoice_series s WHERE id = $1
		FOR UPDATE`
	s, err := scanSeries(r.q.QueryRow(ctx, query, seriesID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock series: %w", err)
	}
	return s, nil
}

// UpdateCounter escribe contador y año tras asignar un número (misma tx que el lock).
func (r *SeriesRepo) UpdateCounter(ctx context.Context, seriesID string, number int64, year int) error {
	query := `
		UPDATE invoice_series SET current_number = $2, year = $3, updated_at = now()
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, seriesID, number, year)
	if err != nil {
		return fmt.Errorf("update series counter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// HighestIssuedNumber devuelve el número más alto emitido contra la serie (0 si ninguno).
func (r *SeriesRepo) HighestIssuedNumber(ctx context.Context, seriesID string) (int64, error) {
	var n int64
	query := `SELECT COALESCE(MAX(number), 0) FROM invoices WHERE series_id = $1`
	if err := r.q.QueryRow(ctx, query, seriesID).Scan(&n); err != nil {
		return 0, fmt.Errorf("highest issued number: %w", err)
	}
	return n, nil
}

// IssuedCount cuenta las facturas emitidas contra la serie.
func (r *SeriesRepo) IssuedCount(ctx context.Context, seriesID string) (int64, error) {
	var n int64
	query := `SELECT COUNT(*) FROM invoices WHERE series_id = $1 AND number IS NOT NULL`
	if err := r.q.QueryRow(ctx, query, seriesID).Scan(&n); err != nil {
		return 0, fmt.Errorf("issued count: %w", err)
	}
	return n, nil
}
