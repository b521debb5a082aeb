package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/itineramio/facturas-api/internal/domain"
	"github.com/itineramio/facturas-api/internal/domain/entity"
	"github.com/itineramio/facturas-api/internal/domain/repository"
)

var _ repository.InvoiceRepository = (*InvoiceRepo)(nil)

// InvoiceRepo implementación de InvoiceRepository (usable con pool o tx).
type InvoiceRepo struct {
	q Querier
}

// NewInvoiceRepository construye el adaptador. Pasar pool o tx (Querier).
func NewInvoiceRepository(q Querier) *InvoiceRepo {
	return &InvoiceRepo{q: q}
}

const invoiceColumns = `id, account_id, series_id, owner_id, number, full_number, status, is_locked,
	       issue_date, due_date, issued_at, subtotal, total_vat, total_retention, total, notes,
	       is_rectifying, rectifies_id, rectifying_type, rectifying_reason, created_at, updated_at`

func scanInvoice(row pgxScanner) (*entity.Invoice, error) {
	var inv entity.Invoice
	var number *int64
	var fullNumber, notes, rectifiesID, rectType, rectReason *string
	var issueDate, dueDate, issuedAt *time.Time
	err := row.Scan(
		&inv.ID, &inv.AccountID, &inv.SeriesID, &inv.OwnerID, &number, &fullNumber,
		&inv.Status, &inv.IsLocked, &issueDate, &dueDate, &issuedAt,
		&inv.Subtotal, &inv.TotalVat, &inv.TotalRetention, &inv.Total, &notes,
		&inv.IsRectifying, &rectifiesID, &rectType, &rectReason,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if number != nil {
		inv.Number = *number
	}
	if issueDate != nil {
		inv.IssueDate = *issueDate
	}
	if dueDate != nil {
		inv.DueDate = *dueDate
	}
	if issuedAt != nil {
		inv.IssuedAt = *issuedAt
	}
	inv.FullNumber = derefStr(fullNumber)
	inv.Notes = derefStr(notes)
	inv.RectifiesID = derefStr(rectifiesID)
	inv.RectifyingType = derefStr(rectType)
	inv.RectifyingReason = derefStr(rectReason)
	return &inv, nil
}

func nullIfZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullIfZeroInt(n int64) *int64 {
	if n == 0 {
		return nil
	}
	return &n
}

// Create persiste la cabecera y las líneas de un borrador.
func (r *InvoiceRepo) Create(ctx context.Context, inv *entity.Invoice, items []*entity.InvoiceItem) error {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	query := `
		INSERT INTO invoices (id, account_id, series_id, owner_id, number, full_number, status, is_locked,
		                      issue_date, due_date, issued_at, subtotal, total_vat, total_retention, total, notes,
		                      is_rectifying, rectifies_id, rectifying_type, rectifying_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`
	_, err := r.q.Exec(ctx, query,
		inv.ID, inv.AccountID, inv.SeriesID, inv.OwnerID,
		nullIfZeroInt(inv.Number), nullIfEmpty(inv.FullNumber), inv.Status, inv.IsLocked,
		nullIfZeroTime(inv.IssueDate), nullIfZeroTime(inv.DueDate), nullIfZeroTime(inv.IssuedAt),
		inv.Subtotal, inv.TotalVat, inv.TotalRetention, inv.Total, nullIfEmpty(inv.Notes),
		inv.IsRectifying, nullIfEmpty(inv.RectifiesID), nullIfEmpty(inv.RectifyingType), nullIfEmpty(inv.RectifyingReason),
		inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return r.insertItems(ctx, inv.ID, items)
}

// GetByID obtiene una factura por ID dentro de la cuenta (nil, nil si no existe).
func (r *InvoiceRepo) GetByID(ctx context.Context, accountID, id string) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE account_id = $1 AND id = $2`
	inv, err := scanInvoice(r.q.QueryRow(ctx, query, accountID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return inv, nil
}

// GetForIssuance relee la factura bloqueando su fila. Dentro de la transacción
// de emisión el lock serializa a dos emisores de la misma factura: el segundo
// espera al commit del primero y la revalidación ve el estado ya comprometido.
func (r *InvoiceRepo) GetForIssuance(ctx context.Context, accountID, id string) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE account_id = $1 AND id = $2 FOR UPDATE`
	inv, err := scanInvoice(r.q.QueryRow(ctx, query, accountID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get invoice for issuance: %w", err)
	}
	return inv, nil
}

// GetItems devuelve las líneas de una factura en orden de posición.
func (r *InvoiceRepo) GetItems(ctx context.Context, invoiceID string) ([]*entity.InvoiceItem, error) {
	query := `
		SELECT id, invoice_id, concept, description, quantity, unit_price, vat_rate, retention_rate, total, position
		FROM invoice_items WHERE invoice_id = $1 ORDER BY position`
	rows, err := r.q.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list invoice items: %w", err)
	}
	defer rows.Close()
	var list []*entity.InvoiceItem
	for rows.Next() {
		var it entity.InvoiceItem
		var desc *string
		err := rows.Scan(&it.ID, &it.InvoiceID, &it.Concept, &desc, &it.Quantity,
			&it.UnitPrice, &it.VatRate, &it.RetentionRate, &it.Total, &it.Position)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.Description = derefStr(desc)
		list = append(list, &it)
	}
	return list, rows.Err()
}

// ListByAccount devuelve las facturas de la cuenta paginadas, más recientes primero.
func (r *InvoiceRepo) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*entity.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.q.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()
	var list []*entity.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		list = append(list, inv)
	}
	return list, rows.Err()
}

// Update reescribe cabecera y líneas con versionado optimista sobre updated_at:
// si la fila cambió desde que el caso de uso la leyó, no afecta filas y devuelve
// ErrConflict. Las líneas se reemplazan completas (delete + insert).
func (r *InvoiceRepo) Update(ctx context.Context, inv *entity.Invoice, items []*entity.InvoiceItem) error {
	query := `
		UPDATE invoices
		SET series_id = $4, owner_id = $5, issue_date = $6, due_date = $7,
		    subtotal = $8, total_vat = $9, total_retention = $10, total = $11,
		    notes = $12, updated_at = now()
		WHERE account_id = $1 AND id = $2 AND updated_at = $3
		RETURNING updated_at`
	err := r.q.QueryRow(ctx, query,
		inv.AccountID, inv.ID, inv.UpdatedAt,
		inv.SeriesID, inv.OwnerID,
		nullIfZeroTime(inv.IssueDate), nullIfZeroTime(inv.DueDate),
		inv.Subtotal, inv.TotalVat, inv.TotalRetention, inv.Total,
		nullIfEmpty(inv.Notes),
	).Scan(&inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("factura modificada por otra escritura: %w", domain.ErrConflict)
		}
		return fmt.Errorf("update invoice: %w", err)
	}
	if _, err := r.q.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, inv.ID); err != nil {
		return fmt.Errorf("delete invoice items: %w", err)
	}
	return r.insertItems(ctx, inv.ID, items)
}

// UpdateStatus persiste una transición de estado ya validada por el dominio.
func (r *InvoiceRepo) UpdateStatus(ctx context.Context, inv *entity.Invoice) error {
	query := `
		UPDATE invoices SET status = $3, is_locked = $4, updated_at = now()
		WHERE account_id = $1 AND id = $2
		RETURNING updated_at`
	err := r.q.QueryRow(ctx, query, inv.AccountID, inv.ID, inv.Status, inv.IsLocked).Scan(&inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("update invoice status: %w", err)
	}
	return nil
}

// MarkIssued persiste el efecto de la emisión. La cláusula de estado hace la
// escritura condicional: si la factura ya no está en borrador/proforma no
// afecta filas y devuelve ErrInvalidState, en vez de pisar una emisión
// comprometida por otra transacción. El índice único (series_id, number) sigue
// siendo la última línea de defensa contra números duplicados; su violación se
// traduce a ErrConflict para que el asignador reintente.
func (r *InvoiceRepo) MarkIssued(ctx context.Context, inv *entity.Invoice) error {
	query := `
		UPDATE invoices
		SET number = $3, full_number = $4, status = $5, is_locked = true,
		    issue_date = $6, due_date = $7, issued_at = $8, updated_at = now()
		WHERE account_id = $1 AND id = $2 AND status IN ('DRAFT', 'PROFORMA')
		RETURNING updated_at`
	err := r.q.QueryRow(ctx, query,
		inv.AccountID, inv.ID, inv.Number, inv.FullNumber, inv.Status,
		inv.IssueDate, nullIfZeroTime(inv.DueDate), inv.IssuedAt,
	).Scan(&inv.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("número de factura ya asignado: %w", domain.ErrConflict)
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("la factura ya no es emitible: %w", domain.ErrInvalidState)
		}
		return fmt.Errorf("mark invoice issued: %w", err)
	}
	return nil
}

// Delete elimina una factura con sus líneas (las líneas caen por cascade).
func (r *InvoiceRepo) Delete(ctx context.Context, accountID, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM invoices WHERE account_id = $1 AND id = $2`, accountID, id)
	if err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListRectifications devuelve las rectificativas creadas contra una factura.
func (r *InvoiceRepo) ListRectifications(ctx context.Context, accountID, rectifiesID string) ([]*entity.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices WHERE account_id = $1 AND rectifies_id = $2
		ORDER BY created_at`
	rows, err := r.q.Query(ctx, query, accountID, rectifiesID)
	if err != nil {
		return nil, fmt.Errorf("list rectifications: %w", err)
	}
	defer rows.Close()
	var list []*entity.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		list = append(list, inv)
	}
	return list, rows.Err()
}

func (r *InvoiceRepo) insertItems(ctx context.Context, invoiceID string, items []*entity.InvoiceItem) error {
	query := `
		INSERT INTO invoice_items (id, invoice_id, concept, description, quantity, unit_price, vat_rate, retention_rate, total, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	for i, it := range items {
		if it.ID == "" {
			it.ID = uuid.New().String()
		}
		it.InvoiceID = invoiceID
		it.Position = i
		_, err := r.q.Exec(ctx, query,
			it.ID, it.InvoiceID, it.Concept, nullIfEmpty(it.Description),
			it.Quantity, it.UnitPrice, it.VatRate, it.RetentionRate, it.Total, it.Position,
		)
		if err != nil {
			return fmt.Errorf("insert invoice item: %w", err)
		}
	}
	return nil
}
