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

var _ repository.ComplianceRepository = (*ComplianceRepo)(nil)

// ComplianceRepo implementación de ComplianceRepository (usable con pool o tx).
type ComplianceRepo struct {
	q Querier
}

// NewComplianceRepository construye el adaptador. Pasar pool o tx (Querier).
func NewComplianceRepository(q Querier) *ComplianceRepo {
	return &ComplianceRepo{q: q}
}

// GetChainHead devuelve la última huella de la cuenta bloqueando la fila del
// puntero. Si la cuenta aún no tiene puntero lo crea con la semilla vacía; el
// ON CONFLICT cubre la carrera entre dos primeras emisiones simultáneas.
func (r *ComplianceRepo) GetChainHead(ctx context.Context, accountID string) (string, error) {
	insert := `
		INSERT INTO compliance_chain (account_id, last_hash)
		VALUES ($1, '')
		ON CONFLICT (account_id) DO NOTHING`
	if _, err := r.q.Exec(ctx, insert, accountID); err != nil {
		return "", fmt.Errorf("init chain pointer: %w", err)
	}
	var last string
	query := `SELECT last_hash FROM compliance_chain WHERE account_id = $1 FOR UPDATE`
	if err := r.q.QueryRow(ctx, query, accountID).Scan(&last); err != nil {
		return "", fmt.Errorf("lock chain pointer: %w", err)
	}
	return last, nil
}

// AdvanceChain escribe la nueva huella como cabeza de cadena (misma tx que el lock).
func (r *ComplianceRepo) AdvanceChain(ctx context.Context, accountID, hash string) error {
	query := `
		UPDATE compliance_chain SET last_hash = $2, updated_at = now()
		WHERE account_id = $1`
	tag, err := r.q.Exec(ctx, query, accountID, hash)
	if err != nil {
		return fmt.Errorf("advance chain: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("puntero de cadena inexistente: %w", domain.ErrCompliance)
	}
	return nil
}

// CreateRecord persiste el registro de encadenamiento. El índice único sobre
// invoice_id garantiza que una factura nunca encadena dos veces.
func (r *ComplianceRepo) CreateRecord(ctx context.Context, rec *entity.ComplianceRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	query := `
		INSERT INTO compliance_records (id, account_id, invoice_id, hash, previous_hash, qr_payload, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.q.Exec(ctx, query,
		rec.ID, rec.AccountID, rec.InvoiceID, rec.Hash, rec.PreviousHash, rec.QRPayload, rec.ComputedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("la factura ya tiene registro de encadenamiento: %w", domain.ErrCompliance)
		}
		return fmt.Errorf("insert compliance record: %w", err)
	}
	return nil
}

// GetByInvoiceID devuelve el registro de una factura (nil, nil si no existe).
func (r *ComplianceRepo) GetByInvoiceID(ctx context.Context, accountID, invoiceID string) (*entity.ComplianceRecord, error) {
	query := `
		SELECT id, account_id, invoice_id, hash, previous_hash, qr_payload, computed_at
		FROM compliance_records WHERE account_id = $1 AND invoice_id = $2`
	var rec entity.ComplianceRecord
	err := r.q.QueryRow(ctx, query, accountID, invoiceID).Scan(
		&rec.ID, &rec.AccountID, &rec.InvoiceID, &rec.Hash, &rec.PreviousHash, &rec.QRPayload, &rec.ComputedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get compliance record: %w", err)
	}
	return &rec, nil
}
