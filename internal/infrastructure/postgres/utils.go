package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// isUniqueViolation verifica si un error es una violación de constraint único (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isRetryableTxError identifica fallos transitorios de transacción que el
// asignador puede reintentar: serialization_failure (40001),
// deadlock_detected (40P01) y lock_not_available (55P03).
func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "55P03":
		return true
	}
	return false
}

// nullIfEmpty convierte cadenas vacías en NULL para columnas opcionales.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// derefStr devuelve la cadena apuntada o "" si es NULL.
func derefStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
