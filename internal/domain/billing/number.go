package billing

import (
	"fmt"

	"github.com/itineramio/facturas-api/internal/domain"
)

// Longitudes del prefijo de serie.
const (
	PrefixMinLen = 1
	PrefixMaxLen = 6
)

// ValidatePrefix verifica que el prefijo tenga 1–6 caracteres alfanuméricos.
func ValidatePrefix(prefix string) error {
	if len(prefix) < PrefixMinLen || len(prefix) > PrefixMaxLen {
		return fmt.Errorf("prefijo debe tener entre %d y %d caracteres: %w", PrefixMinLen, PrefixMaxLen, domain.ErrValidation)
	}
	for _, r := range prefix {
		isDigit := r >= '0' && r <= '9'
		isUpper := r >= 'A' && r <= 'Z'
		isLower := r >= 'a' && r <= 'z'
		if !isDigit && !isUpper && !isLower {
			return fmt.Errorf("prefijo solo admite caracteres alfanuméricos: %w", domain.ErrValidation)
		}
	}
	return nil
}

// FormatFullNumber compone el número completo de factura:
// prefijo + año en 2 dígitos + número con relleno a 4 cifras.
// Ej: ("F", 2025, 6) → "F250006".
func FormatFullNumber(prefix string, year int, number int64) string {
	return fmt.Sprintf("%s%02d%04d", prefix, year%100, number)
}
