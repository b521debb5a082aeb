// Package billing: reglas puras del ciclo de vida de facturas (sin persistencia).
// La máquina de estados vive aquí como tabla explícita de transiciones, validada
// en el servidor con independencia de lo que el cliente muestre o deshabilite.
package billing

import (
	"fmt"

	"github.com/itineramio/facturas-api/internal/domain"
	"github.com/itineramio/facturas-api/internal/domain/entity"
)

// transitions define las transiciones de estado permitidas.
// Una vez emitida, la factura solo avanza (SENT/PAID/OVERDUE); nunca vuelve a
// DRAFT/PROFORMA. PAID y CANCELLED no tienen transiciones de salida.
// CANCELLED es administrativo: ninguna transición lo produce desde aquí.
var transitions = map[string][]string{
	entity.StatusDraft:    {entity.StatusIssued},
	entity.StatusProforma: {entity.StatusIssued},
	entity.StatusIssued:   {entity.StatusSent, entity.StatusPaid, entity.StatusOverdue},
	entity.StatusSent:     {entity.StatusPaid, entity.StatusOverdue},
	entity.StatusOverdue:  {entity.StatusPaid},
}

// ValidStatus indica si s es un estado conocido.
func ValidStatus(s string) bool {
	switch s {
	case entity.StatusDraft, entity.StatusProforma, entity.StatusIssued,
		entity.StatusSent, entity.StatusPaid, entity.StatusOverdue, entity.StatusCancelled:
		return true
	}
	return false
}

// CanTransition indica si la transición from→to está permitida por la tabla.
func CanTransition(from, to string) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Transition valida y aplica la transición sobre la factura, manteniendo el
// invariante IsLocked == (estado distinto de DRAFT y PROFORMA).
func Transition(inv *entity.Invoice, to string) error {
	if !ValidStatus(to) {
		return fmt.Errorf("estado desconocido %q: %w", to, domain.ErrValidation)
	}
	if !CanTransition(inv.Status, to) {
		return fmt.Errorf("transición %s→%s no permitida: %w", inv.Status, to, domain.ErrInvalidState)
	}
	inv.Status = to
	inv.IsLocked = inv.Status != entity.StatusDraft && inv.Status != entity.StatusProforma
	return nil
}

// Mutable indica si la factura admite edición o borrado (solo DRAFT/PROFORMA).
func Mutable(inv *entity.Invoice) bool {
	return inv.Status == entity.StatusDraft || inv.Status == entity.StatusProforma
}
