package domain

import "errors"

// Errores de dominio (sin dependencias externas).
//
// Taxonomía del motor de facturación:
//   - ErrValidation: entrada malformada (líneas vacías, total no positivo, prefijo inválido).
//     Se reporta de inmediato, nunca se reintenta.
//   - ErrInvalidState: operación ilegal para el estado actual (editar factura bloqueada,
//     emitir dos veces, bajar el contador de una serie por debajo del histórico).
//   - ErrConflict: colisión transitoria de asignación bajo concurrencia. Se reintenta
//     internamente con backoff acotado; solo se expone si se agotan los reintentos.
//   - ErrCompliance: inconsistencia del puntero de cadena o del hash. Fatal: la emisión
//     se aborta con rollback completo y queda marcada para revisión manual.
var (
	ErrNotFound           = errors.New("recurso no encontrado")
	ErrValidation         = errors.New("entrada inválida")
	ErrInvalidState       = errors.New("operación no permitida en el estado actual")
	ErrConflict           = errors.New("conflicto de concurrencia en la asignación")
	ErrCompliance         = errors.New("inconsistencia en la cadena de registros VeriFactu")
	ErrUserNotFound       = errors.New("usuario no encontrado")
	ErrEmailAlreadyExists = errors.New("el email ya está registrado")
	ErrUnauthorized       = errors.New("no autorizado")
	ErrForbidden          = errors.New("acceso denegado")
)
