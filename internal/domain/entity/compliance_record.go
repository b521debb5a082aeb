package entity

import "time"

// ComplianceRecord es el registro de encadenamiento VeriFactu de una factura emitida.
// Se crea exactamente una vez, en la emisión, y nunca se modifica. Los registros de
// una cuenta forman una cadena enlazada append-only ordenada por instante de emisión,
// independiente de la serie: Hash enlaza con el PreviousHash del registro anterior.
type ComplianceRecord struct {
	ID           string
	AccountID    string
	InvoiceID    string
	Hash         string // huella SHA-256 (hex mayúsculas)
	PreviousHash string // huella del registro anterior; vacío en el primer registro de la cuenta
	QRPayload    string // URL de verificación AEAT embebida en el QR
	ComputedAt   time.Time
}
