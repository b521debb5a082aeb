package entity

import "time"

// Account representa la cuenta emisora (el gestor de propiedades que factura).
// Cada cuenta tiene su propia cadena VeriFactu: los registros de alta se encadenan
// por cuenta, ordenados por instante de emisión.
type Account struct {
	ID              string
	Name            string
	TaxID           string // NIF del emisor; entra en la huella y en el QR
	VerifactuExempt bool   // true = no se generan registros de encadenamiento (la numeración sigue igual)
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
