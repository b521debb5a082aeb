package entity

import "time"

// Tipos de serie de facturación.
const (
	SeriesTypeStandard   = "STANDARD"
	SeriesTypeRectifying = "RECTIFYING"
)

// InvoiceSeries representa una serie de numeración de facturas.
// Cada serie define un prefijo y un contador correlativo; las facturas se emiten
// consumiendo números de la serie de forma atómica (nunca se reutilizan ni se saltan).
// Invariantes:
//   - prefijo único entre las series activas del mismo tipo de la cuenta
//   - a lo sumo una serie por defecto (IsDefault) por tipo
//   - CurrentNumber nunca retrocede por debajo del número más alto ya emitido
type InvoiceSeries struct {
	ID            string
	AccountID     string
	Name          string
	Prefix        string // 1–6 caracteres alfanuméricos
	Year          int
	Type          string // STANDARD | RECTIFYING
	CurrentNumber int64
	ResetYearly   bool
	IsDefault     bool
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Editable es derivado: true si nunca se ha emitido una factura contra la serie.
	// Lo rellena el repositorio con un conteo; no se persiste.
	Editable bool
}
