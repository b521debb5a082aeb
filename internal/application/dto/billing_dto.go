package dto

import "github.com/shopspring/decimal"

// InvoiceItemInput línea de factura en peticiones de creación/edición.
// Los tipos de IVA y retención en nil toman los valores por defecto del propietario.
type InvoiceItemInput struct {
	Concept       string           `json:"concept"`
	Description   string           `json:"description"`
	Quantity      decimal.Decimal  `json:"quantity"`
	UnitPrice     decimal.Decimal  `json:"unit_price"`
	VatRate       *decimal.Decimal `json:"vat_rate"`
	RetentionRate *decimal.Decimal `json:"retention_rate"`
}

// CreateInvoiceRequest alta de una factura en borrador (o proforma).
type CreateInvoiceRequest struct {
	SeriesID string             `json:"series_id"`
	OwnerID  string             `json:"owner_id"`
	Proforma bool               `json:"proforma"`
	DueDate  string             `json:"due_date"` // YYYY-MM-DD, opcional
	Notes    string             `json:"notes"`
	Items    []InvoiceItemInput `json:"items"`
}

// EditInvoiceRequest edición de una factura aún mutable. Los campos nil no cambian.
type EditInvoiceRequest struct {
	SeriesID *string            `json:"series_id"`
	OwnerID  *string            `json:"owner_id"`
	DueDate  *string            `json:"due_date"`
	Notes    *string            `json:"notes"`
	Items    []InvoiceItemInput `json:"items"` // nil = conservar líneas; no-nil = reemplazo completo
}

// RectifyInvoiceRequest creación de una rectificativa contra una factura emitida.
type RectifyInvoiceRequest struct {
	Type   string             `json:"type"` // SUBSTITUTION | DIFFERENCE
	Reason string             `json:"reason"`
	Items  []InvoiceItemInput `json:"items"`
}

// InvoiceItemResponse línea de factura en respuestas.
type InvoiceItemResponse struct {
	ID            string          `json:"id"`
	Concept       string          `json:"concept"`
	Description   string          `json:"description,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	VatRate       decimal.Decimal `json:"vat_rate"`
	RetentionRate decimal.Decimal `json:"retention_rate"`
	Total         decimal.Decimal `json:"total"`
}

// ComplianceResponse registro VeriFactu de una factura emitida.
type ComplianceResponse struct {
	Hash         string `json:"hash"`
	PreviousHash string `json:"previous_hash"`
	QRPayload    string `json:"qr_payload"`
	ComputedAt   string `json:"computed_at"`
}

// InvoiceResponse representación completa de una factura en la API.
type InvoiceResponse struct {
	ID               string                `json:"id"`
	SeriesID         string                `json:"series_id"`
	OwnerID          string                `json:"owner_id"`
	Number           int64                 `json:"number,omitempty"`
	FullNumber       string                `json:"full_number,omitempty"`
	Status           string                `json:"status"`
	IsLocked         bool                  `json:"is_locked"`
	IssueDate        string                `json:"issue_date,omitempty"`
	DueDate          string                `json:"due_date,omitempty"`
	Subtotal         decimal.Decimal       `json:"subtotal"`
	TotalVat         decimal.Decimal       `json:"total_vat"`
	TotalRetention   decimal.Decimal       `json:"total_retention"`
	Total            decimal.Decimal       `json:"total"`
	Notes            string                `json:"notes,omitempty"`
	IsRectifying     bool                  `json:"is_rectifying"`
	RectifiesID      string                `json:"rectifies_id,omitempty"`
	RectifyingType   string                `json:"rectifying_type,omitempty"`
	RectifyingReason string                `json:"rectifying_reason,omitempty"`
	Items            []InvoiceItemResponse `json:"items"`
	Compliance       *ComplianceResponse   `json:"compliance,omitempty"`
}

// IssuePreviewResponse resultado de previsualizar la emisión (sin consumir número).
type IssuePreviewResponse struct {
	CanIssue     bool   `json:"can_issue"`
	NextNumber   int64  `json:"next_number"`
	FullNumber   string `json:"full_number"`
	SeriesName   string `json:"series_name"`
	SeriesPrefix string `json:"series_prefix"`
	SeriesYear   int    `json:"series_year"`
}
