package dto

// DesgloseLine línea de desglose de IVA del registro de alta (una por tipo impositivo).
type DesgloseLine struct {
	TipoImpositivo   string
	BaseImponible    string
	CuotaRepercutida string
}

// RectifyingExport referencia a la factura rectificada dentro del registro de alta.
type RectifyingExport struct {
	Type            string // SUBSTITUTION | DIFFERENCE
	NumSerieFactura string
	FechaExpedicion string // DD-MM-YYYY
}

// RegistroAltaExport datos ya resueltos y formateados para construir el XML
// RegistroAlta de una factura emitida. Las fechas van en los formatos que exige
// la AEAT; los importes con dos decimales.
type RegistroAltaExport struct {
	NIFEmisor           string
	NombreEmisor        string
	NIFReceptor         string
	NombreReceptor      string
	NumSerieFactura     string
	FechaExpedicion     string // DD-MM-YYYY
	TipoFactura         string // F1 | R1
	Descripcion         string
	Desglose            []DesgloseLine
	CuotaTotal          string
	ImporteTotal        string
	Huella              string
	HuellaAnterior      string
	FechaHoraGeneracion string // RFC 3339
	Rectifying          *RectifyingExport
	QRPayload           string
}
