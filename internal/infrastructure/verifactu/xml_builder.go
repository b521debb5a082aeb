// Generación del XML RegistroAlta VeriFactu según el XSD de la AEAT
// (SuministroInformacion.xsd). El documento resultante es el que se envía
// dentro del sobre SOAP de RegFactuSistemaFacturacion.
package verifactu

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/itineramio/facturas-api/internal/domain/entity"
)

// Namespace sf del XSD oficial de la AEAT.
const NamespaceSF = "https://www2.agenciatributaria.gob.es/static_files/common/internet/dep/aplicaciones/es/aeat/tike/cont/ws/SuministroInformacion.xsd"

// Software identifica el sistema informático de facturación (SistemaInformaticoType).
type Software struct {
	NombreRazon       string // fabricante
	NIF               string // NIF del fabricante
	NombreSistema     string // máx 30 caracteres
	IDSistema         string // máx 2 caracteres
	Version           string
	NumeroInstalacion string
	SoloVerifactu     string // S = solo VeriFactu, N = también no VeriFactu
	MultiOT           string // S = soporta varios obligados
	IndicadorMultiOT  string // S = sirviendo a varios obligados
}

// DefaultSoftware devuelve la identificación de este sistema.
func DefaultSoftware() Software {
	return Software{
		NombreRazon:       "Itineramio SL",
		NIF:               "B12345678",
		NombreSistema:     "Itineramio Gestion",
		IDSistema:         "IT",
		Version:           "2.0.0",
		NumeroInstalacion: "1",
		SoloVerifactu:     "S",
		MultiOT:           "S",
		IndicadorMultiOT:  "S",
	}
}

// DesgloseDetalle es una línea de desglose de IVA (máx 12 por registro).
type DesgloseDetalle struct {
	Impuesto              string // 01 = IVA
	ClaveRegimen          string // 01 = régimen general
	CalificacionOperacion string // S1 = sujeta sin inversión del sujeto pasivo
	TipoImpositivo        string
	BaseImponible         string
	CuotaRepercutida      string
}

// FacturaRectificada identifica una factura corregida por una rectificativa.
type FacturaRectificada struct {
	NumSerieFactura string
	FechaExpedicion string
}

// Rectificativa describe la sección de rectificación del registro.
type Rectificativa struct {
	Tipo         string // S = sustitución, I = por diferencias
	Rectificadas []FacturaRectificada
}

// RegistroAlta contiene los datos del registro de alta de una factura emitida.
// Las fechas van ya formateadas: FechaExpedicion DD-MM-YYYY,
// FechaHoraHusoGenRegistro RFC 3339 con huso.
type RegistroAlta struct {
	NIFEmisor            string
	NombreRazonEmisor    string
	NIFReceptor          string
	NombreRazonReceptor  string
	NumSerieFactura      string
	FechaExpedicion      string
	TipoFactura          string // F1 | R1
	DescripcionOperacion string
	Desglose             []DesgloseDetalle
	CuotaTotal           string
	ImporteTotal         string
	Rectificativa        *Rectificativa

	Huella                   string
	HuellaAnterior           string // vacía en el primer registro de la cadena
	FechaHoraHusoGenRegistro string

	Software Software
}

// TipoRectificativa traduce el tipo de rectificación interno al código AEAT.
func TipoRectificativa(rectifyingType string) (string, error) {
	switch rectifyingType {
	case entity.RectifyingSubstitution:
		return "S", nil
	case entity.RectifyingDifference:
		return "I", nil
	}
	return "", fmt.Errorf("tipo de rectificativa desconocido: %q", rectifyingType)
}

// BuildRegistroAlta genera el documento XML del registro de alta.
func BuildRegistroAlta(r RegistroAlta) ([]byte, error) {
	if r.NIFEmisor == "" || r.NumSerieFactura == "" || r.Huella == "" {
		return nil, fmt.Errorf("registro de alta incompleto: emisor, número y huella son obligatorios")
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("sf:RegistroAlta")
	root.CreateAttr("xmlns:sf", NamespaceSF)
	root.CreateElement("sf:IDVersion").SetText("1.0")

	idFactura := root.CreateElement("sf:IDFactura")
	idFactura.CreateElement("sf:IDEmisorFactura").SetText(r.NIFEmisor)
	idFactura.CreateElement("sf:NumSerieFactura").SetText(r.NumSerieFactura)
	idFactura.CreateElement("sf:FechaExpedicionFactura").SetText(r.FechaExpedicion)

	root.CreateElement("sf:NombreRazonEmisor").SetText(r.NombreRazonEmisor)
	root.CreateElement("sf:TipoFactura").SetText(r.TipoFactura)

	if r.Rectificativa != nil {
		root.CreateElement("sf:TipoRectificativa").SetText(r.Rectificativa.Tipo)
		rectificadas := root.CreateElement("sf:FacturasRectificadas")
		for _, ref := range r.Rectificativa.Rectificadas {
			id := rectificadas.CreateElement("sf:IDFacturaRectificada")
			id.CreateElement("sf:NumSerieFactura").SetText(ref.NumSerieFactura)
			id.CreateElement("sf:FechaExpedicionFactura").SetText(ref.FechaExpedicion)
		}
	}

	root.CreateElement("sf:DescripcionOperacion").SetText(r.DescripcionOperacion)

	if r.NIFReceptor != "" || r.NombreRazonReceptor != "" {
		destinatarios := root.CreateElement("sf:Destinatarios")
		dest := destinatarios.CreateElement("sf:IDDestinatario")
		if r.NIFReceptor != "" {
			dest.CreateElement("sf:NIF").SetText(r.NIFReceptor)
		}
		dest.CreateElement("sf:NombreRazon").SetText(r.NombreRazonReceptor)
	}

	desglose := root.CreateElement("sf:Desglose")
	for _, d := range r.Desglose {
		det := desglose.CreateElement("sf:DetalleDesglose")
		if d.Impuesto != "" {
			det.CreateElement("sf:Impuesto").SetText(d.Impuesto)
		}
		det.CreateElement("sf:ClaveRegimen").SetText(d.ClaveRegimen)
		det.CreateElement("sf:CalificacionOperacion").SetText(d.CalificacionOperacion)
		if d.TipoImpositivo != "" {
			det.CreateElement("sf:TipoImpositivo").SetText(d.TipoImpositivo)
		}
		det.CreateElement("sf:BaseImponibleOimporteNoSujeto").SetText(d.BaseImponible)
		if d.CuotaRepercutida != "" {
			det.CreateElement("sf:CuotaRepercutida").SetText(d.CuotaRepercutida)
		}
	}

	root.CreateElement("sf:CuotaTotal").SetText(r.CuotaTotal)
	root.CreateElement("sf:ImporteTotal").SetText(r.ImporteTotal)

	encadenamiento := root.CreateElement("sf:Encadenamiento")
	if r.HuellaAnterior == "" {
		encadenamiento.CreateElement("sf:PrimerRegistro").SetText("S")
	} else {
		anterior := encadenamiento.CreateElement("sf:RegistroAnterior")
		anterior.CreateElement("sf:Huella").SetText(r.HuellaAnterior)
	}

	sw := r.Software
	sistema := root.CreateElement("sf:SistemaInformatico")
	sistema.CreateElement("sf:NombreRazon").SetText(sw.NombreRazon)
	sistema.CreateElement("sf:NIF").SetText(sw.NIF)
	sistema.CreateElement("sf:NombreSistemaInformatico").SetText(sw.NombreSistema)
	sistema.CreateElement("sf:IdSistemaInformatico").SetText(sw.IDSistema)
	sistema.CreateElement("sf:Version").SetText(sw.Version)
	sistema.CreateElement("sf:NumeroInstalacion").SetText(sw.NumeroInstalacion)
	sistema.CreateElement("sf:TipoUsoPosibleSoloVerifactu").SetText(sw.SoloVerifactu)
	sistema.CreateElement("sf:TipoUsoPosibleMultiOT").SetText(sw.MultiOT)
	sistema.CreateElement("sf:IndicadorMultiplesOT").SetText(sw.IndicadorMultiOT)

	root.CreateElement("sf:FechaHoraHusoGenRegistro").SetText(r.FechaHoraHusoGenRegistro)
	root.CreateElement("sf:TipoHuella").SetText("01") // 01 = SHA-256
	root.CreateElement("sf:Huella").SetText(r.Huella)

	doc.Indent(2)
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serializar registro de alta: %w", err)
	}
	return out, nil
}
