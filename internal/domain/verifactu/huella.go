// Package verifactu: cálculo de la huella de encadenamiento según el detalle
// técnico del RD 1007/2023 (sistema VeriFactu de la AEAT).
// Algoritmo: SHA-256 sobre la cadena canónica "clave=valor" unida con "&",
// en el orden estricto del anexo; salida en hexadecimal mayúsculas.
package verifactu

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Tipos de factura AEAT relevantes para el motor.
const (
	TipoFacturaCompleta      = "F1" // factura completa estándar
	TipoFacturaRectificativa = "R1" // rectificativa (art. 80.1, 80.2 y error fundado)
)

// HuellaSeed es la huella anterior del primer registro de una cuenta:
// la cadena arranca sin registro previo, con huella anterior vacía.
const HuellaSeed = ""

// HuellaParams contiene los campos que entran en la cadena canónica, en el
// orden exigido. El prefijo de serie viaja dentro de NumSerieFactura.
type HuellaParams struct {
	IDEmisorFactura          string          // NIF del emisor (solo el identificador, sin espacios)
	IDDestinatario           string          // NIF del destinatario de la factura
	NumSerieFactura          string          // número completo (prefijo + año + correlativo)
	FechaExpedicionFactura   string          // DD-MM-YYYY
	TipoFactura              string          // F1 | R1
	CuotaTotal               decimal.Decimal // total de IVA repercutido
	ImporteTotal             decimal.Decimal // importe total de la factura
	Huella                   string          // huella del registro anterior (HuellaSeed en el primero)
	FechaHoraHusoGenRegistro string          // ISO 8601 con huso, instante de generación del registro
}

// Calculator calcula huellas de registros de facturación.
type Calculator struct{}

// NewCalculator crea el servicio de cálculo.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Calculate genera la huella (SHA-256 hex mayúsculas) a partir de los parámetros.
// Recalcular con los mismos campos persistidos reproduce exactamente la huella
// almacenada: es la propiedad que permite verificar la cadena a posteriori.
func (c *Calculator) Calculate(p *HuellaParams) (string, error) {
	if p == nil {
		return "", fmt.Errorf("verifactu: HuellaParams es obligatorio")
	}
	if err := p.validate(); err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(Canonicalize(p)))
	return strings.ToUpper(hex.EncodeToString(sum[:])), nil
}

// Canonicalize construye la cadena canónica "clave=valor&..." en orden estricto.
// Importes sin separador de miles, punto decimal, 2 decimales (ej: 121.00).
func Canonicalize(p *HuellaParams) string {
	pairs := []string{
		"IDEmisorFactura=" + strings.TrimSpace(p.IDEmisorFactura),
		"IDDestinatario=" + strings.TrimSpace(p.IDDestinatario),
		"NumSerieFactura=" + strings.TrimSpace(p.NumSerieFactura),
		"FechaExpedicionFactura=" + p.FechaExpedicionFactura,
		"TipoFactura=" + p.TipoFactura,
		"CuotaTotal=" + formatAmount(p.CuotaTotal),
		"ImporteTotal=" + formatAmount(p.ImporteTotal),
		"Huella=" + p.Huella,
		"FechaHoraHusoGenRegistro=" + p.FechaHoraHusoGenRegistro,
	}
	return strings.Join(pairs, "&")
}

// FormatFecha formatea la fecha de expedición como la exige la cadena (DD-MM-YYYY).
func FormatFecha(t time.Time) string {
	return t.Format("02-01-2006")
}

// FormatFechaHora formatea el instante de generación del registro (ISO 8601 con huso).
func FormatFechaHora(t time.Time) string {
	return t.Format(time.RFC3339)
}

func (p *HuellaParams) validate() error {
	if strings.TrimSpace(p.IDEmisorFactura) == "" {
		return fmt.Errorf("verifactu: IDEmisorFactura es obligatorio")
	}
	if strings.TrimSpace(p.NumSerieFactura) == "" {
		return fmt.Errorf("verifactu: NumSerieFactura es obligatorio")
	}
	if p.FechaExpedicionFactura == "" {
		return fmt.Errorf("verifactu: FechaExpedicionFactura es obligatoria (DD-MM-YYYY)")
	}
	if p.TipoFactura != TipoFacturaCompleta && p.TipoFactura != TipoFacturaRectificativa {
		return fmt.Errorf("verifactu: TipoFactura %q no soportado", p.TipoFactura)
	}
	if p.FechaHoraHusoGenRegistro == "" {
		return fmt.Errorf("verifactu: FechaHoraHusoGenRegistro es obligatoria")
	}
	return nil
}

// formatAmount formatea importes para la cadena: sin separador de miles, punto decimal, 2 decimales.
func formatAmount(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

// QRPayload construye la URL de verificación que se embebe en el código QR,
// según el formato de cotejo de la sede electrónica de la AEAT. El documento
// de cotejo fija el orden de los parámetros, así que la query se monta a mano
// con cada valor escapado (url.Values ordenaría las claves alfabéticamente).
func QRPayload(baseURL, nif, numSerie string, fecha string, importe decimal.Decimal) string {
	base := strings.TrimRight(baseURL, "/")
	return base + "?nif=" + url.QueryEscape(nif) +
		"&numserie=" + url.QueryEscape(numSerie) +
		"&fecha=" + url.QueryEscape(fecha) +
		"&importe=" + url.QueryEscape(formatAmount(importe))
}
