package verifactu_test

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itineramio/facturas-api/internal/domain/verifactu"
)

// ──────────────────────────────────────────────────────────────────────────────
// Tests de la huella VeriFactu (SHA-256 sobre la cadena canónica).
//
// La propiedad que protegen estos tests es la verificabilidad de la cadena:
// recalcular la huella con los campos persistidos de un registro debe reproducir
// exactamente la huella almacenada. Si alguien altera el orden de los campos,
// el separador o el formato de importes, la cadena entera deja de verificar.
// ──────────────────────────────────────────────────────────────────────────────

const (
	testNIFEmisor  = "B87654321"
	testNIFDestino = "12345678Z"
	testNumSerie   = "F250001"
	testFecha      = "15-03-2025"
	testFechaHora  = "2025-03-15T10:30:00+01:00"
)

func buildTestParams() *verifactu.HuellaParams {
	return &verifactu.HuellaParams{
		IDEmisorFactura:          testNIFEmisor,
		IDDestinatario:           testNIFDestino,
		NumSerieFactura:          testNumSerie,
		FechaExpedicionFactura:   testFecha,
		TipoFactura:              verifactu.TipoFacturaCompleta,
		CuotaTotal:               decimal.NewFromFloat(21),
		ImporteTotal:             decimal.NewFromFloat(121),
		Huella:                   verifactu.HuellaSeed,
		FechaHoraHusoGenRegistro: testFechaHora,
	}
}

// La huella debe coincidir con un SHA-256 recalculado de forma independiente
// sobre la cadena canónica montada a mano, campo a campo.
func TestCalculate_CoincideConRecalculoIndependiente(t *testing.T) {
	calc := verifactu.NewCalculator()
	huella, err := calc.Calculate(buildTestParams())
	require.NoError(t, err)

	canonical := "IDEmisorFactura=" + testNIFEmisor +
		"&IDDestinatario=" + testNIFDestino +
		"&NumSerieFactura=" + testNumSerie +
		"&FechaExpedicionFactura=" + testFecha +
		"&TipoFactura=F1" +
		"&CuotaTotal=21.00" +
		"&ImporteTotal=121.00" +
		"&Huella=" +
		"&FechaHoraHusoGenRegistro=" + testFechaHora
	sum := sha256.Sum256([]byte(canonical))
	want := strings.ToUpper(hex.EncodeToString(sum[:]))

	assert.Equal(t, want, huella,
		"la huella debe ser el SHA-256 hex mayúsculas de la cadena canónica")
}

// El mismo input siempre produce la misma huella (idempotente).
func TestCalculate_Determinista(t *testing.T) {
	calc := verifactu.NewCalculator()
	h1, err1 := calc.Calculate(buildTestParams())
	h2, err2 := calc.Calculate(buildTestParams())

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, h1, h2)
}

// Sensibilidad al input: cambiar cualquier campo cambia la huella.
func TestCalculate_SensibleAlInput(t *testing.T) {
	calc := verifactu.NewCalculator()
	base, err := calc.Calculate(buildTestParams())
	require.NoError(t, err)

	mutations := map[string]func(*verifactu.HuellaParams){
		"NumSerieFactura": func(p *verifactu.HuellaParams) { p.NumSerieFactura = "F250002" },
		"ImporteTotal":    func(p *verifactu.HuellaParams) { p.ImporteTotal = decimal.NewFromFloat(121.01) },
		"TipoFactura":     func(p *verifactu.HuellaParams) { p.TipoFactura = verifactu.TipoFacturaRectificativa },
		"HuellaAnterior":  func(p *verifactu.HuellaParams) { p.Huella = base },
		"FechaHora":       func(p *verifactu.HuellaParams) { p.FechaHoraHusoGenRegistro = "2025-03-15T10:30:01+01:00" },
	}
	for name, mutate := range mutations {
		p := buildTestParams()
		mutate(p)
		h, err := calc.Calculate(p)
		require.NoError(t, err, name)
		assert.NotEqual(t, base, h, "cambiar %s debe cambiar la huella", name)
	}
}

// El encadenamiento enlaza: la huella del registro N entra en la del N+1.
func TestCalculate_Encadenamiento(t *testing.T) {
	calc := verifactu.NewCalculator()

	primero := buildTestParams()
	h1, err := calc.Calculate(primero)
	require.NoError(t, err)

	segundo := buildTestParams()
	segundo.NumSerieFactura = "F250002"
	segundo.Huella = h1
	h2, err := calc.Calculate(segundo)
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
	assert.Contains(t, verifactu.Canonicalize(segundo), "Huella="+h1,
		"la cadena canónica del segundo registro debe incluir la huella del primero")
}

// El formato de importes es estricto: 21 y 21.00 canonicalizan igual,
// 21.005 se redondea a 2 decimales.
func TestCanonicalize_FormatoImportes(t *testing.T) {
	p := buildTestParams()
	p.CuotaTotal = decimal.NewFromFloat(21.0)
	c1 := verifactu.Canonicalize(p)

	p.CuotaTotal = decimal.RequireFromString("21.00")
	c2 := verifactu.Canonicalize(p)
	assert.Equal(t, c1, c2)

	p.CuotaTotal = decimal.RequireFromString("21.005")
	assert.Contains(t, verifactu.Canonicalize(p), "CuotaTotal=21.01")
}

// La huella tiene 64 caracteres hexadecimales en mayúsculas (SHA-256).
func TestCalculate_FormatoSalida(t *testing.T) {
	calc := verifactu.NewCalculator()
	h, err := calc.Calculate(buildTestParams())
	require.NoError(t, err)

	assert.Len(t, h, 64)
	assert.Equal(t, strings.ToUpper(h), h, "la huella debe ir en mayúsculas")
	_, err = hex.DecodeString(h)
	assert.NoError(t, err, "la huella debe ser hexadecimal válido")
}

// ── Errores de validación ─────────────────────────────────────────────────────

func TestCalculate_ErrorSiNilParams(t *testing.T) {
	_, err := verifactu.NewCalculator().Calculate(nil)
	assert.Error(t, err)
}

func TestCalculate_ErrorSiEmisorVacio(t *testing.T) {
	p := buildTestParams()
	p.IDEmisorFactura = "  "
	_, err := verifactu.NewCalculator().Calculate(p)
	assert.Error(t, err)
}

func TestCalculate_ErrorSiNumSerieVacio(t *testing.T) {
	p := buildTestParams()
	p.NumSerieFactura = ""
	_, err := verifactu.NewCalculator().Calculate(p)
	assert.Error(t, err)
}

func TestCalculate_ErrorSiTipoFacturaDesconocido(t *testing.T) {
	p := buildTestParams()
	p.TipoFactura = "F9"
	_, err := verifactu.NewCalculator().Calculate(p)
	assert.Error(t, err)
}

// ── Fechas y QR ───────────────────────────────────────────────────────────────

func TestFormatFecha(t *testing.T) {
	d := timeMustParse(t, "2025-03-15T10:30:00+01:00")
	assert.Equal(t, "15-03-2025", verifactu.FormatFecha(d))
}

func timeMustParse(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return parsed
}

func TestQRPayload(t *testing.T) {
	got := verifactu.QRPayload(
		"https://www2.agenciatributaria.gob.es/wlpl/TIKE-CONT/ValidarQR/",
		testNIFEmisor, testNumSerie, testFecha, decimal.NewFromFloat(121),
	)
	assert.Equal(t,
		"https://www2.agenciatributaria.gob.es/wlpl/TIKE-CONT/ValidarQR?nif=B87654321&numserie=F250001&fecha=15-03-2025&importe=121.00",
		got)
}

// Los valores se escapan como componente de query: un número de serie con
// caracteres reservados no puede romper la URL de cotejo.
func TestQRPayload_EscapaValoresReservados(t *testing.T) {
	got := verifactu.QRPayload(
		"https://www2.agenciatributaria.gob.es/wlpl/TIKE-CONT/ValidarQR/",
		testNIFEmisor, "F/2025&0001", testFecha, decimal.NewFromFloat(121),
	)
	assert.Equal(t,
		"https://www2.agenciatributaria.gob.es/wlpl/TIKE-CONT/ValidarQR?nif=B87654321&numserie=F%2F2025%260001&fecha=15-03-2025&importe=121.00",
		got)
}
