package billing_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itineramio/facturas-api/internal/domain"
	"github.com/itineramio/facturas-api/internal/domain/entity"
	"github.com/itineramio/facturas-api/internal/domain/verifactu"
)

// La emisión asigna el primer número de la serie, bloquea la factura y crea el
// registro de encadenamiento con huella verificable por recálculo independiente.
func TestIssue_AsignaNumeroYEncadena(t *testing.T) {
	fx := newFixture(t)
	draft := fx.draft(t, lineInput("Gestión de alquiler", 1, 100))

	resp, err := fx.issueUC.Issue(context.Background(), fx.account.ID, draft.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(1), resp.Number)
	assert.Equal(t, "F250001", resp.FullNumber)
	assert.Equal(t, entity.StatusIssued, resp.Status)
	assert.True(t, resp.IsLocked)
	assert.Equal(t, "121.00", resp.Total.StringFixed(2))

	series := fx.storedSeries(fx.series.ID)
	assert.Equal(t, int64(1), series.CurrentNumber)
	assert.Equal(t, 2025, series.Year)

	stored := fx.storedInvoice(draft.ID)
	rec, err := fx.complianceUC.RegistroAlta(context.Background(), fx.account.ID, draft.ID)
	require.NoError(t, err)
	assert.Empty(t, rec.HuellaAnterior, "el primer registro de la cuenta no tiene huella anterior")
	assert.Len(t, rec.Huella, 64)

	// La huella almacenada debe reproducirse recalculándola con los campos
	// persistidos del registro.
	recomputed, err := verifactu.NewCalculator().Calculate(&verifactu.HuellaParams{
		IDEmisorFactura:          fx.account.TaxID,
		IDDestinatario:           fx.owner.TaxID,
		NumSerieFactura:          stored.FullNumber,
		FechaExpedicionFactura:   verifactu.FormatFecha(stored.IssueDate),
		TipoFactura:              verifactu.TipoFacturaCompleta,
		CuotaTotal:               stored.TotalVat,
		ImporteTotal:             stored.Total,
		Huella:                   rec.HuellaAnterior,
		FechaHoraHusoGenRegistro: rec.FechaHoraGeneracion,
	})
	require.NoError(t, err)
	assert.Equal(t, recomputed, rec.Huella)

	assert.Equal(t, verifactu.QRPayload(
		testQRBaseURL, fx.account.TaxID, stored.FullNumber,
		verifactu.FormatFecha(stored.IssueDate), stored.Total,
	), rec.QRPayload)
}

// La segunda emisión continúa la numeración y enlaza con la huella de la primera.
func TestIssue_SegundaFacturaEnlazaConLaPrimera(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	first := fx.draft(t, lineInput("Gestión de alquiler", 1, 100))
	second := fx.draft(t, lineInput("Gestión de alquiler", 1, 200))

	r1, err := fx.issueUC.Issue(ctx, fx.account.ID, first.ID)
	require.NoError(t, err)
	r2, err := fx.issueUC.Issue(ctx, fx.account.ID, second.ID)
	require.NoError(t, err)

	assert.Equal(t, "F250001", r1.FullNumber)
	assert.Equal(t, "F250002", r2.FullNumber)

	rec1, err := fx.complianceUC.RegistroAlta(ctx, fx.account.ID, first.ID)
	require.NoError(t, err)
	rec2, err := fx.complianceUC.RegistroAlta(ctx, fx.account.ID, second.ID)
	require.NoError(t, err)

	assert.Equal(t, rec1.Huella, rec2.HuellaAnterior)
	fx.store.mu.Lock()
	head := fx.store.chains[fx.account.ID]
	fx.store.mu.Unlock()
	assert.Equal(t, rec2.Huella, head, "la cabeza de cadena debe apuntar al último registro")
}

// Serie con reset anual que quedó en un año anterior: la primera emisión del
// año nuevo arranca en 1 con el año en curso.
func TestIssue_ResetAnual(t *testing.T) {
	fx := newFixture(t)
	fx.store.mu.Lock()
	s := fx.store.series[fx.series.ID]
	s.Year = 2024
	s.CurrentNumber = 57
	fx.store.series[fx.series.ID] = s
	fx.store.mu.Unlock()

	draft := fx.draft(t, lineInput("Gestión de alquiler", 1, 100))
	resp, err := fx.issueUC.Issue(context.Background(), fx.account.ID, draft.ID)
	require.NoError(t, err)

	assert.Equal(t, "F250001", resp.FullNumber)
	series := fx.storedSeries(fx.series.ID)
	assert.Equal(t, int64(1), series.CurrentNumber)
	assert.Equal(t, 2025, series.Year)
}

// Sin reset anual el contador continúa aunque cambie el año natural.
func TestIssue_SinResetAnualContinua(t *testing.T) {
	fx := newFixture(t)
	fx.store.mu.Lock()
	s := fx.store.series[fx.series.ID]
	s.Year = 2024
	s.CurrentNumber = 57
	s.ResetYearly = false
	fx.store.series[fx.series.ID] = s
	fx.store.mu.Unlock()

	draft := fx.draft(t, lineInput("Gestión de alquiler", 1, 100))
	resp, err := fx.issueUC.Issue(context.Background(), fx.account.ID, draft.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(58), resp.Number)
	assert.Equal(t, "F240058", resp.FullNumber)
}

// Emitir dos veces la misma factura es idempotente en el sentido estricto:
// la segunda llamada falla sin tocar número ni cadena.
func TestIssue_YaEmitida(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	draft := fx.draft(t, lineInput("Gestión de alquiler", 1, 100))

	_, err := fx.issueUC.Issue(ctx, fx.account.ID, draft.ID)
	require.NoError(t, err)

	_, err = fx.issueUC.Issue(ctx, fx.account.ID, draft.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, int64(1), fx.storedSeries(fx.series.ID).CurrentNumber,
		"el segundo intento no debe consumir número")
}

// Carrera de emisión: la validación previa vio la factura en borrador, pero
// otra petición la emitió antes de que esta transacción tomara sus locks. La
// relectura bloqueada dentro de la transacción debe detectarlo y fallar con
// ErrInvalidState, sin renumerar la emisión ganadora ni consumir otro número.
func TestIssue_EmisionConcurrenteDetectadaEnLaTransaccion(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	draft := fx.draft(t, lineInput("Gestión de alquiler", 1, 100))

	// La emisión ganadora se compromete entre la lectura previa y la tx.
	fx.tx.beforeTx = func() {
		fx.store.mu.Lock()
		defer fx.store.mu.Unlock()
		inv := fx.store.invoices[draft.ID]
		inv.Number = 1
		inv.FullNumber = "F250001"
		inv.Status = entity.StatusIssued
		inv.IsLocked = true
		fx.store.invoices[draft.ID] = inv
		s := fx.store.series[fx.series.ID]
		s.CurrentNumber = 1
		fx.store.series[fx.series.ID] = s
	}

	_, err := fx.issueUC.Issue(ctx, fx.account.ID, draft.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	stored := fx.storedInvoice(draft.ID)
	assert.Equal(t, int64(1), stored.Number, "la emisión ganadora no debe renumerarse")
	assert.Equal(t, "F250001", stored.FullNumber)
	assert.Equal(t, int64(1), fx.storedSeries(fx.series.ID).CurrentNumber,
		"el intento perdedor no debe consumir número")
}

// La misma carrera sobre una cuenta exenta: sin registro de encadenamiento que
// aborte el segundo intento, la relectura bloqueada es la única defensa contra
// un renumerado silencioso (y el hueco que dejaría en la serie).
func TestIssue_EmisionConcurrenteCuentaExentaNoRenumera(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.store.mu.Lock()
	acc := fx.store.accounts[fx.account.ID]
	acc.VerifactuExempt = true
	fx.store.accounts[fx.account.ID] = acc
	fx.store.mu.Unlock()

	draft := fx.draft(t, lineInput("Gestión de alquiler", 1, 100))
	fx.tx.beforeTx = func() {
		fx.store.mu.Lock()
		defer fx.store.mu.Unlock()
		inv := fx.store.invoices[draft.ID]
		inv.Number = 1
		inv.FullNumber = "F250001"
		inv.Status = entity.StatusIssued
		inv.IsLocked = true
		fx.store.invoices[draft.ID] = inv
		s := fx.store.series[fx.series.ID]
		s.CurrentNumber = 1
		fx.store.series[fx.series.ID] = s
	}

	_, err := fx.issueUC.Issue(ctx, fx.account.ID, draft.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	stored := fx.storedInvoice(draft.ID)
	assert.Equal(t, int64(1), stored.Number)
	assert.Equal(t, "F250001", stored.FullNumber)
	assert.Equal(t, int64(1), fx.storedSeries(fx.series.ID).CurrentNumber)
}

func TestIssue_SinLineas(t *testing.T) {
	fx := newFixture(t)
	draft := fx.draft(t)

	_, err := fx.issueUC.Issue(context.Background(), fx.account.ID, draft.ID)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, int64(0), fx.storedSeries(fx.series.ID).CurrentNumber)
}

func TestIssue_TotalNoPositivo(t *testing.T) {
	fx := newFixture(t)
	draft := fx.draft(t, lineInput("Concepto gratuito", 1, 0))

	_, err := fx.issueUC.Issue(context.Background(), fx.account.ID, draft.ID)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestIssue_SerieDesactivada(t *testing.T) {
	fx := newFixture(t)
	draft := fx.draft(t, lineInput("Gestión de alquiler", 1, 100))

	fx.store.mu.Lock()
	s := fx.store.series[fx.series.ID]
	s.IsActive = false
	fx.store.series[fx.series.ID] = s
	fx.store.mu.Unlock()

	_, err := fx.issueUC.Issue(context.Background(), fx.account.ID, draft.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestIssue_FacturaInexistente(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.issueUC.Issue(context.Background(), fx.account.ID, "no-existe")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// Cuenta exenta de VeriFactu: la numeración funciona con normalidad pero no se
// genera registro de encadenamiento.
func TestIssue_CuentaExenta(t *testing.T) {
	fx := newFixture(t)
	fx.store.mu.Lock()
	acc := fx.store.accounts[fx.account.ID]
	acc.VerifactuExempt = true
	fx.store.accounts[fx.account.ID] = acc
	fx.store.mu.Unlock()

	draft := fx.draft(t, lineInput("Gestión de alquiler", 1, 100))
	resp, err := fx.issueUC.Issue(context.Background(), fx.account.ID, draft.ID)
	require.NoError(t, err)

	assert.Equal(t, "F250001", resp.FullNumber)
	fx.store.mu.Lock()
	_, hasRecord := fx.store.records[draft.ID]
	_, hasChain := fx.store.chains[fx.account.ID]
	fx.store.mu.Unlock()
	assert.False(t, hasRecord)
	assert.False(t, hasChain)
}

// Un fallo dentro de la transacción de emisión revierte todo: el contador no
// avanza, la factura sigue en borrador y el siguiente intento toma el mismo número.
func TestIssue_FalloRevierteNumeroYEstado(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	draft := fx.draft(t, lineInput("Gestión de alquiler", 1, 100))

	boom := errors.New("disco lleno")
	fx.store.mu.Lock()
	fx.store.failCreateRecord = boom
	fx.store.mu.Unlock()

	_, err := fx.issueUC.Issue(ctx, fx.account.ID, draft.ID)
	require.ErrorIs(t, err, boom)

	assert.Equal(t, int64(0), fx.storedSeries(fx.series.ID).CurrentNumber)
	stored := fx.storedInvoice(draft.ID)
	assert.Equal(t, entity.StatusDraft, stored.Status)
	assert.Zero(t, stored.Number)

	fx.store.mu.Lock()
	fx.store.failCreateRecord = nil
	fx.store.mu.Unlock()

	resp, err := fx.issueUC.Issue(ctx, fx.account.ID, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, "F250001", resp.FullNumber, "el número revertido debe reutilizarse en el siguiente intento")
}

// Emisiones concurrentes contra la misma serie: numeración correlativa sin
// huecos ni duplicados y cadena de huellas sin bifurcaciones.
func TestIssue_ConcurrenciaSinHuecosNiBifurcaciones(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	const n = 6
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = fx.draft(t, lineInput("Gestión de alquiler", 1, 100)).ID
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = fx.issueUC.Issue(ctx, fx.account.ID, ids[i])
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "emisión %d", i)
	}

	seen := make(map[int64]bool, n)
	for _, id := range ids {
		inv := fx.storedInvoice(id)
		assert.False(t, seen[inv.Number], "número %d duplicado", inv.Number)
		assert.True(t, inv.Number >= 1 && inv.Number <= n, "número %d fuera de rango", inv.Number)
		seen[inv.Number] = true
	}
	assert.Equal(t, int64(n), fx.storedSeries(fx.series.ID).CurrentNumber)

	// La cadena debe recorrerse completa desde la semilla hasta la cabeza.
	fx.store.mu.Lock()
	byPrev := make(map[string]string, n)
	for _, rec := range fx.store.records {
		byPrev[rec.PreviousHash] = rec.Hash
	}
	head := fx.store.chains[fx.account.ID]
	fx.store.mu.Unlock()

	require.Len(t, byPrev, n, "cada registro debe enlazar con una huella anterior distinta")
	current, steps := "", 0
	for {
		next, ok := byPrev[current]
		if !ok {
			break
		}
		current = next
		steps++
	}
	assert.Equal(t, n, steps)
	assert.Equal(t, head, current)
}

// Preview devuelve el próximo número sin consumirlo.
func TestPreview_NoConsumeNumero(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	draft := fx.draft(t, lineInput("Gestión de alquiler", 1, 100))

	p1, err := fx.issueUC.Preview(ctx, fx.account.ID, draft.ID)
	require.NoError(t, err)
	p2, err := fx.issueUC.Preview(ctx, fx.account.ID, draft.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(1), p1.NextNumber)
	assert.Equal(t, "F250001", p1.FullNumber)
	assert.Equal(t, p1.NextNumber, p2.NextNumber)
	assert.Equal(t, int64(0), fx.storedSeries(fx.series.ID).CurrentNumber)
}

func TestPreview_ResetAnual(t *testing.T) {
	fx := newFixture(t)
	fx.store.mu.Lock()
	s := fx.store.series[fx.series.ID]
	s.Year = 2024
	s.CurrentNumber = 42
	fx.store.series[fx.series.ID] = s
	fx.store.mu.Unlock()

	draft := fx.draft(t, lineInput("Gestión de alquiler", 1, 100))
	p, err := fx.issueUC.Preview(context.Background(), fx.account.ID, draft.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(1), p.NextNumber)
	assert.Equal(t, "F250001", p.FullNumber)
	assert.Equal(t, 2025, p.SeriesYear)
}

func TestPreview_FacturaYaEmitida(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	draft := fx.draft(t, lineInput("Gestión de alquiler", 1, 100))
	_, err := fx.issueUC.Issue(ctx, fx.account.ID, draft.ID)
	require.NoError(t, err)

	_, err = fx.issueUC.Preview(ctx, fx.account.ID, draft.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}
