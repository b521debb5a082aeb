package billing_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	appbilling "github.com/itineramio/facturas-api/internal/application/billing"
	"github.com/itineramio/facturas-api/internal/application/dto"
	"github.com/itineramio/facturas-api/internal/domain"
	"github.com/itineramio/facturas-api/internal/domain/entity"
	"github.com/itineramio/facturas-api/internal/domain/repository"
)

// ──────────────────────────────────────────────────────────────────────────────
// Dobles de prueba en memoria para los casos de uso de facturación.
//
// memStore guarda las entidades por valor; los repos falsos devuelven copias,
// igual que los repos reales devuelven filas escaneadas. fakeTxRunner serializa
// las transacciones con un mutex (equivalente funcional de los locks de fila) y
// restaura una instantánea del estado si fn falla, reproduciendo el rollback.
// ──────────────────────────────────────────────────────────────────────────────

type memStore struct {
	mu sync.Mutex

	accounts map[string]entity.Account
	owners   map[string]entity.Owner
	series   map[string]entity.InvoiceSeries
	invoices map[string]entity.Invoice
	items    map[string][]entity.InvoiceItem
	records  map[string]entity.ComplianceRecord // por invoiceID
	chains   map[string]string                  // accountID → última huella

	// Inyección de fallo en CreateRecord para probar el rollback de la emisión.
	failCreateRecord error
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[string]entity.Account),
		owners:   make(map[string]entity.Owner),
		series:   make(map[string]entity.InvoiceSeries),
		invoices: make(map[string]entity.Invoice),
		items:    make(map[string][]entity.InvoiceItem),
		records:  make(map[string]entity.ComplianceRecord),
		chains:   make(map[string]string),
	}
}

type memSnapshot struct {
	series   map[string]entity.InvoiceSeries
	invoices map[string]entity.Invoice
	items    map[string][]entity.InvoiceItem
	records  map[string]entity.ComplianceRecord
	chains   map[string]string
}

func (s *memStore) snapshot() *memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := &memSnapshot{
		series:   make(map[string]entity.InvoiceSeries, len(s.series)),
		invoices: make(map[string]entity.Invoice, len(s.invoices)),
		items:    make(map[string][]entity.InvoiceItem, len(s.items)),
		records:  make(map[string]entity.ComplianceRecord, len(s.records)),
		chains:   make(map[string]string, len(s.chains)),
	}
	for k, v := range s.series {
		snap.series[k] = v
	}
	for k, v := range s.invoices {
		snap.invoices[k] = v
	}
	for k, v := range s.items {
		snap.items[k] = append([]entity.InvoiceItem(nil), v...)
	}
	for k, v := range s.records {
		snap.records[k] = v
	}
	for k, v := range s.chains {
		snap.chains[k] = v
	}
	return snap
}

func (s *memStore) restore(snap *memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series = snap.series
	s.invoices = snap.invoices
	s.items = snap.items
	s.records = snap.records
	s.chains = snap.chains
}

// issuedCountLocked cuenta facturas con número asignado contra la serie. Llamar con el lock.
func (s *memStore) issuedCountLocked(seriesID string) int64 {
	var n int64
	for _, inv := range s.invoices {
		if inv.SeriesID == seriesID && inv.Number > 0 {
			n++
		}
	}
	return n
}

// ── Repos falsos ──────────────────────────────────────────────────────────────

type fakeAccountRepo struct{ s *memStore }

func (r *fakeAccountRepo) Create(_ context.Context, acc *entity.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.accounts[acc.ID] = *acc
	return nil
}

func (r *fakeAccountRepo) GetByID(_ context.Context, id string) (*entity.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	acc, ok := r.s.accounts[id]
	if !ok {
		return nil, nil
	}
	return &acc, nil
}

func (r *fakeAccountRepo) Update(_ context.Context, acc *entity.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.accounts[acc.ID] = *acc
	return nil
}

type fakeOwnerRepo struct{ s *memStore }

func (r *fakeOwnerRepo) Create(_ context.Context, owner *entity.Owner) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.owners[owner.ID] = *owner
	return nil
}

func (r *fakeOwnerRepo) GetByID(_ context.Context, id string) (*entity.Owner, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	owner, ok := r.s.owners[id]
	if !ok {
		return nil, nil
	}
	return &owner, nil
}

func (r *fakeOwnerRepo) ListByAccount(_ context.Context, accountID string) ([]*entity.Owner, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Owner
	for _, owner := range r.s.owners {
		if owner.AccountID == accountID {
			o := owner
			out = append(out, &o)
		}
	}
	return out, nil
}

func (r *fakeOwnerRepo) Update(_ context.Context, owner *entity.Owner) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.owners[owner.ID] = *owner
	return nil
}

type fakeSeriesRepo struct{ s *memStore }

func (r *fakeSeriesRepo) Create(_ context.Context, series *entity.InvoiceSeries) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.series[series.ID] = *series
	return nil
}

func (r *fakeSeriesRepo) GetByID(_ context.Context, accountID, id string) (*entity.InvoiceSeries, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	series, ok := r.s.series[id]
	if !ok || series.AccountID != accountID {
		return nil, nil
	}
	series.Editable = r.s.issuedCountLocked(id) == 0
	return &series, nil
}

func (r *fakeSeriesRepo) ListByAccount(_ context.Context, accountID string) ([]*entity.InvoiceSeries, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.InvoiceSeries
	for _, series := range r.s.series {
		if series.AccountID != accountID {
			continue
		}
		s := series
		s.Editable = r.s.issuedCountLocked(s.ID) == 0
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeSeriesRepo) GetActiveByPrefix(_ context.Context, accountID, seriesType, prefix string) (*entity.InvoiceSeries, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, series := range r.s.series {
		if series.AccountID == accountID && series.Type == seriesType && series.Prefix == prefix && series.IsActive {
			s := series
			return &s, nil
		}
	}
	return nil, nil
}

func (r *fakeSeriesRepo) GetDefault(_ context.Context, accountID, seriesType string) (*entity.InvoiceSeries, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, series := range r.s.series {
		if series.AccountID == accountID && series.Type == seriesType && series.IsDefault {
			s := series
			return &s, nil
		}
	}
	return nil, nil
}

func (r *fakeSeriesRepo) ClearDefault(_ context.Context, accountID, seriesType string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, series := range r.s.series {
		if series.AccountID == accountID && series.Type == seriesType && series.IsDefault {
			series.IsDefault = false
			r.s.series[id] = series
		}
	}
	return nil
}

func (r *fakeSeriesRepo) SetDefault(_ context.Context, accountID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	series, ok := r.s.series[id]
	if !ok || series.AccountID != accountID {
		return domain.ErrNotFound
	}
	series.IsDefault = true
	r.s.series[id] = series
	return nil
}

func (r *fakeSeriesRepo) Update(_ context.Context, series *entity.InvoiceSeries) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.series[series.ID] = *series
	return nil
}

func (r *fakeSeriesRepo) Delete(_ context.Context, accountID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	series, ok := r.s.series[id]
	if !ok || series.AccountID != accountID {
		return domain.ErrNotFound
	}
	delete(r.s.series, id)
	return nil
}

func (r *fakeSeriesRepo) GetForAllocation(_ context.Context, seriesID string) (*entity.InvoiceSeries, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	series, ok := r.s.series[seriesID]
	if !ok {
		return nil, nil
	}
	return &series, nil
}

func (r *fakeSeriesRepo) UpdateCounter(_ context.Context, seriesID string, number int64, year int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	series, ok := r.s.series[seriesID]
	if !ok {
		return domain.ErrNotFound
	}
	series.CurrentNumber = number
	series.Year = year
	r.s.series[seriesID] = series
	return nil
}

func (r *fakeSeriesRepo) HighestIssuedNumber(_ context.Context, seriesID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var highest int64
	for _, inv := range r.s.invoices {
		if inv.SeriesID == seriesID && inv.Number > highest {
			highest = inv.Number
		}
	}
	return highest, nil
}

func (r *fakeSeriesRepo) IssuedCount(_ context.Context, seriesID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.issuedCountLocked(seriesID), nil
}

type fakeInvoiceRepo struct{ s *memStore }

func (r *fakeInvoiceRepo) Create(_ context.Context, inv *entity.Invoice, items []*entity.InvoiceItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.invoices[inv.ID] = *inv
	stored := make([]entity.InvoiceItem, 0, len(items))
	for _, item := range items {
		stored = append(stored, *item)
	}
	r.s.items[inv.ID] = stored
	return nil
}

func (r *fakeInvoiceRepo) GetByID(_ context.Context, accountID, id string) (*entity.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.invoices[id]
	if !ok || inv.AccountID != accountID {
		return nil, nil
	}
	return &inv, nil
}

func (r *fakeInvoiceRepo) GetForIssuance(_ context.Context, accountID, id string) (*entity.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.invoices[id]
	if !ok || inv.AccountID != accountID {
		return nil, nil
	}
	return &inv, nil
}

func (r *fakeInvoiceRepo) GetItems(_ context.Context, invoiceID string) ([]*entity.InvoiceItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored := r.s.items[invoiceID]
	out := make([]*entity.InvoiceItem, 0, len(stored))
	for i := range stored {
		item := stored[i]
		out = append(out, &item)
	}
	return out, nil
}

func (r *fakeInvoiceRepo) ListByAccount(_ context.Context, accountID string, limit, offset int) ([]*entity.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []entity.Invoice
	for _, inv := range r.s.invoices {
		if inv.AccountID == accountID {
			all = append(all, inv)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	out := make([]*entity.Invoice, 0, len(all))
	for i := range all {
		inv := all[i]
		out = append(out, &inv)
	}
	return out, nil
}

func (r *fakeInvoiceRepo) Update(_ context.Context, inv *entity.Invoice, items []*entity.InvoiceItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.invoices[inv.ID]
	if !ok || stored.AccountID != inv.AccountID {
		return domain.ErrNotFound
	}
	if !stored.UpdatedAt.Equal(inv.UpdatedAt) {
		return fmt.Errorf("factura modificada por otra escritura: %w", domain.ErrConflict)
	}
	inv.UpdatedAt = inv.UpdatedAt.Add(time.Millisecond)
	r.s.invoices[inv.ID] = *inv
	replaced := make([]entity.InvoiceItem, 0, len(items))
	for _, item := range items {
		replaced = append(replaced, *item)
	}
	r.s.items[inv.ID] = replaced
	return nil
}

func (r *fakeInvoiceRepo) UpdateStatus(_ context.Context, inv *entity.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.invoices[inv.ID]
	if !ok {
		return domain.ErrNotFound
	}
	stored.Status = inv.Status
	stored.IsLocked = inv.IsLocked
	r.s.invoices[inv.ID] = stored
	return nil
}

func (r *fakeInvoiceRepo) MarkIssued(_ context.Context, inv *entity.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.invoices[inv.ID]
	if !ok || (stored.Status != entity.StatusDraft && stored.Status != entity.StatusProforma) {
		return fmt.Errorf("la factura ya no es emitible: %w", domain.ErrInvalidState)
	}
	for id, other := range r.s.invoices {
		if id != inv.ID && other.SeriesID == inv.SeriesID && other.Number == inv.Number && other.Number > 0 {
			return fmt.Errorf("número %d ya asignado en la serie: %w", inv.Number, domain.ErrConflict)
		}
	}
	r.s.invoices[inv.ID] = *inv
	return nil
}

func (r *fakeInvoiceRepo) Delete(_ context.Context, accountID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.invoices[id]
	if !ok || inv.AccountID != accountID {
		return domain.ErrNotFound
	}
	delete(r.s.invoices, id)
	delete(r.s.items, id)
	return nil
}

func (r *fakeInvoiceRepo) ListRectifications(_ context.Context, accountID, rectifiesID string) ([]*entity.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Invoice
	for _, inv := range r.s.invoices {
		if inv.AccountID == accountID && inv.RectifiesID == rectifiesID {
			i := inv
			out = append(out, &i)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

type fakeComplianceRepo struct{ s *memStore }

func (r *fakeComplianceRepo) GetChainHead(_ context.Context, accountID string) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.chains[accountID]; !ok {
		r.s.chains[accountID] = ""
	}
	return r.s.chains[accountID], nil
}

func (r *fakeComplianceRepo) AdvanceChain(_ context.Context, accountID, hash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.chains[accountID] = hash
	return nil
}

func (r *fakeComplianceRepo) CreateRecord(_ context.Context, rec *entity.ComplianceRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failCreateRecord != nil {
		return r.s.failCreateRecord
	}
	if _, ok := r.s.records[rec.InvoiceID]; ok {
		return fmt.Errorf("la factura ya tiene registro de encadenamiento: %w", domain.ErrCompliance)
	}
	r.s.records[rec.InvoiceID] = *rec
	return nil
}

func (r *fakeComplianceRepo) GetByInvoiceID(_ context.Context, accountID, invoiceID string) (*entity.ComplianceRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.records[invoiceID]
	if !ok || rec.AccountID != accountID {
		return nil, nil
	}
	return &rec, nil
}

// fakeTxRunner serializa las transacciones con un mutex y restaura la
// instantánea previa si fn devuelve error (rollback completo).
type fakeTxRunner struct {
	s          *memStore
	txMu       sync.Mutex
	seriesRepo repository.SeriesRepository
	invRepo    repository.InvoiceRepository
	compRepo   repository.ComplianceRepository

	// beforeTx se ejecuta una sola vez al entrar en la siguiente transacción,
	// antes de fn: simula una escritura concurrente que se comprometió entre
	// las lecturas previas del caso de uso y la toma de los locks.
	beforeTx func()
}

func (tx *fakeTxRunner) RunIssuance(_ context.Context, fn func(
	seriesRepo repository.SeriesRepository,
	invoiceRepo repository.InvoiceRepository,
	complianceRepo repository.ComplianceRepository,
) error) error {
	tx.txMu.Lock()
	defer tx.txMu.Unlock()
	if hook := tx.beforeTx; hook != nil {
		tx.beforeTx = nil
		hook()
	}
	snap := tx.s.snapshot()
	if err := fn(tx.seriesRepo, tx.invRepo, tx.compRepo); err != nil {
		tx.s.restore(snap)
		return err
	}
	return nil
}

// ── Fixture ───────────────────────────────────────────────────────────────────

const testQRBaseURL = "https://www2.agenciatributaria.gob.es/wlpl/TIKE-CONT/ValidarQR/"

// newTestClock devuelve un reloj que arranca el 15-03-2025 y avanza un segundo
// por lectura: las fechas son deterministas pero nunca idénticas entre llamadas.
func newTestClock() appbilling.Clock {
	var mu sync.Mutex
	var ticks int64
	base := time.Date(2025, 3, 15, 10, 30, 0, 0, time.FixedZone("CET", 3600))
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		ticks++
		return base.Add(time.Duration(ticks) * time.Second)
	}
}

type fixture struct {
	store *memStore
	tx    *fakeTxRunner

	account entity.Account
	owner   entity.Owner
	series  entity.InvoiceSeries

	seriesUC     *appbilling.SeriesUseCase
	invoiceUC    *appbilling.InvoiceUseCase
	issueUC      *appbilling.IssueInvoiceUseCase
	rectifyUC    *appbilling.RectifyInvoiceUseCase
	complianceUC *appbilling.ComplianceUseCase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	accountRepo := &fakeAccountRepo{s: store}
	ownerRepo := &fakeOwnerRepo{s: store}
	seriesRepo := &fakeSeriesRepo{s: store}
	invoiceRepo := &fakeInvoiceRepo{s: store}
	complianceRepo := &fakeComplianceRepo{s: store}
	txRunner := &fakeTxRunner{s: store, seriesRepo: seriesRepo, invRepo: invoiceRepo, compRepo: complianceRepo}
	clock := newTestClock()

	fx := &fixture{
		store: store,
		tx:    txRunner,
		account: entity.Account{
			ID:    "acc-1",
			Name:  "Itineramio Gestión SL",
			TaxID: "B87654321",
		},
		owner: entity.Owner{
			ID:                   "own-1",
			AccountID:            "acc-1",
			Name:                 "María García",
			TaxID:                "12345678Z",
			Type:                 entity.OwnerTypeIndividual,
			DefaultVatRate:       decimal.NewFromInt(21),
			DefaultRetentionRate: decimal.Decimal{},
		},
		series: entity.InvoiceSeries{
			ID:            "ser-1",
			AccountID:     "acc-1",
			Name:          "Facturas",
			Prefix:        "F",
			Year:          2025,
			Type:          entity.SeriesTypeStandard,
			CurrentNumber: 0,
			ResetYearly:   true,
			IsDefault:     true,
			IsActive:      true,
		},
	}
	store.accounts[fx.account.ID] = fx.account
	store.owners[fx.owner.ID] = fx.owner
	store.series[fx.series.ID] = fx.series

	fx.seriesUC = appbilling.NewSeriesUseCase(seriesRepo, txRunner, clock)
	fx.invoiceUC = appbilling.NewInvoiceUseCase(invoiceRepo, seriesRepo, ownerRepo, complianceRepo, clock)
	fx.issueUC = appbilling.NewIssueInvoiceUseCase(
		txRunner, invoiceRepo, seriesRepo, ownerRepo, accountRepo,
		appbilling.VerifactuConfig{QRBaseURL: testQRBaseURL}, clock,
	)
	fx.rectifyUC = appbilling.NewRectifyInvoiceUseCase(invoiceRepo, ownerRepo, fx.seriesUC, fx.issueUC, clock)
	fx.complianceUC = appbilling.NewComplianceUseCase(invoiceRepo, ownerRepo, accountRepo, complianceRepo)
	return fx
}

func decPtr(f float64) *decimal.Decimal {
	d := decimal.NewFromFloat(f)
	return &d
}

func lineInput(concept string, qty, price float64) dto.InvoiceItemInput {
	return dto.InvoiceItemInput{
		Concept:   concept,
		Quantity:  decimal.NewFromFloat(qty),
		UnitPrice: decimal.NewFromFloat(price),
	}
}

// draft crea una factura en borrador contra la serie y propietario del fixture.
func (fx *fixture) draft(t *testing.T, items ...dto.InvoiceItemInput) *dto.InvoiceResponse {
	t.Helper()
	resp, err := fx.invoiceUC.Create(context.Background(), fx.account.ID, dto.CreateInvoiceRequest{
		SeriesID: fx.series.ID,
		OwnerID:  fx.owner.ID,
		Items:    items,
	})
	require.NoError(t, err)
	return resp
}

// storedSeries lee la serie directamente del almacén.
func (fx *fixture) storedSeries(id string) entity.InvoiceSeries {
	fx.store.mu.Lock()
	defer fx.store.mu.Unlock()
	return fx.store.series[id]
}

// storedInvoice lee la factura directamente del almacén.
func (fx *fixture) storedInvoice(id string) entity.Invoice {
	fx.store.mu.Lock()
	defer fx.store.mu.Unlock()
	return fx.store.invoices[id]
}
