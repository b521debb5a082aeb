package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/itineramio/facturas-api/internal/application/dto"
	"github.com/itineramio/facturas-api/internal/domain"
	domainbilling "github.com/itineramio/facturas-api/internal/domain/billing"
	"github.com/itineramio/facturas-api/internal/domain/entity"
	"github.com/itineramio/facturas-api/internal/domain/repository"
	"github.com/itineramio/facturas-api/internal/domain/verifactu"
)

// Parámetros del reintento ante colisiones de asignación. La transacción es
// corta (lock de fila + dos escrituras), así que los intervalos son pequeños.
const (
	issueMaxRetries      = 5
	issueInitialInterval = 10 * time.Millisecond
	issueMaxInterval     = 250 * time.Millisecond
)

// VerifactuConfig parámetros del encadenamiento para el caso de uso.
type VerifactuConfig struct {
	QRBaseURL string // URL de cotejo de la sede AEAT que se embebe en el QR
}

// IssueInvoiceUseCase ejecuta la transición de emisión: asigna el siguiente
// número correlativo de la serie y el registro de encadenamiento VeriFactu en
// una única transacción. O todo avanza junto (número + cadena + estado) o nada:
// nunca queda una factura numerada sin encadenar ni al revés.
type IssueInvoiceUseCase struct {
	txRunner    IssuanceTxRunner
	invoiceRepo repository.InvoiceRepository
	seriesRepo  repository.SeriesRepository
	ownerRepo   repository.OwnerRepository
	accountRepo repository.AccountRepository
	huella      *verifactu.Calculator
	cfg         VerifactuConfig
	now         Clock
}

// NewIssueInvoiceUseCase construye el caso de uso.
func NewIssueInvoiceUseCase(
	txRunner IssuanceTxRunner,
	invoiceRepo repository.InvoiceRepository,
	seriesRepo repository.SeriesRepository,
	ownerRepo repository.OwnerRepository,
	accountRepo repository.AccountRepository,
	cfg VerifactuConfig,
	now Clock,
) *IssueInvoiceUseCase {
	if now == nil {
		now = time.Now
	}
	return &IssueInvoiceUseCase{
		txRunner:    txRunner,
		invoiceRepo: invoiceRepo,
		seriesRepo:  seriesRepo,
		ownerRepo:   ownerRepo,
		accountRepo: accountRepo,
		huella:      verifactu.NewCalculator(),
		cfg:         cfg,
		now:         now,
	}
}

// Preview devuelve el número que se asignaría al emitir, sin consumirlo.
// Tiene en cuenta el reset anual: si la serie quedó en un año anterior y tiene
// ResetYearly, el siguiente número sería el 1 del año en curso.
func (uc *IssueInvoiceUseCase) Preview(ctx context.Context, accountID, invoiceID string) (*dto.IssuePreviewResponse, error) {
	inv, err := uc.invoiceRepo.GetByID(ctx, accountID, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.ErrNotFound
	}
	if !domainbilling.Mutable(inv) {
		return nil, fmt.Errorf("la factura ya ha sido emitida: %w", domain.ErrInvalidState)
	}
	series, err := uc.seriesRepo.GetByID(ctx, accountID, inv.SeriesID)
	if err != nil {
		return nil, err
	}
	if series == nil {
		return nil, fmt.Errorf("serie: %w", domain.ErrNotFound)
	}
	year := series.Year
	next := series.CurrentNumber + 1
	if series.ResetYearly && uc.now().Year() != series.Year {
		year = uc.now().Year()
		next = 1
	}
	return &dto.IssuePreviewResponse{
		CanIssue:     true,
		NextNumber:   next,
		FullNumber:   domainbilling.FormatFullNumber(series.Prefix, year, next),
		SeriesName:   series.Name,
		SeriesPrefix: series.Prefix,
		SeriesYear:   year,
	}, nil
}

// Issue emite la factura. Precondiciones: estado DRAFT/PROFORMA, al menos una
// línea y total positivo. Las colisiones de concurrencia (ErrConflict) se
// reintentan con backoff exponencial acotado; los errores de validación,
// estado o cumplimiento se devuelven sin reintentar.
func (uc *IssueInvoiceUseCase) Issue(ctx context.Context, accountID, invoiceID string) (*dto.InvoiceResponse, error) {
	inv, err := uc.invoiceRepo.GetByID(ctx, accountID, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.ErrNotFound
	}
	if !domainbilling.Mutable(inv) {
		return nil, fmt.Errorf("la factura %s ya ha sido emitida: %w", inv.FullNumber, domain.ErrInvalidState)
	}
	items, err := uc.invoiceRepo.GetItems(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("la factura debe tener al menos una línea: %w", domain.ErrValidation)
	}
	if !inv.Total.IsPositive() {
		return nil, fmt.Errorf("el total de la factura debe ser positivo: %w", domain.ErrValidation)
	}
	owner, err := uc.ownerRepo.GetByID(ctx, inv.OwnerID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, fmt.Errorf("propietario: %w", domain.ErrNotFound)
	}
	account, err := uc.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("cuenta emisora: %w", domain.ErrNotFound)
	}

	operation := func() error {
		err := uc.issueTx(ctx, inv, owner, account)
		if err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return err // transitorio: reintentable
			}
			return backoff.Permanent(err)
		}
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = issueInitialInterval
	bo.MaxInterval = issueMaxInterval
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, issueMaxRetries), ctx)); err != nil {
		return nil, err
	}
	return toInvoiceResponse(inv, items, nil), nil
}

// issueTx ejecuta un intento de emisión dentro de una transacción.
// Orden: releer con lock y revalidar estado → bloquear serie y asignar número →
// bloquear puntero de cadena y encadenar → marcar emitida. Cualquier error
// revierte la transacción completa: el incremento del contador incluido.
// Trabaja sobre la relectura (current) y solo vuelca el efecto en inv si la
// función de transacción termina sin error, para que un intento revertido no
// deje mutaciones en memoria de cara al reintento.
func (uc *IssueInvoiceUseCase) issueTx(ctx context.Context, inv *entity.Invoice, owner *entity.Owner, account *entity.Account) error {
	return uc.txRunner.RunIssuance(ctx, func(
		seriesRepo repository.SeriesRepository,
		invoiceRepo repository.InvoiceRepository,
		complianceRepo repository.ComplianceRepository,
	) error {
		// Revalidación dentro de la tx sobre la fila bloqueada: otra petición
		// concurrente pudo emitirla entre la lectura previa y este lock, y una
		// lectura sin bloquear vería una instantánea anterior a su commit.
		current, err := invoiceRepo.GetForIssuance(ctx, inv.AccountID, inv.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if !domainbilling.Mutable(current) {
			return fmt.Errorf("la factura ya ha sido emitida: %w", domain.ErrInvalidState)
		}

		// 1) Asignación del número: lock de la fila de la serie, reset anual si
		// procede, incremento y escritura. El número nunca se reutiliza ni se
		// salta: si algo posterior falla, el rollback lo devuelve.
		series, err := seriesRepo.GetForAllocation(ctx, current.SeriesID)
		if err != nil {
			return err
		}
		if series == nil {
			return fmt.Errorf("serie: %w", domain.ErrNotFound)
		}
		if !series.IsActive {
			return fmt.Errorf("la serie %q está desactivada: %w", series.Prefix, domain.ErrInvalidState)
		}
		year := series.Year
		number := series.CurrentNumber + 1
		if series.ResetYearly && uc.now().Year() != series.Year {
			year = uc.now().Year()
			number = 1
		}
		if err := seriesRepo.UpdateCounter(ctx, series.ID, number, year); err != nil {
			return err
		}

		now := uc.now()
		current.Number = number
		current.FullNumber = domainbilling.FormatFullNumber(series.Prefix, year, number)
		current.IssueDate = now
		current.IssuedAt = now
		if err := domainbilling.Transition(current, entity.StatusIssued); err != nil {
			return err
		}

		// 2) Encadenamiento VeriFactu: el puntero de cadena es un recurso único
		// por cuenta; su lock serializa a los emisores concurrentes. Cuentas
		// exentas asignan número con normalidad pero no generan registro.
		if !account.VerifactuExempt {
			prev, err := complianceRepo.GetChainHead(ctx, account.ID)
			if err != nil {
				return err
			}
			tipoFactura := verifactu.TipoFacturaCompleta
			if current.IsRectifying {
				tipoFactura = verifactu.TipoFacturaRectificativa
			}
			params := &verifactu.HuellaParams{
				IDEmisorFactura:          account.TaxID,
				IDDestinatario:           owner.TaxID,
				NumSerieFactura:          current.FullNumber,
				FechaExpedicionFactura:   verifactu.FormatFecha(current.IssueDate),
				TipoFactura:              tipoFactura,
				CuotaTotal:               current.TotalVat,
				ImporteTotal:             current.Total,
				Huella:                   prev,
				FechaHoraHusoGenRegistro: verifactu.FormatFechaHora(now),
			}
			hash, err := uc.huella.Calculate(params)
			if err != nil {
				return fmt.Errorf("calcular huella de %s: %v: %w", current.FullNumber, err, domain.ErrCompliance)
			}
			rec := &entity.ComplianceRecord{
				ID:           uuid.New().String(),
				AccountID:    account.ID,
				InvoiceID:    current.ID,
				Hash:         hash,
				PreviousHash: prev,
				QRPayload: verifactu.QRPayload(
					uc.cfg.QRBaseURL, account.TaxID, current.FullNumber,
					verifactu.FormatFecha(current.IssueDate), current.Total,
				),
				ComputedAt: now,
			}
			if err := complianceRepo.CreateRecord(ctx, rec); err != nil {
				return err
			}
			if err := complianceRepo.AdvanceChain(ctx, account.ID, hash); err != nil {
				return err
			}
		}

		// 3) Efecto sobre la factura: número, bloqueo y fechas.
		if err := invoiceRepo.MarkIssued(ctx, current); err != nil {
			return err
		}
		*inv = *current
		return nil
	})
}
