package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/itineramio/facturas-api/internal/application/dto"
	"github.com/itineramio/facturas-api/internal/domain"
	domainbilling "github.com/itineramio/facturas-api/internal/domain/billing"
	"github.com/itineramio/facturas-api/internal/domain/entity"
	"github.com/itineramio/facturas-api/internal/domain/repository"
)

// Prefijo de la serie rectificativa creada de forma perezosa si la cuenta no tiene una.
const defaultRectifyingPrefix = "R"

// SeriesUseCase gestiona el registro de series de numeración: alta, serie por
// defecto, ajuste del contador, activación y borrado.
type SeriesUseCase struct {
	seriesRepo repository.SeriesRepository
	txRunner   IssuanceTxRunner
	now        Clock
}

// NewSeriesUseCase construye el caso de uso.
func NewSeriesUseCase(seriesRepo repository.SeriesRepository, txRunner IssuanceTxRunner, now Clock) *SeriesUseCase {
	if now == nil {
		now = time.Now
	}
	return &SeriesUseCase{seriesRepo: seriesRepo, txRunner: txRunner, now: now}
}

// Create da de alta una serie. Valida prefijo (1–6 alfanumérico) y unicidad del
// prefijo entre las series activas del mismo tipo. La serie arranca en 0 con el
// año natural actual. Si IsDefault, desmarca la anterior en la misma transacción.
func (uc *SeriesUseCase) Create(ctx context.Context, accountID string, in dto.CreateSeriesRequest) (*dto.SeriesResponse, error) {
	prefix := strings.TrimSpace(in.Prefix)
	if err := domainbilling.ValidatePrefix(prefix); err != nil {
		return nil, err
	}
	seriesType := in.Type
	if seriesType == "" {
		seriesType = entity.SeriesTypeStandard
	}
	if seriesType != entity.SeriesTypeStandard && seriesType != entity.SeriesTypeRectifying {
		return nil, fmt.Errorf("tipo de serie %q desconocido: %w", in.Type, domain.ErrValidation)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = prefix
	}

	existing, err := uc.seriesRepo.GetActiveByPrefix(ctx, accountID, seriesType, prefix)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("ya existe una serie activa %s con prefijo %q: %w", seriesType, prefix, domain.ErrValidation)
	}

	s := &entity.InvoiceSeries{
		ID:            uuid.New().String(),
		AccountID:     accountID,
		Name:          name,
		Prefix:        prefix,
		Year:          uc.now().Year(),
		Type:          seriesType,
		CurrentNumber: 0,
		ResetYearly:   in.ResetYearly,
		IsDefault:     in.IsDefault,
		IsActive:      true,
		Editable:      true,
	}

	if in.IsDefault {
		// Alta + desmarcado del default anterior en una sola transacción:
		// nunca debe haber dos series por defecto del mismo tipo.
		err = uc.txRunner.RunIssuance(ctx, func(seriesRepo repository.SeriesRepository, _ repository.InvoiceRepository, _ repository.ComplianceRepository) error {
			if err := seriesRepo.ClearDefault(ctx, accountID, seriesType); err != nil {
				return err
			}
			return seriesRepo.Create(ctx, s)
		})
	} else {
		err = uc.seriesRepo.Create(ctx, s)
	}
	if err != nil {
		return nil, err
	}
	return toSeriesResponse(s), nil
}

// SetDefault marca la serie como serie por defecto de su tipo, desmarcando la
// anterior en la misma transacción.
func (uc *SeriesUseCase) SetDefault(ctx context.Context, accountID, id string) (*dto.SeriesResponse, error) {
	s, err := uc.seriesRepo.GetByID(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, domain.ErrNotFound
	}
	if !s.IsActive {
		return nil, fmt.Errorf("una serie desactivada no puede ser la serie por defecto: %w", domain.ErrInvalidState)
	}
	err = uc.txRunner.RunIssuance(ctx, func(seriesRepo repository.SeriesRepository, _ repository.InvoiceRepository, _ repository.ComplianceRepository) error {
		if err := seriesRepo.ClearDefault(ctx, accountID, s.Type); err != nil {
			return err
		}
		return seriesRepo.SetDefault(ctx, accountID, id)
	})
	if err != nil {
		return nil, err
	}
	s.IsDefault = true
	return toSeriesResponse(s), nil
}

// SetCurrentNumber ajusta el contador de la serie. Mover el contador hacia
// delante siempre está permitido; bajarlo por debajo del número más alto ya
// emitido crearía un duplicado futuro y se rechaza. Comprobación y escritura
// van juntas en una transacción con la fila de la serie bloqueada: una emisión
// que se colara entre ambas dejaría el contador por debajo de lo recién emitido.
func (uc *SeriesUseCase) SetCurrentNumber(ctx context.Context, accountID, id string, n int64) (*dto.SeriesResponse, error) {
	if n < 0 {
		return nil, fmt.Errorf("el contador no puede ser negativo: %w", domain.ErrValidation)
	}
	s, err := uc.seriesRepo.GetByID(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, domain.ErrNotFound
	}
	err = uc.txRunner.RunIssuance(ctx, func(seriesRepo repository.SeriesRepository, _ repository.InvoiceRepository, _ repository.ComplianceRepository) error {
		locked, err := seriesRepo.GetForAllocation(ctx, id)
		if err != nil {
			return err
		}
		if locked == nil {
			return domain.ErrNotFound
		}
		highest, err := seriesRepo.HighestIssuedNumber(ctx, id)
		if err != nil {
			return err
		}
		if n < highest {
			return fmt.Errorf("contador %d por debajo del último número emitido (%d): %w", n, highest, domain.ErrInvalidState)
		}
		return seriesRepo.UpdateCounter(ctx, id, n, locked.Year)
	})
	if err != nil {
		return nil, err
	}
	s.CurrentNumber = n
	return toSeriesResponse(s), nil
}

// SetActive activa o desactiva la serie. Una serie desactivada no se puede
// seleccionar para nuevas emisiones pero sigue siendo válida para consultas
// históricas.
func (uc *SeriesUseCase) SetActive(ctx context.Context, accountID, id string, active bool) (*dto.SeriesResponse, error) {
	s, err := uc.seriesRepo.GetByID(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, domain.ErrNotFound
	}
	s.IsActive = active
	if !active {
		s.IsDefault = false
	}
	if err := uc.seriesRepo.Update(ctx, s); err != nil {
		return nil, err
	}
	return toSeriesResponse(s), nil
}

// Delete elimina una serie solo si nunca se ha emitido una factura contra ella.
func (uc *SeriesUseCase) Delete(ctx context.Context, accountID, id string) error {
	s, err := uc.seriesRepo.GetByID(ctx, accountID, id)
	if err != nil {
		return err
	}
	if s == nil {
		return domain.ErrNotFound
	}
	issued, err := uc.seriesRepo.IssuedCount(ctx, id)
	if err != nil {
		return err
	}
	if issued > 0 {
		return fmt.Errorf("la serie tiene %d facturas emitidas y no puede eliminarse: %w", issued, domain.ErrInvalidState)
	}
	return uc.seriesRepo.Delete(ctx, accountID, id)
}

// List devuelve las series de la cuenta (activas e inactivas).
func (uc *SeriesUseCase) List(ctx context.Context, accountID string) ([]*dto.SeriesResponse, error) {
	list, err := uc.seriesRepo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.SeriesResponse, 0, len(list))
	for _, s := range list {
		out = append(out, toSeriesResponse(s))
	}
	return out, nil
}

// GetOrCreateDefaultRectifying resuelve la serie rectificativa por defecto de
// la cuenta, creándola de forma perezosa si no existe (prefijo "R", reset anual).
func (uc *SeriesUseCase) GetOrCreateDefaultRectifying(ctx context.Context, accountID string) (*entity.InvoiceSeries, error) {
	s, err := uc.seriesRepo.GetDefault(ctx, accountID, entity.SeriesTypeRectifying)
	if err != nil {
		return nil, err
	}
	if s != nil {
		return s, nil
	}
	// Si ya hay una serie rectificativa activa con el prefijo estándar, se promueve a default.
	s, err = uc.seriesRepo.GetActiveByPrefix(ctx, accountID, entity.SeriesTypeRectifying, defaultRectifyingPrefix)
	if err != nil {
		return nil, err
	}
	if s != nil {
		if _, err := uc.SetDefault(ctx, accountID, s.ID); err != nil {
			return nil, err
		}
		s.IsDefault = true
		return s, nil
	}
	created, err := uc.Create(ctx, accountID, dto.CreateSeriesRequest{
		Name:        "Rectificativas",
		Prefix:      defaultRectifyingPrefix,
		Type:        entity.SeriesTypeRectifying,
		ResetYearly: true,
		IsDefault:   true,
	})
	if err != nil {
		return nil, err
	}
	return uc.seriesRepo.GetByID(ctx, accountID, created.ID)
}

func toSeriesResponse(s *entity.InvoiceSeries) *dto.SeriesResponse {
	return &dto.SeriesResponse{
		ID:            s.ID,
		Name:          s.Name,
		Prefix:        s.Prefix,
		Year:          s.Year,
		Type:          s.Type,
		CurrentNumber: s.CurrentNumber,
		ResetYearly:   s.ResetYearly,
		IsDefault:     s.IsDefault,
		IsActive:      s.IsActive,
		Editable:      s.Editable,
	}
}
