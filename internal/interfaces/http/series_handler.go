package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/itineramio/facturas-api/internal/application/billing"
	"github.com/itineramio/facturas-api/internal/application/dto"
	"github.com/itineramio/facturas-api/internal/domain"
)

// SeriesHandler maneja las series de numeración (protegido).
type SeriesHandler struct {
	uc *billing.SeriesUseCase
}

// NewSeriesHandler construye el handler.
func NewSeriesHandler(uc *billing.SeriesUseCase) *SeriesHandler {
	return &SeriesHandler{uc: uc}
}

// Create crea una serie de numeración.
// POST /api/series
func (h *SeriesHandler) Create(c *fiber.Ctx) error {
	accountID := GetAccountID(c)
	var in dto.CreateSeriesRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	series, err := h.uc.Create(c.Context(), accountID, in)
	if err != nil {
		return seriesError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(series)
}

// List devuelve las series de la cuenta.
// GET /api/series
func (h *SeriesHandler) List(c *fiber.Ctx) error {
	series, err := h.uc.List(c.Context(), GetAccountID(c))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(series)
}

// SetDefault marca la serie como serie por defecto de su tipo.
// PUT /api/series/:id/default
func (h *SeriesHandler) SetDefault(c *fiber.Ctx) error {
	series, err := h.uc.SetDefault(c.Context(), GetAccountID(c), c.Params("id"))
	if err != nil {
		return seriesError(c, err)
	}
	return c.JSON(series)
}

// SetNumber ajusta manualmente el contador de la serie.
// PUT /api/series/:id/number
func (h *SeriesHandler) SetNumber(c *fiber.Ctx) error {
	var in dto.SetSeriesNumberRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	series, err := h.uc.SetCurrentNumber(c.Context(), GetAccountID(c), c.Params("id"), in.CurrentNumber)
	if err != nil {
		return seriesError(c, err)
	}
	return c.JSON(series)
}

// SetActive activa o desactiva la serie.
// PUT /api/series/:id/active
func (h *SeriesHandler) SetActive(c *fiber.Ctx) error {
	var in dto.SetSeriesActiveRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	series, err := h.uc.SetActive(c.Context(), GetAccountID(c), c.Params("id"), in.IsActive)
	if err != nil {
		return seriesError(c, err)
	}
	return c.JSON(series)
}

// Delete elimina una serie sin emisiones.
// DELETE /api/series/:id
func (h *SeriesHandler) Delete(c *fiber.Ctx) error {
	if err := h.uc.Delete(c.Context(), GetAccountID(c), c.Params("id")); err != nil {
		return seriesError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func seriesError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "serie no encontrada"})
	case errors.Is(err, domain.ErrInvalidState):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "INVALID_STATE", Message: err.Error()})
	case errors.Is(err, domain.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CONFLICT", Message: err.Error()})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
}
