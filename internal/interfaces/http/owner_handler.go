package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/itineramio/facturas-api/internal/application/billing"
	"github.com/itineramio/facturas-api/internal/application/dto"
	"github.com/itineramio/facturas-api/internal/domain"
)

// OwnerHandler maneja los propietarios facturados (protegido).
type OwnerHandler struct {
	uc *billing.OwnerUseCase
}

// NewOwnerHandler construye el handler.
func NewOwnerHandler(uc *billing.OwnerUseCase) *OwnerHandler {
	return &OwnerHandler{uc: uc}
}

// Create da de alta un propietario.
// POST /api/owners
func (h *OwnerHandler) Create(c *fiber.Ctx) error {
	var in dto.CreateOwnerRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	owner, err := h.uc.Create(c.Context(), GetAccountID(c), in)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(owner)
}

// List devuelve los propietarios de la cuenta.
// GET /api/owners
func (h *OwnerHandler) List(c *fiber.Ctx) error {
	owners, err := h.uc.List(c.Context(), GetAccountID(c))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(owners)
}

// GetByID devuelve un propietario.
// GET /api/owners/:id
func (h *OwnerHandler) GetByID(c *fiber.Ctx) error {
	owner, err := h.uc.Get(c.Context(), GetAccountID(c), c.Params("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "propietario no encontrado"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(owner)
}
