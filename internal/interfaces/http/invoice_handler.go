package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/itineramio/facturas-api/internal/application/billing"
	"github.com/itineramio/facturas-api/internal/application/dto"
	"github.com/itineramio/facturas-api/internal/domain"
	"github.com/itineramio/facturas-api/internal/infrastructure/verifactu"
)

// InvoiceHandler maneja el ciclo de vida de facturas (protegido).
type InvoiceHandler struct {
	invoiceUC    *billing.InvoiceUseCase
	issueUC      *billing.IssueInvoiceUseCase
	rectifyUC    *billing.RectifyInvoiceUseCase
	complianceUC *billing.ComplianceUseCase
}

// NewInvoiceHandler construye el handler.
func NewInvoiceHandler(
	invoiceUC *billing.InvoiceUseCase,
	issueUC *billing.IssueInvoiceUseCase,
	rectifyUC *billing.RectifyInvoiceUseCase,
	complianceUC *billing.ComplianceUseCase,
) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceUC:    invoiceUC,
		issueUC:      issueUC,
		rectifyUC:    rectifyUC,
		complianceUC: complianceUC,
	}
}

// Create crea una factura en borrador (o proforma).
// POST /api/invoices
func (h *InvoiceHandler) Create(c *fiber.Ctx) error {
	var in dto.CreateInvoiceRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	inv, err := h.invoiceUC.Create(c.Context(), GetAccountID(c), in)
	if err != nil {
		return invoiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(inv)
}

// List devuelve las facturas de la cuenta paginadas.
// GET /api/invoices
func (h *InvoiceHandler) List(c *fiber.Ctx) error {
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "paginación inválida"})
	}
	invoices, err := h.invoiceUC.List(c.Context(), GetAccountID(c), page)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(invoices)
}

// GetByID devuelve una factura con líneas y, si está emitida, su registro VeriFactu.
// GET /api/invoices/:id
func (h *InvoiceHandler) GetByID(c *fiber.Ctx) error {
	inv, err := h.invoiceUC.Get(c.Context(), GetAccountID(c), c.Params("id"))
	if err != nil {
		return invoiceError(c, err)
	}
	return c.JSON(inv)
}

// Edit modifica una factura aún mutable.
// PUT /api/invoices/:id
func (h *InvoiceHandler) Edit(c *fiber.Ctx) error {
	var in dto.EditInvoiceRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	inv, err := h.invoiceUC.Edit(c.Context(), GetAccountID(c), c.Params("id"), in)
	if err != nil {
		return invoiceError(c, err)
	}
	return c.JSON(inv)
}

// Delete elimina una factura no emitida.
// DELETE /api/invoices/:id
func (h *InvoiceHandler) Delete(c *fiber.Ctx) error {
	if err := h.invoiceUC.Delete(c.Context(), GetAccountID(c), c.Params("id")); err != nil {
		return invoiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Preview previsualiza la emisión sin consumir número.
// GET /api/invoices/:id/issue
func (h *InvoiceHandler) Preview(c *fiber.Ctx) error {
	preview, err := h.issueUC.Preview(c.Context(), GetAccountID(c), c.Params("id"))
	if err != nil {
		return invoiceError(c, err)
	}
	return c.JSON(preview)
}

// Issue emite la factura: número correlativo + registro VeriFactu, atómico.
// POST /api/invoices/:id/issue
func (h *InvoiceHandler) Issue(c *fiber.Ctx) error {
	inv, err := h.issueUC.Issue(c.Context(), GetAccountID(c), c.Params("id"))
	if err != nil {
		return invoiceError(c, err)
	}
	return c.JSON(inv)
}

// MarkSent transiciona ISSUED -> SENT.
// POST /api/invoices/:id/sent
func (h *InvoiceHandler) MarkSent(c *fiber.Ctx) error {
	inv, err := h.invoiceUC.MarkSent(c.Context(), GetAccountID(c), c.Params("id"))
	if err != nil {
		return invoiceError(c, err)
	}
	return c.JSON(inv)
}

// MarkPaid transiciona a PAID.
// POST /api/invoices/:id/paid
func (h *InvoiceHandler) MarkPaid(c *fiber.Ctx) error {
	inv, err := h.invoiceUC.MarkPaid(c.Context(), GetAccountID(c), c.Params("id"))
	if err != nil {
		return invoiceError(c, err)
	}
	return c.JSON(inv)
}

// MarkOverdue transiciona a OVERDUE.
// POST /api/invoices/:id/overdue
func (h *InvoiceHandler) MarkOverdue(c *fiber.Ctx) error {
	inv, err := h.invoiceUC.MarkOverdue(c.Context(), GetAccountID(c), c.Params("id"))
	if err != nil {
		return invoiceError(c, err)
	}
	return c.JSON(inv)
}

// Rectify crea y emite una rectificativa contra una factura emitida.
// POST /api/invoices/:id/rectify
func (h *InvoiceHandler) Rectify(c *fiber.Ctx) error {
	var in dto.RectifyInvoiceRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	inv, err := h.rectifyUC.CreateRectifying(c.Context(), GetAccountID(c), c.Params("id"), in)
	if err != nil {
		return invoiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(inv)
}

// Rectifications lista las rectificativas de una factura.
// GET /api/invoices/:id/rectifications
func (h *InvoiceHandler) Rectifications(c *fiber.Ctx) error {
	list, err := h.rectifyUC.ListRectifications(c.Context(), GetAccountID(c), c.Params("id"))
	if err != nil {
		return invoiceError(c, err)
	}
	return c.JSON(list)
}

// QRCode devuelve el QR tributario de la factura emitida en PNG.
// GET /api/invoices/:id/qr.png
func (h *InvoiceHandler) QRCode(c *fiber.Ctx) error {
	payload, err := h.complianceUC.QRPayload(c.Context(), GetAccountID(c), c.Params("id"))
	if err != nil {
		return invoiceError(c, err)
	}
	png, err := verifactu.QRCodePNG(payload)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(png)
}

// VerifactuXML devuelve el XML RegistroAlta de la factura emitida.
// GET /api/invoices/:id/verifactu.xml
func (h *InvoiceHandler) VerifactuXML(c *fiber.Ctx) error {
	export, err := h.complianceUC.RegistroAlta(c.Context(), GetAccountID(c), c.Params("id"))
	if err != nil {
		return invoiceError(c, err)
	}
	registro, err := toRegistroAlta(export)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	xml, err := verifactu.BuildRegistroAlta(registro)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationXMLCharsetUTF8)
	return c.Send(xml)
}

// toRegistroAlta mapea el export de la aplicación al documento AEAT.
func toRegistroAlta(e *dto.RegistroAltaExport) (verifactu.RegistroAlta, error) {
	desglose := make([]verifactu.DesgloseDetalle, 0, len(e.Desglose))
	for _, d := range e.Desglose {
		desglose = append(desglose, verifactu.DesgloseDetalle{
			Impuesto:              "01", // IVA
			ClaveRegimen:          "01", // régimen general
			CalificacionOperacion: "S1", // sujeta, sin inversión del sujeto pasivo
			TipoImpositivo:        d.TipoImpositivo,
			BaseImponible:         d.BaseImponible,
			CuotaRepercutida:      d.CuotaRepercutida,
		})
	}
	registro := verifactu.RegistroAlta{
		NIFEmisor:                e.NIFEmisor,
		NombreRazonEmisor:        e.NombreEmisor,
		NIFReceptor:              e.NIFReceptor,
		NombreRazonReceptor:      e.NombreReceptor,
		NumSerieFactura:          e.NumSerieFactura,
		FechaExpedicion:          e.FechaExpedicion,
		TipoFactura:              e.TipoFactura,
		DescripcionOperacion:     e.Descripcion,
		Desglose:                 desglose,
		CuotaTotal:               e.CuotaTotal,
		ImporteTotal:             e.ImporteTotal,
		Huella:                   e.Huella,
		HuellaAnterior:           e.HuellaAnterior,
		FechaHoraHusoGenRegistro: e.FechaHoraGeneracion,
		Software:                 verifactu.DefaultSoftware(),
	}
	if e.Rectifying != nil {
		tipo, err := verifactu.TipoRectificativa(e.Rectifying.Type)
		if err != nil {
			return verifactu.RegistroAlta{}, err
		}
		registro.Rectificativa = &verifactu.Rectificativa{
			Tipo: tipo,
			Rectificadas: []verifactu.FacturaRectificada{{
				NumSerieFactura: e.Rectifying.NumSerieFactura,
				FechaExpedicion: e.Rectifying.FechaExpedicion,
			}},
		}
	}
	return registro, nil
}

func invoiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: err.Error()})
	case errors.Is(err, domain.ErrInvalidState):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "INVALID_STATE", Message: err.Error()})
	case errors.Is(err, domain.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CONFLICT", Message: err.Error()})
	case errors.Is(err, domain.ErrCompliance):
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "COMPLIANCE", Message: err.Error()})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
}
