package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/itineramio/facturas-api/internal/application/auth"
	"github.com/itineramio/facturas-api/internal/application/billing"
	"github.com/itineramio/facturas-api/internal/domain/entity"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	AuthUC       *auth.AuthUseCase
	SeriesUC     *billing.SeriesUseCase
	InvoiceUC    *billing.InvoiceUseCase
	IssueUC      *billing.IssueInvoiceUseCase
	RectifyUC    *billing.RectifyInvoiceUseCase
	ComplianceUC *billing.ComplianceUseCase
	OwnerUC      *billing.OwnerUseCase
	JWTSecret    string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Auth (público)
	authGroup := api.Group("/auth")
	authHandler := NewAuthHandler(deps.AuthUC)
	authGroup.Post("/register", authHandler.Register)
	authGroup.Post("/login", authHandler.Login)

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	// Series de numeración (protegido; configuración solo admin)
	series := protected.Group("/series")
	seriesHandler := NewSeriesHandler(deps.SeriesUC)
	series.Get("/", seriesHandler.List)
	series.Post("/", RequireRole(entity.RoleAdmin), seriesHandler.Create)
	series.Put("/:id/default", RequireRole(entity.RoleAdmin), seriesHandler.SetDefault)
	series.Put("/:id/number", RequireRole(entity.RoleAdmin), seriesHandler.SetNumber)
	series.Put("/:id/active", RequireRole(entity.RoleAdmin), seriesHandler.SetActive)
	series.Delete("/:id", RequireRole(entity.RoleAdmin), seriesHandler.Delete)

	// Propietarios (protegido)
	owners := protected.Group("/owners")
	ownerHandler := NewOwnerHandler(deps.OwnerUC)
	owners.Post("/", ownerHandler.Create)
	owners.Get("/", ownerHandler.List)
	owners.Get("/:id", ownerHandler.GetByID)

	// Facturas (protegido)
	invoices := protected.Group("/invoices")
	invoiceHandler := NewInvoiceHandler(deps.InvoiceUC, deps.IssueUC, deps.RectifyUC, deps.ComplianceUC)
	invoices.Post("/", invoiceHandler.Create)
	invoices.Get("/", invoiceHandler.List)
	invoices.Get("/:id", invoiceHandler.GetByID)
	invoices.Put("/:id", invoiceHandler.Edit)
	invoices.Delete("/:id", invoiceHandler.Delete)
	invoices.Get("/:id/issue", invoiceHandler.Preview)
	invoices.Post("/:id/issue", invoiceHandler.Issue)
	invoices.Post("/:id/sent", invoiceHandler.MarkSent)
	invoices.Post("/:id/paid", invoiceHandler.MarkPaid)
	invoices.Post("/:id/overdue", invoiceHandler.MarkOverdue)
	invoices.Post("/:id/rectify", invoiceHandler.Rectify)
	invoices.Get("/:id/rectifications", invoiceHandler.Rectifications)
	invoices.Get("/:id/qr.png", invoiceHandler.QRCode)
	invoices.Get("/:id/verifactu.xml", invoiceHandler.VerifactuXML)
}
