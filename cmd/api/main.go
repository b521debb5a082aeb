package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/itineramio/facturas-api/internal/application/auth"
	"github.com/itineramio/facturas-api/internal/application/billing"
	"github.com/itineramio/facturas-api/internal/infrastructure/postgres"
	httpRouter "github.com/itineramio/facturas-api/internal/interfaces/http"
	"github.com/itineramio/facturas-api/pkg/config"
	"github.com/itineramio/facturas-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:     cfg.App.Env,
		Level:   "info",
		Service: cfg.App.Name,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Msg("iniciando aplicación")

	if err := postgres.Migrate(cfg.DB.ConnectionString()); err != nil {
		log.Fatal().Err(err).Msg("migraciones")
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	accountRepo := postgres.NewAccountRepository(pool)
	userRepo := postgres.NewUserRepository(pool)
	ownerRepo := postgres.NewOwnerRepository(pool)
	seriesRepo := postgres.NewSeriesRepository(pool)
	invoiceRepo := postgres.NewInvoiceRepository(pool)
	complianceRepo := postgres.NewComplianceRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	authUC := auth.NewAuthUseCase(userRepo, accountRepo, auth.JWTConfig{
		Secret:     cfg.JWT.Secret,
		ExpMinutes: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	seriesUC := billing.NewSeriesUseCase(seriesRepo, txRunner, nil)
	ownerUC := billing.NewOwnerUseCase(ownerRepo)
	invoiceUC := billing.NewInvoiceUseCase(invoiceRepo, seriesRepo, ownerRepo, complianceRepo, nil)
	issueUC := billing.NewIssueInvoiceUseCase(
		txRunner, invoiceRepo, seriesRepo, ownerRepo, accountRepo,
		billing.VerifactuConfig{QRBaseURL: cfg.VeriFactu.QRBaseURL}, nil,
	)
	rectifyUC := billing.NewRectifyInvoiceUseCase(invoiceRepo, ownerRepo, seriesUC, issueUC, nil)
	complianceUC := billing.NewComplianceUseCase(invoiceRepo, ownerRepo, accountRepo, complianceRepo)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Facturas API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		AuthUC:       authUC,
		SeriesUC:     seriesUC,
		InvoiceUC:    invoiceUC,
		IssueUC:      issueUC,
		RectifyUC:    rectifyUC,
		ComplianceUC: complianceUC,
		OwnerUC:      ownerUC,
		JWTSecret:    cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
