// @title           Student Insurance API
// @version         1.0
// @description     API for student insurance: clients apply for policies on priced plans, pay premiums with overdue penalties, and file claims that underwriters decide.
// @contact.name    Aldo Rifki Putra
// @contact.email   aldoetobex@gmail.com
// @BasePath        /api
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
// @description     Format: Bearer <token>
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm/logger"

	"github.com/aldoetobex/insurance-backend/internal/auth"
	"github.com/aldoetobex/insurance-backend/internal/claims"
	"github.com/aldoetobex/insurance-backend/internal/config"
	"github.com/aldoetobex/insurance-backend/internal/middleware"
	"github.com/aldoetobex/insurance-backend/internal/payments"
	"github.com/aldoetobex/insurance-backend/internal/plans"
	"github.com/aldoetobex/insurance-backend/internal/policies"
	"github.com/aldoetobex/insurance-backend/internal/references"
	"github.com/aldoetobex/insurance-backend/pkg/database"
	"github.com/aldoetobex/insurance-backend/pkg/models"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log := middleware.NewLogger(cfg.LogLevel)

	gormLevel := logger.Warn
	if log.IsLevelEnabled(logrus.DebugLevel) {
		gormLevel = logger.Info
	}
	db, err := database.Open(cfg.DBDriver, cfg.DatabaseURL, gormLevel)
	if err != nil {
		log.WithError(err).Fatal("database")
	}
	if err := database.Migrate(db); err != nil {
		log.WithError(err).Fatal("database")
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(log),
	})
	app.Use(recover.New())
	app.Use(middleware.RequestLogger(log))

	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })

	api := app.Group("/api")
	refs := references.NewValidator(db)
	writer := auth.RequireRole(models.RoleWriter)
	applicant := auth.RequireRole(models.RoleClient, models.RoleAgent)

	// Auth
	authH := auth.NewHandler(db)
	api.Post("/signup", authH.Signup)
	api.Post("/login", authH.Login)
	api.Get("/me", auth.RequireAuth(), authH.Me)

	// everything below needs a token
	secured := api.Group("", auth.RequireAuth())

	// Plans
	planH := plans.NewHandler(db, log)
	secured.Get("/plans", planH.List)
	secured.Get("/plans/:id", planH.Get)
	secured.Post("/plans", writer, planH.Create)
	secured.Put("/plans/:id", writer, planH.Update)
	secured.Delete("/plans/:id", writer, planH.Delete)

	// Policies
	polH := policies.NewHandler(db, refs, log)
	secured.Get("/policies", polH.List)
	secured.Post("/policies", applicant, polH.Create)
	secured.Get("/policies/:id", polH.Get)
	secured.Put("/policies/:id", applicant, polH.Update)
	secured.Delete("/policies/:id", applicant, polH.Delete)
	secured.Patch("/policies/:id/status", writer, polH.UpdateStatus)

	// Claims and beneficiaries
	claimH := claims.NewHandler(db, refs, log, cfg.Timezone)
	secured.Post("/beneficiaries", claimH.CreateBeneficiary)
	secured.Get("/beneficiaries", claimH.ListBeneficiaries)
	secured.Get("/claims", claimH.List)
	secured.Post("/claims", claimH.Create)
	secured.Get("/claims/policy/:policyID", claimH.ByPolicy)
	secured.Get("/claims/status/:status", claimH.ByStatus)
	secured.Get("/claims/:id", claimH.Get)
	secured.Put("/claims/:id", claimH.Update)
	secured.Delete("/claims/:id", claimH.Delete)
	secured.Patch("/claims/:id/status", writer, claimH.UpdateStatus)

	// Payments
	paySvc := payments.NewService(db, log, cfg.Timezone)
	payH := payments.NewHandler(paySvc)
	secured.Get("/payments", payH.List)
	secured.Post("/payments", payH.Create)
	secured.Get("/payments/history/:policyID", payH.HistoryByPolicy)
	secured.Get("/payments/:id", payH.Get)
	secured.Put("/payments/:id", payH.Update)
	secured.Delete("/payments/:id", payH.Delete)
	secured.Get("/payments/:id/history", payH.History)
	secured.Get("/payments/:id/schedule", payH.Schedule)

	if cfg.OverdueCron != "" {
		sweeper, err := payments.StartSweeper(paySvc, cfg.OverdueCron, cfg.Timezone, log)
		if err != nil {
			log.WithError(err).Fatal("sweeper")
		}
		defer sweeper.Stop()
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info("shutting down")
		_ = app.Shutdown()
	}()

	log.WithField("port", cfg.Port).Info("server running")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.WithError(err).Fatal("listen")
	}
}
