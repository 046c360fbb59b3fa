// main.go
//
// MED-Database committee and member registry service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of meddb.
// meddb is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// meddb is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with meddb.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	swagger "github.com/gofiber/swagger"
	"github.com/joho/godotenv"
	"github.com/localnerve/meddb/internal/config"
	"github.com/localnerve/meddb/internal/database"
	"github.com/localnerve/meddb/internal/directory"
	"github.com/localnerve/meddb/internal/handlers"
	"github.com/localnerve/meddb/internal/jobs"
	"github.com/localnerve/meddb/internal/middleware"
	"github.com/localnerve/meddb/internal/reconcile"
	"github.com/localnerve/meddb/internal/services"
	"github.com/localnerve/meddb/internal/utils"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"

	_ "github.com/localnerve/meddb/docs/api" // Swagger docs
)

// @title MED-Database API
// @version 1.0.0
// @description Committee hierarchy, membership and directory reconciliation service
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url https://github.com/localnerve/meddb
// @contact.email info@localnerve.com

// @license.name AGPL-3.0
// @license.url https://www.gnu.org/licenses/agpl-3.0.html

// @host localhost:3000
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name cookie_session

func main() {
	// A missing .env is fine; the environment wins over the file.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	appDB, err := database.Connect(cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to connect to app database", zap.Error(err))
	}
	defer database.Close(appDB)

	if err := database.AutoMigrate(appDB); err != nil {
		zlog.Fatal("failed to run migrations", zap.Error(err))
	}
	if err := database.Seed(appDB); err != nil {
		zlog.Fatal("failed to seed committee types", zap.Error(err))
	}

	var schoolDB *gorm.DB
	if cfg.SchoolEnabled() {
		schoolDB, err = database.ConnectSchool(cfg, zlog)
		if err != nil {
			zlog.Fatal("failed to connect to school directory database", zap.Error(err))
		}
		defer database.Close(schoolDB)
	}

	clients, err := directory.NewClients(cfg, schoolDB)
	if err != nil {
		zlog.Fatal("failed to create directory clients", zap.Error(err))
	}

	metrics := &reconcile.Metrics{}
	metrics.Register(prometheus.DefaultRegisterer)
	opts := reconcile.Options{
		Log:              zlog.Named("reconcile"),
		Metrics:          metrics,
		CopyOrganization: cfg.ReconcileCopyOrganization,
	}
	opts.UseDirectories(clients)
	engine := reconcile.New(appDB, clients.Delta, opts)

	scheduler, err := jobs.New(appDB, engine, jobs.Config{
		ReconcileSchedule:   cfg.ReconcileSchedule,
		MaintenanceSchedule: cfg.MaintenanceSchedule,
		RunOnStart:          cfg.ReconcileOnStart,
	}, zlog.Named("jobs"))
	if err != nil {
		zlog.Fatal("failed to create scheduler", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(compress.New())

	prom := fiberprometheus.New("meddb")
	prom.RegisterAt(app, "/metrics")
	app.Use(prom.Middleware)

	app.Get("/swagger/*", swagger.HandlerDefault)

	directories := services.DirectoryEndpoints(cfg)
	if clients.School != nil {
		directories["school"] = clients.School
	}
	health := &handlers.HealthHandler{Config: cfg, DB: appDB, Directories: directories, Log: zlog}
	app.Get("/health", health.Health)

	api := app.Group("/api")
	api.Use(middleware.VersionMiddleware())

	routes := &handlers.API{
		Committees: &handlers.CommitteeHandler{
			DB:             appDB,
			Log:            zlog.Named("committees"),
			DropOrphans:    cfg.TreeOrphans == config.TreeOrphansDrop,
			PriorityRoles:  cfg.PriorityRoles,
			TopCommitteeID: cfg.TopCommitteeID,
		},
		Catalog:   &handlers.CatalogHandler{DB: appDB},
		Persons:   &handlers.PersonHandler{DB: appDB},
		Directory: &handlers.DirectoryHandler{Searcher: clients.Interactive()},
		Reconcile: &handlers.ReconcileHandler{
			DB:         appDB,
			Engine:     engine,
			Background: scheduler.ReconcileAsync,
		},
	}
	routes.Register(api, middleware.Auth{Validate: middleware.AuthorizerValidator(cfg, zlog)})

	app.Use(func(c *fiber.Ctx) error {
		return utils.NotFoundResponse(c, "[404] Resource Not Found")
	})

	zlog.Info("authorizer will be initialized on first authenticated request", zap.String("authorizer_url", cfg.AuthzURL))

	scheduler.Start()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		zlog.Info("gracefully shutting down")
		_ = app.Shutdown()
	}()

	zlog.Info("starting server", zap.String("port", cfg.Port))
	if err := app.Listen(":" + cfg.Port); err != nil {
		zlog.Fatal("failed to start server", zap.Error(err))
	}

	// Requests are drained; wait for scheduled and background runs before the databases close.
	scheduler.Stop()
	zlog.Info("server stopped")
}
