package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/mauv0809/factledger/internal/app"
	"github.com/mauv0809/factledger/internal/config"
	"github.com/mauv0809/factledger/internal/db"
	"github.com/mauv0809/factledger/internal/handlers"
	"github.com/mauv0809/factledger/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var repo *db.Repository

	// Run migrations
	if cfg.Database.URL == "" {
		logger.Warn("DATABASE_URL not set, ingestion endpoints disabled")
	} else if err := db.RunMigrations(cfg.Database.URL); err != nil {
		logger.Warn("could not run migrations", zap.Error(err))
	} else {
		logger.Info("migrations completed")
	}

	mapper, err := app.LoadMapper(cfg.Ingest.ConceptsFile)
	if err != nil {
		logger.Fatal("loading concept tables", zap.Error(err))
	}

	// Connect to database
	if cfg.Database.URL != "" {
		conn, err := db.Connect(ctx, cfg.Database.URL)
		if err != nil {
			logger.Warn("could not connect to database, continuing without it", zap.Error(err))
		} else {
			defer conn.Close()
			repo = db.NewRepository(conn, mapper)
			logger.Info("connected to database")
		}
	}

	// Setup Echo
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error == nil {
				logger.Info("request", zap.Int("status", v.Status), zap.String("uri", v.URI))
			} else {
				logger.Warn("request", zap.Int("status", v.Status), zap.String("uri", v.URI), zap.Error(v.Error))
			}
			return nil
		},
	}))
	e.Use(middleware.Recover())

	h := handlers.New(repo != nil)
	e.GET("/health", h.Health)

	// Admin routes for data ingestion
	if repo != nil {
		runner, err := app.NewRunner(cfg, mapper, repo, logger)
		if err != nil {
			logger.Fatal("configuring ingestion", zap.Error(err))
		}
		ingestHandler := handlers.NewIngestHandler(runner, repo, logger)

		admin := e.Group("/admin")
		admin.GET("/ingest/status", ingestHandler.IngestStatus)
		admin.POST("/ingest/facts", ingestHandler.IngestFacts)
		logger.Info("ingestion endpoints registered")
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	logger.Info("starting server", zap.String("port", cfg.Server.Port))
	if err := e.Start(":" + cfg.Server.Port); err != nil && ctx.Err() == nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
