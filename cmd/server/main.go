package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/blog-moderation-api/internal/api"
	"github.com/blog-moderation-api/internal/config"
	"github.com/blog-moderation-api/internal/database"
	"github.com/blog-moderation-api/internal/mail"
	"github.com/blog-moderation-api/internal/repository"
	"github.com/blog-moderation-api/internal/service"
	"github.com/blog-moderation-api/internal/storage"
	"github.com/blog-moderation-api/pkg/logger"
)

func main() {
	migrateDown := flag.Bool("migrate-down", false, "roll back the last migration and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "json")
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Msg("Starting blog moderation API server...")

	// Initialize database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if *migrateDown {
		if err := db.MigrateDown(cfg.Database.MigrationsPath); err != nil {
			log.Fatal().Err(err).Msg("Failed to roll back migration")
		}
		return
	}

	// Run migrations
	if err := db.RunMigrations(cfg.Database.MigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	repos := repository.New(db)

	// Mail transport falls back to the log when SMTP is not configured
	var mailer mail.Mailer
	if cfg.Mail.Enabled() {
		mailer = mail.NewSMTPMailer(&cfg.Mail, log)
	} else {
		log.Warn().Msg("SMTP not configured, notifications will be logged only")
		mailer = mail.NewLogMailer(log)
	}

	files, err := storage.NewLocalStore(cfg.Storage.FeaturedImageDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open featured image storage")
	}

	// Initialize services
	services := service.NewServices(repos, cfg, service.Dependencies{
		Mailer: mailer,
		Files:  files,
	}, log)

	// Requeue jobs left running by a previous process
	if err := services.Job.RecoverInterrupted(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to recover interrupted jobs")
	}

	// Start background job processor
	services.Job.StartProcessor(context.Background())
	log.Info().Msg("Background job processor started")

	// Initialize router
	router := api.NewRouter(services, cfg, db, log)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job processor after the last request that could enqueue
	services.Job.StopProcessor()

	log.Info().Msg("Server exited gracefully")
}
