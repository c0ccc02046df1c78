package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RubachokBoss/thesis-service/internal/app"
	"github.com/RubachokBoss/thesis-service/internal/config"
	"github.com/RubachokBoss/thesis-service/internal/database"
	"github.com/RubachokBoss/thesis-service/pkg/logger"
	"github.com/rs/zerolog"
)

func main() {
	migrateCmd := flag.NewFlagSet("migrate", flag.ExitOnError)
	migrateDirection := migrateCmd.String("direction", "up", "direction of migration (up/down)")

	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log = logger.NewWithConfig(cfg.Logging.Level, cfg.Logging.Pretty, cfg.Logging.NoColor)

	switch command {
	case "serve":
		serve(cfg, log)
	case "migrate":
		_ = migrateCmd.Parse(os.Args[2:])
		runMigrations(cfg, log, *migrateDirection)
	case "worker":
		runWorker(cfg, log)
	default:
		log.Fatal().Str("command", command).Msg("Unknown command. Use 'serve', 'migrate' or 'worker'")
	}
}

func serve(cfg *config.Config, log zerolog.Logger) {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}

	log.Info().Msg("Database connection established")

	application, err := app.New(cfg, log, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application")
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	go func() {
		if err := application.Run(); err != nil {
			log.Fatal().Err(err).Msg("Failed to run application")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown gracefully")
	}

	log.Info().Msg("Thesis service stopped")
}

func runWorker(cfg *config.Config, log zerolog.Logger) {
	w, err := app.NewWorker(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	if err := w.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start worker")
	}
	log.Info().Int("max_workers", cfg.Worker.MaxWorkers).Msg("Worker started")

	<-ctx.Done()
	w.Shutdown()

	log.Info().Msg("Worker stopped")
}

func runMigrations(cfg *config.Config, log zerolog.Logger, direction string) {
	migrator, err := database.NewMigrator(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create migrator")
	}

	switch direction {
	case "up":
		if err := migrator.Up(); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
		log.Info().Msg("Migrations applied successfully")
	case "down":
		if err := migrator.Down(); err != nil {
			log.Fatal().Err(err).Msg("Failed to rollback migrations")
		}
		log.Info().Msg("Migrations rolled back successfully")
	default:
		log.Fatal().Msg("Invalid migration direction. Use 'up' or 'down'")
	}
}
