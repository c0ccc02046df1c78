package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/RubachokBoss/thesis-service/internal/config"
	"github.com/RubachokBoss/thesis-service/internal/delivery/httpd"
	"github.com/RubachokBoss/thesis-service/internal/lifecycle"
	"github.com/RubachokBoss/thesis-service/internal/repository"
	"github.com/RubachokBoss/thesis-service/internal/service"
	"github.com/RubachokBoss/thesis-service/internal/service/integration"
	"github.com/RubachokBoss/thesis-service/pkg/keylock"
	"github.com/RubachokBoss/thesis-service/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

type App struct {
	server    *http.Server
	logger    zerolog.Logger
	config    *config.Config
	db        *sql.DB
	publisher integration.EventPublisher
}

func New(cfg *config.Config, log zerolog.Logger, db *sql.DB) (*App, error) {
	publisher := newPublisher(cfg, log)

	storage, err := integration.NewMinIODocumentStorage(cfg.Storage, logger.Component(log, "storage"))
	if err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("failed to create document storage: %w", err)
	}

	applicationRepo := repository.NewApplicationRepository(db, log)
	thesisRepo := repository.NewThesisRepository(db, log)
	historyRepo := repository.NewStatusHistoryRepository(db, log)
	supervisorRepo := repository.NewSupervisorRepository(db, log)
	deadlineRepo := repository.NewDeadlineRepository(db, log)

	// One lock table shared by both services: a thesis start locks the
	// application key that decisions on that application also take.
	locks := keylock.New()
	rules := rulesFromConfig(cfg.Conclusion)

	eligibilityService := service.NewEligibilityService(applicationRepo, thesisRepo, log)
	applicationService := service.NewApplicationService(
		applicationRepo,
		supervisorRepo,
		eligibilityService,
		publisher,
		locks,
		rules,
		logger.Component(log, "applications"),
	)
	thesisService := service.NewThesisService(
		thesisRepo,
		applicationRepo,
		supervisorRepo,
		storage,
		publisher,
		locks,
		rules,
		logger.Component(log, "theses"),
	)
	historyService := service.NewHistoryService(historyRepo, applicationRepo, thesisRepo, log)
	deadlineService := service.NewDeadlineService(deadlineRepo, eligibilityService, log)

	handler := httpd.NewHandler(
		applicationService,
		thesisService,
		historyService,
		deadlineService,
		eligibilityService,
		httpd.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		db,
		cfg.Server.MaxUploadSize,
		log,
	)

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(httpd.RequestLogger(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &App{
		server:    server,
		logger:    log,
		config:    cfg,
		db:        db,
		publisher: publisher,
	}, nil
}

// newPublisher falls back to a no-op publisher when RabbitMQ is disabled or
// unreachable; status changes never depend on the broker.
func newPublisher(cfg *config.Config, log zerolog.Logger) integration.EventPublisher {
	if !cfg.RabbitMQ.Enabled {
		return integration.NewNoopPublisher(log)
	}

	publisher, err := integration.NewRabbitMQPublisher(
		cfg.RabbitMQ.URL,
		cfg.RabbitMQ.Exchange,
		cfg.RabbitMQ.QueueName,
		logger.Component(log, "publisher"),
	)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create RabbitMQ publisher, events will be dropped")
		return integration.NewNoopPublisher(log)
	}
	return publisher
}

func rulesFromConfig(cfg config.ConclusionConfig) lifecycle.Rules {
	rules := lifecycle.DefaultRules()
	if cfg.PrimaryLanguage != "" {
		rules.PrimaryLanguage = cfg.PrimaryLanguage
	}
	if cfg.MaxTopicLength > 0 {
		rules.MaxTopicLength = cfg.MaxTopicLength
	}
	if cfg.MaxTitleLength > 0 {
		rules.MaxTitleLength = cfg.MaxTitleLength
	}
	if cfg.MaxAbstractLength > 0 {
		rules.MaxAbstractLength = cfg.MaxAbstractLength
	}
	if cfg.MaxOtherMotivationLength > 0 {
		rules.MaxOtherMotivationLength = cfg.MaxOtherMotivationLength
	}
	return rules
}

func (a *App) Run() error {
	a.logger.Info().Msgf("Starting thesis service on %s", a.config.Server.Address)
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info().Msg("Shutting down thesis service...")

	err := a.server.Shutdown(ctx)

	if err := a.publisher.Close(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to close event publisher")
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close database connection")
		}
	}

	return err
}
