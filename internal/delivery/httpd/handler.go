package httpd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/RubachokBoss/thesis-service/internal/models"
	"github.com/RubachokBoss/thesis-service/internal/service"
	"github.com/RubachokBoss/thesis-service/pkg/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	applicationService service.ApplicationService
	thesisService      service.ThesisService
	historyService     service.HistoryService
	deadlineService    service.DeadlineService
	eligibilityService service.EligibilityService
	auth               *Authenticator
	db                 Pinger
	maxUploadSize      int64
	logger             zerolog.Logger
}

func NewHandler(
	applicationService service.ApplicationService,
	thesisService service.ThesisService,
	historyService service.HistoryService,
	deadlineService service.DeadlineService,
	eligibilityService service.EligibilityService,
	auth *Authenticator,
	db Pinger,
	maxUploadSize int64,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		applicationService: applicationService,
		thesisService:      thesisService,
		historyService:     historyService,
		deadlineService:    deadlineService,
		eligibilityService: eligibilityService,
		auth:               auth,
		db:                 db,
		maxUploadSize:      maxUploadSize,
		logger:             logger,
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/health", h.HealthCheck)

	router.Route("/api/v1", func(api chi.Router) {
		api.Use(h.auth.Middleware)

		api.Route("/applications", func(r chi.Router) {
			r.Post("/", h.SubmitApplication)
			r.Get("/{id}", h.GetApplication)
			r.Get("/{id}/view", h.GetApplicationView)
			r.Post("/{id}/decision", h.DecideApplication)
			r.Post("/{id}/cancel", h.CancelApplication)
			r.Put("/{id}/status", h.UpdateApplicationStatus)
		})

		api.Route("/theses", func(r chi.Router) {
			r.Post("/", h.StartThesis)
			r.Get("/{id}", h.GetThesis)
			r.Get("/{id}/view", h.GetThesisView)
			r.Post("/{id}/conclusion", h.RequestConclusion)
			r.Put("/{id}/conclusion/draft", h.SaveConclusionDraft)
			r.Post("/{id}/conclusion/decision", h.DecideConclusion)
			r.Post("/{id}/cancellation", h.RequestCancellation)
			r.Post("/{id}/cancellation/decision", h.DecideCancellation)
			r.Post("/{id}/advance", h.AdvanceThesis)
			r.Post("/{id}/final-thesis", h.UploadFinalThesis)
			r.Post("/{id}/final-decision", h.FinalizeThesis)
			r.Put("/{id}/status", h.UpdateThesisStatus)
			r.Put("/{id}/supervisors", h.UpdateSupervisors)
			r.Get("/{id}/documents/{kind}", h.GetDocumentURL)
		})

		api.Route("/students/{id}", func(r chi.Router) {
			r.Get("/eligibility", h.GetEligibility)
			r.Get("/applications", h.ListStudentApplications)
			r.Get("/deadlines", h.GetStudentDeadlines)
		})

		api.Get("/status-history", h.GetStatusHistory)
		api.Get("/deadlines", h.GetDeadlines)
	})
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	dbStatus := "healthy"

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			h.logger.Error().Err(err).Msg("Database health check failed")
			status = http.StatusServiceUnavailable
			dbStatus = "unhealthy"
		}
	}

	_ = utils.WriteJSON(w, status, map[string]interface{}{
		"status":    dbStatus,
		"service":   "thesis-service",
		"timestamp": time.Now().UTC(),
	})
}

// caller returns the authenticated actor; the auth middleware guarantees
// one on every /api/v1 route.
func caller(r *http.Request) models.Actor {
	actor, _ := actorFrom(r.Context())
	return actor
}

// handleServiceError maps domain errors to HTTP answers.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *models.ValidationError
		transitionErr *models.InvalidTransitionError
		conflictErr   *models.ConflictError
		notFoundErr   *models.NotFoundError
		forbiddenErr  *models.ForbiddenError
	)

	switch {
	case errors.As(err, &validationErr):
		utils.ErrorResponse(w, http.StatusBadRequest, "validation failed", validationErr.Fields)
	case errors.As(err, &transitionErr):
		log := loggerFrom(r.Context())
		log.Info().
			Str("entity", string(transitionErr.Entity)).
			Str("from", transitionErr.From).
			Str("event", transitionErr.Event).
			Msg("Rejected transition")
		utils.ErrorResponse(w, http.StatusConflict, "state has changed, please refresh", nil)
	case errors.As(err, &conflictErr):
		utils.ErrorResponse(w, http.StatusConflict, conflictErr.Message, nil)
	case errors.As(err, &notFoundErr):
		utils.ErrorResponse(w, http.StatusNotFound, notFoundErr.Error(), nil)
	case errors.As(err, &forbiddenErr):
		utils.ErrorResponse(w, http.StatusForbidden, forbiddenErr.Message, nil)
	case errors.Is(err, context.Canceled):
		// client went away, nothing useful to write
		return
	default:
		log := loggerFrom(r.Context())
		log.Error().Err(err).Msg("Service error")
		utils.ErrorResponse(w, http.StatusInternalServerError, "Internal server error", nil)
	}
}

func badRequest(w http.ResponseWriter, message string) {
	utils.ErrorResponse(w, http.StatusBadRequest, message, nil)
}
