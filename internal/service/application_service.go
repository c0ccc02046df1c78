package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RubachokBoss/thesis-service/internal/lifecycle"
	"github.com/RubachokBoss/thesis-service/internal/models"
	"github.com/RubachokBoss/thesis-service/internal/repository"
	"github.com/RubachokBoss/thesis-service/internal/service/integration"
	"github.com/RubachokBoss/thesis-service/pkg/keylock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ApplicationService interface {
	Submit(ctx context.Context, actor models.Actor, req *models.CreateApplicationRequest) (*models.Application, error)
	Decide(ctx context.Context, actor models.Actor, id string, req *models.DecisionRequest) (*models.Application, error)
	Cancel(ctx context.Context, actor models.Actor, id string) (*models.Application, error)
	// ChangeStatus is the staff path: the caller names the status it saw and
	// the one it wants, and the matching event is resolved from the table.
	ChangeStatus(ctx context.Context, actor models.Actor, id string, req *models.UpdateApplicationStatusRequest) (*models.Application, error)
	GetByID(ctx context.Context, actor models.Actor, id string) (*models.Application, error)
	ListByStudent(ctx context.Context, actor models.Actor, studentID string) (*models.ApplicationsResponse, error)
}

type applicationService struct {
	applicationRepo repository.ApplicationRepository
	supervisorRepo  repository.SupervisorRepository
	eligibility     EligibilityService
	publisher       integration.EventPublisher
	locks           *keylock.KeyLock
	rules           lifecycle.Rules
	now             func() time.Time
	logger          zerolog.Logger
}

func NewApplicationService(
	applicationRepo repository.ApplicationRepository,
	supervisorRepo repository.SupervisorRepository,
	eligibility EligibilityService,
	publisher integration.EventPublisher,
	locks *keylock.KeyLock,
	rules lifecycle.Rules,
	logger zerolog.Logger,
) ApplicationService {
	return &applicationService{
		applicationRepo: applicationRepo,
		supervisorRepo:  supervisorRepo,
		eligibility:     eligibility,
		publisher:       publisher,
		locks:           locks,
		rules:           rules,
		now:             func() time.Time { return time.Now().UTC() },
		logger:          logger,
	}
}

func (s *applicationService) Submit(ctx context.Context, actor models.Actor, req *models.CreateApplicationRequest) (*models.Application, error) {
	if req.StudentID == "" {
		req.StudentID = actor.ID
	}
	if err := requireOwner(actor, req.StudentID); err != nil {
		return nil, err
	}

	req.Topic = strings.TrimSpace(req.Topic)
	if err := lifecycle.ValidateApplicationRequest(req, s.rules); err != nil {
		return nil, err
	}
	if err := checkSupervisors(ctx, s.supervisorRepo, req.SupervisorID, req.CoSupervisorIDs); err != nil {
		return nil, err
	}

	// Serializes submissions of the same student inside this process; the
	// partial unique index covers the rest.
	unlock, err := s.locks.Lock(ctx, "student:"+req.StudentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	eligibility, err := s.eligibility.CanApply(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	if !eligibility.Eligible {
		return nil, &models.ConflictError{Message: "student cannot apply: " + eligibility.Reason}
	}

	coSupervisors := req.CoSupervisorIDs
	if coSupervisors == nil {
		coSupervisors = []string{}
	}

	now := s.now()
	app := &models.Application{
		ID:              uuid.New().String(),
		StudentID:       req.StudentID,
		SupervisorID:    req.SupervisorID,
		CoSupervisorIDs: coSupervisors,
		CompanyID:       req.CompanyID,
		Topic:           req.Topic,
		Description:     req.Description,
		SubmissionDate:  now,
		Status:          models.ApplicationStatusPending,
		UpdatedAt:       now,
	}
	entry := newHistoryEntry(models.OwnerTypeApplication, app.ID, nil, string(app.Status), nil, actor, now)

	if err := s.applicationRepo.Create(ctx, app, entry); err != nil {
		if errors.Is(err, models.ErrUniqueViolation) {
			return nil, &models.ConflictError{Message: "student already has a pending application"}
		}
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	s.logger.Info().
		Str("application_id", app.ID).
		Str("student_id", app.StudentID).
		Str("supervisor_id", app.SupervisorID).
		Msg("Application submitted")

	publishStatusChanged(ctx, s.publisher, s.logger, entry, app.StudentID)

	return app, nil
}

func (s *applicationService) Decide(ctx context.Context, actor models.Actor, id string, req *models.DecisionRequest) (*models.Application, error) {
	if err := validateDecision(req); err != nil {
		return nil, err
	}

	return s.withApplication(ctx, id, func(app *models.Application) (*models.Application, error) {
		if err := authorizeDecision(actor, app.SupervisorID); err != nil {
			return nil, err
		}
		return s.transition(ctx, actor, app, lifecycle.ApplicationDecisionEvent(req.Decision), req.Note)
	})
}

func (s *applicationService) Cancel(ctx context.Context, actor models.Actor, id string) (*models.Application, error) {
	return s.withApplication(ctx, id, func(app *models.Application) (*models.Application, error) {
		if err := requireOwner(actor, app.StudentID); err != nil {
			return nil, err
		}
		return s.transition(ctx, actor, app, lifecycle.ApplicationEventCancel, nil)
	})
}

func (s *applicationService) ChangeStatus(ctx context.Context, actor models.Actor, id string, req *models.UpdateApplicationStatusRequest) (*models.Application, error) {
	ve := models.NewValidationError()
	if !req.OldStatus.IsValid() {
		ve.Add("old_status", "unknown application status")
	}
	if !req.NewStatus.IsValid() {
		ve.Add("new_status", "unknown application status")
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	return s.withApplication(ctx, id, func(app *models.Application) (*models.Application, error) {
		if err := authorizeDecision(actor, app.SupervisorID); err != nil {
			return nil, err
		}

		ev, ok := lifecycle.ApplicationEventFor(req.OldStatus, req.NewStatus)
		if app.Status != req.OldStatus || !ok {
			return nil, &models.InvalidTransitionError{
				Entity: models.OwnerTypeApplication,
				From:   string(app.Status),
				Event:  "move to " + string(req.NewStatus),
			}
		}
		if ev == lifecycle.ApplicationEventCancel {
			return nil, &models.ForbiddenError{Message: "only the student can cancel an application"}
		}

		return s.transition(ctx, actor, app, ev, req.Note)
	})
}

// withApplication loads the application under its per-entity lock.
func (s *applicationService) withApplication(ctx context.Context, id string, fn func(app *models.Application) (*models.Application, error)) (*models.Application, error) {
	unlock, err := s.locks.Lock(ctx, applicationLockKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	app, err := s.applicationRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	if app == nil {
		return nil, &models.NotFoundError{Entity: "application", ID: id}
	}

	return fn(app)
}

func (s *applicationService) transition(ctx context.Context, actor models.Actor, app *models.Application, ev lifecycle.ApplicationEvent, note *string) (*models.Application, error) {
	invalid := &models.InvalidTransitionError{
		Entity: models.OwnerTypeApplication,
		From:   string(app.Status),
		Event:  string(ev),
	}

	to, ok := lifecycle.NextApplicationStatus(app.Status, ev)
	if !ok {
		return nil, invalid
	}

	entry := newHistoryEntry(models.OwnerTypeApplication, app.ID, strPtr(string(app.Status)), string(to), note, actor, s.now())

	updated, err := s.applicationRepo.Transition(ctx, app.ID, app.Status, to, entry)
	if err != nil {
		if errors.Is(err, models.ErrStaleStatus) {
			return nil, invalid
		}
		return nil, fmt.Errorf("failed to update application status: %w", err)
	}

	s.logger.Info().
		Str("application_id", app.ID).
		Str("from", string(app.Status)).
		Str("to", string(to)).
		Str("actor_id", actor.ID).
		Msg("Application status changed")

	publishStatusChanged(ctx, s.publisher, s.logger, entry, app.StudentID)

	return updated, nil
}

func (s *applicationService) GetByID(ctx context.Context, actor models.Actor, id string) (*models.Application, error) {
	app, err := s.applicationRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	if app == nil || !canView(actor, app.StudentID, app.SupervisorID, app.CoSupervisorIDs) {
		return nil, &models.NotFoundError{Entity: "application", ID: id}
	}
	return app, nil
}

func (s *applicationService) ListByStudent(ctx context.Context, actor models.Actor, studentID string) (*models.ApplicationsResponse, error) {
	if actor.IsStudent() && actor.ID != studentID {
		return nil, &models.ForbiddenError{Message: "students can only list their own applications"}
	}

	apps, err := s.applicationRepo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}

	if actor.Role == models.RoleSupervisor {
		visible := apps[:0]
		for _, a := range apps {
			if canView(actor, a.StudentID, a.SupervisorID, a.CoSupervisorIDs) {
				visible = append(visible, a)
			}
		}
		apps = visible
	}

	return &models.ApplicationsResponse{Applications: apps, Total: len(apps)}, nil
}
