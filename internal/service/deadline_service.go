package service

import (
	"context"
	"fmt"
	"time"

	"github.com/RubachokBoss/thesis-service/internal/lifecycle"
	"github.com/RubachokBoss/thesis-service/internal/models"
	"github.com/RubachokBoss/thesis-service/internal/repository"
	"github.com/rs/zerolog"
)

type DeadlineService interface {
	DeadlinesFor(ctx context.Context, phase models.Phase) (*models.DeadlinesResponse, error)
	ForStudent(ctx context.Context, actor models.Actor, studentID string) (*models.DeadlinesResponse, error)
}

type deadlineService struct {
	deadlineRepo repository.DeadlineRepository
	eligibility  EligibilityService
	now          func() time.Time
	logger       zerolog.Logger
}

func NewDeadlineService(deadlineRepo repository.DeadlineRepository, eligibility EligibilityService, logger zerolog.Logger) DeadlineService {
	return &deadlineService{
		deadlineRepo: deadlineRepo,
		eligibility:  eligibility,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger,
	}
}

func (s *deadlineService) DeadlinesFor(ctx context.Context, phase models.Phase) (*models.DeadlinesResponse, error) {
	if !phase.IsValid() {
		ve := models.NewValidationError()
		ve.Add("phase", "must be thesis, application or no_application")
		return nil, ve
	}

	now := s.now()
	sessions, err := s.deadlineRepo.ListUpcomingSessions(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list graduation sessions: %w", err)
	}

	session, ok := lifecycle.SelectSession(sessions, phase, now)
	if !ok {
		return nil, &models.NotFoundError{Entity: "graduation session", ID: string(phase)}
	}

	s.logger.Debug().
		Str("phase", string(phase)).
		Str("session_id", session.ID).
		Int("deadlines", len(session.Deadlines)).
		Msg("Graduation session selected")

	return &models.DeadlinesResponse{
		Phase:             phase,
		GraduationSession: session.GraduationSession,
		Deadlines:         lifecycle.DeadlineStatuses(session.Deadlines, now),
	}, nil
}

func (s *deadlineService) ForStudent(ctx context.Context, actor models.Actor, studentID string) (*models.DeadlinesResponse, error) {
	if actor.IsStudent() && actor.ID != studentID {
		return nil, &models.ForbiddenError{Message: "students can only see their own deadlines"}
	}

	phase, err := s.eligibility.PhaseOf(ctx, studentID)
	if err != nil {
		return nil, err
	}

	return s.DeadlinesFor(ctx, phase)
}
