package service

import (
	"context"
	"fmt"

	"github.com/RubachokBoss/thesis-service/internal/models"
	"github.com/RubachokBoss/thesis-service/internal/repository"
	"github.com/rs/zerolog"
)

type EligibilityService interface {
	CanApply(ctx context.Context, studentID string) (*models.EligibilityResponse, error)
	// ForStudent is CanApply on behalf of actor: students may only ask
	// about themselves.
	ForStudent(ctx context.Context, actor models.Actor, studentID string) (*models.EligibilityResponse, error)
	PhaseOf(ctx context.Context, studentID string) (models.Phase, error)
}

type eligibilityService struct {
	applicationRepo repository.ApplicationRepository
	thesisRepo      repository.ThesisRepository
	logger          zerolog.Logger
}

func NewEligibilityService(
	applicationRepo repository.ApplicationRepository,
	thesisRepo repository.ThesisRepository,
	logger zerolog.Logger,
) EligibilityService {
	return &eligibilityService{
		applicationRepo: applicationRepo,
		thesisRepo:      thesisRepo,
		logger:          logger,
	}
}

func (s *eligibilityService) CanApply(ctx context.Context, studentID string) (*models.EligibilityResponse, error) {
	resp := &models.EligibilityResponse{StudentID: studentID}

	thesis, err := s.thesisRepo.GetActiveByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active thesis: %w", err)
	}
	if thesis != nil {
		resp.Reason = "student has a thesis in status " + string(thesis.Status)
		return resp, nil
	}

	open, err := s.applicationRepo.HasOpen(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check open applications: %w", err)
	}
	if open {
		resp.Reason = "student has an application awaiting decision or thesis start"
		return resp, nil
	}

	resp.Eligible = true
	return resp, nil
}

func (s *eligibilityService) ForStudent(ctx context.Context, actor models.Actor, studentID string) (*models.EligibilityResponse, error) {
	if actor.IsStudent() && actor.ID != studentID {
		return nil, &models.ForbiddenError{Message: "students can only check their own eligibility"}
	}
	return s.CanApply(ctx, studentID)
}

func (s *eligibilityService) PhaseOf(ctx context.Context, studentID string) (models.Phase, error) {
	thesis, err := s.thesisRepo.GetActiveByStudent(ctx, studentID)
	if err != nil {
		return "", fmt.Errorf("failed to get active thesis: %w", err)
	}
	if thesis != nil {
		return models.PhaseThesis, nil
	}

	open, err := s.applicationRepo.HasOpen(ctx, studentID)
	if err != nil {
		return "", fmt.Errorf("failed to check open applications: %w", err)
	}
	if open {
		return models.PhaseApplication, nil
	}

	return models.PhaseNoApplication, nil
}
