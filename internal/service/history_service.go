package service

import (
	"context"
	"fmt"

	"github.com/RubachokBoss/thesis-service/internal/lifecycle"
	"github.com/RubachokBoss/thesis-service/internal/models"
	"github.com/RubachokBoss/thesis-service/internal/repository"
	"github.com/rs/zerolog"
)

type HistoryService interface {
	List(ctx context.Context, actor models.Actor, ownerType models.OwnerType, ownerID string) ([]models.StatusHistoryEntry, error)
	ApplicationView(ctx context.Context, actor models.Actor, id string) (*lifecycle.ViewModel, error)
	ThesisView(ctx context.Context, actor models.Actor, id string) (*lifecycle.ViewModel, error)
}

type historyService struct {
	historyRepo     repository.StatusHistoryRepository
	applicationRepo repository.ApplicationRepository
	thesisRepo      repository.ThesisRepository
	logger          zerolog.Logger
}

func NewHistoryService(
	historyRepo repository.StatusHistoryRepository,
	applicationRepo repository.ApplicationRepository,
	thesisRepo repository.ThesisRepository,
	logger zerolog.Logger,
) HistoryService {
	return &historyService{
		historyRepo:     historyRepo,
		applicationRepo: applicationRepo,
		thesisRepo:      thesisRepo,
		logger:          logger,
	}
}

func (s *historyService) List(ctx context.Context, actor models.Actor, ownerType models.OwnerType, ownerID string) ([]models.StatusHistoryEntry, error) {
	ve := models.NewValidationError()
	if !ownerType.IsValid() {
		ve.Add("owner_type", "must be application or thesis")
	}
	if ownerID == "" {
		ve.Add("owner_id", "is required")
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	if _, err := s.currentStatus(ctx, actor, ownerType, ownerID); err != nil {
		return nil, err
	}

	return s.list(ctx, ownerType, ownerID)
}

func (s *historyService) list(ctx context.Context, ownerType models.OwnerType, ownerID string) ([]models.StatusHistoryEntry, error) {
	entries, err := s.historyRepo.ListByOwner(ctx, ownerType, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list status history: %w", err)
	}
	if entries == nil {
		entries = []models.StatusHistoryEntry{}
	}
	return entries, nil
}

// currentStatus checks that the owner exists and is visible to actor and
// returns its stored status.
func (s *historyService) currentStatus(ctx context.Context, actor models.Actor, ownerType models.OwnerType, ownerID string) (string, error) {
	switch ownerType {
	case models.OwnerTypeApplication:
		app, err := s.applicationRepo.GetByID(ctx, ownerID)
		if err != nil {
			return "", fmt.Errorf("failed to get application: %w", err)
		}
		if app == nil || !canView(actor, app.StudentID, app.SupervisorID, app.CoSupervisorIDs) {
			return "", &models.NotFoundError{Entity: "application", ID: ownerID}
		}
		return string(app.Status), nil
	default:
		t, err := s.thesisRepo.GetByID(ctx, ownerID)
		if err != nil {
			return "", fmt.Errorf("failed to get thesis: %w", err)
		}
		if t == nil || !canView(actor, t.StudentID, t.SupervisorID, t.CoSupervisorIDs) {
			return "", &models.NotFoundError{Entity: "thesis", ID: ownerID}
		}
		return string(t.Status), nil
	}
}

func (s *historyService) ApplicationView(ctx context.Context, actor models.Actor, id string) (*lifecycle.ViewModel, error) {
	return s.view(ctx, actor, models.OwnerTypeApplication, id)
}

func (s *historyService) ThesisView(ctx context.Context, actor models.Actor, id string) (*lifecycle.ViewModel, error) {
	return s.view(ctx, actor, models.OwnerTypeThesis, id)
}

func (s *historyService) view(ctx context.Context, actor models.Actor, ownerType models.OwnerType, id string) (*lifecycle.ViewModel, error) {
	status, err := s.currentStatus(ctx, actor, ownerType, id)
	if err != nil {
		return nil, err
	}

	entries, err := s.list(ctx, ownerType, id)
	if err != nil {
		return nil, err
	}

	vm, err := lifecycle.Project(ownerType, status, entries)
	if err != nil {
		return nil, err
	}

	if vm.IntegrityWarning != nil {
		s.logger.Warn().
			Str("owner_type", string(ownerType)).
			Str("owner_id", id).
			Str("warning", *vm.IntegrityWarning).
			Msg("Stored status diverges from history")
	}

	return vm, nil
}
