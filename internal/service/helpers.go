package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/RubachokBoss/thesis-service/internal/models"
	"github.com/RubachokBoss/thesis-service/internal/repository"
	"github.com/RubachokBoss/thesis-service/internal/service/integration"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func applicationLockKey(id string) string { return "application:" + id }
func thesisLockKey(id string) string      { return "thesis:" + id }

func newHistoryEntry(owner models.OwnerType, ownerID string, old *string, next string, note *string, actor models.Actor, at time.Time) *models.StatusHistoryEntry {
	return &models.StatusHistoryEntry{
		ID:         uuid.New().String(),
		OwnerType:  owner,
		OwnerID:    ownerID,
		OldStatus:  old,
		NewStatus:  next,
		ChangeDate: at,
		Note:       note,
		ChangedBy:  actor.ID,
	}
}

func strPtr(s string) *string { return &s }

func statusChangedEvent(entry *models.StatusHistoryEntry, studentID string) *models.StatusChangedEvent {
	eventType := models.EventTypeThesisStatusChanged
	if entry.OwnerType == models.OwnerTypeApplication {
		eventType = models.EventTypeApplicationStatusChanged
	}

	return &models.StatusChangedEvent{
		Type:      eventType,
		OwnerType: entry.OwnerType,
		OwnerID:   entry.OwnerID,
		StudentID: studentID,
		OldStatus: entry.OldStatus,
		NewStatus: entry.NewStatus,
		Note:      entry.Note,
		ChangedBy: entry.ChangedBy,
		Timestamp: entry.ChangeDate.Unix(),
	}
}

// publishStatusChanged never fails the caller: the transition is already
// committed when it runs.
func publishStatusChanged(ctx context.Context, publisher integration.EventPublisher, logger zerolog.Logger, entry *models.StatusHistoryEntry, studentID string) {
	if publisher == nil {
		return
	}
	if err := publisher.PublishStatusChanged(ctx, statusChangedEvent(entry, studentID)); err != nil {
		logger.Error().
			Err(err).
			Str("owner_type", string(entry.OwnerType)).
			Str("owner_id", entry.OwnerID).
			Msg("Failed to publish status changed event")
	}
}

func canView(actor models.Actor, studentID, supervisorID string, coSupervisorIDs []string) bool {
	switch actor.Role {
	case models.RoleStaff:
		return true
	case models.RoleStudent:
		return actor.ID == studentID
	case models.RoleSupervisor:
		return actor.ID == supervisorID || slices.Contains(coSupervisorIDs, actor.ID)
	default:
		return false
	}
}

// authorizeDecision allows staff everywhere and a supervisor only on the
// entities they supervise.
func authorizeDecision(actor models.Actor, supervisorID string) error {
	switch {
	case actor.Role == models.RoleStaff:
		return nil
	case actor.Role == models.RoleSupervisor && actor.ID == supervisorID:
		return nil
	default:
		return &models.ForbiddenError{Message: "only staff or the supervisor can take this decision"}
	}
}

func requireOwner(actor models.Actor, studentID string) error {
	if !actor.IsStudent() || actor.ID != studentID {
		return &models.ForbiddenError{Message: "only the owning student can do this"}
	}
	return nil
}

// checkSupervisors reports unknown supervisor ids as a ValidationError.
func checkSupervisors(ctx context.Context, repo repository.SupervisorRepository, supervisorID string, coSupervisorIDs []string) error {
	ids := append([]string{supervisorID}, coSupervisorIDs...)
	missing, err := repo.Missing(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to check supervisors: %w", err)
	}
	if len(missing) == 0 {
		return nil
	}

	ve := models.NewValidationError()
	for _, id := range missing {
		if id == supervisorID {
			ve.Add("supervisor_id", "unknown supervisor")
		} else {
			ve.Add("co_supervisor_ids", "unknown supervisor "+id)
		}
	}
	return ve
}
