package lifecycle

import (
	"sort"
	"time"

	"github.com/RubachokBoss/thesis-service/internal/models"
)

const soonWindowDays = 7

func dateOnlyUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysLeft counts whole calendar days between now and deadline, both taken
// as UTC dates. Time of day never changes the result.
func DaysLeft(deadline, now time.Time) int {
	return int(dateOnlyUTC(deadline).Sub(dateOnlyUTC(now)).Hours() / 24)
}

func SeverityOf(deadline, now time.Time) models.Severity {
	days := DaysLeft(deadline, now)
	switch {
	case days < 0:
		return models.SeverityOverdue
	case days == 0:
		return models.SeverityToday
	case days <= soonWindowDays:
		return models.SeveritySoon
	default:
		return models.SeverityUpcoming
	}
}

// KeyDeadlineType is the deadline that drives session selection for a phase.
func KeyDeadlineType(phase models.Phase) models.DeadlineType {
	if phase == models.PhaseThesis {
		return models.DeadlineTypeConclusionRequest
	}
	return models.DeadlineTypeThesisRequest
}

// SelectSession picks the session whose key deadline for phase is the
// nearest one on or after today. Sessions without a future key deadline are
// considered only when no session has one, using their nearest future
// deadline of any type instead.
func SelectSession(sessions []models.GraduationSessionWithDeadlines, phase models.Phase, now time.Time) (*models.GraduationSessionWithDeadlines, bool) {
	today := dateOnlyUTC(now)
	key := KeyDeadlineType(phase)

	pick := func(match func(models.Deadline) bool) (*models.GraduationSessionWithDeadlines, bool) {
		var (
			best     *models.GraduationSessionWithDeadlines
			bestDate time.Time
		)
		for i := range sessions {
			for _, d := range sessions[i].Deadlines {
				date := dateOnlyUTC(d.DeadlineDate)
				if date.Before(today) || !match(d) {
					continue
				}
				if best == nil || date.Before(bestDate) {
					best = &sessions[i]
					bestDate = date
				}
			}
		}
		return best, best != nil
	}

	if s, ok := pick(func(d models.Deadline) bool { return d.DeadlineType == key }); ok {
		return s, true
	}
	return pick(func(models.Deadline) bool { return true })
}

// DeadlineStatuses annotates deadlines with days left and severity, sorted
// ascending by date.
func DeadlineStatuses(deadlines []models.Deadline, now time.Time) []models.DeadlineStatus {
	result := make([]models.DeadlineStatus, 0, len(deadlines))
	for _, d := range deadlines {
		result = append(result, models.DeadlineStatus{
			Deadline: d,
			DaysLeft: DaysLeft(d.DeadlineDate, now),
			Severity: SeverityOf(d.DeadlineDate, now),
		})
	}

	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].DeadlineDate.Equal(result[j].DeadlineDate) {
			return result[i].DeadlineDate.Before(result[j].DeadlineDate)
		}
		return result[i].DeadlineType < result[j].DeadlineType
	})

	return result
}
