package lifecycle

import (
	"testing"
	"time"

	"github.com/RubachokBoss/thesis-service/internal/models"
)

func TestSeverityOf(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		deadline time.Time
		want     models.Severity
		days     int
	}{
		{"in three days", now.Add(3 * 24 * time.Hour), models.SeveritySoon, 3},
		{"yesterday", now.Add(-24 * time.Hour), models.SeverityOverdue, -1},
		{"same day earlier hour", time.Date(2025, 3, 10, 0, 5, 0, 0, time.UTC), models.SeverityToday, 0},
		{"same day later hour", time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC), models.SeverityToday, 0},
		{"seven days", now.AddDate(0, 0, 7), models.SeveritySoon, 7},
		{"eight days", now.AddDate(0, 0, 8), models.SeverityUpcoming, 8},
		{"tomorrow just after midnight", time.Date(2025, 3, 11, 0, 1, 0, 0, time.UTC), models.SeveritySoon, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SeverityOf(tt.deadline, now); got != tt.want {
				t.Fatalf("severity = %s, want %s", got, tt.want)
			}
			if got := DaysLeft(tt.deadline, now); got != tt.days {
				t.Fatalf("days = %d, want %d", got, tt.days)
			}
		})
	}
}

func TestDaysLeftUsesUTCDates(t *testing.T) {
	rome := time.FixedZone("CET", 3600)
	// 00:30 CET on the 11th is still the 10th in UTC.
	deadline := time.Date(2025, 3, 11, 0, 30, 0, 0, rome)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	if got := DaysLeft(deadline, now); got != 0 {
		t.Fatalf("days = %d, want 0", got)
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSelectSession(t *testing.T) {
	now := day(2025, 3, 1)
	sessions := []models.GraduationSessionWithDeadlines{
		{
			GraduationSession: models.GraduationSession{ID: "past"},
			Deadlines: []models.Deadline{
				{DeadlineType: models.DeadlineTypeThesisRequest, DeadlineDate: day(2025, 1, 10)},
				{DeadlineType: models.DeadlineTypeConclusionRequest, DeadlineDate: day(2025, 3, 20)},
			},
		},
		{
			GraduationSession: models.GraduationSession{ID: "summer"},
			Deadlines: []models.Deadline{
				{DeadlineType: models.DeadlineTypeThesisRequest, DeadlineDate: day(2025, 4, 1)},
				{DeadlineType: models.DeadlineTypeConclusionRequest, DeadlineDate: day(2025, 6, 1)},
			},
		},
		{
			GraduationSession: models.GraduationSession{ID: "autumn"},
			Deadlines: []models.Deadline{
				{DeadlineType: models.DeadlineTypeThesisRequest, DeadlineDate: day(2025, 8, 1)},
				{DeadlineType: models.DeadlineTypeConclusionRequest, DeadlineDate: day(2025, 10, 1)},
			},
		},
	}

	s, ok := SelectSession(sessions, models.PhaseThesis, now)
	if !ok || s.ID != "past" {
		t.Fatalf("thesis phase picked %v", s)
	}

	s, ok = SelectSession(sessions, models.PhaseNoApplication, now)
	if !ok || s.ID != "summer" {
		t.Fatalf("no_application phase picked %v", s)
	}

	s, ok = SelectSession(sessions[:1], models.PhaseApplication, now)
	if !ok || s.ID != "past" {
		t.Fatalf("fallback to any future deadline failed: %v", s)
	}

	if _, ok := SelectSession(sessions, models.PhaseThesis, day(2026, 1, 1)); ok {
		t.Fatal("no session expected once every deadline has passed")
	}
}

func TestDeadlineStatusesSorted(t *testing.T) {
	now := day(2025, 3, 1)
	got := DeadlineStatuses([]models.Deadline{
		{DeadlineType: models.DeadlineTypeIELTS, DeadlineDate: day(2025, 5, 1)},
		{DeadlineType: models.DeadlineTypeExams, DeadlineDate: day(2025, 2, 1)},
		{DeadlineType: models.DeadlineTypeConclusionRequest, DeadlineDate: day(2025, 3, 1)},
	}, now)

	want := []models.Severity{models.SeverityOverdue, models.SeverityToday, models.SeverityUpcoming}
	for i, w := range want {
		if got[i].Severity != w {
			t.Fatalf("entry %d severity = %s, want %s", i, got[i].Severity, w)
		}
	}
	if got[0].DaysLeft != -28 {
		t.Fatalf("days left = %d", got[0].DaysLeft)
	}
}
