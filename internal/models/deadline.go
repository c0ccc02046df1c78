package models

import "time"

type DeadlineType string

const (
	DeadlineTypeThesisRequest         DeadlineType = "thesis_request"
	DeadlineTypeExams                 DeadlineType = "exams"
	DeadlineTypeInternshipReport      DeadlineType = "internship_report"
	DeadlineTypeConclusionRequest     DeadlineType = "conclusion_request"
	DeadlineTypeFinalExamRegistration DeadlineType = "final_exam_registration"
	DeadlineTypeIELTS                 DeadlineType = "ielts"
)

type Phase string

const (
	PhaseThesis        Phase = "thesis"
	PhaseApplication   Phase = "application"
	PhaseNoApplication Phase = "no_application"
)

func (p Phase) IsValid() bool {
	return p == PhaseThesis || p == PhaseApplication || p == PhaseNoApplication
}

type Severity string

const (
	SeverityOverdue  Severity = "overdue"
	SeverityToday    Severity = "today"
	SeveritySoon     Severity = "soon"
	SeverityUpcoming Severity = "upcoming"
)

type GraduationSession struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	NameEn    string    `json:"name_en" db:"name_en"`
	StartDate time.Time `json:"start_date" db:"start_date"`
	EndDate   time.Time `json:"end_date" db:"end_date"`
}

type Deadline struct {
	ID                  string       `json:"id" db:"id"`
	DeadlineType        DeadlineType `json:"deadline_type" db:"deadline_type"`
	GraduationSessionID string       `json:"graduation_session_id" db:"graduation_session_id"`
	DeadlineDate        time.Time    `json:"deadline_date" db:"deadline_date"`
}

type GraduationSessionWithDeadlines struct {
	GraduationSession
	Deadlines []Deadline `json:"deadlines"`
}

type DeadlineStatus struct {
	Deadline
	DaysLeft int      `json:"days_left"`
	Severity Severity `json:"severity"`
}

type DeadlinesResponse struct {
	Phase             Phase             `json:"phase"`
	GraduationSession GraduationSession `json:"graduation_session"`
	Deadlines         []DeadlineStatus  `json:"deadlines"`
}
