package models

import (
	"time"
)

type Thesis struct {
	ID              string       `json:"id" db:"id"`
	ApplicationID   string       `json:"application_id" db:"application_id"`
	StudentID       string       `json:"student_id" db:"student_id"`
	SupervisorID    string       `json:"supervisor_id" db:"supervisor_id"`
	CoSupervisorIDs []string     `json:"co_supervisor_ids" db:"co_supervisor_ids"`
	CompanyID       *string      `json:"company_id,omitempty" db:"company_id"`
	Topic           string       `json:"topic" db:"topic"`
	Title           *string      `json:"title,omitempty" db:"title"`
	TitleEn         *string      `json:"title_en,omitempty" db:"title_en"`
	Abstract        *string      `json:"abstract,omitempty" db:"abstract"`
	AbstractEn      *string      `json:"abstract_en,omitempty" db:"abstract_en"`
	Language        *string      `json:"language,omitempty" db:"language"`
	LicenseID       *int         `json:"license_id,omitempty" db:"license_id"`
	Embargo         *Embargo     `json:"embargo,omitempty"`
	Status          ThesisStatus `json:"status" db:"status"`

	ThesisStartDate                  time.Time  `json:"thesis_start_date" db:"thesis_start_date"`
	ThesisConclusionRequestDate      *time.Time `json:"thesis_conclusion_request_date,omitempty" db:"thesis_conclusion_request_date"`
	ThesisConclusionConfirmationDate *time.Time `json:"thesis_conclusion_confirmation_date,omitempty" db:"thesis_conclusion_confirmation_date"`
	ThesisDraftDate                  *time.Time `json:"thesis_draft_date,omitempty" db:"thesis_draft_date"`

	ThesisFilePath      *string `json:"thesis_file_path,omitempty" db:"thesis_file_path"`
	SummaryFilePath     *string `json:"summary_file_path,omitempty" db:"summary_file_path"`
	ResumeFilePath      *string `json:"resume_file_path,omitempty" db:"resume_file_path"`
	AdditionalZipPath   *string `json:"additional_zip_path,omitempty" db:"additional_zip_path"`
	FinalThesisFilePath *string `json:"final_thesis_file_path,omitempty" db:"final_thesis_file_path"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type ThesisStatus string

const (
	ThesisStatusOngoing               ThesisStatus = "ongoing"
	ThesisStatusCancelRequested       ThesisStatus = "cancel_requested"
	ThesisStatusCancelApproved        ThesisStatus = "cancel_approved"
	ThesisStatusConclusionRequested   ThesisStatus = "conclusion_requested"
	ThesisStatusConclusionApproved    ThesisStatus = "conclusion_approved"
	ThesisStatusAlmaLaurea            ThesisStatus = "almalaurea"
	ThesisStatusCompiledQuestionnaire ThesisStatus = "compiled_questionnaire"
	ThesisStatusFinalExam             ThesisStatus = "final_exam"
	ThesisStatusFinalThesis           ThesisStatus = "final_thesis"
	ThesisStatusDone                  ThesisStatus = "done"
)

func (s ThesisStatus) String() string {
	return string(s)
}

func (s ThesisStatus) IsValid() bool {
	switch s {
	case ThesisStatusOngoing, ThesisStatusCancelRequested, ThesisStatusCancelApproved,
		ThesisStatusConclusionRequested, ThesisStatusConclusionApproved, ThesisStatusAlmaLaurea,
		ThesisStatusCompiledQuestionnaire, ThesisStatusFinalExam, ThesisStatusFinalThesis, ThesisStatusDone:
		return true
	default:
		return false
	}
}

func (s ThesisStatus) IsTerminal() bool {
	return s == ThesisStatusCancelApproved || s == ThesisStatusDone
}

// ClearConclusion drops everything a rejected conclusion request left behind.
func (t *Thesis) ClearConclusion() {
	t.LicenseID = nil
	t.Embargo = nil
	t.ThesisConclusionRequestDate = nil
	t.ThesisConclusionConfirmationDate = nil
	t.ThesisFilePath = nil
	t.SummaryFilePath = nil
	t.ResumeFilePath = nil
	t.AdditionalZipPath = nil
	t.FinalThesisFilePath = nil
}

type EmbargoDuration string

const (
	EmbargoDuration12Months             EmbargoDuration = "12_months"
	EmbargoDuration18Months             EmbargoDuration = "18_months"
	EmbargoDuration36Months             EmbargoDuration = "36_months"
	EmbargoDurationAfterExplicitConsent EmbargoDuration = "after_explicit_consent"
)

func (d EmbargoDuration) IsValid() bool {
	switch d {
	case EmbargoDuration12Months, EmbargoDuration18Months, EmbargoDuration36Months, EmbargoDurationAfterExplicitConsent:
		return true
	default:
		return false
	}
}

const (
	MinEmbargoMotivationID = 1
	MaxEmbargoMotivationID = 7
	// OtherMotivationID requires OtherMotivation free text.
	OtherMotivationID = 7
)

type Embargo struct {
	Duration        EmbargoDuration `json:"duration" db:"duration"`
	MotivationIDs   []int           `json:"motivation_ids" db:"motivation_ids"`
	OtherMotivation *string         `json:"other_motivation,omitempty" db:"other_motivation"`
}

// DocumentPath returns the stored object key for kind, nil when not uploaded.
func (t *Thesis) DocumentPath(kind DocumentKind) *string {
	switch kind {
	case DocumentKindThesis:
		return t.ThesisFilePath
	case DocumentKindSummary:
		return t.SummaryFilePath
	case DocumentKindResume:
		return t.ResumeFilePath
	case DocumentKindAdditionalZip:
		return t.AdditionalZipPath
	case DocumentKindFinalThesis:
		return t.FinalThesisFilePath
	default:
		return nil
	}
}

func (t *Thesis) SetDocumentPath(kind DocumentKind, key string) {
	switch kind {
	case DocumentKindThesis:
		t.ThesisFilePath = &key
	case DocumentKindSummary:
		t.SummaryFilePath = &key
	case DocumentKindResume:
		t.ResumeFilePath = &key
	case DocumentKindAdditionalZip:
		t.AdditionalZipPath = &key
	case DocumentKindFinalThesis:
		t.FinalThesisFilePath = &key
	}
}
