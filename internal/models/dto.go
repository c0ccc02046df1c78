package models

import "time"

// Data Transfer Objects

type CreateApplicationRequest struct {
	StudentID       string   `json:"student_id"`
	SupervisorID    string   `json:"supervisor_id"`
	CoSupervisorIDs []string `json:"co_supervisor_ids"`
	Topic           string   `json:"topic"`
	Description     *string  `json:"description,omitempty"`
	CompanyID       *string  `json:"company_id,omitempty"`
}

type UpdateApplicationStatusRequest struct {
	OldStatus ApplicationStatus `json:"old_status"`
	NewStatus ApplicationStatus `json:"new_status"`
	Note      *string           `json:"note,omitempty"`
}

type StartThesisRequest struct {
	ApplicationID string `json:"application_id"`
}

type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

func (d Decision) IsValid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

type DecisionRequest struct {
	Decision Decision `json:"decision"`
	Note     *string  `json:"note,omitempty"`
}

type UpdateThesisStatusRequest struct {
	NewStatus ThesisStatus `json:"new_status"`
	Note      *string      `json:"note,omitempty"`
}

type UpdateSupervisorsRequest struct {
	SupervisorID    string   `json:"supervisor_id"`
	CoSupervisorIDs []string `json:"co_supervisor_ids"`
}

type Authorization string

const (
	AuthorizationAuthorize Authorization = "authorize"
	AuthorizationDeny      Authorization = "deny"
)

type DocumentKind string

const (
	DocumentKindThesis        DocumentKind = "thesis"
	DocumentKindSummary       DocumentKind = "summary"
	DocumentKindResume        DocumentKind = "resume"
	DocumentKindAdditionalZip DocumentKind = "additional_zip"
	DocumentKindFinalThesis   DocumentKind = "final_thesis"
)

func (k DocumentKind) IsValid() bool {
	switch k {
	case DocumentKindThesis, DocumentKindSummary, DocumentKindResume, DocumentKindAdditionalZip, DocumentKindFinalThesis:
		return true
	default:
		return false
	}
}

// ConclusionFiles holds storage object keys of already uploaded documents.
type ConclusionFiles struct {
	ThesisFile    *string `json:"thesis_file,omitempty"`
	SummaryFile   *string `json:"summary_file,omitempty"`
	ResumeFile    *string `json:"resume_file,omitempty"`
	AdditionalZip *string `json:"additional_zip,omitempty"`
}

type ConclusionDetails struct {
	Title                  string          `json:"title"`
	TitleEn                *string         `json:"title_en,omitempty"`
	Abstract               string          `json:"abstract"`
	AbstractEn             *string         `json:"abstract_en,omitempty"`
	Language               string          `json:"language"`
	SupervisorConfirmation bool            `json:"supervisor_confirmation"`
	Authorization          Authorization   `json:"authorization"`
	LicenseID              *int            `json:"license_id,omitempty"`
	Embargo                *Embargo        `json:"embargo,omitempty"`
	Files                  ConclusionFiles `json:"files"`
}

// ConclusionDraft is a partial ConclusionDetails; nil fields are left untouched.
type ConclusionDraft struct {
	Title      *string `json:"title,omitempty"`
	TitleEn    *string `json:"title_en,omitempty"`
	Abstract   *string `json:"abstract,omitempty"`
	AbstractEn *string `json:"abstract_en,omitempty"`
	Language   *string `json:"language,omitempty"`
}

type EligibilityResponse struct {
	StudentID string `json:"student_id"`
	Eligible  bool   `json:"eligible"`
	Reason    string `json:"reason,omitempty"`
}

type DocumentURLResponse struct {
	Kind      DocumentKind `json:"kind"`
	URL       string       `json:"url"`
	ExpiresAt time.Time    `json:"expires_at"`
}

type ApplicationsResponse struct {
	Applications []Application `json:"applications"`
	Total        int           `json:"total"`
}
