package models

import (
	"time"
)

type Application struct {
	ID              string            `json:"id" db:"id"`
	StudentID       string            `json:"student_id" db:"student_id"`
	SupervisorID    string            `json:"supervisor_id" db:"supervisor_id"`
	CoSupervisorIDs []string          `json:"co_supervisor_ids" db:"co_supervisor_ids"`
	CompanyID       *string           `json:"company_id,omitempty" db:"company_id"`
	Topic           string            `json:"topic" db:"topic"`
	Description     *string           `json:"description,omitempty" db:"description"`
	SubmissionDate  time.Time         `json:"submission_date" db:"submission_date"`
	Status          ApplicationStatus `json:"status" db:"status"`
	UpdatedAt       time.Time         `json:"updated_at" db:"updated_at"`
}

type ApplicationStatus string

const (
	ApplicationStatusPending   ApplicationStatus = "pending"
	ApplicationStatusApproved  ApplicationStatus = "approved"
	ApplicationStatusRejected  ApplicationStatus = "rejected"
	ApplicationStatusCancelled ApplicationStatus = "cancelled"
)

func (s ApplicationStatus) String() string {
	return string(s)
}

func (s ApplicationStatus) IsValid() bool {
	switch s {
	case ApplicationStatusPending, ApplicationStatusApproved, ApplicationStatusRejected, ApplicationStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further application transition exists.
func (s ApplicationStatus) IsTerminal() bool {
	return s == ApplicationStatusApproved || s == ApplicationStatusRejected || s == ApplicationStatusCancelled
}

type Supervisor struct {
	ID        string    `json:"id" db:"id"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name" db:"last_name"`
	Email     string    `json:"email" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
