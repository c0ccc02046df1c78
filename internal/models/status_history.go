package models

import "time"

type OwnerType string

const (
	OwnerTypeApplication OwnerType = "application"
	OwnerTypeThesis      OwnerType = "thesis"
)

func (o OwnerType) IsValid() bool {
	return o == OwnerTypeApplication || o == OwnerTypeThesis
}

// StatusHistoryEntry is one row of the append-only status ledger.
// OldStatus is nil for the entry written on creation.
type StatusHistoryEntry struct {
	ID         string    `json:"id" db:"id"`
	OwnerType  OwnerType `json:"owner_type" db:"owner_type"`
	OwnerID    string    `json:"owner_id" db:"owner_id"`
	OldStatus  *string   `json:"old_status" db:"old_status"`
	NewStatus  string    `json:"new_status" db:"new_status"`
	ChangeDate time.Time `json:"change_date" db:"change_date"`
	Note       *string   `json:"note,omitempty" db:"note"`
	ChangedBy  string    `json:"changed_by,omitempty" db:"changed_by"`
}
