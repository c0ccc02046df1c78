package models

type StatusChangedEvent struct {
	Type      string    `json:"type"`
	OwnerType OwnerType `json:"owner_type"`
	OwnerID   string    `json:"owner_id"`
	StudentID string    `json:"student_id"`
	OldStatus *string   `json:"old_status,omitempty"`
	NewStatus string    `json:"new_status"`
	Note      *string   `json:"note,omitempty"`
	ChangedBy string    `json:"changed_by,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

const (
	EventTypeApplicationStatusChanged = "application.status_changed"
	EventTypeThesisStatusChanged      = "thesis.status_changed"
	EventTypeThesisDocumentUploaded   = "thesis.document_uploaded"
)

// DocumentUploadedEvent asks the worker to have a stored document converted to PDF/A.
type DocumentUploadedEvent struct {
	Type      string       `json:"type"`
	ThesisID  string       `json:"thesis_id"`
	StudentID string       `json:"student_id"`
	Kind      DocumentKind `json:"kind"`
	ObjectKey string       `json:"object_key"`
	Timestamp int64        `json:"timestamp"`
}

type Notification struct {
	RecipientID string            `json:"recipient_id"`
	Template    string            `json:"template"`
	Params      map[string]string `json:"params"`
}

type ConversionRequest struct {
	ThesisID  string `json:"thesis_id"`
	ObjectKey string `json:"object_key"`
	Target    string `json:"target"`
}
