package lifecycle

import (
	"sort"
	"time"

	"github.com/RubachokBoss/thesis-service/internal/models"
)

type StepState string

const (
	StepCompleted StepState = "completed"
	StepActive    StepState = "active"
	StepFuture    StepState = "future"
	StepDisabled  StepState = "disabled"
)

type StepOutcome string

const (
	OutcomeApproved  StepOutcome = "approved"
	OutcomeRejected  StepOutcome = "rejected"
	OutcomeCancelled StepOutcome = "cancelled"
)

type Step struct {
	Key       string       `json:"key"`
	State     StepState    `json:"state"`
	Outcome   *StepOutcome `json:"outcome,omitempty"`
	ChangedAt *time.Time   `json:"changed_at,omitempty"`
	Note      *string      `json:"note,omitempty"`
}

// Actions lists what the UI may offer for the current status. Role checks
// happen in the service layer, not here.
type Actions struct {
	CanCancel              bool `json:"can_cancel"`
	CanDecide              bool `json:"can_decide"`
	CanStartThesis         bool `json:"can_start_thesis"`
	CanRequestConclusion   bool `json:"can_request_conclusion"`
	CanRequestCancellation bool `json:"can_request_cancellation"`
	CanSaveDraft           bool `json:"can_save_draft"`
	CanUpdateSupervisors   bool `json:"can_update_supervisors"`
	CanDecideConclusion    bool `json:"can_decide_conclusion"`
	CanDecideCancellation  bool `json:"can_decide_cancellation"`
	CanAdvance             bool `json:"can_advance"`
	CanUploadFinalThesis   bool `json:"can_upload_final_thesis"`
	CanFinalize            bool `json:"can_finalize"`
}

type ViewModel struct {
	Domain models.OwnerType `json:"domain"`
	// Status is the stored status, nil when it was missing or unrecognized.
	Status *string `json:"status"`
	// InferredStatus is the newStatus of the most recent history entry.
	InferredStatus   *string `json:"inferred_status,omitempty"`
	IntegrityWarning *string `json:"integrity_warning,omitempty"`
	CurrentStep      *string `json:"current_step"`
	Steps            []Step  `json:"steps"`
	Actions          Actions `json:"actions"`
}

var applicationSteps = []string{"pending", "decision"}

var thesisLinearSteps = []models.ThesisStatus{
	models.ThesisStatusOngoing,
	models.ThesisStatusConclusionRequested,
	models.ThesisStatusConclusionApproved,
	models.ThesisStatusAlmaLaurea,
	models.ThesisStatusCompiledQuestionnaire,
	models.ThesisStatusFinalExam,
	models.ThesisStatusFinalThesis,
	models.ThesisStatusDone,
}

var thesisCancelSteps = []models.ThesisStatus{
	models.ThesisStatusCancelRequested,
	models.ThesisStatusCancelApproved,
}

// backOutcomeNode maps the status a back-transition leaves to the outcome
// step rendered as rejected.
var backOutcomeNode = map[models.ThesisStatus]models.ThesisStatus{
	models.ThesisStatusConclusionRequested: models.ThesisStatusConclusionApproved,
	models.ThesisStatusFinalThesis:         models.ThesisStatusDone,
	models.ThesisStatusCancelRequested:     models.ThesisStatusCancelApproved,
}

// Project computes the view of an application or thesis from its stored
// status and history. The domain is never guessed from the status string.
func Project(domain models.OwnerType, status string, history []models.StatusHistoryEntry) (*ViewModel, error) {
	if !domain.IsValid() {
		ve := models.NewValidationError()
		ve.Add("domain", "must be application or thesis")
		return nil, ve
	}

	entries := make([]models.StatusHistoryEntry, 0, len(history))
	for _, e := range history {
		if e.OwnerType == "" || e.OwnerType == domain {
			entries = append(entries, e)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ChangeDate.Before(entries[j].ChangeDate)
	})

	vm := &ViewModel{Domain: domain}

	if isKnownStatus(domain, status) {
		s := status
		vm.Status = &s
	}

	var last *models.StatusHistoryEntry
	if len(entries) > 0 {
		last = &entries[len(entries)-1]
		if isKnownStatus(domain, last.NewStatus) {
			inferred := last.NewStatus
			vm.InferredStatus = &inferred
		}
	}

	switch {
	case vm.Status != nil && vm.InferredStatus != nil && *vm.Status != *vm.InferredStatus:
		msg := "stored status " + *vm.Status + " differs from history " + *vm.InferredStatus
		vm.IntegrityWarning = &msg
	case vm.Status == nil && status != "":
		msg := "unrecognized stored status " + status
		vm.IntegrityWarning = &msg
	}

	effective := vm.Status
	if effective == nil {
		effective = vm.InferredStatus
	}
	if effective == nil {
		vm.Steps = emptySteps(domain)
		return vm, nil
	}

	if domain == models.OwnerTypeApplication {
		projectApplication(vm, models.ApplicationStatus(*effective), entries)
	} else {
		projectThesis(vm, models.ThesisStatus(*effective), entries, last)
	}

	return vm, nil
}

func isKnownStatus(domain models.OwnerType, status string) bool {
	if domain == models.OwnerTypeApplication {
		return models.ApplicationStatus(status).IsValid()
	}
	return models.ThesisStatus(status).IsValid()
}

func emptySteps(domain models.OwnerType) []Step {
	var keys []string
	if domain == models.OwnerTypeApplication {
		keys = applicationSteps
	} else {
		for _, s := range thesisLinearSteps {
			keys = append(keys, string(s))
		}
		for _, s := range thesisCancelSteps {
			keys = append(keys, string(s))
		}
	}

	steps := make([]Step, 0, len(keys))
	for _, k := range keys {
		steps = append(steps, Step{Key: k, State: StepFuture})
	}
	return steps
}

// latestEntry returns the most recent entry whose newStatus is one of keys.
func latestEntry(entries []models.StatusHistoryEntry, keys ...string) *models.StatusHistoryEntry {
	for i := len(entries) - 1; i >= 0; i-- {
		for _, k := range keys {
			if entries[i].NewStatus == k {
				return &entries[i]
			}
		}
	}
	return nil
}

func attach(step *Step, e *models.StatusHistoryEntry) {
	if e == nil {
		return
	}
	at := e.ChangeDate
	step.ChangedAt = &at
	step.Note = e.Note
}

func outcome(o StepOutcome) *StepOutcome {
	return &o
}

func projectApplication(vm *ViewModel, status models.ApplicationStatus, entries []models.StatusHistoryEntry) {
	pending := Step{Key: "pending"}
	decision := Step{Key: "decision"}
	attach(&pending, latestEntry(entries, string(models.ApplicationStatusPending)))

	switch status {
	case models.ApplicationStatusPending:
		pending.State = StepActive
		decision.State = StepFuture
	case models.ApplicationStatusApproved:
		pending.State = StepCompleted
		decision.State = StepCompleted
		decision.Outcome = outcome(OutcomeApproved)
	case models.ApplicationStatusRejected:
		pending.State = StepCompleted
		decision.State = StepActive
		decision.Outcome = outcome(OutcomeRejected)
	case models.ApplicationStatusCancelled:
		pending.State = StepCompleted
		decision.State = StepDisabled
		decision.Outcome = outcome(OutcomeCancelled)
	}
	if status.IsTerminal() {
		attach(&decision, latestEntry(entries, string(status)))
	}

	current := string(status)
	vm.CurrentStep = &current
	vm.Steps = []Step{pending, decision}
	vm.Actions = Actions{
		CanCancel:      status == models.ApplicationStatusPending,
		CanDecide:      status == models.ApplicationStatusPending,
		CanStartThesis: status == models.ApplicationStatusApproved,
	}
}

func projectThesis(vm *ViewModel, status models.ThesisStatus, entries []models.StatusHistoryEntry, last *models.StatusHistoryEntry) {
	linear := make([]Step, len(thesisLinearSteps))
	for i, s := range thesisLinearSteps {
		linear[i] = Step{Key: string(s), State: StepFuture}
		attach(&linear[i], latestEntry(entries, string(s)))
	}
	cancel := make([]Step, len(thesisCancelSteps))
	for i, s := range thesisCancelSteps {
		cancel[i] = Step{Key: string(s), State: StepDisabled}
		attach(&cancel[i], latestEntry(entries, string(s)))
	}

	linearIndex := func(s models.ThesisStatus) int {
		for i, l := range thesisLinearSteps {
			if l == s {
				return i
			}
		}
		return -1
	}

	var rejectedFrom models.ThesisStatus
	if status == models.ThesisStatusOngoing && last != nil && last.OldStatus != nil &&
		IsBackTransition(models.ThesisStatus(*last.OldStatus), models.ThesisStatusOngoing) {
		rejectedFrom = models.ThesisStatus(*last.OldStatus)
	}

	switch {
	case rejectedFrom == models.ThesisStatusCancelRequested:
		linear[0].State = StepActive
		cancel[0].State = StepCompleted
		cancel[1].State = StepActive
		cancel[1].Outcome = outcome(OutcomeRejected)
		attach(&cancel[1], last)

	case rejectedFrom != "":
		node := linearIndex(backOutcomeNode[rejectedFrom])
		for i := 0; i < node; i++ {
			linear[i].State = StepCompleted
		}
		linear[node].State = StepActive
		linear[node].Outcome = outcome(OutcomeRejected)
		attach(&linear[node], last)

	case status == models.ThesisStatusCancelRequested || status == models.ThesisStatusCancelApproved:
		linear[0].State = StepCompleted
		for i := 1; i < len(linear); i++ {
			linear[i].State = StepDisabled
		}
		if status == models.ThesisStatusCancelRequested {
			cancel[0].State = StepActive
			cancel[1].State = StepFuture
		} else {
			cancel[0].State = StepCompleted
			cancel[1].State = StepCompleted
			cancel[1].Outcome = outcome(OutcomeApproved)
		}

	default:
		idx := linearIndex(status)
		for i := range linear {
			switch {
			case i < idx:
				linear[i].State = StepCompleted
			case i == idx:
				linear[i].State = StepActive
			}
		}
		if status == models.ThesisStatusDone {
			linear[idx].State = StepCompleted
			linear[idx].Outcome = outcome(OutcomeApproved)
		}
	}

	current := string(status)
	vm.CurrentStep = &current
	vm.Steps = append(linear, cancel...)

	ongoing := status == models.ThesisStatusOngoing
	vm.Actions = Actions{
		CanRequestConclusion:   ongoing,
		CanRequestCancellation: ongoing,
		CanSaveDraft:           ongoing,
		CanUpdateSupervisors:   ongoing,
		CanDecideConclusion:    status == models.ThesisStatusConclusionRequested,
		CanDecideCancellation:  status == models.ThesisStatusCancelRequested,
		CanUploadFinalThesis:   status == models.ThesisStatusFinalThesis,
		CanFinalize:            status == models.ThesisStatusFinalThesis,
	}
	_, vm.Actions.CanAdvance = ThesisTransitionFor(status, ThesisEventAdvance)
}
