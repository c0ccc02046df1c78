// Package lifecycle holds the pure rules of the application and thesis
// lifecycles: transition tables, conclusion validation, deadline bands and
// the view projection consumed by the UI.
package lifecycle

import "github.com/RubachokBoss/thesis-service/internal/models"

type ApplicationEvent string

const (
	ApplicationEventApprove ApplicationEvent = "approve"
	ApplicationEventReject  ApplicationEvent = "reject"
	ApplicationEventCancel  ApplicationEvent = "cancel"
)

type ApplicationTransition struct {
	From  models.ApplicationStatus
	Event ApplicationEvent
	To    models.ApplicationStatus
}

var applicationTransitions = []ApplicationTransition{
	{From: models.ApplicationStatusPending, Event: ApplicationEventApprove, To: models.ApplicationStatusApproved},
	{From: models.ApplicationStatusPending, Event: ApplicationEventReject, To: models.ApplicationStatusRejected},
	{From: models.ApplicationStatusPending, Event: ApplicationEventCancel, To: models.ApplicationStatusCancelled},
}

// NextApplicationStatus returns the target of event from the given status.
func NextApplicationStatus(from models.ApplicationStatus, ev ApplicationEvent) (models.ApplicationStatus, bool) {
	for _, tr := range applicationTransitions {
		if tr.From == from && tr.Event == ev {
			return tr.To, true
		}
	}
	return "", false
}

// ApplicationEventFor resolves the event that moves from one status to another.
func ApplicationEventFor(from, to models.ApplicationStatus) (ApplicationEvent, bool) {
	for _, tr := range applicationTransitions {
		if tr.From == from && tr.To == to {
			return tr.Event, true
		}
	}
	return "", false
}

type ThesisEvent string

const (
	ThesisEventRequestCancellation ThesisEvent = "request_cancellation"
	ThesisEventApproveCancellation ThesisEvent = "approve_cancellation"
	ThesisEventRejectCancellation  ThesisEvent = "reject_cancellation"
	ThesisEventRequestConclusion   ThesisEvent = "request_conclusion"
	ThesisEventApproveConclusion   ThesisEvent = "approve_conclusion"
	ThesisEventRejectConclusion    ThesisEvent = "reject_conclusion"
	ThesisEventAdvance             ThesisEvent = "advance"
	ThesisEventApproveFinal        ThesisEvent = "approve_final"
	ThesisEventRejectFinal         ThesisEvent = "reject_final"
)

type ThesisTransition struct {
	From  models.ThesisStatus
	Event ThesisEvent
	To    models.ThesisStatus
	// Back marks a rejection that returns the thesis to ongoing.
	Back bool
}

var thesisTransitions = []ThesisTransition{
	// Cancellation branch
	{From: models.ThesisStatusOngoing, Event: ThesisEventRequestCancellation, To: models.ThesisStatusCancelRequested},
	{From: models.ThesisStatusCancelRequested, Event: ThesisEventApproveCancellation, To: models.ThesisStatusCancelApproved},
	{From: models.ThesisStatusCancelRequested, Event: ThesisEventRejectCancellation, To: models.ThesisStatusOngoing, Back: true},

	// Conclusion branch
	{From: models.ThesisStatusOngoing, Event: ThesisEventRequestConclusion, To: models.ThesisStatusConclusionRequested},
	{From: models.ThesisStatusConclusionRequested, Event: ThesisEventApproveConclusion, To: models.ThesisStatusConclusionApproved},
	{From: models.ThesisStatusConclusionRequested, Event: ThesisEventRejectConclusion, To: models.ThesisStatusOngoing, Back: true},

	// Administrative steps
	{From: models.ThesisStatusConclusionApproved, Event: ThesisEventAdvance, To: models.ThesisStatusAlmaLaurea},
	{From: models.ThesisStatusAlmaLaurea, Event: ThesisEventAdvance, To: models.ThesisStatusCompiledQuestionnaire},
	{From: models.ThesisStatusCompiledQuestionnaire, Event: ThesisEventAdvance, To: models.ThesisStatusFinalExam},
	{From: models.ThesisStatusFinalExam, Event: ThesisEventAdvance, To: models.ThesisStatusFinalThesis},

	// Final review
	{From: models.ThesisStatusFinalThesis, Event: ThesisEventApproveFinal, To: models.ThesisStatusDone},
	{From: models.ThesisStatusFinalThesis, Event: ThesisEventRejectFinal, To: models.ThesisStatusOngoing, Back: true},
}

// ThesisTransitionFor returns the allowed transition for a given state+event.
func ThesisTransitionFor(from models.ThesisStatus, ev ThesisEvent) (ThesisTransition, bool) {
	for _, tr := range thesisTransitions {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return ThesisTransition{}, false
}

// ThesisEventFor resolves the event that moves from one status to another.
func ThesisEventFor(from, to models.ThesisStatus) (ThesisEvent, bool) {
	for _, tr := range thesisTransitions {
		if tr.From == from && tr.To == to {
			return tr.Event, true
		}
	}
	return "", false
}

// AllowedThesisEvents lists the events legal from status, in table order.
func AllowedThesisEvents(from models.ThesisStatus) []ThesisEvent {
	var events []ThesisEvent
	for _, tr := range thesisTransitions {
		if tr.From == from {
			events = append(events, tr.Event)
		}
	}
	return events
}

// IsBackTransition reports whether from->to is a rejection back to ongoing.
func IsBackTransition(from, to models.ThesisStatus) bool {
	for _, tr := range thesisTransitions {
		if tr.From == from && tr.To == to {
			return tr.Back
		}
	}
	return false
}

// ApplicationDecisionEvent maps a staff decision to its application event.
func ApplicationDecisionEvent(d models.Decision) ApplicationEvent {
	if d == models.DecisionApproved {
		return ApplicationEventApprove
	}
	return ApplicationEventReject
}

func ConclusionDecisionEvent(d models.Decision) ThesisEvent {
	if d == models.DecisionApproved {
		return ThesisEventApproveConclusion
	}
	return ThesisEventRejectConclusion
}

func CancellationDecisionEvent(d models.Decision) ThesisEvent {
	if d == models.DecisionApproved {
		return ThesisEventApproveCancellation
	}
	return ThesisEventRejectCancellation
}

func FinalDecisionEvent(d models.Decision) ThesisEvent {
	if d == models.DecisionApproved {
		return ThesisEventApproveFinal
	}
	return ThesisEventRejectFinal
}
