package lifecycle

import (
	"testing"

	"github.com/RubachokBoss/thesis-service/internal/models"
)

var allThesisStatuses = []models.ThesisStatus{
	models.ThesisStatusOngoing,
	models.ThesisStatusCancelRequested,
	models.ThesisStatusCancelApproved,
	models.ThesisStatusConclusionRequested,
	models.ThesisStatusConclusionApproved,
	models.ThesisStatusAlmaLaurea,
	models.ThesisStatusCompiledQuestionnaire,
	models.ThesisStatusFinalExam,
	models.ThesisStatusFinalThesis,
	models.ThesisStatusDone,
}

func TestThesisTransitionsAreClosed(t *testing.T) {
	for _, tr := range thesisTransitions {
		if !tr.From.IsValid() || !tr.To.IsValid() {
			t.Fatalf("transition %+v uses an unknown status", tr)
		}
		if tr.From.IsTerminal() {
			t.Fatalf("transition %+v leaves a terminal status", tr)
		}
		if tr.Back && tr.To != models.ThesisStatusOngoing {
			t.Fatalf("back transition %+v must return to ongoing", tr)
		}
	}
}

func TestEveryNonTerminalThesisStatusHasAnExit(t *testing.T) {
	for _, s := range allThesisStatuses {
		events := AllowedThesisEvents(s)
		if s.IsTerminal() && len(events) != 0 {
			t.Fatalf("terminal status %s allows %v", s, events)
		}
		if !s.IsTerminal() && len(events) == 0 {
			t.Fatalf("status %s has no outgoing transition", s)
		}
	}
}

func TestThesisTransitionFor(t *testing.T) {
	tests := []struct {
		from models.ThesisStatus
		ev   ThesisEvent
		want models.ThesisStatus
		ok   bool
	}{
		{models.ThesisStatusOngoing, ThesisEventRequestConclusion, models.ThesisStatusConclusionRequested, true},
		{models.ThesisStatusConclusionRequested, ThesisEventRejectConclusion, models.ThesisStatusOngoing, true},
		{models.ThesisStatusConclusionApproved, ThesisEventAdvance, models.ThesisStatusAlmaLaurea, true},
		{models.ThesisStatusFinalExam, ThesisEventAdvance, models.ThesisStatusFinalThesis, true},
		{models.ThesisStatusFinalThesis, ThesisEventAdvance, "", false},
		{models.ThesisStatusFinalThesis, ThesisEventRejectFinal, models.ThesisStatusOngoing, true},
		{models.ThesisStatusDone, ThesisEventRequestCancellation, "", false},
		{models.ThesisStatusConclusionRequested, ThesisEventRequestConclusion, "", false},
		{models.ThesisStatusCancelRequested, ThesisEventApproveCancellation, models.ThesisStatusCancelApproved, true},
	}

	for _, tt := range tests {
		tr, ok := ThesisTransitionFor(tt.from, tt.ev)
		if ok != tt.ok {
			t.Fatalf("%s/%s: ok = %v, want %v", tt.from, tt.ev, ok, tt.ok)
		}
		if ok && tr.To != tt.want {
			t.Fatalf("%s/%s: to = %s, want %s", tt.from, tt.ev, tr.To, tt.want)
		}
	}
}

func TestThesisEventForResolvesStaffTargets(t *testing.T) {
	ev, ok := ThesisEventFor(models.ThesisStatusConclusionRequested, models.ThesisStatusOngoing)
	if !ok || ev != ThesisEventRejectConclusion {
		t.Fatalf("got %q, %v", ev, ok)
	}
	if _, ok := ThesisEventFor(models.ThesisStatusOngoing, models.ThesisStatusDone); ok {
		t.Fatal("ongoing -> done must not resolve")
	}
	if !IsBackTransition(models.ThesisStatusCancelRequested, models.ThesisStatusOngoing) {
		t.Fatal("cancellation rejection is a back transition")
	}
	if IsBackTransition(models.ThesisStatusOngoing, models.ThesisStatusConclusionRequested) {
		t.Fatal("conclusion request is not a back transition")
	}
}

func TestApplicationTransitionsOnlyFromPending(t *testing.T) {
	for _, from := range []models.ApplicationStatus{
		models.ApplicationStatusApproved,
		models.ApplicationStatusRejected,
		models.ApplicationStatusCancelled,
	} {
		for _, ev := range []ApplicationEvent{ApplicationEventApprove, ApplicationEventReject, ApplicationEventCancel} {
			if _, ok := NextApplicationStatus(from, ev); ok {
				t.Fatalf("%s/%s must be rejected", from, ev)
			}
		}
	}

	to, ok := NextApplicationStatus(models.ApplicationStatusPending, ApplicationDecisionEvent(models.DecisionRejected))
	if !ok || to != models.ApplicationStatusRejected {
		t.Fatalf("got %s, %v", to, ok)
	}
	if ev, ok := ApplicationEventFor(models.ApplicationStatusPending, models.ApplicationStatusCancelled); !ok || ev != ApplicationEventCancel {
		t.Fatalf("got %s, %v", ev, ok)
	}
}
