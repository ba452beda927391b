package workflow

import (
	"errors"
	"reflect"
	"testing"
)

func TestCheckTransition(t *testing.T) {
	cases := []struct {
		from   Status
		action Action
		ok     bool
	}{
		{StatusDraft, ActionSubmit, true},
		{StatusSubmitted, ActionSubmit, false},
		{StatusSubmitted, ActionAdvanceStage, true},
		{StatusInReview, ActionAdvanceStage, true},
		{StatusRevisionNeeded, ActionAdvanceStage, false},
		{StatusRevisionNeeded, ActionSubmitRevision, true},
		{StatusInReview, ActionSubmitRevision, false},
		{StatusRevisionNeeded, ActionReject, true},
		{StatusDraft, ActionCancel, true},
		{StatusCompleted, ActionCancel, false},
		{StatusRejected, ActionCancel, false},
		{StatusCancelled, ActionCancel, false},
	}
	for _, tc := range cases {
		err := CheckTransition(tc.from, tc.action)
		if tc.ok && err != nil {
			t.Fatalf("%s from %s: unexpected error %v", tc.action, tc.from, err)
		}
		if !tc.ok {
			var ite *InvalidTransitionError
			if !errors.As(err, &ite) {
				t.Fatalf("%s from %s: expected InvalidTransitionError, got %v", tc.action, tc.from, err)
			}
		}
	}
}

func TestTerminalStatusesAllowNothing(t *testing.T) {
	for _, s := range []Status{StatusApproved, StatusRejected, StatusCompleted, StatusCancelled} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
		if got := AllowedActions(s); len(got) != 0 {
			t.Fatalf("%s allows %v", s, got)
		}
	}
}

func TestAllowedActionsInReview(t *testing.T) {
	want := []Action{ActionAdvanceStage, ActionReturnStage, ActionRequestRevision, ActionReject, ActionComplete, ActionCancel}
	if got := AllowedActions(StatusInReview); !reflect.DeepEqual(got, want) {
		t.Fatalf("AllowedActions(in_review) = %v", got)
	}
}

func TestDecision(t *testing.T) {
	if Decision("maybe").Valid() {
		t.Fatalf("unknown decision must be invalid")
	}
	if DecisionRejected.AssignmentStatus() != AssignmentRejected ||
		DecisionRevisionNeeded.AssignmentStatus() != AssignmentRevisionNeeded ||
		DecisionApproved.AssignmentStatus() != AssignmentApproved {
		t.Fatalf("decision to assignment mapping broken")
	}
}
