package service

import (
	stderrors "errors"
	"testing"

	"github.com/pesio-ai/be-ip-review/internal/platform/errors"
	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

func TestReview_ApprovalBlockedLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	fx := h.seedPatent()
	sub := h.atFormalReview(fx)
	doc := h.upload(sub.ID, fx.checklist.ID)

	before := h.submission(sub.ID)
	assignmentsBefore := len(h.assignments(sub.ID))
	entriesBefore := len(h.entries(sub.ID))

	notes := "checklist unsigned"
	_, err := h.review.ProcessReviewDecision(h.ctx, ReviewDecisionRequest{
		SubmissionID:    sub.ID,
		ReviewerID:      reviewerTwo,
		Decision:        workflow.DecisionApproved,
		Notes:           validNotes,
		DocumentUpdates: []DocumentUpdate{{DocumentID: doc.ID, Status: workflow.DocumentRevisionNeeded, Notes: &notes}},
	})
	var gate *workflow.GateNotSatisfiedError
	if !stderrors.As(err, &gate) {
		t.Fatalf("expected GateNotSatisfiedError, got %v", err)
	}
	if gate.Scope != workflow.ScopeStage || gate.RequirementIDs()[0] != fx.checklist.ID {
		t.Fatalf("gate = %+v", gate)
	}

	after := h.submission(sub.ID)
	if after.Version != before.Version || workflow.Deref(after.CurrentStageID) != fx.formal.ID {
		t.Fatal("submission mutated by a blocked approval")
	}
	if n := len(h.assignments(sub.ID)); n != assignmentsBefore {
		t.Fatalf("assignments %d -> %d", assignmentsBefore, n)
	}
	if n := len(h.entries(sub.ID)); n != entriesBefore {
		t.Fatalf("entries %d -> %d", entriesBefore, n)
	}
	if got := h.document(doc.ID); got.Status != workflow.DocumentPending || got.Notes != nil {
		t.Fatalf("document update survived: %+v", got)
	}
}

func TestReview_ApproveAdvancesToNamedReviewer(t *testing.T) {
	h := newHarness(t)
	fx := h.seedPatent()
	sub := h.inReview(fx)
	h.uploadApproved(sub.ID, fx.checklist.ID)

	got, err := h.review.ProcessReviewDecision(h.ctx, ReviewDecisionRequest{
		SubmissionID:   sub.ID,
		ReviewerID:     reviewerOne,
		Decision:       workflow.DecisionApproved,
		Notes:          validNotes,
		NextStageID:    fx.formal.ID,
		NextReviewerID: reviewerTwo,
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if workflow.Deref(got.CurrentStageID) != fx.formal.ID || got.Status != workflow.StatusInReview {
		t.Fatalf("got stage=%s status=%s", workflow.Deref(got.CurrentStageID), got.Status)
	}
	h.assertStageBelongsToType(got)

	next := h.activeAssignment(sub.ID, fx.formal.ID)
	if next == nil || workflow.Deref(next.ReviewerID) != reviewerTwo {
		t.Fatalf("next assignment = %+v", next)
	}
	for _, a := range h.assignments(sub.ID) {
		if a.StageID == fx.intake.ID && (a.Status != workflow.AssignmentApproved || workflow.Deref(a.CompletedBy) != reviewerOne) {
			t.Fatalf("intake assignment = %+v", a)
		}
	}

	entries := h.entries(sub.ID)
	decision, advance := entries[len(entries)-2], entries[len(entries)-1]
	if decision.Action != workflow.ActionReviewDecision || workflow.Deref(decision.StageID) != fx.intake.ID {
		t.Fatalf("decision entry = %+v", decision)
	}
	if decision.TargetStatus != workflow.StatusInReview {
		t.Fatalf("decision target status = %s", decision.TargetStatus)
	}
	if decision.Metadata["reviewer_role"] != "clerk" || decision.Metadata["submission_type"] != "patent" || decision.Metadata["requirements_satisfied"] != true {
		t.Fatalf("review metadata = %+v", decision.Metadata)
	}
	if advance.Action != workflow.ActionAdvanceStage || workflow.Deref(advance.StageID) != fx.formal.ID {
		t.Fatalf("advance entry = %+v", advance)
	}
	if countEntries(entries, workflow.ActionAdvanceStage) != 1 {
		t.Fatal("expected one advance entry")
	}

	recipients := map[workflow.EventType]string{}
	for _, ev := range h.events(sub.ID) {
		recipients[ev.Type] = ev.RecipientID
	}
	if recipients[workflow.EventAdvanced] != ownerID || recipients[workflow.EventAssigned] != reviewerTwo {
		t.Fatalf("events = %+v", recipients)
	}
}

func TestReview_ApproveRequiresNextStage(t *testing.T) {
	h := newHarness(t)
	fx := h.seedPatent()
	sub := h.inReview(fx)
	h.uploadApproved(sub.ID, fx.checklist.ID)

	_, err := h.review.ProcessReviewDecision(h.ctx, ReviewDecisionRequest{
		SubmissionID: sub.ID,
		ReviewerID:   reviewerOne,
		Decision:     workflow.DecisionApproved,
		Notes:        validNotes,
	})
	var ve *workflow.ValidationError
	if !stderrors.As(err, &ve) || ve.Field != "next_stage_id" {
		t.Fatalf("expected ValidationError on next_stage_id, got %v", err)
	}

	_, err = h.review.ProcessReviewDecision(h.ctx, ReviewDecisionRequest{
		SubmissionID: sub.ID,
		ReviewerID:   reviewerOne,
		Decision:     workflow.DecisionApproved,
		Notes:        validNotes,
		NextStageID:  fx.intake.ID,
	})
	if !stderrors.As(err, &ve) || ve.Field != "next_stage_id" {
		t.Fatalf("expected ValidationError for the wrong next stage, got %v", err)
	}
}

func TestReview_IntermediateApprovalIgnoresTypeRequirements(t *testing.T) {
	h := newHarness(t)
	fx := h.seedPatent()
	sub := h.inReview(fx)

	got, err := h.review.ProcessReviewDecision(h.ctx, ReviewDecisionRequest{
		SubmissionID: sub.ID,
		ReviewerID:   reviewerOne,
		Decision:     workflow.DecisionApproved,
		Notes:        validNotes,
		NextStageID:  fx.formal.ID,
	})
	if err != nil {
		t.Fatalf("approve intake without the checklist: %v", err)
	}
	if workflow.Deref(got.CurrentStageID) != fx.formal.ID {
		t.Fatalf("stage = %s", workflow.Deref(got.CurrentStageID))
	}

	var decision *workflow.TrackingEntry
	for _, e := range h.entries(sub.ID) {
		if e.Action == workflow.ActionReviewDecision {
			decision = e
		}
	}
	if decision == nil || decision.Metadata["requirements_satisfied"] != true || decision.Metadata["type_requirements_met"] != false {
		t.Fatalf("decision metadata = %+v", decision)
	}
}

func TestReview_FinalApprovalBlockedByTypeRequirement(t *testing.T) {
	h := newHarness(t)
	fx := h.seedPatent()
	deed, err := h.catalog.CreateRequirement(h.ctx, CreateRequirementRequest{SubmissionTypeID: fx.typ.ID, Name: "Assignment deed", Required: true, Order: 2})
	h.must(err, "create deed")
	sub := h.atFormalReview(fx)
	h.uploadApproved(sub.ID, fx.checklist.ID)

	_, err = h.review.ProcessReviewDecision(h.ctx, ReviewDecisionRequest{
		SubmissionID: sub.ID,
		ReviewerID:   reviewerTwo,
		Decision:     workflow.DecisionApproved,
		Notes:        validNotes,
	})
	var gate *workflow.GateNotSatisfiedError
	if !stderrors.As(err, &gate) {
		t.Fatalf("expected GateNotSatisfiedError, got %v", err)
	}
	if gate.Scope != workflow.ScopeType || gate.RequirementIDs()[0] != deed.ID {
		t.Fatalf("gate = %+v", gate)
	}
	if h.submission(sub.ID).Status != workflow.StatusInReview {
		t.Fatal("blocked approval changed the submission")
	}
}

func TestReview_ApproveWithDocumentUpdateCompletes(t *testing.T) {
	h := newHarness(t)
	fx := h.seedPatent()
	sub := h.atFormalReview(fx)
	doc := h.upload(sub.ID, fx.checklist.ID)

	got, err := h.review.ProcessReviewDecision(h.ctx, ReviewDecisionRequest{
		SubmissionID:    sub.ID,
		ReviewerID:      reviewerTwo,
		Decision:        workflow.DecisionApproved,
		Notes:           validNotes,
		DocumentUpdates: []DocumentUpdate{{DocumentID: doc.ID, Status: workflow.DocumentApproved}},
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got.Status != workflow.StatusCompleted || got.Certificate == nil {
		t.Fatalf("got status=%s certificate=%v", got.Status, got.Certificate)
	}
	if h.document(doc.ID).Status != workflow.DocumentApproved {
		t.Fatal("document update lost")
	}

	entries := h.entries(sub.ID)
	if countEntries(entries, workflow.ActionDocumentStatus) != 1 ||
		countEntries(entries, workflow.ActionComplete) != 1 ||
		countEntries(entries, workflow.ActionReviewDecision) != 1 {
		t.Fatalf("unexpected ledger %+v", entries)
	}
	evs := h.events(sub.ID)
	last := evs[len(evs)-1]
	if last.Type != workflow.EventCompleted || last.RecipientID != ownerID {
		t.Fatalf("last event = %+v", last)
	}
}

func TestReview_UnchangedDocumentUpdateSkipped(t *testing.T) {
	h := newHarness(t)
	fx := h.seedPatent()
	sub := h.atFormalReview(fx)
	doc := h.uploadApproved(sub.ID, fx.checklist.ID)

	_, err := h.review.ProcessReviewDecision(h.ctx, ReviewDecisionRequest{
		SubmissionID:    sub.ID,
		ReviewerID:      reviewerTwo,
		Decision:        workflow.DecisionApproved,
		Notes:           validNotes,
		DocumentUpdates: []DocumentUpdate{{DocumentID: doc.ID, Status: workflow.DocumentApproved}},
	})
	h.must(err, "approve")
	if n := countEntries(h.entries(sub.ID), workflow.ActionDocumentStatus); n != 0 {
		t.Fatalf("no-op update produced %d entries", n)
	}
}

func TestReview_RevisionNotifiesOwnerOnly(t *testing.T) {
	h := newHarness(t)
	fx := h.seedPatent()
	sub := h.atFormalReview(fx)
	eventsBefore := len(h.events(sub.ID))

	got, err := h.review.ProcessReviewDecision(h.ctx, ReviewDecisionRequest{
		SubmissionID: sub.ID,
		ReviewerID:   reviewerTwo,
		Decision:     workflow.DecisionRevisionNeeded,
		Notes:        "The checklist is missing its second page.",
	})
	h.must(err, "request revision")
	if got.Status != workflow.StatusRevisionNeeded {
		t.Fatalf("status = %s", got.Status)
	}
	evs := h.events(sub.ID)[eventsBefore:]
	if len(evs) != 1 || evs[0].Type != workflow.EventRevisionRequested || evs[0].RecipientID != ownerID {
		t.Fatalf("events = %+v", evs)
	}

	var decided *workflow.WorkflowAssignment
	for _, a := range h.assignments(sub.ID) {
		if a.StageID == fx.formal.ID {
			decided = a
		}
	}
	if decided == nil || decided.Status != workflow.AssignmentRevisionNeeded || decided.Open() {
		t.Fatalf("formal review assignment = %+v", decided)
	}

	var decisionEntry *workflow.TrackingEntry
	for _, e := range h.entries(sub.ID) {
		if e.Action == workflow.ActionReviewDecision {
			decisionEntry = e
		}
	}
	if decisionEntry == nil || decisionEntry.Metadata["requirements_waived"] != true {
		t.Fatalf("unmet checklist should be recorded as waived: %+v", decisionEntry)
	}
	if decisionEntry.TargetStatus != workflow.StatusRevisionNeeded {
		t.Fatalf("decision target status = %s", decisionEntry.TargetStatus)
	}
}

func TestReview_RejectEndsSubmission(t *testing.T) {
	h := newHarness(t)
	fx := h.seedPatent()
	sub := h.inReview(fx)

	got, err := h.review.ProcessReviewDecision(h.ctx, ReviewDecisionRequest{
		SubmissionID: sub.ID,
		ReviewerID:   reviewerOne,
		Decision:     workflow.DecisionRejected,
		Notes:        "Subject matter is not patentable.",
	})
	h.must(err, "reject")
	if got.Status != workflow.StatusRejected {
		t.Fatalf("status = %s", got.Status)
	}
	if countEntries(h.entries(sub.ID), workflow.ActionReject) != 1 {
		t.Fatal("expected a reject entry")
	}
}

func TestReview_CreatesAssignmentWhenNoneActive(t *testing.T) {
	h := newHarness(t)
	fx := h.seedPatent()
	sub := h.atFormalReview(fx)
	_, err := h.workflow.RequestRevision(h.ctx, TransitionRequest{SubmissionID: sub.ID, ActorID: reviewerTwo, Comment: "Please sign the checklist."})
	h.must(err, "request revision")

	// revision_needed allows reject; no assignment is open on the stage.
	_, err = h.review.ProcessReviewDecision(h.ctx, ReviewDecisionRequest{
		SubmissionID: sub.ID,
		ReviewerID:   reviewerTwo,
		Decision:     workflow.DecisionRejected,
		Notes:        "No response from the applicant.",
	})
	h.must(err, "reject")

	var rejected int
	for _, a := range h.assignments(sub.ID) {
		if a.StageID == fx.formal.ID && a.Status == workflow.AssignmentRejected && workflow.Deref(a.ReviewerID) == reviewerTwo {
			rejected++
		}
	}
	if rejected != 1 {
		t.Fatalf("expected one rejected assignment for %s, got %d", reviewerTwo, rejected)
	}
}

func TestReview_RequestValidation(t *testing.T) {
	h := newHarness(t)
	fx := h.seedPatent()
	sub := h.inReview(fx)

	cases := []struct {
		name  string
		req   ReviewDecisionRequest
		field string
	}{
		{"missing decision", ReviewDecisionRequest{SubmissionID: sub.ID, ReviewerID: reviewerOne, Notes: validNotes}, "decision"},
		{"unknown decision", ReviewDecisionRequest{SubmissionID: sub.ID, ReviewerID: reviewerOne, Decision: "maybe", Notes: validNotes}, "decision"},
		{"short notes", ReviewDecisionRequest{SubmissionID: sub.ID, ReviewerID: reviewerOne, Decision: workflow.DecisionRejected, Notes: "no"}, "notes"},
		{"missing reviewer", ReviewDecisionRequest{SubmissionID: sub.ID, Decision: workflow.DecisionRejected, Notes: validNotes}, "reviewer_id"},
		{"next stage on reject", ReviewDecisionRequest{SubmissionID: sub.ID, ReviewerID: reviewerOne, Decision: workflow.DecisionRejected, Notes: validNotes, NextStageID: fx.formal.ID}, "next_stage_id"},
		{"replaced status", ReviewDecisionRequest{SubmissionID: sub.ID, ReviewerID: reviewerOne, Decision: workflow.DecisionRejected, Notes: validNotes,
			DocumentUpdates: []DocumentUpdate{{DocumentID: "d1", Status: workflow.DocumentReplaced}}}, "document_updates[0].status"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.review.ProcessReviewDecision(h.ctx, tc.req)
			var ve *workflow.ValidationError
			if !stderrors.As(err, &ve) || ve.Field != tc.field {
				t.Fatalf("expected ValidationError on %s, got %v", tc.field, err)
			}
		})
	}
	if got := h.submission(sub.ID); got.Version != sub.Version {
		t.Fatal("validation failures mutated the submission")
	}
}

func TestReview_ForeignDocumentRejected(t *testing.T) {
	h := newHarness(t)
	fx := h.seedPatent()
	sub := h.atFormalReview(fx)
	other := h.atFormalReview(fx)
	foreign := h.upload(other.ID, fx.checklist.ID)

	_, err := h.review.ProcessReviewDecision(h.ctx, ReviewDecisionRequest{
		SubmissionID:    sub.ID,
		ReviewerID:      reviewerTwo,
		Decision:        workflow.DecisionApproved,
		Notes:           validNotes,
		DocumentUpdates: []DocumentUpdate{{DocumentID: foreign.ID, Status: workflow.DocumentApproved}},
	})
	if !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if h.document(foreign.ID).Status != workflow.DocumentPending {
		t.Fatal("foreign document was modified")
	}
}

func TestReview_LockedSubmission(t *testing.T) {
	h := newHarness(t)
	fx := h.seedPatent()
	sub := h.inReview(fx)

	h.store.InjectFault("submissions.lock", &workflow.ConcurrentModificationError{SubmissionID: sub.ID, Reason: "row is locked by another transaction"})
	_, err := h.review.ProcessReviewDecision(h.ctx, ReviewDecisionRequest{
		SubmissionID: sub.ID,
		ReviewerID:   reviewerOne,
		Decision:     workflow.DecisionRejected,
		Notes:        validNotes,
	})
	if !errors.HasCode(err, errors.ErrCodeConcurrentModification) {
		t.Fatalf("expected concurrent modification, got %v", err)
	}
	if got := h.submission(sub.ID); got.Status != workflow.StatusInReview {
		t.Fatalf("status = %s", got.Status)
	}
}
