package service

import (
	"context"
	"fmt"

	"github.com/pesio-ai/be-ip-review/internal/platform/errors"
	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

// The steps below mutate a loaded unit. They never commit; the caller owns
// the transaction and calls unit.commit once every step has succeeded.

func (e *engine) submit(ctx context.Context, u *unit, comment string, meta map[string]interface{}) error {
	from := u.sub.Status
	if err := workflow.CheckTransition(from, workflow.ActionSubmit); err != nil {
		return err
	}
	initial := u.graph.Initial()
	if initial == nil {
		return &workflow.ValidationError{
			Field:  "submission_type_id",
			Reason: fmt.Sprintf("submission type %s has no active stages", u.subType.Code),
		}
	}

	u.stage = initial
	u.sub.CurrentStageID = workflow.StringPtr(initial.ID)
	u.sub.Status = workflow.StatusSubmitted
	submittedAt := u.now
	u.sub.SubmittedAt = &submittedAt

	if _, err := u.openAssignment(ctx, initial.ID, nil); err != nil {
		return err
	}
	u.record(workflow.ActionSubmit, workflow.EntryStatusChange, from, comment, meta)
	u.emit(workflow.EventSubmitted, u.sub.OwnerID, fmt.Sprintf("%q was submitted and is waiting in %s", u.sub.Title, initial.Name))
	return nil
}

func (e *engine) startReview(ctx context.Context, u *unit, comment string, meta map[string]interface{}) error {
	from := u.sub.Status
	if err := workflow.CheckTransition(from, workflow.ActionStartReview); err != nil {
		return err
	}
	if _, err := u.openAssignment(ctx, u.stageID(), workflow.StringPtr(u.actor)); err != nil {
		return err
	}
	u.sub.Status = workflow.StatusInReview
	u.record(workflow.ActionStartReview, workflow.EntryStatusChange, from, comment, meta)
	return nil
}

// advance moves to the next active stage, or completes the submission when
// the current stage is final. expectedNext, when set, must name the real
// next stage.
func (e *engine) advance(ctx context.Context, u *unit, expectedNext string, nextReviewer *string, comment string, meta map[string]interface{}) error {
	from := u.sub.Status
	if err := workflow.CheckTransition(from, workflow.ActionAdvanceStage); err != nil {
		return err
	}
	gate, err := u.stageGate(ctx)
	if err != nil {
		return err
	}
	if err := workflow.NewGateError(gate, u.stageID()); err != nil {
		return err
	}

	next, err := u.graph.Advance(u.stage)
	var final *workflow.NoNextStageError
	if errors.As(err, &final) {
		if expectedNext != "" {
			return &workflow.ValidationError{Field: "next_stage_id", Reason: "current stage is final; no next stage exists"}
		}
		return e.complete(ctx, u, comment, meta)
	}
	if err != nil {
		return err
	}
	if expectedNext != "" && expectedNext != next.ID {
		return &workflow.ValidationError{
			Field:  "next_stage_id",
			Reason: fmt.Sprintf("next stage is %s (%s)", next.ID, next.Name),
		}
	}

	if err := u.closeActive(ctx, workflow.AssignmentApproved, comment); err != nil {
		return err
	}
	previous := u.stage
	u.stage = next
	u.sub.CurrentStageID = workflow.StringPtr(next.ID)
	u.sub.Status = workflow.StatusInReview
	if _, err := u.openAssignment(ctx, next.ID, nextReviewer); err != nil {
		return err
	}

	entry := u.record(workflow.ActionAdvanceStage, workflow.EntryStageTransition, from, comment, meta)
	entry.PreviousStageID = workflow.StringPtr(previous.ID)

	u.emit(workflow.EventAdvanced, u.sub.OwnerID, fmt.Sprintf("%q moved from %s to %s", u.sub.Title, previous.Name, next.Name))
	if nextReviewer != nil && *nextReviewer != u.sub.OwnerID {
		u.emit(workflow.EventAssigned, *nextReviewer, fmt.Sprintf("%q is waiting for your review in %s", u.sub.Title, next.Name))
	}
	return nil
}

// complete issues the certificate. It requires the current stage to be the
// final active one and every requirement of the type to be approved.
func (e *engine) complete(ctx context.Context, u *unit, comment string, meta map[string]interface{}) error {
	from := u.sub.Status
	if err := workflow.CheckTransition(from, workflow.ActionComplete); err != nil {
		return err
	}
	if next := u.graph.Next(u.stage); next != nil {
		return &errors.AppError{
			Code:    errors.ErrCodeConflict,
			Message: fmt.Sprintf("stage %s is not the final stage; advance to %s first", u.stageID(), next.ID),
			Details: map[string]interface{}{"next_stage_id": next.ID},
		}
	}
	gate, err := u.stageGate(ctx)
	if err != nil {
		return err
	}
	if err := workflow.NewGateError(gate, u.stageID()); err != nil {
		return err
	}
	if err := workflow.NewGateError(u.typeGate(), u.stageID()); err != nil {
		return err
	}

	if u.sub.Certificate == nil {
		year := u.now.Year()
		seq, err := u.tx.Submissions().NextCertificateSequence(ctx, u.subType.ID, year)
		if err != nil {
			return err
		}
		cert := workflow.CertificateNumber(workflow.CertificatePrefixFor(u.subType), year, seq)
		u.sub.Certificate = &cert
	}
	if err := u.closeActive(ctx, workflow.AssignmentApproved, comment); err != nil {
		return err
	}
	completedAt := u.now
	u.sub.CompletedAt = &completedAt
	u.sub.Status = workflow.StatusCompleted

	m := mergeMeta(meta, map[string]interface{}{"certificate": *u.sub.Certificate})
	u.record(workflow.ActionComplete, workflow.EntryCompletion, from, comment, m)
	u.emit(workflow.EventCompleted, u.sub.OwnerID, fmt.Sprintf("%q was completed; certificate %s issued", u.sub.Title, *u.sub.Certificate))
	return nil
}

// returnStage sends the submission back to the previous active stage and
// reopens it for the reviewer who last handled it.
func (e *engine) returnStage(ctx context.Context, u *unit, comment string, meta map[string]interface{}) error {
	from := u.sub.Status
	// The initial stage has nowhere to return to, whatever the open status.
	prev := u.graph.Previous(u.stage)
	if prev == nil && u.stage != nil && !from.Terminal() {
		return &workflow.NoPreviousStageError{StageID: u.stageID()}
	}
	if err := workflow.CheckTransition(from, workflow.ActionReturnStage); err != nil {
		return err
	}
	if prev == nil {
		return &workflow.NoPreviousStageError{StageID: u.stageID()}
	}

	if err := u.closeActive(ctx, workflow.AssignmentRevisionNeeded, comment); err != nil {
		return err
	}
	reviewer, err := u.latestReviewer(ctx, prev.ID)
	if err != nil {
		return err
	}
	leaving := u.stage
	u.stage = prev
	u.sub.CurrentStageID = workflow.StringPtr(prev.ID)
	u.sub.Status = workflow.StatusRevisionNeeded
	if _, err := u.openAssignment(ctx, prev.ID, reviewer); err != nil {
		return err
	}

	entry := u.record(workflow.ActionReturnStage, workflow.EntryStageTransition, from, comment, meta)
	entry.PreviousStageID = workflow.StringPtr(leaving.ID)
	u.emit(workflow.EventReturned, u.sub.OwnerID, fmt.Sprintf("%q was returned from %s to %s", u.sub.Title, leaving.Name, prev.Name))
	return nil
}

func (e *engine) requestRevision(ctx context.Context, u *unit, comment string, meta map[string]interface{}) error {
	from := u.sub.Status
	if err := workflow.CheckTransition(from, workflow.ActionRequestRevision); err != nil {
		return err
	}
	if err := e.requireNotes("comment", comment); err != nil {
		return err
	}
	if err := u.closeActive(ctx, workflow.AssignmentRevisionNeeded, comment); err != nil {
		return err
	}
	u.sub.Status = workflow.StatusRevisionNeeded
	u.record(workflow.ActionRequestRevision, workflow.EntryRevision, from, comment, meta)
	u.emit(workflow.EventRevisionRequested, u.sub.OwnerID, fmt.Sprintf("Revision requested for %q: %s", u.sub.Title, comment))
	return nil
}

// submitRevision reopens review on the current stage and resolves every
// outstanding revision_needed entry of the submission.
func (e *engine) submitRevision(ctx context.Context, u *unit, comment string, meta map[string]interface{}) error {
	from := u.sub.Status
	if err := workflow.CheckTransition(from, workflow.ActionSubmitRevision); err != nil {
		return err
	}
	resolved, err := u.tx.Tracking().ResolveOpen(ctx, u.sub.ID, workflow.StatusRevisionNeeded, u.now)
	if err != nil {
		return err
	}
	reviewer, err := u.latestReviewer(ctx, u.stageID())
	if err != nil {
		return err
	}
	a, err := u.openAssignment(ctx, u.stageID(), reviewer)
	if err != nil {
		return err
	}
	u.sub.Status = workflow.StatusInReview

	m := mergeMeta(meta, map[string]interface{}{"resolved_entries": resolved})
	u.record(workflow.ActionSubmitRevision, workflow.EntryRevision, from, comment, m)
	u.emit(workflow.EventRevisionSubmitted, workflow.Deref(a.ReviewerID), fmt.Sprintf("%q was revised and is back in review", u.sub.Title))
	return nil
}

func (e *engine) reject(ctx context.Context, u *unit, reason string, meta map[string]interface{}) error {
	from := u.sub.Status
	if err := workflow.CheckTransition(from, workflow.ActionReject); err != nil {
		return err
	}
	if err := e.requireNotes("comment", reason); err != nil {
		return err
	}
	if err := u.closeActive(ctx, workflow.AssignmentRejected, reason); err != nil {
		return err
	}
	u.sub.Status = workflow.StatusRejected

	m := mergeMeta(meta, map[string]interface{}{"reason": reason})
	u.record(workflow.ActionReject, workflow.EntryRejection, from, reason, m)
	u.emit(workflow.EventRejected, u.sub.OwnerID, fmt.Sprintf("%q was rejected: %s", u.sub.Title, reason))
	return nil
}

func (e *engine) cancel(ctx context.Context, u *unit, comment string, meta map[string]interface{}) error {
	from := u.sub.Status
	if err := workflow.CheckTransition(from, workflow.ActionCancel); err != nil {
		return err
	}
	if err := u.closeActive(ctx, workflow.AssignmentRejected, comment); err != nil {
		return err
	}
	u.sub.Status = workflow.StatusCancelled
	u.record(workflow.ActionCancel, workflow.EntryCancellation, from, comment, meta)
	if u.actor != u.sub.OwnerID {
		u.emit(workflow.EventCancelled, u.sub.OwnerID, fmt.Sprintf("%q was cancelled", u.sub.Title))
	}
	return nil
}

// mergeMeta returns caller metadata overlaid with the fields the engine
// records itself.
func mergeMeta(caller, own map[string]interface{}) map[string]interface{} {
	if len(caller) == 0 && len(own) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(caller)+len(own))
	for k, v := range caller {
		out[k] = v
	}
	for k, v := range own {
		out[k] = v
	}
	return out
}
