package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/pesio-ai/be-ip-review/internal/platform/clock"
	"github.com/pesio-ai/be-ip-review/internal/platform/logger"
	"github.com/pesio-ai/be-ip-review/internal/repository"
	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

// DocumentUpdate sets the review status of one document as part of a
// decision. Notes nil leaves the existing notes in place.
type DocumentUpdate struct {
	DocumentID string
	Status     workflow.DocumentStatus
	Notes      *string
}

// ReviewDecisionRequest is one reviewer verdict on a submission's current
// stage.
type ReviewDecisionRequest struct {
	SubmissionID    string
	ReviewerID      string
	Decision        workflow.Decision
	Notes           string
	DocumentUpdates []DocumentUpdate
	// NextStageID is required when approving and a next stage exists.
	NextStageID     string
	NextReviewerID  string
	ExpectedVersion int
	Metadata        map[string]interface{}
}

// ReviewService processes reviewer decisions.
type ReviewService struct {
	engine
}

// NewReviewService creates a new ReviewService.
func NewReviewService(store repository.Store, clk clock.Clock, opts Options, log *logger.Logger) *ReviewService {
	return &ReviewService{engine: engine{store: store, clock: clk, log: log, opts: opts}}
}

func (s *ReviewService) validate(req *ReviewDecisionRequest) error {
	if strings.TrimSpace(req.SubmissionID) == "" {
		return &workflow.ValidationError{Field: "submission_id", Reason: "is required"}
	}
	if strings.TrimSpace(req.ReviewerID) == "" {
		return &workflow.ValidationError{Field: "reviewer_id", Reason: "is required"}
	}
	if req.Decision == "" {
		return &workflow.ValidationError{Field: "decision", Reason: "is required"}
	}
	if !req.Decision.Valid() {
		return &workflow.ValidationError{Field: "decision", Reason: fmt.Sprintf("unknown decision %q", req.Decision)}
	}
	if err := s.requireNotes("notes", req.Notes); err != nil {
		return err
	}
	if req.Decision != workflow.DecisionApproved && (req.NextStageID != "" || req.NextReviewerID != "") {
		return &workflow.ValidationError{Field: "next_stage_id", Reason: "only allowed when approving"}
	}
	for i, upd := range req.DocumentUpdates {
		field := fmt.Sprintf("document_updates[%d]", i)
		if upd.DocumentID == "" {
			return &workflow.ValidationError{Field: field + ".document_id", Reason: "is required"}
		}
		if !upd.Status.Valid() || upd.Status == workflow.DocumentReplaced {
			return &workflow.ValidationError{Field: field + ".status", Reason: fmt.Sprintf("invalid document status %q", upd.Status)}
		}
	}
	return nil
}

// decisionAction is the transition a decision drives.
func decisionAction(d workflow.Decision) workflow.Action {
	switch d {
	case workflow.DecisionApproved:
		return workflow.ActionAdvanceStage
	case workflow.DecisionRevisionNeeded:
		return workflow.ActionRequestRevision
	default:
		return workflow.ActionReject
	}
}

// ProcessReviewDecision applies a reviewer's verdict as one unit of work:
// document updates, gate evaluation, closing the stage assignment, the
// review_decision ledger entry, and the transition it implies. Any failure
// rolls back all of it, including the document updates.
func (s *ReviewService) ProcessReviewDecision(ctx context.Context, req ReviewDecisionRequest) (*workflow.Submission, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	action := decisionAction(req.Decision)

	var out *workflow.Submission
	var stageID string
	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		u, err := s.load(ctx, tx, req.SubmissionID, req.ReviewerID, req.ExpectedVersion)
		if err != nil {
			return err
		}
		if err := workflow.CheckTransition(u.sub.Status, action); err != nil {
			return err
		}
		stage := u.stage
		stageID = u.stageID()
		from := u.sub.Status

		if req.Decision == workflow.DecisionApproved {
			if next := u.graph.Next(stage); next != nil && req.NextStageID == "" {
				return &workflow.ValidationError{
					Field:  "next_stage_id",
					Reason: fmt.Sprintf("is required; next stage is %s (%s)", next.ID, next.Name),
				}
			}
		}

		// 1. document updates
		if err := s.applyDocumentUpdates(ctx, u, req.DocumentUpdates); err != nil {
			return err
		}

		// 2. gates; the type gate only binds the approval that completes
		stageGate, err := u.stageGate(ctx)
		if err != nil {
			return err
		}
		typeGate := u.typeGate()
		final := u.graph.Next(stage) == nil

		// 3. approval needs the gates that bind it
		if req.Decision == workflow.DecisionApproved {
			if err := workflow.NewGateError(stageGate, stageID); err != nil {
				return err
			}
			if final {
				if err := workflow.NewGateError(typeGate, stageID); err != nil {
					return err
				}
			}
		}

		// 4. close the reviewer's assignment on this stage
		active, err := tx.Assignments().GetActive(ctx, u.sub.ID, stageID)
		if err != nil {
			return err
		}
		if active == nil {
			if _, err := u.openAssignment(ctx, stageID, workflow.StringPtr(req.ReviewerID)); err != nil {
				return err
			}
		}
		if err := u.closeActive(ctx, req.Decision.AssignmentStatus(), req.Notes); err != nil {
			return err
		}

		// 5. analytics entry, recorded against the stage being decided and
		// ahead of the transition it causes
		satisfied := stageGate.Satisfied
		unmet := stageGate.UnmetIDs()
		if final {
			satisfied = satisfied && typeGate.Satisfied
			unmet = append(unmet, typeGate.UnmetIDs()...)
		}
		entry := u.record(workflow.ActionReviewDecision, workflow.EntryReviewDecision, from, req.Notes, map[string]interface{}{
			"decision":               string(req.Decision),
			"reviewer_role":          stage.ReviewerRole,
			"submission_type":        u.subType.Code,
			"stage_requirements_met": stageGate.Satisfied,
			"type_requirements_met":  typeGate.Satisfied,
			"requirements_satisfied": satisfied,
			"requirements_waived":    !satisfied,
			"unmet_requirements":     unmet,
		})

		// 6. transition
		switch req.Decision {
		case workflow.DecisionApproved:
			err = s.advance(ctx, u, req.NextStageID, workflow.StringPtr(req.NextReviewerID), req.Notes, req.Metadata)
		case workflow.DecisionRevisionNeeded:
			err = s.requestRevision(ctx, u, req.Notes, req.Metadata)
		default:
			err = s.reject(ctx, u, req.Notes, req.Metadata)
		}
		if err != nil {
			return err
		}
		entry.Status = u.sub.Status
		entry.TargetStatus = u.sub.Status

		if err := u.commit(ctx); err != nil {
			return err
		}
		out = u.sub
		return nil
	})
	if err != nil {
		return nil, fail("process_review_decision", err)
	}

	s.log.Info().
		Str("submission_id", out.ID).
		Str("stage_id", stageID).
		Str("action", string(workflow.ActionReviewDecision)).
		Str("decision", string(req.Decision)).
		Str("reviewer_id", req.ReviewerID).
		Str("status", string(out.Status)).
		Msg("Review decision processed")
	return out, nil
}

// applyDocumentUpdates writes per-document status changes, skipping
// updates that change nothing.
func (s *ReviewService) applyDocumentUpdates(ctx context.Context, u *unit, updates []DocumentUpdate) error {
	for _, upd := range updates {
		var doc *workflow.SubmissionDocument
		for _, d := range u.docs {
			if d.ID == upd.DocumentID {
				doc = d
				break
			}
		}
		if doc == nil {
			return &workflow.ValidationError{
				Field:  "document_updates",
				Reason: fmt.Sprintf("document %s does not belong to submission %s", upd.DocumentID, u.sub.ID),
			}
		}
		if !doc.Active() {
			return &workflow.ValidationError{
				Field:  "document_updates",
				Reason: fmt.Sprintf("document %s has been replaced", doc.ID),
			}
		}

		notes := doc.Notes
		if upd.Notes != nil {
			notes = workflow.StringPtr(strings.TrimSpace(*upd.Notes))
		}
		if doc.Status == upd.Status && workflow.Deref(doc.Notes) == workflow.Deref(notes) {
			continue
		}
		if err := u.tx.Documents().UpdateStatus(ctx, doc.ID, upd.Status, notes, u.now); err != nil {
			return err
		}

		previous := doc.Status
		doc.Status = upd.Status
		doc.Notes = notes
		doc.UpdatedAt = u.now
		u.record(workflow.ActionDocumentStatus, workflow.EntryDocumentStatus, u.sub.Status, workflow.Deref(notes), map[string]interface{}{
			"document_id":     doc.ID,
			"requirement_id":  doc.RequirementID,
			"previous_status": string(previous),
			"new_status":      string(doc.Status),
		})
	}
	return nil
}
