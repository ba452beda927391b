package service

import (
	"context"
	"strings"

	"github.com/pesio-ai/be-ip-review/internal/platform/clock"
	"github.com/pesio-ai/be-ip-review/internal/platform/logger"
	"github.com/pesio-ai/be-ip-review/internal/repository"
	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

// TransitionRequest carries one caller action on a submission. ActorID is
// the already-authenticated caller; it is recorded on the ledger entry.
type TransitionRequest struct {
	SubmissionID string
	ActorID      string
	Comment      string
	Metadata     map[string]interface{}
	// ExpectedVersion, when positive, must equal the stored version.
	ExpectedVersion int
	// NextStageID and NextReviewerID apply to AdvanceStage only.
	NextStageID    string
	NextReviewerID string
}

func (r TransitionRequest) validate() error {
	if strings.TrimSpace(r.SubmissionID) == "" {
		return &workflow.ValidationError{Field: "submission_id", Reason: "is required"}
	}
	if strings.TrimSpace(r.ActorID) == "" {
		return &workflow.ValidationError{Field: "actor_id", Reason: "is required"}
	}
	return nil
}

// WorkflowService is the transition engine: every state change of a
// submission goes through it as one unit of work.
type WorkflowService struct {
	engine
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(store repository.Store, clk clock.Clock, opts Options, log *logger.Logger) *WorkflowService {
	return &WorkflowService{engine: engine{store: store, clock: clk, log: log, opts: opts}}
}

type stepFunc func(ctx context.Context, u *unit, req TransitionRequest) error

// run executes one transition step under the submission lock and commits it.
func (s *WorkflowService) run(ctx context.Context, op string, action workflow.Action, req TransitionRequest, step stepFunc) (*workflow.Submission, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var out *workflow.Submission
	var from workflow.Status
	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		u, err := s.load(ctx, tx, req.SubmissionID, req.ActorID, req.ExpectedVersion)
		if err != nil {
			return err
		}
		from = u.sub.Status
		if err := step(ctx, u, req); err != nil {
			return err
		}
		if err := u.commit(ctx); err != nil {
			return err
		}
		out = u.sub
		return nil
	})
	if err != nil {
		return nil, fail(op, err)
	}

	s.log.Info().
		Str("submission_id", out.ID).
		Str("stage_id", workflow.Deref(out.CurrentStageID)).
		Str("action", string(action)).
		Str("from", string(from)).
		Str("to", string(out.Status)).
		Str("actor_id", req.ActorID).
		Msg("Submission transitioned")
	return out, nil
}

// Submit moves a draft into the first active stage of its type.
func (s *WorkflowService) Submit(ctx context.Context, req TransitionRequest) (*workflow.Submission, error) {
	return s.run(ctx, "submit", workflow.ActionSubmit, req, func(ctx context.Context, u *unit, req TransitionRequest) error {
		return s.submit(ctx, u, req.Comment, req.Metadata)
	})
}

// StartReview claims the current stage for the actor and enters in_review.
func (s *WorkflowService) StartReview(ctx context.Context, req TransitionRequest) (*workflow.Submission, error) {
	return s.run(ctx, "start_review", workflow.ActionStartReview, req, func(ctx context.Context, u *unit, req TransitionRequest) error {
		return s.startReview(ctx, u, req.Comment, req.Metadata)
	})
}

// AdvanceStage moves to the next stage once the current stage's gate
// passes. At the final stage it completes the submission instead.
func (s *WorkflowService) AdvanceStage(ctx context.Context, req TransitionRequest) (*workflow.Submission, error) {
	return s.run(ctx, "advance_stage", workflow.ActionAdvanceStage, req, func(ctx context.Context, u *unit, req TransitionRequest) error {
		return s.advance(ctx, u, req.NextStageID, workflow.StringPtr(req.NextReviewerID), req.Comment, req.Metadata)
	})
}

// ReturnStage sends the submission back to the previous stage.
func (s *WorkflowService) ReturnStage(ctx context.Context, req TransitionRequest) (*workflow.Submission, error) {
	return s.run(ctx, "return_stage", workflow.ActionReturnStage, req, func(ctx context.Context, u *unit, req TransitionRequest) error {
		return s.returnStage(ctx, u, req.Comment, req.Metadata)
	})
}

// RequestRevision asks the owner for changes on the current stage.
func (s *WorkflowService) RequestRevision(ctx context.Context, req TransitionRequest) (*workflow.Submission, error) {
	return s.run(ctx, "request_revision", workflow.ActionRequestRevision, req, func(ctx context.Context, u *unit, req TransitionRequest) error {
		return s.requestRevision(ctx, u, req.Comment, req.Metadata)
	})
}

// SubmitRevision returns a revised submission to review.
func (s *WorkflowService) SubmitRevision(ctx context.Context, req TransitionRequest) (*workflow.Submission, error) {
	return s.run(ctx, "submit_revision", workflow.ActionSubmitRevision, req, func(ctx context.Context, u *unit, req TransitionRequest) error {
		return s.submitRevision(ctx, u, req.Comment, req.Metadata)
	})
}

// Complete issues the certificate at the final stage.
func (s *WorkflowService) Complete(ctx context.Context, req TransitionRequest) (*workflow.Submission, error) {
	return s.run(ctx, "complete", workflow.ActionComplete, req, func(ctx context.Context, u *unit, req TransitionRequest) error {
		return s.complete(ctx, u, req.Comment, req.Metadata)
	})
}

// Reject ends the submission. A reason is required.
func (s *WorkflowService) Reject(ctx context.Context, req TransitionRequest) (*workflow.Submission, error) {
	return s.run(ctx, "reject", workflow.ActionReject, req, func(ctx context.Context, u *unit, req TransitionRequest) error {
		return s.reject(ctx, u, req.Comment, req.Metadata)
	})
}

// Cancel withdraws a submission that has not reached a terminal status.
func (s *WorkflowService) Cancel(ctx context.Context, req TransitionRequest) (*workflow.Submission, error) {
	return s.run(ctx, "cancel", workflow.ActionCancel, req, func(ctx context.Context, u *unit, req TransitionRequest) error {
		return s.cancel(ctx, u, req.Comment, req.Metadata)
	})
}
