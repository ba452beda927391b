package service

import (
	"context"

	"github.com/pesio-ai/be-ip-review/internal/repository"
	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

// GateReport combines both gate scopes for a submission.
type GateReport struct {
	SubmissionID string
	StageID      string
	Stage        workflow.GateResult
	Type         workflow.GateResult
}

// EvaluateGates evaluates the current-stage gate and the type-level gate.
func (s *WorkflowService) EvaluateGates(ctx context.Context, submissionID string) (*GateReport, error) {
	var report *GateReport
	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		u, err := s.snapshot(ctx, tx, submissionID)
		if err != nil {
			return err
		}
		stage, err := u.stageGate(ctx)
		if err != nil {
			return err
		}
		report = &GateReport{
			SubmissionID: u.sub.ID,
			StageID:      u.stageID(),
			Stage:        stage,
			Type:         u.typeGate(),
		}
		return nil
	})
	if err != nil {
		return nil, fail("evaluate_gates", err)
	}
	return report, nil
}

// IsGateSatisfied reports whether the current stage's required documents
// are all approved.
func (s *WorkflowService) IsGateSatisfied(ctx context.Context, submissionID string) (bool, error) {
	report, err := s.EvaluateGates(ctx, submissionID)
	if err != nil {
		return false, err
	}
	return report.Stage.Satisfied, nil
}

// ListMissingRequirements returns the ids of the current stage's required
// requirements that lack an approved document, in stage order.
func (s *WorkflowService) ListMissingRequirements(ctx context.Context, submissionID string) ([]string, error) {
	report, err := s.EvaluateGates(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	return report.Stage.UnmetIDs(), nil
}

// TimelineGroup is a run of consecutive ledger entries on the same stage.
type TimelineGroup struct {
	StageID   string
	StageName string
	Entries   []*workflow.TrackingEntry
}

// Timeline is the chronological ledger of a submission.
type Timeline struct {
	SubmissionID string
	Entries      []*workflow.TrackingEntry
	Groups       []TimelineGroup
}

// GetTimeline returns every ledger entry oldest-first, grouped into
// consecutive runs per stage. A stage visited twice yields two groups.
func (s *WorkflowService) GetTimeline(ctx context.Context, submissionID string) (*Timeline, error) {
	var tl *Timeline
	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		sub, err := tx.Submissions().Get(ctx, submissionID)
		if err != nil {
			return err
		}
		entries, err := tx.Tracking().ListBySubmission(ctx, sub.ID)
		if err != nil {
			return err
		}
		stages, err := tx.Catalog().ListStages(ctx, sub.SubmissionTypeID)
		if err != nil {
			return err
		}
		names := make(map[string]string, len(stages))
		for _, st := range stages {
			names[st.ID] = st.Name
		}
		tl = &Timeline{SubmissionID: sub.ID, Entries: entries, Groups: groupByStage(entries, names)}
		return nil
	})
	if err != nil {
		return nil, fail("get_timeline", err)
	}
	return tl, nil
}

func groupByStage(entries []*workflow.TrackingEntry, names map[string]string) []TimelineGroup {
	var groups []TimelineGroup
	for _, e := range entries {
		id := workflow.Deref(e.StageID)
		if n := len(groups); n > 0 && groups[n-1].StageID == id {
			groups[n-1].Entries = append(groups[n-1].Entries, e)
			continue
		}
		groups = append(groups, TimelineGroup{StageID: id, StageName: names[id], Entries: []*workflow.TrackingEntry{e}})
	}
	return groups
}
