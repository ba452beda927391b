package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pesio-ai/be-ip-review/internal/platform/clock"
	"github.com/pesio-ai/be-ip-review/internal/platform/errors"
	"github.com/pesio-ai/be-ip-review/internal/platform/logger"
	"github.com/pesio-ai/be-ip-review/internal/repository"
	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

// DefaultMinNotesLength is the minimum reviewer comment length when none is
// configured.
const DefaultMinNotesLength = 10

// Options tunes the workflow rules that are configurable per deployment.
type Options struct {
	MinNotesLength int
}

func (o Options) minNotes() int {
	if o.MinNotesLength <= 0 {
		return DefaultMinNotesLength
	}
	return o.MinNotesLength
}

// engine holds what every unit of work needs. WorkflowService and
// ReviewService share it so a review decision can reuse the transition
// steps inside its own transaction.
type engine struct {
	store repository.Store
	clock clock.Clock
	log   *logger.Logger
	opts  Options
}

// unit is the state of one submission loaded under its row lock. Ledger
// entries and events are buffered and written by commit after the
// submission row, so an entry never outlives the mutation it describes.
type unit struct {
	tx      repository.Tx
	sub     *workflow.Submission
	subType *workflow.SubmissionType
	graph   *workflow.Graph
	stage   *workflow.Stage
	reqs    []*workflow.DocumentRequirement
	docs    []*workflow.SubmissionDocument
	actor   string
	now     time.Time

	entries []*workflow.TrackingEntry
	events  []workflow.Event
}

// load locks the submission and resolves its type, stage graph, current
// stage and documents.
func (e *engine) load(ctx context.Context, tx repository.Tx, submissionID, actor string, expectedVersion int) (*unit, error) {
	sub, err := tx.Submissions().GetForUpdate(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.Archived {
		return nil, errors.New(errors.ErrCodeConflict, fmt.Sprintf("submission %s is archived", sub.ID))
	}
	if expectedVersion > 0 && sub.Version != expectedVersion {
		return nil, &workflow.ConcurrentModificationError{
			SubmissionID: sub.ID,
			Reason:       fmt.Sprintf("expected version %d, current %d", expectedVersion, sub.Version),
		}
	}
	return e.resolve(ctx, tx, sub, actor)
}

// snapshot loads a submission for reading without taking its lock.
func (e *engine) snapshot(ctx context.Context, tx repository.Tx, submissionID string) (*unit, error) {
	sub, err := tx.Submissions().Get(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	return e.resolve(ctx, tx, sub, "")
}

func (e *engine) resolve(ctx context.Context, tx repository.Tx, sub *workflow.Submission, actor string) (*unit, error) {
	subType, err := tx.Catalog().GetType(ctx, sub.SubmissionTypeID)
	if err != nil {
		return nil, err
	}
	stages, err := tx.Catalog().ListStages(ctx, subType.ID)
	if err != nil {
		return nil, err
	}
	reqs, err := tx.Catalog().ListRequirements(ctx, subType.ID)
	if err != nil {
		return nil, err
	}
	docs, err := tx.Documents().ListBySubmission(ctx, sub.ID)
	if err != nil {
		return nil, err
	}

	u := &unit{
		tx:      tx,
		sub:     sub,
		subType: subType,
		graph:   workflow.NewGraph(subType.ID, stages),
		reqs:    reqs,
		docs:    docs,
		actor:   actor,
		now:     e.clock.Now(),
	}

	// The current stage may have been deactivated since the submission reached
	// it; it is still resolved so neighbours can be found by order.
	if sub.CurrentStageID != nil {
		for _, st := range stages {
			if st.ID == *sub.CurrentStageID {
				u.stage = st
				break
			}
		}
		if u.stage == nil {
			return nil, errors.New(errors.ErrCodeInternal,
				fmt.Sprintf("stage %s of submission %s does not belong to type %s", *sub.CurrentStageID, sub.ID, subType.ID))
		}
	}
	return u, nil
}

// commit writes the submission, then the outbox, then the buffered ledger
// entries.
func (u *unit) commit(ctx context.Context) error {
	u.sub.UpdatedAt = u.now
	if err := u.tx.Submissions().Update(ctx, u.sub); err != nil {
		return err
	}
	if len(u.events) > 0 {
		if err := u.tx.Outbox().Enqueue(ctx, u.events); err != nil {
			return err
		}
	}
	for _, entry := range u.entries {
		if err := u.tx.Tracking().Append(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

func (u *unit) stageID() string {
	if u.stage == nil {
		return ""
	}
	return u.stage.ID
}

// record buffers a ledger entry for the current stage.
func (u *unit) record(action workflow.Action, kind workflow.EntryType, from workflow.Status, comment string, meta map[string]interface{}) *workflow.TrackingEntry {
	entry := &workflow.TrackingEntry{
		SubmissionID: u.sub.ID,
		Action:       action,
		EventType:    kind,
		Status:       u.sub.Status,
		SourceStatus: from,
		TargetStatus: u.sub.Status,
		Comment:      workflow.StringPtr(strings.TrimSpace(comment)),
		ProcessedBy:  u.actor,
		Metadata:     meta,
		CreatedAt:    u.now,
	}
	if u.stage != nil {
		entry.StageID = workflow.StringPtr(u.stage.ID)
	}
	u.entries = append(u.entries, entry)
	return entry
}

// emit buffers a notification. Events without a recipient are dropped.
func (u *unit) emit(typ workflow.EventType, recipient, message string) {
	if recipient == "" {
		return
	}
	payload := map[string]interface{}{
		"status":          string(u.sub.Status),
		"submission_type": u.subType.Code,
		"title":           u.sub.Title,
	}
	if u.stage != nil {
		payload["stage_id"] = u.stage.ID
		payload["stage_name"] = u.stage.Name
	}
	u.events = append(u.events, workflow.Event{
		Type:         typ,
		SubmissionID: u.sub.ID,
		RecipientID:  recipient,
		Message:      message,
		Payload:      payload,
		CreatedAt:    u.now,
	})
}

// stageGate evaluates the requirements attached to the current stage. A
// submission without a stage has nothing to gate.
func (u *unit) stageGate(ctx context.Context) (workflow.GateResult, error) {
	if u.stage == nil {
		return workflow.EvaluateGate(workflow.ScopeStage, nil, u.docs), nil
	}
	links, err := u.tx.Catalog().ListStageRequirements(ctx, u.stage.ID)
	if err != nil {
		return workflow.GateResult{}, err
	}
	return workflow.EvaluateGate(workflow.ScopeStage, workflow.StageLinks(links, u.reqs), u.docs), nil
}

// typeGate evaluates every active requirement of the submission type.
func (u *unit) typeGate() workflow.GateResult {
	return workflow.EvaluateGate(workflow.ScopeType, workflow.TypeLinks(u.reqs), u.docs)
}

// closeActive completes the open assignment on the current stage, if any.
func (u *unit) closeActive(ctx context.Context, status workflow.AssignmentStatus, notes string) error {
	if u.stage == nil {
		return nil
	}
	active, err := u.tx.Assignments().GetActive(ctx, u.sub.ID, u.stage.ID)
	if err != nil || active == nil {
		return err
	}
	return u.tx.Assignments().Complete(ctx, active.ID, status, u.actor, workflow.StringPtr(strings.TrimSpace(notes)), u.now)
}

// openAssignment makes sure the stage has an open assignment. reviewer may
// be nil, leaving the visit unassigned until someone claims it. An existing
// open assignment is only reassigned when a reviewer is given.
func (u *unit) openAssignment(ctx context.Context, stageID string, reviewer *string) (*workflow.WorkflowAssignment, error) {
	active, err := u.tx.Assignments().GetActive(ctx, u.sub.ID, stageID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		if reviewer != nil && workflow.Deref(active.ReviewerID) != *reviewer {
			if err := u.tx.Assignments().Reassign(ctx, active.ID, reviewer, u.now); err != nil {
				return nil, err
			}
			active.ReviewerID = reviewer
			active.AssignedAt = u.now
		}
		return active, nil
	}
	a := &workflow.WorkflowAssignment{
		SubmissionID: u.sub.ID,
		StageID:      stageID,
		ReviewerID:   reviewer,
		Status:       workflow.AssignmentPending,
		AssignedAt:   u.now,
	}
	if err := u.tx.Assignments().Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// latestReviewer returns the reviewer of the most recent visit to stageID.
func (u *unit) latestReviewer(ctx context.Context, stageID string) (*string, error) {
	last, err := u.tx.Assignments().Latest(ctx, u.sub.ID, stageID)
	if err != nil || last == nil {
		return nil, err
	}
	return last.ReviewerID, nil
}

func (e *engine) requireNotes(field, notes string) error {
	n := len([]rune(strings.TrimSpace(notes)))
	if n == 0 {
		return &workflow.ValidationError{Field: field, Reason: "is required"}
	}
	if n < e.opts.minNotes() {
		return &workflow.ValidationError{Field: field, Reason: fmt.Sprintf("must be at least %d characters", e.opts.minNotes())}
	}
	return nil
}

// fail converts storage failures into PersistenceError. Domain and coded
// errors pass through untouched.
func fail(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *workflow.PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	if errors.CodeOf(err) == errors.ErrCodeInternal {
		return &workflow.PersistenceError{Op: op, Err: err}
	}
	return err
}
