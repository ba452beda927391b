package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pesio-ai/be-ip-review/internal/platform/clock"
	"github.com/pesio-ai/be-ip-review/internal/platform/logger"
	"github.com/pesio-ai/be-ip-review/internal/repository"
	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

const (
	ownerID     = "owner-1"
	reviewerOne = "reviewer-1"
	reviewerTwo = "reviewer-2"
	validNotes  = "Checked every claim against the record."
)

type harness struct {
	t        *testing.T
	ctx      context.Context
	store    *repository.MemoryStore
	clock    *clock.FakeClock
	workflow *WorkflowService
	review   *ReviewService
	catalog  *CatalogService
	subs     *SubmissionService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := repository.NewMemoryStore()
	clk := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), time.Second)
	log := logger.Nop()
	registry := workflow.NewDetailRegistry()
	opts := Options{MinNotesLength: 10}
	return &harness{
		t:        t,
		ctx:      context.Background(),
		store:    store,
		clock:    clk,
		workflow: NewWorkflowService(store, clk, opts, log),
		review:   NewReviewService(store, clk, opts, log),
		catalog:  NewCatalogService(store, registry, clk, log),
		subs:     NewSubmissionService(store, registry, clk, log),
	}
}

// patentFixture is the Patent type: Intake (no requirements) followed by
// FormalReview, which requires Checklist.
type patentFixture struct {
	typ       *workflow.SubmissionType
	intake    *workflow.Stage
	formal    *workflow.Stage
	checklist *workflow.DocumentRequirement
}

func (h *harness) seedPatent() patentFixture {
	h.t.Helper()
	var fx patentFixture
	var err error
	fx.typ, err = h.catalog.CreateSubmissionType(h.ctx, CreateTypeRequest{Code: "patent", Name: "Patent", Kind: workflow.KindPatent})
	h.must(err, "create type")
	fx.intake, err = h.catalog.CreateStage(h.ctx, CreateStageRequest{SubmissionTypeID: fx.typ.ID, Name: "Intake", Order: 1, ReviewerRole: "clerk"})
	h.must(err, "create intake")
	fx.formal, err = h.catalog.CreateStage(h.ctx, CreateStageRequest{SubmissionTypeID: fx.typ.ID, Name: "FormalReview", Order: 2, ReviewerRole: "examiner"})
	h.must(err, "create formal review")
	fx.checklist, err = h.catalog.CreateRequirement(h.ctx, CreateRequirementRequest{SubmissionTypeID: fx.typ.ID, Name: "Checklist", Required: true, Order: 1})
	h.must(err, "create checklist")
	_, err = h.catalog.AttachRequirement(h.ctx, AttachRequirementRequest{StageID: fx.formal.ID, RequirementID: fx.checklist.ID, IsRequired: true})
	h.must(err, "attach checklist")
	return fx
}

func (h *harness) draft(fx patentFixture) *workflow.Submission {
	h.t.Helper()
	sub, err := h.subs.CreateSubmission(h.ctx, CreateSubmissionRequest{
		SubmissionTypeID: fx.typ.ID,
		OwnerID:          ownerID,
		Title:            "Self-tightening bolt",
		Details:          json.RawMessage(`{"invention_title":"Self-tightening bolt","inventors":["Ada Byron"],"claim_count":3}`),
	})
	h.must(err, "create submission")
	return sub
}

// inReview returns a submission under review at Intake, claimed by
// reviewerOne.
func (h *harness) inReview(fx patentFixture) *workflow.Submission {
	h.t.Helper()
	sub := h.draft(fx)
	_, err := h.workflow.Submit(h.ctx, TransitionRequest{SubmissionID: sub.ID, ActorID: ownerID})
	h.must(err, "submit")
	sub, err = h.workflow.StartReview(h.ctx, TransitionRequest{SubmissionID: sub.ID, ActorID: reviewerOne})
	h.must(err, "start review")
	return sub
}

// atFormalReview returns a submission advanced to FormalReview and assigned
// to reviewerTwo.
func (h *harness) atFormalReview(fx patentFixture) *workflow.Submission {
	h.t.Helper()
	sub := h.inReview(fx)
	sub, err := h.workflow.AdvanceStage(h.ctx, TransitionRequest{SubmissionID: sub.ID, ActorID: reviewerOne, NextReviewerID: reviewerTwo})
	h.must(err, "advance to formal review")
	return sub
}

func (h *harness) upload(subID, reqID string) *workflow.SubmissionDocument {
	h.t.Helper()
	doc, err := h.subs.UploadDocument(h.ctx, UploadDocumentRequest{SubmissionID: subID, RequirementID: reqID, FileName: "checklist.pdf", ActorID: ownerID})
	h.must(err, "upload document")
	return doc
}

func (h *harness) setDocStatus(docID string, status workflow.DocumentStatus) {
	h.t.Helper()
	err := h.store.InTransaction(h.ctx, func(tx repository.Tx) error {
		return tx.Documents().UpdateStatus(h.ctx, docID, status, nil, h.clock.Now())
	})
	h.must(err, "set document status")
}

func (h *harness) uploadApproved(subID, reqID string) *workflow.SubmissionDocument {
	h.t.Helper()
	doc := h.upload(subID, reqID)
	h.setDocStatus(doc.ID, workflow.DocumentApproved)
	return doc
}

func (h *harness) submission(id string) *workflow.Submission {
	h.t.Helper()
	var sub *workflow.Submission
	err := h.store.InTransaction(h.ctx, func(tx repository.Tx) error {
		var err error
		sub, err = tx.Submissions().Get(h.ctx, id)
		return err
	})
	h.must(err, "get submission")
	return sub
}

func (h *harness) document(id string) *workflow.SubmissionDocument {
	h.t.Helper()
	var doc *workflow.SubmissionDocument
	err := h.store.InTransaction(h.ctx, func(tx repository.Tx) error {
		var err error
		doc, err = tx.Documents().Get(h.ctx, id)
		return err
	})
	h.must(err, "get document")
	return doc
}

func (h *harness) entries(subID string) []*workflow.TrackingEntry {
	h.t.Helper()
	var out []*workflow.TrackingEntry
	err := h.store.InTransaction(h.ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.Tracking().ListBySubmission(h.ctx, subID)
		return err
	})
	h.must(err, "list entries")
	return out
}

func (h *harness) assignments(subID string) []*workflow.WorkflowAssignment {
	h.t.Helper()
	var out []*workflow.WorkflowAssignment
	err := h.store.InTransaction(h.ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.Assignments().ListBySubmission(h.ctx, subID)
		return err
	})
	h.must(err, "list assignments")
	return out
}

func (h *harness) activeAssignment(subID, stageID string) *workflow.WorkflowAssignment {
	h.t.Helper()
	var out *workflow.WorkflowAssignment
	err := h.store.InTransaction(h.ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.Assignments().GetActive(h.ctx, subID, stageID)
		return err
	})
	h.must(err, "get active assignment")
	return out
}

func (h *harness) events(subID string) []workflow.Event {
	h.t.Helper()
	var out []workflow.Event
	err := h.store.InTransaction(h.ctx, func(tx repository.Tx) error {
		msgs, err := tx.Outbox().ClaimPending(h.ctx, 1000, 1000, time.Time{}, 0)
		for _, m := range msgs {
			if m.Event.SubmissionID == subID {
				out = append(out, m.Event)
			}
		}
		return err
	})
	h.must(err, "list events")
	return out
}

// assertStageBelongsToType checks the stage/type invariant on a submission.
func (h *harness) assertStageBelongsToType(sub *workflow.Submission) {
	h.t.Helper()
	if sub.CurrentStageID == nil {
		return
	}
	err := h.store.InTransaction(h.ctx, func(tx repository.Tx) error {
		st, err := tx.Catalog().GetStage(h.ctx, *sub.CurrentStageID)
		if err != nil {
			return err
		}
		if st.SubmissionTypeID != sub.SubmissionTypeID {
			h.t.Fatalf("stage %s belongs to type %s, submission is %s", st.ID, st.SubmissionTypeID, sub.SubmissionTypeID)
		}
		return nil
	})
	h.must(err, "check stage type")
}

func (h *harness) must(err error, what string) {
	h.t.Helper()
	if err != nil {
		h.t.Fatalf("%s: %v", what, err)
	}
}

func countEntries(entries []*workflow.TrackingEntry, action workflow.Action) int {
	n := 0
	for _, e := range entries {
		if e.Action == action {
			n++
		}
	}
	return n
}

func entryIDs(entries []*workflow.TrackingEntry) map[string]bool {
	ids := make(map[string]bool, len(entries))
	for _, e := range entries {
		ids[e.ID] = true
	}
	return ids
}
