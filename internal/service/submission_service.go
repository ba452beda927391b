package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pesio-ai/be-ip-review/internal/platform/clock"
	"github.com/pesio-ai/be-ip-review/internal/platform/errors"
	"github.com/pesio-ai/be-ip-review/internal/platform/logger"
	"github.com/pesio-ai/be-ip-review/internal/repository"
	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

// SubmissionService creates submissions and keeps their document registry.
type SubmissionService struct {
	store    repository.Store
	registry *workflow.DetailRegistry
	clock    clock.Clock
	log      *logger.Logger
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(store repository.Store, registry *workflow.DetailRegistry, clk clock.Clock, log *logger.Logger) *SubmissionService {
	return &SubmissionService{store: store, registry: registry, clock: clk, log: log}
}

// ── Request / response types ─────────────────────────────────────────────────

type CreateSubmissionRequest struct {
	SubmissionTypeID string
	OwnerID          string
	Title            string
	Details          json.RawMessage
}

type UploadDocumentRequest struct {
	SubmissionID  string
	RequirementID string
	FileName      string
	ActorID       string
}

type ReplaceDocumentRequest struct {
	DocumentID string
	FileName   string
	ActorID    string
}

// SubmissionView is a submission with its registry and assignment history.
type SubmissionView struct {
	Submission     *workflow.Submission
	Type           *workflow.SubmissionType
	CurrentStage   *workflow.Stage
	Documents      []*workflow.SubmissionDocument
	Assignments    []*workflow.WorkflowAssignment
	AllowedActions []workflow.Action
}

// ── Submissions ──────────────────────────────────────────────────────────────

// CreateSubmission validates the kind-specific details against the type's
// registered variant and stores a draft.
func (s *SubmissionService) CreateSubmission(ctx context.Context, req CreateSubmissionRequest) (*workflow.Submission, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, &workflow.ValidationError{Field: "owner_id", Reason: "is required"}
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, &workflow.ValidationError{Field: "title", Reason: "is required"}
	}

	now := s.clock.Now()
	sub := &workflow.Submission{
		SubmissionTypeID: req.SubmissionTypeID,
		Status:           workflow.StatusDraft,
		OwnerID:          req.OwnerID,
		Title:            strings.TrimSpace(req.Title),
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		t, err := tx.Catalog().GetType(ctx, req.SubmissionTypeID)
		if err != nil {
			return err
		}
		if !t.Active {
			return &workflow.ValidationError{Field: "submission_type_id", Reason: "submission type is inactive"}
		}
		details, err := s.registry.Decode(t.Kind, req.Details)
		if err != nil {
			return err
		}
		normalized, err := json.Marshal(details)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to encode details")
		}
		sub.Details = normalized
		return tx.Submissions().Create(ctx, sub)
	})
	if err != nil {
		return nil, fail("create_submission", err)
	}

	s.log.Info().
		Str("submission_id", sub.ID).
		Str("submission_type_id", sub.SubmissionTypeID).
		Str("owner_id", sub.OwnerID).
		Msg("Submission created")
	return sub, nil
}

// GetSubmission returns the submission with its documents and assignments.
func (s *SubmissionService) GetSubmission(ctx context.Context, id string) (*SubmissionView, error) {
	var view *SubmissionView
	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		sub, err := tx.Submissions().Get(ctx, id)
		if err != nil {
			return err
		}
		t, err := tx.Catalog().GetType(ctx, sub.SubmissionTypeID)
		if err != nil {
			return err
		}
		docs, err := tx.Documents().ListBySubmission(ctx, sub.ID)
		if err != nil {
			return err
		}
		assignments, err := tx.Assignments().ListBySubmission(ctx, sub.ID)
		if err != nil {
			return err
		}
		view = &SubmissionView{
			Submission:  sub,
			Type:        t,
			Documents:   docs,
			Assignments: assignments,
		}
		if !sub.Archived {
			view.AllowedActions = workflow.AllowedActions(sub.Status)
		}
		if sub.CurrentStageID != nil {
			if view.CurrentStage, err = tx.Catalog().GetStage(ctx, *sub.CurrentStageID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fail("get_submission", err)
	}
	return view, nil
}

// ArchiveSubmission soft-deletes a draft or a finished submission. Archived
// submissions accept no further transitions.
func (s *SubmissionService) ArchiveSubmission(ctx context.Context, id, actorID string) (*workflow.Submission, error) {
	var sub *workflow.Submission
	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		var err error
		sub, err = tx.Submissions().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if sub.Archived {
			return nil
		}
		if sub.Status != workflow.StatusDraft && !sub.Status.Terminal() {
			return errors.New(errors.ErrCodeConflict, fmt.Sprintf("submission in status %s cannot be archived", sub.Status))
		}
		sub.Archived = true
		sub.UpdatedAt = s.clock.Now()
		return tx.Submissions().Update(ctx, sub)
	})
	if err != nil {
		return nil, fail("archive_submission", err)
	}

	s.log.Info().Str("submission_id", sub.ID).Str("actor_id", actorID).Msg("Submission archived")
	return sub, nil
}

// ── Documents ────────────────────────────────────────────────────────────────

// UploadDocument registers a new pending document for one of the type's
// requirements.
func (s *SubmissionService) UploadDocument(ctx context.Context, req UploadDocumentRequest) (*workflow.SubmissionDocument, error) {
	if strings.TrimSpace(req.FileName) == "" {
		return nil, &workflow.ValidationError{Field: "file_name", Reason: "is required"}
	}
	if strings.TrimSpace(req.ActorID) == "" {
		return nil, &workflow.ValidationError{Field: "actor_id", Reason: "is required"}
	}

	var doc *workflow.SubmissionDocument
	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		sub, err := s.lockOpen(ctx, tx, req.SubmissionID)
		if err != nil {
			return err
		}
		r, err := tx.Catalog().GetRequirement(ctx, req.RequirementID)
		if err != nil {
			return err
		}
		if r.SubmissionTypeID != sub.SubmissionTypeID || !r.Active {
			return &workflow.ValidationError{Field: "requirement_id", Reason: "is not an active requirement of the submission type"}
		}

		now := s.clock.Now()
		doc = &workflow.SubmissionDocument{
			SubmissionID:  sub.ID,
			RequirementID: r.ID,
			FileName:      strings.TrimSpace(req.FileName),
			Status:        workflow.DocumentPending,
			UploadedBy:    req.ActorID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Documents().Create(ctx, doc); err != nil {
			return err
		}
		return tx.Tracking().Append(ctx, documentEntry(sub, doc, workflow.ActionDocumentUploaded, req.ActorID, now, nil))
	})
	if err != nil {
		return nil, fail("upload_document", err)
	}

	s.log.Info().
		Str("submission_id", doc.SubmissionID).
		Str("document_id", doc.ID).
		Str("requirement_id", doc.RequirementID).
		Msg("Document uploaded")
	return doc, nil
}

// ReplaceDocument supersedes a document: the old row becomes replaced and a
// new pending row for the same requirement is appended.
func (s *SubmissionService) ReplaceDocument(ctx context.Context, req ReplaceDocumentRequest) (*workflow.SubmissionDocument, error) {
	if strings.TrimSpace(req.FileName) == "" {
		return nil, &workflow.ValidationError{Field: "file_name", Reason: "is required"}
	}
	if strings.TrimSpace(req.ActorID) == "" {
		return nil, &workflow.ValidationError{Field: "actor_id", Reason: "is required"}
	}

	var doc *workflow.SubmissionDocument
	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		old, err := tx.Documents().Get(ctx, req.DocumentID)
		if err != nil {
			return err
		}
		sub, err := s.lockOpen(ctx, tx, old.SubmissionID)
		if err != nil {
			return err
		}
		if !old.Active() {
			return errors.New(errors.ErrCodeConflict, fmt.Sprintf("document %s has already been replaced", old.ID))
		}

		now := s.clock.Now()
		if err := tx.Documents().UpdateStatus(ctx, old.ID, workflow.DocumentReplaced, old.Notes, now); err != nil {
			return err
		}
		doc = &workflow.SubmissionDocument{
			SubmissionID:  sub.ID,
			RequirementID: old.RequirementID,
			FileName:      strings.TrimSpace(req.FileName),
			Status:        workflow.DocumentPending,
			ReplacesID:    workflow.StringPtr(old.ID),
			UploadedBy:    req.ActorID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Documents().Create(ctx, doc); err != nil {
			return err
		}
		meta := map[string]interface{}{"replaced_document_id": old.ID, "replaced_status": string(old.Status)}
		return tx.Tracking().Append(ctx, documentEntry(sub, doc, workflow.ActionDocumentReplaced, req.ActorID, now, meta))
	})
	if err != nil {
		return nil, fail("replace_document", err)
	}

	s.log.Info().
		Str("submission_id", doc.SubmissionID).
		Str("document_id", doc.ID).
		Str("replaces_id", workflow.Deref(doc.ReplacesID)).
		Msg("Document replaced")
	return doc, nil
}

// lockOpen locks a submission that can still receive documents.
func (s *SubmissionService) lockOpen(ctx context.Context, tx repository.Tx, id string) (*workflow.Submission, error) {
	sub, err := tx.Submissions().GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Archived || sub.Status.Terminal() {
		return nil, errors.New(errors.ErrCodeConflict, fmt.Sprintf("submission in status %s does not accept documents", sub.Status))
	}
	return sub, nil
}

func documentEntry(sub *workflow.Submission, doc *workflow.SubmissionDocument, action workflow.Action, actor string, at time.Time, extra map[string]interface{}) *workflow.TrackingEntry {
	meta := map[string]interface{}{
		"document_id":    doc.ID,
		"requirement_id": doc.RequirementID,
		"file_name":      doc.FileName,
		"new_status":     string(doc.Status),
	}
	for k, v := range extra {
		meta[k] = v
	}
	return &workflow.TrackingEntry{
		SubmissionID: sub.ID,
		StageID:      sub.CurrentStageID,
		Action:       action,
		EventType:    workflow.EntryDocumentStatus,
		Status:       sub.Status,
		SourceStatus: sub.Status,
		TargetStatus: sub.Status,
		ProcessedBy:  actor,
		Metadata:     meta,
		CreatedAt:    at,
	}
}
