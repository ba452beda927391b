package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/pesio-ai/be-ip-review/internal/platform/clock"
	"github.com/pesio-ai/be-ip-review/internal/platform/errors"
	"github.com/pesio-ai/be-ip-review/internal/platform/logger"
	"github.com/pesio-ai/be-ip-review/internal/repository"
	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

var codePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// CatalogService administers submission types, their stages and their
// document requirements.
type CatalogService struct {
	store    repository.Store
	registry *workflow.DetailRegistry
	clock    clock.Clock
	log      *logger.Logger
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(store repository.Store, registry *workflow.DetailRegistry, clk clock.Clock, log *logger.Logger) *CatalogService {
	return &CatalogService{store: store, registry: registry, clock: clk, log: log}
}

// ── Request types ────────────────────────────────────────────────────────────

type CreateTypeRequest struct {
	Code              string
	Name              string
	Kind              workflow.Kind
	CertificatePrefix string
}

type CreateStageRequest struct {
	SubmissionTypeID string
	Name             string
	Order            int
	ReviewerRole     string
}

// UpdateStageRequest changes only the non-nil fields.
type UpdateStageRequest struct {
	StageID      string
	Name         *string
	Order        *int
	ReviewerRole *string
	Active       *bool
}

type CreateRequirementRequest struct {
	SubmissionTypeID string
	Name             string
	Description      string
	Required         bool
	Order            int
}

type AttachRequirementRequest struct {
	StageID       string
	RequirementID string
	IsRequired    bool
	Order         int
}

// TypeDefinition is a submission type with its full configuration.
type TypeDefinition struct {
	Type         *workflow.SubmissionType
	Stages       []*workflow.Stage
	Requirements []*workflow.DocumentRequirement
	// Links maps stage id to the requirements attached to it.
	Links map[string][]*workflow.StageRequirement
}

// ── Submission types ─────────────────────────────────────────────────────────

func (s *CatalogService) CreateSubmissionType(ctx context.Context, req CreateTypeRequest) (*workflow.SubmissionType, error) {
	code := strings.TrimSpace(req.Code)
	if !codePattern.MatchString(code) {
		return nil, &workflow.ValidationError{Field: "code", Reason: "must be a lowercase slug"}
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, &workflow.ValidationError{Field: "name", Reason: "is required"}
	}
	if !s.registry.Known(req.Kind) {
		return nil, &workflow.ValidationError{Field: "kind", Reason: fmt.Sprintf("unsupported submission kind %q", req.Kind)}
	}

	now := s.clock.Now()
	t := &workflow.SubmissionType{
		Code:              code,
		Name:              strings.TrimSpace(req.Name),
		Kind:              req.Kind,
		CertificatePrefix: strings.ToUpper(strings.TrimSpace(req.CertificatePrefix)),
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		return tx.Catalog().CreateType(ctx, t)
	})
	if err != nil {
		return nil, fail("create_submission_type", err)
	}

	s.log.Info().Str("submission_type_id", t.ID).Str("code", t.Code).Msg("Submission type created")
	return t, nil
}

func (s *CatalogService) ListSubmissionTypes(ctx context.Context) ([]*workflow.SubmissionType, error) {
	var out []*workflow.SubmissionType
	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.Catalog().ListTypes(ctx)
		return err
	})
	return out, fail("list_submission_types", err)
}

// GetSubmissionType returns the type with its stages, requirements and
// stage links.
func (s *CatalogService) GetSubmissionType(ctx context.Context, typeID string) (*TypeDefinition, error) {
	var def *TypeDefinition
	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		var err error
		def, err = loadDefinition(ctx, tx, typeID)
		return err
	})
	if err != nil {
		return nil, fail("get_submission_type", err)
	}
	return def, nil
}

func loadDefinition(ctx context.Context, tx repository.Tx, typeID string) (*TypeDefinition, error) {
	t, err := tx.Catalog().GetType(ctx, typeID)
	if err != nil {
		return nil, err
	}
	stages, err := tx.Catalog().ListStages(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	reqs, err := tx.Catalog().ListRequirements(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	links := make(map[string][]*workflow.StageRequirement, len(stages))
	for _, st := range stages {
		l, err := tx.Catalog().ListStageRequirements(ctx, st.ID)
		if err != nil {
			return nil, err
		}
		links[st.ID] = l
	}
	return &TypeDefinition{Type: t, Stages: stages, Requirements: reqs, Links: links}, nil
}

// DeleteSubmissionType removes an unused type together with its stages and
// requirements. Types referenced by any submission cannot be deleted.
func (s *CatalogService) DeleteSubmissionType(ctx context.Context, typeID string) error {
	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		if _, err := tx.Catalog().GetType(ctx, typeID); err != nil {
			return err
		}
		n, err := tx.Submissions().CountByType(ctx, typeID)
		if err != nil {
			return err
		}
		if n > 0 {
			return &errors.AppError{
				Code:    errors.ErrCodeConflict,
				Message: fmt.Sprintf("submission type is referenced by %d submissions", n),
				Details: map[string]interface{}{"submission_count": n},
			}
		}
		return tx.Catalog().DeleteType(ctx, typeID)
	})
	if err != nil {
		return fail("delete_submission_type", err)
	}

	s.log.Info().Str("submission_type_id", typeID).Msg("Submission type deleted")
	return nil
}

// ── Stages ───────────────────────────────────────────────────────────────────

// CreateStage adds a stage. Inserting at or before a position where a
// submission is currently being reviewed would shift its sequence, so that
// is refused.
func (s *CatalogService) CreateStage(ctx context.Context, req CreateStageRequest) (*workflow.Stage, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, &workflow.ValidationError{Field: "name", Reason: "is required"}
	}
	if req.Order <= 0 {
		return nil, &workflow.ValidationError{Field: "order", Reason: "must be positive"}
	}

	now := s.clock.Now()
	st := &workflow.Stage{
		SubmissionTypeID: req.SubmissionTypeID,
		Name:             strings.TrimSpace(req.Name),
		Order:            req.Order,
		ReviewerRole:     strings.TrimSpace(req.ReviewerRole),
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		if _, err := tx.Catalog().GetType(ctx, req.SubmissionTypeID); err != nil {
			return err
		}
		if err := guardInFlight(ctx, tx, req.SubmissionTypeID, req.Order); err != nil {
			return err
		}
		return tx.Catalog().CreateStage(ctx, st)
	})
	if err != nil {
		return nil, fail("create_stage", err)
	}

	s.log.Info().Str("stage_id", st.ID).Str("submission_type_id", st.SubmissionTypeID).Int("order", st.Order).Msg("Stage created")
	return st, nil
}

// UpdateStage edits a stage. Renames are always allowed; changing order or
// active is refused while any submission has an active assignment at or
// after the affected position.
func (s *CatalogService) UpdateStage(ctx context.Context, req UpdateStageRequest) (*workflow.Stage, error) {
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, &workflow.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if req.Order != nil && *req.Order <= 0 {
		return nil, &workflow.ValidationError{Field: "order", Reason: "must be positive"}
	}

	var st *workflow.Stage
	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		var err error
		st, err = tx.Catalog().GetStage(ctx, req.StageID)
		if err != nil {
			return err
		}

		structural := (req.Order != nil && *req.Order != st.Order) || (req.Active != nil && *req.Active != st.Active)
		if structural {
			pos := st.Order
			if req.Order != nil && *req.Order < pos {
				pos = *req.Order
			}
			if err := guardInFlight(ctx, tx, st.SubmissionTypeID, pos); err != nil {
				return err
			}
		}

		if req.Name != nil {
			st.Name = strings.TrimSpace(*req.Name)
		}
		if req.Order != nil {
			st.Order = *req.Order
		}
		if req.ReviewerRole != nil {
			st.ReviewerRole = strings.TrimSpace(*req.ReviewerRole)
		}
		if req.Active != nil {
			st.Active = *req.Active
		}
		st.UpdatedAt = s.clock.Now()
		return tx.Catalog().UpdateStage(ctx, st)
	})
	if err != nil {
		return nil, fail("update_stage", err)
	}

	s.log.Info().Str("stage_id", st.ID).Int("order", st.Order).Bool("active", st.Active).Msg("Stage updated")
	return st, nil
}

func guardInFlight(ctx context.Context, tx repository.Tx, typeID string, order int) error {
	n, err := tx.Assignments().CountActiveFromOrder(ctx, typeID, order)
	if err != nil {
		return err
	}
	if n > 0 {
		return &errors.AppError{
			Code:    errors.ErrCodeConflict,
			Message: fmt.Sprintf("%d submissions are in review at or after stage position %d", n, order),
			Details: map[string]interface{}{"active_assignments": n, "order": order},
		}
	}
	return nil
}

// ── Requirements ─────────────────────────────────────────────────────────────

func (s *CatalogService) CreateRequirement(ctx context.Context, req CreateRequirementRequest) (*workflow.DocumentRequirement, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, &workflow.ValidationError{Field: "name", Reason: "is required"}
	}

	now := s.clock.Now()
	r := &workflow.DocumentRequirement{
		SubmissionTypeID: req.SubmissionTypeID,
		Name:             strings.TrimSpace(req.Name),
		Description:      strings.TrimSpace(req.Description),
		Required:         req.Required,
		Order:            req.Order,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		if _, err := tx.Catalog().GetType(ctx, req.SubmissionTypeID); err != nil {
			return err
		}
		return tx.Catalog().CreateRequirement(ctx, r)
	})
	if err != nil {
		return nil, fail("create_requirement", err)
	}

	s.log.Info().Str("requirement_id", r.ID).Str("submission_type_id", r.SubmissionTypeID).Msg("Document requirement created")
	return r, nil
}

// AttachRequirement links a requirement to a stage of the same type.
func (s *CatalogService) AttachRequirement(ctx context.Context, req AttachRequirementRequest) (*workflow.StageRequirement, error) {
	link := &workflow.StageRequirement{
		StageID:       req.StageID,
		RequirementID: req.RequirementID,
		IsRequired:    req.IsRequired,
		Order:         req.Order,
		CreatedAt:     s.clock.Now(),
	}
	err := s.store.InTransaction(ctx, func(tx repository.Tx) error {
		st, err := tx.Catalog().GetStage(ctx, req.StageID)
		if err != nil {
			return err
		}
		r, err := tx.Catalog().GetRequirement(ctx, req.RequirementID)
		if err != nil {
			return err
		}
		if r.SubmissionTypeID != st.SubmissionTypeID {
			return &workflow.ValidationError{Field: "requirement_id", Reason: "belongs to a different submission type than the stage"}
		}
		return tx.Catalog().AttachRequirement(ctx, link)
	})
	if err != nil {
		return nil, fail("attach_requirement", err)
	}

	s.log.Info().Str("stage_id", link.StageID).Str("requirement_id", link.RequirementID).Bool("is_required", link.IsRequired).Msg("Requirement attached to stage")
	return link, nil
}
