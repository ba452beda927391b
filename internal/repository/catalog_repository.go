package repository

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ip-review/internal/platform/database"
	"github.com/pesio-ai/be-ip-review/internal/platform/errors"
	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

// PgCatalogRepository reads and writes the reference data: submission types,
// their stages, document requirements and stage links.
type PgCatalogRepository struct {
	q database.Querier
}

// NewCatalogRepository creates a new PgCatalogRepository.
func NewCatalogRepository(q database.Querier) *PgCatalogRepository {
	return &PgCatalogRepository{q: q}
}

// ── submission types ─────────────────────────────────────────────────────────

const typeColumns = `id, code, name, kind, certificate_prefix, active, created_at, updated_at`

func (r *PgCatalogRepository) CreateType(ctx context.Context, t *workflow.SubmissionType) error {
	query := `
		INSERT INTO submission_types (code, name, kind, certificate_prefix, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id
	`
	err := r.q.QueryRow(ctx, query,
		t.Code, t.Name, t.Kind, t.CertificatePrefix, t.Active, t.CreatedAt,
	).Scan(&t.ID)
	if err != nil {
		return translate(err, "", "failed to create submission type")
	}
	t.UpdatedAt = t.CreatedAt
	return nil
}

func (r *PgCatalogRepository) GetType(ctx context.Context, id string) (*workflow.SubmissionType, error) {
	query := `SELECT ` + typeColumns + ` FROM submission_types WHERE id = $1`
	t, err := scanType(r.q.QueryRow(ctx, query, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("submission_type", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get submission type")
	}
	return t, nil
}

func (r *PgCatalogRepository) GetTypeByCode(ctx context.Context, code string) (*workflow.SubmissionType, error) {
	query := `SELECT ` + typeColumns + ` FROM submission_types WHERE code = $1`
	t, err := scanType(r.q.QueryRow(ctx, query, code))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("submission_type", code)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get submission type")
	}
	return t, nil
}

func (r *PgCatalogRepository) ListTypes(ctx context.Context) ([]*workflow.SubmissionType, error) {
	rows, err := r.q.Query(ctx, `SELECT `+typeColumns+` FROM submission_types ORDER BY code ASC`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list submission types")
	}
	defer rows.Close()

	var out []*workflow.SubmissionType
	for rows.Next() {
		t, err := scanType(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan submission type")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteType cascades to stages, requirements and links through foreign
// keys. Submissions reference the type with RESTRICT.
func (r *PgCatalogRepository) DeleteType(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM submission_types WHERE id = $1`, id)
	if err != nil {
		return translate(err, "", "failed to delete submission type")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("submission_type", id)
	}
	return nil
}

func scanType(row scanner) (*workflow.SubmissionType, error) {
	t := &workflow.SubmissionType{}
	err := row.Scan(&t.ID, &t.Code, &t.Name, &t.Kind, &t.CertificatePrefix, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ── stages ───────────────────────────────────────────────────────────────────

const stageColumns = `id, submission_type_id, name, stage_order, reviewer_role, active, created_at, updated_at`

func (r *PgCatalogRepository) CreateStage(ctx context.Context, s *workflow.Stage) error {
	query := `
		INSERT INTO stages (submission_type_id, name, stage_order, reviewer_role, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id
	`
	err := r.q.QueryRow(ctx, query,
		s.SubmissionTypeID, s.Name, s.Order, s.ReviewerRole, s.Active, s.CreatedAt,
	).Scan(&s.ID)
	if err != nil {
		return translate(err, "", "failed to create stage")
	}
	s.UpdatedAt = s.CreatedAt
	return nil
}

func (r *PgCatalogRepository) UpdateStage(ctx context.Context, s *workflow.Stage) error {
	query := `
		UPDATE stages
		SET name          = $2,
		    stage_order   = $3,
		    reviewer_role = $4,
		    active        = $5,
		    updated_at    = $6
		WHERE id = $1
	`
	tag, err := r.q.Exec(ctx, query, s.ID, s.Name, s.Order, s.ReviewerRole, s.Active, s.UpdatedAt)
	if err != nil {
		return translate(err, "", "failed to update stage")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("stage", s.ID)
	}
	return nil
}

func (r *PgCatalogRepository) GetStage(ctx context.Context, id string) (*workflow.Stage, error) {
	query := `SELECT ` + stageColumns + ` FROM stages WHERE id = $1`
	s, err := scanStage(r.q.QueryRow(ctx, query, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("stage", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get stage")
	}
	return s, nil
}

// ListStages returns every stage of the type, inactive ones included.
func (r *PgCatalogRepository) ListStages(ctx context.Context, typeID string) ([]*workflow.Stage, error) {
	query := `SELECT ` + stageColumns + ` FROM stages WHERE submission_type_id = $1 ORDER BY stage_order ASC`
	rows, err := r.q.Query(ctx, query, typeID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list stages")
	}
	defer rows.Close()

	var out []*workflow.Stage
	for rows.Next() {
		s, err := scanStage(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan stage")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanStage(row scanner) (*workflow.Stage, error) {
	s := &workflow.Stage{}
	err := row.Scan(&s.ID, &s.SubmissionTypeID, &s.Name, &s.Order, &s.ReviewerRole, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ── requirements ─────────────────────────────────────────────────────────────

const requirementColumns = `id, submission_type_id, name, description, required, req_order, active, created_at, updated_at`

func (r *PgCatalogRepository) CreateRequirement(ctx context.Context, q *workflow.DocumentRequirement) error {
	query := `
		INSERT INTO document_requirements
		    (submission_type_id, name, description, required, req_order, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id
	`
	err := r.q.QueryRow(ctx, query,
		q.SubmissionTypeID, q.Name, q.Description, q.Required, q.Order, q.Active, q.CreatedAt,
	).Scan(&q.ID)
	if err != nil {
		return translate(err, "", "failed to create document requirement")
	}
	q.UpdatedAt = q.CreatedAt
	return nil
}

func (r *PgCatalogRepository) GetRequirement(ctx context.Context, id string) (*workflow.DocumentRequirement, error) {
	query := `SELECT ` + requirementColumns + ` FROM document_requirements WHERE id = $1`
	q, err := scanRequirement(r.q.QueryRow(ctx, query, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("document_requirement", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get document requirement")
	}
	return q, nil
}

func (r *PgCatalogRepository) ListRequirements(ctx context.Context, typeID string) ([]*workflow.DocumentRequirement, error) {
	query := `
		SELECT ` + requirementColumns + `
		FROM document_requirements
		WHERE submission_type_id = $1
		ORDER BY req_order ASC, id ASC
	`
	rows, err := r.q.Query(ctx, query, typeID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list document requirements")
	}
	defer rows.Close()

	var out []*workflow.DocumentRequirement
	for rows.Next() {
		q, err := scanRequirement(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan document requirement")
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func scanRequirement(row scanner) (*workflow.DocumentRequirement, error) {
	q := &workflow.DocumentRequirement{}
	err := row.Scan(&q.ID, &q.SubmissionTypeID, &q.Name, &q.Description, &q.Required, &q.Order, &q.Active, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// ── stage links ──────────────────────────────────────────────────────────────

func (r *PgCatalogRepository) AttachRequirement(ctx context.Context, l *workflow.StageRequirement) error {
	query := `
		INSERT INTO stage_requirements (stage_id, requirement_id, is_required, link_order, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := r.q.QueryRow(ctx, query, l.StageID, l.RequirementID, l.IsRequired, l.Order, l.CreatedAt).Scan(&l.ID)
	if err != nil {
		return translate(err, "", "failed to attach requirement to stage")
	}
	return nil
}

func (r *PgCatalogRepository) ListStageRequirements(ctx context.Context, stageID string) ([]*workflow.StageRequirement, error) {
	query := `
		SELECT id, stage_id, requirement_id, is_required, link_order, created_at
		FROM stage_requirements
		WHERE stage_id = $1
		ORDER BY link_order ASC
	`
	rows, err := r.q.Query(ctx, query, stageID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list stage requirements")
	}
	defer rows.Close()

	var out []*workflow.StageRequirement
	for rows.Next() {
		l := &workflow.StageRequirement{}
		if err := rows.Scan(&l.ID, &l.StageID, &l.RequirementID, &l.IsRequired, &l.Order, &l.CreatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan stage requirement")
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
