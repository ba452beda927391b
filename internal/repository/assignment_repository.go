package repository

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ip-review/internal/platform/database"
	"github.com/pesio-ai/be-ip-review/internal/platform/errors"
	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

// PgAssignmentRepository persists reviewer stage visits.
type PgAssignmentRepository struct {
	q database.Querier
}

// NewAssignmentRepository creates a new PgAssignmentRepository.
func NewAssignmentRepository(q database.Querier) *PgAssignmentRepository {
	return &PgAssignmentRepository{q: q}
}

const assignmentColumns = `
	id, submission_id, stage_id, reviewer_id, status, notes,
	assigned_at, completed_at, completed_by`

// Create fails with CONFLICT when the stage already has an open assignment;
// the partial unique index enforces one per (submission, stage).
func (r *PgAssignmentRepository) Create(ctx context.Context, a *workflow.WorkflowAssignment) error {
	query := `
		INSERT INTO workflow_assignments
		    (submission_id, stage_id, reviewer_id, status, notes, assigned_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := r.q.QueryRow(ctx, query,
		a.SubmissionID, a.StageID, a.ReviewerID, a.Status, a.Notes, a.AssignedAt,
	).Scan(&a.ID)
	if err != nil {
		return translate(err, a.SubmissionID, "failed to create assignment")
	}
	return nil
}

func (r *PgAssignmentRepository) GetActive(ctx context.Context, submissionID, stageID string) (*workflow.WorkflowAssignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM workflow_assignments
		WHERE submission_id = $1 AND stage_id = $2 AND completed_at IS NULL
		LIMIT 1
	`
	return r.getOne(ctx, query, submissionID, stageID)
}

func (r *PgAssignmentRepository) Latest(ctx context.Context, submissionID, stageID string) (*workflow.WorkflowAssignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM workflow_assignments
		WHERE submission_id = $1 AND stage_id = $2
		ORDER BY assigned_at DESC, id DESC
		LIMIT 1
	`
	return r.getOne(ctx, query, submissionID, stageID)
}

func (r *PgAssignmentRepository) getOne(ctx context.Context, query string, args ...any) (*workflow.WorkflowAssignment, error) {
	a, err := scanAssignment(r.q.QueryRow(ctx, query, args...))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get assignment")
	}
	return a, nil
}

func (r *PgAssignmentRepository) Complete(ctx context.Context, id string, status workflow.AssignmentStatus, completedBy string, notes *string, at time.Time) error {
	query := `
		UPDATE workflow_assignments
		SET status       = $2,
		    completed_by = $3,
		    notes        = $4,
		    completed_at = $5
		WHERE id = $1 AND completed_at IS NULL
	`
	tag, err := r.q.Exec(ctx, query, id, status, completedBy, notes, at)
	if err != nil {
		return translate(err, "", "failed to complete assignment")
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.ErrCodeConflict, "assignment not found or already completed")
	}
	return nil
}

func (r *PgAssignmentRepository) Reassign(ctx context.Context, id string, reviewerID *string, at time.Time) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE workflow_assignments SET reviewer_id = $2, assigned_at = $3 WHERE id = $1`,
		id, reviewerID, at,
	)
	if err != nil {
		return translate(err, "", "failed to reassign")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("workflow_assignment", id)
	}
	return nil
}

func (r *PgAssignmentRepository) ListBySubmission(ctx context.Context, submissionID string) ([]*workflow.WorkflowAssignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM workflow_assignments
		WHERE submission_id = $1
		ORDER BY assigned_at ASC, id ASC
	`
	rows, err := r.q.Query(ctx, query, submissionID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list assignments")
	}
	defer rows.Close()

	var out []*workflow.WorkflowAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan assignment")
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PgAssignmentRepository) CountActiveFromOrder(ctx context.Context, typeID string, order int) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM workflow_assignments a
		JOIN stages s ON s.id = a.stage_id
		WHERE s.submission_type_id = $1
		  AND s.stage_order >= $2
		  AND a.completed_at IS NULL
	`
	var n int
	if err := r.q.QueryRow(ctx, query, typeID, order).Scan(&n); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count active assignments")
	}
	return n, nil
}

func scanAssignment(row scanner) (*workflow.WorkflowAssignment, error) {
	a := &workflow.WorkflowAssignment{}
	err := row.Scan(
		&a.ID,
		&a.SubmissionID,
		&a.StageID,
		&a.ReviewerID,
		&a.Status,
		&a.Notes,
		&a.AssignedAt,
		&a.CompletedAt,
		&a.CompletedBy,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}
