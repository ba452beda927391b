package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ip-review/internal/platform/database"
	"github.com/pesio-ai/be-ip-review/internal/platform/errors"
	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

// PgSubmissionRepository persists workflow instances.
type PgSubmissionRepository struct {
	q database.Querier
}

// NewSubmissionRepository creates a new PgSubmissionRepository.
func NewSubmissionRepository(q database.Querier) *PgSubmissionRepository {
	return &PgSubmissionRepository{q: q}
}

const submissionColumns = `
	id, submission_type_id, current_stage_id, status, certificate,
	owner_id, title, details, version, archived,
	submitted_at, completed_at, created_at, updated_at`

func (r *PgSubmissionRepository) Create(ctx context.Context, s *workflow.Submission) error {
	if s.Version == 0 {
		s.Version = 1
	}
	query := `
		INSERT INTO submissions
		    (submission_type_id, current_stage_id, status, certificate,
		     owner_id, title, details, version, archived,
		     submitted_at, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7, $8, $9,
		        $10, $11, $12, $13)
		RETURNING id
	`
	err := r.q.QueryRow(ctx, query,
		s.SubmissionTypeID,
		s.CurrentStageID,
		s.Status,
		s.Certificate,
		s.OwnerID,
		s.Title,
		detailsArg(s),
		s.Version,
		s.Archived,
		s.SubmittedAt,
		s.CompletedAt,
		s.CreatedAt,
		s.UpdatedAt,
	).Scan(&s.ID)
	if err != nil {
		return translate(err, "", "failed to create submission")
	}
	return nil
}

func (r *PgSubmissionRepository) Get(ctx context.Context, id string) (*workflow.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`
	s, err := scanSubmission(r.q.QueryRow(ctx, query, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("submission", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get submission")
	}
	return s, nil
}

// GetForUpdate takes the row lock with NOWAIT so a competing transition is
// rejected immediately instead of queueing behind the holder.
func (r *PgSubmissionRepository) GetForUpdate(ctx context.Context, id string) (*workflow.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1 FOR UPDATE NOWAIT`
	s, err := scanSubmission(r.q.QueryRow(ctx, query, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("submission", id)
	}
	if err != nil {
		return nil, translate(err, id, "failed to lock submission")
	}
	return s, nil
}

func (r *PgSubmissionRepository) Update(ctx context.Context, s *workflow.Submission) error {
	query := `
		UPDATE submissions
		SET current_stage_id = $3,
		    status           = $4,
		    certificate      = $5,
		    title            = $6,
		    details          = $7,
		    archived         = $8,
		    submitted_at     = $9,
		    completed_at     = $10,
		    updated_at       = $11,
		    version          = version + 1
		WHERE id = $1 AND version = $2
	`
	tag, err := r.q.Exec(ctx, query,
		s.ID,
		s.Version,
		s.CurrentStageID,
		s.Status,
		s.Certificate,
		s.Title,
		detailsArg(s),
		s.Archived,
		s.SubmittedAt,
		s.CompletedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return translate(err, s.ID, "failed to update submission")
	}
	if tag.RowsAffected() == 0 {
		var current int
		err := r.q.QueryRow(ctx, `SELECT version FROM submissions WHERE id = $1`, s.ID).Scan(&current)
		if stderrors.Is(err, pgx.ErrNoRows) {
			return errors.NotFound("submission", s.ID)
		}
		if err != nil {
			return translate(err, s.ID, "failed to read submission version")
		}
		return &workflow.ConcurrentModificationError{
			SubmissionID: s.ID,
			Reason:       fmt.Sprintf("version %d is stale (current %d)", s.Version, current),
		}
	}
	s.Version++
	return nil
}

func (r *PgSubmissionRepository) CountByType(ctx context.Context, typeID string) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM submissions WHERE submission_type_id = $1`, typeID).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count submissions")
	}
	return n, nil
}

// NextCertificateSequence increments the per-type, per-year counter. The
// upsert holds the counter row lock until commit, so numbers are never
// handed out twice.
func (r *PgSubmissionRepository) NextCertificateSequence(ctx context.Context, typeID string, year int) (int, error) {
	query := `
		INSERT INTO certificate_sequences (submission_type_id, year, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (submission_type_id, year)
		DO UPDATE SET last_value = certificate_sequences.last_value + 1
		RETURNING last_value
	`
	var seq int
	if err := r.q.QueryRow(ctx, query, typeID, year).Scan(&seq); err != nil {
		return 0, translate(err, "", "failed to allocate certificate number")
	}
	return seq, nil
}

func detailsArg(s *workflow.Submission) any {
	if len(s.Details) == 0 {
		return nil
	}
	return []byte(s.Details)
}

func scanSubmission(row scanner) (*workflow.Submission, error) {
	s := &workflow.Submission{}
	var details []byte
	err := row.Scan(
		&s.ID,
		&s.SubmissionTypeID,
		&s.CurrentStageID,
		&s.Status,
		&s.Certificate,
		&s.OwnerID,
		&s.Title,
		&details,
		&s.Version,
		&s.Archived,
		&s.SubmittedAt,
		&s.CompletedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		s.Details = details
	}
	return s, nil
}
