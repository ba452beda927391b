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

// PgDocumentRepository persists uploaded submission documents.
type PgDocumentRepository struct {
	q database.Querier
}

// NewDocumentRepository creates a new PgDocumentRepository.
func NewDocumentRepository(q database.Querier) *PgDocumentRepository {
	return &PgDocumentRepository{q: q}
}

const documentColumns = `
	id, submission_id, requirement_id, file_name, status, notes,
	replaces_id, uploaded_by, seq, created_at, updated_at`

func (r *PgDocumentRepository) Create(ctx context.Context, d *workflow.SubmissionDocument) error {
	query := `
		INSERT INTO submission_documents
		    (submission_id, requirement_id, file_name, status, notes,
		     replaces_id, uploaded_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5,
		        $6, $7, $8, $9)
		RETURNING id, seq
	`
	err := r.q.QueryRow(ctx, query,
		d.SubmissionID,
		d.RequirementID,
		d.FileName,
		d.Status,
		d.Notes,
		d.ReplacesID,
		d.UploadedBy,
		d.CreatedAt,
		d.UpdatedAt,
	).Scan(&d.ID, &d.Seq)
	if err != nil {
		return translate(err, d.SubmissionID, "failed to create document")
	}
	return nil
}

func (r *PgDocumentRepository) Get(ctx context.Context, id string) (*workflow.SubmissionDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM submission_documents WHERE id = $1`
	d, err := scanDocument(r.q.QueryRow(ctx, query, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("submission_document", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get document")
	}
	return d, nil
}

// ListBySubmission returns every document of the submission in insertion
// order, replaced ones included.
func (r *PgDocumentRepository) ListBySubmission(ctx context.Context, submissionID string) ([]*workflow.SubmissionDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM submission_documents WHERE submission_id = $1 ORDER BY seq ASC`
	rows, err := r.q.Query(ctx, query, submissionID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list documents")
	}
	defer rows.Close()

	var out []*workflow.SubmissionDocument
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan document")
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PgDocumentRepository) UpdateStatus(ctx context.Context, id string, status workflow.DocumentStatus, notes *string, at time.Time) error {
	query := `UPDATE submission_documents SET status = $2, notes = $3, updated_at = $4 WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, id, status, notes, at)
	if err != nil {
		return translate(err, "", "failed to update document status")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("submission_document", id)
	}
	return nil
}

func scanDocument(row scanner) (*workflow.SubmissionDocument, error) {
	d := &workflow.SubmissionDocument{}
	err := row.Scan(
		&d.ID,
		&d.SubmissionID,
		&d.RequirementID,
		&d.FileName,
		&d.Status,
		&d.Notes,
		&d.ReplacesID,
		&d.UploadedBy,
		&d.Seq,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}
