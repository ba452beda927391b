package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ip-review/internal/platform/database"
	"github.com/pesio-ai/be-ip-review/internal/platform/errors"
	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

// PgTrackingRepository appends and reads immutable tracking ledger entries.
type PgTrackingRepository struct {
	q database.Querier
}

// NewTrackingRepository creates a new PgTrackingRepository.
func NewTrackingRepository(q database.Querier) *PgTrackingRepository {
	return &PgTrackingRepository{q: q}
}

// Append inserts one entry. The table carries a guard trigger that rejects
// deletes and any update other than resolving an open entry.
func (r *PgTrackingRepository) Append(ctx context.Context, e *workflow.TrackingEntry) error {
	var metadataJSON []byte
	if e.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(e.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal tracking metadata")
		}
	}

	query := `
		INSERT INTO tracking_entries
		    (submission_id, stage_id, previous_stage_id,
		     action, event_type, status,
		     source_status, target_status,
		     comment, processed_by, metadata, created_at)
		VALUES ($1, $2, $3,
		        $4, $5, $6,
		        $7, $8,
		        $9, $10, $11, $12)
		RETURNING id, seq
	`

	err := r.q.QueryRow(ctx, query,
		e.SubmissionID,
		e.StageID,
		e.PreviousStageID,
		e.Action,
		e.EventType,
		e.Status,
		e.SourceStatus,
		e.TargetStatus,
		e.Comment,
		e.ProcessedBy,
		metadataJSON,
		e.CreatedAt,
	).Scan(&e.ID, &e.Seq)
	if err != nil {
		return translate(err, e.SubmissionID, "failed to append tracking entry")
	}
	return nil
}

// ListBySubmission returns the full ledger of a submission oldest-first.
func (r *PgTrackingRepository) ListBySubmission(ctx context.Context, submissionID string) ([]*workflow.TrackingEntry, error) {
	query := `
		SELECT id, submission_id, stage_id, previous_stage_id,
		       action, event_type, status,
		       source_status, target_status,
		       comment, processed_by, metadata,
		       seq, created_at, resolved_at
		FROM tracking_entries
		WHERE submission_id = $1
		ORDER BY created_at ASC, seq ASC
	`

	rows, err := r.q.Query(ctx, query, submissionID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get tracking entries")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

func (r *PgTrackingRepository) ResolveOpen(ctx context.Context, submissionID string, status workflow.Status, at time.Time) (int, error) {
	query := `
		UPDATE tracking_entries
		SET resolved_at = $3
		WHERE submission_id = $1 AND status = $2 AND resolved_at IS NULL
		  AND event_type = ANY($4)
	`
	types := make([]string, len(workflow.RevisionEntryTypes))
	for i, t := range workflow.RevisionEntryTypes {
		types[i] = string(t)
	}
	tag, err := r.q.Exec(ctx, query, submissionID, status, at, types)
	if err != nil {
		return 0, translate(err, submissionID, "failed to resolve tracking entries")
	}
	return int(tag.RowsAffected()), nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *PgTrackingRepository) scanRows(rows pgx.Rows) ([]*workflow.TrackingEntry, error) {
	var entries []*workflow.TrackingEntry
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *PgTrackingRepository) scanEntry(sc scanner) (*workflow.TrackingEntry, error) {
	e := &workflow.TrackingEntry{}
	var metadataJSON []byte

	err := sc.Scan(
		&e.ID,
		&e.SubmissionID,
		&e.StageID,
		&e.PreviousStageID,
		&e.Action,
		&e.EventType,
		&e.Status,
		&e.SourceStatus,
		&e.TargetStatus,
		&e.Comment,
		&e.ProcessedBy,
		&metadataJSON,
		&e.Seq,
		&e.CreatedAt,
		&e.ResolvedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan tracking entry")
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal tracking metadata")
		}
	}
	return e, nil
}
