package repository

import (
	"context"
	_ "embed"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ip-review/internal/platform/database"
	"github.com/pesio-ai/be-ip-review/internal/platform/errors"
	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies the embedded schema. Safe to run repeatedly.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to apply schema")
	}
	return nil
}

// InTransaction implements Store.
func (s *PostgresStore) InTransaction(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		return fn(pgTx{q: tx})
	})
}

type pgTx struct {
	q database.Querier
}

func (t pgTx) Catalog() CatalogRepository { return NewCatalogRepository(t.q) }
func (t pgTx) Submissions() SubmissionRepository { return NewSubmissionRepository(t.q) }
func (t pgTx) Documents() DocumentRepository { return NewDocumentRepository(t.q) }
func (t pgTx) Assignments() AssignmentRepository { return NewAssignmentRepository(t.q) }
func (t pgTx) Tracking() TrackingRepository { return NewTrackingRepository(t.q) }
func (t pgTx) Outbox() OutboxRepository { return NewOutboxRepository(t.q) }

// scanner is satisfied by pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// translate maps lock and serialization failures to the workflow's
// concurrency error and wraps everything else as internal.
func translate(err error, submissionID, message string) error {
	if err == nil {
		return nil
	}
	switch database.SQLState(err) {
	case database.SQLStateLockNotAvailable, database.SQLStateSerializationFailure, database.SQLStateDeadlockDetected:
		return &workflow.ConcurrentModificationError{SubmissionID: submissionID, Reason: "row is locked by another transaction"}
	case database.SQLStateUniqueViolation:
		return errors.Wrap(err, errors.ErrCodeConflict, message)
	case database.SQLStateForeignKeyViolation:
		return errors.Wrap(err, errors.ErrCodeConflict, message)
	}
	return errors.Wrap(err, errors.ErrCodeInternal, message)
}
