package repository

import (
	"context"
	"time"

	"github.com/pesio-ai/be-ip-review/internal/workflow"
)

// Store is the transactional unit-of-work boundary. Every read inside fn
// sees the writes made earlier in fn; fn's writes commit together or not at
// all.
type Store interface {
	InTransaction(ctx context.Context, fn func(tx Tx) error) error
}

// Tx exposes the repositories bound to one transaction.
type Tx interface {
	Catalog() CatalogRepository
	Submissions() SubmissionRepository
	Documents() DocumentRepository
	Assignments() AssignmentRepository
	Tracking() TrackingRepository
	Outbox() OutboxRepository
}

// CatalogRepository manages submission types, stages and requirements.
type CatalogRepository interface {
	CreateType(ctx context.Context, t *workflow.SubmissionType) error
	GetType(ctx context.Context, id string) (*workflow.SubmissionType, error)
	GetTypeByCode(ctx context.Context, code string) (*workflow.SubmissionType, error)
	ListTypes(ctx context.Context) ([]*workflow.SubmissionType, error)
	DeleteType(ctx context.Context, id string) error

	CreateStage(ctx context.Context, s *workflow.Stage) error
	UpdateStage(ctx context.Context, s *workflow.Stage) error
	GetStage(ctx context.Context, id string) (*workflow.Stage, error)
	ListStages(ctx context.Context, typeID string) ([]*workflow.Stage, error)

	CreateRequirement(ctx context.Context, r *workflow.DocumentRequirement) error
	GetRequirement(ctx context.Context, id string) (*workflow.DocumentRequirement, error)
	ListRequirements(ctx context.Context, typeID string) ([]*workflow.DocumentRequirement, error)

	AttachRequirement(ctx context.Context, l *workflow.StageRequirement) error
	ListStageRequirements(ctx context.Context, stageID string) ([]*workflow.StageRequirement, error)
}

// SubmissionRepository manages workflow instances.
type SubmissionRepository interface {
	Create(ctx context.Context, s *workflow.Submission) error
	Get(ctx context.Context, id string) (*workflow.Submission, error)
	// GetForUpdate loads the submission and holds its row lock until the
	// transaction ends. A lock held by another transaction yields
	// ConcurrentModificationError rather than waiting.
	GetForUpdate(ctx context.Context, id string) (*workflow.Submission, error)
	// Update persists s if its Version still matches the stored row and
	// increments s.Version.
	Update(ctx context.Context, s *workflow.Submission) error
	CountByType(ctx context.Context, typeID string) (int, error)
	NextCertificateSequence(ctx context.Context, typeID string, year int) (int, error)
}

// DocumentRepository tracks uploaded documents. Documents are never
// deleted; replacement appends a new row.
type DocumentRepository interface {
	Create(ctx context.Context, d *workflow.SubmissionDocument) error
	Get(ctx context.Context, id string) (*workflow.SubmissionDocument, error)
	ListBySubmission(ctx context.Context, submissionID string) ([]*workflow.SubmissionDocument, error)
	UpdateStatus(ctx context.Context, id string, status workflow.DocumentStatus, notes *string, at time.Time) error
}

// AssignmentRepository tracks reviewer stage visits.
type AssignmentRepository interface {
	Create(ctx context.Context, a *workflow.WorkflowAssignment) error
	// GetActive returns the open assignment for (submission, stage), or nil.
	GetActive(ctx context.Context, submissionID, stageID string) (*workflow.WorkflowAssignment, error)
	// Latest returns the most recent assignment for (submission, stage), or nil.
	Latest(ctx context.Context, submissionID, stageID string) (*workflow.WorkflowAssignment, error)
	Complete(ctx context.Context, id string, status workflow.AssignmentStatus, completedBy string, notes *string, at time.Time) error
	Reassign(ctx context.Context, id string, reviewerID *string, at time.Time) error
	ListBySubmission(ctx context.Context, submissionID string) ([]*workflow.WorkflowAssignment, error)
	// CountActiveFromOrder counts open assignments of the type whose stage
	// order is >= order.
	CountActiveFromOrder(ctx context.Context, typeID string, order int) (int, error)
}

// TrackingRepository is the append-only ledger.
type TrackingRepository interface {
	Append(ctx context.Context, e *workflow.TrackingEntry) error
	ListBySubmission(ctx context.Context, submissionID string) ([]*workflow.TrackingEntry, error)
	// ResolveOpen stamps resolved_at on every unresolved revision entry
	// (workflow.RevisionEntryTypes) of the submission with the given status
	// and returns how many were closed.
	ResolveOpen(ctx context.Context, submissionID string, status workflow.Status, at time.Time) (int, error)
}

// OutboxMessage is a queued notification event.
type OutboxMessage struct {
	Event         workflow.Event
	Attempts      int
	LastError     *string
	LastAttemptAt *time.Time
	DeliveredAt   *time.Time
	// ClaimedUntil is set while a dispatcher holds the message.
	ClaimedUntil *time.Time
}

// OutboxRepository queues events for the dispatcher.
type OutboxRepository interface {
	Enqueue(ctx context.Context, events []workflow.Event) error
	// ClaimPending returns undelivered messages with fewer than maxAttempts
	// attempts that no other dispatcher holds at now, oldest first. A
	// positive lease reserves them until now+lease; a zero lease only reads.
	ClaimPending(ctx context.Context, limit, maxAttempts int, now time.Time, lease time.Duration) ([]*OutboxMessage, error)
	// MarkDelivered and MarkFailed count the attempt made at at and release
	// the claim.
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id, reason string, at time.Time) error
}
