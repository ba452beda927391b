package workflow

import (
	"encoding/json"
	"time"
)

// ── Reference data ────────────────────────────────────────────────────────────

// SubmissionType is one category of IP submission with its own stage graph
// and document checklist.
type SubmissionType struct {
	ID                string
	Code              string // slug, e.g. "patent-standard"
	Name              string
	Kind              Kind
	CertificatePrefix string
	Active            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Stage is one ordered step of a submission type's review sequence.
type Stage struct {
	ID               string
	SubmissionTypeID string
	Name             string
	Order            int
	ReviewerRole     string
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DocumentRequirement is a named checklist item of a submission type.
type DocumentRequirement struct {
	ID               string
	SubmissionTypeID string
	Name             string
	Description      string
	Required         bool
	Order            int
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// StageRequirement attaches a requirement to a stage with per-stage
// required-ness.
type StageRequirement struct {
	ID            string
	StageID       string
	RequirementID string
	IsRequired    bool
	Order         int
	CreatedAt     time.Time
}

// ── Workflow instances ───────────────────────────────────────────────────────

// Submission is one workflow instance. CurrentStageID is nil only while the
// submission is a draft.
type Submission struct {
	ID               string
	SubmissionTypeID string
	CurrentStageID   *string
	Status           Status
	Certificate      *string
	OwnerID          string
	Title            string
	Details          json.RawMessage
	Version          int
	Archived         bool
	SubmittedAt      *time.Time
	CompletedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Clone returns a deep copy.
func (s *Submission) Clone() *Submission {
	if s == nil {
		return nil
	}
	c := *s
	c.CurrentStageID = clonePtr(s.CurrentStageID)
	c.Certificate = clonePtr(s.Certificate)
	c.SubmittedAt = clonePtr(s.SubmittedAt)
	c.CompletedAt = clonePtr(s.CompletedAt)
	if s.Details != nil {
		c.Details = append(json.RawMessage(nil), s.Details...)
	}
	return &c
}

// DocumentStatus is the review state of one uploaded document.
type DocumentStatus string

const (
	DocumentPending        DocumentStatus = "pending"
	DocumentApproved       DocumentStatus = "approved"
	DocumentRejected       DocumentStatus = "rejected"
	DocumentRevisionNeeded DocumentStatus = "revision_needed"
	DocumentReplaced       DocumentStatus = "replaced"
)

// Valid reports whether s is a known document status.
func (s DocumentStatus) Valid() bool {
	switch s {
	case DocumentPending, DocumentApproved, DocumentRejected, DocumentRevisionNeeded, DocumentReplaced:
		return true
	}
	return false
}

// SubmissionDocument is one uploaded document fulfilling one requirement.
// Seq is the insertion sequence and breaks CreatedAt ties.
type SubmissionDocument struct {
	ID            string
	SubmissionID  string
	RequirementID string
	FileName      string
	Status        DocumentStatus
	Notes         *string
	ReplacesID    *string
	UploadedBy    string
	Seq           int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Active reports whether the document still counts toward gating.
func (d *SubmissionDocument) Active() bool { return d.Status != DocumentReplaced }

// AssignmentStatus is the state of a reviewer's stage visit.
type AssignmentStatus string

const (
	AssignmentPending        AssignmentStatus = "pending"
	AssignmentApproved       AssignmentStatus = "approved"
	AssignmentRejected       AssignmentStatus = "rejected"
	AssignmentRevisionNeeded AssignmentStatus = "revision_needed"
)

// WorkflowAssignment records reviewer ownership of one stage visit.
type WorkflowAssignment struct {
	ID           string
	SubmissionID string
	StageID      string
	ReviewerID   *string
	Status       AssignmentStatus
	Notes        *string
	AssignedAt   time.Time
	CompletedAt  *time.Time
	CompletedBy  *string
}

// Open reports whether the assignment is still active.
func (a *WorkflowAssignment) Open() bool { return a.CompletedAt == nil }

// TrackingEntry is one immutable audit row. ResolvedAt is the only field
// that may change after insertion, and only from nil to non-nil.
type TrackingEntry struct {
	ID              string
	SubmissionID    string
	StageID         *string
	PreviousStageID *string
	Action          Action
	EventType       EntryType
	Status          Status
	SourceStatus    Status
	TargetStatus    Status
	Comment         *string
	ProcessedBy     string
	Metadata        map[string]interface{}
	Seq             int64
	CreatedAt       time.Time
	ResolvedAt      *time.Time
}

// EntryType tags a tracking entry for timeline rendering and analytics.
type EntryType string

const (
	EntryStageTransition EntryType = "stage_transition"
	EntryStatusChange    EntryType = "status_change"
	EntryRevision        EntryType = "revision"
	EntryRejection       EntryType = "rejection"
	EntryCompletion      EntryType = "completion"
	EntryCancellation    EntryType = "cancellation"
	EntryReviewDecision  EntryType = "review_decision"
	EntryDocumentStatus  EntryType = "document_status"
)

// RevisionEntryTypes are the entry types a resubmission resolves. Document
// entries only snapshot the submission status and stay open.
var RevisionEntryTypes = []EntryType{EntryRevision, EntryStageTransition, EntryReviewDecision}

// ResolvedByRevision reports whether t is one of RevisionEntryTypes.
func (t EntryType) ResolvedByRevision() bool {
	for _, rt := range RevisionEntryTypes {
		if t == rt {
			return true
		}
	}
	return false
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns *p or "".
func Deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
