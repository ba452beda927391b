package workflow

import "time"

// EventType is the kind of outbound notification.
type EventType string

const (
	EventSubmitted         EventType = "submitted"
	EventAdvanced          EventType = "advanced"
	EventReturned          EventType = "returned"
	EventRevisionRequested EventType = "revision_requested"
	EventRevisionSubmitted EventType = "revision_submitted"
	EventRejected          EventType = "rejected"
	EventCompleted         EventType = "completed"
	EventCancelled         EventType = "cancelled"
	EventAssigned          EventType = "assigned"
)

// Event is a notification emitted by a transition. Delivery belongs to an
// outbound collaborator.
type Event struct {
	ID           string                 `json:"id"`
	Type         EventType              `json:"type"`
	SubmissionID string                 `json:"submission_id"`
	RecipientID  string                 `json:"recipient_id"`
	Message      string                 `json:"message"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}
