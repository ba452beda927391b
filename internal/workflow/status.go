package workflow

// Status is the lifecycle state of a Submission.
type Status string

const (
	StatusDraft          Status = "draft"
	StatusSubmitted      Status = "submitted"
	StatusInReview       Status = "in_review"
	StatusApproved       Status = "approved"
	StatusRevisionNeeded Status = "revision_needed"
	StatusRejected       Status = "rejected"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusInReview, StatusApproved,
		StatusRevisionNeeded, StatusRejected, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Action is a verb recorded on tracking entries. The workflow actions
// drive the state machine; the remaining ones only annotate the ledger.
type Action string

const (
	ActionSubmit          Action = "submit"
	ActionStartReview     Action = "start_review"
	ActionAdvanceStage    Action = "advance_stage"
	ActionReturnStage     Action = "return_stage"
	ActionRequestRevision Action = "request_revision"
	ActionSubmitRevision  Action = "submit_revision"
	ActionReject          Action = "reject"
	ActionComplete        Action = "complete"
	ActionCancel          Action = "cancel"

	ActionReviewDecision   Action = "review_decision"
	ActionDocumentStatus   Action = "document_status_change"
	ActionDocumentUploaded Action = "document_uploaded"
	ActionDocumentReplaced Action = "document_replaced"
)

var allowedFrom = map[Action][]Status{
	ActionSubmit:          {StatusDraft},
	ActionStartReview:     {StatusSubmitted},
	ActionAdvanceStage:    {StatusSubmitted, StatusInReview},
	ActionComplete:        {StatusSubmitted, StatusInReview},
	ActionReturnStage:     {StatusSubmitted, StatusInReview},
	ActionRequestRevision: {StatusSubmitted, StatusInReview},
	ActionSubmitRevision:  {StatusRevisionNeeded},
	ActionReject:          {StatusSubmitted, StatusInReview, StatusRevisionNeeded},
	ActionCancel:          {StatusDraft, StatusSubmitted, StatusInReview, StatusRevisionNeeded},
}

// CheckTransition returns an InvalidTransitionError when action may not be
// applied to a submission in status from.
func CheckTransition(from Status, action Action) error {
	for _, s := range allowedFrom[action] {
		if s == from {
			return nil
		}
	}
	return &InvalidTransitionError{From: from, Action: action}
}

// AllowedActions lists the workflow actions applicable from status s.
func AllowedActions(s Status) []Action {
	order := []Action{
		ActionSubmit, ActionStartReview, ActionAdvanceStage, ActionReturnStage,
		ActionRequestRevision, ActionSubmitRevision, ActionReject, ActionComplete, ActionCancel,
	}
	var out []Action
	for _, a := range order {
		if CheckTransition(s, a) == nil {
			out = append(out, a)
		}
	}
	return out
}

// Decision is a reviewer's verdict on the current stage.
type Decision string

const (
	DecisionApproved       Decision = "approved"
	DecisionRevisionNeeded Decision = "revision_needed"
	DecisionRejected       Decision = "rejected"
)

// Valid reports whether d is one of the three reviewer decisions.
func (d Decision) Valid() bool {
	switch d {
	case DecisionApproved, DecisionRevisionNeeded, DecisionRejected:
		return true
	}
	return false
}

// AssignmentStatus maps the decision onto the assignment it closes.
func (d Decision) AssignmentStatus() AssignmentStatus {
	switch d {
	case DecisionApproved:
		return AssignmentApproved
	case DecisionRejected:
		return AssignmentRejected
	default:
		return AssignmentRevisionNeeded
	}
}
